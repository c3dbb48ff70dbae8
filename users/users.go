package users

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	apperrors "github.com/jrsteele09/farm-session/internal/errors"
	"github.com/jrsteele09/farm-session/oauth2"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// Role is the client-side projection of the backend's admin flag.
type Role string

const (
	RoleFarmer Role = "farmer" // Default role for every non-admin account
	RoleAdmin  Role = "admin"  // Backend users with is_admin set
)

// Identity is the signed-in user as the app sees it.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// FromBackend maps a backend user record to an Identity. The numeric id is
// stored as a decimal string from here on.
func FromBackend(u oauth2.BackendUser) Identity {
	role := RoleFarmer
	if u.IsAdmin {
		role = RoleAdmin
	}
	return Identity{
		ID:    strconv.FormatInt(u.ID, 10),
		Email: u.Email,
		Name:  u.FullName,
		Role:  role,
	}
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// User is an account held by the development identity backend.
type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	PasswordHash  string    `json:"-"` // never serialize
	GoogleSubject string    `json:"-"` // "sub" claim of a linked Google account
	IsActive      bool      `json:"is_active"`
	IsAdmin       bool      `json:"is_admin"`
	DateJoined    time.Time `json:"date_joined,omitempty"`
}

// Backend returns the wire representation of the account.
func (u *User) Backend() oauth2.BackendUser {
	return oauth2.BackendUser{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		IsActive: u.IsActive,
		IsAdmin:  u.IsAdmin,
	}
}

// CheckActive returns ErrUserInactive for disabled accounts.
func (u *User) CheckActive() error {
	if !u.IsActive {
		return apperrors.ErrUserInactive
	}
	return nil
}

// ValidatePasswordStrength checks the registration rule for passwords.
func ValidatePasswordStrength(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
