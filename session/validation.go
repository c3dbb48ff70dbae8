package session

import (
	"errors"
	"fmt"

	apperrors "github.com/jrsteele09/farm-session/internal/errors"
	"github.com/jrsteele09/farm-session/internal/utils"
	"github.com/jrsteele09/farm-session/users"
)

const (
	msgLoginFieldsRequired    = "Please enter both email and password."
	msgRegisterFieldsRequired = "Please fill all fields."
	msgPasswordsDontMatch     = "Passwords do not match."
	msgIDTokenRequired        = "Google sign-in did not return a token."
	msgIDTokenRejected        = "Google sign-in could not be verified."
)

// ValidationError is raised before any network call. It never changes the
// session.
type ValidationError struct {
	Field   string
	Message string
	Err     error // underlying cause, if any
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "validation failed: " + e.Field + ": " + e.Message + ": " + e.Err.Error()
	}
	return "validation failed: " + e.Field + ": " + e.Message
}

// UserMessage is the text to show next to the form.
func (e *ValidationError) UserMessage() string {
	return e.Message
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperrors.ErrValidation}
	}
	return []error{apperrors.ErrValidation, e.Err}
}

// Registration is what the sign-up form collects.
type Registration struct {
	Email           string
	FullName        string
	Password        string
	ConfirmPassword string
}

func validateLogin(email, password string) error {
	if utils.Blank(email) || password == "" {
		return &ValidationError{Field: "credentials", Message: msgLoginFieldsRequired}
	}
	return nil
}

func validateRegistration(r Registration) error {
	if utils.Blank(r.Email) || utils.Blank(r.FullName) || r.Password == "" || r.ConfirmPassword == "" {
		return &ValidationError{Field: "registration", Message: msgRegisterFieldsRequired}
	}
	if err := users.ValidatePasswordStrength(r.Password); err != nil {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("Password must be at least %d characters.", users.MinPasswordLength)}
	}
	if r.Password != r.ConfirmPassword {
		return &ValidationError{Field: "confirm_password", Message: msgPasswordsDontMatch}
	}
	return nil
}

// IsValidation reports whether err was raised by input validation.
func IsValidation(err error) bool {
	return errors.Is(err, apperrors.ErrValidation)
}
