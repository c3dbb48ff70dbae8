package devbackend

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/jrsteele09/farm-session/internal/errors"
	"github.com/jrsteele09/farm-session/oauth2"
	"github.com/jrsteele09/farm-session/users"
)

const userIDKey = "user_id"

func (s *Server) login(c *gin.Context) {
	var req oauth2.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		abortDetail(c, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := s.users.GetByEmail(normalizeEmail(req.Email))
	if err != nil || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
		abortDetail(c, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	s.issue(c, user)
}

func (s *Server) googleLogin(c *gin.Context) {
	if s.verifier == nil {
		abortDetail(c, http.StatusNotImplemented, "Google login is not configured")
		return
	}
	var req oauth2.GoogleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IDToken == "" {
		abortDetail(c, http.StatusBadRequest, "id_token is required")
		return
	}

	claims, err := s.verifier.Verify(c.Request.Context(), req.IDToken)
	if err != nil {
		abortDetail(c, http.StatusUnauthorized, "Invalid Google token")
		return
	}

	user, err := s.users.GetByGoogleSubject(claims.Subject)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		user, err = s.linkOrCreateGoogleUser(claims.Subject, claims.Email, claims.Name)
	}
	if err != nil {
		abortDetail(c, http.StatusInternalServerError, "Could not resolve Google account")
		return
	}
	s.issue(c, user)
}

// linkOrCreateGoogleUser attaches the Google subject to an existing account
// with the same email, or creates a password-less one.
func (s *Server) linkOrCreateGoogleUser(subject, email, name string) (*users.User, error) {
	email = normalizeEmail(email)
	if _, err := s.users.GetByEmail(email); err == nil {
		if err := s.users.LinkGoogleSubject(email, subject); err != nil {
			return nil, err
		}
		return s.users.GetByGoogleSubject(subject)
	}

	unusable := make([]byte, 32)
	if _, err := rand.Read(unusable); err != nil {
		return nil, err
	}
	hash, err := users.HashPassword(hex.EncodeToString(unusable))
	if err != nil {
		return nil, err
	}
	u := &users.User{
		Email:         email,
		FullName:      name,
		PasswordHash:  hash,
		GoogleSubject: subject,
		IsActive:      true,
		IsAdmin:       s.isAdminEmail(email),
		DateJoined:    s.nowTime(),
	}
	if err := s.users.Create(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Server) refresh(c *gin.Context) {
	var req oauth2.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		abortDetail(c, http.StatusBadRequest, "refresh_token is required")
		return
	}
	userID, err := s.tokens.Rotate(req.RefreshToken)
	if err != nil {
		abortDetail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	user, err := s.users.GetByID(userID)
	if err != nil {
		abortDetail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	s.issue(c, user)
}

func (s *Server) register(c *gin.Context) {
	var req oauth2.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortDetail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	email := normalizeEmail(req.Email)
	switch {
	case !strings.Contains(email, "@"):
		abortDetail(c, http.StatusBadRequest, "A valid email is required")
		return
	case strings.TrimSpace(req.FullName) == "":
		abortDetail(c, http.StatusBadRequest, "Full name is required")
		return
	}
	if err := users.ValidatePasswordStrength(req.Password); err != nil {
		abortDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := users.HashPassword(req.Password)
	if err != nil {
		abortDetail(c, http.StatusInternalServerError, "Could not register user")
		return
	}
	u := &users.User{
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      s.isAdminEmail(email),
		DateJoined:   s.nowTime(),
	}
	if err := s.users.Create(u); err != nil {
		if errors.Is(err, apperrors.ErrUserExists) {
			abortDetail(c, http.StatusBadRequest, "Email already registered")
			return
		}
		abortDetail(c, http.StatusInternalServerError, "Could not register user")
		return
	}
	c.JSON(http.StatusCreated, u.Backend())
}

func (s *Server) me(c *gin.Context) {
	user, err := s.users.GetByID(c.GetInt64(userIDKey))
	if err != nil {
		abortDetail(c, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	c.JSON(http.StatusOK, user.Backend())
}

// requireBearer authenticates the access token and stores the user id.
func (s *Server) requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || raw == "" {
			c.Header("WWW-Authenticate", "Bearer")
			abortDetail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}
		userID, err := s.tokens.Authenticate(raw)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			detail := "Could not validate credentials"
			if errors.Is(err, apperrors.ErrTokenExpired) {
				detail = "Token has expired"
			}
			abortDetail(c, http.StatusUnauthorized, detail)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (s *Server) issue(c *gin.Context, user *users.User) {
	if err := user.CheckActive(); err != nil {
		abortDetail(c, http.StatusForbidden, "Inactive user")
		return
	}
	tr, err := s.tokens.Issue(user.ID)
	if err != nil {
		abortDetail(c, http.StatusInternalServerError, "Could not issue tokens")
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (s *Server) isAdminEmail(email string) bool {
	_, ok := s.adminEmails[email]
	return ok
}

func abortDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, oauth2.ErrorResponse{Detail: detail})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
