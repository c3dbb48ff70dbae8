package errors

import "errors"

// Common error types for the session client
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is inactive")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidIDToken      = errors.New("invalid id token")

	// Session errors
	ErrNoSession         = errors.New("no session")
	ErrInconsistentState = errors.New("user and credentials must be set together")

	// Input errors
	ErrValidation = errors.New("validation failed")
)
