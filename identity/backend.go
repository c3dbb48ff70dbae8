// Package identity talks to the farm identity backend over HTTP.
package identity

import (
	"context"

	"github.com/jrsteele09/farm-session/oauth2"
)

// Backend is the remote identity service the session manager depends on.
type Backend interface {
	// Login exchanges an email and password for a credential pair.
	Login(ctx context.Context, req oauth2.LoginRequest) (*oauth2.TokenResponse, error)

	// GoogleLogin exchanges a Google ID token for a credential pair.
	GoogleLogin(ctx context.Context, req oauth2.GoogleLoginRequest) (*oauth2.TokenResponse, error)

	// CurrentUser returns the user the access token was issued to.
	CurrentUser(ctx context.Context, accessToken string) (*oauth2.BackendUser, error)

	// Refresh mints a new credential pair from a refresh token.
	Refresh(ctx context.Context, req oauth2.RefreshRequest) (*oauth2.TokenResponse, error)

	// Register creates an account. It does not sign the user in.
	Register(ctx context.Context, req oauth2.RegisterRequest) (*oauth2.BackendUser, error)
}

// Backend paths.
const (
	PathLogin    = "/auth/login"
	PathGoogle   = "/auth/google"
	PathMe       = "/auth/me"
	PathRefresh  = "/auth/refresh"
	PathRegister = "/auth/register"
)
