// Package google checks Google Sign-In ID tokens on the device before they
// are sent to the identity backend.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/farm-session/internal/errors"
)

// Issuer is Google's OIDC issuer.
const Issuer = "https://accounts.google.com"

// Claims are the identity claims the app cares about.
type Claims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Verifier validates signature, issuer, audience and expiry of Google ID tokens.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// New discovers Google's signing keys and returns a verifier for clientID.
func New(ctx context.Context, clientID string) (*Verifier, error) {
	if clientID == "" {
		return nil, errors.New("google: client id is required")
	}
	provider, err := oidc.NewProvider(ctx, Issuer)
	if err != nil {
		return nil, fmt.Errorf("google: init oidc provider: %w", err)
	}
	return NewWithVerifier(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewWithVerifier wraps a prepared go-oidc verifier, e.g. one built on a
// static key set.
func NewWithVerifier(v *oidc.IDTokenVerifier) *Verifier {
	return &Verifier{verifier: v}
}

// Verify checks rawIDToken and returns its claims. Every failure wraps
// apperrors.ErrInvalidIDToken.
func (v *Verifier) Verify(ctx context.Context, rawIDToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidIDToken, err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", apperrors.ErrInvalidIDToken, err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing sub or email", apperrors.ErrInvalidIDToken)
	}
	return &claims, nil
}
