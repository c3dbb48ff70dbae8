package oauth2

import "github.com/jrsteele09/farm-session/internal/utils"

// TokenResponse is the body returned by /auth/login, /auth/google and
// /auth/refresh.
type TokenResponse struct {
	// AccessToken is the short-lived bearer credential.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken *string `json:"access_token,omitempty"`

	// RefreshToken mints a new pair at /auth/refresh without re-entering a password.
	// Security: Should be stored securely, rotates on each use
	RefreshToken *string `json:"refresh_token,omitempty"`

	// TokenType indicates how to use the access token (always "bearer").
	TokenType string `json:"token_type,omitempty"`
}

// Complete reports whether both halves of the pair were issued. The pair is
// never usable with only one of them.
func (tr *TokenResponse) Complete() bool {
	return tr != nil && utils.Value(tr.AccessToken) != "" && utils.Value(tr.RefreshToken) != ""
}

// Pair returns the access and refresh token strings.
func (tr *TokenResponse) Pair() (accessToken, refreshToken string) {
	if tr == nil {
		return "", ""
	}
	return utils.Value(tr.AccessToken), utils.Value(tr.RefreshToken)
}

// NewTokenResponse builds a bearer response for the given pair.
func NewTokenResponse(accessToken, refreshToken string) *TokenResponse {
	return &TokenResponse{
		AccessToken:  utils.Ptr(accessToken),
		RefreshToken: utils.Ptr(refreshToken),
		TokenType:    BearerTokenType,
	}
}
