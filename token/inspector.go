// Package token reads claims from access tokens the client holds. It never
// verifies signatures: the backend stays the authority on validity, the
// client only uses expiry to skip calls that are bound to fail.
package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Inspector extracts the expiry of JWT access tokens. Opaque tokens report an
// unknown expiry.
type Inspector struct {
	parser *jwtlib.Parser
	skew   time.Duration
}

// NewInspector returns an Inspector that treats a token as expired skew
// before its exp claim.
func NewInspector(skew time.Duration) *Inspector {
	return &Inspector{
		parser: jwtlib.NewParser(),
		skew:   skew,
	}
}

// Expiry returns the exp claim of rawToken, and false when the token is not a
// JWT or carries no exp.
func (i *Inspector) Expiry(rawToken string) (time.Time, bool) {
	if strings.Count(rawToken, ".") != 2 {
		return time.Time{}, false
	}
	parsed, _, err := i.parser.ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether rawToken is known to be expired at now.
func (i *Inspector) Expired(rawToken string, now time.Time) bool {
	exp, ok := i.Expiry(rawToken)
	if !ok {
		return false
	}
	return !now.Add(i.skew).Before(exp)
}
