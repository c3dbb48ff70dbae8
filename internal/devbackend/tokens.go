package devbackend

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/farm-session/internal/errors"
	"github.com/jrsteele09/farm-session/oauth2"
)

const refreshTokenLength = 32 // 32 bytes = 256 bits

// storedRefreshToken is the server-side record behind an opaque refresh token.
type storedRefreshToken struct {
	UserID int64
	Iat    time.Time
}

// tokenIssuer signs HS256 access tokens and keeps single-use refresh tokens.
type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowTime    func() time.Time

	refreshTokens map[string]storedRefreshToken
	lock          sync.Mutex
}

func newTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration, nowTime func() time.Time) *tokenIssuer {
	return &tokenIssuer{
		secret:        secret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		nowTime:       nowTime,
		refreshTokens: make(map[string]storedRefreshToken),
	}
}

// Issue creates a fresh access/refresh pair for userID.
func (ti *tokenIssuer) Issue(userID int64) (*oauth2.TokenResponse, error) {
	now := ti.nowTime()
	access, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(ti.accessTTL)),
		ID:        uuid.NewString(),
	}).SignedString(ti.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	refresh := hex.EncodeToString(tokenBytes)

	ti.lock.Lock()
	ti.refreshTokens[refresh] = storedRefreshToken{UserID: userID, Iat: now}
	ti.lock.Unlock()

	return oauth2.NewTokenResponse(access, refresh), nil
}

// Authenticate validates an access token and returns the user id it names.
func (ti *tokenIssuer) Authenticate(rawToken string) (int64, error) {
	claims := &jwtlib.RegisteredClaims{}
	_, err := jwtlib.ParseWithClaims(rawToken, claims, func(t *jwtlib.Token) (interface{}, error) {
		return ti.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(ti.nowTime),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return 0, apperrors.ErrTokenExpired
		}
		return 0, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", apperrors.ErrInvalidToken)
	}
	return id, nil
}

// Rotate consumes a refresh token and returns the owner. A token can be used
// once; expired tokens are removed.
func (ti *tokenIssuer) Rotate(refresh string) (int64, error) {
	ti.lock.Lock()
	defer ti.lock.Unlock()

	rt, ok := ti.refreshTokens[refresh]
	if !ok {
		return 0, apperrors.ErrInvalidRefreshToken
	}
	delete(ti.refreshTokens, refresh)
	if ti.nowTime().Sub(rt.Iat) > ti.refreshTTL {
		return 0, apperrors.ErrTokenExpired
	}
	return rt.UserID, nil
}
