// Package devbackend is a local stand-in for the farm identity backend. It
// serves the five /auth endpoints the mobile client consumes so the client can
// be exercised end to end without the production service.
package devbackend

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jrsteele09/farm-session/identity"
	"github.com/jrsteele09/farm-session/identity/google"
	"github.com/jrsteele09/farm-session/users"
	"github.com/rs/zerolog"
)

// IDTokenVerifier checks Google ID tokens presented to /auth/google.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*google.Claims, error)
}

// Server holds the router and the in-memory state behind it.
type Server struct {
	router      *gin.Engine
	users       users.UserRepo
	tokens      *tokenIssuer
	verifier    IDTokenVerifier
	adminEmails map[string]struct{}
	logger      zerolog.Logger
	logRoutes   bool
	nowTime     func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func WithTokenTTLs(access, refresh time.Duration) ServerOption {
	return func(s *Server) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

// WithGoogleVerifier enables /auth/google.
func WithGoogleVerifier(v IDTokenVerifier) ServerOption {
	return func(s *Server) {
		s.verifier = v
	}
}

// WithAdminEmails marks accounts registered with these emails as admins.
func WithAdminEmails(emails ...string) ServerOption {
	return func(s *Server) {
		for _, e := range emails {
			s.adminEmails[normalizeEmail(e)] = struct{}{}
		}
	}
}

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// New builds a backend that signs access tokens with signingSecret.
func New(repo users.UserRepo, signingSecret string, options ...ServerOption) (*Server, error) {
	if repo == nil {
		return nil, errors.New("[devbackend.New] user repo is required")
	}
	if signingSecret == "" {
		return nil, errors.New("[devbackend.New] signing secret is required")
	}

	s := &Server{
		users:       repo,
		adminEmails: make(map[string]struct{}),
		logger:      zerolog.Nop(),
		nowTime:     time.Now,
		accessTTL:   15 * time.Minute,
		refreshTTL:  7 * 24 * time.Hour,
	}
	for _, opt := range options {
		opt(s)
	}
	s.tokens = newTokenIssuer([]byte(signingSecret), s.accessTTL, s.refreshTTL, s.nowTime)

	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.initRoutes()
	if s.logRoutes {
		s.printRoutes()
	}
	return s, nil
}

func (s *Server) initRoutes() {
	s.router.POST(identity.PathLogin, s.login)
	s.router.POST(identity.PathGoogle, s.googleLogin)
	s.router.POST(identity.PathRefresh, s.refresh)
	s.router.POST(identity.PathRegister, s.register)
	s.router.GET(identity.PathMe, s.requireBearer(), s.me)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Seed creates an account directly, bypassing registration validation.
func (s *Server) Seed(email, fullName, password string, admin bool) (*users.User, error) {
	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &users.User{
		Email:        normalizeEmail(email),
		FullName:     fullName,
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      admin,
		DateJoined:   s.nowTime(),
	}
	if err := s.users.Create(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("request_id", c.GetHeader("X-Request-ID")).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(started)).
			Msg("request")
	}
}
