// Package session owns the client's authenticated session: restoring it at
// start-up, signing in and out, and keeping the durable copy of the
// credentials in step with the in-memory State.
package session

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/jrsteele09/farm-session/identity"
	"github.com/jrsteele09/farm-session/identity/google"
	apperrors "github.com/jrsteele09/farm-session/internal/errors"
	"github.com/jrsteele09/farm-session/kvstore"
	"github.com/jrsteele09/farm-session/oauth2"
	"github.com/jrsteele09/farm-session/token"
	"github.com/jrsteele09/farm-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// IDTokenVerifier checks a Google ID token on the device.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*google.Claims, error)
}

// RestoreFailurePolicy runs when a stored session cannot be verified during
// Restore. cause is never surfaced to the caller of Restore.
type RestoreFailurePolicy func(ctx context.Context, m *Manager, cause error)

// DiscardOnRestoreFailure is the default policy: the unverifiable session is
// dropped from memory and from the store.
func DiscardOnRestoreFailure(ctx context.Context, m *Manager, cause error) {
	m.logger.Warn().Err(cause).Msg("failed to restore session, discarding stored credentials")
	if err := m.clearSession(ctx); err != nil {
		m.logger.Error().Err(err).Msg("failed to remove stored credentials")
	}
}

// Manager orchestrates the session lifecycle. Operations are expected to be
// called one at a time; concurrent mutations are not defended against.
type Manager struct {
	backend          identity.Backend
	store            kvstore.Store
	state            *Holder
	verifier         IDTokenVerifier
	inspector        *token.Inspector
	onRestoreFailure RestoreFailurePolicy
	logger           zerolog.Logger
	nowTime          func() time.Time
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithStateHolder lets the caller own the Holder the UI observes.
func WithStateHolder(h *Holder) ManagerOption {
	return func(m *Manager) {
		if h != nil {
			m.state = h
		}
	}
}

// WithIDTokenVerifier enables local verification of Google ID tokens.
func WithIDTokenVerifier(v IDTokenVerifier) ManagerOption {
	return func(m *Manager) {
		m.verifier = v
	}
}

// WithTokenInspector replaces the inspector Restore uses to spot expired
// access tokens, typically to allow for clock skew.
func WithTokenInspector(i *token.Inspector) ManagerOption {
	return func(m *Manager) {
		if i != nil {
			m.inspector = i
		}
	}
}

// WithRestoreFailurePolicy replaces DiscardOnRestoreFailure.
func WithRestoreFailurePolicy(p RestoreFailurePolicy) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.onRestoreFailure = p
		}
	}
}

// WithLogger sets the logger. Tokens are never logged.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager creates a Manager. The session starts empty and loading until
// Restore has run.
func NewManager(backend identity.Backend, store kvstore.Store, options ...ManagerOption) (*Manager, error) {
	if backend == nil {
		return nil, errors.New("[NewManager] backend is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}

	m := &Manager{
		backend:          backend,
		store:            store,
		state:            NewHolder(),
		inspector:        token.NewInspector(0),
		onRestoreFailure: DiscardOnRestoreFailure,
		logger:           zerolog.Nop(),
		nowTime:          time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// State returns a copy of the current session record.
func (m *Manager) State() State {
	return m.state.State()
}

// Subscribe registers fn for session changes.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	return m.state.Subscribe(fn)
}

// Restore re-establishes the session from the store. Verification failures
// are handled by the restore failure policy and never returned; the only
// error is the caller's context being done, in which case the stored
// credentials are left alone.
func (m *Manager) Restore(ctx context.Context) error {
	m.state.SetLoading(true)
	defer m.state.SetLoading(false)

	stored, found, err := m.loadCredentials(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return m.abandonRestore(ctx)
		}
		m.onRestoreFailure(ctx, m, err)
		return nil
	}
	if !found {
		m.replace(nil, nil)
		return nil
	}

	user, creds, err := m.verify(ctx, stored)
	if err != nil {
		if ctx.Err() != nil {
			return m.abandonRestore(ctx)
		}
		m.onRestoreFailure(ctx, m, err)
		return nil
	}

	m.replace(&user, &creds)
	if creds != stored {
		if err := m.persist(ctx, creds); err != nil {
			m.logger.Warn().Err(err).Msg("failed to persist refreshed credentials")
		}
	}
	m.logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("session restored")
	return nil
}

// SignInWithEmailPassword logs in, loads the user and only then replaces the
// session. On a backend failure the previous session is left untouched.
func (m *Manager) SignInWithEmailPassword(ctx context.Context, email, password string) error {
	if err := validateLogin(email, password); err != nil {
		return err
	}
	m.state.SetLoading(true)
	defer m.state.SetLoading(false)

	tr, err := m.backend.Login(ctx, oauth2.LoginRequest{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return errors.Wrap(err, "[Manager.SignInWithEmailPassword] login")
	}
	return errors.Wrap(m.establish(ctx, tr, "password"), "[Manager.SignInWithEmailPassword]")
}

// SignInWithGoogle is SignInWithEmailPassword for a Google ID token.
func (m *Manager) SignInWithGoogle(ctx context.Context, idToken string) error {
	if strings.TrimSpace(idToken) == "" {
		return &ValidationError{Field: "id_token", Message: msgIDTokenRequired}
	}
	m.state.SetLoading(true)
	defer m.state.SetLoading(false)

	if m.verifier != nil {
		if _, err := m.verifier.Verify(ctx, idToken); err != nil {
			return &ValidationError{Field: "id_token", Message: msgIDTokenRejected, Err: err}
		}
	}

	tr, err := m.backend.GoogleLogin(ctx, oauth2.GoogleLoginRequest{IDToken: idToken})
	if err != nil {
		return errors.Wrap(err, "[Manager.SignInWithGoogle] google login")
	}
	return errors.Wrap(m.establish(ctx, tr, "google"), "[Manager.SignInWithGoogle]")
}

// SignOut clears the session immediately, then removes the stored keys. The
// remote session is not revoked. A store error is returned but the in-memory
// session is already gone.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.clearSession(ctx); err != nil {
		return errors.Wrap(err, "[Manager.SignOut] remove stored credentials")
	}
	m.logger.Info().Msg("signed out")
	return nil
}

// Register creates the account and then signs in with the same credentials.
// A failed registration never attempts a sign-in.
func (m *Manager) Register(ctx context.Context, r Registration) error {
	if err := validateRegistration(r); err != nil {
		return err
	}
	email := strings.TrimSpace(r.Email)
	if _, err := m.backend.Register(ctx, oauth2.RegisterRequest{
		Email:    email,
		FullName: strings.TrimSpace(r.FullName),
		Password: r.Password,
	}); err != nil {
		return errors.Wrap(err, "[Manager.Register] register")
	}
	m.logger.Info().Msg("account registered")
	return m.SignInWithEmailPassword(ctx, email, r.Password)
}

// RefreshSession trades the held refresh token for a new pair. When the
// backend rejects the refresh the session is signed out locally; transport
// failures keep it.
func (m *Manager) RefreshSession(ctx context.Context) error {
	current := m.state.State()
	if current.Credentials == nil {
		return apperrors.ErrNoSession
	}
	m.state.SetLoading(true)
	defer m.state.SetLoading(false)

	user, creds, err := m.refreshAndFetch(ctx, current.Credentials.RefreshToken)
	if err != nil {
		if rejected(err) {
			m.logger.Warn().Err(err).Msg("refresh rejected, signing out")
			if clearErr := m.clearSession(ctx); clearErr != nil {
				m.logger.Error().Err(clearErr).Msg("failed to remove stored credentials")
			}
		}
		return errors.Wrap(err, "[Manager.RefreshSession]")
	}

	m.replace(&user, &creds)
	return errors.Wrap(m.persist(ctx, creds), "[Manager.RefreshSession] persist credentials")
}

// CallAuthorized runs call with the current access token. If call fails with
// a 401 the session is refreshed once and call retried with the new token.
func (m *Manager) CallAuthorized(ctx context.Context, call func(ctx context.Context, accessToken string) error) error {
	current := m.state.State()
	if current.Credentials == nil {
		return apperrors.ErrNoSession
	}
	err := call(ctx, current.Credentials.AccessToken)
	if err == nil || !stderrors.Is(err, identity.ErrUnauthorized) {
		return err
	}

	if err := m.RefreshSession(ctx); err != nil {
		return err
	}
	refreshed := m.state.State()
	if refreshed.Credentials == nil {
		return apperrors.ErrNoSession
	}
	return call(ctx, refreshed.Credentials.AccessToken)
}

// verify resolves the user for stored credentials. A stored access token that
// is known to be expired, or that the backend rejects with 401, is traded for
// a new pair once before giving up.
func (m *Manager) verify(ctx context.Context, stored Credentials) (users.Identity, Credentials, error) {
	if m.inspector.Expired(stored.AccessToken, m.nowTime()) {
		m.logger.Debug().Msg("stored access token expired, refreshing")
		return m.refreshAndFetch(ctx, stored.RefreshToken)
	}

	backendUser, err := m.backend.CurrentUser(ctx, stored.AccessToken)
	if err == nil {
		return users.FromBackend(*backendUser), stored, nil
	}
	if !stderrors.Is(err, identity.ErrUnauthorized) {
		return users.Identity{}, Credentials{}, errors.Wrap(err, "current user")
	}
	m.logger.Debug().Msg("stored access token rejected, refreshing")
	return m.refreshAndFetch(ctx, stored.RefreshToken)
}

func (m *Manager) refreshAndFetch(ctx context.Context, refreshToken string) (users.Identity, Credentials, error) {
	tr, err := m.backend.Refresh(ctx, oauth2.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return users.Identity{}, Credentials{}, errors.Wrap(err, "refresh")
	}
	if !tr.Complete() {
		return users.Identity{}, Credentials{}, identity.ErrIncompleteTokens
	}
	access, refresh := tr.Pair()
	backendUser, err := m.backend.CurrentUser(ctx, access)
	if err != nil {
		return users.Identity{}, Credentials{}, errors.Wrap(err, "current user after refresh")
	}
	return users.FromBackend(*backendUser), Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

// establish finishes a sign-in: fetch the user for the new pair, replace the
// session, then persist.
func (m *Manager) establish(ctx context.Context, tr *oauth2.TokenResponse, method string) error {
	if !tr.Complete() {
		return identity.ErrIncompleteTokens
	}
	access, refresh := tr.Pair()
	backendUser, err := m.backend.CurrentUser(ctx, access)
	if err != nil {
		return errors.Wrap(err, "current user")
	}

	user := users.FromBackend(*backendUser)
	creds := Credentials{AccessToken: access, RefreshToken: refresh}
	m.replace(&user, &creds)
	m.logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Str("method", method).Msg("signed in")

	if err := m.persist(ctx, creds); err != nil {
		return errors.Wrap(err, "persist credentials")
	}
	return nil
}

func (m *Manager) loadCredentials(ctx context.Context) (Credentials, bool, error) {
	access, ok, err := m.store.Get(ctx, kvstore.AccessTokenKey)
	if err != nil {
		return Credentials{}, false, errors.Wrap(err, "read access token")
	}
	if !ok || access == "" {
		return Credentials{}, false, nil
	}
	refresh, ok, err := m.store.Get(ctx, kvstore.RefreshTokenKey)
	if err != nil {
		return Credentials{}, false, errors.Wrap(err, "read refresh token")
	}
	if !ok || refresh == "" {
		return Credentials{}, false, nil
	}
	return Credentials{AccessToken: access, RefreshToken: refresh}, true, nil
}

// persist writes both keys. If either write fails both keys are removed so a
// half-written pair is never restored.
func (m *Manager) persist(ctx context.Context, creds Credentials) error {
	err := m.store.Set(ctx, kvstore.AccessTokenKey, creds.AccessToken)
	if err == nil {
		err = m.store.Set(ctx, kvstore.RefreshTokenKey, creds.RefreshToken)
	}
	if err != nil {
		if rmErr := m.store.MultiRemove(ctx, kvstore.CredentialKeys...); rmErr != nil {
			m.logger.Error().Err(rmErr).Msg("failed to remove partially written credentials")
		}
		return err
	}
	return nil
}

// clearSession empties the session in memory first, then in the store.
func (m *Manager) clearSession(ctx context.Context) error {
	m.replace(nil, nil)
	return m.store.MultiRemove(ctx, kvstore.CredentialKeys...)
}

// abandonRestore handles a cancelled Restore: nothing is trusted, nothing is
// deleted.
func (m *Manager) abandonRestore(ctx context.Context) error {
	m.replace(nil, nil)
	return ctx.Err()
}

// replace swaps in a new user/credentials pair, keeping the loading flag.
func (m *Manager) replace(user *users.Identity, creds *Credentials) {
	next := State{User: user, Credentials: creds, IsLoading: m.state.State().IsLoading}
	if err := m.state.Set(next); err != nil {
		m.logger.Error().Err(err).Msg("refusing inconsistent session state")
	}
}

func rejected(err error) bool {
	var apiErr *identity.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
	}
	return stderrors.Is(err, identity.ErrIncompleteTokens)
}
