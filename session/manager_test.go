package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/farm-session/identity"
	"github.com/jrsteele09/farm-session/identity/google"
	"github.com/jrsteele09/farm-session/identity/identityfake"
	apperrors "github.com/jrsteele09/farm-session/internal/errors"
	"github.com/jrsteele09/farm-session/kvstore"
	"github.com/jrsteele09/farm-session/kvstore/storefake"
	"github.com/jrsteele09/farm-session/oauth2"
	"github.com/jrsteele09/farm-session/session"
	"github.com/jrsteele09/farm-session/token"
	"github.com/jrsteele09/farm-session/users"
	"github.com/stretchr/testify/require"
)

var (
	farmerRecord = oauth2.BackendUser{ID: 1, Email: "a@b.com", FullName: "A B", IsActive: true, IsAdmin: false}
	adminRecord  = oauth2.BackendUser{ID: 2, Email: "a@b.com", FullName: "A B", IsActive: true, IsAdmin: true}
	networkErr   = fmt.Errorf("%w: POST /auth/login: dial tcp: connection refused", identity.ErrTransport)
)

// testFixture holds all test dependencies
type testFixture struct {
	backend *identityfake.FakeBackend
	store   *storefake.FakeStore
	manager *session.Manager
	states  []session.State
	now     time.Time

	restoreFailures []error
}

func setupTestFixture(t *testing.T, options ...session.ManagerOption) *testFixture {
	t.Helper()

	f := &testFixture{
		backend: identityfake.NewFakeBackend(),
		store:   storefake.NewFakeStore(),
		now:     time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	options = append([]session.ManagerOption{
		session.WithNowTime(func() time.Time { return f.now }),
		session.WithRestoreFailurePolicy(func(ctx context.Context, m *session.Manager, cause error) {
			f.restoreFailures = append(f.restoreFailures, cause)
			session.DiscardOnRestoreFailure(ctx, m, cause)
		}),
	}, options...)

	m, err := session.NewManager(f.backend, f.store, options...)
	require.NoError(t, err)
	f.manager = m

	m.Subscribe(func(s session.State) {
		require.True(t, s.Valid(), "observed a half session: %+v", s)
		f.states = append(f.states, s)
	})
	return f
}

func (f *testFixture) seedStore(access, refresh string) {
	f.store.Seed(map[string]string{kvstore.AccessTokenKey: access, kvstore.RefreshTokenKey: refresh})
}

func (f *testFixture) restoreSignedIn(t *testing.T) {
	t.Helper()
	f.seedStore("t0", "r0")
	f.backend.Users["t0"] = farmerRecord
	require.NoError(t, f.manager.Restore(context.Background()))
	require.True(t, f.manager.State().Authenticated())
	f.backend.Reset()
	f.states = nil
}

func requireStoreEmpty(t *testing.T, store *storefake.FakeStore) {
	t.Helper()
	snapshot := store.Snapshot()
	require.NotContains(t, snapshot, kvstore.AccessTokenKey)
	require.NotContains(t, snapshot, kvstore.RefreshTokenKey)
}

func expiredJWT(t *testing.T, now time.Time) string {
	t.Helper()
	return jwtExpiringAt(t, now.Add(-time.Minute))
}

func jwtExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "1",
		"exp": exp.Unix(),
	}).SignedString([]byte("irrelevant"))
	require.NoError(t, err)
	return raw
}

type fakeVerifier struct {
	err   error
	calls int
}

func (v *fakeVerifier) Verify(context.Context, string) (*google.Claims, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return &google.Claims{Subject: "g-1", Email: "a@b.com"}, nil
}

func TestNewManager_Validation(t *testing.T) {
	_, err := session.NewManager(nil, storefake.NewFakeStore())
	require.Error(t, err)
	_, err = session.NewManager(identityfake.NewFakeBackend(), nil)
	require.Error(t, err)
}

func TestNewManager_StartsLoading(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, session.PhaseLoading, f.manager.State().Phase())
}

func TestRestore_NoStoredKeys(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.manager.Restore(context.Background()))

	s := f.manager.State()
	require.Nil(t, s.User)
	require.Nil(t, s.Credentials)
	require.False(t, s.IsLoading)
	require.Empty(t, f.backend.CallLog())
	require.Empty(t, f.restoreFailures)
}

func TestRestore_OnlyOneKeyStored(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Seed(map[string]string{kvstore.AccessTokenKey: "t1"})

	require.NoError(t, f.manager.Restore(context.Background()))

	require.Nil(t, f.manager.State().User)
	require.Empty(t, f.backend.CallLog())
}

func TestRestore_ValidTokens(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStore("t1", "r1")
	f.backend.Users["t1"] = farmerRecord

	require.NoError(t, f.manager.Restore(context.Background()))

	s := f.manager.State()
	require.Equal(t, &users.Identity{ID: "1", Email: "a@b.com", Name: "A B", Role: users.RoleFarmer}, s.User)
	require.Equal(t, &session.Credentials{AccessToken: "t1", RefreshToken: "r1"}, s.Credentials)
	require.False(t, s.IsLoading)
	require.Equal(t, []string{"me:t1"}, f.backend.CallLog())
}

func TestRestore_Idempotent(t *testing.T) {
	t.Run("signed in", func(t *testing.T) {
		f := setupTestFixture(t)
		f.seedStore("t1", "r1")
		f.backend.Users["t1"] = farmerRecord

		require.NoError(t, f.manager.Restore(context.Background()))
		first := f.manager.State()
		require.NoError(t, f.manager.Restore(context.Background()))
		require.Equal(t, first, f.manager.State())
	})

	t.Run("signed out", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.manager.Restore(context.Background()))
		first := f.manager.State()
		require.NoError(t, f.manager.Restore(context.Background()))
		require.Equal(t, first, f.manager.State())
	})
}

func TestRestore_FailClosed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *testFixture)
	}{
		{"transport failure", func(f *testFixture) {
			f.backend.CurrentUserErr = fmt.Errorf("%w: GET /auth/me: timeout", identity.ErrTransport)
		}},
		{"server error", func(f *testFixture) {
			f.backend.CurrentUserErr = &identity.APIError{StatusCode: 500, Detail: "Internal Server Error"}
		}},
		{"rejected token and rejected refresh", func(f *testFixture) {
			f.backend.RefreshErr = identityfake.Unauthorized(identity.PathRefresh)
		}},
		{"store unreadable", func(f *testFixture) {
			f.store.GetErr = kvstore.ErrSealed
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.seedStore("t1", "r1")
			tt.setup(f)

			require.NoError(t, f.manager.Restore(context.Background()))

			s := f.manager.State()
			require.Nil(t, s.User)
			require.Nil(t, s.Credentials)
			require.False(t, s.IsLoading)
			require.Len(t, f.restoreFailures, 1)
			require.Equal(t, [][]string{kvstore.CredentialKeys}, f.store.Removed)
			if f.store.GetErr == nil {
				requireStoreEmpty(t, f.store)
			}
		})
	}
}

func TestRestore_DefaultPolicyDiscards(t *testing.T) {
	f := identityfake.NewFakeBackend()
	store := storefake.NewFakeStore().Seed(map[string]string{kvstore.AccessTokenKey: "t1", kvstore.RefreshTokenKey: "r1"})

	m, err := session.NewManager(f, store)
	require.NoError(t, err)
	require.NoError(t, m.Restore(context.Background()))

	require.Nil(t, m.State().User)
	requireStoreEmpty(t, store)
}

func TestRestore_RefreshesRejectedAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStore("stale", "r1")
	f.backend.RefreshResponse = oauth2.NewTokenResponse("t2", "r2")
	f.backend.Users["t2"] = farmerRecord

	require.NoError(t, f.manager.Restore(context.Background()))

	s := f.manager.State()
	require.Equal(t, "1", s.User.ID)
	require.Equal(t, &session.Credentials{AccessToken: "t2", RefreshToken: "r2"}, s.Credentials)
	require.Equal(t, []string{"me:stale", "refresh:r1", "me:t2"}, f.backend.CallLog())
	require.Equal(t, map[string]string{kvstore.AccessTokenKey: "t2", kvstore.RefreshTokenKey: "r2"}, f.store.Snapshot())
	require.Empty(t, f.restoreFailures)
}

func TestRestore_RetriesOnlyOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStore("stale", "r1")
	f.backend.RefreshResponse = oauth2.NewTokenResponse("t2", "r2")

	require.NoError(t, f.manager.Restore(context.Background()))

	require.Nil(t, f.manager.State().User)
	require.Equal(t, []string{"me:stale", "refresh:r1", "me:t2"}, f.backend.CallLog())
	require.Len(t, f.restoreFailures, 1)
	requireStoreEmpty(t, f.store)
}

func TestRestore_ExpiredJWTSkipsLookup(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStore(expiredJWT(t, f.now), "r1")
	f.backend.RefreshResponse = oauth2.NewTokenResponse("t2", "r2")
	f.backend.Users["t2"] = adminRecord

	require.NoError(t, f.manager.Restore(context.Background()))

	require.Equal(t, users.RoleAdmin, f.manager.State().User.Role)
	require.Equal(t, []string{"refresh:r1", "me:t2"}, f.backend.CallLog())
}

func TestRestore_InspectorSkew(t *testing.T) {
	f := setupTestFixture(t, session.WithTokenInspector(token.NewInspector(30*time.Second)))
	f.seedStore(jwtExpiringAt(t, f.now.Add(10*time.Second)), "r1")
	f.backend.RefreshResponse = oauth2.NewTokenResponse("t2", "r2")
	f.backend.Users["t2"] = farmerRecord

	require.NoError(t, f.manager.Restore(context.Background()))

	require.True(t, f.manager.State().Authenticated())
	require.Equal(t, []string{"refresh:r1", "me:t2"}, f.backend.CallLog())
}

func TestRestore_CallerOwnedHolder(t *testing.T) {
	holder := session.NewHolder()
	var seen []session.Phase
	holder.Subscribe(func(s session.State) { seen = append(seen, s.Phase()) })

	backend := identityfake.NewFakeBackend()
	backend.Users["t1"] = farmerRecord
	store := storefake.NewFakeStore().Seed(map[string]string{kvstore.AccessTokenKey: "t1", kvstore.RefreshTokenKey: "r1"})
	m, err := session.NewManager(backend, store, session.WithStateHolder(holder))
	require.NoError(t, err)

	require.NoError(t, m.Restore(context.Background()))

	require.True(t, holder.State().Authenticated())
	require.Equal(t, "1", holder.State().User.ID)
	require.Equal(t, []session.Phase{session.PhaseLoading, session.PhaseAuthenticated}, seen)
}

func TestRestore_UnreadableFileStoreIsCleared(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	old, err := kvstore.NewFileStore(dir, kvstore.WithPassphrase("old"))
	require.NoError(t, err)
	require.NoError(t, old.Set(ctx, kvstore.AccessTokenKey, "t0"))
	require.NoError(t, old.Set(ctx, kvstore.RefreshTokenKey, "r0"))

	store, err := kvstore.NewFileStore(dir, kvstore.WithPassphrase("new"))
	require.NoError(t, err)
	backend := identityfake.NewFakeBackend()
	m, err := session.NewManager(backend, store)
	require.NoError(t, err)

	require.NoError(t, m.Restore(ctx))
	require.Nil(t, m.State().User)
	require.Empty(t, backend.CallLog())
	for _, k := range kvstore.CredentialKeys {
		_, ok, err := store.Get(ctx, k)
		require.NoError(t, err)
		require.False(t, ok)
	}

	backend.LoginResponse = oauth2.NewTokenResponse("t1", "r1")
	backend.Users["t1"] = farmerRecord
	require.NoError(t, m.SignInWithEmailPassword(ctx, "a@b.com", "secret"))

	reopened, err := kvstore.NewFileStore(dir, kvstore.WithPassphrase("new"))
	require.NoError(t, err)
	next, err := session.NewManager(backend, reopened)
	require.NoError(t, err)
	require.NoError(t, next.Restore(ctx))
	require.Equal(t, &session.Credentials{AccessToken: "t1", RefreshToken: "r1"}, next.State().Credentials)
}

func TestRestore_CancelledKeepsStore(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStore("t1", "r1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.backend.CurrentUserErr = fmt.Errorf("%w: %w", identity.ErrTransport, context.Canceled)

	err := f.manager.Restore(ctx)
	require.ErrorIs(t, err, context.Canceled)

	s := f.manager.State()
	require.Nil(t, s.User)
	require.False(t, s.IsLoading)
	require.Empty(t, f.restoreFailures)
	require.Len(t, f.store.Snapshot(), 2)
}

func TestSignInWithEmailPassword(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Restore(context.Background()))
	f.states = nil

	f.backend.LoginResponse = oauth2.NewTokenResponse("t1", "r1")
	f.backend.Users["t1"] = adminRecord

	require.NoError(t, f.manager.SignInWithEmailPassword(context.Background(), "a@b.com", "secret"))

	s := f.manager.State()
	require.Equal(t, users.RoleAdmin, s.User.Role)
	require.Equal(t, "2", s.User.ID)
	require.False(t, s.IsLoading)
	require.Equal(t, map[string]string{kvstore.AccessTokenKey: "t1", kvstore.RefreshTokenKey: "r1"}, f.store.Snapshot())
	require.Equal(t, []string{"login:a@b.com", "me:t1"}, f.backend.CallLog())

	require.Len(t, f.states, 3)
	require.Equal(t, session.PhaseLoading, f.states[0].Phase())
	require.Nil(t, f.states[0].User)
	require.True(t, f.states[1].IsLoading)
	require.NotNil(t, f.states[1].User)
	require.Equal(t, session.PhaseAuthenticated, f.states[2].Phase())
}

func TestSignInWithEmailPassword_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *testFixture)
		wantErr error
	}{
		{"network error", func(f *testFixture) {
			f.backend.LoginErr = networkErr
		}, identity.ErrTransport},
		{"bad credentials", func(f *testFixture) {
			f.backend.LoginErr = identityfake.Unauthorized(identity.PathLogin)
		}, apperrors.ErrInvalidCredentials},
		{"user lookup fails", func(f *testFixture) {
			f.backend.LoginResponse = oauth2.NewTokenResponse("t1", "r1")
		}, identity.ErrUnauthorized},
		{"incomplete pair", func(f *testFixture) {
			f.backend.LoginResponse = &oauth2.TokenResponse{AccessToken: oauth2.NewTokenResponse("t1", "").AccessToken}
		}, identity.ErrIncompleteTokens},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.restoreSignedIn(t)
			before := f.manager.State()
			storeBefore := f.store.Snapshot()
			tt.setup(f)

			err := f.manager.SignInWithEmailPassword(context.Background(), "a@b.com", "secret")
			require.ErrorIs(t, err, tt.wantErr)

			after := f.manager.State()
			require.False(t, after.IsLoading)
			after.IsLoading = before.IsLoading
			require.Equal(t, before, after)
			require.Equal(t, storeBefore, f.store.Snapshot())
		})
	}
}

func TestSignInWithEmailPassword_Validation(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Restore(context.Background()))
	f.states = nil

	for _, creds := range [][2]string{{"", "secret"}, {"a@b.com", ""}, {"   ", "secret"}} {
		err := f.manager.SignInWithEmailPassword(context.Background(), creds[0], creds[1])
		require.True(t, session.IsValidation(err))
		require.ErrorIs(t, err, apperrors.ErrValidation)
		require.Equal(t, "Please enter both email and password.", identity.UserMessage(err, "Login failed."))
	}
	require.Empty(t, f.backend.CallLog())
	require.Empty(t, f.states)
}

func TestSignInWithEmailPassword_PersistFailure(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Restore(context.Background()))
	f.backend.LoginResponse = oauth2.NewTokenResponse("t1", "r1")
	f.backend.Users["t1"] = farmerRecord
	f.store.SetErr = errors.New("disk full")

	err := f.manager.SignInWithEmailPassword(context.Background(), "a@b.com", "secret")
	require.Error(t, err)

	// In-memory session may run ahead of the store.
	require.True(t, f.manager.State().Authenticated())
	require.False(t, f.manager.State().IsLoading)
	require.Equal(t, [][]string{kvstore.CredentialKeys}, f.store.Removed)
}

func TestSignInWithGoogle(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		v := &fakeVerifier{}
		f := setupTestFixture(t, session.WithIDTokenVerifier(v))
		f.backend.GoogleResponse = oauth2.NewTokenResponse("g1", "gr1")
		f.backend.Users["g1"] = farmerRecord

		require.NoError(t, f.manager.SignInWithGoogle(context.Background(), "id-token"))

		require.Equal(t, 1, v.calls)
		require.Equal(t, users.RoleFarmer, f.manager.State().User.Role)
		require.Equal(t, []string{"google:id-token", "me:g1"}, f.backend.CallLog())
		require.Equal(t, "gr1", f.store.Snapshot()[kvstore.RefreshTokenKey])
	})

	t.Run("verifier rejects", func(t *testing.T) {
		v := &fakeVerifier{err: apperrors.ErrInvalidIDToken}
		f := setupTestFixture(t, session.WithIDTokenVerifier(v))
		f.restoreSignedIn(t)
		before := f.manager.State()

		err := f.manager.SignInWithGoogle(context.Background(), "forged")
		require.True(t, session.IsValidation(err))
		require.ErrorIs(t, err, apperrors.ErrInvalidIDToken)
		require.Empty(t, f.backend.CallLog())
		require.Equal(t, before.User, f.manager.State().User)
		require.False(t, f.manager.State().IsLoading)
	})

	t.Run("empty token", func(t *testing.T) {
		f := setupTestFixture(t)
		err := f.manager.SignInWithGoogle(context.Background(), " ")
		require.True(t, session.IsValidation(err))
		require.Empty(t, f.backend.CallLog())
	})

	t.Run("backend rejects", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.manager.Restore(context.Background()))
		f.backend.GoogleErr = identityfake.Unauthorized(identity.PathGoogle)

		err := f.manager.SignInWithGoogle(context.Background(), "id-token")
		require.ErrorIs(t, err, identity.ErrUnauthorized)
		require.Nil(t, f.manager.State().User)
		require.False(t, f.manager.State().IsLoading)
		require.Empty(t, f.store.Snapshot())
	})
}

func TestSignOut(t *testing.T) {
	f := setupTestFixture(t)
	f.restoreSignedIn(t)

	require.NoError(t, f.manager.SignOut(context.Background()))

	require.Nil(t, f.manager.State().User)
	require.Nil(t, f.manager.State().Credentials)
	requireStoreEmpty(t, f.store)
	require.Empty(t, f.backend.CallLog())
}

func TestSignOut_StoreFailureStillClearsState(t *testing.T) {
	f := setupTestFixture(t)
	f.restoreSignedIn(t)
	f.store.RemoveErr = errors.New("read-only filesystem")

	err := f.manager.SignOut(context.Background())
	require.Error(t, err)
	require.Nil(t, f.manager.State().User)
}

func TestSignInSignOutRestore_RoundTrip(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Restore(context.Background()))
	f.backend.LoginResponse = oauth2.NewTokenResponse("t1", "r1")
	f.backend.Users["t1"] = farmerRecord

	require.NoError(t, f.manager.SignInWithEmailPassword(context.Background(), "a@b.com", "secret"))
	require.NoError(t, f.manager.SignOut(context.Background()))
	require.NoError(t, f.manager.Restore(context.Background()))

	s := f.manager.State()
	require.Nil(t, s.User)
	require.Nil(t, s.Credentials)
	require.False(t, s.IsLoading)
	requireStoreEmpty(t, f.store)
}

func TestRegister(t *testing.T) {
	t.Run("registers then signs in", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.LoginResponse = oauth2.NewTokenResponse("t1", "r1")
		f.backend.Users["t1"] = farmerRecord

		err := f.manager.Register(context.Background(), session.Registration{
			Email: " a@b.com ", FullName: "A B", Password: "secret", ConfirmPassword: "secret",
		})
		require.NoError(t, err)
		require.Equal(t, []string{"register:a@b.com", "login:a@b.com", "me:t1"}, f.backend.CallLog())
		require.True(t, f.manager.State().Authenticated())
	})

	t.Run("registration failure never signs in", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.RegisterErr = &identity.APIError{StatusCode: 400, Detail: "Email already registered"}

		err := f.manager.Register(context.Background(), session.Registration{
			Email: "a@b.com", FullName: "A B", Password: "secret", ConfirmPassword: "secret",
		})
		require.Error(t, err)
		require.Equal(t, "Email already registered", identity.UserMessage(err, "Registration failed."))
		require.Equal(t, []string{"register:a@b.com"}, f.backend.CallLog())
		require.Nil(t, f.manager.State().User)
	})

	validation := []struct {
		name    string
		reg     session.Registration
		message string
	}{
		{"missing name", session.Registration{Email: "a@b.com", Password: "secret", ConfirmPassword: "secret"}, "Please fill all fields."},
		{"missing confirmation", session.Registration{Email: "a@b.com", FullName: "A B", Password: "secret"}, "Please fill all fields."},
		{"short password", session.Registration{Email: "a@b.com", FullName: "A B", Password: "12345", ConfirmPassword: "12345"}, "Password must be at least 6 characters."},
		{"short multibyte password", session.Registration{Email: "a@b.com", FullName: "A B", Password: "ééé", ConfirmPassword: "ééé"}, "Password must be at least 6 characters."},
		{"mismatch", session.Registration{Email: "a@b.com", FullName: "A B", Password: "secret", ConfirmPassword: "secret!"}, "Passwords do not match."},
	}
	for _, tt := range validation {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			err := f.manager.Register(context.Background(), tt.reg)
			require.True(t, session.IsValidation(err))
			require.Equal(t, tt.message, identity.UserMessage(err, ""))
			require.Empty(t, f.backend.CallLog())
		})
	}
}

func TestRefreshSession(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		f := setupTestFixture(t)
		require.ErrorIs(t, f.manager.RefreshSession(context.Background()), apperrors.ErrNoSession)
	})

	t.Run("rotates pair", func(t *testing.T) {
		f := setupTestFixture(t)
		f.restoreSignedIn(t)
		f.backend.RefreshResponse = oauth2.NewTokenResponse("t2", "r2")
		f.backend.Users["t2"] = farmerRecord

		require.NoError(t, f.manager.RefreshSession(context.Background()))
		require.Equal(t, &session.Credentials{AccessToken: "t2", RefreshToken: "r2"}, f.manager.State().Credentials)
		require.Equal(t, "t2", f.store.Snapshot()[kvstore.AccessTokenKey])
		require.Equal(t, []string{"refresh:r0", "me:t2"}, f.backend.CallLog())
	})

	t.Run("rejected refresh signs out", func(t *testing.T) {
		f := setupTestFixture(t)
		f.restoreSignedIn(t)

		err := f.manager.RefreshSession(context.Background())
		require.ErrorIs(t, err, identity.ErrUnauthorized)
		require.Nil(t, f.manager.State().User)
		requireStoreEmpty(t, f.store)
	})

	t.Run("transport failure keeps session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.restoreSignedIn(t)
		f.backend.RefreshErr = networkErr

		err := f.manager.RefreshSession(context.Background())
		require.ErrorIs(t, err, identity.ErrTransport)
		require.True(t, f.manager.State().Authenticated())
		require.False(t, f.manager.State().IsLoading)
		require.Len(t, f.store.Snapshot(), 2)
	})
}

func TestCallAuthorized(t *testing.T) {
	t.Run("retries once after refresh", func(t *testing.T) {
		f := setupTestFixture(t)
		f.restoreSignedIn(t)
		f.backend.RefreshResponse = oauth2.NewTokenResponse("t2", "r2")
		f.backend.Users["t2"] = farmerRecord

		var seen []string
		err := f.manager.CallAuthorized(context.Background(), func(_ context.Context, accessToken string) error {
			seen = append(seen, accessToken)
			if accessToken == "t0" {
				return identityfake.Unauthorized("/farms")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"t0", "t2"}, seen)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		f := setupTestFixture(t)
		f.restoreSignedIn(t)
		boom := errors.New("boom")

		err := f.manager.CallAuthorized(context.Background(), func(context.Context, string) error { return boom })
		require.ErrorIs(t, err, boom)
		require.Empty(t, f.backend.CallLog())
	})

	t.Run("no session", func(t *testing.T) {
		f := setupTestFixture(t)
		err := f.manager.CallAuthorized(context.Background(), func(context.Context, string) error { return nil })
		require.ErrorIs(t, err, apperrors.ErrNoSession)
	})
}
