package identityfake

import (
	"context"
	"net/http"
	"sync"

	"github.com/jrsteele09/farm-session/identity"
	"github.com/jrsteele09/farm-session/oauth2"
)

var _ identity.Backend = (*FakeBackend)(nil)

// FakeBackend is a scriptable identity.Backend. CurrentUser answers from
// Users keyed by access token and returns a 401 APIError for unknown tokens.
type FakeBackend struct {
	lock sync.Mutex

	LoginResponse   *oauth2.TokenResponse
	LoginErr        error
	GoogleResponse  *oauth2.TokenResponse
	GoogleErr       error
	RefreshResponse *oauth2.TokenResponse
	RefreshErr      error
	RegisterErr     error
	CurrentUserErr  error

	Users map[string]oauth2.BackendUser

	Calls []string
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{Users: make(map[string]oauth2.BackendUser)}
}

// Unauthorized builds the error the real client returns for a 401.
func Unauthorized(path string) error {
	method := http.MethodPost
	if path == identity.PathMe {
		method = http.MethodGet
	}
	return &identity.APIError{Method: method, Path: path, StatusCode: http.StatusUnauthorized, Detail: "Could not validate credentials"}
}

func (fb *FakeBackend) Login(_ context.Context, req oauth2.LoginRequest) (*oauth2.TokenResponse, error) {
	fb.record("login:" + req.Email)
	if fb.LoginErr != nil {
		return nil, fb.LoginErr
	}
	return fb.LoginResponse, nil
}

func (fb *FakeBackend) GoogleLogin(_ context.Context, req oauth2.GoogleLoginRequest) (*oauth2.TokenResponse, error) {
	fb.record("google:" + req.IDToken)
	if fb.GoogleErr != nil {
		return nil, fb.GoogleErr
	}
	return fb.GoogleResponse, nil
}

func (fb *FakeBackend) CurrentUser(_ context.Context, accessToken string) (*oauth2.BackendUser, error) {
	fb.record("me:" + accessToken)
	if fb.CurrentUserErr != nil {
		return nil, fb.CurrentUserErr
	}
	fb.lock.Lock()
	defer fb.lock.Unlock()
	u, ok := fb.Users[accessToken]
	if !ok {
		return nil, Unauthorized(identity.PathMe)
	}
	return &u, nil
}

func (fb *FakeBackend) Refresh(_ context.Context, req oauth2.RefreshRequest) (*oauth2.TokenResponse, error) {
	fb.record("refresh:" + req.RefreshToken)
	if fb.RefreshErr != nil {
		return nil, fb.RefreshErr
	}
	if fb.RefreshResponse == nil {
		return nil, Unauthorized(identity.PathRefresh)
	}
	return fb.RefreshResponse, nil
}

func (fb *FakeBackend) Register(_ context.Context, req oauth2.RegisterRequest) (*oauth2.BackendUser, error) {
	fb.record("register:" + req.Email)
	if fb.RegisterErr != nil {
		return nil, fb.RegisterErr
	}
	return &oauth2.BackendUser{ID: 7, Email: req.Email, FullName: req.FullName, IsActive: true}, nil
}

// CallLog returns a copy of the recorded calls.
func (fb *FakeBackend) CallLog() []string {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return append([]string(nil), fb.Calls...)
}

func (fb *FakeBackend) Reset() {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.Calls = nil
}

func (fb *FakeBackend) record(call string) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.Calls = append(fb.Calls, call)
}
