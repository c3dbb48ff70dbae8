package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/farm-session/oauth2"
	"github.com/rs/zerolog"
	xoauth2 "golang.org/x/oauth2"
)

const (
	defaultTimeout   = 10 * time.Second
	maxErrorBodySize = 64 << 10
	requestIDHeader  = "X-Request-ID"
)

var _ Backend = (*Client)(nil)

// Client is the HTTP implementation of Backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     zerolog.Logger
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithTimeout bounds every request. Zero or negative keeps the default.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client (primarily for testing)
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[identity.NewClient] invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func (c *Client) Login(ctx context.Context, req oauth2.LoginRequest) (*oauth2.TokenResponse, error) {
	return c.tokenCall(ctx, PathLogin, req)
}

func (c *Client) GoogleLogin(ctx context.Context, req oauth2.GoogleLoginRequest) (*oauth2.TokenResponse, error) {
	return c.tokenCall(ctx, PathGoogle, req)
}

func (c *Client) Refresh(ctx context.Context, req oauth2.RefreshRequest) (*oauth2.TokenResponse, error) {
	return c.tokenCall(ctx, PathRefresh, req)
}

func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*oauth2.BackendUser, error) {
	var user oauth2.BackendUser
	if err := c.do(ctx, http.MethodGet, PathMe, nil, accessToken, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Register(ctx context.Context, req oauth2.RegisterRequest) (*oauth2.BackendUser, error) {
	var user oauth2.BackendUser
	if err := c.do(ctx, http.MethodPost, PathRegister, req, "", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) tokenCall(ctx context.Context, path string, body any) (*oauth2.TokenResponse, error) {
	var tr oauth2.TokenResponse
	if err := c.do(ctx, http.MethodPost, path, body, "", &tr); err != nil {
		return nil, err
	}
	if !tr.Complete() {
		return nil, fmt.Errorf("identity: %s: %w", path, ErrIncompleteTokens)
	}
	return &tr, nil
}

// do sends one JSON request. When accessToken is set the request goes through
// an oauth2 transport that adds the bearer header.
func (c *Client) do(ctx context.Context, method, path string, body any, accessToken string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("identity: encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("identity: build %s request: %w", path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.clientFor(ctx, accessToken).Do(req)
	if err != nil {
		c.logger.Debug().Str("request_id", requestID).Str("method", method).Str("path", path).Err(err).Msg("identity request failed")
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(started)).
		Msg("identity request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return newAPIError(method, path, resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
		}
		return fmt.Errorf("identity: decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) clientFor(ctx context.Context, accessToken string) *http.Client {
	if accessToken == "" {
		return c.httpClient
	}
	ctx = context.WithValue(ctx, xoauth2.HTTPClient, c.httpClient)
	return xoauth2.NewClient(ctx, xoauth2.StaticTokenSource(&xoauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}
