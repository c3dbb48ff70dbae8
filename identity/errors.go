package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/farm-session/internal/errors"
)

var (
	// ErrTransport wraps failures that never produced an HTTP response:
	// DNS, refused connections, timeouts.
	ErrTransport = errors.New("identity backend unreachable")

	// ErrUnauthorized matches any APIError with status 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIncompleteTokens is returned when a token response lacks either half
	// of the pair.
	ErrIncompleteTokens = fmt.Errorf("%w: backend returned an incomplete token pair", apperrors.ErrInvalidToken)
)

const (
	networkErrorMessage = "Cannot reach server. Check connection."
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string // backend "detail" message, or the status text
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

// Is lets errors.Is match ErrUnauthorized and apperrors.ErrInvalidCredentials
// against 401 responses.
func (e *APIError) Is(target error) bool {
	if e.StatusCode != http.StatusUnauthorized {
		return false
	}
	return target == ErrUnauthorized || target == apperrors.ErrInvalidCredentials
}

// newAPIError decodes a backend error body. "detail" may be a string or a
// structured validation report; the latter is kept as raw JSON.
func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{Method: method, Path: path, StatusCode: status, Detail: http.StatusText(status)}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return apiErr
	}
	var detail string
	if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
		if strings.TrimSpace(detail) != "" {
			apiErr.Detail = detail
		}
		return apiErr
	}
	apiErr.Detail = string(envelope.Detail)
	return apiErr
}

// UserMessage turns an error from a sign-in or register call into text fit
// for display. Errors carrying their own UserMessage win, then the backend's
// detail, then a connectivity hint for transport failures.
func UserMessage(err error, fallback string) string {
	var (
		apiErr *APIError
		shown  interface{ UserMessage() string }
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &shown):
		return shown.UserMessage()
	case errors.As(err, &apiErr) && apiErr.Detail != http.StatusText(apiErr.StatusCode):
		return apiErr.Detail
	case errors.Is(err, ErrTransport):
		return networkErrorMessage
	}
	return fallback
}
