// Package kvstore holds the durable key-value contract the session manager
// persists credentials through, plus its file, Redis and in-memory adapters.
package kvstore

import "context"

// Fixed keys under which the credential pair is persisted.
const (
	AccessTokenKey  = "@farm/access_token"
	RefreshTokenKey = "@farm/refresh_token"
)

// CredentialKeys lists both credential keys, in the order they are written.
var CredentialKeys = []string{AccessTokenKey, RefreshTokenKey}

// Store is a durable string key-value store that survives process restarts.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value under key.
	Set(ctx context.Context, key, value string) error

	// MultiRemove deletes every key in one step. Missing keys are not an error.
	MultiRemove(ctx context.Context, keys ...string) error
}
