package storefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/farm-session/kvstore"
)

var _ kvstore.Store = (*FakeStore)(nil)

// FakeStore is an in-memory kvstore.Store with failure injection.
type FakeStore struct {
	values map[string]string
	lock   sync.RWMutex

	GetErr    error
	SetErr    error
	RemoveErr error

	Removed [][]string // every MultiRemove call, in order
}

func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string]string)}
}

// Seed writes values directly, bypassing SetErr.
func (fs *FakeStore) Seed(values map[string]string) *FakeStore {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	for k, v := range values {
		fs.values[k] = v
	}
	return fs
}

// Snapshot returns a copy of the stored values.
func (fs *FakeStore) Snapshot() map[string]string {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	out := make(map[string]string, len(fs.values))
	for k, v := range fs.values {
		out[k] = v
	}
	return out
}

func (fs *FakeStore) Get(_ context.Context, key string) (string, bool, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	if fs.GetErr != nil {
		return "", false, fs.GetErr
	}
	v, ok := fs.values[key]
	return v, ok, nil
}

func (fs *FakeStore) Set(_ context.Context, key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.SetErr != nil {
		return fs.SetErr
	}
	fs.values[key] = value
	return nil
}

func (fs *FakeStore) MultiRemove(_ context.Context, keys ...string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.Removed = append(fs.Removed, append([]string(nil), keys...))
	if fs.RemoveErr != nil {
		return fs.RemoveErr
	}
	for _, k := range keys {
		delete(fs.values, k)
	}
	return nil
}
