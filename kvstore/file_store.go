package kvstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// DefaultFileName is the document FileStore keeps inside its folder.
const DefaultFileName = "session.json"

// quarantineSuffix is appended to a document that cannot be opened when it is
// moved aside.
const quarantineSuffix = ".corrupt"

const (
	sealedMagic = "FSV1"
	saltLength  = 16

	argonTime    = 1
	argonMemory  = 19 * 1024
	argonThreads = 1
)

// ErrSealed is returned when a sealed file cannot be opened with the
// configured passphrase, or a sealed file is read without one.
var ErrSealed = errors.New("kvstore: sealed file cannot be opened")

// ErrCorrupt is returned when the document is readable but not valid JSON.
var ErrCorrupt = errors.New("kvstore: document cannot be decoded")

var _ Store = (*FileStore)(nil)

// FileStore keeps all keys in one JSON document. Every write replaces the
// whole document through a temp file and rename, so a MultiRemove is never
// observed half applied.
//
// Get reports a document that cannot be opened with ErrSealed or ErrCorrupt.
// Set and MultiRemove move such a document aside to Path()+".corrupt" and
// continue from an empty document, so the store can always be cleared.
type FileStore struct {
	path       string
	passphrase []byte
	salt       []byte
	key        []byte
	logger     zerolog.Logger
	lock       sync.Mutex
}

// FileStoreOption defines a function type to modify the FileStore instance.
type FileStoreOption func(*FileStore)

// WithPassphrase seals the document with XChaCha20-Poly1305 under a key
// derived from passphrase with Argon2id.
func WithPassphrase(passphrase string) FileStoreOption {
	return func(fs *FileStore) {
		if passphrase != "" {
			fs.passphrase = []byte(passphrase)
		}
	}
}

func WithFileStoreLogger(logger zerolog.Logger) FileStoreOption {
	return func(fs *FileStore) {
		fs.logger = logger
	}
}

// NewFileStore creates the folder if needed and returns a store backed by
// folder/session.json.
func NewFileStore(folder string, options ...FileStoreOption) (*FileStore, error) {
	if folder == "" {
		return nil, errors.New("[NewFileStore] folder is required")
	}
	if err := os.MkdirAll(folder, 0o700); err != nil {
		return nil, fmt.Errorf("[NewFileStore] create folder: %w", err)
	}
	fs := &FileStore{path: filepath.Join(folder, DefaultFileName), logger: zerolog.Nop()}
	for _, opt := range options {
		opt(fs)
	}
	return fs, nil
}

// Path returns the location of the backing document.
func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	fs.lock.Lock()
	defer fs.lock.Unlock()

	values, err := fs.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (fs *FileStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.lock.Lock()
	defer fs.lock.Unlock()

	values, err := fs.loadForWrite()
	if err != nil {
		return err
	}
	values[key] = value
	return fs.save(values)
}

func (fs *FileStore) MultiRemove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.lock.Lock()
	defer fs.lock.Unlock()

	values, err := fs.loadForWrite()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := values[k]; ok {
			delete(values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return fs.save(values)
}

func (fs *FileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: read %s: %w", fs.path, err)
	}

	if bytes.HasPrefix(raw, []byte(sealedMagic)) {
		if raw, err = fs.open(raw); err != nil {
			return nil, err
		}
	} else if fs.passphrase != nil && len(raw) > 0 {
		return nil, fmt.Errorf("%w: file is not sealed", ErrSealed)
	}

	values := make(map[string]string)
	if len(raw) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, fs.path, err)
	}
	return values, nil
}

// loadForWrite is load, except that an unopenable document is quarantined
// and replaced by an empty one.
func (fs *FileStore) loadForWrite() (map[string]string, error) {
	values, err := fs.load()
	if err == nil {
		return values, nil
	}
	if !errors.Is(err, ErrSealed) && !errors.Is(err, ErrCorrupt) {
		return nil, err
	}

	quarantined := fs.path + quarantineSuffix
	if rnErr := os.Rename(fs.path, quarantined); rnErr != nil {
		return nil, fmt.Errorf("kvstore: move aside %s: %w", fs.path, rnErr)
	}
	fs.salt = nil
	fs.key = nil
	fs.logger.Warn().Err(err).Str("moved_to", quarantined).Msg("token document could not be opened, starting empty")
	return make(map[string]string), nil
}

func (fs *FileStore) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("kvstore: encode: %w", err)
	}
	if fs.passphrase != nil {
		if data, err = fs.seal(data); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("kvstore: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("kvstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("kvstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kvstore: close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("kvstore: chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("kvstore: replace %s: %w", fs.path, err)
	}
	return nil
}

// Sealed layout: magic | salt | nonce | ciphertext.
func (fs *FileStore) seal(plain []byte) ([]byte, error) {
	if fs.salt == nil {
		salt := make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("kvstore: generate salt: %w", err)
		}
		fs.salt = salt
		fs.key = nil
	}
	fs.key = fs.deriveKey(fs.salt)
	aead, err := chacha20poly1305.NewX(fs.key)
	if err != nil {
		return nil, fmt.Errorf("kvstore: init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("kvstore: generate nonce: %w", err)
	}

	out := make([]byte, 0, len(sealedMagic)+saltLength+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, sealedMagic...)
	out = append(out, fs.salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, []byte(sealedMagic)), nil
}

func (fs *FileStore) open(sealed []byte) ([]byte, error) {
	if fs.passphrase == nil {
		return nil, fmt.Errorf("%w: no passphrase configured", ErrSealed)
	}
	body := sealed[len(sealedMagic):]
	if len(body) < saltLength+chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: truncated", ErrSealed)
	}
	salt := body[:saltLength]
	nonce := body[saltLength : saltLength+chacha20poly1305.NonceSizeX]
	ciphertext := body[saltLength+chacha20poly1305.NonceSizeX:]

	key := fs.deriveKey(salt)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("kvstore: init cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(sealedMagic))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealed, err)
	}
	fs.salt = append([]byte(nil), salt...)
	fs.key = key
	return plain, nil
}

// deriveKey reuses the cached key while the salt is unchanged.
func (fs *FileStore) deriveKey(salt []byte) []byte {
	if fs.key != nil && bytes.Equal(salt, fs.salt) {
		return fs.key
	}
	return argon2.IDKey(fs.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}
