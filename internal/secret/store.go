package secret

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound is returned when a referenced secret does not exist.
var ErrNotFound = errors.New("secret not found")

// SecretStore looks up sensitive values such as database passwords.
type SecretStore interface {
	// Get returns the secret stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)
}

// EnvStore reads secrets from environment variables.
type EnvStore struct{}

func (EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, fmt.Errorf("%w: environment variable %s", ErrNotFound, key)
	}
	return []byte(v), nil
}

// FileStore reads secrets from files, e.g. mounted container secrets.
// Trailing newlines are stripped.
type FileStore struct{}

func (FileStore) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read secret: %w", err)
	}
	return []byte(strings.TrimRight(string(data), "\r\n")), nil
}

// Resolver expands secret references of the form "<scheme>:<key>".
type Resolver struct {
	stores map[string]SecretStore
}

// NewResolver returns a resolver for the env, file and keychain schemes.
func NewResolver() *Resolver {
	return &Resolver{stores: map[string]SecretStore{
		"env":      EnvStore{},
		"file":     FileStore{},
		"keychain": NewKeychainStore(),
	}}
}

// Register adds or replaces the store behind scheme.
func (r *Resolver) Register(scheme string, store SecretStore) {
	r.stores[scheme] = store
}

// Resolve returns the secret a reference points to. Values without a
// registered scheme are returned unchanged.
func (r *Resolver) Resolve(value string) (string, error) {
	scheme, key, ok := strings.Cut(value, ":")
	if !ok {
		return value, nil
	}
	store, ok := r.stores[scheme]
	if !ok {
		return value, nil
	}
	secret, err := store.Get(key)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}
