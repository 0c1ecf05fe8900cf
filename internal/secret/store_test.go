package secret

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore map[string]string

func (m mapStore) Get(key string) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(v), nil
}

func TestResolver(t *testing.T) {
	t.Setenv("DATAPIPE_TEST_PASSWORD", "s3cret")
	path := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

	r := NewResolver()
	r.Register("vault", mapStore{"db/crm": "from-vault"})

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"p@ss:word", "p@ss:word"},
		{"", ""},
		{"env:DATAPIPE_TEST_PASSWORD", "s3cret"},
		{"file:" + path, "from-file"},
		{"vault:db/crm", "from-vault"},
	}
	for _, tt := range tests {
		got, err := r.Resolve(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestResolverMissing(t *testing.T) {
	r := NewResolver()

	_, err := r.Resolve("env:DATAPIPE_TEST_UNSET_VARIABLE")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve("file:" + filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKeychainStoreCommandFailure(t *testing.T) {
	k := &KeychainStore{service: keychainService, command: filepath.Join(t.TempDir(), "no-such-binary")}
	_, err := k.Get("crm")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
