package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/parley/internal/domain"
)

func writeCredential(t *testing.T, root, key, value string) {
	t.Helper()

	path := filepath.Join(root, key)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(value), 0o600))
}

func TestSourceLookupReadsAndTrims(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeCredential(t, root, "openai/api_key", "sk-file\n")

	value, err := NewSource(root).Lookup(context.Background(), "openai/api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-file", value)
}

func TestSourceLookupMissingAndEmpty(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeCredential(t, root, "blank", "\n")
	source := NewSource(root)

	_, err := source.Lookup(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	_, err = source.Lookup(context.Background(), "blank")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestSourceLookupRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	source := NewSource(t.TempDir())
	for _, key := range []string{"", "  ", "../etc/passwd", "/etc/passwd", "."} {
		_, err := source.Lookup(context.Background(), key)
		require.Error(t, err, key)
		assert.NotErrorIs(t, err, domain.ErrCredentialNotFound, key)
	}
}
