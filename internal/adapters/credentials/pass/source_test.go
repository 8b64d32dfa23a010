package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/parley/internal/domain"
)

func TestSourceLookupUsesPassShowUnderPrefix(t *testing.T) {
	t.Parallel()

	source := &Source{
		prefix: "parley",
		run: func(ctx context.Context, args ...string) (string, string, error) {
			assert.Equal(t, []string{"show", "parley/openai/api_key"}, args)
			return "sk-pass\nuser: someone\n", "", nil
		},
	}

	value, err := source.Lookup(context.Background(), "openai/api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-pass", value)
}

func TestNewSourceDefaultsPrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultPrefix, NewSource(" ").prefix)
	assert.Equal(t, "team", NewSource("team").prefix)
}

func TestSourceLookupErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stdout   string
		stderr   string
		err      error
		notFound bool
		wantErr  error
	}{
		{
			name:     "missing entry",
			stderr:   "Error: parley/openai/api_key is not in the password store.",
			err:      errors.New("exit status 1"),
			notFound: true,
		},
		{
			name:     "empty entry",
			stdout:   "\n",
			notFound: true,
		},
		{
			name:    "binary missing",
			err:     ErrUnavailable,
			wantErr: ErrUnavailable,
		},
		{
			name:   "gpg failure",
			stderr: "gpg: decryption failed",
			err:    errors.New("exit status 2"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			source := &Source{
				prefix: "parley",
				run: func(context.Context, ...string) (string, string, error) {
					return tt.stdout, tt.stderr, tt.err
				},
			}

			_, err := source.Lookup(context.Background(), "openai/api_key")
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, domain.ErrCredentialNotFound))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.stderr != "" && !tt.notFound {
				assert.Contains(t, err.Error(), tt.stderr)
			}
		})
	}
}
