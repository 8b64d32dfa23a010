package env

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/parley/internal/domain"
)

func TestVarName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want string
	}{
		{key: "openai/api_key", want: "OPENAI_API_KEY"},
		{key: "anthropic-api-key", want: "ANTHROPIC_API_KEY"},
		{key: " gemini.api_key ", want: "GEMINI_API_KEY"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VarName(tt.key))
	}
}

func TestSourceLookup(t *testing.T) {
	t.Parallel()

	source := &Source{lookup: func(key string) (string, bool) {
		switch key {
		case "OPENAI_API_KEY":
			return "sk-test\n", true
		case "EMPTY_KEY":
			return "  ", true
		}
		return "", false
	}}

	value, err := source.Lookup(context.Background(), "openai/api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", value)

	_, err = source.Lookup(context.Background(), "empty/key")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	_, err = source.Lookup(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestSourceLookupUsesProcessEnvironment(t *testing.T) {
	t.Setenv("PARLEY_TEST_SECRET", "from-env")

	value, err := NewSource().Lookup(context.Background(), "parley/test/secret")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)
}

func TestSourceLookupHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSource().Lookup(ctx, "openai/api_key")
	assert.ErrorIs(t, err, context.Canceled)
}
