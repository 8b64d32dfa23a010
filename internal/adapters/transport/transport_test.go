package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bnema/parley/internal/domain"
)

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	assert.Zero(t, EstimateTokens("  "))
	assert.Equal(t, 2, EstimateTokens("hello"))
	assert.Equal(t, 4, EstimateTokens("one two three"))
}

func TestResponse(t *testing.T) {
	t.Parallel()

	assert.Equal(t, domain.RawResponse{Text: "hi there", TokenCount: 7}, Response(" hi there\n", 7))
	assert.Equal(t, domain.RawResponse{Text: "one two three", TokenCount: 4}, Response("one two three", 0))
}
