// Package transport holds helpers shared by the LLM transport adapters.
package transport

import (
	"strings"

	"github.com/bnema/parley/internal/domain"
)

// SystemPrompt frames every provider call.
const SystemPrompt = "You are a character in a small social simulation. Stay in character and answer with a single short spoken line, without quotes or stage directions."

// EstimateTokens approximates a token count when a provider omits usage.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	// roughly four tokens per three words of English
	return (words*4 + 2) / 3
}

// Response builds a RawResponse, falling back to EstimateTokens when the
// provider reported no output tokens.
func Response(text string, tokens int64) domain.RawResponse {
	text = strings.TrimSpace(text)
	n := int(tokens)
	if n <= 0 {
		n = EstimateTokens(text)
	}
	return domain.RawResponse{Text: text, TokenCount: n}
}
