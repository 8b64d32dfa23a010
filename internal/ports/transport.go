package ports

import (
	"context"

	"github.com/bnema/parley/internal/domain"
)

type LLMCall struct {
	RequestID domain.RequestID
	AgentID   domain.AgentID
	LLMType   domain.LLMType
	Prompt    string
}

// Transport sends one prompt to a language model. Implementations may be
// called from several goroutines at once.
type Transport interface {
	Send(ctx context.Context, call LLMCall) (domain.RawResponse, error)
}
