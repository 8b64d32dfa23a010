// Package router dispatches LLM calls to the transport registered for the
// call's LLMType.
package router

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/logger"
	"github.com/bnema/parley/internal/ports"
)

type Router struct {
	fallback domain.LLMType
	logger   *log.Logger

	mu         sync.RWMutex
	transports map[domain.LLMType]ports.Transport
}

var _ ports.Transport = (*Router)(nil)

// New builds a router. Calls with an empty LLMType go to fallback.
func New(fallback domain.LLMType, l *log.Logger) *Router {
	return &Router{
		fallback:   fallback.Normalize(),
		logger:     logger.Component(l, "router"),
		transports: map[domain.LLMType]ports.Transport{},
	}
}

func (r *Router) Register(llmType domain.LLMType, t ports.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[llmType.Normalize()] = t
}

// Types lists registered LLM types in sorted order.
func (r *Router) Types() []domain.LLMType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.LLMType, 0, len(r.transports))
	for t := range r.transports {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (r *Router) Has(llmType domain.LLMType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.transports[r.resolve(llmType)]
	return ok
}

func (r *Router) Send(ctx context.Context, call ports.LLMCall) (domain.RawResponse, error) {
	llmType := r.resolve(call.LLMType)

	r.mu.RLock()
	t, ok := r.transports[llmType]
	r.mu.RUnlock()
	if !ok {
		return domain.RawResponse{}, fmt.Errorf("route %q: %w", llmType, domain.ErrUnknownLLMType)
	}

	r.logger.Debug("routing call", "request", call.RequestID, "type", llmType)
	return t.Send(ctx, call)
}

func (r *Router) resolve(llmType domain.LLMType) domain.LLMType {
	llmType = llmType.Normalize()
	if llmType == "" {
		return r.fallback
	}
	return llmType
}
