// Package scripted is an offline transport that replays per-agent lines
// after a fixed latency. It backs scenario runs and tests.
package scripted

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/parley/internal/adapters/transport"
	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

var ErrScriptedFailure = errors.New("scripted failure")

// FailLine makes the transport fail instead of answering when it comes up.
const FailLine = "!fail"

type Transport struct {
	latency time.Duration

	mu    sync.Mutex
	lines map[domain.AgentID][]string
	next  map[domain.AgentID]int
}

var _ ports.Transport = (*Transport)(nil)

func New(latency time.Duration, lines map[domain.AgentID][]string) *Transport {
	copied := make(map[domain.AgentID][]string, len(lines))
	for agent, l := range lines {
		copied[agent] = append([]string(nil), l...)
	}

	return &Transport{
		latency: latency,
		lines:   copied,
		next:    map[domain.AgentID]int{},
	}
}

// Send waits for the configured latency, then answers with the agent's next
// line, cycling when the script runs out.
func (t *Transport) Send(ctx context.Context, call ports.LLMCall) (domain.RawResponse, error) {
	if t.latency > 0 {
		timer := time.NewTimer(t.latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return domain.RawResponse{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return domain.RawResponse{}, err
	}

	line := t.nextLine(call.AgentID)
	if line == FailLine {
		return domain.RawResponse{}, fmt.Errorf("agent %s: %w", call.AgentID, ErrScriptedFailure)
	}

	return transport.Response(line, 0), nil
}

func (t *Transport) nextLine(agent domain.AgentID) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := t.lines[agent]
	if len(lines) == 0 {
		return fmt.Sprintf("%s nods along.", agent)
	}

	i := t.next[agent]
	t.next[agent] = i + 1
	return lines[i%len(lines)]
}
