package application

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

type fakeAgent struct {
	pos   domain.Vec2
	greg  float64
	force domain.Vec2
}

type fakeWorld struct {
	order  []domain.AgentID
	agents map[domain.AgentID]*fakeAgent
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{agents: map[domain.AgentID]*fakeAgent{}}
}

func (w *fakeWorld) add(id domain.AgentID, x, y, greg float64) *fakeWorld {
	if _, ok := w.agents[id]; !ok {
		w.order = append(w.order, id)
	}
	w.agents[id] = &fakeAgent{pos: domain.Vec2{X: x, Y: y}, greg: greg}
	return w
}

func (w *fakeWorld) move(id domain.AgentID, x, y float64) {
	w.agents[id].pos = domain.Vec2{X: x, Y: y}
}

func (w *fakeWorld) remove(id domain.AgentID) {
	delete(w.agents, id)
	w.order = slices.DeleteFunc(w.order, func(a domain.AgentID) bool { return a == id })
}

func (w *fakeWorld) Exists(id domain.AgentID) bool {
	_, ok := w.agents[id]
	return ok
}

func (w *fakeWorld) Position(id domain.AgentID) (domain.Vec2, bool) {
	a, ok := w.agents[id]
	if !ok {
		return domain.Vec2{}, false
	}
	return a.pos, true
}

func (w *fakeWorld) Gregariousness(id domain.AgentID) float64 {
	if a, ok := w.agents[id]; ok {
		return a.greg
	}
	return 0
}

func (w *fakeWorld) Agents() []domain.AgentID {
	return append([]domain.AgentID(nil), w.order...)
}

func (w *fakeWorld) ApplyForce(id domain.AgentID, force domain.Vec2) {
	if a, ok := w.agents[id]; ok {
		a.force = a.force.Add(force)
	}
}

// fakeTransport answers synchronously from a per-agent reply table.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []ports.LLMCall
	replies map[domain.AgentID]domain.RawResponse
	fail    map[domain.AgentID]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		replies: map[domain.AgentID]domain.RawResponse{},
		fail:    map[domain.AgentID]error{},
	}
}

func (t *fakeTransport) Send(_ context.Context, call ports.LLMCall) (domain.RawResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, call)
	if err, ok := t.fail[call.AgentID]; ok {
		return domain.RawResponse{}, err
	}
	if r, ok := t.replies[call.AgentID]; ok {
		return r, nil
	}
	return domain.RawResponse{Text: "ok", TokenCount: 2}, nil
}

func (t *fakeTransport) Calls() []ports.LLMCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ports.LLMCall(nil), t.calls...)
}

type mockInviter struct {
	mock.Mock
}

func (m *mockInviter) InviteToRespond(conversationID domain.ConversationID, agentID domain.AgentID) {
	m.Called(conversationID, agentID)
}

// recordingScheduler stands in for the Scheduler inside turn tests.
type recordingScheduler struct {
	next      domain.RequestID
	requests  map[domain.RequestID]LLMRequest
	cancelled []domain.RequestID
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{requests: map[domain.RequestID]LLMRequest{}}
}

func (s *recordingScheduler) Enqueue(req LLMRequest) domain.RequestID {
	s.next++
	req.ID = s.next
	s.requests[req.ID] = req
	return req.ID
}

func (s *recordingScheduler) CancelRequest(id domain.RequestID) bool {
	if _, ok := s.requests[id]; !ok {
		return false
	}
	delete(s.requests, id)
	s.cancelled = append(s.cancelled, id)
	return true
}

func (s *recordingScheduler) complete(id domain.RequestID, text string, tokens int, now time.Time) {
	req := s.requests[id]
	delete(s.requests, id)
	req.OnComplete(domain.Completion{
		RequestID:   id,
		AgentID:     req.AgentID,
		Response:    domain.RawResponse{Text: text, TokenCount: tokens},
		CompletedAt: now,
	})
}
