package application

import (
	"container/heap"

	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

// PromptBuilder renders a request payload against the world as it is at
// dispatch time.
type PromptBuilder interface {
	Build(world ports.World) string
}

// PromptFunc adapts a plain function to PromptBuilder.
type PromptFunc func(world ports.World) string

func (f PromptFunc) Build(world ports.World) string {
	return f(world)
}

// StaticPrompt is a PromptBuilder for payloads that do not depend on world state.
type StaticPrompt string

func (p StaticPrompt) Build(ports.World) string {
	return string(p)
}

type LLMRequest struct {
	ID             domain.RequestID
	AgentID        domain.AgentID
	ConversationID domain.ConversationID
	Prompt         PromptBuilder
	LLMType        domain.LLMType
	Priority       domain.Priority
	EnqueuedAtTick uint64
	OnComplete     func(domain.Completion)
}

type queueEntry struct {
	req   LLMRequest
	index int
}

type entryHeap []*queueEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority > h[j].req.Priority
	}
	return h[i].req.ID < h[j].req.ID
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	entry := x.(*queueEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

// RequestQueue orders pending requests by priority band, then by enqueue
// order. It is not safe for concurrent use.
type RequestQueue struct {
	entries entryHeap
	byID    map[domain.RequestID]*queueEntry
	nextID  domain.RequestID
}

func NewRequestQueue() *RequestQueue {
	return &RequestQueue{byID: map[domain.RequestID]*queueEntry{}}
}

// Push assigns the next request id and inserts req.
func (q *RequestQueue) Push(req LLMRequest) domain.RequestID {
	q.nextID++
	req.ID = q.nextID

	entry := &queueEntry{req: req}
	heap.Push(&q.entries, entry)
	q.byID[req.ID] = entry
	return req.ID
}

func (q *RequestQueue) Peek() (LLMRequest, bool) {
	if len(q.entries) == 0 {
		return LLMRequest{}, false
	}
	return q.entries[0].req, true
}

func (q *RequestQueue) Pop() (LLMRequest, bool) {
	if len(q.entries) == 0 {
		return LLMRequest{}, false
	}
	entry := heap.Pop(&q.entries).(*queueEntry)
	delete(q.byID, entry.req.ID)
	return entry.req, true
}

func (q *RequestQueue) Remove(id domain.RequestID) bool {
	entry, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.entries, entry.index)
	delete(q.byID, id)
	return true
}

// RemoveAgent drops every pending request owned by agent and returns how many
// were removed.
func (q *RequestQueue) RemoveAgent(agent domain.AgentID) int {
	var ids []domain.RequestID
	for _, entry := range q.entries {
		if entry.req.AgentID == agent {
			ids = append(ids, entry.req.ID)
		}
	}
	for _, id := range ids {
		q.Remove(id)
	}
	return len(ids)
}

func (q *RequestQueue) Contains(id domain.RequestID) bool {
	_, ok := q.byID[id]
	return ok
}

func (q *RequestQueue) Len() int {
	return len(q.entries)
}

// CountByBand reports pending requests per priority label.
func (q *RequestQueue) CountByBand() map[string]int {
	counts := map[string]int{}
	for _, entry := range q.entries {
		counts[entry.req.Priority.Label()]++
	}
	return counts
}

// Clear empties the queue. Request ids keep increasing.
func (q *RequestQueue) Clear() {
	q.entries = nil
	q.byID = map[domain.RequestID]*queueEntry{}
}
