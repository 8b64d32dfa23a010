package application

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

// ConversationRegistry owns the active conversations and the agent to
// conversation index that keeps every agent in at most one of them.
type ConversationRegistry struct {
	conversations map[domain.ConversationID]*domain.Conversation
	order         []domain.ConversationID
	byAgent       map[domain.AgentID]domain.ConversationID
	newID         func() domain.ConversationID
	logger        *log.Logger
	active        atomic.Int64
}

func NewConversationRegistry(opts ...Option) *ConversationRegistry {
	o := buildOptions(opts)

	r := &ConversationRegistry{
		conversations: map[domain.ConversationID]*domain.Conversation{},
		byAgent:       map[domain.AgentID]domain.ConversationID{},
		newID: func() domain.ConversationID {
			return domain.ConversationID(uuid.NewString())
		},
		logger: o.component("conversations"),
	}
	r.registerMetrics(o.meter("conversations"))
	return r
}

func (r *ConversationRegistry) Create(now time.Time) *domain.Conversation {
	conv := domain.NewConversation(r.newID(), now)
	r.conversations[conv.ID] = conv
	r.order = append(r.order, conv.ID)
	r.active.Store(int64(len(r.order)))

	r.logger.Info("conversation created", "conversation", conv.ID)
	return conv
}

func (r *ConversationRegistry) Get(id domain.ConversationID) (*domain.Conversation, bool) {
	conv, ok := r.conversations[id]
	return conv, ok
}

// ForAgent returns the conversation agent belongs to, or nil.
func (r *ConversationRegistry) ForAgent(agent domain.AgentID) *domain.Conversation {
	id, ok := r.byAgent[agent]
	if !ok {
		return nil
	}
	return r.conversations[id]
}

// All returns the active conversations in creation order. The slice is a copy.
func (r *ConversationRegistry) All() []*domain.Conversation {
	out := make([]*domain.Conversation, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.conversations[id])
	}
	return out
}

func (r *ConversationRegistry) Len() int {
	return len(r.order)
}

// FindNearby returns the conversation whose centroid is closest to pos and
// within radius. Ties go to the older conversation.
func (r *ConversationRegistry) FindNearby(pos domain.Vec2, radius float64) *domain.Conversation {
	var (
		best     *domain.Conversation
		bestDist float64
	)
	for _, id := range r.order {
		conv := r.conversations[id]
		d := pos.Dist(conv.Location)
		if d > radius {
			continue
		}
		if best == nil || d < bestDist {
			best, bestDist = conv, d
		}
	}
	return best
}

func (r *ConversationRegistry) Join(conv *domain.Conversation, agent domain.AgentID) error {
	if _, ok := r.conversations[conv.ID]; !ok {
		return domain.ErrConversationNotFound
	}
	if current, ok := r.byAgent[agent]; ok {
		if current == conv.ID {
			return nil
		}
		return domain.ErrInConversation
	}

	conv.AddParticipant(agent)
	r.byAgent[agent] = conv.ID
	r.logger.Debug("agent joined", "conversation", conv.ID, "agent", agent)
	return nil
}

// Leave removes agent from conv. When the last participant leaves the
// conversation is deleted and deleted is true.
func (r *ConversationRegistry) Leave(conv *domain.Conversation, agent domain.AgentID) (deleted bool) {
	if !conv.RemoveParticipant(agent) {
		return false
	}
	delete(r.byAgent, agent)
	r.logger.Debug("agent left", "conversation", conv.ID, "agent", agent)

	if len(conv.Participants) == 0 {
		r.Remove(conv.ID)
		return true
	}
	return false
}

// Remove deletes a conversation and releases all of its participants.
func (r *ConversationRegistry) Remove(id domain.ConversationID) {
	conv, ok := r.conversations[id]
	if !ok {
		return
	}
	for _, agent := range conv.Participants {
		if r.byAgent[agent] == id {
			delete(r.byAgent, agent)
		}
	}
	delete(r.conversations, id)
	r.order = slices.DeleteFunc(r.order, func(existing domain.ConversationID) bool {
		return existing == id
	})
	r.active.Store(int64(len(r.order)))

	r.logger.Info("conversation removed", "conversation", id, "utterances", len(conv.History))
}

// RecomputeCentroid sets conv.Location to the mean participant position.
// Participants missing from the world are ignored.
func (r *ConversationRegistry) RecomputeCentroid(conv *domain.Conversation, world ports.World) {
	points := make([]domain.Vec2, 0, len(conv.Participants))
	for _, agent := range conv.Participants {
		if pos, ok := world.Position(agent); ok {
			points = append(points, pos)
		}
	}
	if len(points) == 0 {
		return
	}
	conv.Location = domain.Centroid(points)
}

func (r *ConversationRegistry) Reset() {
	r.conversations = map[domain.ConversationID]*domain.Conversation{}
	r.order = nil
	r.byAgent = map[domain.AgentID]domain.ConversationID{}
	r.active.Store(0)
}

func (r *ConversationRegistry) registerMetrics(meter metric.Meter) {
	_, _ = meter.Int64ObservableGauge("parley.conversations.active",
		metric.WithDescription("Conversations currently registered"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.active.Load())
			return nil
		}),
	)
}
