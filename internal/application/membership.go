package application

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

type noopInviter struct{}

func (noopInviter) InviteToRespond(domain.ConversationID, domain.AgentID) {}

// Membership applies the hearing-range rule: agents join the conversation
// whose centroid is within range and leave once they drift out of it.
type Membership struct {
	registry     *ConversationRegistry
	turns        *TurnCoordinator
	world        ports.World
	hearingRange float64
	inviter      ports.Inviter
	logger       *log.Logger
}

func NewMembership(registry *ConversationRegistry, turns *TurnCoordinator, world ports.World, hearingRange float64, opts ...Option) *Membership {
	o := buildOptions(opts)

	return &Membership{
		registry:     registry,
		turns:        turns,
		world:        world,
		hearingRange: hearingRange,
		inviter:      noopInviter{},
		logger:       o.component("membership"),
	}
}

// SetInviter installs the decision-process hook that receives invitations.
func (m *Membership) SetInviter(inviter ports.Inviter) {
	if inviter == nil {
		inviter = noopInviter{}
	}
	m.inviter = inviter
}

func (m *Membership) HearingRange() float64 {
	return m.hearingRange
}

// OnAgentSpeak routes an utterance. A speaker already in a conversation talks
// there; otherwise it joins a conversation in range or opens one with the free
// listeners around it. With nobody to hear it the speech stays cosmetic and
// nil is returned.
func (m *Membership) OnAgentSpeak(agent domain.AgentID, pos domain.Vec2, text string, tokens int, now time.Time) *domain.Conversation {
	if conv := m.registry.ForAgent(agent); conv != nil {
		m.turns.Speak(conv, agent, text, tokens, now)
		return conv
	}

	if conv := m.registry.FindNearby(pos, m.hearingRange); conv != nil {
		if err := m.registry.Join(conv, agent); err == nil {
			m.turns.Speak(conv, agent, text, tokens, now)
			return conv
		}
	}

	listeners := m.freeListeners(agent, pos)
	if len(listeners) == 0 {
		m.logger.Debug("monologue", "agent", agent)
		m.turns.SpeakCosmetic(agent, text, tokens, now)
		return nil
	}

	conv := m.registry.Create(now)
	_ = m.registry.Join(conv, agent)
	for _, l := range listeners {
		_ = m.registry.Join(conv, l)
	}
	m.registry.RecomputeCentroid(conv, m.world)
	conv.AwaitingReply = true

	m.turns.Speak(conv, agent, text, tokens, now)
	for _, l := range listeners {
		m.inviter.InviteToRespond(conv.ID, l)
	}
	return conv
}

// Leave is the explicit departure signal.
func (m *Membership) Leave(agent domain.AgentID, now time.Time) bool {
	conv := m.registry.ForAgent(agent)
	if conv == nil {
		return false
	}
	m.turns.HandleDeparture(conv, agent, now)
	return true
}

// Update runs one membership pass: out-of-range and vanished participants
// leave, free agents in range join, then centroids are recomputed.
func (m *Membership) Update(now time.Time) {
	for _, conv := range m.registry.All() {
		for _, agent := range append([]domain.AgentID(nil), conv.Participants...) {
			pos, ok := m.world.Position(agent)
			if ok && pos.Dist(conv.Location) <= m.hearingRange {
				continue
			}
			if _, alive := m.registry.Get(conv.ID); !alive {
				break
			}
			m.turns.HandleDeparture(conv, agent, now)
		}
	}

	for _, agent := range m.world.Agents() {
		if m.registry.ForAgent(agent) != nil {
			continue
		}
		pos, ok := m.world.Position(agent)
		if !ok {
			continue
		}
		if conv := m.registry.FindNearby(pos, m.hearingRange); conv != nil {
			_ = m.registry.Join(conv, agent)
		}
	}

	for _, conv := range m.registry.All() {
		m.registry.RecomputeCentroid(conv, m.world)
	}
}

func (m *Membership) freeListeners(speaker domain.AgentID, pos domain.Vec2) []domain.AgentID {
	var out []domain.AgentID
	for _, agent := range m.world.Agents() {
		if agent == speaker || m.registry.ForAgent(agent) != nil {
			continue
		}
		p, ok := m.world.Position(agent)
		if !ok || p.Dist(pos) > m.hearingRange {
			continue
		}
		out = append(out, agent)
	}
	return out
}
