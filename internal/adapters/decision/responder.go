// Package decision is a small rule-based decision process for scenario runs.
// It answers conversation invitations, keeps conversations going for a few
// rounds and makes free agents think aloud now and then.
package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bnema/parley/internal/application"
	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/logger"
	"github.com/bnema/parley/internal/ports"
)

// Population is the world view the responder reasons over.
type Population interface {
	ports.World
	Name(id domain.AgentID) string
	LLMType(id domain.AgentID) domain.LLMType
	IsHungry(id domain.AgentID) bool
}

// Simulation is the slice of application.Simulation the responder drives.
type Simulation interface {
	Enqueue(req application.LLMRequest) domain.RequestID
	OnAgentSpeak(agent domain.AgentID, text string, tokens int, now time.Time) (*domain.Conversation, error)
	ConversationFor(agent domain.AgentID) *domain.Conversation
	JoinQueue(id domain.ConversationID, agent domain.AgentID) error
	SpeakingFor(agent domain.AgentID) (domain.SpeakingState, bool)
}

type Config struct {
	ReplyThreshold float64
	ThinkInterval  time.Duration
	// MaxReplies caps how often one agent queues in one conversation.
	MaxReplies   int
	HearingRange float64
}

type Responder struct {
	cfg    Config
	sim    Simulation
	world  Population
	logger *log.Logger

	nextThink map[domain.AgentID]time.Time
	thinking  map[domain.AgentID]domain.RequestID
	replies   map[domain.ConversationID]map[domain.AgentID]int
	heard     map[hearing]int
}

type hearing struct {
	conv  domain.ConversationID
	agent domain.AgentID
}

var _ ports.Inviter = (*Responder)(nil)

func New(cfg Config, sim Simulation, world Population, l *log.Logger) *Responder {
	if cfg.MaxReplies <= 0 {
		cfg.MaxReplies = 2
	}

	return &Responder{
		cfg:       cfg,
		sim:       sim,
		world:     world,
		logger:    logger.Component(l, "decision"),
		nextThink: map[domain.AgentID]time.Time{},
		thinking:  map[domain.AgentID]domain.RequestID{},
		replies:   map[domain.ConversationID]map[domain.AgentID]int{},
		heard:     map[hearing]int{},
	}
}

// InviteToRespond queues agent in the conversation when it is sociable enough.
func (r *Responder) InviteToRespond(id domain.ConversationID, agent domain.AgentID) {
	if r.world.Gregariousness(agent) < r.cfg.ReplyThreshold {
		r.logger.Debug("invitation declined", "conversation", id, "agent", agent)
		return
	}
	r.join(id, agent)
}

// Tick lets every agent decide once. Call it before the simulation tick.
func (r *Responder) Tick(now time.Time) {
	agents := r.world.Agents()
	for i, agent := range agents {
		if _, ok := r.nextThink[agent]; !ok {
			r.nextThink[agent] = now.Add(r.stagger(i, len(agents)))
		}
	}

	for _, agent := range agents {
		if conv := r.sim.ConversationFor(agent); conv != nil {
			r.keepTalking(conv, agent)
			continue
		}
		if _, busy := r.thinking[agent]; busy {
			continue
		}
		if _, speaking := r.sim.SpeakingFor(agent); speaking {
			continue
		}
		if now.Before(r.nextThink[agent]) {
			continue
		}
		r.nextThink[agent] = now.Add(r.cfg.ThinkInterval)
		r.think(agent)
	}
}

// Reset forgets outstanding thoughts and reply counts, e.g. after the
// simulation was reset.
func (r *Responder) Reset() {
	r.nextThink = map[domain.AgentID]time.Time{}
	r.thinking = map[domain.AgentID]domain.RequestID{}
	r.replies = map[domain.ConversationID]map[domain.AgentID]int{}
	r.heard = map[hearing]int{}
}

// Forget drops bookkeeping for an agent that left the world.
func (r *Responder) Forget(agent domain.AgentID) {
	delete(r.nextThink, agent)
	delete(r.thinking, agent)
	for _, counts := range r.replies {
		delete(counts, agent)
	}
	for key := range r.heard {
		if key.agent == agent {
			delete(r.heard, key)
		}
	}
}

func (r *Responder) keepTalking(conv *domain.Conversation, agent domain.AgentID) {
	if len(conv.History) == 0 || len(conv.History) == r.heardBy(conv.ID, agent) {
		return
	}
	last := conv.History[len(conv.History)-1]
	r.markHeard(conv.ID, agent, len(conv.History))
	if last.AgentID == agent || conv.CurrentSpeaker == agent || conv.IsQueued(agent) {
		return
	}
	if r.world.Gregariousness(agent) < r.cfg.ReplyThreshold {
		return
	}
	r.join(conv.ID, agent)
}

func (r *Responder) join(id domain.ConversationID, agent domain.AgentID) {
	counts := r.replies[id]
	if counts == nil {
		counts = map[domain.AgentID]int{}
		r.replies[id] = counts
	}
	if counts[agent] >= r.cfg.MaxReplies {
		return
	}

	if err := r.sim.JoinQueue(id, agent); err != nil {
		r.logger.Debug("join queue refused", "conversation", id, "agent", agent, "error", err)
		return
	}
	counts[agent]++
}

func (r *Responder) think(agent domain.AgentID) {
	priority := domain.PriorityIdle
	if r.world.IsHungry(agent) {
		priority = domain.PrioritySurvival
	}

	id := r.sim.Enqueue(application.LLMRequest{
		AgentID:  agent,
		LLMType:  r.world.LLMType(agent),
		Priority: priority,
		Prompt: application.PromptFunc(func(w ports.World) string {
			return r.thoughtPrompt(w, agent, priority)
		}),
		OnComplete: func(c domain.Completion) {
			delete(r.thinking, agent)
			if c.Failed() || strings.TrimSpace(c.Response.Text) == "" {
				return
			}
			if _, err := r.sim.OnAgentSpeak(agent, c.Response.Text, c.Response.TokenCount, c.CompletedAt); err != nil {
				r.logger.Debug("thought dropped", "agent", agent, "error", err)
			}
		},
	})
	r.thinking[agent] = id
	r.logger.Debug("thinking", "agent", agent, "band", priority.Label(), "request", id)
}

func (r *Responder) thoughtPrompt(w ports.World, agent domain.AgentID, priority domain.Priority) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.", r.world.Name(agent))
	pos, _ := w.Position(agent)
	var nearby []string
	for _, other := range w.Agents() {
		if other == agent {
			continue
		}
		if p, ok := w.Position(other); ok && p.Dist(pos) <= r.cfg.HearingRange {
			nearby = append(nearby, r.world.Name(other))
		}
	}
	if len(nearby) == 0 {
		b.WriteString(" Nobody is around.")
	} else {
		fmt.Fprintf(&b, " Nearby: %s.", strings.Join(nearby, ", "))
	}
	if priority == domain.PrioritySurvival {
		b.WriteString(" You are hungry and need food soon.")
	}
	b.WriteString(" Say what is on your mind in one short line.")
	return b.String()
}

func (r *Responder) stagger(i, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return r.cfg.ThinkInterval * time.Duration(i+1) / time.Duration(n)
}

func (r *Responder) heardBy(id domain.ConversationID, agent domain.AgentID) int {
	return r.heard[hearing{conv: id, agent: agent}]
}

func (r *Responder) markHeard(id domain.ConversationID, agent domain.AgentID, n int) {
	r.heard[hearing{conv: id, agent: agent}] = n
}
