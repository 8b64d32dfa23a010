package application

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

// Settings gathers the tunables of one simulation instance.
type Settings struct {
	RateCapacity int
	RateWindow   time.Duration
	HearingRange float64
	Turn         TurnConfig
	Social       SocialConfig
}

// Simulation owns the context state of one session: rate window, request
// queue, registry and turn machines. Instances share nothing.
type Simulation struct {
	settings Settings
	world    ports.World
	steering ports.Steering
	logger   *log.Logger

	window     *domain.RateWindow
	scheduler  *Scheduler
	registry   *ConversationRegistry
	turns      *TurnCoordinator
	membership *Membership
	forces     *SocialForceField
}

// TickReport summarizes what one Tick did.
type TickReport struct {
	Completions   int
	Forces        []domain.Force
	Dispatched    int
	Conversations int
}

func NewSimulation(settings Settings, world ports.World, steering ports.Steering, transport ports.Transport, now time.Time, opts ...Option) *Simulation {
	o := buildOptions(opts)

	if settings.Social.Radius == 0 {
		settings.Social.Radius = settings.HearingRange
	}

	window := domain.NewRateWindow(settings.RateCapacity, settings.RateWindow, now)
	scheduler := NewScheduler(window, world, transport, opts...)
	registry := NewConversationRegistry(opts...)
	turns := NewTurnCoordinator(settings.Turn, registry, scheduler, opts...)

	return &Simulation{
		settings:   settings,
		world:      world,
		steering:   steering,
		logger:     o.component("simulation"),
		window:     window,
		scheduler:  scheduler,
		registry:   registry,
		turns:      turns,
		membership: NewMembership(registry, turns, world, settings.HearingRange, opts...),
		forces:     NewSocialForceField(settings.Social, registry, world),
	}
}

func (s *Simulation) SetInviter(inviter ports.Inviter) {
	s.membership.SetInviter(inviter)
}

func (s *Simulation) SetTurnPrompt(fn TurnPromptFunc) {
	s.turns.SetPrompt(fn)
}

func (s *Simulation) SetLLMType(fn LLMTypeFunc) {
	s.turns.SetLLMType(fn)
}

// Tick runs one simulation step: apply completions from the previous tick,
// steer bystanders, update membership, advance turns, then drain the queue.
func (s *Simulation) Tick(ctx context.Context, now time.Time) TickReport {
	var r TickReport

	r.Completions = s.scheduler.ApplyCompletions(now)
	if s.steering != nil {
		r.Forces = s.forces.Apply(s.steering)
	} else {
		r.Forces = s.forces.Compute()
	}
	s.membership.Update(now)
	s.turns.Update(now)
	r.Dispatched = s.scheduler.Drain(ctx, now)
	r.Conversations = s.registry.Len()

	return r
}

func (s *Simulation) Enqueue(req LLMRequest) domain.RequestID {
	return s.scheduler.Enqueue(req)
}

func (s *Simulation) Cancel(agent domain.AgentID) int {
	return s.scheduler.Cancel(agent)
}

// OnAgentSpeak looks up the speaker's position and routes the utterance.
func (s *Simulation) OnAgentSpeak(agent domain.AgentID, text string, tokens int, now time.Time) (*domain.Conversation, error) {
	pos, ok := s.world.Position(agent)
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	return s.membership.OnAgentSpeak(agent, pos, text, tokens, now), nil
}

// ConversationFor reports the conversation agent is locked in, or nil.
func (s *Simulation) ConversationFor(agent domain.AgentID) *domain.Conversation {
	return s.registry.ForAgent(agent)
}

func (s *Simulation) JoinQueue(id domain.ConversationID, agent domain.AgentID) error {
	return s.turns.JoinQueue(id, agent)
}

func (s *Simulation) SpeakingFor(agent domain.AgentID) (domain.SpeakingState, bool) {
	return s.turns.SpeakingFor(agent)
}

// Depart applies the explicit departure signal for agent.
func (s *Simulation) Depart(agent domain.AgentID, now time.Time) bool {
	return s.membership.Leave(agent, now)
}

// RemoveAgent forgets an agent that left the world: its queued requests are
// cancelled and it departs its conversation.
func (s *Simulation) RemoveAgent(agent domain.AgentID, now time.Time) {
	s.scheduler.Cancel(agent)
	s.membership.Leave(agent, now)
	s.turns.Forget(agent)
}

// Reset clears every piece of session state and opens a fresh rate window.
func (s *Simulation) Reset(now time.Time) {
	s.window = domain.NewRateWindow(s.settings.RateCapacity, s.settings.RateWindow, now)
	s.scheduler.Reset(s.window)
	s.registry.Reset()
	s.turns.Reset()
	s.logger.Info("simulation reset")
}

// Wait blocks until every in-flight transport call has returned.
func (s *Simulation) Wait() {
	s.scheduler.Wait()
}

func (s *Simulation) Scheduler() *Scheduler {
	return s.scheduler
}

func (s *Simulation) Registry() *ConversationRegistry {
	return s.registry
}
