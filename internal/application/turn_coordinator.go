package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

type TurnConfig struct {
	SpeechRate   float64 // tokens per second
	PrefetchLead time.Duration
}

// TurnPromptFunc renders the prompt for agent's next line in conv. It runs at
// dispatch time, so conv reflects the live conversation.
type TurnPromptFunc func(world ports.World, agent domain.AgentID, conv *domain.Conversation, speaking *domain.SpeakingState) string

// LLMTypeFunc picks the model family that answers for an agent.
type LLMTypeFunc func(agent domain.AgentID) domain.LLMType

type turnScheduler interface {
	Enqueue(req LLMRequest) domain.RequestID
	CancelRequest(id domain.RequestID) bool
}

// TurnCoordinator runs the per-conversation state machine
// Idle -> Speaking -> Advancing -> Speaking | Idle.
type TurnCoordinator struct {
	cfg       TurnConfig
	registry  *ConversationRegistry
	scheduler turnScheduler
	prompt    TurnPromptFunc
	llmType   LLMTypeFunc
	logger    *log.Logger

	speaking map[domain.AgentID]*domain.SpeakingState
	pending  map[domain.AgentID]domain.PendingSpeech
}

func NewTurnCoordinator(cfg TurnConfig, registry *ConversationRegistry, scheduler turnScheduler, opts ...Option) *TurnCoordinator {
	o := buildOptions(opts)

	return &TurnCoordinator{
		cfg:       cfg,
		registry:  registry,
		scheduler: scheduler,
		prompt:    DefaultTurnPrompt,
		llmType:   func(domain.AgentID) domain.LLMType { return domain.LLMTypeScripted },
		logger:    o.component("turns"),
		speaking:  map[domain.AgentID]*domain.SpeakingState{},
		pending:   map[domain.AgentID]domain.PendingSpeech{},
	}
}

func (tc *TurnCoordinator) SetPrompt(fn TurnPromptFunc) {
	if fn != nil {
		tc.prompt = fn
	}
}

func (tc *TurnCoordinator) SetLLMType(fn LLMTypeFunc) {
	if fn != nil {
		tc.llmType = fn
	}
}

// SpeechDuration converts a token count into occupancy time.
func (tc *TurnCoordinator) SpeechDuration(tokens int) time.Duration {
	if tokens <= 0 || tc.cfg.SpeechRate <= 0 {
		return 0
	}
	return time.Duration(float64(tokens) / tc.cfg.SpeechRate * float64(time.Second))
}

func (tc *TurnCoordinator) SpeakingFor(agent domain.AgentID) (domain.SpeakingState, bool) {
	st, ok := tc.speaking[agent]
	if !ok {
		return domain.SpeakingState{}, false
	}
	return *st, true
}

func (tc *TurnCoordinator) PendingFor(agent domain.AgentID) (domain.PendingSpeech, bool) {
	p, ok := tc.pending[agent]
	return p, ok
}

// SpeakCosmetic records speech nobody hears. It never creates a conversation.
func (tc *TurnCoordinator) SpeakCosmetic(agent domain.AgentID, text string, tokens int, now time.Time) {
	tc.speaking[agent] = &domain.SpeakingState{
		AgentID:    agent,
		Text:       text,
		TokenCount: tokens,
		StartedAt:  now,
		EndsAt:     now.Add(tc.SpeechDuration(tokens)),
	}
}

// Speak handles an utterance by a participant of conv. An idle conversation
// takes it as the new current speaker; otherwise it waits in the queue as
// pending speech.
func (tc *TurnCoordinator) Speak(conv *domain.Conversation, agent domain.AgentID, text string, tokens int, now time.Time) {
	switch {
	case conv.CurrentSpeaker == agent:
		tc.logger.Debug("ignoring speech from current speaker", "conversation", conv.ID, "agent", agent)
	case conv.State == domain.TurnIdle:
		conv.RemoveFromQueue(agent)
		tc.cancelPrefetch(conv, agent)
		delete(tc.pending, agent)
		tc.install(conv, agent, text, tokens, now)
		tc.assert(conv)
	default:
		tc.pending[agent] = domain.PendingSpeech{
			AgentID:        agent,
			Text:           text,
			TokenCount:     tokens,
			ConversationID: conv.ID,
			GeneratedAt:    now,
		}
		if !conv.IsQueued(agent) {
			conv.SpeakerQueue = append(conv.SpeakerQueue, agent)
		}
		tc.assert(conv)
	}
}

// JoinQueue appends a participant to the speaker queue of conversation id.
// Queueing alone does not answer an invitation; only a reply that actually
// takes the turn does.
func (tc *TurnCoordinator) JoinQueue(id domain.ConversationID, agent domain.AgentID) error {
	conv, ok := tc.registry.Get(id)
	if !ok {
		return domain.ErrConversationNotFound
	}
	if !conv.HasParticipant(agent) {
		return fmt.Errorf("join queue of %s: %w", id, domain.ErrNotParticipant)
	}
	if conv.CurrentSpeaker == agent {
		return fmt.Errorf("join queue of %s: %w", id, domain.ErrCurrentSpeaker)
	}
	if conv.IsQueued(agent) {
		return fmt.Errorf("join queue of %s: %w", id, domain.ErrAlreadyQueued)
	}

	conv.SpeakerQueue = append(conv.SpeakerQueue, agent)
	tc.assert(conv)
	return nil
}

// Update runs one tick of the state machine for every conversation and
// expires cosmetic speech.
func (tc *TurnCoordinator) Update(now time.Time) {
	for agent, st := range tc.speaking {
		if st.ConversationID == "" && !now.Before(st.EndsAt) {
			delete(tc.speaking, agent)
		}
	}

	for _, conv := range tc.registry.All() {
		tc.step(conv, now)
	}
}

func (tc *TurnCoordinator) step(conv *domain.Conversation, now time.Time) {
	switch conv.State {
	case domain.TurnSpeaking:
		st := tc.currentState(conv)
		if !now.Before(st.EndsAt) {
			tc.Advance(conv, now)
		}
	case domain.TurnIdle:
		head, ok := conv.Head()
		if !ok {
			break
		}
		if _, ready := tc.readyPending(conv, head); ready {
			tc.Advance(conv, now)
		}
	case domain.TurnAdvancing:
		panic(domain.InvariantViolation{ConversationID: conv.ID, Detail: "advancing state observed between ticks"})
	}

	if _, alive := tc.registry.Get(conv.ID); alive {
		tc.maybePrefetch(conv, now)
	}
}

// Advance finishes the current utterance and hands the turn to the first
// queued agent with speech ready. Agents without ready speech are skipped.
func (tc *TurnCoordinator) Advance(conv *domain.Conversation, now time.Time) {
	if conv.State == domain.TurnAdvancing {
		panic(domain.InvariantViolation{ConversationID: conv.ID, Detail: "re-entrant advance"})
	}
	conv.State = domain.TurnAdvancing

	if speaker := conv.CurrentSpeaker; speaker != "" {
		if st, ok := tc.speaking[speaker]; ok && st.ConversationID == conv.ID {
			conv.History = append(conv.History, domain.Utterance{
				AgentID:   speaker,
				Text:      st.Text,
				StartedAt: st.StartedAt,
				EndedAt:   now,
			})
			delete(tc.speaking, speaker)
		}
		conv.CurrentSpeaker = ""
	}

	for {
		next, ok := conv.PopQueue()
		if !ok {
			break
		}

		speech, ready := tc.readyPending(conv, next)
		tc.cancelPrefetch(conv, next)
		if !ready {
			delete(tc.pending, next)
			tc.logger.Debug("speaker skipped, no speech ready", "conversation", conv.ID, "agent", next)
			continue
		}

		delete(tc.pending, next)
		conv.AwaitingReply = false
		conv.State = domain.TurnIdle
		tc.install(conv, next, speech.Text, speech.TokenCount, now)
		tc.assert(conv)
		return
	}

	conv.State = domain.TurnIdle
	if conv.AwaitingReply {
		tc.logger.Info("nobody replied, closing conversation", "conversation", conv.ID)
		tc.Teardown(conv)
		return
	}
	tc.assert(conv)
}

// HandleDeparture removes agent from conv. A departing current speaker
// advances the turn immediately.
func (tc *TurnCoordinator) HandleDeparture(conv *domain.Conversation, agent domain.AgentID, now time.Time) {
	wasSpeaker := conv.CurrentSpeaker == agent
	tc.cancelPrefetch(conv, agent)
	delete(tc.pending, agent)

	deleted := tc.registry.Leave(conv, agent)
	if deleted {
		delete(tc.speaking, agent)
		return
	}
	if wasSpeaker {
		tc.Advance(conv, now)
	}
}

// Teardown cancels outstanding prefetches, clears speech state for every
// participant and removes the conversation.
func (tc *TurnCoordinator) Teardown(conv *domain.Conversation) {
	for agent, id := range conv.Prefetches {
		tc.scheduler.CancelRequest(id)
		delete(conv.Prefetches, agent)
	}
	for _, agent := range conv.Participants {
		if st, ok := tc.speaking[agent]; ok && st.ConversationID == conv.ID {
			delete(tc.speaking, agent)
		}
		if p, ok := tc.pending[agent]; ok && p.ConversationID == conv.ID {
			delete(tc.pending, agent)
		}
	}
	conv.CurrentSpeaker = ""
	conv.SpeakerQueue = nil
	conv.State = domain.TurnIdle
	tc.registry.Remove(conv.ID)
}

// Forget drops every trace of agent held by the coordinator itself.
func (tc *TurnCoordinator) Forget(agent domain.AgentID) {
	delete(tc.speaking, agent)
	delete(tc.pending, agent)
}

func (tc *TurnCoordinator) Reset() {
	tc.speaking = map[domain.AgentID]*domain.SpeakingState{}
	tc.pending = map[domain.AgentID]domain.PendingSpeech{}
}

func (tc *TurnCoordinator) maybePrefetch(conv *domain.Conversation, now time.Time) {
	head, ok := conv.Head()
	if !ok {
		return
	}
	if _, started := conv.Prefetches[head]; started {
		return
	}
	if _, ready := tc.readyPending(conv, head); ready {
		return
	}

	if conv.State == domain.TurnSpeaking {
		st := tc.currentState(conv)
		if st.EndsAt.Sub(now) > tc.cfg.PrefetchLead {
			return
		}
	}

	tc.startPrefetch(conv, head)
}

func (tc *TurnCoordinator) startPrefetch(conv *domain.Conversation, agent domain.AgentID) {
	convID := conv.ID
	req := LLMRequest{
		AgentID:        agent,
		ConversationID: convID,
		LLMType:        tc.llmType(agent),
		Priority:       domain.PriorityConversation,
		Prompt: PromptFunc(func(world ports.World) string {
			var speaking *domain.SpeakingState
			if conv.CurrentSpeaker != "" {
				speaking = tc.speaking[conv.CurrentSpeaker]
			}
			return tc.prompt(world, agent, conv, speaking)
		}),
		OnComplete: func(c domain.Completion) {
			tc.onPrefetchComplete(convID, agent, c)
		},
	}

	id := tc.scheduler.Enqueue(req)
	conv.Prefetches[agent] = id
	tc.logger.Debug("prefetch started", "conversation", convID, "agent", agent, "request", id)
}

func (tc *TurnCoordinator) onPrefetchComplete(id domain.ConversationID, agent domain.AgentID, c domain.Completion) {
	conv, ok := tc.registry.Get(id)
	if !ok {
		return
	}
	reqID, started := conv.Prefetches[agent]
	if !started || reqID != c.RequestID {
		tc.logger.Debug("late prefetch discarded", "conversation", id, "agent", agent, "request", c.RequestID)
		return
	}

	text := strings.TrimSpace(c.Response.Text)
	if c.Failed() || text == "" {
		if conv.State == domain.TurnIdle {
			if head, ok := conv.Head(); ok && head == agent {
				conv.PopQueue()
				delete(conv.Prefetches, agent)
				tc.logger.Debug("speaker skipped, prefetch failed", "conversation", id, "agent", agent)
			}
		}
		return
	}

	tc.pending[agent] = domain.PendingSpeech{
		AgentID:        agent,
		Text:           text,
		TokenCount:     c.Response.TokenCount,
		ConversationID: id,
		RequestID:      c.RequestID,
		GeneratedAt:    c.CompletedAt,
	}
}

func (tc *TurnCoordinator) readyPending(conv *domain.Conversation, agent domain.AgentID) (domain.PendingSpeech, bool) {
	p, ok := tc.pending[agent]
	if !ok || p.ConversationID != conv.ID {
		return domain.PendingSpeech{}, false
	}
	return p, true
}

func (tc *TurnCoordinator) cancelPrefetch(conv *domain.Conversation, agent domain.AgentID) {
	id, ok := conv.Prefetches[agent]
	if !ok {
		return
	}
	tc.scheduler.CancelRequest(id)
	delete(conv.Prefetches, agent)
}

func (tc *TurnCoordinator) install(conv *domain.Conversation, agent domain.AgentID, text string, tokens int, now time.Time) {
	if conv.CurrentSpeaker != "" {
		panic(domain.InvariantViolation{
			ConversationID: conv.ID,
			Detail:         fmt.Sprintf("installing %s while %s is speaking", agent, conv.CurrentSpeaker),
		})
	}

	conv.CurrentSpeaker = agent
	conv.State = domain.TurnSpeaking
	tc.speaking[agent] = &domain.SpeakingState{
		AgentID:        agent,
		Text:           text,
		TokenCount:     tokens,
		StartedAt:      now,
		EndsAt:         now.Add(tc.SpeechDuration(tokens)),
		ConversationID: conv.ID,
	}
	tc.logger.Debug("turn started", "conversation", conv.ID, "agent", agent, "tokens", tokens)
}

func (tc *TurnCoordinator) currentState(conv *domain.Conversation) *domain.SpeakingState {
	st, ok := tc.speaking[conv.CurrentSpeaker]
	if !ok || st.ConversationID != conv.ID {
		panic(domain.InvariantViolation{ConversationID: conv.ID, Detail: "current speaker has no speaking state"})
	}
	return st
}

func (tc *TurnCoordinator) assert(conv *domain.Conversation) {
	if err := conv.CheckInvariants(); err != nil {
		panic(err)
	}
}

// DefaultTurnPrompt asks the agent for one line given the conversation so far.
func DefaultTurnPrompt(_ ports.World, agent domain.AgentID, conv *domain.Conversation, speaking *domain.SpeakingState) string {
	var b strings.Builder

	others := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if p != agent {
			others = append(others, string(p))
		}
	}

	fmt.Fprintf(&b, "You are %s, talking with %s.\n", agent, strings.Join(others, ", "))
	for _, u := range conv.History {
		fmt.Fprintf(&b, "%s: %s\n", u.AgentID, u.Text)
	}
	if speaking != nil {
		fmt.Fprintf(&b, "%s: %s\n", speaking.AgentID, speaking.Text)
	}
	b.WriteString("Reply with one short line.")
	return b.String()
}
