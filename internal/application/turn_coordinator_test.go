package application

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/parley/internal/domain"
)

type turnFixture struct {
	registry  *ConversationRegistry
	scheduler *recordingScheduler
	turns     *TurnCoordinator
}

func newTurnFixture() *turnFixture {
	registry := NewConversationRegistry()
	scheduler := newRecordingScheduler()
	return &turnFixture{
		registry:  registry,
		scheduler: scheduler,
		turns:     NewTurnCoordinator(TurnConfig{SpeechRate: 2, PrefetchLead: time.Second}, registry, scheduler),
	}
}

func (f *turnFixture) conversation(t *testing.T, agents ...domain.AgentID) *domain.Conversation {
	t.Helper()
	conv := f.registry.Create(epoch)
	for _, a := range agents {
		require.NoError(t, f.registry.Join(conv, a))
	}
	return conv
}

func (f *turnFixture) prefetchFor(agent domain.AgentID) (domain.RequestID, bool) {
	for id, req := range f.scheduler.requests {
		if req.AgentID == agent {
			return id, true
		}
	}
	return 0, false
}

func TestSpeechDurationAndIdleAtEnd(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b")

	f.turns.Speak(conv, "a", "ten tokens", 10, at(0))

	st, ok := f.turns.SpeakingFor("a")
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, st.EndsAt.Sub(st.StartedAt))
	assert.Equal(t, domain.TurnSpeaking, conv.State)

	f.turns.Update(at(4.99))
	assert.Equal(t, domain.TurnSpeaking, conv.State)

	f.turns.Update(at(5))
	assert.Equal(t, domain.TurnIdle, conv.State)
	assert.Empty(t, conv.CurrentSpeaker)
	require.Len(t, conv.History, 1)
	assert.Equal(t, domain.Utterance{AgentID: "a", Text: "ten tokens", StartedAt: at(0), EndedAt: at(5)}, conv.History[0])
	_, ok = f.turns.SpeakingFor("a")
	assert.False(t, ok)
}

func TestPrefetchScenarioHandsTurnToListener(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b")
	conv.AwaitingReply = true

	f.turns.Speak(conv, "a", "hello B", 10, at(0))
	require.NoError(t, f.turns.JoinQueue(conv.ID, "b"))
	assert.True(t, conv.AwaitingReply, "queueing is not a reply yet")

	f.turns.Update(at(3.9))
	_, started := f.prefetchFor("b")
	assert.False(t, started, "too early to pre-fetch")

	f.turns.Update(at(4))
	id, started := f.prefetchFor("b")
	require.True(t, started)
	req := f.scheduler.requests[id]
	assert.Equal(t, domain.PriorityConversation, req.Priority)
	assert.Equal(t, conv.ID, req.ConversationID)
	assert.Equal(t, id, conv.Prefetches["b"])

	f.turns.Update(at(4.5))
	assert.Len(t, f.scheduler.requests, 1, "one request per queued head")

	f.scheduler.complete(id, "hi A", 6, at(4.6))
	pending, ok := f.turns.PendingFor("b")
	require.True(t, ok)
	assert.Equal(t, "hi A", pending.Text)

	f.turns.Update(at(5))
	assert.Equal(t, domain.AgentID("b"), conv.CurrentSpeaker)
	assert.False(t, conv.AwaitingReply)
	st, ok := f.turns.SpeakingFor("b")
	require.True(t, ok)
	assert.Equal(t, at(8), st.EndsAt)
	_, ok = f.turns.PendingFor("b")
	assert.False(t, ok, "pending speech is consumed once")
	assert.Empty(t, conv.Prefetches)
}

func TestPrefetchPromptReadsLiveConversation(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b", "c")

	f.turns.Speak(conv, "a", "first", 2, at(0))
	require.NoError(t, f.turns.JoinQueue(conv.ID, "b"))
	f.turns.Update(at(0.5))

	id, ok := f.prefetchFor("b")
	require.True(t, ok)

	conv.History = append(conv.History, domain.Utterance{AgentID: "c", Text: "added later"})
	prompt := f.scheduler.requests[id].Prompt.Build(newFakeWorld())

	assert.Contains(t, prompt, "c: added later")
	assert.Contains(t, prompt, "a: first")
	assert.Contains(t, prompt, "You are b")
}

func TestLateResponseSkipsSpeaker(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b", "c")

	f.turns.Speak(conv, "a", "question", 10, at(0))
	require.NoError(t, f.turns.JoinQueue(conv.ID, "b"))
	require.NoError(t, f.turns.JoinQueue(conv.ID, "c"))
	f.turns.Speak(conv, "c", "ready answer", 4, at(1))

	f.turns.Update(at(4))
	lateID, ok := f.prefetchFor("b")
	require.True(t, ok)

	f.turns.Update(at(5))
	assert.Equal(t, domain.AgentID("c"), conv.CurrentSpeaker, "b had nothing ready and was skipped")
	assert.Contains(t, f.scheduler.cancelled, lateID)
	assert.False(t, conv.IsQueued("b"), "skipped agents are not re-queued")

	f.turns.onPrefetchComplete(conv.ID, "b", domain.Completion{
		RequestID:   lateID,
		AgentID:     "b",
		Response:    domain.RawResponse{Text: "too late", TokenCount: 3},
		CompletedAt: at(5.5),
	})
	_, ok = f.turns.PendingFor("b")
	assert.False(t, ok, "late completion is discarded")
}

func TestFailedPrefetchWhileIdleDropsHead(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b")

	require.NoError(t, f.turns.JoinQueue(conv.ID, "b"))
	f.turns.Update(at(0))
	id, ok := f.prefetchFor("b")
	require.True(t, ok, "idle conversation pre-fetches its head immediately")

	req := f.scheduler.requests[id]
	req.OnComplete(domain.Completion{RequestID: id, AgentID: "b", Err: errors.New("boom")})

	assert.Empty(t, conv.SpeakerQueue)
	assert.Equal(t, domain.TurnIdle, conv.State)
}

func TestIdleConversationStartsWhenHeadIsReady(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b")

	require.NoError(t, f.turns.JoinQueue(conv.ID, "b"))
	f.turns.Update(at(0))
	id, ok := f.prefetchFor("b")
	require.True(t, ok)
	f.scheduler.complete(id, "hey", 4, at(0.3))

	f.turns.Update(at(0.4))
	assert.Equal(t, domain.AgentID("b"), conv.CurrentSpeaker)
	assert.Equal(t, domain.TurnSpeaking, conv.State)
}

func TestUnansweredInvitationTearsDownConversation(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b")
	conv.AwaitingReply = true

	f.turns.Speak(conv, "a", "hello?", 4, at(0))
	f.turns.Update(at(2))

	_, ok := f.registry.Get(conv.ID)
	assert.False(t, ok)
	assert.Nil(t, f.registry.ForAgent("a"))
	assert.Nil(t, f.registry.ForAgent("b"))
}

func TestInviteeWhosePrefetchFailsDoesNotKeepConversationOpen(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b")
	conv.AwaitingReply = true

	f.turns.Speak(conv, "a", "hello B", 10, at(0))
	require.NoError(t, f.turns.JoinQueue(conv.ID, "b"))

	f.turns.Update(at(4))
	id, ok := f.prefetchFor("b")
	require.True(t, ok)
	req := f.scheduler.requests[id]
	req.OnComplete(domain.Completion{RequestID: id, AgentID: "b", Err: errors.New("boom")})

	f.turns.Update(at(5))

	_, ok = f.registry.Get(conv.ID)
	assert.False(t, ok, "nobody spoke back")
	assert.Nil(t, f.registry.ForAgent("a"))
	assert.Nil(t, f.registry.ForAgent("b"))
}

func TestInviteeWithLateReplyDoesNotKeepConversationOpen(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b")
	conv.AwaitingReply = true

	f.turns.Speak(conv, "a", "hello B", 10, at(0))
	require.NoError(t, f.turns.JoinQueue(conv.ID, "b"))
	f.turns.Update(at(4))
	id, ok := f.prefetchFor("b")
	require.True(t, ok)

	f.turns.Update(at(5))

	_, ok = f.registry.Get(conv.ID)
	assert.False(t, ok)
	assert.Contains(t, f.scheduler.cancelled, id)
}

func TestSpeakerDepartureAdvancesImmediately(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b", "c")

	f.turns.Speak(conv, "a", "long speech", 100, at(0))
	require.NoError(t, f.turns.JoinQueue(conv.ID, "b"))
	f.turns.Speak(conv, "b", "my turn", 2, at(1))

	f.turns.HandleDeparture(conv, "a", at(3))

	assert.Equal(t, domain.AgentID("b"), conv.CurrentSpeaker)
	assert.False(t, conv.HasParticipant("a"))
	require.Len(t, conv.History, 1)
	assert.Equal(t, at(3), conv.History[0].EndedAt)
	_, ok := f.turns.SpeakingFor("a")
	assert.False(t, ok)
}

func TestDepartureCancelsQueuedPrefetch(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b", "c")

	f.turns.Speak(conv, "a", "hi", 2, at(0))
	require.NoError(t, f.turns.JoinQueue(conv.ID, "b"))
	f.turns.Update(at(0.5))
	id, ok := f.prefetchFor("b")
	require.True(t, ok)

	f.turns.HandleDeparture(conv, "b", at(0.6))

	assert.Contains(t, f.scheduler.cancelled, id)
	assert.Empty(t, conv.SpeakerQueue)
	assert.Equal(t, domain.AgentID("a"), conv.CurrentSpeaker)
}

func TestJoinQueueRejections(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b")
	f.turns.Speak(conv, "a", "hi", 2, at(0))
	require.NoError(t, f.turns.JoinQueue(conv.ID, "b"))

	tests := []struct {
		name  string
		conv  domain.ConversationID
		agent domain.AgentID
		err   error
	}{
		{name: "duplicate", conv: conv.ID, agent: "b", err: domain.ErrAlreadyQueued},
		{name: "current speaker", conv: conv.ID, agent: "a", err: domain.ErrCurrentSpeaker},
		{name: "outsider", conv: conv.ID, agent: "z", err: domain.ErrNotParticipant},
		{name: "unknown conversation", conv: "nope", agent: "b", err: domain.ErrConversationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.turns.JoinQueue(tt.conv, tt.agent), tt.err)
		})
	}
	assert.Equal(t, []domain.AgentID{"b"}, conv.SpeakerQueue)
}

func TestCurrentSpeakerSpeakingAgainIsIgnored(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b")
	f.turns.Speak(conv, "a", "one", 2, at(0))
	f.turns.Speak(conv, "a", "two", 2, at(0.5))

	st, _ := f.turns.SpeakingFor("a")
	assert.Equal(t, "one", st.Text)
	assert.Empty(t, conv.SpeakerQueue)
}

func TestInvariantViolationsPanic(t *testing.T) {
	t.Parallel()

	t.Run("re-entrant advance", func(t *testing.T) {
		f := newTurnFixture()
		conv := f.conversation(t, "a")
		conv.State = domain.TurnAdvancing

		assertViolation(t, func() { f.turns.Advance(conv, at(0)) })
	})

	t.Run("speaker also queued", func(t *testing.T) {
		f := newTurnFixture()
		conv := f.conversation(t, "a", "b")
		f.turns.Speak(conv, "a", "hi", 2, at(0))
		conv.SpeakerQueue = append(conv.SpeakerQueue, "a")

		assertViolation(t, func() { f.turns.Speak(conv, "b", "me", 2, at(0.5)) })
	})

	t.Run("speaking without state", func(t *testing.T) {
		f := newTurnFixture()
		conv := f.conversation(t, "a")
		conv.State = domain.TurnSpeaking
		conv.CurrentSpeaker = "a"

		assertViolation(t, func() { f.turns.Update(at(1)) })
	})
}

func assertViolation(t *testing.T, fn func()) {
	t.Helper()

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok)
		var violation domain.InvariantViolation
		assert.ErrorAs(t, err, &violation)
	}()
	fn()
}

func TestTeardownCancelsPrefetches(t *testing.T) {
	t.Parallel()

	f := newTurnFixture()
	conv := f.conversation(t, "a", "b")
	f.turns.Speak(conv, "a", "hi", 2, at(0))
	require.NoError(t, f.turns.JoinQueue(conv.ID, "b"))
	f.turns.Update(at(0.5))
	id, ok := f.prefetchFor("b")
	require.True(t, ok)

	f.turns.Teardown(conv)

	assert.Contains(t, f.scheduler.cancelled, id)
	_, alive := f.registry.Get(conv.ID)
	assert.False(t, alive)
	_, speaking := f.turns.SpeakingFor("a")
	assert.False(t, speaking)
}
