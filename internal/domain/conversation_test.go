package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationParticipantsDeduplicate(t *testing.T) {
	t.Parallel()

	c := NewConversation("c1", time.Time{})
	assert.True(t, c.AddParticipant("a"))
	assert.False(t, c.AddParticipant("a"))
	assert.False(t, c.AddParticipant(""))
	assert.True(t, c.AddParticipant("b"))

	assert.Equal(t, []AgentID{"a", "b"}, c.Participants)
}

func TestConversationRemoveParticipantClearsQueueAndPrefetch(t *testing.T) {
	t.Parallel()

	c := NewConversation("c1", time.Time{})
	c.AddParticipant("a")
	c.AddParticipant("b")
	c.SpeakerQueue = []AgentID{"b"}
	c.Prefetches["b"] = 7

	require.True(t, c.RemoveParticipant("b"))
	assert.False(t, c.RemoveParticipant("b"))
	assert.Empty(t, c.SpeakerQueue)
	assert.NotContains(t, c.Prefetches, AgentID("b"))
	assert.Equal(t, []AgentID{"a"}, c.Participants)
}

func TestConversationQueueOrder(t *testing.T) {
	t.Parallel()

	c := NewConversation("c1", time.Time{})
	c.SpeakerQueue = []AgentID{"b", "c"}

	head, ok := c.Head()
	require.True(t, ok)
	assert.Equal(t, AgentID("b"), head)

	popped, ok := c.PopQueue()
	require.True(t, ok)
	assert.Equal(t, AgentID("b"), popped)
	assert.Equal(t, []AgentID{"c"}, c.SpeakerQueue)

	c.PopQueue()
	_, ok = c.PopQueue()
	assert.False(t, ok)
}

func TestConversationCheckInvariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Conversation)
		wantErr string
	}{
		{name: "idle and empty", mutate: func(*Conversation) {}},
		{
			name: "speaker also queued",
			mutate: func(c *Conversation) {
				c.State = TurnSpeaking
				c.CurrentSpeaker = "a"
				c.SpeakerQueue = []AgentID{"a"}
			},
			wantErr: "also queued",
		},
		{
			name:    "speaking without speaker",
			mutate:  func(c *Conversation) { c.State = TurnSpeaking },
			wantErr: "without a current speaker",
		},
		{
			name:    "idle with speaker",
			mutate:  func(c *Conversation) { c.CurrentSpeaker = "a" },
			wantErr: "idle state",
		},
		{
			name:    "duplicate queue entry",
			mutate:  func(c *Conversation) { c.SpeakerQueue = []AgentID{"b", "b"} },
			wantErr: "queued twice",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := NewConversation("c1", time.Time{})
			tc.mutate(c)
			err := c.CheckInvariants()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var violation InvariantViolation
			require.ErrorAs(t, err, &violation)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestTurnStateString(t *testing.T) {
	assert.Equal(t, "idle", TurnIdle.String())
	assert.Equal(t, "speaking", TurnSpeaking.String())
	assert.Equal(t, "advancing", TurnAdvancing.String())
	assert.Equal(t, "unknown", TurnState(42).String())
}
