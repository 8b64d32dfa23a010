package domain

import (
	"fmt"
	"slices"
	"time"
)

// TurnState is the per-conversation turn-taking state.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnSpeaking
	TurnAdvancing
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnSpeaking:
		return "speaking"
	case TurnAdvancing:
		return "advancing"
	default:
		return "unknown"
	}
}

type Utterance struct {
	AgentID   AgentID
	Text      string
	StartedAt time.Time
	EndedAt   time.Time
}

type SpeakingState struct {
	AgentID        AgentID
	Text           string
	TokenCount     int
	StartedAt      time.Time
	EndsAt         time.Time
	ConversationID ConversationID // empty for cosmetic speech
}

func (s SpeakingState) Duration() time.Duration {
	return s.EndsAt.Sub(s.StartedAt)
}

// PendingSpeech is a pre-fetched utterance waiting for its turn.
type PendingSpeech struct {
	AgentID        AgentID
	Text           string
	TokenCount     int
	ConversationID ConversationID
	RequestID      RequestID
	GeneratedAt    time.Time
}

type Conversation struct {
	ID             ConversationID
	Participants   []AgentID
	Location       Vec2
	State          TurnState
	CurrentSpeaker AgentID
	SpeakerQueue   []AgentID
	History        []Utterance
	CreatedAt      time.Time

	// AwaitingReply is set while invited listeners still have their first
	// turn to respond in.
	AwaitingReply bool

	// Prefetches maps queued agents to the scheduler request started for them.
	Prefetches map[AgentID]RequestID
}

func NewConversation(id ConversationID, createdAt time.Time) *Conversation {
	return &Conversation{
		ID:         id,
		CreatedAt:  createdAt,
		Prefetches: map[AgentID]RequestID{},
	}
}

func (c *Conversation) HasParticipant(id AgentID) bool {
	return slices.Contains(c.Participants, id)
}

// AddParticipant reports whether id was newly added.
func (c *Conversation) AddParticipant(id AgentID) bool {
	if id == "" || c.HasParticipant(id) {
		return false
	}
	c.Participants = append(c.Participants, id)
	return true
}

// RemoveParticipant drops id from the participant set, the speaker queue and
// prefetch bookkeeping. It does not touch CurrentSpeaker.
func (c *Conversation) RemoveParticipant(id AgentID) bool {
	idx := slices.Index(c.Participants, id)
	if idx < 0 {
		return false
	}
	c.Participants = slices.Delete(c.Participants, idx, idx+1)
	c.RemoveFromQueue(id)
	delete(c.Prefetches, id)
	return true
}

func (c *Conversation) IsQueued(id AgentID) bool {
	return slices.Contains(c.SpeakerQueue, id)
}

func (c *Conversation) RemoveFromQueue(id AgentID) {
	c.SpeakerQueue = slices.DeleteFunc(c.SpeakerQueue, func(queued AgentID) bool {
		return queued == id
	})
}

// Head returns the next queued speaker without removing it.
func (c *Conversation) Head() (AgentID, bool) {
	if len(c.SpeakerQueue) == 0 {
		return "", false
	}
	return c.SpeakerQueue[0], true
}

func (c *Conversation) PopQueue() (AgentID, bool) {
	head, ok := c.Head()
	if !ok {
		return "", false
	}
	c.SpeakerQueue = c.SpeakerQueue[1:]
	return head, true
}

// CheckInvariants reports the first structural inconsistency found.
func (c *Conversation) CheckInvariants() error {
	if c.CurrentSpeaker != "" && c.IsQueued(c.CurrentSpeaker) {
		return InvariantViolation{ConversationID: c.ID, Detail: fmt.Sprintf("current speaker %s is also queued", c.CurrentSpeaker)}
	}
	if c.State == TurnSpeaking && c.CurrentSpeaker == "" {
		return InvariantViolation{ConversationID: c.ID, Detail: "speaking state without a current speaker"}
	}
	if c.State == TurnIdle && c.CurrentSpeaker != "" {
		return InvariantViolation{ConversationID: c.ID, Detail: "idle state with a current speaker"}
	}
	seen := make(map[AgentID]struct{}, len(c.SpeakerQueue))
	for _, queued := range c.SpeakerQueue {
		if _, dup := seen[queued]; dup {
			return InvariantViolation{ConversationID: c.ID, Detail: fmt.Sprintf("agent %s queued twice", queued)}
		}
		seen[queued] = struct{}{}
	}
	return nil
}
