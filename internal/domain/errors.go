package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAgentNotFound        = errors.New("agent not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("agent is not a participant")
	ErrInConversation       = errors.New("agent already belongs to a conversation")
	ErrAlreadyQueued        = errors.New("agent already queued to speak")
	ErrCurrentSpeaker       = errors.New("agent is the current speaker")
	ErrInvalidScenario      = errors.New("invalid scenario")
	ErrCredentialNotFound   = errors.New("credential not found")
	ErrUnknownLLMType       = errors.New("unknown llm type")
)

// TransportError marks a failed LLM call. It is delivered through the
// request's completion and is never retried by the scheduler.
type TransportError struct {
	RequestID RequestID
	AgentID   AgentID
	LLMType   LLMType
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s request %d for agent %s: %v", e.LLMType, e.RequestID, e.AgentID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// InvariantViolation reports corrupted turn state. It is raised with panic.
type InvariantViolation struct {
	ConversationID ConversationID
	Detail         string
}

func (e InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in conversation %s: %s", e.ConversationID, e.Detail)
}
