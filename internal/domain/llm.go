package domain

import "time"

// RawResponse is the part of a transport reply this core understands.
type RawResponse struct {
	Text       string
	TokenCount int
}

// Completion is delivered to a request's completion callback. Err is non-nil
// (a *TransportError) when the call failed.
type Completion struct {
	RequestID   RequestID
	AgentID     AgentID
	LLMType     LLMType
	Response    RawResponse
	Err         error
	CompletedAt time.Time
}

func (c Completion) Failed() bool {
	return c.Err != nil
}

// Force is a steering input for one agent.
type Force struct {
	AgentID AgentID
	Vector  Vec2
}
