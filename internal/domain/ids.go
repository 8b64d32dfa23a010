package domain

import "strings"

type AgentID string

type ConversationID string

// RequestID identifies an enqueued LLM request. IDs increase monotonically per
// scheduler and double as the FIFO tie-break.
type RequestID uint64

type LLMType string

const (
	LLMTypeScripted  LLMType = "scripted"
	LLMTypeOpenAI    LLMType = "openai"
	LLMTypeAnthropic LLMType = "anthropic"
	LLMTypeGemini    LLMType = "gemini"
)

func (t LLMType) Normalize() LLMType {
	return LLMType(strings.ToLower(strings.TrimSpace(string(t))))
}

// KnownLLMTypes lists the model families parley can route to.
func KnownLLMTypes() []LLMType {
	return []LLMType{LLMTypeScripted, LLMTypeOpenAI, LLMTypeAnthropic, LLMTypeGemini}
}
