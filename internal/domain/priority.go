package domain

// Priority orders pending LLM requests; higher values dispatch first.
type Priority int

const (
	PriorityIdle         Priority = 100
	PrioritySurvival     Priority = 200
	PriorityConversation Priority = 300
)

func (p Priority) Label() string {
	switch {
	case p >= PriorityConversation:
		return "conversation"
	case p >= PrioritySurvival:
		return "survival"
	default:
		return "idle"
	}
}
