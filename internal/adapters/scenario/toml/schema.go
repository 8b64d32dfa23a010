package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int           `toml:"version"`
	Name     string        `toml:"name,omitempty"`
	Duration string        `toml:"duration,omitempty"`
	Agents   []agentSchema `toml:"agents"`
	Events   []eventSchema `toml:"events,omitempty"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported scenario schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type agentSchema struct {
	ID             string   `toml:"id"`
	Name           string   `toml:"name,omitempty"`
	X              float64  `toml:"x"`
	Y              float64  `toml:"y"`
	Gregariousness float64  `toml:"gregariousness"`
	LLMType        string   `toml:"llm_type,omitempty"`
	Hungry         bool     `toml:"hungry,omitempty"`
	Lines          []string `toml:"lines,omitempty"`
}

type eventSchema struct {
	At    string  `toml:"at"`
	Kind  string  `toml:"kind"`
	Agent string  `toml:"agent"`
	Text  string  `toml:"text,omitempty"`
	X     float64 `toml:"x,omitempty"`
	Y     float64 `toml:"y,omitempty"`
}
