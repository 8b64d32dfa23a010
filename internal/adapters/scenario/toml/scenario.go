// Package toml loads and writes simulation scenarios stored as TOML.
package toml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bnema/parley/internal/domain"
)

const (
	scenarioFileMode = 0o644
	scenarioDirMode  = 0o755
	tempFilePattern  = ".scenario-*.toml.tmp"
	defaultDuration  = 30 * time.Second
)

type EventKind string

const (
	EventSpeak  EventKind = "speak"
	EventDepart EventKind = "depart"
	EventMove   EventKind = "move"
)

type Agent struct {
	ID             domain.AgentID
	Name           string
	Position       domain.Vec2
	Gregariousness float64
	LLMType        domain.LLMType
	Hungry         bool
	Lines          []string
}

type Event struct {
	At     time.Duration
	Kind   EventKind
	Agent  domain.AgentID
	Text   string
	Target domain.Vec2
}

// Scenario is the initial world and scripted event timeline of one run.
type Scenario struct {
	Name     string
	Duration time.Duration
	Agents   []Agent
	Events   []Event
}

// Lines returns the scripted replies keyed by agent.
func (s Scenario) Lines() map[domain.AgentID][]string {
	out := make(map[domain.AgentID][]string, len(s.Agents))
	for _, a := range s.Agents {
		if len(a.Lines) > 0 {
			out[a.ID] = a.Lines
		}
	}
	return out
}

func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario file: %w", err)
	}

	scenario, err := Decode(data)
	if err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// Decode parses and validates a scenario document. Validation problems are
// joined and wrap domain.ErrInvalidScenario.
func Decode(data []byte) (Scenario, error) {
	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return Scenario{}, err
	}
	file.applyDefaults()

	return fromSchema(file)
}

// Save writes scenario to path atomically.
func Save(path string, scenario Scenario) error {
	data, err := Encode(scenario)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), scenarioDirMode); err != nil {
		return fmt.Errorf("create scenario directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp scenario file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp scenario file: %w", err)
	}
	if err := tempFile.Chmod(scenarioFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp scenario file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp scenario file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace scenario file: %w", err)
	}

	cleanup = false
	return nil
}

func Encode(scenario Scenario) ([]byte, error) {
	data, err := toml.Marshal(toSchema(scenario))
	if err != nil {
		return nil, fmt.Errorf("encode scenario file: %w", err)
	}
	return data, nil
}

func fromSchema(file fileSchema) (Scenario, error) {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidScenario}, args...)...))
	}

	scenario := Scenario{Name: file.Name, Duration: defaultDuration}
	if file.Duration != "" {
		d, err := time.ParseDuration(file.Duration)
		if err != nil || d <= 0 {
			invalid("duration %q must be a positive duration", file.Duration)
		} else {
			scenario.Duration = d
		}
	}

	if len(file.Agents) == 0 {
		invalid("no agents defined")
	}

	seen := map[domain.AgentID]bool{}
	for i, a := range file.Agents {
		id := domain.AgentID(strings.TrimSpace(a.ID))
		switch {
		case id == "":
			invalid("agent %d has no id", i)
			continue
		case seen[id]:
			invalid("duplicate agent id %q", id)
			continue
		}
		seen[id] = true

		if a.Gregariousness < 0 || a.Gregariousness > 1 {
			invalid("agent %q gregariousness %.2f outside [0, 1]", id, a.Gregariousness)
		}
		llmType := domain.LLMType(a.LLMType).Normalize()
		if llmType != "" && !slices.Contains(domain.KnownLLMTypes(), llmType) {
			invalid("agent %q has unknown llm_type %q", id, a.LLMType)
		}

		name := a.Name
		if name == "" {
			name = string(id)
		}
		scenario.Agents = append(scenario.Agents, Agent{
			ID:             id,
			Name:           name,
			Position:       domain.Vec2{X: a.X, Y: a.Y},
			Gregariousness: a.Gregariousness,
			LLMType:        llmType,
			Hungry:         a.Hungry,
			Lines:          slices.Clone(a.Lines),
		})
	}

	for i, e := range file.Events {
		at, err := time.ParseDuration(e.At)
		if err != nil || at < 0 {
			invalid("event %d has invalid time %q", i, e.At)
			continue
		}
		agent := domain.AgentID(strings.TrimSpace(e.Agent))
		if !seen[agent] {
			invalid("event %d references unknown agent %q", i, e.Agent)
			continue
		}

		kind := EventKind(strings.ToLower(strings.TrimSpace(e.Kind)))
		switch kind {
		case EventSpeak:
			if strings.TrimSpace(e.Text) == "" {
				invalid("event %d speak has no text", i)
				continue
			}
		case EventDepart, EventMove:
		default:
			invalid("event %d has unknown kind %q", i, e.Kind)
			continue
		}

		scenario.Events = append(scenario.Events, Event{
			At:     at,
			Kind:   kind,
			Agent:  agent,
			Text:   strings.TrimSpace(e.Text),
			Target: domain.Vec2{X: e.X, Y: e.Y},
		})
	}

	if err := errors.Join(errs...); err != nil {
		return Scenario{}, err
	}

	slices.SortStableFunc(scenario.Events, func(a, b Event) int {
		switch {
		case a.At < b.At:
			return -1
		case a.At > b.At:
			return 1
		default:
			return 0
		}
	})
	return scenario, nil
}

func toSchema(scenario Scenario) fileSchema {
	file := fileSchema{Version: currentSchemaVersion, Name: scenario.Name}
	if scenario.Duration > 0 {
		file.Duration = scenario.Duration.String()
	}
	for _, a := range scenario.Agents {
		file.Agents = append(file.Agents, agentSchema{
			ID:             string(a.ID),
			Name:           a.Name,
			X:              a.Position.X,
			Y:              a.Position.Y,
			Gregariousness: a.Gregariousness,
			LLMType:        string(a.LLMType),
			Hungry:         a.Hungry,
			Lines:          a.Lines,
		})
	}
	for _, e := range scenario.Events {
		file.Events = append(file.Events, eventSchema{
			At:    e.At.String(),
			Kind:  string(e.Kind),
			Agent: string(e.Agent),
			Text:  e.Text,
			X:     e.Target.X,
			Y:     e.Target.Y,
		})
	}
	return file
}

// Example returns the two-agent scenario written by `parley init`.
func Example() Scenario {
	return Scenario{
		Name:     "plaza",
		Duration: 20 * time.Second,
		Agents: []Agent{
			{ID: "ada", Name: "Ada", Gregariousness: 0.8, LLMType: domain.LLMTypeScripted, Lines: []string{"Lovely morning for a walk."}},
			{ID: "bruno", Name: "Bruno", Position: domain.Vec2{X: 10}, Gregariousness: 0.6, LLMType: domain.LLMTypeScripted, Lines: []string{"It is, the fountain is running again.", "See you around."}},
			{ID: "cleo", Name: "Cleo", Position: domain.Vec2{X: 40, Y: 5}, Gregariousness: 0.9, Hungry: true},
		},
		Events: []Event{
			{At: time.Second, Kind: EventSpeak, Agent: "ada", Text: "Hello Bruno, lovely morning."},
			{At: 2 * time.Second, Kind: EventMove, Agent: "cleo", Target: domain.Vec2{X: 12, Y: 4}},
			{At: 15 * time.Second, Kind: EventDepart, Agent: "bruno"},
		},
	}
}
