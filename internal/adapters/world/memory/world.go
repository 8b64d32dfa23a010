// Package memory is an in-process agent store implementing the World view
// and the Steering collaborator for CLI runs.
package memory

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

type Agent struct {
	ID             domain.AgentID
	Name           string
	Position       domain.Vec2
	Gregariousness float64
	LLMType        domain.LLMType
	Hungry         bool
}

type entry struct {
	agent  Agent
	target *domain.Vec2
	force  domain.Vec2
}

type World struct {
	speed float64

	mu     sync.RWMutex
	order  []domain.AgentID
	agents map[domain.AgentID]*entry
}

var (
	_ ports.World    = (*World)(nil)
	_ ports.Steering = (*World)(nil)
)

// New returns an empty world whose agents walk at speed units per second.
func New(speed float64) *World {
	return &World{speed: speed, agents: map[domain.AgentID]*entry{}}
}

func (w *World) Add(agent Agent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if agent.ID == "" {
		return fmt.Errorf("add agent: %w", domain.ErrAgentNotFound)
	}
	if _, ok := w.agents[agent.ID]; ok {
		return fmt.Errorf("agent %s already exists", agent.ID)
	}
	w.agents[agent.ID] = &entry{agent: agent}
	w.order = append(w.order, agent.ID)
	return nil
}

func (w *World) Remove(id domain.AgentID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.agents[id]; !ok {
		return false
	}
	delete(w.agents, id)
	w.order = slices.DeleteFunc(w.order, func(existing domain.AgentID) bool { return existing == id })
	return true
}

func (w *World) Get(id domain.AgentID) (Agent, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	e, ok := w.agents[id]
	if !ok {
		return Agent{}, false
	}
	return e.agent, true
}

func (w *World) Exists(id domain.AgentID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.agents[id]
	return ok
}

func (w *World) Position(id domain.AgentID) (domain.Vec2, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	e, ok := w.agents[id]
	if !ok {
		return domain.Vec2{}, false
	}
	return e.agent.Position, true
}

func (w *World) Gregariousness(id domain.AgentID) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if e, ok := w.agents[id]; ok {
		return e.agent.Gregariousness
	}
	return 0
}

// Agents returns ids in insertion order.
func (w *World) Agents() []domain.AgentID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.order)
}

// LLMType reports the model family an agent speaks through.
func (w *World) LLMType(id domain.AgentID) domain.LLMType {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if e, ok := w.agents[id]; ok {
		return e.agent.LLMType
	}
	return ""
}

func (w *World) ApplyForce(id domain.AgentID, force domain.Vec2) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.agents[id]; ok {
		e.force = e.force.Add(force)
	}
}

// MoveTo sets a destination the agent walks toward during Step.
func (w *World) MoveTo(id domain.AgentID, target domain.Vec2) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.agents[id]
	if !ok {
		return fmt.Errorf("move %s: %w", id, domain.ErrAgentNotFound)
	}
	e.target = &target
	return nil
}

func (w *World) SetHungry(id domain.AgentID, hungry bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.agents[id]; ok {
		e.agent.Hungry = hungry
	}
}

// Step integrates one movement substep of length dt. Agents with a
// destination walk toward it; accumulated social forces add to the heading.
// Speed is capped at the world speed and forces are cleared afterwards.
func (w *World) Step(dt time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	maxStep := w.speed * dt.Seconds()
	for _, id := range w.order {
		e := w.agents[id]

		var heading domain.Vec2
		if e.target != nil {
			toTarget := e.target.Sub(e.agent.Position)
			if toTarget.Len() <= maxStep {
				e.agent.Position = *e.target
				e.target = nil
			} else {
				heading = toTarget.Unit()
			}
		}
		heading = heading.Add(e.force)
		e.force = domain.Vec2{}

		if heading.Len() == 0 || maxStep <= 0 {
			continue
		}
		move := heading
		if move.Len() > 1 {
			move = move.Unit()
		}
		e.agent.Position = e.agent.Position.Add(move.Scale(maxStep))
	}
}

func (w *World) IsHungry(id domain.AgentID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if e, ok := w.agents[id]; ok {
		return e.agent.Hungry
	}
	return false
}

func (w *World) Name(id domain.AgentID) string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if e, ok := w.agents[id]; ok && e.agent.Name != "" {
		return e.agent.Name
	}
	return string(id)
}
