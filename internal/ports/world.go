package ports

import "github.com/bnema/parley/internal/domain"

// World is the read-only view of the entity store this core consumes.
// Agents must return ids in a stable order.
type World interface {
	Exists(id domain.AgentID) bool
	Position(id domain.AgentID) (domain.Vec2, bool)
	Gregariousness(id domain.AgentID) float64
	Agents() []domain.AgentID
}

// Steering accepts per-agent force vectors; applying them is its job.
type Steering interface {
	ApplyForce(id domain.AgentID, force domain.Vec2)
}
