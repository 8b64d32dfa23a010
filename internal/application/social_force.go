package application

import (
	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

type SocialConfig struct {
	CrowdThreshold   int
	AttractThreshold float64
	RepelThreshold   float64
	Magnitude        float64
	// Radius is measured from the centroid; usually the hearing range.
	Radius float64
}

// SocialForceField pulls gregarious bystanders toward crowded conversations
// and pushes shy ones away. Agents between the two thresholds are left alone.
type SocialForceField struct {
	cfg      SocialConfig
	registry *ConversationRegistry
	world    ports.World
}

func NewSocialForceField(cfg SocialConfig, registry *ConversationRegistry, world ports.World) *SocialForceField {
	return &SocialForceField{cfg: cfg, registry: registry, world: world}
}

// Compute returns one summed force per affected agent, in world order.
// It reads the registry and world and mutates neither.
func (f *SocialForceField) Compute() []domain.Force {
	sums := map[domain.AgentID]domain.Vec2{}

	for _, conv := range f.registry.All() {
		if len(conv.Participants) < f.cfg.CrowdThreshold {
			continue
		}
		for _, agent := range f.world.Agents() {
			if conv.HasParticipant(agent) {
				continue
			}
			pos, ok := f.world.Position(agent)
			if !ok {
				continue
			}
			toCentroid := conv.Location.Sub(pos)
			dist := toCentroid.Len()
			if dist == 0 || dist > f.cfg.Radius {
				continue
			}

			var sign float64
			switch g := f.world.Gregariousness(agent); {
			case g > f.cfg.AttractThreshold:
				sign = 1
			case g < f.cfg.RepelThreshold:
				sign = -1
			default:
				continue
			}
			sums[agent] = sums[agent].Add(toCentroid.Unit().Scale(sign * f.cfg.Magnitude))
		}
	}

	if len(sums) == 0 {
		return nil
	}
	out := make([]domain.Force, 0, len(sums))
	for _, agent := range f.world.Agents() {
		if v, ok := sums[agent]; ok {
			out = append(out, domain.Force{AgentID: agent, Vector: v})
		}
	}
	return out
}

// Apply computes the field and hands every force to steering.
func (f *SocialForceField) Apply(steering ports.Steering) []domain.Force {
	forces := f.Compute()
	for _, force := range forces {
		steering.ApplyForce(force.AgentID, force.Vector)
	}
	return forces
}
