package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/parley/internal/domain"
)

func TestWorldAddRemoveAndQueries(t *testing.T) {
	t.Parallel()

	w := New(1)
	require.NoError(t, w.Add(Agent{ID: "b", Position: domain.Vec2{X: 1}, Gregariousness: 0.8, LLMType: domain.LLMTypeOpenAI}))
	require.NoError(t, w.Add(Agent{ID: "a"}))
	assert.Error(t, w.Add(Agent{ID: "a"}))
	assert.ErrorIs(t, w.Add(Agent{}), domain.ErrAgentNotFound)

	assert.Equal(t, []domain.AgentID{"b", "a"}, w.Agents())
	assert.True(t, w.Exists("b"))
	assert.InDelta(t, 0.8, w.Gregariousness("b"), 1e-9)
	assert.Equal(t, domain.LLMTypeOpenAI, w.LLMType("b"))
	pos, ok := w.Position("b")
	require.True(t, ok)
	assert.Equal(t, domain.Vec2{X: 1}, pos)

	assert.True(t, w.Remove("b"))
	assert.False(t, w.Remove("b"))
	assert.False(t, w.Exists("b"))
	_, ok = w.Position("b")
	assert.False(t, ok)
	assert.Zero(t, w.Gregariousness("b"))
}

func TestWorldStepWalksTowardTarget(t *testing.T) {
	t.Parallel()

	w := New(2)
	require.NoError(t, w.Add(Agent{ID: "a"}))
	require.NoError(t, w.MoveTo("a", domain.Vec2{X: 3}))
	assert.ErrorIs(t, w.MoveTo("ghost", domain.Vec2{}), domain.ErrAgentNotFound)

	w.Step(time.Second)
	pos, _ := w.Position("a")
	assert.InDelta(t, 2, pos.X, 1e-9)

	w.Step(time.Second)
	pos, _ = w.Position("a")
	assert.Equal(t, domain.Vec2{X: 3}, pos, "arrival snaps to the target")

	w.Step(time.Second)
	pos, _ = w.Position("a")
	assert.Equal(t, domain.Vec2{X: 3}, pos)
}

func TestWorldStepAppliesAndClearsForces(t *testing.T) {
	t.Parallel()

	w := New(1)
	require.NoError(t, w.Add(Agent{ID: "a"}))

	w.ApplyForce("a", domain.Vec2{Y: 0.5})
	w.ApplyForce("ghost", domain.Vec2{Y: 1})
	w.Step(time.Second)
	pos, _ := w.Position("a")
	assert.InDelta(t, 0.5, pos.Y, 1e-9)

	w.ApplyForce("a", domain.Vec2{X: 10})
	w.Step(time.Second)
	pos, _ = w.Position("a")
	assert.InDelta(t, 1, pos.X, 1e-9, "speed is capped")

	w.Step(time.Second)
	pos2, _ := w.Position("a")
	assert.Equal(t, pos, pos2, "forces do not carry over")
}

func TestWorldSetHungry(t *testing.T) {
	t.Parallel()

	w := New(1)
	require.NoError(t, w.Add(Agent{ID: "a"}))
	w.SetHungry("a", true)

	a, ok := w.Get("a")
	require.True(t, ok)
	assert.True(t, a.Hungry)
	assert.True(t, w.IsHungry("a"))
	assert.False(t, w.IsHungry("ghost"))
}

func TestWorldName(t *testing.T) {
	t.Parallel()

	w := New(1)
	require.NoError(t, w.Add(Agent{ID: "a", Name: "Ada"}))
	require.NoError(t, w.Add(Agent{ID: "b"}))

	assert.Equal(t, "Ada", w.Name("a"))
	assert.Equal(t, "b", w.Name("b"))
	assert.Equal(t, "ghost", w.Name("ghost"))
}
