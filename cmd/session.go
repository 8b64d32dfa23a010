package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bnema/parley/internal/adapters/decision"
	scenariotoml "github.com/bnema/parley/internal/adapters/scenario/toml"
	"github.com/bnema/parley/internal/adapters/transport"
	"github.com/bnema/parley/internal/adapters/transport/router"
	"github.com/bnema/parley/internal/adapters/world/memory"
	"github.com/bnema/parley/internal/application"
	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/logger"
	"github.com/bnema/parley/internal/ports"
)

// session is one scenario run: world, simulation and responder driven by a
// shared clock.
type session struct {
	scenario  scenariotoml.Scenario
	world     *memory.World
	sim       *application.Simulation
	responder *decision.Responder
	router    *router.Router
	logger    *log.Logger

	start time.Time
	tick  time.Duration
	clock ports.Clock
	next  int
}

func (a *app) newSession(ctx context.Context, scn scenariotoml.Scenario, override domain.LLMType) (*session, error) {
	r, err := a.newRouter(ctx, scn.Lines())
	if err != nil {
		return nil, err
	}

	override = override.Normalize()
	if override != "" && !r.Has(override) {
		return nil, fmt.Errorf("transport %q is not available (registered: %v): %w", override, r.Types(), domain.ErrUnknownLLMType)
	}

	l := logger.Component(a.logger, "session")
	world := memory.New(a.cfg.Simulation.MoveSpeed)
	for _, agent := range scn.Agents {
		llmType := agent.LLMType
		if override != "" {
			llmType = override
		}
		if !r.Has(llmType) {
			l.Warn("agent transport unavailable, using scripted lines", "agent", agent.ID, "type", llmType)
			llmType = domain.LLMTypeScripted
		}

		if err := world.Add(memory.Agent{
			ID:             agent.ID,
			Name:           agent.Name,
			Position:       agent.Position,
			Gregariousness: agent.Gregariousness,
			LLMType:        llmType,
			Hungry:         agent.Hungry,
		}); err != nil {
			return nil, fmt.Errorf("add agent %q: %w", agent.ID, err)
		}
	}

	start := a.clock.Now()
	sim := application.NewSimulation(a.settings(), world, world, r, start, application.WithLogger(a.logger))
	sim.SetLLMType(world.LLMType)

	responder := decision.New(decision.Config{
		ReplyThreshold: a.cfg.Conversation.ReplyThreshold,
		ThinkInterval:  a.cfg.Simulation.ThinkInterval,
		HearingRange:   a.cfg.Conversation.HearingRange,
	}, sim, world, a.logger)
	sim.SetInviter(responder)

	return &session{
		scenario:  scn,
		world:     world,
		sim:       sim,
		responder: responder,
		router:    r,
		logger:    l,
		start:     start,
		tick:      a.cfg.Simulation.Tick,
		clock:     a.clock,
	}, nil
}

// defaultTicks covers the scenario duration.
func (s *session) defaultTicks() int {
	n := int(s.scenario.Duration / s.tick)
	return max(n, 1)
}

// step advances the run by one tick at now.
func (s *session) step(ctx context.Context, now time.Time) application.TickReport {
	s.applyEvents(now)
	s.responder.Tick(now)
	s.world.Step(s.tick)
	return s.sim.Tick(ctx, now)
}

func (s *session) applyEvents(now time.Time) {
	elapsed := now.Sub(s.start)
	for s.next < len(s.scenario.Events) && s.scenario.Events[s.next].At <= elapsed {
		ev := s.scenario.Events[s.next]
		s.next++

		switch ev.Kind {
		case scenariotoml.EventSpeak:
			if _, err := s.sim.OnAgentSpeak(ev.Agent, ev.Text, transport.EstimateTokens(ev.Text), now); err != nil {
				s.logger.Warn("scripted speech dropped", "agent", ev.Agent, "err", err)
			}
		case scenariotoml.EventDepart:
			s.sim.RemoveAgent(ev.Agent, now)
			s.world.Remove(ev.Agent)
			s.responder.Forget(ev.Agent)
		case scenariotoml.EventMove:
			if err := s.world.MoveTo(ev.Agent, ev.Target); err != nil {
				s.logger.Warn("move dropped", "agent", ev.Agent, "err", err)
			}
		}
		s.logger.Debug("event applied", "kind", ev.Kind, "agent", ev.Agent, "at", ev.At)
	}
}

type runOptions struct {
	ticks    int
	realtime bool
	every    int
	// progress, when set, is told about every finished tick.
	progress func(tick, conversations int)
}

// run steps the session ticks times and returns the time of the last tick.
// Outside realtime mode the clock is virtual and every tick waits for the
// calls it dispatched, so the same scenario always plays out the same way.
func (s *session) run(ctx context.Context, opts runOptions, emit func(application.Snapshot) error) (time.Time, error) {
	var ticker *time.Ticker
	if opts.realtime {
		ticker = time.NewTicker(s.tick)
		defer ticker.Stop()
	}
	defer s.sim.Wait()

	now := s.start
	for i := 1; i <= opts.ticks; i++ {
		if opts.realtime {
			select {
			case <-ctx.Done():
				return now, ctx.Err()
			case <-ticker.C:
			}
			now = s.clock.Now()
		} else {
			if err := ctx.Err(); err != nil {
				return now, err
			}
			now = s.start.Add(time.Duration(i) * s.tick)
		}

		report := s.step(ctx, now)
		if report.Dispatched > 0 || report.Completions > 0 {
			s.logger.Debug("tick", "n", i, "dispatched", report.Dispatched, "completions", report.Completions, "conversations", report.Conversations)
		}
		if !opts.realtime {
			s.sim.Wait()
		}
		if opts.progress != nil {
			opts.progress(i, report.Conversations)
		}

		if opts.every > 0 && i%opts.every == 0 && emit != nil {
			if err := emit(s.sim.Snapshot(now)); err != nil {
				return now, err
			}
		}
	}

	return now, nil
}
