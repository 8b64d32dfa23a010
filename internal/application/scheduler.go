package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/ports"
)

// RateLimiter is a non-blocking quota check; callers re-poll on false.
type RateLimiter interface {
	TryAcquire(now time.Time) bool
}

type inboxEntry struct {
	generation uint64
	completion domain.Completion
	onComplete func(domain.Completion)
}

type schedulerMetrics struct {
	dispatched      metric.Int64Counter
	discardedStale  metric.Int64Counter
	transportErrors metric.Int64Counter
	cancelled       metric.Int64Counter
}

// Scheduler drains queued LLM requests at the rate the limiter permits.
// Enqueue, Cancel, Drain and ApplyCompletions belong to the tick loop and must
// not be called concurrently; transport calls run on their own goroutines and
// only touch the completion inbox.
type Scheduler struct {
	limiter   RateLimiter
	queue     *RequestQueue
	world     ports.World
	transport ports.Transport
	logger    *log.Logger
	metrics   schedulerMetrics

	tick       uint64
	generation uint64
	depth      atomic.Int64
	inFlight   atomic.Int64
	wg         sync.WaitGroup

	mu    sync.Mutex
	inbox []inboxEntry
}

func NewScheduler(limiter RateLimiter, world ports.World, transport ports.Transport, opts ...Option) *Scheduler {
	o := buildOptions(opts)

	s := &Scheduler{
		limiter:   limiter,
		queue:     NewRequestQueue(),
		world:     world,
		transport: transport,
		logger:    o.component("scheduler"),
	}
	s.registerMetrics(o.meter("scheduler"))
	return s
}

// Enqueue stamps req with the current tick and queues it. The prompt builder
// is not called here.
func (s *Scheduler) Enqueue(req LLMRequest) domain.RequestID {
	req.EnqueuedAtTick = s.tick
	id := s.queue.Push(req)
	s.syncDepth()

	s.logger.Debug("request queued", "request", id, "agent", req.AgentID, "priority", req.Priority.Label())
	return id
}

// Cancel removes all pending requests owned by agent. In-flight calls are not
// interrupted.
func (s *Scheduler) Cancel(agent domain.AgentID) int {
	n := s.queue.RemoveAgent(agent)
	if n > 0 {
		s.syncDepth()
		s.metrics.cancelled.Add(context.Background(), int64(n))
		s.logger.Debug("requests cancelled", "agent", agent, "count", n)
	}
	return n
}

func (s *Scheduler) CancelRequest(id domain.RequestID) bool {
	if !s.queue.Remove(id) {
		return false
	}
	s.syncDepth()
	s.metrics.cancelled.Add(context.Background(), 1)
	return true
}

func (s *Scheduler) IsPending(id domain.RequestID) bool {
	return s.queue.Contains(id)
}

// Drain dispatches queued requests in priority order while the limiter grants
// capacity. Requests whose agent no longer exists are dropped before any
// capacity is spent on them. It returns the number of dispatched requests.
func (s *Scheduler) Drain(ctx context.Context, now time.Time) int {
	s.tick++
	dispatched := 0

	for {
		next, ok := s.queue.Peek()
		if !ok {
			break
		}

		if !s.world.Exists(next.AgentID) {
			s.queue.Pop()
			s.metrics.discardedStale.Add(ctx, 1, metric.WithAttributes(bandAttr(next.Priority)))
			s.logger.Debug("stale request discarded", "request", next.ID, "agent", next.AgentID)
			continue
		}

		if !s.limiter.TryAcquire(now) {
			break
		}

		req, _ := s.queue.Pop()
		var prompt string
		if req.Prompt != nil {
			prompt = req.Prompt.Build(s.world)
		}
		s.dispatch(ctx, req, prompt)
		dispatched++
	}

	s.syncDepth()
	return dispatched
}

func (s *Scheduler) dispatch(ctx context.Context, req LLMRequest, prompt string) {
	call := ports.LLMCall{
		RequestID: req.ID,
		AgentID:   req.AgentID,
		LLMType:   req.LLMType,
		Prompt:    prompt,
	}
	generation := s.generation

	s.metrics.dispatched.Add(ctx, 1, metric.WithAttributes(bandAttr(req.Priority)))
	s.logger.Debug("request dispatched", "request", req.ID, "agent", req.AgentID, "priority", req.Priority.Label())

	s.inFlight.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Add(-1)

		completion := domain.Completion{
			RequestID: req.ID,
			AgentID:   req.AgentID,
			LLMType:   req.LLMType,
		}

		resp, err := s.transport.Send(ctx, call)
		if err != nil {
			completion.Err = &domain.TransportError{
				RequestID: req.ID,
				AgentID:   req.AgentID,
				LLMType:   req.LLMType,
				Err:       err,
			}
		} else {
			completion.Response = resp
		}

		s.mu.Lock()
		s.inbox = append(s.inbox, inboxEntry{generation: generation, completion: completion, onComplete: req.OnComplete})
		s.mu.Unlock()
	}()
}

// ApplyCompletions delivers every completion that arrived since the previous
// call, in arrival order, stamping them with now.
func (s *Scheduler) ApplyCompletions(now time.Time) int {
	s.mu.Lock()
	batch := s.inbox
	s.inbox = nil
	s.mu.Unlock()

	applied := 0
	for _, entry := range batch {
		if entry.generation != s.generation {
			continue
		}
		c := entry.completion
		c.CompletedAt = now
		if c.Failed() {
			s.metrics.transportErrors.Add(context.Background(), 1)
			s.logger.Warn("transport call failed", "request", c.RequestID, "agent", c.AgentID, "error", c.Err)
		}
		if entry.onComplete != nil {
			entry.onComplete(c)
		}
		applied++
	}
	return applied
}

// Wait blocks until every dispatched transport call has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

func (s *Scheduler) PendingByBand() map[string]int {
	return s.queue.CountByBand()
}

func (s *Scheduler) InFlight() int {
	return int(s.inFlight.Load())
}

func (s *Scheduler) Tick() uint64 {
	return s.tick
}

// Reset drops queued requests, swaps the limiter and orphans completions of
// calls dispatched before the reset.
func (s *Scheduler) Reset(limiter RateLimiter) {
	s.queue.Clear()
	s.limiter = limiter
	s.generation++
	s.tick = 0

	s.mu.Lock()
	s.inbox = nil
	s.mu.Unlock()

	s.syncDepth()
}

func (s *Scheduler) syncDepth() {
	s.depth.Store(int64(s.queue.Len()))
}

func (s *Scheduler) registerMetrics(meter metric.Meter) {
	s.metrics.dispatched, _ = meter.Int64Counter("parley.scheduler.dispatched",
		metric.WithDescription("LLM requests handed to a transport"))
	s.metrics.discardedStale, _ = meter.Int64Counter("parley.scheduler.discarded_stale",
		metric.WithDescription("Requests dropped because their agent no longer exists"))
	s.metrics.transportErrors, _ = meter.Int64Counter("parley.scheduler.transport_errors",
		metric.WithDescription("Completions carrying a transport error"))
	s.metrics.cancelled, _ = meter.Int64Counter("parley.scheduler.cancelled",
		metric.WithDescription("Pending requests removed before dispatch"))

	_, _ = meter.Int64ObservableGauge("parley.scheduler.queue_depth",
		metric.WithDescription("Requests waiting for rate capacity"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(s.depth.Load())
			return nil
		}),
	)
}

func bandAttr(p domain.Priority) attribute.KeyValue {
	return attribute.String("band", p.Label())
}
