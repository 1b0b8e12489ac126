package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Foreman/internal/hermes"
	"github.com/MikeSquared-Agency/Foreman/internal/ticket"
)

var ErrQueueFull = errors.New("delegation queue full")

type delegationState int

const (
	statePending delegationState = iota
	stateRunning
	stateDone
)

// Delegation is the handle returned by Submit. Callers wait on Done and read
// Result; Cancel before the executor starts is guaranteed, after that it is
// best-effort via context cancellation.
type Delegation struct {
	ID       uuid.UUID
	Request  DelegationRequest
	Priority ticket.Priority

	d      *Dispatcher
	cap    int
	st     delegationState
	cancel context.CancelFunc
	result *DelegationResult
	err    error
	done   chan struct{}
}

// Done closes when the delegation has finished, failed, or been cancelled.
func (h *Delegation) Done() <-chan struct{} { return h.done }

// Status reports where the delegation is in its lifecycle.
func (h *Delegation) Status() string {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	switch h.st {
	case statePending:
		return "queued"
	case stateRunning:
		return "running"
	}
	if h.result != nil {
		return h.result.Status
	}
	return "failed"
}

// Result is valid once Done is closed.
func (h *Delegation) Result() (*DelegationResult, error) {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	return h.result, h.err
}

// Cancel withdraws a pending delegation immediately; a running one has its
// context cancelled and finishes as cancelled when the executor gives up.
func (h *Delegation) Cancel(reason string) {
	h.d.mu.Lock()
	switch h.st {
	case statePending:
		h.d.removeQueued(h)
		h.st = stateDone
		h.result = &DelegationResult{
			ID:        h.ID,
			AgentType: h.Request.AgentType,
			Status:    "cancelled",
			Error:     reason,
		}
		close(h.done)
		h.d.mu.Unlock()
		h.d.publishCancelled(h, reason)
		return
	case stateRunning:
		cancel := h.cancel
		h.d.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	h.d.mu.Unlock()
}

// priorityBuckets orders the four queues from most to least urgent.
var priorityBuckets = []ticket.Priority{
	ticket.PriorityCritical,
	ticket.PriorityHigh,
	ticket.PriorityMedium,
	ticket.PriorityLow,
}

func bucketIndex(p ticket.Priority) int {
	for i, b := range priorityBuckets {
		if b == p {
			return i
		}
	}
	return len(priorityBuckets) - 1
}

// Dispatcher feeds delegations to a bounded worker pool. Work drains in
// priority order, FIFO within a priority, and each agent type never runs
// more concurrent delegations than its profile allows.
type Dispatcher struct {
	orch    *Orchestrator
	logger  *slog.Logger
	workers int
	depth   int

	mu      sync.Mutex
	queues  [4][]*Delegation
	queued  int
	running map[string]int
	handles map[uuid.UUID]*Delegation

	wake     chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewDispatcher(orch *Orchestrator, logger *slog.Logger) *Dispatcher {
	workers := orch.cfg.Dispatch.MaxConcurrent
	if workers < 1 {
		workers = 5
	}
	depth := orch.cfg.Dispatch.QueueDepth
	if depth < 1 {
		depth = 256
	}
	return &Dispatcher{
		orch:    orch,
		logger:  logger,
		workers: workers,
		depth:   depth,
		running: make(map[string]int),
		handles: make(map[uuid.UUID]*Delegation),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

// Submit validates the request, resolves the agent's concurrency cap, and
// enqueues. Profile resolution failures surface here, before any queueing.
func (d *Dispatcher) Submit(req DelegationRequest) (*Delegation, error) {
	if req.TaskDescription == "" {
		return nil, fmt.Errorf("task description required")
	}
	if req.Priority == "" {
		req.Priority = ticket.PriorityMedium
	}
	if !ticket.ValidPriority(req.Priority) {
		return nil, fmt.Errorf("unknown priority %q", req.Priority)
	}

	profile, err := d.orch.registry.Resolve(req.AgentType)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	h := &Delegation{
		ID:       id,
		Request:  req,
		Priority: req.Priority,
		d:        d,
		cap:      profile.MaxConcurrent,
		done:     make(chan struct{}),
	}

	d.mu.Lock()
	if d.queued >= d.depth {
		d.mu.Unlock()
		return nil, ErrQueueFull
	}
	i := bucketIndex(req.Priority)
	d.queues[i] = append(d.queues[i], h)
	d.queued++
	d.handles[id] = h
	d.mu.Unlock()

	d.orch.publish(hermes.SubjectDelegationQueued(id.String()), hermes.DelegationQueuedEvent{
		DelegationID: id.String(),
		AgentType:    req.AgentType,
		Priority:     string(req.Priority),
	})
	d.logger.Info("delegation queued", "delegation_id", id, "agent", req.AgentType, "priority", req.Priority)
	d.notify()
	return h, nil
}

// Lookup returns a previously submitted delegation handle.
func (d *Dispatcher) Lookup(id uuid.UUID) (*Delegation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.handles[id]
	return h, ok
}

// QueueDepth reports delegations waiting to run.
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queued
}

func (d *Dispatcher) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		h := d.next()
		if h == nil {
			select {
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			case <-d.wake:
				continue
			}
		}
		// more queued work may be runnable in parallel
		d.notify()
		d.run(ctx, h)
	}
}

// next pops the oldest runnable delegation from the highest-priority bucket,
// skipping agents already at their concurrency cap.
func (d *Dispatcher) next() *Delegation {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.queues {
		for j, h := range d.queues[i] {
			if d.running[h.Request.AgentType] >= h.cap {
				continue
			}
			d.queues[i] = append(d.queues[i][:j], d.queues[i][j+1:]...)
			d.queued--
			d.running[h.Request.AgentType]++
			h.st = stateRunning
			return h
		}
	}
	return nil
}

func (d *Dispatcher) run(ctx context.Context, h *Delegation) {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	h.cancel = cancel
	d.mu.Unlock()

	res, err := d.orch.Delegate(runCtx, h.ID, h.Request)
	cancel()

	d.mu.Lock()
	h.st = stateDone
	h.result = res
	h.err = err
	d.running[h.Request.AgentType]--
	close(h.done)
	d.mu.Unlock()

	// an agent slot freed up, another queued delegation may be runnable now
	d.notify()
}

// removeQueued is called with d.mu held.
func (d *Dispatcher) removeQueued(h *Delegation) {
	i := bucketIndex(h.Priority)
	for j, q := range d.queues[i] {
		if q == h {
			d.queues[i] = append(d.queues[i][:j], d.queues[i][j+1:]...)
			d.queued--
			return
		}
	}
}

func (d *Dispatcher) publishCancelled(h *Delegation, reason string) {
	d.orch.publish(hermes.SubjectDelegationCancelled(h.ID.String()), hermes.DelegationFailedEvent{
		DelegationID: h.ID.String(),
		AgentType:    h.Request.AgentType,
		Error:        reason,
	})
	d.logger.Info("delegation cancelled", "delegation_id", h.ID, "reason", reason)
}
