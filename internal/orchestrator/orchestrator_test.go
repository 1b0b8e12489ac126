package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Foreman/internal/config"
	"github.com/MikeSquared-Agency/Foreman/internal/enforce"
	"github.com/MikeSquared-Agency/Foreman/internal/executor"
	"github.com/MikeSquared-Agency/Foreman/internal/prompt"
	"github.com/MikeSquared-Agency/Foreman/internal/registry"
	"github.com/MikeSquared-Agency/Foreman/internal/scoring"
	"github.com/MikeSquared-Agency/Foreman/internal/ticket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
}

func (b *recordingBus) Publish(subject string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	return nil
}

func (b *recordingBus) Close() {}

func (b *recordingBus) sawSuffix(suffix string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subjects {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

type mockExecutor struct {
	mu    sync.Mutex
	calls []executor.InvokeRequest
	fn    func(n int, req executor.InvokeRequest) (*executor.Result, error)
}

func (m *mockExecutor) Invoke(ctx context.Context, req executor.InvokeRequest) (*executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, req)
	n := len(m.calls)
	fn := m.fn
	m.mu.Unlock()
	if fn != nil {
		return fn(n, req)
	}
	return &executor.Result{Status: "completed", Output: "ok"}, nil
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockExecutor) call(i int) executor.InvokeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

func writeProfile(t *testing.T, dir, role string, maxConcurrent int, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := fmt.Sprintf(`---
role: %s
capabilities: [%s]
max_concurrent: %d
---
# %s

%s
`, role, role, maxConcurrent, role, body)
	if err := os.WriteFile(filepath.Join(dir, role+".md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

type harness struct {
	orch  *Orchestrator
	disp  *Dispatcher
	store *ticket.MemoryStore
	exec  *mockExecutor
	bus   *recordingBus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	cfg.Profiles = config.ProfilesConfig{
		ProjectDir: filepath.Join(dir, "project"),
		UserDir:    filepath.Join(dir, "user"),
		SystemDir:  filepath.Join(dir, "system"),
		CacheSize:  8,
	}
	writeProfile(t, cfg.Profiles.SystemDir, "engineer", 2, "Implements and tests code.")
	writeProfile(t, cfg.Profiles.SystemDir, "qa", 2, "Verifies behaviour.")
	writeProfile(t, cfg.Profiles.SystemDir, "documentation", 1, "Writes docs.")

	logger := discardLogger()
	reg, err := registry.New(cfg.Profiles, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(reg.Close)

	scorer := scoring.NewScorer(scoring.WeightSet{
		Verb:         cfg.Scoring.Weights.Verb,
		Volume:       cfg.Scoring.Weights.Volume,
		Scope:        cfg.Scoring.Weights.Scope,
		Coordination: cfg.Scoring.Weights.Coordination,
	}, cfg.Scoring.Brackets)
	selector := scoring.NewSelector(cfg.Resources, scorer)
	composer, err := prompt.NewComposer(scorer, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(composer.Close)

	store := ticket.NewMemoryStore()
	tickets := ticket.NewService(store, cfg.Ticketing, logger)

	classifier, err := enforce.NewClassifier(cfg.Enforcement.CategoryGlobs)
	if err != nil {
		t.Fatal(err)
	}
	monitor, err := enforce.NewMonitor(cfg.Enforcement.AllowLists, classifier, store, nil, logger)
	if err != nil {
		t.Fatal(err)
	}

	exec := &mockExecutor{}
	bus := &recordingBus{}
	orch := New(reg, scorer, selector, composer, tickets, monitor, exec, bus, cfg, logger)
	return &harness{
		orch:  orch,
		disp:  NewDispatcher(orch, logger),
		store: store,
		exec:  exec,
		bus:   bus,
	}
}

func TestDelegateTrivialTask(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.Delegate(context.Background(), uuid.Must(uuid.NewV7()), DelegationRequest{
		AgentType:       "engineer",
		TaskDescription: "print hello world to stdout",
		Deliverables:    []string{"console output"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "completed" {
		t.Errorf("expected completed, got %s (%s)", res.Status, res.Error)
	}
	if res.Bracket != scoring.BracketTrivial {
		t.Errorf("expected trivial bracket for score %d, got %s", res.Score, res.Bracket)
	}
	if res.TemplateTier != prompt.TierMinimal {
		t.Errorf("expected minimal template, got %s", res.TemplateTier)
	}
	if res.ResourceTier.Name != "lightweight" {
		t.Errorf("expected lightweight tier, got %s", res.ResourceTier.Name)
	}
	if res.TicketID != nil {
		t.Error("trivial single-item task must not auto-open a ticket")
	}
	if h.exec.callCount() != 1 {
		t.Errorf("expected 1 executor call, got %d", h.exec.callCount())
	}
	if got := h.exec.call(0); got.Model != "swift-mini" || got.MaxOutputTokens != 4096 {
		t.Errorf("wrong invocation parameters: %+v", got)
	}
}

func TestDelegateCoordinatedTaskOpensTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.orch.Delegate(ctx, uuid.Must(uuid.NewV7()), DelegationRequest{
		AgentType:       "engineer",
		TaskDescription: "coordinate the migration across three agents",
		Requirements: []string{
			"inventory current schema",
			"define cutover order",
			"migrate writers first",
			"verify replica lag",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Bracket != scoring.BracketComplex {
		t.Errorf("expected complex bracket for score %d, got %s", res.Score, res.Bracket)
	}
	if res.TemplateTier != prompt.TierFull {
		t.Errorf("expected full template, got %s", res.TemplateTier)
	}
	if res.ResourceTier.Name != "standard-plus" {
		t.Errorf("expected standard-plus, got %s", res.ResourceTier.Name)
	}
	if res.TicketID == nil {
		t.Fatal("coordinated multi-item task must auto-open a ticket")
	}

	tk, err := h.store.GetTicket(ctx, *res.TicketID)
	if err != nil {
		t.Fatal(err)
	}
	if tk.Status != ticket.StatusResolved {
		t.Errorf("ticket must be resolved after completion, got %s", tk.Status)
	}
	plan, ok := tk.Metadata["orchestration"].(map[string]interface{})
	if !ok {
		t.Fatalf("orchestration plan must be structured, got %T", tk.Metadata["orchestration"])
	}
	if plan["mode"] != "ordered" {
		t.Errorf("coordinated work must carry an ordered plan, got %v", plan["mode"])
	}
	agents, ok := plan["agents"].([]string)
	if !ok || len(agents) < 2 {
		t.Fatalf("coordinated plan must name at least two agents, got %v", plan["agents"])
	}
	if agents[0] != "engineer" {
		t.Errorf("delegated role must lead the agent sequence, got %v", agents)
	}

	updates, err := h.store.GetUpdates(ctx, tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	// in_progress transition, output comment, resolved transition
	if len(updates) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(updates))
	}
	if updates[0].NewStatus != ticket.StatusInProgress || updates[2].NewStatus != ticket.StatusResolved {
		t.Errorf("unexpected transition order: %+v", updates)
	}
}

func TestDelegateRetriesAtNextTierUp(t *testing.T) {
	h := newHarness(t)
	h.exec.fn = func(n int, req executor.InvokeRequest) (*executor.Result, error) {
		if n == 1 {
			return &executor.Result{Status: "failed", Error: "context exhausted"}, nil
		}
		return &executor.Result{Status: "completed", Output: "ok"}, nil
	}

	res, err := h.orch.Delegate(context.Background(), uuid.Must(uuid.NewV7()), DelegationRequest{
		AgentType:       "engineer",
		TaskDescription: "refactor the storage module",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Retried {
		t.Error("result must mark the retry")
	}
	if h.exec.callCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", h.exec.callCount())
	}
	first, second := h.exec.call(0), h.exec.call(1)
	if second.Tier == first.Tier {
		t.Errorf("retry must escalate the tier, both were %s", first.Tier)
	}
	if first.Prompt != second.Prompt {
		t.Error("retry must reuse the same composed prompt")
	}
	if !h.bus.sawSuffix(".retried") {
		t.Error("tier escalation must publish a retried event")
	}
}

func TestDelegateFatalFailureBlocksTicket(t *testing.T) {
	h := newHarness(t)
	h.exec.fn = func(n int, req executor.InvokeRequest) (*executor.Result, error) {
		return nil, errors.New("executor unreachable")
	}
	ctx := context.Background()

	res, err := h.orch.Delegate(ctx, uuid.Must(uuid.NewV7()), DelegationRequest{
		AgentType:       "engineer",
		TaskDescription: "coordinate the rollout across agents",
		Priority:        ticket.PriorityHigh,
	})
	if !errors.Is(err, ErrExecutorFailure) {
		t.Fatalf("expected ErrExecutorFailure, got %v", err)
	}
	if res.Status != "failed" {
		t.Errorf("expected failed status, got %s", res.Status)
	}
	if res.TicketID == nil {
		t.Fatal("high priority task must have opened a ticket")
	}
	tk, err := h.store.GetTicket(ctx, *res.TicketID)
	if err != nil {
		t.Fatal(err)
	}
	if tk.Status != ticket.StatusBlocked {
		t.Errorf("fatal failure must block the ticket, got %s", tk.Status)
	}
}

func TestDelegateUnknownRole(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Delegate(context.Background(), uuid.Must(uuid.NewV7()), DelegationRequest{
		AgentType:       "astronaut",
		TaskDescription: "fly to the moon",
	})
	if !errors.Is(err, registry.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if h.exec.callCount() != 0 {
		t.Error("executor must not be called for unknown roles")
	}
}

func TestDelegateCycleRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, role := range []string{"engineer", "qa"} {
		if _, err := h.orch.Delegate(ctx, uuid.Must(uuid.NewV7()), DelegationRequest{
			AgentType:       role,
			TaskDescription: "check the build output",
			TaskID:          "task-7",
		}); err != nil {
			t.Fatalf("%s hop failed: %v", role, err)
		}
	}

	_, err := h.orch.Delegate(ctx, uuid.Must(uuid.NewV7()), DelegationRequest{
		AgentType:       "engineer",
		TaskDescription: "check the build output again",
		TaskID:          "task-7",
	})
	var cycle *enforce.CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if h.exec.callCount() != 2 {
		t.Errorf("cycle hop must not reach the executor, got %d calls", h.exec.callCount())
	}
}

func TestDispatcherRunsSubmittedWork(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.disp.Start(ctx)
	defer h.disp.Stop()

	handle, err := h.disp.Submit(DelegationRequest{
		AgentType:       "engineer",
		TaskDescription: "list open tickets",
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("delegation did not finish")
	}
	res, err := handle.Result()
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "completed" {
		t.Errorf("expected completed, got %s", res.Status)
	}
	if got, ok := h.disp.Lookup(handle.ID); !ok || got != handle {
		t.Error("Lookup must return the submitted handle")
	}
}

func TestDispatcherRejectsUnknownRoleAtSubmit(t *testing.T) {
	h := newHarness(t)
	_, err := h.disp.Submit(DelegationRequest{
		AgentType:       "astronaut",
		TaskDescription: "orbit",
	})
	if !errors.Is(err, registry.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound at submit, got %v", err)
	}
}

func TestDispatcherCancelPendingNeverInvokes(t *testing.T) {
	h := newHarness(t)

	block := make(chan struct{})
	h.exec.fn = func(n int, req executor.InvokeRequest) (*executor.Result, error) {
		<-block
		return &executor.Result{Status: "completed", Output: "ok"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.disp.Start(ctx)
	defer h.disp.Stop()

	// profile max_concurrent is 2: two running delegations occupy the agent,
	// the third stays queued
	var running []*Delegation
	for i := 0; i < 2; i++ {
		d, err := h.disp.Submit(DelegationRequest{
			AgentType:       "engineer",
			TaskDescription: "run the long job",
		})
		if err != nil {
			t.Fatal(err)
		}
		running = append(running, d)
	}
	waitFor(t, func() bool { return h.exec.callCount() == 2 })

	queued, err := h.disp.Submit(DelegationRequest{
		AgentType:       "engineer",
		TaskDescription: "run another job",
	})
	if err != nil {
		t.Fatal(err)
	}
	if h.disp.QueueDepth() != 1 {
		t.Fatalf("expected 1 queued, got %d", h.disp.QueueDepth())
	}

	queued.Cancel("operator withdrew the request")
	select {
	case <-queued.Done():
	case <-time.After(time.Second):
		t.Fatal("cancelled delegation did not finish")
	}
	res, err := queued.Result()
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "cancelled" {
		t.Errorf("expected cancelled, got %s", res.Status)
	}

	close(block)
	for _, d := range running {
		select {
		case <-d.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("running delegation did not finish")
		}
	}
	// the cancelled delegation never reached the executor
	if h.exec.callCount() != 2 {
		t.Errorf("expected 2 executor calls, got %d", h.exec.callCount())
	}
}

func TestDispatcherPriorityOrder(t *testing.T) {
	h := newHarness(t)

	block := make(chan struct{})
	h.exec.fn = func(n int, req executor.InvokeRequest) (*executor.Result, error) {
		if n == 1 {
			<-block
		}
		return &executor.Result{Status: "completed", Output: "ok"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.disp.Start(ctx)
	defer h.disp.Stop()

	// documentation allows one concurrent delegation, so the warmup pins the
	// agent and everything behind it queues
	warmup, err := h.disp.Submit(DelegationRequest{
		AgentType:       "documentation",
		TaskDescription: "show the warmup report",
	})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return h.exec.callCount() == 1 })

	low, err := h.disp.Submit(DelegationRequest{
		AgentType:       "documentation",
		TaskDescription: "show the low priority report",
		Priority:        ticket.PriorityLow,
	})
	if err != nil {
		t.Fatal(err)
	}
	crit, err := h.disp.Submit(DelegationRequest{
		AgentType:       "documentation",
		TaskDescription: "show the critical report",
		Priority:        ticket.PriorityCritical,
	})
	if err != nil {
		t.Fatal(err)
	}

	close(block)
	for _, d := range []*Delegation{warmup, low, crit} {
		select {
		case <-d.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("delegation did not finish")
		}
	}

	// critical entered the queue after low but ran first
	second := h.exec.call(1)
	if !strings.Contains(second.Prompt, "critical report") {
		t.Errorf("critical delegation must run before low, second call was %.60q", second.Prompt)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
