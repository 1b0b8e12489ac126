// Package orchestrator runs the delegation pipeline: resolve the agent
// profile, score the task, compose the instruction, pick a resource tier,
// open a tracking ticket when the work warrants one, and hand the prompt to
// the executor.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Foreman/internal/config"
	"github.com/MikeSquared-Agency/Foreman/internal/enforce"
	"github.com/MikeSquared-Agency/Foreman/internal/executor"
	"github.com/MikeSquared-Agency/Foreman/internal/hermes"
	"github.com/MikeSquared-Agency/Foreman/internal/prompt"
	"github.com/MikeSquared-Agency/Foreman/internal/registry"
	"github.com/MikeSquared-Agency/Foreman/internal/scoring"
	"github.com/MikeSquared-Agency/Foreman/internal/ticket"
)

// ErrExecutorFailure wraps an invocation that failed on both the selected
// tier and the escalated retry tier.
var ErrExecutorFailure = errors.New("executor invocation failed")

// DelegationRequest is one unit of work to hand to an agent.
type DelegationRequest struct {
	AgentType            string                 `json:"agent_type"`
	TaskDescription      string                 `json:"task_description"`
	Requirements         []string               `json:"requirements,omitempty"`
	Deliverables         []string               `json:"deliverables,omitempty"`
	Priority             ticket.Priority        `json:"priority,omitempty"`
	EscalationTriggers   []string               `json:"escalation_triggers,omitempty"`
	IntegrationNotes     string                 `json:"integration_notes,omitempty"`
	ResourceTierOverride string                 `json:"resource_tier,omitempty"`
	TaskID               string                 `json:"task_id,omitempty"`
	ParentTicketID       *uuid.UUID             `json:"parent_ticket_id,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}

// DelegationResult reports everything the pipeline decided and what the
// executor returned.
type DelegationResult struct {
	ID               uuid.UUID                `json:"id"`
	AgentType        string                   `json:"agent_type"`
	Status           string                   `json:"status"` // completed, failed, cancelled
	Score            int                      `json:"score"`
	Bracket          scoring.Bracket          `json:"bracket"`
	Factors          []scoring.FactorResult   `json:"factors,omitempty"`
	TemplateTier     prompt.TemplateTier      `json:"template_tier"`
	ResourceTier     scoring.ResourceTier     `json:"resource_tier"`
	TierWarning      *scoring.OverrideWarning `json:"tier_warning,omitempty"`
	PromptLength     int                      `json:"prompt_length"`
	PromptCacheHit   bool                     `json:"prompt_cache_hit"`
	TicketID         *uuid.UUID               `json:"ticket_id,omitempty"`
	Output           string                   `json:"output,omitempty"`
	StructuredResult json.RawMessage          `json:"structured_result,omitempty"`
	Retried          bool                     `json:"retried"`
	DurationSeconds  float64                  `json:"duration_seconds"`
	Error            string                   `json:"error,omitempty"`
}

type Orchestrator struct {
	registry *registry.Registry
	scorer   *scoring.Scorer
	selector *scoring.Selector
	composer *prompt.Composer
	tickets  *ticket.Service
	monitor  *enforce.Monitor
	exec     executor.Client
	bus      hermes.Client
	cfg      *config.Config
	logger   *slog.Logger
}

func New(reg *registry.Registry, scorer *scoring.Scorer, selector *scoring.Selector,
	composer *prompt.Composer, tickets *ticket.Service, monitor *enforce.Monitor,
	exec executor.Client, bus hermes.Client, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		scorer:   scorer,
		selector: selector,
		composer: composer,
		tickets:  tickets,
		monitor:  monitor,
		exec:     exec,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
	}
}

// Plan is what Delegate decides before touching the executor. It is split
// out so the API can preview a delegation without running it.
type Plan struct {
	Profile      *registry.AgentProfile
	Score        int
	Bracket      scoring.Bracket
	Factors      []scoring.FactorResult
	ResourceTier scoring.ResourceTier
	TierWarning  *scoring.OverrideWarning
	Artifact     *prompt.Artifact
	Coordinated  bool
}

// PlanDelegation runs the selection stages without side effects beyond the
// prompt cache: resolve, score, tier selection, composition.
func (o *Orchestrator) PlanDelegation(req DelegationRequest) (*Plan, error) {
	profile, err := o.registry.Resolve(req.AgentType)
	if err != nil {
		return nil, err
	}

	score := o.scorer.Score(req.TaskDescription, req.Requirements, req.Deliverables)
	bracket := o.scorer.Bracket(score)
	factors := o.scorer.Explain(req.TaskDescription, req.Requirements, req.Deliverables)
	rt, warning := o.selector.Select(score, req.ResourceTierOverride)
	if warning != nil {
		o.logger.Warn("invalid resource tier override",
			"agent", req.AgentType, "requested", warning.Requested, "selected", rt.Name)
	}

	artifact := o.composer.Compose(prompt.Profile{
		Role:         profile.Role,
		Nickname:     profile.Nickname,
		Capabilities: profile.Capabilities,
		RawText:      profile.RawText,
	}, prompt.Request{
		AgentType:          req.AgentType,
		TaskDescription:    req.TaskDescription,
		Requirements:       req.Requirements,
		Deliverables:       req.Deliverables,
		Priority:           string(req.Priority),
		EscalationTriggers: req.EscalationTriggers,
		IntegrationNotes:   req.IntegrationNotes,
		SubmittedAt:        time.Now(),
	}, score, rt)

	return &Plan{
		Profile:      profile,
		Score:        score,
		Bracket:      bracket,
		Factors:      factors,
		ResourceTier: rt,
		TierWarning:  warning,
		Artifact:     artifact,
		Coordinated:  o.scorer.Coordinated(req.TaskDescription),
	}, nil
}

// Delegate runs the full pipeline for one request. Fatal failures after a
// ticket has been opened mark that ticket blocked with the reason, so no
// delegated work disappears without a trace.
func (o *Orchestrator) Delegate(ctx context.Context, id uuid.UUID, req DelegationRequest) (*DelegationResult, error) {
	started := time.Now()
	res := &DelegationResult{ID: id, AgentType: req.AgentType}

	if req.TaskID != "" {
		if err := o.monitor.Advance(req.TaskID, req.AgentType); err != nil {
			return nil, err
		}
	}

	plan, err := o.PlanDelegation(req)
	if err != nil {
		return nil, err
	}
	res.Score = plan.Score
	res.Bracket = plan.Bracket
	res.Factors = plan.Factors
	res.ResourceTier = plan.ResourceTier
	res.TierWarning = plan.TierWarning
	res.TemplateTier = plan.Artifact.TemplateTier
	res.PromptLength = plan.Artifact.Length
	res.PromptCacheHit = plan.Artifact.CacheHit

	tk, err := o.maybeOpenTicket(ctx, req, plan)
	if err != nil {
		return nil, err
	}
	if tk != nil {
		res.TicketID = &tk.ID
		if _, err := o.tickets.Transition(ctx, tk.ID, ticket.StatusInProgress, req.AgentType, "delegation dispatched"); err != nil {
			o.logger.Warn("ticket transition failed", "ticket_id", tk.ID, "error", err)
		}
	}

	o.publish(hermes.SubjectDelegationStarted(id.String()), hermes.DelegationStartedEvent{
		DelegationID: id.String(),
		AgentType:    req.AgentType,
		Score:        plan.Score,
		Bracket:      string(plan.Bracket),
		TemplateTier: string(plan.Artifact.TemplateTier),
		ResourceTier: plan.ResourceTier.Name,
		PromptLength: plan.Artifact.Length,
		TicketID:     ticketIDString(res.TicketID),
	})

	out, retried, err := o.invoke(ctx, id, req.AgentType, plan.Artifact.Text, plan.ResourceTier)
	res.Retried = retried
	res.DurationSeconds = time.Since(started).Seconds()

	if err != nil {
		res.Status = "failed"
		res.Error = err.Error()
		if ctx.Err() != nil {
			res.Status = "cancelled"
			res.Error = "delegation cancelled"
		}
		o.failTicket(context.WithoutCancel(ctx), res.TicketID, req.AgentType, res.Error)
		o.publish(hermes.SubjectDelegationFailed(id.String()), hermes.DelegationFailedEvent{
			DelegationID: id.String(),
			AgentType:    req.AgentType,
			Error:        res.Error,
		})
		o.logger.Error("delegation failed", "delegation_id", id, "agent", req.AgentType, "error", err)
		return res, err
	}

	res.Status = "completed"
	res.Output = out.Output
	res.StructuredResult = out.StructuredResult
	o.resolveTicket(ctx, res.TicketID, req.AgentType, out.Output)
	o.publish(hermes.SubjectDelegationCompleted(id.String()), hermes.DelegationCompletedEvent{
		DelegationID:    id.String(),
		AgentType:       req.AgentType,
		DurationSeconds: res.DurationSeconds,
		Retried:         retried,
	})
	o.logger.Info("delegation completed",
		"delegation_id", id, "agent", req.AgentType, "score", plan.Score,
		"bracket", plan.Bracket, "tier", plan.ResourceTier.Name,
		"retried", retried, "duration_s", res.DurationSeconds)
	return res, nil
}

// invoke calls the executor, retrying exactly once at the next tier up when
// the first attempt fails. Context cancellation is never retried.
func (o *Orchestrator) invoke(ctx context.Context, id uuid.UUID, agentType, text string, rt scoring.ResourceTier) (*executor.Result, bool, error) {
	out, err := o.invokeOnce(ctx, text, rt)
	if err == nil {
		return out, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, err
	}

	up := o.selector.NextTierUp(rt.Name)
	o.logger.Warn("executor attempt failed, escalating tier",
		"from", rt.Name, "to", up.Name, "error", err)
	o.publish(hermes.SubjectDelegationRetried(id.String()), hermes.DelegationRetriedEvent{
		DelegationID: id.String(),
		AgentType:    agentType,
		FromTier:     rt.Name,
		ToTier:       up.Name,
		Error:        err.Error(),
	})
	out, retryErr := o.invokeOnce(ctx, text, up)
	if retryErr != nil {
		return nil, true, fmt.Errorf("%w: %v (retry at %s: %v)", ErrExecutorFailure, err, up.Name, retryErr)
	}
	return out, true, nil
}

func (o *Orchestrator) invokeOnce(ctx context.Context, text string, rt scoring.ResourceTier) (*executor.Result, error) {
	model := ""
	if len(rt.Models) > 0 {
		model = rt.Models[0]
	}
	out, err := o.exec.Invoke(ctx, executor.InvokeRequest{
		Prompt:          text,
		Model:           model,
		Tier:            rt.Name,
		MaxOutputTokens: rt.MaxOutputTokens,
	})
	if err != nil {
		return nil, err
	}
	if !out.Completed() {
		return nil, fmt.Errorf("executor reported %s: %s", out.Status, out.Error)
	}
	return out, nil
}

// maybeOpenTicket applies the auto-open policy and, for coordinated work,
// records the orchestration plan in ticket metadata.
func (o *Orchestrator) maybeOpenTicket(ctx context.Context, req DelegationRequest, plan *Plan) (*ticket.Ticket, error) {
	itemCount := len(req.Requirements) + len(req.Deliverables)
	if !o.tickets.ShouldAutoOpen(req.Priority, itemCount, plan.Coordinated, len(req.EscalationTriggers) > 0) {
		return nil, nil
	}

	meta := map[string]interface{}{
		"score":   plan.Score,
		"bracket": string(plan.Bracket),
	}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["orchestration"] = o.orchestrationPlan(req, plan.Coordinated)

	tk, err := o.tickets.Open(ctx, ticket.OpenParams{
		Title:       truncate(req.TaskDescription, 120),
		Description: req.TaskDescription,
		Priority:    req.Priority,
		AgentType:   req.AgentType,
		ParentID:    req.ParentTicketID,
		Metadata:    meta,
	})
	if err != nil {
		return nil, fmt.Errorf("auto-open ticket: %w", err)
	}
	o.publish(hermes.SubjectTicketOpened(tk.ID.String()), hermes.TicketOpenedEvent{
		TicketID:  tk.ID.String(),
		Title:     tk.Title,
		Priority:  string(tk.Priority),
		AgentType: tk.AgentType,
		Auto:      true,
	})
	return tk, nil
}

// orchestrationPlan records which agents the ticket's work will flow through.
// The delegated role comes first, followed by any registered roles named in
// the task text. Coordinated work is ordered and always carries a
// verification hop, so its agent sequence names at least two roles.
func (o *Orchestrator) orchestrationPlan(req DelegationRequest, coordinated bool) map[string]interface{} {
	agents := []string{req.AgentType}
	if roles, err := o.registry.ListRoles(); err == nil {
		text := strings.ToLower(req.TaskDescription + " " + strings.Join(req.Requirements, " "))
		for _, role := range roles {
			if role != req.AgentType && strings.Contains(text, strings.ToLower(role)) {
				agents = append(agents, role)
			}
		}
	}

	mode := "parallel"
	if coordinated {
		mode = "ordered"
		if len(agents) < 2 {
			agents = append(agents, "qa")
		}
	}
	return map[string]interface{}{"mode": mode, "agents": agents}
}

func (o *Orchestrator) resolveTicket(ctx context.Context, id *uuid.UUID, agent, output string) {
	if id == nil {
		return
	}
	if _, err := o.tickets.Comment(ctx, *id, agent, truncate(output, 500)); err != nil {
		o.logger.Warn("ticket comment failed", "ticket_id", id, "error", err)
	}
	if _, err := o.tickets.Transition(ctx, *id, ticket.StatusResolved, agent, "delegation completed"); err != nil {
		o.logger.Warn("ticket resolve failed", "ticket_id", id, "error", err)
	}
}

func (o *Orchestrator) failTicket(ctx context.Context, id *uuid.UUID, agent, reason string) {
	if id == nil {
		return
	}
	if _, err := o.tickets.Transition(ctx, *id, ticket.StatusBlocked, agent, reason); err != nil {
		o.logger.Warn("ticket block failed", "ticket_id", id, "error", err)
	}
}

func (o *Orchestrator) publish(subject string, event interface{}) {
	if o.bus == nil {
		return
	}
	_ = o.bus.Publish(subject, event)
}

func ticketIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
