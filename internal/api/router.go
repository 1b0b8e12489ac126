package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/Foreman/internal/enforce"
	"github.com/MikeSquared-Agency/Foreman/internal/hermes"
	"github.com/MikeSquared-Agency/Foreman/internal/orchestrator"
	"github.com/MikeSquared-Agency/Foreman/internal/prompt"
	"github.com/MikeSquared-Agency/Foreman/internal/registry"
	"github.com/MikeSquared-Agency/Foreman/internal/scaffold"
	"github.com/MikeSquared-Agency/Foreman/internal/scoring"
	"github.com/MikeSquared-Agency/Foreman/internal/ticket"
)

// Deps collects everything the HTTP surface serves. The scaffold client and
// bus may be nil; the routes degrade gracefully.
type Deps struct {
	Dispatcher   *orchestrator.Dispatcher
	Orchestrator *orchestrator.Orchestrator
	Tickets      *ticket.Service
	Monitor      *enforce.Monitor
	Registry     *registry.Registry
	Composer     *prompt.Composer
	Scorer       *scoring.Scorer
	Selector     *scoring.Selector
	Scaffold     scaffold.Client
	Bus          hermes.Client
	AdminToken   string
	Logger       *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(d.Logger))
	r.Use(RateLimitMiddleware(120))

	delegations := NewDelegationsHandler(d.Dispatcher, d.Orchestrator)
	tickets := NewTicketsHandler(d.Tickets, d.Bus)
	enforcement := NewEnforcementHandler(d.Monitor, d.Tickets.Store())
	explain := NewExplainHandler(d.Scorer, d.Selector)
	admin := NewAdminHandler(d.Registry, d.Composer, d.Dispatcher, d.Tickets, d.Scaffold)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AgentIDMiddleware)

		r.Post("/delegations", delegations.Create)
		r.Post("/delegations/preview", delegations.Preview)
		r.Get("/delegations/{id}", delegations.Get)
		r.Post("/delegations/{id}/cancel", delegations.Cancel)

		r.Post("/tickets", tickets.Create)
		r.Get("/tickets", tickets.List)
		r.Get("/tickets/{id}", tickets.Get)
		r.Patch("/tickets/{id}", tickets.Transition)
		r.Post("/tickets/{id}/comments", tickets.Comment)
		r.Get("/tickets/{id}/updates", tickets.Updates)

		r.Get("/workload", tickets.Workloads)
		r.Get("/workload/{agent}", tickets.Workload)

		r.Post("/enforcement/check", enforcement.Check)
		r.Get("/tasks/{taskID}/chain", enforcement.Chain)
		r.Delete("/tasks/{taskID}/chain", enforcement.EndChain)
		r.Get("/violations", enforcement.ListViolations)
		r.Post("/violations/{id}/resolve", enforcement.ResolveViolation)

		r.Post("/scoring/explain", explain.Explain)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(d.AdminToken))
			r.Get("/roles", admin.Roles)
			r.Get("/roles/{role}", admin.Role)
			r.Post("/roles/{role}/invalidate", admin.Invalidate)
			r.Get("/stats", admin.Stats)
			r.Post("/scaffold/deploy", admin.ScaffoldDeploy)
			r.Post("/scaffold/backup", admin.ScaffoldBackup)
			r.Post("/scaffold/restore", admin.ScaffoldRestore)
		})
	})

	return r
}

func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
