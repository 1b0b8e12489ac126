package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	delegationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_delegations_total",
		Help: "Delegations by terminal outcome.",
	}, []string{"outcome"})

	ticketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_tickets_total",
		Help: "Ticket status transitions, including creation as open.",
	}, []string{"status"})

	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_violations_total",
		Help: "Enforcement violations by severity.",
	}, []string{"severity"})

	promptCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foreman_prompt_cache_hits_total",
		Help: "Delegations served a cached prompt artifact.",
	})

	promptCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foreman_prompt_cache_misses_total",
		Help: "Delegations that rendered a fresh prompt artifact.",
	})
)
