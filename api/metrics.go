// metrics.go - Prometheus instrumentation for the petty-cash API.
//
// Exposed at /metrics. Counters only; the running balance itself is a
// gauge derived from the ledger on scrape.
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pettycash_submissions_total",
		Help: "Submitted entities by kind.",
	}, []string{"kind"})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pettycash_decisions_total",
		Help: "Decisions by kind and outcome.",
	}, []string{"kind", "outcome"})

	decisionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pettycash_decision_failures_total",
		Help: "Rejected decision attempts by failure class.",
	}, []string{"reason"})

	currentBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pettycash_current_balance",
		Help: "Running balance of the newest ledger entry.",
	})
)
