// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkflowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total number of workflow state transitions processed",
		},
		[]string{"kind", "action"},
	)

	WorkflowTransitionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transition_failures_total",
			Help: "Total number of rejected workflow operations",
		},
		[]string{"kind", "action", "error_code"},
	)

	QueueClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_claims_total",
			Help: "Total number of successful queue entry claims",
		},
		[]string{"level"},
	)

	QueueClaimConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_claim_conflicts_total",
			Help: "Total number of claims lost to a concurrent reviewer",
		},
		[]string{"level"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Live queue entries observed at last listing per level",
		},
		[]string{"level"},
	)

	ChangesDeadlineSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "changes_deadline_sweeps_total",
			Help: "Applications acted on by the changes-deadline sweep",
		},
		[]string{"outcome"},
	)
)
