// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TickBatchesProcessed counts ticker batches consumed by the price monitor.
	TickBatchesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradewarden_tick_batches_processed_total",
		Help: "Number of aggregate ticker batches processed by the price monitor.",
	})

	// ExitsFlagged counts trades flagged for closure, by reason.
	ExitsFlagged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradewarden_exits_flagged_total",
		Help: "Number of trades flagged for closure, labelled by trigger.",
	}, []string{"reason"})

	// ClosuresCompleted counts finalised closures, by outcome.
	ClosuresCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradewarden_closures_completed_total",
		Help: "Number of trade closures finalised, labelled by close reason.",
	}, []string{"reason"})

	// ClosureRollbacks counts flagged trades rolled back to active.
	ClosureRollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradewarden_closure_rollbacks_total",
		Help: "Number of flagged trades rolled back to active after a failed or stale exit.",
	})

	// ScansCompleted counts per-user scanner passes.
	ScansCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradewarden_scans_completed_total",
		Help: "Number of per-user entry scan passes completed.",
	})

	// SignalsFired counts strategy signals that passed all entry gates.
	SignalsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradewarden_signals_fired_total",
		Help: "Number of entry signals acted on, labelled by strategy.",
	}, []string{"strategy"})

	// AdvisorRuns counts advisor evaluation passes.
	AdvisorRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradewarden_advisor_runs_total",
		Help: "Number of advisor evaluation passes over the open positions.",
	})

	// OpenPositions tracks the number of trades currently indexed for
	// monitoring.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradewarden_open_positions",
		Help: "Number of active trades currently indexed for price monitoring.",
	})

	// EligibleUsers tracks the number of users in the current eligible set.
	EligibleUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradewarden_eligible_users",
		Help: "Number of users eligible to trade in the current cache generation.",
	})

	// CredentialFailures counts sessions invalidated for bad API keys.
	CredentialFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradewarden_credential_failures_total",
		Help: "Number of user sessions invalidated after exchange authentication failures.",
	})
)
