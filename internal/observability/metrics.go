// Package observability holds the process-wide prometheus metric vars for
// the core. One block per subsystem, mirroring the teacher's
// control_plane/observability/metrics.go layout.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// --- Event Bus ---

	BusEmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_bus_emissions_total",
		Help: "Total number of events emitted, by event type",
	}, []string{"event_type"})

	BusDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_bus_deliveries_total",
		Help: "Total number of handler deliveries, by event type",
	}, []string{"event_type"})

	BusHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_bus_handler_errors_total",
		Help: "Total number of handler panics/errors isolated during delivery",
	}, []string{"event_type"})

	BusDeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adventurecore_bus_delivery_duration_seconds",
		Help:    "Time spent delivering a single event to all subscriptions",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})

	// --- Story State ---

	StateVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adventurecore_state_version",
		Help: "Current Story State version counter",
	})

	StateMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_state_mutations_total",
		Help: "Total number of Story State mutations, by kind",
	}, []string{"kind"}) // set, merge, remove, restore

	// --- Token Ledger ---

	TokensRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_tokens_recorded_total",
		Help: "Total tokens recorded, by agent/provider/kind",
	}, []string{"agent_id", "provider", "kind"}) // kind: prompt, completion

	TokenCapRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_token_cap_rejections_total",
		Help: "Total proposal requests rejected for exceeding the token cap",
	}, []string{"agent_id", "provider"})

	// --- Proposal Batch Manager ---

	BatchesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_batches_opened_total",
		Help: "Total proposal batches opened, by proposal type",
	}, []string{"proposal_type"})

	BatchResolution = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_batch_resolution_total",
		Help: "Total proposal batches resolved, by status",
	}, []string{"status"}) // complete, timed-out, failed, canceled

	// --- Judge Panel ---

	JudgeDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_judge_decisions_total",
		Help: "Total judge panel decisions, by confidence",
	}, []string{"confidence"})

	JudgeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_judge_failures_total",
		Help: "Total judge evaluate() calls that failed, by judge id",
	}, []string{"judge_id"})

	// --- Vote Collector ---

	VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_votes_cast_total",
		Help: "Total votes cast (including replacements), by genre id",
	}, []string{"genre_id"})

	VotesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_votes_rejected_total",
		Help: "Total votes rejected, by reason",
	}, []string{"reason"}) // "unknown genre", "voting window closed"

	// --- DAG Runner ---

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adventurecore_dag_stage_duration_seconds",
		Help:    "Stage handler execution time",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage_type", "status"})

	DAGQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adventurecore_dag_queue_depth",
		Help: "Current number of stages eligible or pending in a DAG run",
	}, []string{"dag_id"})

	DAGOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_dag_outcome_total",
		Help: "Total DAG runs, by terminal outcome",
	}, []string{"outcome"}) // complete, failed

	// --- Story Loop Phase Machine ---

	PhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_phase_transitions_total",
		Help: "Total phase transitions, by from/to phase",
	}, []string{"from", "to"})

	PhaseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adventurecore_phase_failures_total",
		Help: "Total unrecoverable phase failures, by phase",
	}, []string{"phase"})
)
