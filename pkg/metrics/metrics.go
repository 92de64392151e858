// Package metrics exposes Warden's Prometheus instrumentation: counters
// for the Ingress Adapter, review decisions, the Supervisor, the
// Dispatcher and the Recovery Agent, a Supervisor pipeline-duration
// histogram, and gauges for the intake, approved and review queue
// depths, served on
// /metrics by pkg/api. Grounded on the prometheus/client_golang
// dependency carried across the example corpus (jordigilh-kubernaut's
// go.mod); the pack has no non-test source using it, so the registration
// idiom here follows the standard promauto/promhttp ecosystem
// convention rather than a specific example file.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// MessagesIngested counts Ingress Adapter outcomes (spec.md §4.1).
	MessagesIngested = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "messages_ingested_total",
		Help:      "Raw messages handled by the Ingress Adapter, by outcome.",
	}, []string{"outcome"})

	// ReviewDecisions counts reviewer actions (spec.md §4.8).
	ReviewDecisions = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "review_decisions_total",
		Help:      "Reviewer decisions, by action.",
	}, []string{"action"})

	// PipelineRuns counts Supervisor pipeline completions (spec.md §4.6).
	PipelineRuns = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "pipeline_runs_total",
		Help:      "Supervisor pipeline runs, by outcome.",
	}, []string{"outcome"})

	// PipelineDuration observes Supervisor pipeline latency from generation
	// through coherence check, bubble formatting and safety annotation,
	// measured before the interaction is persisted.
	PipelineDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "warden",
		Name:      "pipeline_duration_seconds",
		Help:      "Supervisor pipeline latency from generation to the annotated draft, before persistence.",
		Buckets:   prometheus.DefBuckets,
	})

	// DispatchedBubbles counts bubbles sent by the Dispatcher (spec.md §4.9).
	DispatchedBubbles = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "dispatched_bubbles_total",
		Help:      "Bubbles sent by the Dispatcher, by outcome.",
	}, []string{"outcome"})

	// RecoveryMessages counts messages replayed or skipped by the Recovery
	// Agent, by tier (spec.md §4.11).
	RecoveryMessages = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "recovery_messages_total",
		Help:      "Messages replayed or dropped by the Recovery Agent, by tier.",
	}, []string{"tier"})

	// IntakeDepth and ApprovedDepth mirror the broker's backpressure
	// watermarks (spec.md §5 Backpressure) as gauges for dashboards/alerts.
	IntakeDepth = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Name:      "intake_queue_depth",
		Help:      "Current length of the intake FIFO.",
	})
	ApprovedDepth = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Name:      "approved_queue_depth",
		Help:      "Current length of the approved outbound FIFO.",
	})
	ReviewQueueDepth = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Name:      "review_queue_depth",
		Help:      "Current size of the pending-review priority queue.",
	})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
