// Package metrics exposes the registry's operational counters and
// histograms: the few ambient signals worth keeping regardless of how
// deep the rest of the observability stack goes (CQRS commit outcomes
// and latency, issuance batch sizes, action counts).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records CQRS coordinator and issuance pipeline operational
// signals via prometheus.
type Recorder struct {
	cqrsCommits      *prometheus.CounterVec
	cqrsCommitLatency prometheus.Histogram
	issuanceBundles  prometheus.Counter
	actionOutcomes   *prometheus.CounterVec
}

// NewRecorder builds a Recorder and registers its collectors with reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		cqrsCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gc_registry_cqrs_commits_total",
			Help: "CQRS coordinator commit outcomes.",
		}, []string{"outcome"}),
		cqrsCommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gc_registry_cqrs_commit_duration_seconds",
			Help:    "CQRS coordinator end-to-end commit latency.",
			Buckets: prometheus.DefBuckets,
		}),
		issuanceBundles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gc_registry_issuance_bundles_total",
			Help: "Certificate bundles minted by the issuance pipeline.",
		}),
		actionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gc_registry_action_outcomes_total",
			Help: "Action Processor outcomes by action type and result.",
		}, []string{"action_type", "outcome"}),
	}
	reg.MustRegister(r.cqrsCommits, r.cqrsCommitLatency, r.issuanceBundles, r.actionOutcomes)
	return r
}

// ObserveCommit implements cqrs.MetricsRecorder.
func (r *Recorder) ObserveCommit(outcome string, duration time.Duration) {
	r.cqrsCommits.WithLabelValues(outcome).Inc()
	r.cqrsCommitLatency.Observe(duration.Seconds())
}

// ObserveIssuance records n newly-minted bundles.
func (r *Recorder) ObserveIssuance(n int) {
	r.issuanceBundles.Add(float64(n))
}

// ObserveAction records one Action Processor outcome.
func (r *Recorder) ObserveAction(actionType, outcome string) {
	r.actionOutcomes.WithLabelValues(actionType, outcome).Inc()
}
