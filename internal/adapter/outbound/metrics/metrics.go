// Package metrics registers the Prometheus series exported by the policy
// store and tiering manager, following the teacher's
// internal/adapter/inbound/http/metrics.go promauto registration idiom.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ipe-systems/ipe/internal/domain/policystore"
	"github.com/ipe-systems/ipe/internal/domain/tiering"
)

// Metrics holds every Prometheus series IPE exports.
type Metrics struct {
	SnapshotVersion     prometheus.Gauge
	StoreReadsTotal     prometheus.Counter
	StoreUpdatesTotal   prometheus.Counter
	StoreUpdateFailures prometheus.Counter
	EvaluationsTotal    *prometheus.CounterVec
	EvaluationDuration  prometheus.Histogram
	TieringPromotions   *prometheus.CounterVec
	TieringEvalCount    *prometheus.GaugeVec
}

// New creates and registers every series with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		SnapshotVersion: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "ipe",
			Name:      "store_snapshot_version",
			Help:      "Current policy store snapshot version",
		}),
		StoreReadsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "ipe",
			Name:      "store_reads_total",
			Help:      "Total number of snapshot reads",
		}),
		StoreUpdatesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "ipe",
			Name:      "store_updates_total",
			Help:      "Total number of update requests processed",
		}),
		StoreUpdateFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "ipe",
			Name:      "store_update_failures_total",
			Help:      "Total number of update requests that failed validation",
		}),
		EvaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ipe",
				Name:      "evaluations_total",
				Help:      "Total policy evaluations",
			},
			[]string{"result"}, // result=allow/deny
		),
		EvaluationDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "ipe",
			Name:      "evaluation_duration_seconds",
			Help:      "Decision evaluation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		TieringPromotions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ipe",
				Name:      "tiering_promotions_total",
				Help:      "Total tier promotions per policy",
			},
			[]string{"policy", "tier"},
		),
		TieringEvalCount: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ipe",
				Name:      "tiering_eval_count",
				Help:      "Evaluation count recorded per policy's profile",
			},
			[]string{"policy"},
		),
	}
}

// ObserveStore copies a StoreStatSnapshot into the gauges/counters. Counters
// only move forward, so callers should call this once per update rather
// than polling, to avoid double counting; SnapshotVersion and the
// tiering gauges are safe to poll freely.
func (m *Metrics) ObserveStore(stats policystore.StoreStatSnapshot) {
	m.SnapshotVersion.Set(float64(stats.CurrentVersion))
	m.StoreReadsTotal.Add(float64(stats.Reads))
	m.StoreUpdatesTotal.Add(float64(stats.Updates))
	m.StoreUpdateFailures.Add(float64(stats.UpdateFailures))
}

// ObserveTiering refreshes the per-policy tiering gauges from a manager's
// current snapshots. Safe to call on a polling interval.
func (m *Metrics) ObserveTiering(snapshots []tiering.Snapshot) {
	for _, snap := range snapshots {
		m.TieringEvalCount.WithLabelValues(snap.Name).Set(float64(snap.EvalCount))
	}
}

// RecordPromotion increments the promotion counter for a policy reaching
// tier.
func (m *Metrics) RecordPromotion(policy string, tier tiering.ExecutionTier) {
	m.TieringPromotions.WithLabelValues(policy, tier.String()).Inc()
}

// RecordEvaluation folds one decision's outcome and latency into the
// evaluation series.
func (m *Metrics) RecordEvaluation(allowed bool, seconds float64) {
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.EvaluationsTotal.WithLabelValues(result).Inc()
	m.EvaluationDuration.Observe(seconds)
}
