package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ipe-systems/ipe/internal/domain/policystore"
	"github.com/ipe-systems/ipe/internal/domain/tiering"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	if m.SnapshotVersion == nil {
		t.Error("SnapshotVersion not initialized")
	}
	if m.EvaluationsTotal == nil {
		t.Error("EvaluationsTotal not initialized")
	}
	if m.TieringPromotions == nil {
		t.Error("TieringPromotions not initialized")
	}
}

func TestObserveStoreSetsVersionGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStore(policystore.StoreStatSnapshot{CurrentVersion: 7})

	got := testutil.ToFloat64(m.SnapshotVersion)
	if got != 7 {
		t.Errorf("SnapshotVersion = %v, want 7", got)
	}
}

func TestRecordEvaluationSplitsAllowDeny(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordEvaluation(true, 0.001)
	m.RecordEvaluation(false, 0.002)

	allow := testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("allow"))
	deny := testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("deny"))
	if allow != 1 {
		t.Errorf("allow count = %v, want 1", allow)
	}
	if deny != 1 {
		t.Errorf("deny count = %v, want 1", deny)
	}
}

func TestRecordPromotionIncrementsByTier(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordPromotion("AllowProd", tiering.BaselineJIT)

	got := testutil.ToFloat64(m.TieringPromotions.WithLabelValues("AllowProd", tiering.BaselineJIT.String()))
	if got != 1 {
		t.Errorf("promotion count = %v, want 1", got)
	}
}

func TestObserveTieringSetsPerPolicyGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTiering([]tiering.Snapshot{
		{Name: "AllowProd", Tier: tiering.Interpreter, EvalCount: 42},
	})

	got := testutil.ToFloat64(m.TieringEvalCount.WithLabelValues("AllowProd"))
	if got != 42 {
		t.Errorf("eval count gauge = %v, want 42", got)
	}
}
