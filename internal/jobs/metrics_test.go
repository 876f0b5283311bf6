package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTrackerRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	for i := 0; i < 4; i++ {
		if err := metrics.Track("auth:event").End(nil); err != nil {
			t.Fatalf("unexpected error ending tracker: %v", err)
		}
	}
	if err := metrics.Track("auth:event").End(errors.New("insert failed")); err == nil {
		t.Fatal("expected error to propagate")
	}

	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("auth:event", "success")); got != 4 {
		t.Fatalf("expected 4 successful runs, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.failures.WithLabelValues("auth:event")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "odyssey_job_duration_seconds"); err != nil || n != 1 {
		t.Fatalf("expected one duration series, got %d (%v)", n, err)
	}
}

func TestAddPruned(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.AddPruned(0)
	metrics.AddPruned(7)
	if got := testutil.ToFloat64(metrics.pruned); got != 7 {
		t.Fatalf("expected 7 pruned rows, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.AddPruned(3)
	err := errors.New("boom")
	if got := metrics.Track("auth:events:prune").End(err); !errors.Is(got, err) {
		t.Fatalf("expected original error, got %v", got)
	}
}
