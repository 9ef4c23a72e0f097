package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"sentiq/internal/domain"
	"sentiq/internal/walkforward"
)

func TestRecorderSteps(t *testing.T) {
	r := New()
	r.OnStep(walkforward.Step{Status: domain.StatusOK, Classifier: "Random Forest", Duration: 5 * time.Millisecond})
	r.OnStep(walkforward.Step{Status: domain.StatusOK, Classifier: "Random Forest", Duration: 7 * time.Millisecond})
	r.OnStep(walkforward.Step{Status: domain.StatusInsufficientData, Classifier: "Random Forest"})

	if got := testutil.ToFloat64(r.steps.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok steps = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.steps.WithLabelValues("insufficient_data")); got != 1 {
		t.Errorf("insufficient_data steps = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(r.fitDuration); n != 1 {
		t.Errorf("fit duration series = %d, want 1", n)
	}
}

func TestRecorderRuns(t *testing.T) {
	r := New()
	r.ObserveRun("AAPL", "forest", domain.RiskSummary{Sharpe: 1.5, MaxDrawdown: -0.1, StopIndex: -1})
	r.ObserveRun("AAPL", "forest", domain.RiskSummary{Sharpe: 0.5, MaxDrawdown: -0.35, StopIndex: 12})

	if got := testutil.ToFloat64(r.runs.WithLabelValues("forest")); got != 2 {
		t.Errorf("runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.stops); got != 1 {
		t.Errorf("stops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.lastSharpe.WithLabelValues("AAPL")); got != 0.5 {
		t.Errorf("last sharpe = %v, want 0.5", got)
	}
}

func TestRecorderHandler(t *testing.T) {
	r := New()
	r.ObserveRun("SPY", "linear", domain.RiskSummary{StopIndex: -1})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `sentiq_backtest_runs_total{classifier="linear"} 1`) {
		t.Errorf("metrics output missing run counter:\n%s", body)
	}

	// A second recorder must not collide with the first.
	_ = New()
}
