package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sentiq/internal/config"
	"sentiq/internal/domain"
	"sentiq/internal/store"
	"sentiq/internal/strategy"
	"sentiq/internal/walkforward"
)

type fakeRecorder struct {
	mu    sync.Mutex
	steps int
	runs  []string
}

func (f *fakeRecorder) OnStep(walkforward.Step) {
	f.mu.Lock()
	f.steps++
	f.mu.Unlock()
}

func (f *fakeRecorder) ObserveRun(symbol, classifier string, _ domain.RiskSummary) {
	f.mu.Lock()
	f.runs = append(f.runs, symbol+"/"+classifier)
	f.mu.Unlock()
}

func testOptions() Options {
	return Options{
		Classifier:      "linear",
		TrainRatio:      0.5,
		Backtest:        strategy.DefaultBacktestConfig(),
		SignalThreshold: strategy.DefaultSignalThreshold,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func syntheticRows(n int) []domain.FeatureRow {
	rng := rand.New(rand.NewPCG(21, 22))
	rows := make([]domain.FeatureRow, n)
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		ret := rng.NormFloat64() * 0.015
		rows[i] = domain.FeatureRow{
			Time:       day.AddDate(0, 0, i),
			Return:     ret,
			Volatility: domain.Some(0.01 + rng.Float64()*0.01),
			Sentiment:  0.15,
		}
		if i > 0 && ret > 0 {
			rows[i-1].Target = 1
		}
	}
	return rows
}

func TestNewConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*Options)
		field string
	}{
		{"unknown classifier", func(o *Options) { o.Classifier = "svm" }, "classifier"},
		{"train ratio", func(o *Options) { o.TrainRatio = 1 }, "train_ratio"},
		{"signal threshold", func(o *Options) { o.SignalThreshold = 0 }, "signal_threshold"},
		{"conf threshold", func(o *Options) { o.Backtest.ConfThreshold = 1 }, "conf_threshold"},
		{"drawdown limit", func(o *Options) { o.Backtest.MaxDrawdownLimit = 0 }, "max_drawdown_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.apply(&opts)
			_, err := New(opts)
			var ce *domain.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("New error = %v, want *domain.ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestRunPersists(t *testing.T) {
	dir := t.TempDir()
	ps := store.NewParquetStore(dir)
	db, err := store.NewSQLiteStore(filepath.Join(dir, "sentiq.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer db.Close()
	rec := &fakeRecorder{}

	opts := testOptions()
	opts.Backtests = ps
	opts.Runs = db
	opts.Signals = db
	opts.Recorder = rec
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rows := syntheticRows(90)
	ctx := context.Background()
	res, err := e.Run(ctx, "aapl", rows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Run.Symbol != "AAPL" || res.Run.Classifier != "linear" || res.Run.ID == "" {
		t.Errorf("Run = %+v", res.Run)
	}
	if len(res.Predictions) != len(rows) {
		t.Errorf("len(Predictions) = %d, want %d", len(res.Predictions), len(rows))
	}
	// 45 seed rows are dropped from the backtest.
	if res.Run.Dropped != 45 || res.Run.Rows != 45 {
		t.Errorf("rows=%d dropped=%d, want 45 and 45", res.Run.Rows, res.Run.Dropped)
	}

	saved, err := db.GetRun(ctx, res.Run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if saved.Summary.Sharpe != res.Run.Summary.Sharpe || saved.Rows != res.Run.Rows {
		t.Errorf("saved run = %+v, want %+v", saved, res.Run)
	}

	stored, err := ps.ReadBacktest(ctx, "AAPL", res.Run.ID)
	if err != nil {
		t.Fatalf("ReadBacktest: %v", err)
	}
	if len(stored) != len(res.Backtest.Rows) {
		t.Errorf("stored %d backtest rows, want %d", len(stored), len(res.Backtest.Rows))
	}

	if res.Signal == nil {
		t.Fatal("no signal produced")
	}
	sigs, err := db.ListSignals(ctx, "AAPL", 5)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(sigs) != 1 || sigs[0].RunID != res.Run.ID {
		t.Errorf("signals = %+v", sigs)
	}

	if rec.steps != 45 {
		t.Errorf("observed %d steps, want 45", rec.steps)
	}
	if len(rec.runs) != 1 || rec.runs[0] != "AAPL/linear" {
		t.Errorf("observed runs = %v", rec.runs)
	}
}

func TestRunDeterministic(t *testing.T) {
	opts := testOptions()
	opts.Classifier = "forest"
	opts.Workers = 4
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rows := syntheticRows(70)

	a, err := e.Run(context.Background(), "SPY", rows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := e.Run(context.Background(), "SPY", rows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.Run.ID == b.Run.ID {
		t.Error("run IDs repeat")
	}
	if a.Run.Summary.Sharpe != b.Run.Summary.Sharpe || a.Run.Summary.TotalReturn != b.Run.Summary.TotalReturn {
		t.Errorf("summaries differ: %+v vs %+v", a.Run.Summary, b.Run.Summary)
	}
}

func TestRunCancelled(t *testing.T) {
	e, err := New(testOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.Run(ctx, "SPY", syntheticRows(60))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if res == nil || len(res.Predictions) != 60 || res.Backtest != nil {
		t.Errorf("cancelled result = %+v", res)
	}
}

func TestRunNoBacktestableData(t *testing.T) {
	e, err := New(testOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Too few rows for any step to train.
	_, err = e.Run(context.Background(), "SPY", syntheticRows(20))
	if !errors.Is(err, domain.ErrNoBacktestableData) {
		t.Errorf("Run error = %v, want ErrNoBacktestableData", err)
	}
}

func TestFromConfigAndOverrides(t *testing.T) {
	b := config.Backtest{
		Classifier: "linear", Seed: 7, TrainRatio: 0.6, Workers: 2,
		Cost: 0.002, ConfThreshold: 0.55, SignalThreshold: 0.65, MaxDrawdownLimit: 0.2, PositionCap: 2,
	}
	opts := FromConfig(b)
	if opts.Classifier != "linear" || opts.Seed != 7 || opts.Backtest.PositionCap != 2 || opts.SignalThreshold != 0.65 {
		t.Errorf("FromConfig = %+v", opts)
	}

	cost, kind := 0.0, "forest"
	got := opts.Apply(Overrides{Cost: &cost, Classifier: &kind})
	if got.Backtest.Cost != 0 || got.Classifier != "forest" || got.TrainRatio != 0.6 {
		t.Errorf("Apply = %+v", got)
	}
	if opts.Backtest.Cost != 0.002 {
		t.Error("Apply mutated the receiver")
	}

	b.PositionCap = 0
	if got := FromConfig(b).Backtest.PositionCap; got != strategy.DefaultPositionCap {
		t.Errorf("unset position cap = %v, want %v", got, strategy.DefaultPositionCap)
	}
}

func TestServiceBacktest(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())
	ctx := context.Background()
	if err := ps.WriteFeatures(ctx, "QQQ", syntheticRows(80)); err != nil {
		t.Fatalf("WriteFeatures: %v", err)
	}
	e, err := New(testOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc := NewService(e, ps)

	res, err := svc.Backtest(ctx, "qqq", Overrides{})
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if res.Run.Symbol != "QQQ" || res.Run.Classifier != "linear" {
		t.Errorf("run = %+v", res.Run)
	}

	kind := "forest"
	res, err = svc.Backtest(ctx, "QQQ", Overrides{Classifier: &kind})
	if err != nil || res.Run.Classifier != "forest" {
		t.Errorf("override run = %+v, %v", res, err)
	}

	if _, err := svc.Backtest(ctx, "NONE", Overrides{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing features error = %v", err)
	}
	bad := -1.0
	var ce *domain.ConfigError
	if _, err := svc.Backtest(ctx, "QQQ", Overrides{Cost: &bad}); !errors.As(err, &ce) || ce.Field != "cost" {
		t.Errorf("bad cost error = %v", err)
	}
}
