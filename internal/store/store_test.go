package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sentiq/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	if got, want := ps.barPath("aapl", 2024), filepath.Join("/data", "daily", "AAPL", "2024.parquet"); got != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", got, want)
	}
	if got, want := ps.featurePath("msft"), filepath.Join("/data", "features", "MSFT.parquet"); got != want {
		t.Errorf("featurePath mismatch:\n  got  %s\n  want %s", got, want)
	}
	if got, want := ps.backtestPath("tsla", "../run-1"), filepath.Join("/data", "backtests", "TSLA", "run-1.parquet"); got != want {
		t.Errorf("backtestPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:       185.0,
			High:       186.5,
			Low:        184.0,
			Close:      185.5,
			Volume:     50000000,
			TradeCount: 500000,
			VWAP:       185.25,
		},
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:       185.5,
			High:       187.0,
			Low:        185.0,
			Close:      186.0,
			Volume:     45000000,
			TradeCount: 450000,
			VWAP:       185.75,
		},
	}

	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 {
		t.Errorf("first bar Close = %v, want 185.5", got[0].Close)
	}
	if got[1].Close != 186.0 {
		t.Errorf("second bar Close = %v, want 186.0", got[1].Close)
	}

	// Range filtering is inclusive on both ends.
	got, err = ps.ReadBars(ctx, "AAPL", bars[1].Timestamp, bars[1].Timestamp)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 || !got[0].Timestamp.Equal(bars[1].Timestamp) {
		t.Errorf("ReadBars(single day) = %+v", got)
	}

	symbols, err := ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "AAPL" {
		t.Errorf("ListSymbols = %v, want [AAPL]", symbols)
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first := []domain.Bar{{Symbol: "MSFT", Timestamp: day, Close: 403.0}}
	if err := ps.WriteBars(ctx, first); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}
	second := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day, Close: 404.0},
		{Symbol: "MSFT", Timestamp: day.AddDate(0, 0, 1), Close: 406.0},
	}
	if err := ps.WriteBars(ctx, second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT", day, day.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2 after merge", len(got))
	}
	if got[0].Close != 404.0 {
		t.Errorf("merged bar Close = %v, want the newer 404.0", got[0].Close)
	}
}

func TestParquetStoreFeatures(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if _, err := ps.ReadFeatures(ctx, "NVDA"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ReadFeatures(missing) error = %v, want ErrNotFound", err)
	}

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []domain.FeatureRow{
		{Time: day, Return: 0.01, Volatility: domain.None[float64](), Sentiment: 0.2, Target: 1},
		{Time: day.AddDate(0, 0, 1), Return: -0.02, Volatility: domain.Some(0.015), Sentiment: 0.2},
	}
	if err := ps.WriteFeatures(ctx, "NVDA", rows); err != nil {
		t.Fatalf("WriteFeatures: %v", err)
	}
	got, err := ps.ReadFeatures(ctx, "nvda")
	if err != nil {
		t.Fatalf("ReadFeatures: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadFeatures returned %d rows, want 2", len(got))
	}
	for i := range rows {
		if !sameFeature(got[i], rows[i]) {
			t.Errorf("row %d = %+v, want %+v", i, got[i], rows[i])
		}
	}
}

// sameFeature compares rows with time.Time.Equal rather than ==.
func sameFeature(a, b domain.FeatureRow) bool {
	if !a.Time.Equal(b.Time) {
		return false
	}
	a.Time, b.Time = time.Time{}, time.Time{}
	return a == b
}

func TestParquetStoreBacktest(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	rows := []domain.BacktestRow{
		{
			Index:          31,
			FeatureRow:     domain.FeatureRow{Time: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), Return: 0.01, Volatility: domain.Some(0.02)},
			Label:          1,
			Confidence:     0.7,
			BasePosition:   3,
			ConfWeight:     0.375,
			PositionSize:   1.125,
			StrategyReturn: 0.011,
			CumStrategy:    1.011,
			CumMarket:      1.01,
			Regime:         domain.RegimeHigh,
		},
		{
			Index:      32,
			FeatureRow: domain.FeatureRow{Time: time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC), Return: -0.4, Volatility: domain.Some(0.01)},
			CumMarket:  0.606,
			Drawdown:   -0.35,
			Regime:     domain.RegimeLow,
			Stopped:    true,
		},
	}
	if err := ps.WriteBacktest(ctx, "SPY", "run-1", rows); err != nil {
		t.Fatalf("WriteBacktest: %v", err)
	}
	got, err := ps.ReadBacktest(ctx, "SPY", "run-1")
	if err != nil {
		t.Fatalf("ReadBacktest: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("ReadBacktest returned %d rows, want %d", len(got), len(rows))
	}
	for i := range rows {
		a, b := got[i], rows[i]
		if !sameFeature(a.FeatureRow, b.FeatureRow) {
			t.Errorf("row %d features = %+v, want %+v", i, a.FeatureRow, b.FeatureRow)
		}
		a.FeatureRow, b.FeatureRow = domain.FeatureRow{}, domain.FeatureRow{}
		if a != b {
			t.Errorf("row %d = %+v, want %+v", i, a, b)
		}
	}

	if _, err := ps.ReadBacktest(ctx, "SPY", "run-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ReadBacktest(missing) error = %v, want ErrNotFound", err)
	}
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sentiq.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	runs := []*domain.Run{
		{ID: "a", Symbol: "AAPL", Classifier: "forest", TrainRatio: 0.7, ConfThreshold: 0.52, Cost: 0.001, MaxDrawdown: 0.3, Rows: 100, CreatedAt: base},
		{ID: "b", Symbol: "MSFT", Classifier: "linear", TrainRatio: 0.7, ConfThreshold: 0.52, Cost: 0.001, MaxDrawdown: 0.3, Rows: 90, CreatedAt: base.Add(time.Minute)},
		{
			ID: "c", Symbol: "AAPL", Classifier: "forest", TrainRatio: 0.6, ConfThreshold: 0.55, Cost: 0, MaxDrawdown: 0.2, Rows: 80, Dropped: 3,
			Summary: domain.RiskSummary{
				Sharpe: 1.25, MaxDrawdown: -0.12, TotalReturn: 0.3, StopIndex: -1,
				Regimes: []domain.RegimeStats{{Regime: domain.RegimeLow, Rows: 27, MeanReturn: 0.001, Sharpe: 0.9}},
			},
			CreatedAt: base.Add(2 * time.Minute),
		},
	}
	for _, r := range runs {
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun(%s): %v", r.ID, err)
		}
	}

	got, err := s.GetRun(ctx, "c")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Dropped != 3 || got.Summary.Sharpe != 1.25 || len(got.Summary.Regimes) != 1 || !got.CreatedAt.Equal(runs[2].CreatedAt) {
		t.Errorf("GetRun = %+v", got)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrNotFound", err)
	}

	all, err := s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Errorf("ListRuns(all) ids = %v", runIDs(all))
	}

	aapl, err := s.ListRuns(ctx, "AAPL", 1)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(aapl) != 1 || aapl[0].ID != "c" {
		t.Errorf("ListRuns(AAPL, 1) ids = %v", runIDs(aapl))
	}

	if err := s.SaveRun(ctx, runs[0]); err == nil {
		t.Error("SaveRun accepted a duplicate ID")
	}
}

func runIDs(runs []domain.Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

func TestSQLiteSignals(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)

	for i, typ := range []domain.SignalType{domain.SignalHold, domain.SignalBuy, domain.SignalSell} {
		sig := &domain.Signal{
			RunID:      "r",
			Symbol:     "AAPL",
			Type:       typ,
			Confidence: 0.5 + float64(i)/10,
			Time:       base.AddDate(0, 0, i),
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.SaveSignal(ctx, sig); err != nil {
			t.Fatalf("SaveSignal: %v", err)
		}
		if sig.ID == 0 {
			t.Error("SaveSignal did not set ID")
		}
	}

	got, err := s.ListSignals(ctx, "AAPL", 2)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListSignals returned %d, want 2", len(got))
	}
	if got[0].Type != domain.SignalSell || got[1].Type != domain.SignalBuy {
		t.Errorf("ListSignals order = %s, %s; want SELL, BUY", got[0].Type, got[1].Type)
	}
	if !got[0].Time.Equal(base.AddDate(0, 0, 2)) {
		t.Errorf("signal time = %v", got[0].Time)
	}

	none, err := s.ListSignals(ctx, "MSFT", 10)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListSignals(MSFT) = %v, want empty", none)
	}
}
