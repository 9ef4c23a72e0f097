// Package store defines storage interfaces for persisting and retrieving
// bars, feature tables, backtest rows, run summaries and signals.
package store

import (
	"context"
	"time"

	"sentiq/internal/domain"
)

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars, replacing any stored bar with the
	// same symbol and timestamp.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end], oldest first.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// FeatureStore persists the feature table of a symbol.
type FeatureStore interface {
	// WriteFeatures replaces the feature table for symbol.
	WriteFeatures(ctx context.Context, symbol string, rows []domain.FeatureRow) error

	// ReadFeatures returns the feature table for symbol. It returns
	// domain.ErrNotFound when none has been written.
	ReadFeatures(ctx context.Context, symbol string) ([]domain.FeatureRow, error)
}

// BacktestStore persists the simulated rows of a backtest run.
type BacktestStore interface {
	// WriteBacktest stores rows under (symbol, runID).
	WriteBacktest(ctx context.Context, symbol, runID string, rows []domain.BacktestRow) error

	// ReadBacktest returns the rows of a stored run, or domain.ErrNotFound.
	ReadBacktest(ctx context.Context, symbol, runID string) ([]domain.BacktestRow, error)
}

// RunStore persists backtest run summaries.
type RunStore interface {
	// SaveRun inserts a new run.
	SaveRun(ctx context.Context, run *domain.Run) error

	// GetRun retrieves a run by ID, or domain.ErrNotFound.
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// ListRuns returns the most recent runs, newest first, optionally
	// filtered by symbol. A limit <= 0 returns all runs.
	ListRuns(ctx context.Context, symbol string, limit int) ([]domain.Run, error)
}

// SignalStore persists trading signals.
type SignalStore interface {
	// SaveSignal inserts a new signal and sets its ID.
	SaveSignal(ctx context.Context, signal *domain.Signal) error

	// ListSignals returns the most recent signals for symbol, newest first,
	// up to limit.
	ListSignals(ctx context.Context, symbol string, limit int) ([]domain.Signal, error)
}
