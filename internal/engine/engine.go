// Package engine runs the walk-forward, backtest and risk pipeline for a
// symbol and persists its results.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sentiq/internal/domain"
	"sentiq/internal/model"
	"sentiq/internal/store"
	"sentiq/internal/strategy"
	"sentiq/internal/walkforward"
)

// Recorder receives pipeline metrics. It is satisfied by *metrics.Recorder.
type Recorder interface {
	walkforward.Observer
	ObserveRun(symbol, classifier string, sum domain.RiskSummary)
}

// Options configures an Engine. Stores and Recorder are optional.
type Options struct {
	Classifier      string // model kind, see model.Kinds
	Seed            uint64
	TrainRatio      float64
	Workers         int
	Backtest        strategy.BacktestConfig
	SignalThreshold float64

	Backtests store.BacktestStore
	Runs      store.RunStore
	Signals   store.SignalStore
	Recorder  Recorder
	Logger    *slog.Logger
}

// Result is the outcome of one pipeline run.
type Result struct {
	Run         domain.Run
	Predictions []domain.Prediction
	Backtest    *strategy.BacktestResult
	Signal      *domain.Signal // nil when no prediction carries a value
}

// Engine orchestrates walk-forward validation, backtesting and risk
// reporting. It is safe for concurrent use.
type Engine struct {
	opts Options
	kind string
	wf   *walkforward.Engine
	bt   *strategy.Backtester
	log  *slog.Logger
}

// New validates opts and builds an Engine. Invalid settings are reported as
// *domain.ConfigError before any computation starts.
func New(opts Options) (*Engine, error) {
	kind := strings.ToLower(opts.Classifier)
	if kind == "" {
		kind = model.KindForest
	}
	if opts.Seed == 0 {
		opts.Seed = model.DefaultSeed
	}
	clf, err := model.New(kind, opts.Seed)
	if err != nil {
		return nil, err
	}
	if !(opts.SignalThreshold > 0 && opts.SignalThreshold <= 1) {
		return nil, &domain.ConfigError{
			Field:  "signal_threshold",
			Reason: fmt.Sprintf("%v is outside (0, 1]", opts.SignalThreshold),
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	wcfg := walkforward.Config{
		TrainRatio: opts.TrainRatio,
		Workers:    opts.Workers,
		Logger:     logger,
	}
	if opts.Recorder != nil {
		wcfg.Observer = opts.Recorder
	}
	wf, err := walkforward.New(clf, wcfg)
	if err != nil {
		return nil, err
	}
	bt, err := strategy.NewBacktester(opts.Backtest)
	if err != nil {
		return nil, err
	}

	return &Engine{opts: opts, kind: kind, wf: wf, bt: bt, log: logger}, nil
}

// Options returns a copy of the options the Engine was built with, for
// deriving a variant with New.
func (e *Engine) Options() Options {
	return e.opts
}

// Run executes the pipeline over rows for symbol. When the walk-forward
// sweep is cancelled, Run returns a Result carrying only the partial
// predictions together with the wrapped context error.
func (e *Engine) Run(ctx context.Context, symbol string, rows []domain.FeatureRow) (*Result, error) {
	symbol = strings.ToUpper(symbol)
	log := e.log.With("symbol", symbol, "classifier", e.kind)
	started := time.Now()

	preds, err := e.wf.Run(ctx, rows)
	if err != nil {
		return &Result{Predictions: preds}, fmt.Errorf("%s: %w", symbol, err)
	}

	bres, err := e.bt.Run(rows, preds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	summary := Summarize(bres)

	cfg := e.bt.Config()
	res := &Result{
		Run: domain.Run{
			ID:            uuid.NewString(),
			Symbol:        symbol,
			Classifier:    e.kind,
			TrainRatio:    e.opts.TrainRatio,
			ConfThreshold: cfg.ConfThreshold,
			Cost:          cfg.Cost,
			MaxDrawdown:   cfg.MaxDrawdownLimit,
			Rows:          len(bres.Rows),
			Dropped:       bres.Dropped,
			Summary:       summary,
			CreatedAt:     time.Now().UTC(),
		},
		Predictions: preds,
		Backtest:    bres,
	}
	if sig, ok := strategy.LatestSignal(symbol, rows, preds, e.opts.SignalThreshold); ok {
		sig.RunID = res.Run.ID
		res.Signal = &sig
	}

	if bres.Stopped() {
		log.Warn("capital protection stop fired",
			"row", bres.StopIndex, "drawdown", bres.StopDrawdown)
	}
	if e.opts.Recorder != nil {
		e.opts.Recorder.ObserveRun(symbol, e.kind, summary)
	}
	if err := e.persist(ctx, res); err != nil {
		return res, err
	}

	log.Info("backtest finished",
		"run", res.Run.ID,
		"rows", res.Run.Rows,
		"dropped", res.Run.Dropped,
		"sharpe", summary.Sharpe,
		"max_drawdown", summary.MaxDrawdown,
		"total_return", summary.TotalReturn,
		"elapsed", time.Since(started),
	)
	return res, nil
}

func (e *Engine) persist(ctx context.Context, res *Result) error {
	run := &res.Run
	if e.opts.Backtests != nil {
		if err := e.opts.Backtests.WriteBacktest(ctx, run.Symbol, run.ID, res.Backtest.Rows); err != nil {
			return fmt.Errorf("saving backtest rows: %w", err)
		}
	}
	if e.opts.Runs != nil {
		if err := e.opts.Runs.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
	}
	if e.opts.Signals != nil && res.Signal != nil {
		if err := e.opts.Signals.SaveSignal(ctx, res.Signal); err != nil {
			return fmt.Errorf("saving signal: %w", err)
		}
	}
	return nil
}
