package engine

import (
	"context"
	"fmt"
	"strings"

	"sentiq/internal/config"
	"sentiq/internal/store"
	"sentiq/internal/strategy"
)

// Overrides adjusts the base options for a single run. Nil fields keep the
// base value.
type Overrides struct {
	Classifier       *string  `json:"classifier,omitempty"`
	TrainRatio       *float64 `json:"train_ratio,omitempty"`
	ConfThreshold    *float64 `json:"conf_threshold,omitempty"`
	SignalThreshold  *float64 `json:"signal_threshold,omitempty"`
	Cost             *float64 `json:"cost,omitempty"`
	MaxDrawdownLimit *float64 `json:"max_drawdown_limit,omitempty"`
}

// Apply returns a copy of o with ov applied.
func (o Options) Apply(ov Overrides) Options {
	if ov.Classifier != nil {
		o.Classifier = *ov.Classifier
	}
	if ov.TrainRatio != nil {
		o.TrainRatio = *ov.TrainRatio
	}
	if ov.ConfThreshold != nil {
		o.Backtest.ConfThreshold = *ov.ConfThreshold
	}
	if ov.SignalThreshold != nil {
		o.SignalThreshold = *ov.SignalThreshold
	}
	if ov.Cost != nil {
		o.Backtest.Cost = *ov.Cost
	}
	if ov.MaxDrawdownLimit != nil {
		o.Backtest.MaxDrawdownLimit = *ov.MaxDrawdownLimit
	}
	return o
}

// Service runs backtests over stored feature tables. It backs the HTTP and
// gRPC interfaces.
type Service struct {
	base     *Engine
	features store.FeatureStore
}

// NewService wraps base, whose options are the defaults for every request.
func NewService(base *Engine, features store.FeatureStore) *Service {
	return &Service{base: base, features: features}
}

// Backtest loads the feature table for symbol and runs the pipeline with ov
// applied. Invalid overrides surface as *domain.ConfigError and a missing
// feature table as domain.ErrNotFound.
func (s *Service) Backtest(ctx context.Context, symbol string, ov Overrides) (*Result, error) {
	symbol = strings.ToUpper(symbol)
	rows, err := s.features.ReadFeatures(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("features for %s: %w", symbol, err)
	}

	e := s.base
	if ov != (Overrides{}) {
		if e, err = New(s.base.Options().Apply(ov)); err != nil {
			return nil, err
		}
	}
	return e.Run(ctx, symbol, rows)
}

// FromConfig maps the backtest section of the configuration onto Options.
// Stores, recorder and logger are left for the caller.
func FromConfig(b config.Backtest) Options {
	if b.PositionCap == 0 {
		b.PositionCap = strategy.DefaultPositionCap
	}
	return Options{
		Classifier: b.Classifier,
		Seed:       b.Seed,
		TrainRatio: b.TrainRatio,
		Workers:    b.Workers,
		Backtest: strategy.BacktestConfig{
			Cost:             b.Cost,
			ConfThreshold:    b.ConfThreshold,
			MaxDrawdownLimit: b.MaxDrawdownLimit,
			PositionCap:      b.PositionCap,
		},
		SignalThreshold: b.SignalThreshold,
	}
}
