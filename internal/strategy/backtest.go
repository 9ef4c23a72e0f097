package strategy

import (
	"fmt"
	"math"
	"slices"

	"sentiq/internal/domain"
)

// DefaultPositionCap bounds the inverse-volatility base position unless a
// config says otherwise.
const DefaultPositionCap = 3

// BacktestConfig holds the position-sizing and risk parameters of a backtest.
type BacktestConfig struct {
	// Cost is charged per unit of exposure on every step with a position.
	Cost float64

	// ConfThreshold is the confidence at or below which no exposure is taken.
	ConfThreshold float64

	// MaxDrawdownLimit is the drawdown fraction that triggers the
	// capital-protection stop.
	MaxDrawdownLimit float64

	// PositionCap bounds the inverse-volatility base position. It must be
	// positive and finite.
	PositionCap float64
}

// DefaultBacktestConfig returns the documented defaults.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		Cost:             0.001,
		ConfThreshold:    0.52,
		MaxDrawdownLimit: 0.30,
		PositionCap:      DefaultPositionCap,
	}
}

// Validate reports the first invalid field as a *domain.ConfigError.
func (c BacktestConfig) Validate() error {
	switch {
	case math.IsNaN(c.ConfThreshold) || c.ConfThreshold < 0 || c.ConfThreshold >= 1:
		return &domain.ConfigError{Field: "conf_threshold", Reason: fmt.Sprintf("%v is outside [0, 1)", c.ConfThreshold)}
	case math.IsNaN(c.MaxDrawdownLimit) || c.MaxDrawdownLimit <= 0:
		return &domain.ConfigError{Field: "max_drawdown_limit", Reason: fmt.Sprintf("%v must be positive", c.MaxDrawdownLimit)}
	case math.IsNaN(c.Cost) || math.IsInf(c.Cost, 0) || c.Cost < 0:
		return &domain.ConfigError{Field: "cost", Reason: fmt.Sprintf("%v must be a non-negative number", c.Cost)}
	case !(c.PositionCap > 0) || math.IsInf(c.PositionCap, 1):
		return &domain.ConfigError{Field: "position_cap", Reason: fmt.Sprintf("%v must be positive and finite", c.PositionCap)}
	}
	return nil
}

// BacktestResult holds the simulated rows of a completed backtest.
type BacktestResult struct {
	Rows []domain.BacktestRow

	// Dropped counts input rows excluded for a missing prediction or a
	// missing or non-finite return, volatility or confidence.
	Dropped int

	// StopIndex is the position in Rows where the capital-protection stop
	// fired, or -1.
	StopIndex int

	// StopDrawdown is the drawdown (<= 0) observed at StopIndex before the
	// stop was applied.
	StopDrawdown float64
}

// Stopped reports whether the capital-protection stop fired.
func (r *BacktestResult) Stopped() bool {
	return r.StopIndex >= 0
}

// Backtester simulates a confidence-weighted, volatility-scaled long/short
// strategy over walk-forward predictions.
type Backtester struct {
	cfg BacktestConfig
}

// NewBacktester validates cfg and returns a Backtester.
func NewBacktester(cfg BacktestConfig) (*Backtester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Backtester{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (bt *Backtester) Config() BacktestConfig {
	return bt.cfg
}

// Run backtests rows against preds, which must be the same length and in
// the same order. Rows that cannot be backtested are dropped; if none remain
// Run returns domain.ErrNoBacktestableData.
func (bt *Backtester) Run(rows []domain.FeatureRow, preds []domain.Prediction) (*BacktestResult, error) {
	if len(rows) != len(preds) {
		return nil, fmt.Errorf("backtest: %d feature rows but %d predictions", len(rows), len(preds))
	}

	res := &BacktestResult{
		Rows:      make([]domain.BacktestRow, 0, len(rows)),
		StopIndex: -1,
	}
	for i, r := range rows {
		p := preds[i]
		vol, ok := r.Volatility.Get()
		if !ok || !p.Valid() || !finite(p.Confidence) || !finite(r.Return) || !finite(vol) || vol < 0 {
			res.Dropped++
			continue
		}

		br := domain.BacktestRow{
			Index:      i,
			FeatureRow: r,
			Label:      p.Label,
			Confidence: p.Confidence,
		}
		br.BasePosition = bt.basePosition(vol)
		br.ConfWeight = bt.confWeight(p.Confidence)
		br.PositionSize = br.BasePosition * br.ConfWeight

		dir := -1.0
		if p.Label == 1 {
			dir = 1
		}
		br.StrategyReturn = dir*r.Return*br.PositionSize - bt.cfg.Cost*br.PositionSize
		res.Rows = append(res.Rows, br)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%w: all %d rows dropped", domain.ErrNoBacktestableData, res.Dropped)
	}

	market := 1.0
	for i := range res.Rows {
		market *= 1 + res.Rows[i].Return
		res.Rows[i].CumMarket = market
	}
	compound(res.Rows)

	for k := range res.Rows {
		if -res.Rows[k].Drawdown > bt.cfg.MaxDrawdownLimit {
			res.StopIndex = k
			res.StopDrawdown = res.Rows[k].Drawdown
			for i := k; i < len(res.Rows); i++ {
				res.Rows[i].PositionSize = 0
				res.Rows[i].StrategyReturn = 0
				res.Rows[i].Stopped = true
			}
			compound(res.Rows)
			break
		}
	}

	assignRegimes(res.Rows)
	return res, nil
}

// basePosition is inverse volatility capped at PositionCap. Zero volatility
// takes no exposure.
func (bt *Backtester) basePosition(vol float64) float64 {
	if vol == 0 {
		return 0
	}
	return math.Min(1/vol, bt.cfg.PositionCap)
}

func (bt *Backtester) confWeight(conf float64) float64 {
	w := (conf - bt.cfg.ConfThreshold) / (1 - bt.cfg.ConfThreshold)
	return math.Max(0, math.Min(1, w))
}

// compound recomputes the strategy equity curve and its drawdown from
// StrategyReturn.
func compound(rows []domain.BacktestRow) {
	equity, peak := 1.0, 1.0
	for i := range rows {
		equity *= 1 + rows[i].StrategyReturn
		if i == 0 || equity > peak {
			peak = equity
		}
		rows[i].CumStrategy = equity
		rows[i].Drawdown = 0
		if peak > 0 {
			rows[i].Drawdown = (equity - peak) / peak
		}
	}
}

// assignRegimes buckets rows into volatility tertiles. Edges are the 1/3 and
// 2/3 quantiles with linear interpolation; a value equal to an edge falls in
// the lower bucket.
func assignRegimes(rows []domain.BacktestRow) {
	vols := make([]float64, len(rows))
	for i, r := range rows {
		vols[i] = r.Volatility.Value
	}
	slices.Sort(vols)
	q1, q2 := quantile(vols, 1.0/3), quantile(vols, 2.0/3)

	for i := range rows {
		v := rows[i].Volatility.Value
		switch {
		case v <= q1:
			rows[i].Regime = domain.RegimeLow
		case v <= q2:
			rows[i].Regime = domain.RegimeMedium
		default:
			rows[i].Regime = domain.RegimeHigh
		}
	}
}

// quantile returns the q-th quantile of sorted using linear interpolation
// between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
