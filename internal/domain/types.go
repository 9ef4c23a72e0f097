// Package domain defines the fixed-schema records that flow between the
// feature, walk-forward, backtest and reporting stages.
package domain

import (
	"math"
	"time"
)

// Bar is a single daily OHLCV bar.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Maybe holds a value that may be absent.
type Maybe[T any] struct {
	Value T
	Valid bool
}

// Some returns a present Maybe holding v.
func Some[T any](v T) Maybe[T] {
	return Maybe[T]{Value: v, Valid: true}
}

// None returns an absent Maybe.
func None[T any]() Maybe[T] {
	return Maybe[T]{}
}

// Get returns the held value and whether it is present.
func (m Maybe[T]) Get() (T, bool) {
	return m.Value, m.Valid
}

// FeatureRow is one time step of model input. Rows are strictly
// time-ordered and never mutated after they are produced.
type FeatureRow struct {
	Time       time.Time
	Return     float64        // simple return over the prior period
	Volatility Maybe[float64] // rolling std-dev of Return
	Sentiment  float64
	Target     int // next-step direction, 0 or 1; training only
}

// NumFeatures is the width of FeatureRow.Vector.
const NumFeatures = 3

// FeatureNames lists the columns of FeatureRow.Vector in order.
var FeatureNames = [NumFeatures]string{"return", "volatility", "sentiment"}

// Vector returns the model input [return, volatility, sentiment] and whether
// every component is present and finite.
func (r FeatureRow) Vector() ([]float64, bool) {
	vol, ok := r.Volatility.Get()
	if !ok || !finite(vol) || !finite(r.Return) || !finite(r.Sentiment) {
		return nil, false
	}
	return []float64{r.Return, vol, r.Sentiment}, true
}

// PredictionStatus explains why a Prediction does or does not carry a value.
type PredictionStatus string

const (
	StatusSeed             PredictionStatus = "seed"
	StatusOK               PredictionStatus = "ok"
	StatusInsufficientData PredictionStatus = "insufficient_data"
	StatusFitFailed        PredictionStatus = "fit_failed"
	StatusCancelled        PredictionStatus = "cancelled"
)

// Prediction is the walk-forward output for one row. Label and Confidence are
// meaningful only when Status is StatusOK.
type Prediction struct {
	Index      int
	Status     PredictionStatus
	Label      int     // 1 = up, 0 = down
	Confidence float64 // probability of the up class
	Err        error   // set for StatusFitFailed
}

// Valid reports whether the prediction carries a label and confidence.
func (p Prediction) Valid() bool {
	return p.Status == StatusOK
}

// VolRegime is the tertile bucket of a row's volatility.
type VolRegime string

const (
	RegimeLow    VolRegime = "Low"
	RegimeMedium VolRegime = "Medium"
	RegimeHigh   VolRegime = "High"
)

// Regimes lists the volatility regimes from calmest to most volatile.
var Regimes = []VolRegime{RegimeLow, RegimeMedium, RegimeHigh}

// BacktestRow is a FeatureRow joined with its prediction and the simulated
// position and equity at that step.
type BacktestRow struct {
	Index int // position in the original feature sequence
	FeatureRow
	Label          int
	Confidence     float64
	BasePosition   float64
	ConfWeight     float64
	PositionSize   float64
	StrategyReturn float64
	CumStrategy    float64
	CumMarket      float64
	Drawdown       float64 // <= 0, fraction below the running equity peak
	Regime         VolRegime
	Stopped        bool // capital-protection stop active at this row
}

// RegimeStats summarises strategy returns within one volatility regime.
type RegimeStats struct {
	Regime     VolRegime `json:"regime"`
	Rows       int       `json:"rows"`
	MeanReturn float64   `json:"mean_return"`
	Sharpe     float64   `json:"sharpe"`
}

// RiskSummary is derived read-only from a completed backtest.
type RiskSummary struct {
	Sharpe       float64 `json:"sharpe"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalReturn  float64 `json:"total_return"`
	MarketReturn float64 `json:"market_return"`
	TotalTrades  int     `json:"total_trades"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	Exposure     float64 `json:"exposure"`
	StopIndex    int     `json:"stop_index"` // -1 when the stop never fired

	Regimes []RegimeStats `json:"regimes"`
}

// SignalType is the discrete trading label shown to users.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Signal is a labelled prediction for a symbol at a point in time.
type Signal struct {
	ID         int64
	RunID      string
	Symbol     string
	Type       SignalType
	Confidence float64
	Time       time.Time
	CreatedAt  time.Time
}

// Run describes one persisted backtest run.
type Run struct {
	ID            string
	Symbol        string
	Classifier    string
	TrainRatio    float64
	ConfThreshold float64
	Cost          float64
	MaxDrawdown   float64 // configured limit
	Rows          int
	Dropped       int
	Summary       RiskSummary
	CreatedAt     time.Time
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
