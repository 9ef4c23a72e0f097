// Package httpapi serves backtest runs, their rows and trading signals as a
// JSON HTTP API.
package httpapi

import (
	"math"
	"time"

	"sentiq/internal/domain"
)

// RunJSON is the JSON representation of a persisted run.
type RunJSON struct {
	ID            string             `json:"id"`
	Symbol        string             `json:"symbol"`
	Classifier    string             `json:"classifier"`
	TrainRatio    float64            `json:"train_ratio"`
	ConfThreshold float64            `json:"conf_threshold"`
	Cost          float64            `json:"cost"`
	MaxDrawdown   float64            `json:"max_drawdown_limit"`
	Rows          int                `json:"rows"`
	Dropped       int                `json:"dropped"`
	Summary       domain.RiskSummary `json:"summary"`
	CreatedAt     time.Time          `json:"created_at"`
}

// SignalJSON is the JSON representation of a trading signal.
type SignalJSON struct {
	ID         int64     `json:"id,omitempty"`
	RunID      string    `json:"run_id"`
	Symbol     string    `json:"symbol"`
	Type       string    `json:"type"`
	Confidence float64   `json:"confidence"`
	Time       time.Time `json:"time"`
	CreatedAt  time.Time `json:"created_at"`
}

// BacktestRowJSON is one simulated row. Volatility is null when absent.
type BacktestRowJSON struct {
	Index          int      `json:"index"`
	Time           string   `json:"date"`
	Return         float64  `json:"return"`
	Volatility     *float64 `json:"volatility"`
	Sentiment      float64  `json:"sentiment"`
	Prediction     int      `json:"prediction"`
	Confidence     float64  `json:"confidence"`
	PositionSize   float64  `json:"position_size"`
	StrategyReturn float64  `json:"strategy_return"`
	CumStrategy    float64  `json:"cum_strategy"`
	CumMarket      float64  `json:"cum_market"`
	Drawdown       float64  `json:"drawdown"`
	Regime         string   `json:"vol_regime"`
	Stopped        bool     `json:"stopped,omitempty"`
}

// BacktestResponse is returned by POST /api/backtests/{symbol}.
type BacktestResponse struct {
	Run    RunJSON     `json:"run"`
	Signal *SignalJSON `json:"signal,omitempty"`
}

func convertRun(r domain.Run) RunJSON {
	return RunJSON{
		ID:            r.ID,
		Symbol:        r.Symbol,
		Classifier:    r.Classifier,
		TrainRatio:    r.TrainRatio,
		ConfThreshold: r.ConfThreshold,
		Cost:          r.Cost,
		MaxDrawdown:   r.MaxDrawdown,
		Rows:          r.Rows,
		Dropped:       r.Dropped,
		Summary:       r.Summary,
		CreatedAt:     r.CreatedAt,
	}
}

func convertSignal(s domain.Signal) SignalJSON {
	return SignalJSON{
		ID:         s.ID,
		RunID:      s.RunID,
		Symbol:     s.Symbol,
		Type:       string(s.Type),
		Confidence: s.Confidence,
		Time:       s.Time,
		CreatedAt:  s.CreatedAt,
	}
}

func convertRows(rows []domain.BacktestRow) []BacktestRowJSON {
	out := make([]BacktestRowJSON, len(rows))
	for i, r := range rows {
		out[i] = BacktestRowJSON{
			Index:          r.Index,
			Time:           r.Time.UTC().Format(time.DateOnly),
			Return:         r.Return,
			Sentiment:      r.Sentiment,
			Prediction:     r.Label,
			Confidence:     r.Confidence,
			PositionSize:   r.PositionSize,
			StrategyReturn: r.StrategyReturn,
			CumStrategy:    r.CumStrategy,
			CumMarket:      r.CumMarket,
			Drawdown:       r.Drawdown,
			Regime:         string(r.Regime),
			Stopped:        r.Stopped,
		}
		if v, ok := r.Volatility.Get(); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i].Volatility = &v
		}
	}
	return out
}
