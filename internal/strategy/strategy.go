// Package strategy turns walk-forward predictions into positions and
// discrete trading signals, and backtests the resulting strategy.
package strategy

import (
	"time"

	"sentiq/internal/domain"
)

// DefaultSignalThreshold is the minimum directional confidence for a BUY or
// SELL label. It is independent of BacktestConfig.ConfThreshold, which only
// scales position size.
const DefaultSignalThreshold = 0.60

// LabelSignal maps a prediction to BUY, SELL or HOLD. The confidence compared
// against threshold is that of the predicted direction: the up probability
// for a long call and its complement for a short call. Predictions without a
// value are always HOLD.
func LabelSignal(p domain.Prediction, threshold float64) domain.SignalType {
	if !p.Valid() {
		return domain.SignalHold
	}
	switch {
	case p.Label == 1 && p.Confidence >= threshold:
		return domain.SignalBuy
	case p.Label == 0 && 1-p.Confidence >= threshold:
		return domain.SignalSell
	default:
		return domain.SignalHold
	}
}

// LatestSignal labels the last valid prediction in preds. It returns false
// when no prediction in preds carries a value.
func LatestSignal(symbol string, rows []domain.FeatureRow, preds []domain.Prediction, threshold float64) (domain.Signal, bool) {
	for i := len(preds) - 1; i >= 0; i-- {
		p := preds[i]
		if !p.Valid() {
			continue
		}
		sig := domain.Signal{
			Symbol:     symbol,
			Type:       LabelSignal(p, threshold),
			Confidence: p.Confidence,
			CreatedAt:  time.Now().UTC(),
		}
		if p.Index < len(rows) {
			sig.Time = rows[p.Index].Time
		}
		return sig, true
	}
	return domain.Signal{}, false
}
