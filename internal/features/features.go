// Package features turns daily bars and a sentiment score into the feature
// table consumed by walk-forward validation.
package features

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"sentiq/internal/domain"
)

// DefaultWindow is the number of returns in the rolling volatility window.
const DefaultWindow = 3

// Returns computes simple returns close/prevClose - 1 for bars[1:]. Element i
// of the result belongs to bars[i+1]; it is absent when either close is not
// positive.
func Returns(bars []domain.Bar) []domain.Maybe[float64] {
	if len(bars) < 2 {
		return nil
	}
	out := make([]domain.Maybe[float64], 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Close, bars[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, domain.None[float64]())
			continue
		}
		out = append(out, domain.Some(cur/prev-1))
	}
	return out
}

// RollingStd returns the sample standard deviation of each trailing window of
// values. A window is absent until it is full or while it contains an absent
// value.
func RollingStd(values []domain.Maybe[float64], window int) []domain.Maybe[float64] {
	out := make([]domain.Maybe[float64], len(values))
	buf := make([]float64, window)
	for i := range values {
		if i+1 < window {
			continue
		}
		ok := true
		for j, v := range values[i+1-window : i+1] {
			if buf[j], ok = v.Get(); !ok {
				break
			}
		}
		if ok {
			out[i] = domain.Some(stat.StdDev(buf, nil))
		}
	}
	return out
}

// Build produces one FeatureRow per bar that has both a return and a full
// volatility window. Bars are sorted by timestamp first. Target is 1 when the
// following bar's return is positive; the final row has no following bar and
// gets 0. The same sentiment score is attached to every row.
func Build(bars []domain.Bar, sentiment float64, window int) ([]domain.FeatureRow, error) {
	if window < 2 {
		return nil, &domain.ConfigError{Field: "vol_window", Reason: fmt.Sprintf("%d is below 2", window)}
	}
	if math.IsNaN(sentiment) || math.IsInf(sentiment, 0) {
		return nil, fmt.Errorf("sentiment score %v is not finite", sentiment)
	}

	sorted := slices.Clone(bars)
	slices.SortFunc(sorted, func(a, b domain.Bar) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	rets := Returns(sorted)
	vols := RollingStd(rets, window)

	rows := make([]domain.FeatureRow, 0, len(rets))
	for i, r := range rets {
		ret, ok := r.Get()
		if !ok || !vols[i].Valid {
			continue
		}
		row := domain.FeatureRow{
			Time:       sorted[i+1].Timestamp,
			Return:     ret,
			Volatility: vols[i],
			Sentiment:  sentiment,
		}
		if i+1 < len(rets) {
			if next, ok := rets[i+1].Get(); ok && next > 0 {
				row.Target = 1
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
