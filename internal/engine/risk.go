package engine

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"sentiq/internal/domain"
	"sentiq/internal/strategy"
)

// TradingDays annualises daily Sharpe ratios.
const TradingDays = 252

// Sharpe returns the annualised Sharpe ratio of daily returns using the
// sample standard deviation. Series shorter than two points, series with
// zero variance and non-finite results all yield 0.
func Sharpe(returns []float64) float64 {
	if len(returns) < 2 || floats.Min(returns) == floats.Max(returns) {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 {
		return 0
	}
	s := mean / std * math.Sqrt(TradingDays)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}

// MaxDrawdown returns the most negative fractional decline of curve from
// its running peak, or 0 for an empty or monotonically rising curve.
func MaxDrawdown(curve []float64) float64 {
	worst := 0.0
	peak := math.Inf(-1)
	for _, c := range curve {
		peak = math.Max(peak, c)
		if peak <= 0 {
			continue
		}
		worst = math.Min(worst, (c-peak)/peak)
	}
	return worst
}

// Summarize derives the risk summary of a completed backtest.
func Summarize(res *strategy.BacktestResult) domain.RiskSummary {
	rows := res.Rows
	sum := domain.RiskSummary{StopIndex: res.StopIndex}
	if len(rows) == 0 {
		return sum
	}

	returns := make([]float64, len(rows))
	curve := make([]float64, len(rows))
	var gains, losses float64
	wins := 0
	for i, r := range rows {
		returns[i] = r.StrategyReturn
		curve[i] = r.CumStrategy
		if r.PositionSize <= 0 {
			continue
		}
		sum.TotalTrades++
		switch {
		case r.StrategyReturn > 0:
			wins++
			gains += r.StrategyReturn
		case r.StrategyReturn < 0:
			losses -= r.StrategyReturn
		}
	}

	last := rows[len(rows)-1]
	sum.Sharpe = Sharpe(returns)
	sum.MaxDrawdown = MaxDrawdown(curve)
	sum.TotalReturn = last.CumStrategy - 1
	sum.MarketReturn = last.CumMarket - 1
	sum.Exposure = float64(sum.TotalTrades) / float64(len(rows))
	if sum.TotalTrades > 0 {
		sum.WinRate = float64(wins) / float64(sum.TotalTrades)
	}
	if losses > 0 {
		sum.ProfitFactor = gains / losses
	}
	sum.Regimes = regimeStats(rows)
	return sum
}

func regimeStats(rows []domain.BacktestRow) []domain.RegimeStats {
	by := make(map[domain.VolRegime][]float64, len(domain.Regimes))
	for _, r := range rows {
		by[r.Regime] = append(by[r.Regime], r.StrategyReturn)
	}
	out := make([]domain.RegimeStats, 0, len(domain.Regimes))
	for _, g := range domain.Regimes {
		rets := by[g]
		st := domain.RegimeStats{Regime: g, Rows: len(rets)}
		if len(rets) > 0 {
			st.MeanReturn = stat.Mean(rets, nil)
			st.Sharpe = Sharpe(rets)
		}
		out = append(out, st)
	}
	return out
}
