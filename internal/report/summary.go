package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"sentiq/internal/domain"
)

// FormatPct formats a fraction as a signed percentage with one decimal,
// e.g. 0.1234 -> "+12.3%".
func FormatPct(f float64) string {
	return fmt.Sprintf("%+.1f%%", f*100)
}

// WriteSummary writes a human-readable block for run to w.
func WriteSummary(w io.Writer, run *domain.Run) error {
	s := run.Summary
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run\t%s\n", run.ID)
	fmt.Fprintf(tw, "Symbol\t%s (%s)\n", run.Symbol, run.Classifier)
	fmt.Fprintf(tw, "Rows\t%d backtested, %d dropped\n", run.Rows, run.Dropped)
	fmt.Fprintf(tw, "Sharpe\t%.2f\n", s.Sharpe)
	fmt.Fprintf(tw, "Max drawdown\t%.1f%%\n", s.MaxDrawdown*100)
	fmt.Fprintf(tw, "Strategy return\t%s\n", FormatPct(s.TotalReturn))
	fmt.Fprintf(tw, "Market return\t%s\n", FormatPct(s.MarketReturn))
	fmt.Fprintf(tw, "Trades\t%d (win rate %.1f%%)\n", s.TotalTrades, s.WinRate*100)
	fmt.Fprintf(tw, "Profit factor\t%.2f\n", s.ProfitFactor)
	fmt.Fprintf(tw, "Exposure\t%.1f%%\n", s.Exposure*100)
	if s.StopIndex >= 0 {
		fmt.Fprintf(tw, "Drawdown stop\tfired at row %d\n", s.StopIndex)
	} else {
		fmt.Fprintf(tw, "Drawdown stop\tnot triggered\n")
	}
	for _, r := range s.Regimes {
		fmt.Fprintf(tw, "  %s vol\t%d rows, mean %.4f%%, Sharpe %.2f\n",
			r.Regime, r.Rows, r.MeanReturn*100, r.Sharpe)
	}
	return tw.Flush()
}
