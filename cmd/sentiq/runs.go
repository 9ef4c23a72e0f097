package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sentiq/internal/report"
)

var (
	runsSymbol string
	runsLimit  int
	sigLimit   int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored backtest runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var signalCmd = &cobra.Command{
	Use:   "signal SYMBOL",
	Short: "Show the latest trading signals for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runSignal,
}

func init() {
	runsCmd.Flags().StringVar(&runsSymbol, "symbol", "", "only runs for this symbol")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	signalCmd.Flags().IntVar(&sigLimit, "limit", 5, "maximum signals to list")
	rootCmd.AddCommand(runsCmd, signalCmd)
}

func runRuns(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.db.ListRuns(cmd.Context(), strings.ToUpper(runsSymbol), runsLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, dimStyle.Render("no runs stored"))
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tRUN\tSYMBOL\tMODEL\tROWS\tSHARPE\tMAX DD\tRETURN\tSTOP")
	for _, r := range runs {
		s := r.Summary
		stop := "-"
		if s.StopIndex >= 0 {
			stop = fmt.Sprintf("row %d", s.StopIndex)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.ID[:min(8, len(r.ID))],
			r.Symbol,
			r.Classifier,
			r.Rows,
			s.Sharpe,
			lossStyle.Render(report.FormatPct(s.MaxDrawdown)),
			returnStyle(s.TotalReturn).Render(report.FormatPct(s.TotalReturn)),
			stop,
		)
	}
	return tw.Flush()
}

func runSignal(cmd *cobra.Command, args []string) error {
	symbol := strings.ToUpper(args[0])
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sigs, err := a.db.ListSignals(cmd.Context(), symbol, sigLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(sigs) == 0 {
		fmt.Fprintln(out, dimStyle.Render("no signals for "+symbol+"; run `sentiq backtest "+symbol+"`"))
		return nil
	}
	fmt.Fprintln(out, titleStyle.Render(symbol))
	for _, s := range sigs {
		fmt.Fprintf(out, "%s  %-4s  %.2f  %s\n",
			s.Time.Format("2006-01-02"),
			signalStyle(s.Type).Render(string(s.Type)),
			s.Confidence,
			dimStyle.Render("run "+s.RunID),
		)
	}
	return nil
}
