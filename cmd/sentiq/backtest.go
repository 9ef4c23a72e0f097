package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sentiq/internal/engine"
	"sentiq/internal/report"
)

var (
	btClassifier string
	btTrainRatio float64
	btCost       float64
	btConf       float64
	btDrawdown   float64
	btCSV        string
	btView       bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest SYMBOL",
	Short: "Run walk-forward validation and a risk-aware backtest",
	Long: "Run walk-forward validation over the stored feature table of SYMBOL, " +
		"simulate the sized strategy with drawdown protection, and store the run.",
	Args: cobra.ExactArgs(1),
	RunE: runBacktest,
}

func init() {
	f := backtestCmd.Flags()
	f.StringVar(&btClassifier, "classifier", "", "classifier kind: forest or linear (default backtest.classifier)")
	f.Float64Var(&btTrainRatio, "train-ratio", 0, "fraction of rows used only for initial training")
	f.Float64Var(&btCost, "cost", -1, "transaction cost per unit of position")
	f.Float64Var(&btConf, "conf-threshold", 0, "minimum confidence to take a position")
	f.Float64Var(&btDrawdown, "max-drawdown", 0, "drawdown that stops trading, as a fraction")
	f.StringVar(&btCSV, "csv", "", "write backtest rows to this CSV file")
	f.BoolVar(&btView, "view", false, "browse the backtest rows in a terminal viewer")
	rootCmd.AddCommand(backtestCmd)
}

// flagOverrides collects the flags the user actually set.
func flagOverrides(cmd *cobra.Command) engine.Overrides {
	var ov engine.Overrides
	fs := cmd.Flags()
	if fs.Changed("classifier") {
		ov.Classifier = &btClassifier
	}
	if fs.Changed("train-ratio") {
		ov.TrainRatio = &btTrainRatio
	}
	if fs.Changed("cost") {
		ov.Cost = &btCost
	}
	if fs.Changed("conf-threshold") {
		ov.ConfThreshold = &btConf
	}
	if fs.Changed("max-drawdown") {
		ov.MaxDrawdownLimit = &btDrawdown
	}
	return ov
}

func runBacktest(cmd *cobra.Command, args []string) error {
	symbol := strings.ToUpper(args[0])
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := engine.New(a.engineOptions().Apply(flagOverrides(cmd)))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := engine.NewService(e, a.parquet).Backtest(ctx, symbol, engine.Overrides{})
	if err != nil {
		return err
	}

	if btCSV != "" {
		if err := report.WriteRowsCSVFile(btCSV, res.Backtest.Rows); err != nil {
			return err
		}
	}
	if btView {
		return viewRows(res)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf(" %s backtest ", symbol)))
	if err := report.WriteSummary(out, &res.Run); err != nil {
		return err
	}
	if res.Backtest.Stopped() {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("trading halted at %s, drawdown %s",
			res.Backtest.Rows[res.Backtest.StopIndex].Time.Format("2006-01-02"),
			report.FormatPct(res.Backtest.StopDrawdown))))
	}
	if s := res.Signal; s != nil {
		fmt.Fprintf(out, "\nLatest signal  %s  confidence %.2f  (%s)\n",
			signalStyle(s.Type).Render(string(s.Type)), s.Confidence, s.Time.Format("2006-01-02"))
	}
	if btCSV != "" {
		fmt.Fprintln(out, dimStyle.Render("rows written to "+btCSV))
	}
	return nil
}
