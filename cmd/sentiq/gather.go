package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"sentiq/internal/gather"
	"sentiq/internal/gather/us"
)

var (
	gatherStart string
	gatherEnd   string
	gatherForce bool
)

var gatherCmd = &cobra.Command{
	Use:   "gather [symbols...]",
	Short: "Fetch daily bars from Alpaca into the Parquet store",
	Long:  "Fetch daily bars for the given symbols (or gather.symbols from the config) and store them under <data_dir>/daily.",
	RunE:  runGather,
}

func init() {
	gatherCmd.Flags().StringVar(&gatherStart, "start", "", "start date YYYY-MM-DD (default gather.start_date)")
	gatherCmd.Flags().StringVar(&gatherEnd, "end", "", "end date YYYY-MM-DD (default latest finished trading day)")
	gatherCmd.Flags().BoolVar(&gatherForce, "force", false, "refetch symbols already gathered through the end date")
	rootCmd.AddCommand(gatherCmd)
}

func runGather(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	symbols := args
	if len(symbols) == 0 {
		symbols = a.cfg.Gather.Symbols
	}
	startStr := gatherStart
	if startStr == "" {
		startStr = a.cfg.Gather.StartDate
	}
	start, err := time.Parse(time.DateOnly, startStr)
	if err != nil {
		return fmt.Errorf("invalid start date (expected YYYY-MM-DD): %w", err)
	}
	var end time.Time
	if gatherEnd != "" {
		if end, err = time.Parse(time.DateOnly, gatherEnd); err != nil {
			return fmt.Errorf("invalid end date (expected YYYY-MM-DD): %w", err)
		}
	}

	ac := a.cfg.Alpaca
	var g gather.Gatherer
	g, err = us.NewDailyBarGatherer(
		us.NewMarketDataClient(ac.APIKey, ac.APISecret, ac.DataURL),
		a.parquet,
		us.DailyBarOptions{
			Symbols:      symbols,
			Start:        start,
			End:          end,
			Feed:         a.cfg.Gather.Feed,
			BatchSize:    a.cfg.Gather.BatchSize,
			RequestsPerM: a.cfg.Gather.RateLimitPerMin,
			Retries:      a.cfg.Gather.Retries,
			StateDir:     filepath.Join(a.cfg.Storage.DataDir, "daily"),
			Force:        gatherForce,
			Calendar:     us.NewCalendarClient(ac.APIKey, ac.APISecret, ac.BaseURL),
			Logger:       a.log,
		},
	)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	a.log.Info("gathering", "gatherer", g.Name(), "symbols", len(symbols), "start", startStr)
	return g.Run(ctx)
}
