package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sentiq/internal/features"
	"sentiq/internal/gather/us"
	"sentiq/internal/news"
)

var featuresSentiment float64

var featuresCmd = &cobra.Command{
	Use:   "features SYMBOL",
	Short: "Build the feature table for a symbol from stored bars",
	Long: "Build return, volatility and sentiment features from stored daily bars. " +
		"Sentiment is scored from recent Alpaca news unless --sentiment is given.",
	Args: cobra.ExactArgs(1),
	RunE: runFeatures,
}

func init() {
	featuresCmd.Flags().Float64Var(&featuresSentiment, "sentiment", math.NaN(), "fixed sentiment score in [-1, 1] instead of fetching news")
	rootCmd.AddCommand(featuresCmd)
}

func runFeatures(cmd *cobra.Command, args []string) error {
	symbol := strings.ToUpper(args[0])
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	// start_date is validated by config.Load.
	start, _ := time.Parse(time.DateOnly, a.cfg.Gather.StartDate)
	bars, err := a.parquet.ReadBars(ctx, symbol, start, time.Now())
	if err != nil {
		return fmt.Errorf("reading bars: %w", err)
	}
	if len(bars) == 0 {
		return fmt.Errorf("no bars stored for %s; run `sentiq gather %s` first", symbol, symbol)
	}

	score := featuresSentiment
	if math.IsNaN(score) {
		ac := a.cfg.Alpaca
		fetcher := news.NewAlpacaFetcher(us.NewMarketDataClient(ac.APIKey, ac.APISecret, ac.DataURL), a.cfg.Gather.NewsLimit)
		end := time.Now()
		articles, err := fetcher.Fetch(ctx, symbol, end.Add(-a.cfg.Gather.NewsLookback), end)
		if err != nil {
			return fmt.Errorf("fetching news: %w", err)
		}
		score = news.AverageScore(articles)
		a.log.Info("news sentiment", "symbol", symbol, "articles", len(articles), "score", score)
	} else if score < -1 || score > 1 {
		return fmt.Errorf("--sentiment %v is outside [-1, 1]", score)
	}

	rows, err := features.Build(bars, score, a.cfg.Backtest.VolWindow)
	if err != nil {
		return err
	}
	if err := a.parquet.WriteFeatures(ctx, symbol, rows); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %d bars -> %d feature rows\n", titleStyle.Render(symbol), len(bars), len(rows))
	fmt.Fprintf(out, "sentiment %.3f (%s)\n", score, sentimentStyle(news.Label(score)).Render(news.Label(score)))
	return nil
}
