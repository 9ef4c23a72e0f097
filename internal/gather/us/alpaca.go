// Package us gathers daily bars for US equities from the Alpaca market-data
// API.
package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"

	"sentiq/internal/domain"
	"sentiq/internal/gather"
	"sentiq/internal/store"
	"sentiq/internal/util"
)

var _ gather.Gatherer = (*DailyBarGatherer)(nil)

// BarsClient is the subset of *marketdata.Client used to fetch bars.
type BarsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// NewMarketDataClient builds an Alpaca market-data client. An empty dataURL
// selects the SDK default.
func NewMarketDataClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}

// DailyBarOptions configures a DailyBarGatherer.
type DailyBarOptions struct {
	Symbols []string
	Start   time.Time
	End     time.Time // zero means the latest finished trading day

	Feed         string // "iex" or "sip"; empty means "iex"
	BatchSize    int    // symbols per request
	RequestsPerM int    // request budget per minute
	Retries      int
	RetryDelay   time.Duration

	// StateDir holds the progress file. Empty disables skipping of
	// symbols already gathered through the end date.
	StateDir string
	Force    bool // ignore recorded progress

	Calendar CalendarClient // required when End is zero
	Logger   *slog.Logger
}

// DailyBarGatherer fetches daily bars for a fixed symbol list and writes them
// to a BarStore. Re-running over the same range overwrites the same bars; with
// a StateDir, symbols already gathered through the end date are skipped.
type DailyBarGatherer struct {
	client  BarsClient
	store   store.BarStore
	opts    DailyBarOptions
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewDailyBarGatherer validates opts and returns a gatherer.
func NewDailyBarGatherer(client BarsClient, s store.BarStore, opts DailyBarOptions) (*DailyBarGatherer, error) {
	if len(opts.Symbols) == 0 {
		return nil, &domain.ConfigError{Field: "symbols", Reason: "no symbols configured"}
	}
	if opts.Start.IsZero() {
		return nil, &domain.ConfigError{Field: "start", Reason: "start date is required"}
	}
	if opts.End.IsZero() && opts.Calendar == nil {
		return nil, &domain.ConfigError{Field: "end", Reason: "end date or trading calendar is required"}
	}
	if !opts.End.IsZero() && opts.End.Before(opts.Start) {
		return nil, &domain.ConfigError{Field: "end", Reason: "end is before start"}
	}
	if opts.Feed == "" {
		opts.Feed = "iex"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.RequestsPerM <= 0 {
		opts.RequestsPerM = 180
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	for i, s := range opts.Symbols {
		opts.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DailyBarGatherer{
		client:  client,
		store:   s,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(float64(opts.RequestsPerM)/60), 1),
		log:     logger.With("gatherer", "us-daily"),
	}, nil
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches bars for every configured symbol in batches and stores them.
// Symbols that return no bars are logged and skipped.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	end := g.opts.End
	if end.IsZero() {
		day, err := LatestFinishedTradingDay(g.opts.Calendar, time.Now())
		if err != nil {
			return fmt.Errorf("determining end date: %w", err)
		}
		end = day
	}
	endDate := end.Format(time.DateOnly)
	// The API end bound is exclusive of the day itself.
	end = end.AddDate(0, 0, 1)

	var tracker *progressTracker
	symbols := g.opts.Symbols
	if g.opts.StateDir != "" {
		var err error
		if tracker, err = newProgressTracker(g.opts.StateDir); err != nil {
			return err
		}
		if !g.opts.Force {
			var remaining []string
			for _, s := range symbols {
				if !tracker.IsCompleted(s, endDate) {
					remaining = append(remaining, s)
				}
			}
			if len(remaining) == 0 {
				g.log.Info("already completed", "endDate", endDate)
				return nil
			}
			symbols = remaining
		}
	}

	g.log.Info("starting", "endDate", endDate, "symbols", len(symbols))
	started := time.Now()
	var total int
	for i := 0; i < len(symbols); i += g.opts.BatchSize {
		batch := symbols[i:min(i+g.opts.BatchSize, len(symbols))]
		bars, err := g.fetchBatch(ctx, batch, g.opts.Start, end)
		if err != nil {
			return err
		}
		if len(bars) > 0 {
			if err := g.store.WriteBars(ctx, bars); err != nil {
				return fmt.Errorf("writing bars: %w", err)
			}
		}
		total += len(bars)
		if got := g.logMissing(batch, bars); tracker != nil && len(got) > 0 {
			if err := tracker.MarkCompleted(got, endDate); err != nil {
				return err
			}
		}
	}

	g.log.Info("complete",
		"symbols", len(symbols),
		"bars", total,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}

func (g *DailyBarGatherer) fetchBatch(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, g.opts.Retries, g.opts.RetryDelay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		bars, err = g.fetchMultiBars(symbols, start, end)
		if err != nil {
			g.log.Warn("fetch failed", "symbols", len(symbols), "error", err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("fetching %d symbols: %w", len(symbols), err)
	}
	return bars, nil
}

func (g *DailyBarGatherer) fetchMultiBars(symbols []string, start, end time.Time) ([]domain.Bar, error) {
	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		End:        end,
		Feed:       marketdata.Feed(g.opts.Feed),
		Adjustment: marketdata.All,
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}

// logMissing warns about symbols of batch with no bars and returns the ones
// that had some.
func (g *DailyBarGatherer) logMissing(batch []string, bars []domain.Bar) []string {
	hit := make(map[string]struct{}, len(batch))
	for _, b := range bars {
		hit[b.Symbol] = struct{}{}
	}
	var got []string
	for _, sym := range batch {
		if _, ok := hit[sym]; ok {
			got = append(got, sym)
		} else {
			g.log.Warn("no bars returned", "symbol", sym)
		}
	}
	return got
}
