package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"sentiq/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ FeatureStore = (*ParquetStore)(nil)
var _ BacktestStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore, FeatureStore and BacktestStore using
// Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// FeatureRecord is the Parquet schema for one feature row. A missing
// volatility is stored as a null.
type FeatureRecord struct {
	Timestamp  int64    `parquet:"timestamp,timestamp(millisecond)"`
	Return     float64  `parquet:"return"`
	Volatility *float64 `parquet:"volatility,optional"`
	Sentiment  float64  `parquet:"sentiment"`
	Target     int32    `parquet:"target"`
}

// BacktestRecord is the Parquet schema for one simulated backtest row.
type BacktestRecord struct {
	Index          int32    `parquet:"index"`
	Timestamp      int64    `parquet:"timestamp,timestamp(millisecond)"`
	Return         float64  `parquet:"return"`
	Volatility     *float64 `parquet:"volatility,optional"`
	Sentiment      float64  `parquet:"sentiment"`
	Target         int32    `parquet:"target"`
	Prediction     int32    `parquet:"prediction"`
	Confidence     float64  `parquet:"confidence"`
	BasePosition   float64  `parquet:"base_position"`
	ConfWeight     float64  `parquet:"conf_weight"`
	PositionSize   float64  `parquet:"position_size"`
	StrategyReturn float64  `parquet:"strategy_return"`
	CumStrategy    float64  `parquet:"cum_strategy"`
	CumMarket      float64  `parquet:"cum_market"`
	Drawdown       float64  `parquet:"drawdown"`
	Regime         string   `parquet:"vol_regime,dict"`
	Stopped        bool     `parquet:"stopped"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     k.symbol,
			Timestamp:  b.Timestamp.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, k.year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time range.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		records, err := readParquetFile[BarRecord](s.barPath(symbol, year))
		if err != nil {
			// File doesn't exist for this year; skip.
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:     r.Symbol,
				Timestamp:  ts,
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Close:      r.Close,
				Volume:     r.Volume,
				TradeCount: r.TradeCount,
				VWAP:       r.VWAP,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "daily"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// FeatureStore implementation
// ---------------------------------------------------------------------------

// WriteFeatures replaces the feature file for symbol.
func (s *ParquetStore) WriteFeatures(_ context.Context, symbol string, rows []domain.FeatureRow) error {
	records := make([]FeatureRecord, len(rows))
	for i, r := range rows {
		records[i] = FeatureRecord{
			Timestamp:  r.Time.UnixMilli(),
			Return:     r.Return,
			Volatility: optional(r.Volatility),
			Sentiment:  r.Sentiment,
			Target:     int32(r.Target),
		}
	}
	if err := writeParquetFile(s.featurePath(symbol), records); err != nil {
		return fmt.Errorf("writing features for %s: %w", symbol, err)
	}
	return nil
}

// ReadFeatures reads the feature file for symbol.
func (s *ParquetStore) ReadFeatures(_ context.Context, symbol string) ([]domain.FeatureRow, error) {
	records, err := readExisting[FeatureRecord](s.featurePath(symbol), "features for "+symbol)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.FeatureRow, len(records))
	for i, r := range records {
		rows[i] = domain.FeatureRow{
			Time:       time.UnixMilli(r.Timestamp).UTC(),
			Return:     r.Return,
			Volatility: maybe(r.Volatility),
			Sentiment:  r.Sentiment,
			Target:     int(r.Target),
		}
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// BacktestStore implementation
// ---------------------------------------------------------------------------

// WriteBacktest writes the rows of one run to its own file.
func (s *ParquetStore) WriteBacktest(_ context.Context, symbol, runID string, rows []domain.BacktestRow) error {
	records := make([]BacktestRecord, len(rows))
	for i, r := range rows {
		records[i] = BacktestRecord{
			Index:          int32(r.Index),
			Timestamp:      r.Time.UnixMilli(),
			Return:         r.Return,
			Volatility:     optional(r.Volatility),
			Sentiment:      r.Sentiment,
			Target:         int32(r.Target),
			Prediction:     int32(r.Label),
			Confidence:     r.Confidence,
			BasePosition:   r.BasePosition,
			ConfWeight:     r.ConfWeight,
			PositionSize:   r.PositionSize,
			StrategyReturn: r.StrategyReturn,
			CumStrategy:    r.CumStrategy,
			CumMarket:      r.CumMarket,
			Drawdown:       r.Drawdown,
			Regime:         string(r.Regime),
			Stopped:        r.Stopped,
		}
	}
	if err := writeParquetFile(s.backtestPath(symbol, runID), records); err != nil {
		return fmt.Errorf("writing backtest %s for %s: %w", runID, symbol, err)
	}
	return nil
}

// ReadBacktest reads the rows of one run.
func (s *ParquetStore) ReadBacktest(_ context.Context, symbol, runID string) ([]domain.BacktestRow, error) {
	records, err := readExisting[BacktestRecord](s.backtestPath(symbol, runID), "backtest "+runID)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.BacktestRow, len(records))
	for i, r := range records {
		rows[i] = domain.BacktestRow{
			Index: int(r.Index),
			FeatureRow: domain.FeatureRow{
				Time:       time.UnixMilli(r.Timestamp).UTC(),
				Return:     r.Return,
				Volatility: maybe(r.Volatility),
				Sentiment:  r.Sentiment,
				Target:     int(r.Target),
			},
			Label:          int(r.Prediction),
			Confidence:     r.Confidence,
			BasePosition:   r.BasePosition,
			ConfWeight:     r.ConfWeight,
			PositionSize:   r.PositionSize,
			StrategyReturn: r.StrategyReturn,
			CumStrategy:    r.CumStrategy,
			CumMarket:      r.CumMarket,
			Drawdown:       r.Drawdown,
			Regime:         domain.VolRegime(r.Regime),
			Stopped:        r.Stopped,
		}
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// featurePath: <dataDir>/features/<SYMBOL>.parquet
func (s *ParquetStore) featurePath(symbol string) string {
	return filepath.Join(s.DataDir, "features", strings.ToUpper(symbol)+".parquet")
}

// backtestPath: <dataDir>/backtests/<SYMBOL>/<runID>.parquet
func (s *ParquetStore) backtestPath(symbol, runID string) string {
	return filepath.Join(s.DataDir, "backtests", strings.ToUpper(symbol), filepath.Base(runID)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// readExisting is readParquetFile for files that must exist; a missing file
// is reported as domain.ErrNotFound.
func readExisting[T any](path, what string) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	records, err := readParquetFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", what, err)
	}
	return records, nil
}

func optional(m domain.Maybe[float64]) *float64 {
	if v, ok := m.Get(); ok {
		return &v
	}
	return nil
}

func maybe(p *float64) domain.Maybe[float64] {
	if p == nil {
		return domain.None[float64]()
	}
	return domain.Some(*p)
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
