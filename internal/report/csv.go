// Package report renders backtest rows and risk summaries for people and
// spreadsheets.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"sentiq/internal/domain"
)

// Places is the number of decimal places written for every float column.
const Places = 6

var rowHeader = []string{
	"index",
	"date",
	"return",
	"volatility",
	"sentiment",
	"target",
	"prediction",
	"confidence",
	"base_position",
	"conf_weight",
	"position_size",
	"strategy_return",
	"cum_strategy",
	"cum_market",
	"drawdown",
	"vol_regime",
	"stopped",
}

// WriteRowsCSVFile writes rows to a CSV file at path, creating parent
// directories as needed.
func WriteRowsCSVFile(path string, rows []domain.BacktestRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := WriteRowsCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteRowsCSV writes rows to w as CSV with a header. Floats are rounded
// half away from zero to Places decimals.
func WriteRowsCSV(w io.Writer, rows []domain.BacktestRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rowHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		vol := ""
		if v, ok := r.Volatility.Get(); ok {
			vol = fixed(v)
		}
		record := []string{
			strconv.Itoa(r.Index),
			r.Time.UTC().Format(time.DateOnly),
			fixed(r.Return),
			vol,
			fixed(r.Sentiment),
			strconv.Itoa(r.Target),
			strconv.Itoa(r.Label),
			fixed(r.Confidence),
			fixed(r.BasePosition),
			fixed(r.ConfWeight),
			fixed(r.PositionSize),
			fixed(r.StrategyReturn),
			fixed(r.CumStrategy),
			fixed(r.CumMarket),
			fixed(r.Drawdown),
			string(r.Regime),
			strconv.FormatBool(r.Stopped),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", r.Index, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func fixed(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(Places)
}
