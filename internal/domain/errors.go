package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData means a training window is below the minimum size.
	// It is expected near the start of a series and never fatal.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrFitFailed wraps classifier failures other than insufficient data.
	ErrFitFailed = errors.New("classifier fit failed")

	// ErrNoBacktestableData means every row was excluded from a backtest.
	ErrNoBacktestableData = errors.New("no backtestable data")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// ConfigError reports an invalid configuration value. It is returned at
// construction time, before any computation starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}
