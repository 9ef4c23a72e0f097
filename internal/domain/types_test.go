package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}

	// A zero Prediction is not usable.
	var p Prediction
	if p.Valid() {
		t.Error("zero-value Prediction should not be valid")
	}

	// Verify enum constants are defined correctly.
	if SignalBuy != "BUY" || SignalSell != "SELL" || SignalHold != "HOLD" {
		t.Error("Signal constants have unexpected values")
	}
	if len(Regimes) != 3 || Regimes[0] != RegimeLow || Regimes[2] != RegimeHigh {
		t.Errorf("Regimes = %v, want [Low Medium High]", Regimes)
	}

	row := BacktestRow{
		FeatureRow: FeatureRow{Time: time.Now(), Return: 0.01, Volatility: Some(0.02)},
		Regime:     RegimeMedium,
	}
	if row.Return != 0.01 {
		t.Errorf("embedded Return = %v, want 0.01", row.Return)
	}
}

func TestMaybe(t *testing.T) {
	v, ok := Some(1.5).Get()
	if !ok || v != 1.5 {
		t.Errorf("Some(1.5).Get() = %v, %v", v, ok)
	}
	if _, ok := None[float64]().Get(); ok {
		t.Error("None().Get() reported present")
	}
}

func TestFeatureRowVector(t *testing.T) {
	tests := []struct {
		name string
		row  FeatureRow
		ok   bool
	}{
		{"complete", FeatureRow{Return: 0.01, Volatility: Some(0.02), Sentiment: 0.3}, true},
		{"missing volatility", FeatureRow{Return: 0.01, Sentiment: 0.3}, false},
		{"nan return", FeatureRow{Return: math.NaN(), Volatility: Some(0.02)}, false},
		{"inf volatility", FeatureRow{Return: 0.01, Volatility: Some(math.Inf(1))}, false},
		{"nan sentiment", FeatureRow{Return: 0.01, Volatility: Some(0.02), Sentiment: math.NaN()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, ok := tt.row.Vector()
			if ok != tt.ok {
				t.Fatalf("Vector() ok = %v, want %v", ok, tt.ok)
			}
			if ok && (len(x) != NumFeatures || x[1] != 0.02) {
				t.Errorf("Vector() = %v", x)
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	var err error = &ConfigError{Field: "train_ratio", Reason: "must be in (0,1)"}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatal("errors.As failed for *ConfigError")
	}
	if ce.Field != "train_ratio" {
		t.Errorf("Field = %q, want train_ratio", ce.Field)
	}
	if err.Error() != "invalid configuration: train_ratio: must be in (0,1)" {
		t.Errorf("Error() = %q", err.Error())
	}
}
