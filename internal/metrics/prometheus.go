// Package metrics exposes walk-forward and backtest activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sentiq/internal/domain"
	"sentiq/internal/walkforward"
)

// Recorder records pipeline metrics into its own registry.
type Recorder struct {
	reg          *prometheus.Registry
	steps        *prometheus.CounterVec
	runs         *prometheus.CounterVec
	stops        prometheus.Counter
	fitDuration  *prometheus.HistogramVec
	lastSharpe   *prometheus.GaugeVec
	lastDrawdown *prometheus.GaugeVec
}

// New creates a Recorder with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		steps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentiq_walkforward_steps_total",
				Help: "Walk-forward steps completed, by outcome",
			},
			[]string{"status"},
		),
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentiq_backtest_runs_total",
				Help: "Backtest runs completed",
			},
			[]string{"classifier"},
		),
		stops: f.NewCounter(
			prometheus.CounterOpts{
				Name: "sentiq_capital_stops_total",
				Help: "Backtests in which the drawdown stop fired",
			},
		),
		fitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentiq_fit_duration_seconds",
				Help:    "Duration of a single classifier fit",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"classifier"},
		),
		lastSharpe: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentiq_last_sharpe",
				Help: "Sharpe ratio of the latest backtest for a symbol",
			},
			[]string{"symbol"},
		),
		lastDrawdown: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentiq_last_max_drawdown",
				Help: "Max drawdown of the latest backtest for a symbol",
			},
			[]string{"symbol"},
		),
	}
}

// OnStep implements walkforward.Observer.
func (r *Recorder) OnStep(s walkforward.Step) {
	r.steps.WithLabelValues(string(s.Status)).Inc()
	if s.Status == domain.StatusOK || s.Status == domain.StatusFitFailed {
		r.fitDuration.WithLabelValues(s.Classifier).Observe(s.Duration.Seconds())
	}
}

// ObserveRun records a completed backtest.
func (r *Recorder) ObserveRun(symbol, classifier string, sum domain.RiskSummary) {
	r.runs.WithLabelValues(classifier).Inc()
	if sum.StopIndex >= 0 {
		r.stops.Inc()
	}
	r.lastSharpe.WithLabelValues(symbol).Set(sum.Sharpe)
	r.lastDrawdown.WithLabelValues(symbol).Set(sum.MaxDrawdown)
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
