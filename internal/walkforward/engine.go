// Package walkforward produces out-of-sample predictions by refitting a
// classifier on an expanding window of past rows.
package walkforward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"sentiq/internal/domain"
	"sentiq/internal/model"
)

// Config controls the expanding window.
type Config struct {
	// TrainRatio is the fraction of rows used only as the initial training
	// seed. Must lie strictly between 0 and 1.
	TrainRatio float64

	// Workers bounds concurrent fits. Zero or negative means GOMAXPROCS.
	Workers int

	// Observer, if set, is told about every completed step. It is called
	// from worker goroutines and must be safe for concurrent use.
	Observer Observer

	Logger *slog.Logger
}

// Step describes one completed walk-forward step.
type Step struct {
	Index      int
	Classifier string
	Status     domain.PredictionStatus
	TrainRows  int
	Duration   time.Duration
	Err        error
}

// Observer receives step notifications.
type Observer interface {
	OnStep(Step)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Step)

// OnStep calls f(s).
func (f ObserverFunc) OnStep(s Step) { f(s) }

// Engine runs walk-forward validation for a single classifier.
type Engine struct {
	clf      model.Classifier
	ratio    float64
	workers  int
	observer Observer
	log      *slog.Logger
}

// New validates cfg and returns an Engine bound to clf.
func New(clf model.Classifier, cfg Config) (*Engine, error) {
	if clf == nil {
		return nil, &domain.ConfigError{Field: "classifier", Reason: "must not be nil"}
	}
	if !(cfg.TrainRatio > 0 && cfg.TrainRatio < 1) {
		return nil, &domain.ConfigError{
			Field:  "train_ratio",
			Reason: fmt.Sprintf("%v is outside (0, 1)", cfg.TrainRatio),
		}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		clf:      clf,
		ratio:    cfg.TrainRatio,
		workers:  workers,
		observer: cfg.Observer,
		log:      logger.With("component", "walkforward", "classifier", clf.Name()),
	}, nil
}

// Split returns the number of seed rows for a series of length n.
func (e *Engine) Split(n int) int {
	return int(math.Floor(float64(n) * e.ratio))
}

// Run returns one Prediction per input row, in input order. Rows before the
// split are marked seed. Each later row i is predicted by a model fitted only
// on rows [0, i), so changing rows at or after i never changes its result.
//
// Per-step failures are recorded in the Prediction status and never abort the
// run. If ctx is cancelled, Run stops scheduling steps, waits for in-flight
// fits, marks every step that did not start as cancelled and returns the
// partial predictions together with an error wrapping ctx.Err().
func (e *Engine) Run(ctx context.Context, rows []domain.FeatureRow) ([]domain.Prediction, error) {
	n := len(rows)
	split := e.Split(n)

	preds := make([]domain.Prediction, n)
	for i := range preds {
		status := domain.StatusCancelled
		if i < split {
			status = domain.StatusSeed
		}
		preds[i] = domain.Prediction{Index: i, Status: status}
	}

	x := make([][]float64, n)
	complete := make([]bool, n)
	for i, r := range rows {
		x[i], complete[i] = r.Vector()
	}

	start := time.Now()
	e.log.Info("walk-forward started", "rows", n, "split", split, "workers", e.workers)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := split; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			preds[i] = e.step(rows, x, complete, i)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		done := 0
		for _, p := range preds[split:] {
			if p.Status != domain.StatusCancelled {
				done++
			}
		}
		e.log.Warn("walk-forward cancelled", "completed", done, "pending", n-split-done)
		return preds, fmt.Errorf("walk-forward cancelled after %d of %d steps: %w", done, n-split, err)
	}

	e.log.Info("walk-forward finished", "steps", n-split, "elapsed", time.Since(start))
	return preds, nil
}

func (e *Engine) step(rows []domain.FeatureRow, x [][]float64, complete []bool, i int) domain.Prediction {
	started := time.Now()

	tx := make([][]float64, 0, i)
	ty := make([]int, 0, i)
	for j := 0; j < i; j++ {
		if complete[j] {
			tx = append(tx, x[j])
			ty = append(ty, rows[j].Target)
		}
	}

	p := domain.Prediction{Index: i}
	var (
		m   model.Model
		err = domain.ErrInsufficientData
	)
	if len(tx) > 0 {
		m, err = e.clf.Fit(tx, ty)
	}
	switch {
	case errors.Is(err, domain.ErrInsufficientData):
		p.Status = domain.StatusInsufficientData
	case err != nil:
		p.Status = domain.StatusFitFailed
		p.Err = err
	case !complete[i-1]:
		p.Status = domain.StatusFitFailed
		p.Err = fmt.Errorf("%w: row %d has an incomplete feature vector", domain.ErrFitFailed, i-1)
	default:
		// Row i-1 is the last training row; its own label (the sign of
		// return i) was part of the fit.
		conf := m.PredictProba([][]float64{x[i-1]})[0]
		p.Status = domain.StatusOK
		p.Confidence = conf
		if conf > 0.5 {
			p.Label = 1
		}
	}

	s := Step{
		Index:      i,
		Classifier: e.clf.Name(),
		Status:     p.Status,
		TrainRows:  len(tx),
		Duration:   time.Since(started),
		Err:        p.Err,
	}
	if p.Status == domain.StatusFitFailed {
		e.log.Warn("fit failed", "step", i, "train_rows", len(tx), "error", p.Err)
	} else {
		e.log.Debug("step done", "step", i, "status", p.Status, "train_rows", len(tx), "confidence", p.Confidence)
	}
	if e.observer != nil {
		e.observer.OnStep(s)
	}
	return p
}
