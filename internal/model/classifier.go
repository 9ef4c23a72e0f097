// Package model defines the Classifier contract used by walk-forward
// validation and provides a tree-ensemble and a linear implementation.
package model

import (
	"fmt"
	"math"
	"sort"

	"sentiq/internal/domain"
)

// MinTrainRows is the smallest training set any classifier accepts.
const MinTrainRows = 30

// DefaultSeed seeds the tree ensemble when no seed is configured.
const DefaultSeed uint64 = 42

// Classifier trains on labelled feature vectors. Implementations keep no
// state between Fit calls; everything learned lives in the returned Model.
type Classifier interface {
	// Name returns a human-readable model name.
	Name() string

	// Fit trains on x (one feature vector per row) and binary labels y. It
	// returns domain.ErrInsufficientData when len(x) < MinTrainRows and an
	// error wrapping domain.ErrFitFailed for any other failure.
	Fit(x [][]float64, y []int) (Model, error)
}

// Model is a fitted classifier.
type Model interface {
	// PredictProba returns the probability of class 1 for each row of x.
	PredictProba(x [][]float64) []float64
}

// Importancer is implemented by models that expose per-feature importance
// weights summing to 1.
type Importancer interface {
	Importances() []float64
}

// Factory builds a Classifier from a seed. Deterministic variants ignore it.
type Factory func(seed uint64) Classifier

// Registry holds classifier factories keyed by kind name.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given kind name, replacing any previous
// registration.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// Get retrieves the factory for kind. The second return value indicates
// whether it was found.
func (r *Registry) Get(kind string) (Factory, bool) {
	f, ok := r.factories[kind]
	return f, ok
}

// List returns a sorted slice of all registered kind names.
func (r *Registry) List() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Kind names of the built-in classifiers.
const (
	KindForest = "forest"
	KindLinear = "linear"
)

var defaultRegistry = func() *Registry {
	r := NewRegistry()
	forest := func(seed uint64) Classifier { return NewForest(ForestConfig{Seed: seed}) }
	linear := func(uint64) Classifier { return NewLogistic(LogisticConfig{}) }
	r.Register(KindForest, forest)
	r.Register("rf", forest)
	r.Register(KindLinear, linear)
	r.Register("lr", linear)
	return r
}()

// Kinds lists the classifier kinds known to New.
func Kinds() []string {
	return defaultRegistry.List()
}

// New returns the built-in classifier registered under kind.
func New(kind string, seed uint64) (Classifier, error) {
	f, ok := defaultRegistry.Get(kind)
	if !ok {
		return nil, &domain.ConfigError{Field: "classifier", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	return f(seed), nil
}

// checkTrainingSet applies the checks shared by every classifier.
func checkTrainingSet(x [][]float64, y []int) error {
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d rows but %d labels", domain.ErrFitFailed, len(x), len(y))
	}
	if len(x) < MinTrainRows {
		return fmt.Errorf("%w: %d rows, need %d", domain.ErrInsufficientData, len(x), MinTrainRows)
	}
	width := len(x[0])
	if width == 0 {
		return fmt.Errorf("%w: empty feature vector", domain.ErrFitFailed)
	}
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, want %d", domain.ErrFitFailed, i, len(row), width)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite feature in row %d", domain.ErrFitFailed, i)
			}
		}
		if y[i] != 0 && y[i] != 1 {
			return fmt.Errorf("%w: label %d in row %d is not binary", domain.ErrFitFailed, y[i], i)
		}
	}
	return nil
}
