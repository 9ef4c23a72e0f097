package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"sentiq/internal/domain"
)

// LogisticConfig parameterises the linear classifier. Zero fields take
// defaults.
type LogisticConfig struct {
	C       float64 // inverse L2 strength, default 1.0
	MaxIter int     // Newton iterations, default 100
	Tol     float64 // max coefficient step at convergence, default 1e-8
}

// Logistic is an L2-penalised logistic regression fitted by Newton-Raphson
// on standardised features. The intercept is not penalised.
type Logistic struct {
	cfg LogisticConfig
}

// NewLogistic creates a Logistic classifier.
func NewLogistic(cfg LogisticConfig) *Logistic {
	if cfg.C <= 0 {
		cfg.C = 1.0
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 100
	}
	if cfg.Tol <= 0 {
		cfg.Tol = 1e-8
	}
	return &Logistic{cfg: cfg}
}

// Name returns "Logistic Regression".
func (l *Logistic) Name() string { return "Logistic Regression" }

// Fit estimates coefficients. Training sets with a single class and Newton
// systems that are not positive definite are reported as fit failures.
func (l *Logistic) Fit(x [][]float64, y []int) (Model, error) {
	if err := checkTrainingSet(x, y); err != nil {
		return nil, err
	}
	pos := 0
	for _, v := range y {
		pos += v
	}
	if pos == 0 || pos == len(y) {
		return nil, fmt.Errorf("%w: training labels contain a single class", domain.ErrFitFailed)
	}

	width := len(x[0])
	m := &logisticModel{
		mean:  make([]float64, width),
		scale: make([]float64, width),
		coef:  make([]float64, width+1), // coef[0] is the intercept
	}
	m.standardise(x)

	z := make([][]float64, len(x))
	for i, row := range x {
		z[i] = m.design(row)
	}

	lambda := 1 / l.cfg.C
	dim := width + 1
	grad := mat.NewVecDense(dim, nil)
	hess := mat.NewSymDense(dim, nil)
	step := mat.NewVecDense(dim, nil)
	for range l.cfg.MaxIter {
		grad.Zero()
		hess.Zero()
		for i, zi := range z {
			p := sigmoid(dot(m.coef, zi))
			r := p - float64(y[i])
			w := p * (1 - p)
			for j := range dim {
				grad.SetVec(j, grad.AtVec(j)+r*zi[j])
				for k := j; k < dim; k++ {
					hess.SetSym(j, k, hess.At(j, k)+w*zi[j]*zi[k])
				}
			}
		}
		for j := 1; j < dim; j++ {
			grad.SetVec(j, grad.AtVec(j)+lambda*m.coef[j])
			hess.SetSym(j, j, hess.At(j, j)+lambda)
		}

		if err := newtonStep(step, hess, grad); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrFitFailed, err)
		}
		maxStep := 0.0
		for j := range dim {
			m.coef[j] -= step.AtVec(j)
			maxStep = math.Max(maxStep, math.Abs(step.AtVec(j)))
		}
		for _, c := range m.coef {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return nil, fmt.Errorf("%w: coefficients diverged", domain.ErrFitFailed)
			}
		}
		if maxStep < l.cfg.Tol {
			break
		}
	}
	return m, nil
}

type logisticModel struct {
	mean  []float64
	scale []float64
	coef  []float64
}

// standardise records the training mean and population standard deviation
// of each column. Constant columns keep a scale of 1.
func (m *logisticModel) standardise(x [][]float64) {
	col := make([]float64, len(x))
	for j := range m.mean {
		for i, row := range x {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		m.mean[j] = mean
		m.scale[j] = std
		if std == 0 || math.IsNaN(std) {
			m.scale[j] = 1
		}
	}
}

// design maps a raw row to [1, standardised features...].
func (m *logisticModel) design(row []float64) []float64 {
	z := make([]float64, len(row)+1)
	z[0] = 1
	for j, v := range row {
		z[j+1] = (v - m.mean[j]) / m.scale[j]
	}
	return z
}

func (m *logisticModel) PredictProba(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = sigmoid(dot(m.coef, m.design(row)))
	}
	return out
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

var errNotPositiveDefinite = errors.New("hessian is not positive definite")

// newtonStep solves hess·dst = grad through a Cholesky factorisation.
// Singular or near-singular systems are errors.
func newtonStep(dst *mat.VecDense, hess *mat.SymDense, grad *mat.VecDense) error {
	var chol mat.Cholesky
	if !chol.Factorize(hess) {
		return errNotPositiveDefinite
	}
	if err := chol.SolveVecTo(dst, grad); err != nil {
		return fmt.Errorf("singular matrix: %w", err)
	}
	return nil
}
