package model

import (
	"fmt"
	"math"

	"sentiq/internal/domain"
)

// HoldoutFraction is the chronological tail held out by Evaluate.
const HoldoutFraction = 0.2

// TrainReport is the result of a single fit over a full feature table.
type TrainReport struct {
	ModelName     string
	Accuracy      float64   // on the chronological holdout
	Probabilities []float64 // one per complete row of the input
	Prediction    int       // direction for the latest row
	Confidence    float64   // probability for the latest row
	Importances   []float64 // nil when the model has none
}

// Evaluate fits c on the first 80% of the complete rows, scores accuracy on
// the remaining 20% and reports probabilities for every complete row from
// that same fit.
func Evaluate(c Classifier, rows []domain.FeatureRow) (*TrainReport, error) {
	x, y := Matrix(rows)
	if len(x) < MinTrainRows {
		return nil, fmt.Errorf("%w: %d complete rows, need %d", domain.ErrInsufficientData, len(x), MinTrainRows)
	}

	cut := max(len(x)-int(math.Ceil(float64(len(x))*HoldoutFraction)), MinTrainRows)
	m, err := c.Fit(x[:cut], y[:cut])
	if err != nil {
		return nil, err
	}

	proba := m.PredictProba(x)
	rep := &TrainReport{
		ModelName:     c.Name(),
		Probabilities: proba,
		Confidence:    proba[len(proba)-1],
	}
	if rep.Confidence > 0.5 {
		rep.Prediction = 1
	}

	if test := len(x) - cut; test > 0 {
		hits := 0
		for i := cut; i < len(x); i++ {
			label := 0
			if proba[i] > 0.5 {
				label = 1
			}
			if label == y[i] {
				hits++
			}
		}
		rep.Accuracy = float64(hits) / float64(test)
	}
	if imp, ok := m.(Importancer); ok {
		rep.Importances = imp.Importances()
	}
	return rep, nil
}

// Matrix extracts feature vectors and targets from the complete rows,
// skipping any row whose vector has a missing or non-finite component.
func Matrix(rows []domain.FeatureRow) ([][]float64, []int) {
	x := make([][]float64, 0, len(rows))
	y := make([]int, 0, len(rows))
	for _, r := range rows {
		v, ok := r.Vector()
		if !ok {
			continue
		}
		x = append(x, v)
		y = append(y, r.Target)
	}
	return x, y
}
