// Package model implements the binary classifiers trained by the pipelines:
// an L2-regularized logistic regression and a histogram gradient-boosted
// tree ensemble.
package model

import (
	"context"
	"errors"
	"fmt"
)

// Model names used as map keys, registry entries and file name parts.
const (
	LogRegName = "logreg"
	BoostName  = "xgb"
)

var (
	// ErrNotFitted is returned when predicting with an untrained model.
	ErrNotFitted = errors.New("model: not fitted")
	// ErrShape is returned when a row does not match the fitted width.
	ErrShape = errors.New("model: feature width mismatch")
)

// Classifier is a binary classifier over dense feature rows.
type Classifier interface {
	// Name returns the short model name.
	Name() string

	// Fit trains the model on X with labels y in {0, 1}.
	Fit(ctx context.Context, X [][]float64, y []int) error

	// PredictProba returns P(y=1) for every row.
	PredictProba(X [][]float64) ([]float64, error)

	// Predict thresholds PredictProba at 0.5.
	Predict(X [][]float64) ([]int, error)

	// SetCallbacks replaces the training callbacks.
	SetCallbacks(cbs ...Callback)
}

// Threshold converts probabilities into labels.
func Threshold(proba []float64) []int {
	out := make([]int, len(proba))
	for i, p := range proba {
		if p >= 0.5 {
			out[i] = 1
		}
	}
	return out
}

// targets validates X and y and returns y as floats.
func targets(X [][]float64, y []int) ([]float64, int, error) {
	if len(X) == 0 {
		return nil, 0, fmt.Errorf("model: empty training set")
	}
	if len(X) != len(y) {
		return nil, 0, fmt.Errorf("model: %d rows but %d labels", len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return nil, 0, fmt.Errorf("%w: rows have no features", ErrShape)
	}
	out := make([]float64, len(y))
	for i, label := range y {
		if label != 0 && label != 1 {
			return nil, 0, fmt.Errorf("model: label %d at row %d is not binary", label, i)
		}
		if len(X[i]) != width {
			return nil, 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(X[i]), width)
		}
		out[i] = float64(label)
	}
	return out, width, nil
}

// CheckWidth returns ErrShape when a row of X does not have width features.
func CheckWidth(X [][]float64, width int) error {
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), width)
		}
	}
	return nil
}
