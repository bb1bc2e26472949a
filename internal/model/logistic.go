package model

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/frauddetection/internal/activations"
	"github.com/FlavioCFOliveira/frauddetection/internal/loss"
	"github.com/FlavioCFOliveira/frauddetection/internal/opt"
)

// Class weighting modes for LogisticRegression.
const (
	ClassWeightBalanced = "balanced"
	ClassWeightNone     = "none"
)

// LogisticRegression is an L2-regularized binary logistic regression fit by
// full-batch Adam on the weighted log-loss. The objective is
//
//	sum_i w_i * logloss_i / W + ||coef||^2 / (2 * C * W)
//
// where W is the total sample weight. The intercept is not penalized.
type LogisticRegression struct {
	MaxIter      int
	LearningRate float64
	Tol          float64
	C            float64
	ClassWeight  string

	Coef      []float64
	Intercept float64
	NIter     int
	Converged bool

	callbacks callbacks
}

// NewLogisticRegression returns a model with balanced class weights.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{
		MaxIter:      1000,
		LearningRate: 0.1,
		Tol:          1e-4,
		C:            1.0,
		ClassWeight:  ClassWeightBalanced,
	}
}

func (m *LogisticRegression) Name() string { return LogRegName }

func (m *LogisticRegression) SetCallbacks(cbs ...Callback) { m.callbacks = cbs }

// Fit trains the model. It stops after MaxIter steps or once the largest
// absolute gradient component drops below Tol.
func (m *LogisticRegression) Fit(ctx context.Context, X [][]float64, y []int) error {
	yf, d, err := targets(X, y)
	if err != nil {
		return err
	}
	if m.C <= 0 {
		return fmt.Errorf("logistic regression: C must be positive, got %v", m.C)
	}
	n := len(X)

	var weights []float64
	totalWeight := float64(n)
	switch m.ClassWeight {
	case ClassWeightBalanced:
		if weights, err = loss.ClassWeights(yf); err != nil {
			return fmt.Errorf("logistic regression: %w", err)
		}
		totalWeight = floats.Sum(weights)
	case ClassWeightNone, "":
	default:
		return fmt.Errorf("logistic regression: unknown class weight %q", m.ClassWeight)
	}
	bce := loss.BCEWithLogitsLoss{Weights: weights}
	alpha := 1 / (m.C * totalWeight)

	data := make([]float64, 0, n*d)
	for _, row := range X {
		data = append(data, row...)
	}
	A := mat.NewDense(n, d, data)

	params := make([]float64, d+1)
	grad := make([]float64, d+1)
	margins := make([]float64, n)
	resid := make([]float64, n)
	coef := mat.NewVecDense(d, params[:d])
	marginVec := mat.NewVecDense(n, margins)
	residVec := mat.NewVecDense(n, resid)
	gradVec := mat.NewVecDense(d, grad[:d])

	adam := opt.NewAdam(m.LearningRate)
	plateau := opt.NewReduceLROnPlateau(adam, 0.5, 20, 1e-8, m.LearningRate*1e-3)
	cbs := append(callbacks{NewSchedulerCallback(plateau)}, m.callbacks...)

	m.NIter, m.Converged = 0, false
	cbs.begin(m.Name(), m.MaxIter)
	defer cbs.end(m.Name())

	for iter := 1; iter <= m.MaxIter; iter++ {
		if (iter-1)%50 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		marginVec.MulVec(A, coef)
		floats.AddConst(params[d], margins)

		l := bce.Forward(margins, yf) + 0.5*alpha*floats.Dot(params[:d], params[:d])
		bce.BackwardInPlace(margins, yf, resid)
		gradVec.MulVec(A.T(), residVec)
		floats.AddScaled(grad[:d], alpha, params[:d])
		grad[d] = floats.Sum(resid)

		m.NIter = iter
		if floats.Norm(grad, math.Inf(1)) < m.Tol {
			m.Converged = true
			cbs.iteration(m.Name(), iter, l)
			break
		}
		adam.StepInPlace(params, grad)
		if cbs.iteration(m.Name(), iter, l) {
			break
		}
	}

	m.Coef = append([]float64(nil), params[:d]...)
	m.Intercept = params[d]
	return nil
}

// Margin returns the log-odds coef.x + intercept for every row.
func (m *LogisticRegression) Margin(X [][]float64) ([]float64, error) {
	if m.Coef == nil {
		return nil, ErrNotFitted
	}
	if err := CheckWidth(X, len(m.Coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = floats.Dot(m.Coef, row) + m.Intercept
	}
	return out, nil
}

// PredictProba returns P(y=1) for every row.
func (m *LogisticRegression) PredictProba(X [][]float64) ([]float64, error) {
	out, err := m.Margin(X)
	if err != nil {
		return nil, err
	}
	activations.Sigmoid{}.ActivateBatch(out, out)
	return out, nil
}

// Predict thresholds PredictProba at 0.5.
func (m *LogisticRegression) Predict(X [][]float64) ([]int, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return Threshold(proba), nil
}
