// Package opt provides first-order optimizers for the linear models.
package opt

import "math"

// Optimizer updates model parameters based on gradients.
type Optimizer interface {
	// StepInPlace updates params in-place.
	StepInPlace(params, gradients []float64)

	// LearningRate returns the current step size.
	LearningRate() float64

	// SetLearningRate changes the step size used by later steps.
	SetLearningRate(lr float64)
}

// Adam optimizer. It keeps bias-corrected first and second moment estimates
// per parameter, so one Adam value must drive a single parameter vector.
type Adam struct {
	LR      float64
	Beta1   float64 // Exponential decay rate for first moment
	Beta2   float64 // Exponential decay rate for second moment
	Epsilon float64

	m, v []float64
	t    int
}

// NewAdam creates a new Adam optimizer with default values.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LR:      learningRate,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-8,
	}
}

// StepInPlace updates params in-place using Adam.
func (a *Adam) StepInPlace(params, gradients []float64) {
	if len(a.m) != len(params) {
		a.Reset(len(params))
	}
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, g := range gradients {
		a.m[i] = a.Beta1*a.m[i] + (1-a.Beta1)*g
		a.v[i] = a.Beta2*a.v[i] + (1-a.Beta2)*g*g
		mHat := a.m[i] / c1
		vHat := a.v[i] / c2
		params[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
	}
}

// Reset clears the moment estimates for n parameters.
func (a *Adam) Reset(n int) {
	a.m = make([]float64, n)
	a.v = make([]float64, n)
	a.t = 0
}

// Steps returns the number of updates applied since the last reset.
func (a *Adam) Steps() int { return a.t }

func (a *Adam) LearningRate() float64      { return a.LR }
func (a *Adam) SetLearningRate(lr float64) { a.LR = lr }
