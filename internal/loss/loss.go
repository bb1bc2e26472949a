// Package loss provides the binary log-loss used to fit the classifiers.
package loss

import (
	"fmt"

	"github.com/FlavioCFOliveira/frauddetection/internal/activations"
)

// Loss is a loss function with derivative.
type Loss interface {
	// Forward computes the loss between predicted and true values.
	Forward(yPred, yTrue []float64) float64

	// BackwardInPlace stores the gradient of the loss w.r.t. prediction in grad.
	BackwardInPlace(yPred, yTrue, grad []float64)
}

// BCEWithLogitsLoss is binary cross entropy on raw margins. Weights, when
// set, scale the contribution of every sample and the loss is divided by
// their sum instead of n.
type BCEWithLogitsLoss struct {
	Weights []float64
}

// ClassWeights returns per-sample weights n / (2 * n_c) for binary labels,
// so that both classes carry the same total weight.
func ClassWeights(y []float64) ([]float64, error) {
	var pos float64
	for _, v := range y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("loss: label %v is not binary", v)
		}
		pos += v
	}
	n := float64(len(y))
	neg := n - pos
	if pos == 0 || neg == 0 {
		return nil, fmt.Errorf("loss: class weights need both labels")
	}

	w := make([]float64, len(y))
	for i, v := range y {
		if v == 1 {
			w[i] = n / (2 * pos)
		} else {
			w[i] = n / (2 * neg)
		}
	}
	return w, nil
}

func (b BCEWithLogitsLoss) weight(i int) float64 {
	if b.Weights == nil {
		return 1
	}
	return b.Weights[i]
}

func (b BCEWithLogitsLoss) norm(n int) float64 {
	if b.Weights == nil {
		return float64(n)
	}
	var sum float64
	for _, w := range b.Weights {
		sum += w
	}
	return sum
}

// Forward computes mean(w * (softplus(x) - x*y)), which equals the binary
// cross entropy of sigmoid(x) without evaluating log(0).
func (b BCEWithLogitsLoss) Forward(yPred, yTrue []float64) float64 {
	n := len(yPred)
	if n != len(yTrue) {
		panic("BCEWithLogitsLoss: prediction and target must have same length")
	}

	var sum float64
	for i := 0; i < n; i++ {
		x := yPred[i]
		sum += b.weight(i) * (activations.Softplus(x) - x*yTrue[i])
	}
	return sum / b.norm(n)
}

// BackwardInPlace computes w * (sigmoid(x) - y) / norm into grad.
func (b BCEWithLogitsLoss) BackwardInPlace(yPred, yTrue, grad []float64) {
	n := len(yPred)
	if n != len(yTrue) || n != len(grad) {
		panic("BCEWithLogitsLoss: slices must have same length")
	}

	sig := activations.Sigmoid{}
	norm := b.norm(n)
	for i := 0; i < n; i++ {
		grad[i] = b.weight(i) * (sig.Activate(yPred[i]) - yTrue[i]) / norm
	}
}

// Gradient stores the unnormalized per-sample gradient w * (sigmoid(x) - y)
// into grad.
func (b BCEWithLogitsLoss) Gradient(yPred, yTrue, grad []float64) {
	sig := activations.Sigmoid{}
	for i, x := range yPred {
		grad[i] = b.weight(i) * (sig.Activate(x) - yTrue[i])
	}
}

// Hessian stores the per-sample second derivative w * p * (1-p) into hess,
// without normalization.
func (b BCEWithLogitsLoss) Hessian(yPred, hess []float64) {
	sig := activations.Sigmoid{}
	for i, x := range yPred {
		hess[i] = b.weight(i) * sig.Derivative(x)
	}
}
