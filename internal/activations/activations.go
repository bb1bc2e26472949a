// Package activations provides the link functions used by the binary classifiers.
package activations

import "math"

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x)
	Derivative(x float64) float64
}

// Sigmoid activation function.
type Sigmoid struct{}

// sigmoid is evaluated on the side that cannot overflow exp.
func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Activate computes 1 / (1 + exp(-x))
func (s Sigmoid) Activate(x float64) float64 {
	return sigmoid(x)
}

// Derivative computes sigmoid(x) * (1 - sigmoid(x))
func (s Sigmoid) Derivative(x float64) float64 {
	v := sigmoid(x)
	return v * (1 - v)
}

// ActivateBatch applies the sigmoid to every element of x into dst.
func (s Sigmoid) ActivateBatch(dst, x []float64) {
	for i, v := range x {
		dst[i] = sigmoid(v)
	}
}

// Logit is the inverse of the sigmoid. p is clipped to (eps, 1-eps).
func Logit(p float64) float64 {
	const eps = 1e-15
	p = math.Min(math.Max(p, eps), 1-eps)
	return math.Log(p / (1 - p))
}

// Softplus computes log(1 + exp(x)) without overflow.
func Softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}
