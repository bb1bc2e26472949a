// Package activations provides unit tests for activation functions.
package activations

import (
	"math"
	"testing"
)

// TestSigmoid tests Sigmoid activation.
func TestSigmoid(t *testing.T) {
	sigmoid := Sigmoid{}

	tests := []struct {
		input    float64
		expected float64
	}{
		{0.0, 0.5},
		{1.0, 0.7310585786300049},
		{-1.0, 0.2689414213699951},
		{40.0, 1.0},
		{-800.0, 0.0}, // must not produce NaN
	}

	for _, tt := range tests {
		output := sigmoid.Activate(tt.input)
		if math.IsNaN(output) || math.Abs(output-tt.expected) > 1e-12 {
			t.Errorf("Sigmoid(%v) = %v, want %v", tt.input, output, tt.expected)
		}
	}
}

// TestSigmoidDerivative tests Sigmoid derivative.
func TestSigmoidDerivative(t *testing.T) {
	sigmoid := Sigmoid{}

	if d := sigmoid.Derivative(0); math.Abs(d-0.25) > 1e-12 {
		t.Errorf("Sigmoid.Derivative(0) = %v, want 0.25", d)
	}
	if d := sigmoid.Derivative(3); math.Abs(d-sigmoid.Derivative(-3)) > 1e-12 {
		t.Errorf("Sigmoid.Derivative is not symmetric: %v", d)
	}
}

// TestSigmoidBatch tests the slice form.
func TestSigmoidBatch(t *testing.T) {
	x := []float64{-2, 0, 2}
	dst := make([]float64, len(x))
	Sigmoid{}.ActivateBatch(dst, x)

	for i := range x {
		if dst[i] != sigmoid(x[i]) {
			t.Errorf("ActivateBatch[%d] = %v, want %v", i, dst[i], sigmoid(x[i]))
		}
	}
}

// TestLogitInvertsSigmoid tests the round trip through the logit.
func TestLogitInvertsSigmoid(t *testing.T) {
	for _, x := range []float64{-5, -0.5, 0, 0.5, 5} {
		if got := Logit(sigmoid(x)); math.Abs(got-x) > 1e-9 {
			t.Errorf("Logit(Sigmoid(%v)) = %v", x, got)
		}
	}
	if math.IsInf(Logit(1), 0) || math.IsInf(Logit(0), 0) {
		t.Error("Logit must clip probabilities at the boundary")
	}
}

// TestSoftplus tests the overflow-safe softplus.
func TestSoftplus(t *testing.T) {
	if got := Softplus(0); math.Abs(got-math.Ln2) > 1e-12 {
		t.Errorf("Softplus(0) = %v, want ln 2", got)
	}
	if got := Softplus(1000); got != 1000 {
		t.Errorf("Softplus(1000) = %v, want 1000", got)
	}
	if got := Softplus(-1000); got != 0 {
		t.Errorf("Softplus(-1000) = %v, want 0", got)
	}
}
