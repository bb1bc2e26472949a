package preprocess

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler standardizes columns to zero mean and unit variance using
// the population standard deviation. Constant columns get a scale of 1.
type StandardScaler struct {
	Columns []string
	Mean    []float64
	Scale   []float64
}

// Fit learns the mean and scale of each column.
func (s *StandardScaler) Fit(columns []string, values [][]float64) {
	s.Columns = append([]string(nil), columns...)
	s.Mean = make([]float64, len(values))
	s.Scale = make([]float64, len(values))
	for j, col := range values {
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
}

// Width returns the number of output features.
func (s *StandardScaler) Width() int { return len(s.Columns) }

func (s *StandardScaler) apply(j int, v float64) float64 {
	return (v - s.Mean[j]) / s.Scale[j]
}
