package metrics

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfusion(t *testing.T) {
	c, err := Confusion([]int{0, 0, 0, 1, 1}, []int{0, 1, 0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, ConfusionMatrix{{2, 1}, {1, 1}}, c)
	assert.Equal(t, 2, c.TN())
	assert.Equal(t, 1, c.FP())
	assert.Equal(t, 1, c.FN())
	assert.Equal(t, 1, c.TP())
	assert.Equal(t, "[[2 1]\n [1 1]]", c.String())

	wide := ConfusionMatrix{{1200, 3}, {7, 45}}
	assert.Equal(t, "[[1200    3]\n [   7   45]]", wide.String())

	_, err = Confusion([]int{0, 1}, []int{1})
	assert.ErrorIs(t, err, ErrLength)
	_, err = Confusion([]int{0, 2}, []int{0, 1})
	assert.Error(t, err)
}

func TestClassificationReport(t *testing.T) {
	r, err := ClassificationReport([]int{0, 0, 0, 1, 1}, []int{0, 1, 0, 1, 0})
	require.NoError(t, err)

	assert.InDelta(t, 2.0/3, r.Classes[0].Precision, 1e-12)
	assert.InDelta(t, 2.0/3, r.Classes[0].Recall, 1e-12)
	assert.Equal(t, 3, r.Classes[0].Support)
	assert.InDelta(t, 0.5, r.Classes[1].F1, 1e-12)
	assert.Equal(t, 2, r.Classes[1].Support)
	assert.InDelta(t, 0.6, r.Accuracy, 1e-12)
	assert.InDelta(t, (2.0/3+0.5)/2, r.MacroAvg.Precision, 1e-12)
	assert.InDelta(t, 2.0/3*0.6+0.5*0.4, r.WeightedAvg.Recall, 1e-12)

	lines := strings.Split(r.String(), "\n")
	assert.Equal(t, "              precision    recall  f1-score   support", lines[0])
	assert.Equal(t, "           0       0.67      0.67      0.67         3", lines[2])
	assert.Equal(t, "    accuracy                           0.60         5", lines[5])
	assert.Equal(t, "weighted avg       0.60      0.60      0.60         5", lines[7])
}

func TestClassificationReportNoPositivePredictions(t *testing.T) {
	r, err := ClassificationReport([]int{0, 1, 1}, []int{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Classes[1].Precision)
	assert.Equal(t, 0.0, r.Classes[1].F1)
}

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name  string
		y     []int
		score []float64
		want  float64
	}{
		{"sklearn example", []int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75},
		{"perfect", []int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []int{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}, 0},
		{"all tied", []int{0, 1, 0, 1, 1}, []float64{0.5, 0.5, 0.5, 0.5, 0.5}, 0.5},
		{"partial tie", []int{0, 1, 0, 1}, []float64{0.2, 0.6, 0.6, 0.9}, 0.875},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ROCAUC(tt.y, tt.score)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAveragePrecision(t *testing.T) {
	tests := []struct {
		name  string
		y     []int
		score []float64
		want  float64
	}{
		{"sklearn example", []int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}, 5.0 / 6},
		{"perfect", []int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"all tied", []int{0, 1, 0, 1, 1}, []float64{0.5, 0.5, 0.5, 0.5, 0.5}, 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AveragePrecision(tt.y, tt.score)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestRankingSingleClass(t *testing.T) {
	_, err := ROCAUC([]int{1, 1}, []float64{0.2, 0.3})
	assert.ErrorIs(t, err, ErrSingleClass)
	_, err = AveragePrecision([]int{0, 0}, []float64{0.2, 0.3})
	assert.ErrorIs(t, err, ErrSingleClass)
	_, err = ROCAUC(nil, nil)
	assert.ErrorIs(t, err, ErrLength)
}

func TestEvaluate(t *testing.T) {
	ev, err := Evaluate([]int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8})
	require.NoError(t, err)
	assert.Equal(t, ConfusionMatrix{{2, 0}, {1, 1}}, ev.Confusion)
	assert.InDelta(t, 0.75, ev.ROCAUC, 1e-12)
	assert.InDelta(t, 5.0/6, ev.PRAUC, 1e-12)
	assert.Contains(t, ev.String(), "ROC AUC: 0.7500")

	single, err := Evaluate([]int{0, 0}, []float64{0.1, 0.9})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(single.ROCAUC))
	assert.True(t, math.IsNaN(single.PRAUC))
}
