package explain

import (
	"context"
	"encoding/csv"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/FlavioCFOliveira/frauddetection/internal/dataprep"
	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
	"github.com/FlavioCFOliveira/frauddetection/internal/model"
	"github.com/FlavioCFOliveira/frauddetection/internal/pipeline"
	"github.com/FlavioCFOliveira/frauddetection/internal/preprocess"
	"github.com/FlavioCFOliveira/frauddetection/internal/sampling"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// conditional is E[f(x) | x_S] under the path-dependent approximation:
// splits on features in S follow x, other splits average their children
// by cover.
func conditional(t model.Tree, x []float64, inS map[int]bool, node int) float64 {
	n := t.Nodes[node]
	if n.IsLeaf() {
		return n.Value
	}
	if inS[n.Feature] {
		if x[n.Feature] < n.Threshold {
			return conditional(t, x, inS, n.Left)
		}
		return conditional(t, x, inS, n.Right)
	}
	l, r := t.Nodes[n.Left], t.Nodes[n.Right]
	return (l.Cover*conditional(t, x, inS, n.Left) + r.Cover*conditional(t, x, inS, n.Right)) / n.Cover
}

// bruteForce computes Shapley values by enumerating every coalition.
func bruteForce(t model.Tree, x []float64) []float64 {
	m := len(x)
	phi := make([]float64, m)
	fact := func(n int) float64 {
		f := 1.0
		for i := 2; i <= n; i++ {
			f *= float64(i)
		}
		return f
	}
	for j := 0; j < m; j++ {
		for mask := 0; mask < 1<<m; mask++ {
			if mask&(1<<j) != 0 {
				continue
			}
			inS := make(map[int]bool)
			size := 0
			for k := 0; k < m; k++ {
				if mask&(1<<k) != 0 {
					inS[k] = true
					size++
				}
			}
			without := conditional(t, x, inS, 0)
			inS[j] = true
			with := conditional(t, x, inS, 0)
			w := fact(size) * fact(m-size-1) / fact(m)
			phi[j] += w * (with - without)
		}
	}
	return phi
}

func fittedBoosting(t *testing.T, n int) (*model.GradientBoosting, [][]float64) {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		X[i] = []float64{rng.Float64(), rng.Float64(), rng.Float64()}
		if X[i][0]+0.5*X[i][1]*X[i][2] > 0.7 {
			y[i] = 1
		}
	}
	m := model.NewGradientBoosting()
	m.NEstimators = 8
	m.MaxDepth = 4
	m.MaxBins = 16
	require.NoError(t, m.Fit(context.Background(), X, y))
	return m, X
}

func TestTreeSHAPStump(t *testing.T) {
	tree := model.Tree{Nodes: []model.Node{
		{Feature: 0, Threshold: 1, Left: 1, Right: 2, Cover: 4},
		{Left: -1, Right: -1, Value: -1, Cover: 3},
		{Left: -1, Right: -1, Value: 2, Cover: 1},
	}}
	assert.InDelta(t, -0.25, expectedValue(tree), 1e-12)

	phi := make([]float64, 2)
	treeSHAP(tree, []float64{0, 5}, phi)
	assert.InDelta(t, -0.75, phi[0], 1e-12)
	assert.Equal(t, 0.0, phi[1])
}

func TestTreeSHAPMatchesBruteForce(t *testing.T) {
	m, X := fittedBoosting(t, 300)
	for _, tree := range m.Trees {
		for _, x := range X[:20] {
			want := bruteForce(tree, x)
			got := make([]float64, len(x))
			treeSHAP(tree, x, got)
			for j := range want {
				assert.InDelta(t, want[j], got[j], 1e-9)
			}
		}
	}
}

func TestTreeSHAPAdditive(t *testing.T) {
	m, X := fittedBoosting(t, 300)
	v, err := TreeSHAP(context.Background(), m, X, []string{"a", "b", "c"})
	require.NoError(t, err)

	margins, err := m.Margin(X)
	require.NoError(t, err)
	for i := range X {
		assert.InDelta(t, margins[i], v.Reconstruct(i), 1e-9)
	}

	_, err = TreeSHAP(context.Background(), m, X, []string{"a"})
	assert.Error(t, err)
	_, err = TreeSHAP(context.Background(), m, [][]float64{{1}}, []string{"a", "b", "c"})
	assert.ErrorIs(t, err, model.ErrShape)
	_, err = TreeSHAP(context.Background(), model.NewGradientBoosting(), X, nil)
	assert.ErrorIs(t, err, model.ErrNotFitted)
}

func TestLinearSHAP(t *testing.T) {
	m := &model.LogisticRegression{Coef: []float64{2, -1}, Intercept: 0.5}
	X := [][]float64{{1, 0}, {3, 2}}

	v, err := LinearSHAP(m, X, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, 1}, v.Phi[0])
	assert.Equal(t, []float64{2, -1}, v.Phi[1])
	assert.InDelta(t, 0.5+2*2-1*1, v.Expected, 1e-12)

	margins, err := m.Margin(X)
	require.NoError(t, err)
	for i := range X {
		assert.InDelta(t, margins[i], v.Reconstruct(i), 1e-12)
	}

	_, err = LinearSHAP(&model.LogisticRegression{}, X, nil)
	assert.ErrorIs(t, err, model.ErrNotFitted)
}

func TestSummary(t *testing.T) {
	v := &Values{
		Features: []string{"a", "b", "c"},
		Phi:      [][]float64{{1, -4, 0}, {-1, 2, 0.5}},
	}
	assert.Equal(t, []Importance{{"b", 3}, {"a", 1}, {"c", 0.25}}, v.Summary())
}

func creditData(t *testing.T, n int) *dataprep.Data {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	v1 := make([]float64, n)
	amount := make([]float64, n)
	class := make([]float64, n)
	for i := range v1 {
		v1[i] = rng.NormFloat64()
		amount[i] = rng.Float64() * 100
		if i%8 == 0 {
			class[i] = 1
			v1[i] += 3
		}
	}
	f := frame.New()
	require.NoError(t, f.AddFloat("V1", v1))
	require.NoError(t, f.AddFloat("Amount", amount))
	require.NoError(t, f.AddFloat("Class", class))
	return &dataprep.Data{Kind: dataprep.Credit, Processed: f}
}

func TestExplainCredit(t *testing.T) {
	data := creditData(t, 240)
	X, y, err := data.Descriptor().Split(data.Processed)
	require.NoError(t, err)

	clf := model.NewGradientBoosting()
	clf.NEstimators = 10
	p := pipeline.New(preprocess.NewColumnTransformer(nil), sampling.NewSMOTE(5, 42), clf)
	require.NoError(t, p.Fit(context.Background(), X, y))

	dir := t.TempDir()
	e := NewExplainer(dir, 100, 42, 20, nil)

	ex, err := e.Explain(context.Background(), p, data)
	require.NoError(t, err)
	assert.Len(t, ex.Values.Phi, 100)
	assert.Equal(t, "V1", ex.Summary[0].Feature)
	assert.FileExists(t, ex.PlotPath)

	f, err := os.Open(ex.CSVPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"feature", "mean_abs_shap"}, records[0])
	assert.Len(t, records, 3)

	ok, err := e.ExplainCredit(context.Background(), p, data)
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = e.ExplainEcommerce(context.Background(), p, data)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestSavePlotEmpty(t *testing.T) {
	err := SavePlot(t.TempDir()+"/x.png", "t", nil, 10)
	assert.Error(t, err)
}
