package pipeline

import (
	"bytes"
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
	"github.com/FlavioCFOliveira/frauddetection/internal/model"
	"github.com/FlavioCFOliveira/frauddetection/internal/preprocess"
	"github.com/FlavioCFOliveira/frauddetection/internal/sampling"
)

// transactions returns a frame where fraud happens on "Ads" traffic with
// high purchase values.
func transactions(t *testing.T, n int, seed int64) (*frame.Frame, []int) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	sources := []string{"Ads", "SEO", "Direct"}

	values := make([]float64, n)
	src := make([]string, n)
	age := make([]float64, n)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		src[i] = sources[rng.Intn(len(sources))]
		values[i] = 10 + rng.Float64()*90
		age[i] = float64(18 + rng.Intn(50))
		if src[i] == "Ads" && values[i] > 80 {
			y[i] = 1
		}
	}

	f := frame.New()
	require.NoError(t, f.AddFloat("purchase_value", values))
	require.NoError(t, f.AddString("source", src))
	require.NoError(t, f.AddFloat("age", age))
	return f, y
}

func boosted() *model.GradientBoosting {
	m := model.NewGradientBoosting()
	m.NEstimators = 20
	m.MaxDepth = 3
	return m
}

func TestPipelineFitPredict(t *testing.T) {
	X, y := transactions(t, 400, 1)

	for _, clf := range []model.Classifier{model.NewLogisticRegression(), boosted()} {
		t.Run(clf.Name(), func(t *testing.T) {
			p := New(preprocess.NewColumnTransformer([]string{"source"}), sampling.NewSMOTE(5, 42), clf)
			assert.Equal(t, []string{StepPreprocessor, StepSMOTE, StepModel}, p.Steps())

			require.NoError(t, p.Fit(context.Background(), X, y))
			assert.Equal(t, []string{"source_Direct", "source_SEO", "purchase_value", "age"}, p.Preprocessor().FeatureNames())

			proba, err := p.PredictProba(X)
			require.NoError(t, err)
			require.Len(t, proba, X.Len())

			pred, err := p.Predict(X)
			require.NoError(t, err)
			var correct int
			for i := range y {
				if pred[i] == y[i] {
					correct++
				}
			}
			assert.Greater(t, float64(correct)/float64(len(y)), 0.8)
		})
	}
}

func TestPipelineSaveLoad(t *testing.T) {
	X, y := transactions(t, 300, 2)
	dir := t.TempDir()

	for _, clf := range []model.Classifier{model.NewLogisticRegression(), boosted()} {
		t.Run(clf.Name(), func(t *testing.T) {
			p := New(preprocess.NewColumnTransformer([]string{"source"}), sampling.NewSMOTE(3, 7), clf)
			require.NoError(t, p.Fit(context.Background(), X, y))

			path := filepath.Join(dir, clf.Name()+".gob")
			require.NoError(t, p.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, clf.Name(), loaded.Model().Name())
			assert.Equal(t, p.Steps(), loaded.Steps())
			assert.Equal(t, 3, loaded.Sampler().K)

			want, err := p.PredictProba(X)
			require.NoError(t, err)
			got, err := loaded.PredictProba(X)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestPipelineWithoutSampler(t *testing.T) {
	X, y := transactions(t, 200, 3)
	p := New(preprocess.NewColumnTransformer([]string{"source"}), nil, model.NewLogisticRegression())
	assert.Equal(t, []string{StepPreprocessor, StepModel}, p.Steps())
	require.NoError(t, p.Fit(context.Background(), X, y))

	var buf bytes.Buffer
	require.NoError(t, p.Encode(&buf))
	loaded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Nil(t, loaded.Sampler())
	assert.True(t, loaded.Preprocessor().Encoder.IgnoreUnknown)
}

func TestPipelineErrors(t *testing.T) {
	X, _ := transactions(t, 20, 4)
	y := make([]int, X.Len())
	y[0] = 1

	p := New(preprocess.NewColumnTransformer([]string{"source"}), sampling.NewSMOTE(5, 1), model.NewLogisticRegression())
	assert.ErrorIs(t, p.Fit(context.Background(), X, y), sampling.ErrTooFewMinority)
	assert.False(t, p.Preprocessor().Fitted, "failed fit must not leave a fitted preprocessor")

	_, err := p.PredictProba(X)
	assert.ErrorIs(t, err, preprocess.ErrNotFitted)

	_, err = Load(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)

	_, err = Decode(bytes.NewReader([]byte("not a pipeline")))
	assert.Error(t, err)
}

func TestPipelineFailedRefitKeepsState(t *testing.T) {
	ctx := context.Background()
	X, y := transactions(t, 200, 5)
	p := New(preprocess.NewColumnTransformer([]string{"source"}), sampling.NewSMOTE(5, 1), model.NewLogisticRegression())
	require.NoError(t, p.Fit(ctx, X, y))
	want, err := p.PredictProba(X)
	require.NoError(t, err)
	names := p.Preprocessor().FeatureNames()

	small, _ := transactions(t, 20, 6)
	ySmall := make([]int, small.Len())
	ySmall[0] = 1
	assert.ErrorIs(t, p.Fit(ctx, small, ySmall), sampling.ErrTooFewMinority)

	assert.Equal(t, names, p.Preprocessor().FeatureNames())
	got, err := p.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
