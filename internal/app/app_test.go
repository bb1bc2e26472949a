package app

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/FlavioCFOliveira/frauddetection/internal/config"
	"github.com/FlavioCFOliveira/frauddetection/internal/dataprep"
	"github.com/FlavioCFOliveira/frauddetection/internal/model"
	"github.com/FlavioCFOliveira/frauddetection/internal/registry"
	"github.com/FlavioCFOliveira/frauddetection/internal/synth"
	"github.com/FlavioCFOliveira/frauddetection/internal/train"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedClock = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC) }

func testConfig(t *testing.T, withData bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if withData {
		opts := synth.DefaultOptions()
		opts.Rows = 600
		_, err := synth.Write(filepath.Join(dir, "data"), opts)
		require.NoError(t, err)
	}

	cfg := config.Default()
	cfg.Data.Dir = filepath.Join(dir, "data")
	cfg.Output.Dir = filepath.Join(dir, "outputs")
	cfg.Output.ModelsDir = filepath.Join(cfg.Output.Dir, "models")
	cfg.Output.PlotsDir = filepath.Join(cfg.Output.Dir, "plots")
	cfg.Output.Registry = filepath.Join(cfg.Output.Dir, "registry.db")
	cfg.Training.LogReg.MaxIter = 100
	cfg.Training.Boosting.NEstimators = 10
	cfg.Training.Boosting.MaxDepth = 3
	cfg.Explain.SampleSize = 100
	return cfg
}

func newTestApp(cfg *config.Config, out io.Writer) *App {
	return New(cfg, nil, WithOutput(out), WithProgress(io.Discard), WithClock(fixedClock))
}

func openRegistry(t *testing.T, cfg *config.Config) *registry.Registry {
	t.Helper()
	reg, err := registry.Open(cfg.Output.Registry)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestRun(t *testing.T) {
	cfg := testConfig(t, true)
	var out bytes.Buffer

	require.NoError(t, newTestApp(cfg, &out).Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Fraud Detection Pipeline")
	assert.Contains(t, text, "Classification Report:")
	assert.Contains(t, text, "SHAP analysis for ecommerce data completed")
	assert.Contains(t, text, "SHAP analysis for credit data completed")
	assert.Contains(t, text, "Explained 2 of 2 datasets")

	for _, kind := range Datasets {
		for _, name := range []string{model.LogRegName, model.BoostName} {
			assert.FileExists(t, filepath.Join(cfg.Output.ModelsDir, string(kind)+"_"+name+"_20240309_140506.gob"))
		}
		assert.FileExists(t, filepath.Join(cfg.Output.PlotsDir, string(kind)+"_shap_summary.png"))
		assert.FileExists(t, filepath.Join(cfg.Output.PlotsDir, string(kind)+"_shap_summary.csv"))
	}

	reg := openRegistry(t, cfg)
	ctx := context.Background()
	runs, err := reg.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, registry.StatusSucceeded, runs[0].Status)

	records, err := reg.ListModels(ctx, "")
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, rec := range records {
		assert.Equal(t, runs[0].ID, rec.RunID)
		assert.Greater(t, rec.ROCAUC, 0.5, "%s %s", rec.Dataset, rec.Model)
	}
}

func TestRunMissingData(t *testing.T) {
	cfg := testConfig(t, false)
	var out bytes.Buffer

	err := newTestApp(cfg, &out).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, out.String(), "Data processing failed")

	runs, err := openRegistry(t, cfg).ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, registry.StatusFailed, runs[0].Status)
	assert.False(t, runs[0].FinishedAt.IsZero())
}

func TestTrainThenExplain(t *testing.T) {
	cfg := testConfig(t, true)
	ctx := context.Background()
	var out bytes.Buffer
	a := newTestApp(cfg, &out)

	res, err := a.Train(ctx, dataprep.Credit)
	require.NoError(t, err)
	assert.Equal(t, []string{model.LogRegName, model.BoostName}, res.ModelNames())

	ex, err := a.Explain(ctx, dataprep.Credit, "")
	require.NoError(t, err)
	assert.Equal(t, model.BoostName, ex.Model)
	assert.Equal(t, dataprep.Credit, ex.Kind)
	assert.Contains(t, out.String(), "Top features (credit xgb")

	// an explicit path may point at the logistic regression
	ex, err = a.Explain(ctx, dataprep.Credit, res.ModelPaths[model.LogRegName])
	require.NoError(t, err)
	assert.Equal(t, model.LogRegName, ex.Model)

	records, err := a.Models(ctx, "credit")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = a.Models(ctx, "ecommerce")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Contains(t, out.String(), "No models registered")

	_, err = a.Models(ctx, "bogus")
	assert.Error(t, err)
}

func TestExplainWithoutModel(t *testing.T) {
	cfg := testConfig(t, true)
	var out bytes.Buffer

	_, err := newTestApp(cfg, &out).Explain(context.Background(), dataprep.Ecommerce, "")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Contains(t, out.String(), "No boosted model available for ecommerce data")
}

func TestExplainResultWithoutBoostedModel(t *testing.T) {
	cfg := testConfig(t, false)
	var out bytes.Buffer
	a := newTestApp(cfg, &out)

	res := &train.Result{Kind: dataprep.Credit}
	assert.False(t, a.explainResult(context.Background(), a.explainer(), res, &dataprep.Data{Kind: dataprep.Credit}))
	assert.Contains(t, out.String(), "No boosted model available for credit data")
}

func TestProgressCallback(t *testing.T) {
	cfg := config.Default()
	cfg.Training.LogReg.MaxIter = 3
	cfg.Training.Boosting.NEstimators = 2
	p := newProgress(io.Discard, cfg, dataprep.Credit)

	cbs := p.callbacks(dataprep.Credit, model.BoostName)
	require.Len(t, cbs, 1)
	for i := 0; i < 4; i++ {
		cbs[0].OnIterationEnd(model.BoostName, i, 0.5)
	}
	state := p.bar.State()
	assert.Equal(t, int64(5), state.Max)
	assert.Equal(t, int64(4), state.CurrentNum)
	p.finish()

	disabled := newProgress(nil, cfg, dataprep.Credit)
	assert.Nil(t, disabled.callbacks(dataprep.Credit, model.BoostName))
	disabled.finish()
}
