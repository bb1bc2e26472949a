package train

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FlavioCFOliveira/frauddetection/internal/config"
	"github.com/FlavioCFOliveira/frauddetection/internal/dataprep"
	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
	"github.com/FlavioCFOliveira/frauddetection/internal/model"
	"github.com/FlavioCFOliveira/frauddetection/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func creditData(t *testing.T, n int) *dataprep.Data {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	tm := make([]float64, n)
	v1 := make([]float64, n)
	v2 := make([]float64, n)
	amount := make([]float64, n)
	class := make([]float64, n)
	for i := 0; i < n; i++ {
		tm[i] = float64(i)
		v1[i] = rng.NormFloat64()
		v2[i] = rng.NormFloat64()
		amount[i] = 20 + rng.Float64()*100
		if i%10 == 0 {
			class[i] = 1
			v1[i] -= 4
			amount[i] += 150
		}
	}
	f := frame.New()
	require.NoError(t, f.AddFloat("Time", tm))
	require.NoError(t, f.AddFloat("V1", v1))
	require.NoError(t, f.AddFloat("V2", v2))
	require.NoError(t, f.AddFloat("Amount", amount))
	require.NoError(t, f.AddFloat("Class", class))
	return &dataprep.Data{Kind: dataprep.Credit, Raw: f, Processed: f}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Output.Dir = dir
	cfg.Output.ModelsDir = filepath.Join(dir, "models")
	cfg.Training.LogReg.MaxIter = 200
	cfg.Training.Boosting.NEstimators = 15
	cfg.Training.Boosting.MaxDepth = 3
	return cfg
}

type counter struct {
	model.BaseCallback
	mu    sync.Mutex
	iters map[string]int
}

func (c *counter) OnIterationEnd(name string, iter int, loss float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iters[name]++
}

func TestTrainCredit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.TrainLog = true
	clock := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	seen := &counter{iters: make(map[string]int)}

	tr := NewTrainer(cfg, nil,
		WithClock(func() time.Time { return clock }),
		WithCallbacks(func(kind dataprep.Kind, name string) []model.Callback {
			assert.Equal(t, dataprep.Credit, kind)
			return []model.Callback{seen}
		}))

	res, err := tr.TrainCredit(context.Background(), creditData(t, 500))
	require.NoError(t, err)

	assert.Equal(t, []string{model.LogRegName, model.BoostName}, res.ModelNames())
	assert.Equal(t, 100, len(res.TestData.Y))
	assert.Equal(t, 100, res.TestData.X.Len())
	assert.False(t, res.TestData.X.Has("Class"))

	for _, name := range res.ModelNames() {
		ev := res.Results[name]
		assert.Greater(t, ev.ROCAUC, 0.9, name)
		assert.Greater(t, ev.PRAUC, 0.5, name)

		want := filepath.Join(cfg.Output.ModelsDir, "credit_"+name+"_20240309_140506.gob")
		assert.Equal(t, want, res.ModelPaths[name])

		loaded, err := pipeline.Load(want)
		require.NoError(t, err)
		again, err := Evaluate(loaded, res.TestData.X, res.TestData.Y)
		require.NoError(t, err)
		assert.Equal(t, ev.ROCAUC, again.ROCAUC)

		_, err = os.Stat(filepath.Join(cfg.Output.Dir, "logs", "credit_"+name+"_train.csv"))
		assert.NoError(t, err)
	}
	assert.Equal(t, 15, seen.iters[model.BoostName])
	assert.Positive(t, seen.iters[model.LogRegName])
}

func TestTrainLogFailureIsReported(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.TrainLog = true
	// a directory in place of the log file makes it impossible to open
	blocked := filepath.Join(cfg.Output.Dir, "logs", "credit_"+model.BoostName+"_train.csv")
	require.NoError(t, os.MkdirAll(blocked, 0o755))

	core, logs := observer.New(zapcore.WarnLevel)
	_, err := NewTrainer(cfg, zap.New(core)).TrainCredit(context.Background(), creditData(t, 200))
	require.NoError(t, err)

	warned := logs.FilterMessage("training log failed").All()
	require.Len(t, warned, 1)
	assert.Equal(t, model.BoostName, warned[0].ContextMap()["model"])
	assert.Equal(t, blocked, warned[0].ContextMap()["path"])
}

func TestTrainKindMismatch(t *testing.T) {
	tr := NewTrainer(testConfig(t), nil)
	_, err := tr.TrainEcommerce(context.Background(), creditData(t, 50))
	assert.Error(t, err)
}

func TestTrainMissingTarget(t *testing.T) {
	data := creditData(t, 50)
	X, err := data.Processed.Drop("Class")
	require.NoError(t, err)
	data.Processed = X

	_, err = NewTrainer(testConfig(t), nil).TrainCredit(context.Background(), data)
	assert.ErrorIs(t, err, frame.ErrColumnNotFound)
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTrainer(testConfig(t), nil).TrainCredit(ctx, creditData(t, 200))
	assert.ErrorIs(t, err, context.Canceled)
}
