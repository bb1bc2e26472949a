// Package train fits, evaluates and saves the fraud models of a dataset.
package train

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FlavioCFOliveira/frauddetection/internal/config"
	"github.com/FlavioCFOliveira/frauddetection/internal/dataprep"
	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
	"github.com/FlavioCFOliveira/frauddetection/internal/metrics"
	"github.com/FlavioCFOliveira/frauddetection/internal/model"
	"github.com/FlavioCFOliveira/frauddetection/internal/pipeline"
	"github.com/FlavioCFOliveira/frauddetection/internal/preprocess"
	"github.com/FlavioCFOliveira/frauddetection/internal/sampling"
)

// TimestampLayout formats the suffix of saved model files.
const TimestampLayout = "20060102_150405"

// TestData is the held-out split used for evaluation.
type TestData struct {
	X *frame.Frame
	Y []int
}

// Result is the outcome of training one dataset. All maps are keyed by
// model name.
type Result struct {
	Kind       dataprep.Kind
	Models     map[string]*pipeline.Pipeline
	Results    map[string]metrics.Evaluation
	ModelPaths map[string]string
	TestData   TestData
}

// ModelNames returns the trained model names in sorted order.
func (r *Result) ModelNames() []string {
	names := make([]string, 0, len(r.Models))
	for name := range r.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallbackFactory returns the extra training callbacks of one model.
type CallbackFactory func(kind dataprep.Kind, modelName string) []model.Callback

// Trainer trains a logistic regression and a gradient boosting pipeline
// per dataset.
type Trainer struct {
	cfg       *config.Config
	log       *zap.Logger
	callbacks CallbackFactory
	now       func() time.Time
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithCallbacks attaches callbacks to every model trained.
func WithCallbacks(f CallbackFactory) Option {
	return func(t *Trainer) { t.callbacks = f }
}

// WithClock overrides the clock used for file name timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Trainer) { t.now = now }
}

// NewTrainer returns a Trainer. A nil logger disables logging.
func NewTrainer(cfg *config.Config, logger *zap.Logger, opts ...Option) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trainer{cfg: cfg, log: logger, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// TrainEcommerce trains and saves the e-commerce models.
func (t *Trainer) TrainEcommerce(ctx context.Context, data *dataprep.Data) (*Result, error) {
	if data.Kind != dataprep.Ecommerce {
		return nil, fmt.Errorf("train e-commerce: got %s data", data.Kind)
	}
	return t.Train(ctx, data)
}

// TrainCredit trains and saves the credit card models.
func (t *Trainer) TrainCredit(ctx context.Context, data *dataprep.Data) (*Result, error) {
	if data.Kind != dataprep.Credit {
		return nil, fmt.Errorf("train credit: got %s data", data.Kind)
	}
	return t.Train(ctx, data)
}

// Train splits the processed data, fits both pipelines concurrently,
// evaluates them on the held-out rows and saves them under the models
// directory.
func (t *Trainer) Train(ctx context.Context, data *dataprep.Data) (*Result, error) {
	desc := data.Descriptor()
	log := t.log.With(zap.String("dataset", string(desc.Kind)))

	X, y, err := desc.Split(data.Processed)
	if err != nil {
		return nil, err
	}
	trainIdx, testIdx, err := sampling.StratifiedSplit(y, t.cfg.Training.TestSize, t.cfg.Training.RandomState)
	if err != nil {
		return nil, fmt.Errorf("%s split: %w", desc.Kind, err)
	}
	Xtrain, ytrain := X.Take(trainIdx), sampling.TakeLabels(y, trainIdx)
	Xtest, ytest := X.Take(testIdx), sampling.TakeLabels(y, testIdx)
	log.Info("split dataset",
		zap.Int("train_rows", len(trainIdx)),
		zap.Int("test_rows", len(testIdx)),
		zap.Int("features", X.Width()))

	res := &Result{
		Kind:       desc.Kind,
		Models:     make(map[string]*pipeline.Pipeline),
		Results:    make(map[string]metrics.Evaluation),
		ModelPaths: make(map[string]string),
		TestData:   TestData{X: Xtest, Y: ytest},
	}
	trainLogs := make(map[string]*model.CSVLogger)
	for _, clf := range []model.Classifier{t.newLogReg(), t.newBoost()} {
		cbs, trainLog := t.modelCallbacks(desc.Kind, clf.Name(), log)
		if trainLog != nil {
			trainLogs[clf.Name()] = trainLog
		}
		clf.SetCallbacks(cbs...)
		res.Models[clf.Name()] = pipeline.New(
			preprocess.NewColumnTransformer(desc.Categorical),
			sampling.NewSMOTE(t.cfg.Training.SmoteK, t.cfg.Training.RandomState),
			clf,
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, p := range res.Models {
		name, p := name, p
		g.Go(func() error {
			start := time.Now()
			if err := p.Fit(gctx, Xtrain, ytrain); err != nil {
				return fmt.Errorf("%s %s: %w", desc.Kind, name, err)
			}
			log.Info("trained model", zap.String("model", name), zap.Duration("duration", time.Since(start)))
			return nil
		})
	}
	err = g.Wait()
	for name, trainLog := range trainLogs {
		if lerr := trainLog.Err(); lerr != nil {
			log.Warn("training log failed",
				zap.String("model", name),
				zap.String("path", trainLog.Filename),
				zap.Error(lerr))
		}
	}
	if err != nil {
		return nil, err
	}

	for _, name := range res.ModelNames() {
		ev, err := Evaluate(res.Models[name], Xtest, ytest)
		if err != nil {
			return nil, fmt.Errorf("%s %s: evaluate: %w", desc.Kind, name, err)
		}
		res.Results[name] = ev
		log.Info("evaluated model",
			zap.String("model", name),
			zap.Float64("roc_auc", ev.ROCAUC),
			zap.Float64("pr_auc", ev.PRAUC),
			zap.Float64("accuracy", ev.Report.Accuracy))
	}

	if err := os.MkdirAll(t.cfg.Output.ModelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	stamp := t.now().Format(TimestampLayout)
	for _, name := range res.ModelNames() {
		path := filepath.Join(t.cfg.Output.ModelsDir, fmt.Sprintf("%s_%s_%s.gob", desc.Kind, name, stamp))
		if err := res.Models[name].Save(path); err != nil {
			return nil, fmt.Errorf("%s %s: save: %w", desc.Kind, name, err)
		}
		res.ModelPaths[name] = path
		log.Info("saved model", zap.String("model", name), zap.String("path", path))
	}
	return res, nil
}

// Evaluate scores a fitted pipeline on labelled rows.
func Evaluate(p *pipeline.Pipeline, X *frame.Frame, y []int) (metrics.Evaluation, error) {
	proba, err := p.PredictProba(X)
	if err != nil {
		return metrics.Evaluation{}, err
	}
	return metrics.Evaluate(y, proba)
}

// modelCallbacks returns the callbacks of one model and its training log,
// which is nil when the log is disabled.
func (t *Trainer) modelCallbacks(kind dataprep.Kind, name string, log *zap.Logger) ([]model.Callback, *model.CSVLogger) {
	cbs := []model.Callback{model.Logger{Log: log, Interval: 50}}
	var trainLog *model.CSVLogger
	if t.cfg.Output.TrainLog {
		dir := filepath.Join(t.cfg.Output.Dir, "logs")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn("training log disabled", zap.Error(err))
		} else {
			trainLog = model.NewCSVLogger(filepath.Join(dir, fmt.Sprintf("%s_%s_train.csv", kind, name)), false)
			cbs = append(cbs, trainLog)
		}
	}
	if t.callbacks != nil {
		cbs = append(cbs, t.callbacks(kind, name)...)
	}
	return cbs, trainLog
}

func (t *Trainer) newLogReg() *model.LogisticRegression {
	c := t.cfg.Training.LogReg
	m := model.NewLogisticRegression()
	m.MaxIter = c.MaxIter
	m.LearningRate = c.LearningRate
	m.Tol = c.Tol
	m.C = c.C
	m.ClassWeight = c.ClassWeight
	return m
}

func (t *Trainer) newBoost() *model.GradientBoosting {
	c := t.cfg.Training.Boosting
	m := model.NewGradientBoosting()
	m.NEstimators = c.NEstimators
	m.LearningRate = c.LearningRate
	m.MaxDepth = c.MaxDepth
	m.ScalePosWeight = c.ScalePosWeight
	m.Lambda = c.Lambda
	m.Gamma = c.Gamma
	m.MinChildWeight = c.MinChildWeight
	m.MaxBins = c.MaxBins
	return m
}
