// Package app drives the fraud detection pipeline end to end and keeps the
// run registry up to date.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FlavioCFOliveira/frauddetection/internal/config"
	"github.com/FlavioCFOliveira/frauddetection/internal/dataprep"
	"github.com/FlavioCFOliveira/frauddetection/internal/explain"
	"github.com/FlavioCFOliveira/frauddetection/internal/logging"
	"github.com/FlavioCFOliveira/frauddetection/internal/model"
	"github.com/FlavioCFOliveira/frauddetection/internal/pipeline"
	"github.com/FlavioCFOliveira/frauddetection/internal/registry"
	"github.com/FlavioCFOliveira/frauddetection/internal/train"
)

// topFeatures is the number of features printed per explanation.
const topFeatures = 10

// Datasets lists the datasets in the order they are reported.
var Datasets = []dataprep.Kind{dataprep.Ecommerce, dataprep.Credit}

// App runs pipeline stages against one configuration.
type App struct {
	cfg      *config.Config
	log      *zap.Logger
	out      *console
	progress io.Writer
	now      func() time.Time
}

// Option configures an App.
type Option func(*App)

// WithOutput sets the writer of the console report. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = &console{w: w} }
}

// WithProgress sets the writer of the training progress bars. Defaults to
// stderr; nil disables them.
func WithProgress(w io.Writer) Option {
	return func(a *App) { a.progress = w }
}

// WithClock overrides the clock used to stamp saved models.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New returns an App. A nil logger disables logging.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *App {
	a := &App{
		cfg:      cfg,
		log:      logging.OrNop(logger),
		out:      &console{w: os.Stdout},
		progress: os.Stderr,
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *App) processor() *dataprep.Processor {
	return dataprep.NewProcessor(dataprep.Paths{
		FraudData:  a.cfg.FraudDataPath(),
		IPData:     a.cfg.IPDataPath(),
		CreditData: a.cfg.CreditDataPath(),
	}, a.log)
}

func (a *App) explainer() *explain.Explainer {
	return explain.NewExplainer(a.cfg.Output.PlotsDir, a.cfg.Explain.SampleSize,
		a.cfg.Training.RandomState, a.cfg.Explain.TopFeatures, a.log)
}

// withRun opens the registry and wraps fn in a run whose final status
// follows fn's error.
func (a *App) withRun(ctx context.Context, fn func(reg *registry.Registry, runID string) error) (err error) {
	reg, err := registry.Open(a.cfg.Output.Registry)
	if err != nil {
		return err
	}
	defer reg.Close()

	runID, err := reg.StartRun(ctx)
	if err != nil {
		return err
	}
	a.log.Info("run started", zap.String("run_id", runID))

	defer func() {
		status := registry.StatusSucceeded
		if err != nil {
			status = registry.StatusFailed
		}
		if ferr := reg.FinishRun(context.WithoutCancel(ctx), runID, status); ferr != nil && err == nil {
			err = ferr
		}
		a.log.Info("run finished", zap.String("run_id", runID), zap.String("status", status))
	}()

	return fn(reg, runID)
}

// Run trains both models of each dataset, then explains the boosted
// models and records the run. Processing and
// training errors abort the run; explanation errors are reported and
// skipped.
func (a *App) Run(ctx context.Context) error {
	start := time.Now()
	a.out.banner("Fraud Detection Pipeline")

	return a.withRun(ctx, func(reg *registry.Registry, runID string) error {
		a.out.step(1, "Processing data")
		data, err := a.processAll(ctx)
		if err != nil {
			a.out.fail("Data processing failed: %v", err)
			return err
		}

		a.out.step(2, "Training models")
		results := make(map[dataprep.Kind]*train.Result, len(Datasets))
		g, gctx := errgroup.WithContext(ctx)
		for _, kind := range Datasets {
			kind := kind
			res := new(train.Result)
			results[kind] = res
			g.Go(func() error {
				r, err := a.trainDataset(gctx, data[kind])
				if err != nil {
					return err
				}
				*res = *r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			a.out.fail("Training failed: %v", err)
			return err
		}
		for _, kind := range Datasets {
			if err := a.record(ctx, reg, runID, results[kind]); err != nil {
				return err
			}
			a.report(results[kind])
		}

		a.out.step(3, "Explaining models")
		explainer := a.explainer()
		explained := 0
		for _, kind := range Datasets {
			if a.explainResult(ctx, explainer, results[kind], data[kind]) {
				explained++
			}
		}

		fmt.Fprintln(a.out.w)
		a.out.banner("Pipeline complete")
		a.out.ok("Trained %d models on %d datasets", 2*len(Datasets), len(Datasets))
		a.out.ok("Explained %d of %d datasets", explained, len(Datasets))
		a.out.ok("Models saved to %s", a.cfg.Output.ModelsDir)
		a.out.ok("Run %s finished in %s", runID, time.Since(start).Round(time.Millisecond))
		return nil
	})
}

// processAll processes both datasets concurrently.
func (a *App) processAll(ctx context.Context) (map[dataprep.Kind]*dataprep.Data, error) {
	p := a.processor()
	out := make([]*dataprep.Data, len(Datasets))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range Datasets {
		i, kind := i, kind
		g.Go(func() error {
			d, err := p.Process(gctx, kind)
			if err != nil {
				return fmt.Errorf("process %s: %w", kind, err)
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := make(map[dataprep.Kind]*dataprep.Data, len(Datasets))
	for i, kind := range Datasets {
		data[kind] = out[i]
		a.out.ok("Processed %s data: %d rows (%d raw)", kind, out[i].Processed.Len(), out[i].Raw.Len())
	}
	return data, nil
}

func (a *App) trainDataset(ctx context.Context, data *dataprep.Data) (*train.Result, error) {
	bar := newProgress(a.progress, a.cfg, data.Kind)
	defer bar.finish()

	trainer := train.NewTrainer(a.cfg, a.log,
		train.WithCallbacks(bar.callbacks),
		train.WithClock(a.now))
	if data.Kind == dataprep.Ecommerce {
		return trainer.TrainEcommerce(ctx, data)
	}
	return trainer.TrainCredit(ctx, data)
}

func (a *App) record(ctx context.Context, reg *registry.Registry, runID string, res *train.Result) error {
	for _, name := range res.ModelNames() {
		ev := res.Results[name]
		err := reg.RecordModel(ctx, registry.ModelRecord{
			RunID:    runID,
			Dataset:  string(res.Kind),
			Model:    name,
			Path:     res.ModelPaths[name],
			ROCAUC:   ev.ROCAUC,
			PRAUC:    ev.PRAUC,
			Accuracy: ev.Report.Accuracy,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *App) report(res *train.Result) {
	for _, name := range res.ModelNames() {
		a.out.evaluation(string(res.Kind), name, res.Results[name])
	}
	for _, name := range res.ModelNames() {
		a.out.ok("Saved %s %s model to %s", res.Kind, name, res.ModelPaths[name])
	}
	fmt.Fprintln(a.out.w)
}

// explainResult explains the boosted model of a trained dataset and
// reports whether it succeeded.
func (a *App) explainResult(ctx context.Context, e *explain.Explainer, res *train.Result, data *dataprep.Data) bool {
	p, ok := res.Models[model.BoostName]
	if !ok {
		a.out.warn("No boosted model available for %s data", res.Kind)
		return false
	}
	_, err := a.explainPipeline(ctx, e, p, data)
	return err == nil
}

func (a *App) explainPipeline(ctx context.Context, e *explain.Explainer, p *pipeline.Pipeline, data *dataprep.Data) (*explain.Explanation, error) {
	ex, err := e.Explain(ctx, p, data)
	if err != nil {
		a.log.Error("explanation failed", zap.String("dataset", string(data.Kind)), zap.Error(err))
		a.out.fail("Failed to generate %s explanations: %v", data.Kind, err)
		return nil, err
	}
	a.out.ok("SHAP analysis for %s data completed", data.Kind)
	a.out.importance(ex, topFeatures)
	return ex, nil
}

// Train fits the models of one dataset and records them in a new run.
func (a *App) Train(ctx context.Context, kind dataprep.Kind) (*train.Result, error) {
	a.out.banner("Training " + string(kind) + " models")

	var res *train.Result
	err := a.withRun(ctx, func(reg *registry.Registry, runID string) error {
		data, err := a.processor().Process(ctx, kind)
		if err != nil {
			return fmt.Errorf("process %s: %w", kind, err)
		}
		a.out.ok("Processed %s data: %d rows (%d raw)", kind, data.Processed.Len(), data.Raw.Len())

		if res, err = a.trainDataset(ctx, data); err != nil {
			return err
		}
		if err := a.record(ctx, reg, runID, res); err != nil {
			return err
		}
		a.report(res)
		return nil
	})
	if err != nil {
		a.out.fail("Training %s failed: %v", kind, err)
		return nil, err
	}
	return res, nil
}

// Explain explains a saved boosted pipeline on a dataset. An empty path
// selects the most recent boosted model in the registry.
func (a *App) Explain(ctx context.Context, kind dataprep.Kind, path string) (*explain.Explanation, error) {
	a.out.banner("Explaining " + string(kind) + " model")

	if path == "" {
		reg, err := registry.Open(a.cfg.Output.Registry)
		if err != nil {
			return nil, err
		}
		rec, err := reg.Latest(ctx, string(kind), model.BoostName)
		reg.Close()
		if errors.Is(err, registry.ErrNotFound) {
			a.out.warn("No boosted model available for %s data", kind)
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		path = rec.Path
	}

	p, err := pipeline.Load(path)
	if err != nil {
		return nil, err
	}
	a.out.ok("Loaded %s", path)

	data, err := a.processor().Process(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", kind, err)
	}

	return a.explainPipeline(ctx, a.explainer(), p, data)
}

// Models prints the registered models of a dataset, or of all datasets
// when dataset is empty.
func (a *App) Models(ctx context.Context, dataset string) ([]registry.ModelRecord, error) {
	if dataset != "" {
		if _, err := dataprep.ParseKind(dataset); err != nil {
			return nil, err
		}
	}
	reg, err := registry.Open(a.cfg.Output.Registry)
	if err != nil {
		return nil, err
	}
	defer reg.Close()

	records, err := reg.ListModels(ctx, dataset)
	if err != nil {
		return nil, err
	}
	a.out.models(records)
	return records, nil
}
