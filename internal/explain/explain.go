// Package explain attributes fraud scores to input features with SHAP
// values and renders global importance summaries.
package explain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/FlavioCFOliveira/frauddetection/internal/dataprep"
	"github.com/FlavioCFOliveira/frauddetection/internal/pipeline"
)

// Explanation is the result of explaining one pipeline.
type Explanation struct {
	Kind     dataprep.Kind
	Model    string
	Values   *Values
	Summary  []Importance
	PlotPath string
	CSVPath  string
}

// Explainer computes SHAP summaries on a sample of a processed dataset.
type Explainer struct {
	plotsDir   string
	sampleSize int
	seed       int64
	top        int
	log        *zap.Logger
}

// NewExplainer writes summaries to plotsDir. At most sampleSize rows,
// drawn with seed, are explained; plots show the top features.
func NewExplainer(plotsDir string, sampleSize int, seed int64, top int, logger *zap.Logger) *Explainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Explainer{plotsDir: plotsDir, sampleSize: sampleSize, seed: seed, top: top, log: logger}
}

// ExplainEcommerce explains an e-commerce pipeline and reports whether the
// summaries were generated.
func (e *Explainer) ExplainEcommerce(ctx context.Context, p *pipeline.Pipeline, data *dataprep.Data) (bool, error) {
	return e.explainKind(ctx, dataprep.Ecommerce, p, data)
}

// ExplainCredit explains a credit card pipeline and reports whether the
// summaries were generated.
func (e *Explainer) ExplainCredit(ctx context.Context, p *pipeline.Pipeline, data *dataprep.Data) (bool, error) {
	return e.explainKind(ctx, dataprep.Credit, p, data)
}

func (e *Explainer) explainKind(ctx context.Context, k dataprep.Kind, p *pipeline.Pipeline, data *dataprep.Data) (bool, error) {
	if data.Kind != k {
		return false, fmt.Errorf("explain %s: got %s data", k, data.Kind)
	}
	ex, err := e.Explain(ctx, p, data)
	if err != nil {
		e.log.Error("explanation failed", zap.String("dataset", string(k)), zap.Error(err))
		return false, err
	}
	for i, im := range ex.Summary {
		if i == 5 {
			break
		}
		e.log.Info("top feature", zap.String("dataset", string(k)), zap.String("feature", im.Feature), zap.Float64("mean_abs_shap", im.MeanAbs))
	}
	return true, nil
}

// Explain samples the processed rows, encodes them with the pipeline's
// preprocessor and computes SHAP values for its model. The summary is
// written as <dataset>_shap_summary.png and .csv.
func (e *Explainer) Explain(ctx context.Context, p *pipeline.Pipeline, data *dataprep.Data) (*Explanation, error) {
	start := time.Now()
	desc := data.Descriptor()
	X, _, err := desc.Split(data.Processed)
	if err != nil {
		return nil, err
	}
	sample := X.Sample(min(e.sampleSize, X.Len()), e.seed)

	Xt, err := p.Transform(sample)
	if err != nil {
		return nil, fmt.Errorf("transform sample: %w", err)
	}
	clf := p.Model()
	values, err := Compute(ctx, clf, Xt, p.Preprocessor().FeatureNames())
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(e.plotsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create plots dir: %w", err)
	}
	ex := &Explanation{
		Kind:     desc.Kind,
		Model:    clf.Name(),
		Values:   values,
		Summary:  values.Summary(),
		PlotPath: filepath.Join(e.plotsDir, string(desc.Kind)+"_shap_summary.png"),
		CSVPath:  filepath.Join(e.plotsDir, string(desc.Kind)+"_shap_summary.csv"),
	}
	if err := WriteSummaryCSV(ex.CSVPath, ex.Summary); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	title := fmt.Sprintf("SHAP summary: %s %s", desc.Kind, clf.Name())
	if err := SavePlot(ex.PlotPath, title, ex.Summary, e.top); err != nil {
		return nil, fmt.Errorf("save plot: %w", err)
	}

	e.log.Info("explained model",
		zap.String("dataset", string(desc.Kind)),
		zap.String("model", clf.Name()),
		zap.Int("rows", sample.Len()),
		zap.Int("features", len(values.Features)),
		zap.Duration("duration", time.Since(start)))
	return ex, nil
}
