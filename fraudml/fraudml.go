// Package fraudml exposes the fraud detection pipeline to library users.
package fraudml

import (
	"context"

	"github.com/FlavioCFOliveira/frauddetection/internal/explain"
	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
	"github.com/FlavioCFOliveira/frauddetection/internal/metrics"
	"github.com/FlavioCFOliveira/frauddetection/internal/model"
	"github.com/FlavioCFOliveira/frauddetection/internal/pipeline"
	"github.com/FlavioCFOliveira/frauddetection/internal/preprocess"
	"github.com/FlavioCFOliveira/frauddetection/internal/sampling"
)

// Re-export common types for easier access
type (
	Frame              = frame.Frame
	Schema             = frame.Schema
	Pipeline           = pipeline.Pipeline
	Classifier         = model.Classifier
	LogisticRegression = model.LogisticRegression
	GradientBoosting   = model.GradientBoosting
	ColumnTransformer  = preprocess.ColumnTransformer
	SMOTE              = sampling.SMOTE
	Evaluation         = metrics.Evaluation
	Report             = metrics.Report
	ConfusionMatrix    = metrics.ConfusionMatrix
	SHAPValues         = explain.Values
	Importance         = explain.Importance
)

// Frames
func NewFrame() *Frame {
	return frame.New()
}

func ReadCSV(filename string, schema Schema) (*Frame, error) {
	return frame.ReadCSV(filename, schema)
}

// Pipeline creation
func NewPipeline(pre *ColumnTransformer, sampler *SMOTE, clf Classifier) *Pipeline {
	return pipeline.New(pre, sampler, clf)
}

func NewColumnTransformer(categorical ...string) *ColumnTransformer {
	return preprocess.NewColumnTransformer(categorical)
}

func NewSMOTE(k int, seed int64) *SMOTE {
	return sampling.NewSMOTE(k, seed)
}

// Models
func NewLogisticRegression() *LogisticRegression {
	return model.NewLogisticRegression()
}

func NewGradientBoosting() *GradientBoosting {
	return model.NewGradientBoosting()
}

// Splitting
func StratifiedSplit(y []int, testSize float64, seed int64) (train, test []int, err error) {
	return sampling.StratifiedSplit(y, testSize, seed)
}

// Callbacks
type Callback = model.Callback

func EarlyStopping(patience int, threshold float64) *model.EarlyStopping {
	return model.NewEarlyStopping(patience, threshold)
}

func CSVLogger(filename string) *model.CSVLogger {
	return model.NewCSVLogger(filename, false)
}

// Metrics
func Evaluate(yTrue []int, proba []float64) (Evaluation, error) {
	return metrics.Evaluate(yTrue, proba)
}

func ClassificationReport(yTrue, yPred []int) (Report, error) {
	return metrics.ClassificationReport(yTrue, yPred)
}

func ROCAUC(yTrue []int, scores []float64) (float64, error) {
	return metrics.ROCAUC(yTrue, scores)
}

func AveragePrecision(yTrue []int, scores []float64) (float64, error) {
	return metrics.AveragePrecision(yTrue, scores)
}

// Explanations

// Explain computes SHAP values of the pipeline's model on rows of X, in
// log-odds space.
func Explain(ctx context.Context, p *Pipeline, X *Frame) (*SHAPValues, error) {
	Xt, err := p.Transform(X)
	if err != nil {
		return nil, err
	}
	return explain.Compute(ctx, p.Model(), Xt, p.Preprocessor().FeatureNames())
}

// Model Persistence
func Load(filename string) (*Pipeline, error) {
	return pipeline.Load(filename)
}
