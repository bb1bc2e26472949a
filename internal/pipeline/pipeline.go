// Package pipeline chains the column transformer, the SMOTE sampler and a
// classifier into one fitted unit that can be saved and reloaded.
package pipeline

import (
	"context"
	"fmt"

	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
	"github.com/FlavioCFOliveira/frauddetection/internal/model"
	"github.com/FlavioCFOliveira/frauddetection/internal/preprocess"
	"github.com/FlavioCFOliveira/frauddetection/internal/sampling"
)

// Step names, in execution order.
const (
	StepPreprocessor = "preprocessor"
	StepSMOTE        = "smote"
	StepModel        = "model"
)

// Pipeline runs preprocessor -> smote -> model. The sampler only runs
// during Fit; prediction goes straight from the preprocessor to the model.
type Pipeline struct {
	pre     *preprocess.ColumnTransformer
	sampler *sampling.SMOTE
	clf     model.Classifier
}

// New builds a pipeline. sampler may be nil to train on the original rows.
func New(pre *preprocess.ColumnTransformer, sampler *sampling.SMOTE, clf model.Classifier) *Pipeline {
	return &Pipeline{pre: pre, sampler: sampler, clf: clf}
}

// Steps returns the names of the configured steps.
func (p *Pipeline) Steps() []string {
	steps := []string{StepPreprocessor}
	if p.sampler != nil {
		steps = append(steps, StepSMOTE)
	}
	return append(steps, StepModel)
}

// Preprocessor returns the column transformer step.
func (p *Pipeline) Preprocessor() *preprocess.ColumnTransformer { return p.pre }

// Sampler returns the SMOTE step, or nil.
func (p *Pipeline) Sampler() *sampling.SMOTE { return p.sampler }

// Model returns the classifier step.
func (p *Pipeline) Model() model.Classifier { return p.clf }

// Fit fits the preprocessor on X, oversamples the encoded rows and trains
// the classifier on the result. The preprocessor is only replaced once the
// classifier has been fitted, so a failed Fit leaves it as it was.
func (p *Pipeline) Fit(ctx context.Context, X *frame.Frame, y []int) error {
	pre := *p.pre
	Xt, err := pre.FitTransform(X)
	if err != nil {
		return fmt.Errorf("%s: %w", StepPreprocessor, err)
	}
	if p.sampler != nil {
		if Xt, y, err = p.sampler.Resample(ctx, Xt, y); err != nil {
			return fmt.Errorf("%s: %w", StepSMOTE, err)
		}
	}
	if err := p.clf.Fit(ctx, Xt, y); err != nil {
		return fmt.Errorf("%s %s: %w", StepModel, p.clf.Name(), err)
	}
	*p.pre = pre
	return nil
}

// Transform applies the fitted preprocessor.
func (p *Pipeline) Transform(X *frame.Frame) ([][]float64, error) {
	return p.pre.Transform(X)
}

// PredictProba returns P(fraud) for every row of X.
func (p *Pipeline) PredictProba(X *frame.Frame) ([]float64, error) {
	Xt, err := p.pre.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.clf.PredictProba(Xt)
}

// Predict returns the 0/1 label of every row of X.
func (p *Pipeline) Predict(X *frame.Frame) ([]int, error) {
	Xt, err := p.pre.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.clf.Predict(Xt)
}
