package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Data.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "data.dir",
			Message: "data directory is required",
		})
	}

	t := c.Training
	if t.TestSize <= 0 || t.TestSize >= 1 {
		errors = append(errors, ValidationError{
			Field:   "training.test_size",
			Message: "test_size must be between 0 and 1 (exclusive)",
		})
	}

	if t.SmoteK < 1 {
		errors = append(errors, ValidationError{
			Field:   "training.smote_k",
			Message: "smote_k must be positive",
		})
	}

	if t.LogReg.MaxIter < 1 {
		errors = append(errors, ValidationError{
			Field:   "training.logreg.max_iter",
			Message: "max_iter must be positive",
		})
	}

	if t.LogReg.LearningRate <= 0 || t.LogReg.Tol < 0 {
		errors = append(errors, ValidationError{
			Field:   "training.logreg",
			Message: "learning_rate must be positive and tol non-negative",
		})
	}

	if t.LogReg.C <= 0 {
		errors = append(errors, ValidationError{
			Field:   "training.logreg.c",
			Message: "c must be positive",
		})
	}

	if cw := t.LogReg.ClassWeight; cw != "balanced" && cw != "none" {
		errors = append(errors, ValidationError{
			Field:   "training.logreg.class_weight",
			Message: fmt.Sprintf("unsupported class_weight %q (want balanced or none)", cw),
		})
	}

	b := t.Boosting
	if b.NEstimators < 1 {
		errors = append(errors, ValidationError{
			Field:   "training.boosting.n_estimators",
			Message: "n_estimators must be positive",
		})
	}

	if b.LearningRate <= 0 || b.LearningRate > 1 {
		errors = append(errors, ValidationError{
			Field:   "training.boosting.learning_rate",
			Message: "learning_rate must be in (0, 1]",
		})
	}

	if b.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "training.boosting.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if b.MaxBins < 2 || b.MaxBins > 65535 {
		errors = append(errors, ValidationError{
			Field:   "training.boosting.max_bins",
			Message: "max_bins must be between 2 and 65535",
		})
	}

	if b.ScalePosWeight <= 0 {
		errors = append(errors, ValidationError{
			Field:   "training.boosting.scale_pos_weight",
			Message: "scale_pos_weight must be positive",
		})
	}

	if b.Lambda < 0 || b.Gamma < 0 || b.MinChildWeight < 0 {
		errors = append(errors, ValidationError{
			Field:   "training.boosting",
			Message: "lambda, gamma and min_child_weight must be non-negative",
		})
	}

	if c.Explain.SampleSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "explain.sample_size",
			Message: "sample_size must be positive",
		})
	}

	if c.Explain.TopFeatures < 1 {
		errors = append(errors, ValidationError{
			Field:   "explain.top_features",
			Message: "top_features must be positive",
		})
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", c.Logging.Level),
		})
	}

	return errors
}
