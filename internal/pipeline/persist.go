package pipeline

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/FlavioCFOliveira/frauddetection/internal/model"
	"github.com/FlavioCFOliveira/frauddetection/internal/preprocess"
	"github.com/FlavioCFOliveira/frauddetection/internal/sampling"
)

// formatVersion is written first so older files can be rejected.
const formatVersion int32 = 2

// Save saves the pipeline to a file using gob encoding.
// Training callbacks are not saved.
func (p *Pipeline) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := p.Encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Load loads a pipeline from a file.
func Load(filename string) (*Pipeline, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Decode(file)
}

// Encode writes the pipeline to an io.Writer using gob encoding.
func (p *Pipeline) Encode(w io.Writer) error {
	encoder := gob.NewEncoder(w)

	if err := encoder.Encode(formatVersion); err != nil {
		return fmt.Errorf("failed to encode version: %w", err)
	}
	if err := encoder.Encode(p.clf.Name()); err != nil {
		return fmt.Errorf("failed to encode model type: %w", err)
	}
	if err := encoder.Encode(p.pre); err != nil {
		return fmt.Errorf("failed to encode preprocessor: %w", err)
	}

	// A zero K marks a pipeline without sampler.
	var sampler sampling.SMOTE
	if p.sampler != nil {
		sampler = *p.sampler
	}
	if err := encoder.Encode(sampler); err != nil {
		return fmt.Errorf("failed to encode sampler: %w", err)
	}

	if err := encoder.Encode(p.clf); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// Decode reads a pipeline written by Encode.
func Decode(r io.Reader) (*Pipeline, error) {
	decoder := gob.NewDecoder(r)

	var version int32
	if err := decoder.Decode(&version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported pipeline format %d", version)
	}

	var modelType string
	if err := decoder.Decode(&modelType); err != nil {
		return nil, fmt.Errorf("failed to read model type: %w", err)
	}

	pre := &preprocess.ColumnTransformer{}
	if err := decoder.Decode(pre); err != nil {
		return nil, fmt.Errorf("failed to read preprocessor: %w", err)
	}

	var sampler sampling.SMOTE
	if err := decoder.Decode(&sampler); err != nil {
		return nil, fmt.Errorf("failed to read sampler: %w", err)
	}

	var clf model.Classifier
	switch modelType {
	case model.LogRegName:
		m := &model.LogisticRegression{}
		if err := decoder.Decode(m); err != nil {
			return nil, fmt.Errorf("failed to read model: %w", err)
		}
		clf = m
	case model.BoostName:
		m := &model.GradientBoosting{}
		if err := decoder.Decode(m); err != nil {
			return nil, fmt.Errorf("failed to read model: %w", err)
		}
		clf = m
	default:
		return nil, fmt.Errorf("unknown model type %q", modelType)
	}

	p := &Pipeline{pre: pre, clf: clf}
	if sampler.K > 0 {
		p.sampler = &sampler
	}
	return p, nil
}
