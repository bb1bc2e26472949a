package preprocess

import (
	"fmt"

	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
)

// ColumnTransformer one-hot encodes the categorical columns and scales the
// numeric ones. Output features are the categorical block followed by the
// numeric block.
type ColumnTransformer struct {
	Encoder OneHotEncoder
	Scaler  StandardScaler
	Fitted  bool
}

// NewColumnTransformer returns a transformer for the given categorical
// columns; every other column of the fitted frame is numeric.
func NewColumnTransformer(categorical []string) *ColumnTransformer {
	return &ColumnTransformer{
		Encoder: OneHotEncoder{DropFirst: true, IgnoreUnknown: true, Columns: categorical},
	}
}

// Fit learns categories and scaling from X.
func (t *ColumnTransformer) Fit(X *frame.Frame) error {
	cats, err := stringColumns(X, t.Encoder.Columns)
	if err != nil {
		return err
	}

	isCat := make(map[string]bool, len(t.Encoder.Columns))
	for _, c := range t.Encoder.Columns {
		isCat[c] = true
	}
	var numeric []string
	for _, name := range X.Names() {
		if !isCat[name] {
			numeric = append(numeric, name)
		}
	}
	nums, err := floatColumns(X, numeric)
	if err != nil {
		return err
	}

	t.Encoder.Fit(t.Encoder.Columns, cats)
	t.Scaler.Fit(numeric, nums)
	t.Fitted = true
	return nil
}

// Transform encodes X into a row-major matrix.
func (t *ColumnTransformer) Transform(X *frame.Frame) ([][]float64, error) {
	if !t.Fitted {
		return nil, ErrNotFitted
	}
	cats, err := stringColumns(X, t.Encoder.Columns)
	if err != nil {
		return nil, err
	}
	nums, err := floatColumns(X, t.Scaler.Columns)
	if err != nil {
		return nil, err
	}

	catWidth := t.Encoder.Width()
	width := catWidth + t.Scaler.Width()
	lookup := t.Encoder.lookups()

	n := X.Len()
	backing := make([]float64, n*width)
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := backing[i*width : (i+1)*width : (i+1)*width]
		if err := t.Encoder.encode(cats, i, row[:catWidth], lookup); err != nil {
			return nil, err
		}
		for j := range nums {
			row[catWidth+j] = t.Scaler.apply(j, nums[j][i])
		}
		out[i] = row
	}
	return out, nil
}

// FitTransform fits on X and returns its encoding.
func (t *ColumnTransformer) FitTransform(X *frame.Frame) ([][]float64, error) {
	if err := t.Fit(X); err != nil {
		return nil, err
	}
	return t.Transform(X)
}

// FeatureNames returns the output feature names in matrix column order.
func (t *ColumnTransformer) FeatureNames() []string {
	names := t.Encoder.FeatureNames()
	return append(names, t.Scaler.Columns...)
}

// CategoricalNames returns the input categorical columns.
func (t *ColumnTransformer) CategoricalNames() []string { return t.Encoder.Columns }

// NumericNames returns the input numeric columns.
func (t *ColumnTransformer) NumericNames() []string { return t.Scaler.Columns }

// Width returns the number of output features.
func (t *ColumnTransformer) Width() int { return t.Encoder.Width() + t.Scaler.Width() }

func stringColumns(X *frame.Frame, names []string) ([][]string, error) {
	out := make([][]string, len(names))
	for j, name := range names {
		vals, err := X.Strings(name)
		if err != nil {
			return nil, fmt.Errorf("categorical column: %w", err)
		}
		out[j] = vals
	}
	return out, nil
}

func floatColumns(X *frame.Frame, names []string) ([][]float64, error) {
	out := make([][]float64, len(names))
	for j, name := range names {
		vals, err := X.Floats(name)
		if err != nil {
			return nil, fmt.Errorf("numeric column: %w", err)
		}
		out[j] = vals
	}
	return out, nil
}
