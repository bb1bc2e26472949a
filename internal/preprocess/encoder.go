// Package preprocess turns frames into dense numeric matrices.
package preprocess

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFitted is returned when a transform is used before Fit.
var ErrNotFitted = errors.New("preprocess: transformer not fitted")

// ErrUnknownCategory is returned for a category not seen during Fit when
// IgnoreUnknown is false.
var ErrUnknownCategory = errors.New("preprocess: unknown category")

// OneHotEncoder encodes string columns as indicator vectors. Categories are
// sorted per column. With DropFirst the first category of each column is
// dropped. With IgnoreUnknown categories not seen during Fit encode as all
// zeros, otherwise they are an error.
type OneHotEncoder struct {
	DropFirst     bool
	IgnoreUnknown bool

	Columns    []string
	Categories [][]string
}

// Fit learns the categories of each column.
func (e *OneHotEncoder) Fit(columns []string, values [][]string) {
	e.Columns = append([]string(nil), columns...)
	e.Categories = make([][]string, len(columns))
	for j, col := range values {
		seen := make(map[string]struct{})
		for _, v := range col {
			seen[v] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		e.Categories[j] = cats
	}
}

func (e *OneHotEncoder) kept(j int) []string {
	cats := e.Categories[j]
	if e.DropFirst && len(cats) > 0 {
		return cats[1:]
	}
	return cats
}

// Width returns the number of output features.
func (e *OneHotEncoder) Width() int {
	w := 0
	for j := range e.Categories {
		w += len(e.kept(j))
	}
	return w
}

// FeatureNames returns "<column>_<category>" for every output feature.
func (e *OneHotEncoder) FeatureNames() []string {
	names := make([]string, 0, e.Width())
	for j, col := range e.Columns {
		for _, cat := range e.kept(j) {
			names = append(names, col+"_"+cat)
		}
	}
	return names
}

// encode writes the indicators of row i into dst, which must have Width
// zeroed entries.
func (e *OneHotEncoder) encode(values [][]string, i int, dst []float64, lookup []map[string]int) error {
	offset := 0
	for j := range e.Categories {
		v := values[j][i]
		k, ok := lookup[j][v]
		switch {
		case !ok && !e.IgnoreUnknown:
			return fmt.Errorf("%w %q in column %s", ErrUnknownCategory, v, e.Columns[j])
		case ok && k >= 0:
			dst[offset+k] = 1
		}
		offset += len(e.kept(j))
	}
	return nil
}

// lookups maps every fitted category to its output index; a dropped first
// category maps to -1.
func (e *OneHotEncoder) lookups() []map[string]int {
	lookup := make([]map[string]int, len(e.Categories))
	for j, cats := range e.Categories {
		lookup[j] = make(map[string]int, len(cats))
		for k, cat := range cats {
			if e.DropFirst {
				k--
			}
			lookup[j][cat] = k
		}
	}
	return lookup
}
