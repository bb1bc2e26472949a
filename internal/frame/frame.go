// Package frame provides a small column-oriented table for transaction data.
package frame

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Kind is the storage type of a column.
type Kind int

const (
	Float Kind = iota
	String
	Time
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case String:
		return "string"
	case Time:
		return "time"
	}
	return "unknown"
}

var (
	// ErrColumnNotFound is returned when a named column does not exist.
	ErrColumnNotFound = errors.New("column not found")
	// ErrKindMismatch is returned when a column is read as the wrong kind.
	ErrKindMismatch = errors.New("column kind mismatch")
	// ErrLengthMismatch is returned when an added column has the wrong length.
	ErrLengthMismatch = errors.New("column length mismatch")
)

// Column holds the values of one named column. Missing floats are NaN and
// missing times are the zero time.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
	Times   []time.Time
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	switch c.Kind {
	case Float:
		return len(c.Floats)
	case String:
		return len(c.Strings)
	default:
		return len(c.Times)
	}
}

// IsMissing reports whether row i holds no value.
func (c *Column) IsMissing(i int) bool {
	switch c.Kind {
	case Float:
		return math.IsNaN(c.Floats[i])
	case String:
		return c.Strings[i] == ""
	default:
		return c.Times[i].IsZero()
	}
}

// Format renders row i as text, used for row keys and CSV output.
func (c *Column) Format(i int) string {
	switch c.Kind {
	case Float:
		return strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
	case String:
		return c.Strings[i]
	default:
		if c.Times[i].IsZero() {
			return ""
		}
		return c.Times[i].Format(TimeLayout)
	}
}

func (c *Column) take(idx []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Float:
		out.Floats = make([]float64, len(idx))
		for i, j := range idx {
			out.Floats[i] = c.Floats[j]
		}
	case String:
		out.Strings = make([]string, len(idx))
		for i, j := range idx {
			out.Strings[i] = c.Strings[j]
		}
	default:
		out.Times = make([]time.Time, len(idx))
		for i, j := range idx {
			out.Times[i] = c.Times[j]
		}
	}
	return out
}

// Frame is an ordered set of equally long columns. Operations that change
// shape return a new Frame; column data is shared where it is not modified.
type Frame struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New returns an empty frame.
func New() *Frame {
	return &Frame{index: make(map[string]int)}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.rows }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.cols) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the named column.
func (f *Frame) Column(name string) (*Column, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return f.cols[i], nil
}

func (f *Frame) typed(name string, kind Kind) (*Column, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != kind {
		return nil, fmt.Errorf("%w: %q is %s, not %s", ErrKindMismatch, name, c.Kind, kind)
	}
	return c, nil
}

// Floats returns the values of a float column.
func (f *Frame) Floats(name string) ([]float64, error) {
	c, err := f.typed(name, Float)
	if err != nil {
		return nil, err
	}
	return c.Floats, nil
}

// Strings returns the values of a string column.
func (f *Frame) Strings(name string) ([]string, error) {
	c, err := f.typed(name, String)
	if err != nil {
		return nil, err
	}
	return c.Strings, nil
}

// Times returns the values of a time column.
func (f *Frame) Times(name string) ([]time.Time, error) {
	c, err := f.typed(name, Time)
	if err != nil {
		return nil, err
	}
	return c.Times, nil
}

// Add appends or replaces a column.
func (f *Frame) Add(c *Column) error {
	if len(f.cols) > 0 && c.Len() != f.rows {
		return fmt.Errorf("%w: %q has %d rows, frame has %d", ErrLengthMismatch, c.Name, c.Len(), f.rows)
	}
	if i, ok := f.index[c.Name]; ok {
		f.cols[i] = c
		return nil
	}
	f.index[c.Name] = len(f.cols)
	f.cols = append(f.cols, c)
	f.rows = c.Len()
	return nil
}

// AddFloat appends or replaces a float column.
func (f *Frame) AddFloat(name string, values []float64) error {
	return f.Add(&Column{Name: name, Kind: Float, Floats: values})
}

// AddString appends or replaces a string column.
func (f *Frame) AddString(name string, values []string) error {
	return f.Add(&Column{Name: name, Kind: String, Strings: values})
}

// AddTime appends or replaces a time column.
func (f *Frame) AddTime(name string, values []time.Time) error {
	return f.Add(&Column{Name: name, Kind: Time, Times: values})
}

// Select returns a frame holding only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	out := New()
	out.rows = f.rows
	for _, name := range names {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		out.index[name] = len(out.cols)
		out.cols = append(out.cols, c)
	}
	return out, nil
}

// Drop returns a frame without the named columns. Every name must exist.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		if !f.Has(name) {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		drop[name] = true
	}
	keep := make([]string, 0, len(f.cols))
	for _, c := range f.cols {
		if !drop[c.Name] {
			keep = append(keep, c.Name)
		}
	}
	return f.Select(keep...)
}

// Take returns the rows at idx, in that order.
func (f *Frame) Take(idx []int) *Frame {
	out := New()
	out.rows = len(idx)
	for _, c := range f.cols {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.take(idx))
	}
	return out
}

// RowKey renders row i across all columns.
func (f *Frame) RowKey(i int) string {
	var sb strings.Builder
	for j, c := range f.cols {
		if j > 0 {
			sb.WriteByte(0x1f)
		}
		sb.WriteString(c.Format(i))
	}
	return sb.String()
}

// DropDuplicates removes rows equal to an earlier row in every column.
// The first occurrence is kept and row order is preserved.
func (f *Frame) DropDuplicates() *Frame {
	seen := make(map[string]struct{}, f.rows)
	keep := make([]int, 0, f.rows)
	for i := 0; i < f.rows; i++ {
		key := f.RowKey(i)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}
	if len(keep) == f.rows {
		return f
	}
	return f.Take(keep)
}

// DropMissing removes rows with a missing value in any of the named columns.
func (f *Frame) DropMissing(names ...string) (*Frame, error) {
	cols := make([]*Column, len(names))
	for i, name := range names {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}

	keep := make([]int, 0, f.rows)
	for i := 0; i < f.rows; i++ {
		missing := false
		for _, c := range cols {
			if c.IsMissing(i) {
				missing = true
				break
			}
		}
		if !missing {
			keep = append(keep, i)
		}
	}
	if len(keep) == f.rows {
		return f, nil
	}
	return f.Take(keep), nil
}

// Sample draws n rows without replacement. n is capped at Len.
func (f *Frame) Sample(n int, seed int64) *Frame {
	if n > f.rows {
		n = f.rows
	}
	perm := rand.New(rand.NewSource(seed)).Perm(f.rows)
	return f.Take(perm[:n])
}
