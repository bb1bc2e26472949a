package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the timestamp format used by the transaction files.
const TimeLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{
	TimeLayout,
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02",
}

// ParseTime parses a timestamp in any of the supported layouts.
// An empty string yields the zero time.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Schema fixes the kind of selected columns. Columns not listed are
// inferred: float when every non-empty value parses, string otherwise.
type Schema map[string]Kind

// ReadCSV loads a CSV file with a header row.
func ReadCSV(filename string, schema Schema) (*Frame, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	f, err := Decode(file, schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return f, nil
}

// Decode reads CSV records from r. The first record is the header.
func Decode(r io.Reader, schema Schema) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("csv file is empty")
	}

	header := records[0]
	rows := records[1:]
	numCols := len(header)

	for i, record := range rows {
		if len(record) != numCols {
			return nil, fmt.Errorf("inconsistent number of columns at row %d", i+1)
		}
	}

	f := New()
	raw := make([]string, len(rows))
	for j, name := range header {
		name = strings.TrimSpace(name)
		for i, record := range rows {
			raw[i] = strings.TrimSpace(record[j])
		}

		kind, fixed := schema[name]
		if !fixed {
			kind = inferKind(raw)
		}

		col, err := parseColumn(name, kind, raw)
		if err != nil {
			return nil, err
		}
		if err := f.Add(col); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func inferKind(values []string) Kind {
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return String
		}
	}
	return Float
}

func parseColumn(name string, kind Kind, raw []string) (*Column, error) {
	col := &Column{Name: name, Kind: kind}
	switch kind {
	case Float:
		col.Floats = make([]float64, len(raw))
		for i, v := range raw {
			if v == "" {
				col.Floats[i] = math.NaN()
				continue
			}
			val, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse value at row %d, col %q: %w", i+1, name, err)
			}
			col.Floats[i] = val
		}
	case Time:
		col.Times = make([]time.Time, len(raw))
		for i, v := range raw {
			t, err := ParseTime(v)
			if err != nil {
				return nil, fmt.Errorf("failed to parse value at row %d, col %q: %w", i+1, name, err)
			}
			col.Times[i] = t
		}
	default:
		col.Strings = make([]string, len(raw))
		copy(col.Strings, raw)
	}
	return col, nil
}

// WriteCSV writes the frame with a header row.
func (f *Frame) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.Names()); err != nil {
		return err
	}
	record := make([]string, len(f.cols))
	for i := 0; i < f.rows; i++ {
		for j, c := range f.cols {
			record[j] = c.Format(i)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
