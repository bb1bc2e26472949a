// Package ipgeo maps numeric IPv4 addresses to countries using a range table.
package ipgeo

import (
	"fmt"
	"sort"

	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
)

// Unknown is returned for addresses outside every range.
const Unknown = "Unknown"

// Column names of the range table.
const (
	LowerColumn   = "lower_bound_ip_address"
	UpperColumn   = "upper_bound_ip_address"
	CountryColumn = "country"
)

// Range is an inclusive address interval.
type Range struct {
	Lower   int64
	Upper   int64
	Country string
}

// Table is a sorted, read-only set of ranges. It is safe for concurrent use.
type Table struct {
	ranges []Range
}

// NewTable builds a table from ranges. Ranges are ordered by lower bound;
// ties keep their input order.
func NewTable(ranges []Range) *Table {
	rs := make([]Range, len(ranges))
	copy(rs, ranges)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Lower < rs[j].Lower })
	return &Table{ranges: rs}
}

// FromFrame builds a table from the ip_data frame. Lower bounds are
// truncated to integers.
func FromFrame(f *frame.Frame) (*Table, error) {
	lower, err := f.Floats(LowerColumn)
	if err != nil {
		return nil, fmt.Errorf("ip table: %w", err)
	}
	upper, err := f.Floats(UpperColumn)
	if err != nil {
		return nil, fmt.Errorf("ip table: %w", err)
	}
	country, err := f.Strings(CountryColumn)
	if err != nil {
		return nil, fmt.Errorf("ip table: %w", err)
	}

	ranges := make([]Range, 0, len(lower))
	for i := range lower {
		ranges = append(ranges, Range{
			Lower:   int64(lower[i]),
			Upper:   int64(upper[i]),
			Country: country[i],
		})
	}
	return NewTable(ranges), nil
}

// Len returns the number of ranges.
func (t *Table) Len() int { return len(t.ranges) }

// Lookup returns the country of the range containing ip, or Unknown.
func (t *Table) Lookup(ip int64) string {
	// first range whose lower bound exceeds ip
	i := sort.Search(len(t.ranges), func(i int) bool { return t.ranges[i].Lower > ip })
	if i == 0 {
		return Unknown
	}
	// ranges are assumed disjoint, so only the predecessor can contain ip
	if r := t.ranges[i-1]; r.Upper >= ip {
		return r.Country
	}
	return Unknown
}

// LookupAll maps every address.
func (t *Table) LookupAll(ips []int64) []string {
	out := make([]string, len(ips))
	for i, ip := range ips {
		out[i] = t.Lookup(ip)
	}
	return out
}
