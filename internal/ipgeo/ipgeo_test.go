package ipgeo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
)

func TestLookup(t *testing.T) {
	table := NewTable([]Range{
		{Lower: 200, Upper: 299, Country: "Brazil"},
		{Lower: 16777216, Upper: 16777471, Country: "Australia"},
		{Lower: 100, Upper: 150, Country: "Japan"},
	})

	tests := []struct {
		ip   int64
		want string
	}{
		{99, Unknown},
		{100, "Japan"},
		{150, "Japan"},
		{151, Unknown},
		{250, "Brazil"},
		{299, "Brazil"},
		{16777300, "Australia"},
		{16777472, Unknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, table.Lookup(tt.ip), "ip %d", tt.ip)
	}
	assert.Equal(t, []string{"Japan", Unknown}, table.LookupAll([]int64{120, 5}))
}

func TestLookupEmpty(t *testing.T) {
	assert.Equal(t, Unknown, NewTable(nil).Lookup(42))
}

func TestFromFrame(t *testing.T) {
	data := `lower_bound_ip_address,upper_bound_ip_address,country
16777216.0,16777471,Australia
16777472.9,16777727,China
`
	f, err := frame.Decode(strings.NewReader(data), nil)
	require.NoError(t, err)

	table, err := FromFrame(f)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, "China", table.Lookup(16777472))

	bad, err := f.Drop(CountryColumn)
	require.NoError(t, err)
	_, err = FromFrame(bad)
	assert.ErrorIs(t, err, frame.ErrColumnNotFound)
}

func BenchmarkLookup(b *testing.B) {
	ranges := make([]Range, 100000)
	for i := range ranges {
		ranges[i] = Range{Lower: int64(i) * 1000, Upper: int64(i)*1000 + 999, Country: "X"}
	}
	table := NewTable(ranges)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		table.Lookup(int64(i*7919) % 100000000)
	}
}
