package sampling

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// ErrTooFewMinority is returned when the minority class cannot be interpolated.
var ErrTooFewMinority = errors.New("smote: minority class needs at least two rows")

// SMOTE oversamples the minority class of a binary problem until both
// classes have the same number of rows. Each synthetic row lies on the
// segment between a random minority row and one of its K nearest minority
// neighbours.
type SMOTE struct {
	K       int
	Seed    int64
	Workers int
}

// NewSMOTE returns a SMOTE sampler with k neighbours.
func NewSMOTE(k int, seed int64) *SMOTE {
	return &SMOTE{K: k, Seed: seed}
}

// Resample returns X and y with synthetic minority rows appended after the
// original rows. X is not modified.
func (s *SMOTE) Resample(ctx context.Context, X [][]float64, y []int) ([][]float64, []int, error) {
	if len(X) != len(y) {
		return nil, nil, fmt.Errorf("smote: %d rows but %d labels", len(X), len(y))
	}

	counts := ClassCounts(y)
	if len(counts) != 2 || counts[0] == 0 || counts[1] == 0 {
		return nil, nil, fmt.Errorf("smote: need labels 0 and 1, got %v", counts)
	}
	minority, majority := 0, 1
	if counts[0] >= counts[1] {
		minority, majority = 1, 0
	}
	nNew := counts[majority] - counts[minority]

	outX := make([][]float64, len(X), len(X)+nNew)
	copy(outX, X)
	outY := make([]int, len(y), len(y)+nNew)
	copy(outY, y)
	if nNew == 0 {
		return outX, outY, nil
	}

	var minRows [][]float64
	for i, label := range y {
		if label == minority {
			minRows = append(minRows, X[i])
		}
	}
	if len(minRows) < 2 {
		return nil, nil, ErrTooFewMinority
	}

	k := s.K
	if k < 1 {
		k = 5
	}
	if k > len(minRows)-1 {
		k = len(minRows) - 1
	}

	neighbours, err := s.nearest(ctx, minRows, k)
	if err != nil {
		return nil, nil, err
	}

	width := len(minRows[0])
	backing := make([]float64, nNew*width)
	diff := make([]float64, width)
	rng := rand.New(rand.NewSource(s.Seed))
	for n := 0; n < nNew; n++ {
		i := rng.Intn(len(minRows))
		nn := neighbours[i][rng.Intn(k)]
		gap := rng.Float64()

		row := backing[n*width : (n+1)*width : (n+1)*width]
		floats.SubTo(diff, minRows[nn], minRows[i])
		floats.AddScaledTo(row, minRows[i], gap, diff)

		outX = append(outX, row)
		outY = append(outY, minority)
	}
	return outX, outY, nil
}

type candidate struct {
	idx  int
	dist float64
}

// nearest returns, for every row, the indices of its k nearest other rows
// ordered by distance (ties broken by index).
func (s *SMOTE) nearest(ctx context.Context, rows [][]float64, k int) ([][]int, error) {
	n := len(rows)
	out := make([][]int, n)

	workers := s.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	rowsPerWorker := (n + workers - 1) / workers

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, n)
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			best := make([]candidate, 0, k+1)
			for i := start; i < end; i++ {
				if (i-start)%256 == 0 {
					if err := ctx.Err(); err != nil {
						errs[w] = err
						return
					}
				}

				best = best[:0]
				for j := 0; j < n; j++ {
					if j == i {
						continue
					}
					d := floats.Distance(rows[i], rows[j], 2)
					if len(best) == k && !less(candidate{j, d}, best[k-1]) {
						continue
					}
					best = insert(best, candidate{j, d}, k)
				}

				idx := make([]int, len(best))
				for c := range best {
					idx[c] = best[c].idx
				}
				out[i] = idx
			}
		}(w, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func less(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.idx < b.idx
}

// insert places c into the sorted slice, keeping at most k entries.
func insert(best []candidate, c candidate, k int) []candidate {
	pos := len(best)
	for pos > 0 && less(c, best[pos-1]) {
		pos--
	}
	if len(best) < k {
		best = append(best, candidate{})
	}
	copy(best[pos+1:], best[pos:len(best)-1])
	best[pos] = c
	return best
}
