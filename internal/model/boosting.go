package model

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/FlavioCFOliveira/frauddetection/internal/activations"
	"github.com/FlavioCFOliveira/frauddetection/internal/loss"
)

// Node is one node of a flat regression tree. A node is a leaf when Left
// is negative. Rows with x[Feature] < Threshold go left. Cover is the sum
// of the hessians of the training rows that reached the node.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Cover     float64
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return n.Left < 0 }

// Tree is a regression tree stored in preorder; Nodes[0] is the root.
type Tree struct {
	Nodes []Node
}

// Predict returns the leaf value reached by x.
func (t Tree) Predict(x []float64) float64 {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		n := t.Nodes[i]
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// GradientBoosting is a gradient-boosted tree ensemble for the binary
// logistic objective. Trees are grown depth-wise on quantile-binned
// features using second-order gain:
//
//	gain = 1/2 [GL^2/(HL+lambda) + GR^2/(HR+lambda) - G^2/(H+lambda)] - gamma
//
// Leaf values are -G/(H+lambda) shrunk by LearningRate. The base score is
// 0.5, so the ensemble margin starts at zero.
type GradientBoosting struct {
	NEstimators    int
	LearningRate   float64
	MaxDepth       int
	Lambda         float64
	Gamma          float64
	MinChildWeight float64
	ScalePosWeight float64
	MaxBins        int
	Workers        int

	Cuts       [][]float64
	Trees      []Tree
	BaseMargin float64
	NFeatures  int

	callbacks callbacks
}

// NewGradientBoosting returns a model with 150 trees of depth 5.
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{
		NEstimators:    150,
		LearningRate:   0.1,
		MaxDepth:       5,
		Lambda:         1,
		MinChildWeight: 1,
		ScalePosWeight: 1,
		MaxBins:        256,
	}
}

func (m *GradientBoosting) Name() string { return BoostName }

func (m *GradientBoosting) SetCallbacks(cbs ...Callback) { m.callbacks = cbs }

func (m *GradientBoosting) workers() int {
	if m.Workers > 0 {
		return m.Workers
	}
	return runtime.NumCPU()
}

// Fit grows NEstimators trees, fewer if a callback stops training.
func (m *GradientBoosting) Fit(ctx context.Context, X [][]float64, y []int) error {
	yf, d, err := targets(X, y)
	if err != nil {
		return err
	}
	n := len(X)

	maxBins := m.MaxBins
	if maxBins < 2 {
		maxBins = 256
	}
	maxBins = min(maxBins, math.MaxUint16)
	m.Cuts = make([][]float64, d)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())
	for f := 0; f < d; f++ {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			col := make([]float64, n)
			for i, row := range X {
				col[i] = row[f]
			}
			m.Cuts[f] = quantileCuts(col, maxBins)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	b := &treeBuilder{
		n:        n,
		d:        d,
		cuts:     m.Cuts,
		bins:     make([]uint16, n*d),
		grad:     make([]float64, n),
		hess:     make([]float64, n),
		maxDepth: m.MaxDepth,
		lambda:   m.Lambda,
		gamma:    m.Gamma,
		minChild: m.MinChildWeight,
		eta:      m.LearningRate,
		workers:  m.workers(),
	}
	for f := 0; f < d; f++ {
		col := b.bins[f*n : (f+1)*n]
		for i, row := range X {
			col[i] = uint16(binOf(m.Cuts[f], row[f]))
		}
	}

	var weights []float64
	if spw := m.ScalePosWeight; spw > 0 && spw != 1 {
		weights = make([]float64, n)
		for i, v := range yf {
			weights[i] = 1
			if v == 1 {
				weights[i] = spw
			}
		}
	}
	bce := loss.BCEWithLogitsLoss{Weights: weights}

	m.BaseMargin = activations.Logit(0.5)
	m.NFeatures = d
	m.Trees = m.Trees[:0]
	margin := make([]float64, n)
	for i := range margin {
		margin[i] = m.BaseMargin
	}

	m.callbacks.begin(m.Name(), m.NEstimators)
	defer m.callbacks.end(m.Name())

	for iter := 1; iter <= m.NEstimators; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		bce.Gradient(margin, yf, b.grad)
		bce.Hessian(margin, b.hess)

		tree, err := b.build(ctx, margin)
		if err != nil {
			return err
		}
		m.Trees = append(m.Trees, tree)

		if m.callbacks.iteration(m.Name(), iter, bce.Forward(margin, yf)) {
			break
		}
	}
	return nil
}

// Margin returns the raw log-odds of every row.
func (m *GradientBoosting) Margin(X [][]float64) ([]float64, error) {
	if m.NFeatures == 0 {
		return nil, ErrNotFitted
	}
	if err := CheckWidth(X, m.NFeatures); err != nil {
		return nil, err
	}

	out := make([]float64, len(X))
	numWorkers := m.workers()
	chunkSize := (len(X) + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, len(X))
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				out[i] = m.margin(X[i])
			}
		}(start, end)
	}
	wg.Wait()
	return out, nil
}

func (m *GradientBoosting) margin(x []float64) float64 {
	s := m.BaseMargin
	for _, t := range m.Trees {
		s += t.Predict(x)
	}
	return s
}

// PredictProba returns P(y=1) for every row.
func (m *GradientBoosting) PredictProba(X [][]float64) ([]float64, error) {
	out, err := m.Margin(X)
	if err != nil {
		return nil, err
	}
	activations.Sigmoid{}.ActivateBatch(out, out)
	return out, nil
}

// Predict thresholds PredictProba at 0.5.
func (m *GradientBoosting) Predict(X [][]float64) ([]int, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return Threshold(proba), nil
}

// quantileCuts returns strictly increasing split points for one feature.
// Columns with at most maxBins distinct values are cut halfway between
// neighbours; wider columns are cut at maxBins-1 quantiles.
func quantileCuts(col []float64, maxBins int) []float64 {
	sorted := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Float64s(sorted)

	uniq := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) <= maxBins {
		cuts := make([]float64, 0, len(uniq)-1)
		for i := 1; i < len(uniq); i++ {
			cuts = append(cuts, uniq[i-1]+(uniq[i]-uniq[i-1])/2)
		}
		return cuts
	}

	n := len(sorted)
	cuts := make([]float64, 0, maxBins-1)
	for b := 1; b < maxBins; b++ {
		v := sorted[b*n/maxBins]
		if v > sorted[0] && (len(cuts) == 0 || v > cuts[len(cuts)-1]) {
			cuts = append(cuts, v)
		}
	}
	return cuts
}

// binOf returns the number of cuts at or below x. NaN lands in the last bin,
// matching Tree.Predict which sends NaN right.
func binOf(cuts []float64, x float64) int {
	return sort.Search(len(cuts), func(i int) bool { return cuts[i] > x })
}

type split struct {
	feature int
	bin     int
	gain    float64
}

type treeBuilder struct {
	n, d     int
	cuts     [][]float64
	bins     []uint16 // column-major, bins[f*n+i]
	grad     []float64
	hess     []float64
	maxDepth int
	lambda   float64
	gamma    float64
	minChild float64
	eta      float64
	workers  int

	nodes []Node
}

// build grows one tree and adds its leaf values to margin.
func (b *treeBuilder) build(ctx context.Context, margin []float64) (Tree, error) {
	rows := make([]int, b.n)
	for i := range rows {
		rows[i] = i
	}
	b.nodes = nil
	if _, err := b.grow(ctx, rows, 0, margin); err != nil {
		return Tree{}, err
	}
	return Tree{Nodes: b.nodes}, nil
}

func (b *treeBuilder) grow(ctx context.Context, rows []int, depth int, margin []float64) (int, error) {
	var G, H float64
	for _, i := range rows {
		G += b.grad[i]
		H += b.hess[i]
	}

	idx := len(b.nodes)
	value := -G / (H + b.lambda) * b.eta
	b.nodes = append(b.nodes, Node{Feature: -1, Left: -1, Right: -1, Value: value, Cover: H})

	if depth < b.maxDepth && len(rows) >= 2 {
		s, err := b.bestSplit(ctx, rows, G, H)
		if err != nil {
			return 0, err
		}
		if s.feature >= 0 {
			left, right := b.partition(rows, s)
			l, err := b.grow(ctx, left, depth+1, margin)
			if err != nil {
				return 0, err
			}
			r, err := b.grow(ctx, right, depth+1, margin)
			if err != nil {
				return 0, err
			}
			b.nodes[idx].Feature = s.feature
			b.nodes[idx].Threshold = b.cuts[s.feature][s.bin]
			b.nodes[idx].Left = l
			b.nodes[idx].Right = r
			return idx, nil
		}
	}

	for _, i := range rows {
		margin[i] += value
	}
	return idx, nil
}

// bestSplit scans the histograms of all features in parallel and returns
// the split with the largest positive gain, or feature -1.
func (b *treeBuilder) bestSplit(ctx context.Context, rows []int, G, H float64) (split, error) {
	best := make([]split, b.d)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for f := 0; f < b.d; f++ {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			best[f] = b.featureSplit(f, rows, G, H)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return split{}, err
	}

	out := split{feature: -1}
	for _, s := range best {
		if s.feature >= 0 && s.gain > out.gain {
			out = s
		}
	}
	return out, nil
}

func (b *treeBuilder) featureSplit(f int, rows []int, G, H float64) split {
	s := split{feature: -1}
	nb := len(b.cuts[f]) + 1
	if nb < 2 {
		return s
	}

	hg := make([]float64, nb)
	hh := make([]float64, nb)
	hc := make([]int, nb)
	col := b.bins[f*b.n : (f+1)*b.n]
	for _, i := range rows {
		k := col[i]
		hg[k] += b.grad[i]
		hh[k] += b.hess[i]
		hc[k]++
	}

	parent := G * G / (H + b.lambda)
	var GL, HL float64
	var nL int
	for k := 0; k < nb-1; k++ {
		GL += hg[k]
		HL += hh[k]
		nL += hc[k]
		GR, HR := G-GL, H-HL
		if nL == 0 || nL == len(rows) || HL < b.minChild || HR < b.minChild {
			continue
		}
		gain := 0.5*(GL*GL/(HL+b.lambda)+GR*GR/(HR+b.lambda)-parent) - b.gamma
		if gain > s.gain {
			s = split{feature: f, bin: k, gain: gain}
		}
	}
	return s
}

func (b *treeBuilder) partition(rows []int, s split) (left, right []int) {
	col := b.bins[s.feature*b.n : (s.feature+1)*b.n]
	for _, i := range rows {
		if int(col[i]) <= s.bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}
