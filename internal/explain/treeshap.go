package explain

import (
	"github.com/FlavioCFOliveira/frauddetection/internal/model"
)

// pathElem is one feature on the active root-to-node path. zero is the
// fraction of training cover that flows down the path when the feature is
// missing, one is 1 when x follows the path and 0 otherwise, and weight is
// the share of permutations the element accounts for.
type pathElem struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

func extendPath(path []pathElem, depth int, zero, one float64, feature int) {
	path[depth] = pathElem{feature: feature, zero: zero, one: one}
	if depth == 0 {
		path[depth].weight = 1
	}
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / float64(depth+1)
		path[i].weight = zero * path[i].weight * float64(depth-i) / float64(depth+1)
	}
}

// unwindPath undoes extendPath for the element at index k.
func unwindPath(path []pathElem, depth, k int) {
	one, zero := path[k].one, path[k].zero
	next := path[depth].weight
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * float64(depth+1) / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/float64(depth+1)
		} else {
			path[i].weight = path[i].weight * float64(depth+1) / (zero * float64(depth-i))
		}
	}
	for i := k; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

// unwoundPathSum is the total permutation weight of the path with
// element k removed, without modifying the path.
func unwoundPathSum(path []pathElem, depth, k int) float64 {
	one, zero := path[k].one, path[k].zero
	next := path[depth].weight
	var total float64
	for i := depth - 1; i >= 0; i-- {
		switch {
		case one != 0:
			tmp := next * float64(depth+1) / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/float64(depth+1)
		case zero != 0:
			total += path[i].weight / zero / (float64(depth-i) / float64(depth+1))
		}
	}
	return total
}

func coverFraction(child, parent float64) float64 {
	if parent <= 0 {
		return 0.5
	}
	return child / parent
}

// treeSHAP adds the exact path-dependent SHAP values of one tree at x to phi.
func treeSHAP(t model.Tree, x, phi []float64) {
	var recurse func(node int, parent []pathElem, depth int, zero, one float64, feature int)
	recurse = func(node int, parent []pathElem, depth int, zero, one float64, feature int) {
		path := make([]pathElem, depth+1)
		copy(path, parent[:depth])
		extendPath(path, depth, zero, one, feature)

		n := t.Nodes[node]
		if n.IsLeaf() {
			for i := 1; i <= depth; i++ {
				el := path[i]
				phi[el.feature] += unwoundPathSum(path, depth, i) * (el.one - el.zero) * n.Value
			}
			return
		}

		hot, cold := n.Right, n.Left
		if x[n.Feature] < n.Threshold {
			hot, cold = n.Left, n.Right
		}
		hotZero := coverFraction(t.Nodes[hot].Cover, n.Cover)
		coldZero := coverFraction(t.Nodes[cold].Cover, n.Cover)

		// a feature already on the path is unwound and re-entered with
		// the combined fractions
		inZero, inOne := 1.0, 1.0
		k := 0
		for ; k <= depth; k++ {
			if path[k].feature == n.Feature {
				break
			}
		}
		if k <= depth {
			inZero, inOne = path[k].zero, path[k].one
			unwindPath(path, depth, k)
			depth--
		}

		recurse(hot, path, depth+1, hotZero*inZero, inOne, n.Feature)
		recurse(cold, path, depth+1, coldZero*inZero, 0, n.Feature)
	}
	recurse(0, nil, 0, 1, 1, -1)
}

// expectedValue is the cover-weighted mean leaf value of a tree.
func expectedValue(t model.Tree) float64 {
	root := t.Nodes[0].Cover
	if root <= 0 {
		return 0
	}
	var sum float64
	for _, n := range t.Nodes {
		if n.IsLeaf() {
			sum += n.Cover * n.Value
		}
	}
	return sum / root
}
