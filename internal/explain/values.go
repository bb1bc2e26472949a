package explain

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/FlavioCFOliveira/frauddetection/internal/model"
)

// Values holds per-row feature attributions in log-odds space. For every
// row, Expected plus the sum of its Phi equals the model margin.
type Values struct {
	Features []string
	Phi      [][]float64
	Expected float64
}

// Importance is the mean absolute attribution of one feature.
type Importance struct {
	Feature string
	MeanAbs float64
}

// Compute dispatches to the explainer matching the classifier.
func Compute(ctx context.Context, clf model.Classifier, X [][]float64, features []string) (*Values, error) {
	switch m := clf.(type) {
	case *model.GradientBoosting:
		return TreeSHAP(ctx, m, X, features)
	case *model.LogisticRegression:
		return LinearSHAP(m, X, features)
	}
	return nil, fmt.Errorf("explain: no explainer for %T", clf)
}

// TreeSHAP computes exact path-dependent SHAP values of a boosted ensemble.
// Rows are explained in parallel.
func TreeSHAP(ctx context.Context, m *model.GradientBoosting, X [][]float64, features []string) (*Values, error) {
	if m.NFeatures == 0 {
		return nil, model.ErrNotFitted
	}
	if len(features) != m.NFeatures {
		return nil, fmt.Errorf("explain: %d feature names for %d features", len(features), m.NFeatures)
	}

	v := &Values{
		Features: features,
		Phi:      make([][]float64, len(X)),
		Expected: m.BaseMargin,
	}
	for _, t := range m.Trees {
		v.Expected += expectedValue(t)
	}

	if err := model.CheckWidth(X, m.NFeatures); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, x := range X {
		i, x := i, x
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			phi := make([]float64, m.NFeatures)
			for _, t := range m.Trees {
				treeSHAP(t, x, phi)
			}
			v.Phi[i] = phi
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return v, nil
}

// LinearSHAP attributes coef_j * (x_j - mean_j) to every feature, with the
// means taken over X.
func LinearSHAP(m *model.LogisticRegression, X [][]float64, features []string) (*Values, error) {
	if m.Coef == nil {
		return nil, model.ErrNotFitted
	}
	d := len(m.Coef)
	if len(features) != d {
		return nil, fmt.Errorf("explain: %d feature names for %d features", len(features), d)
	}
	if len(X) == 0 {
		return nil, fmt.Errorf("explain: no rows")
	}

	if err := model.CheckWidth(X, d); err != nil {
		return nil, err
	}

	mean := make([]float64, d)
	for _, x := range X {
		for j, v := range x {
			mean[j] += v / float64(len(X))
		}
	}

	v := &Values{Features: features, Phi: make([][]float64, len(X)), Expected: m.Intercept}
	for j, c := range m.Coef {
		v.Expected += c * mean[j]
	}
	for i, x := range X {
		phi := make([]float64, d)
		for j, c := range m.Coef {
			phi[j] = c * (x[j] - mean[j])
		}
		v.Phi[i] = phi
	}
	return v, nil
}

// Summary returns the mean |phi| of every feature, largest first.
func (v *Values) Summary() []Importance {
	out := make([]Importance, len(v.Features))
	for j, name := range v.Features {
		out[j].Feature = name
		for _, phi := range v.Phi {
			out[j].MeanAbs += math.Abs(phi[j])
		}
		if len(v.Phi) > 0 {
			out[j].MeanAbs /= float64(len(v.Phi))
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].MeanAbs > out[b].MeanAbs })
	return out
}

// Reconstruct returns Expected plus the attributions of row i, which
// equals the model margin for that row.
func (v *Values) Reconstruct(i int) float64 {
	s := v.Expected
	for _, p := range v.Phi[i] {
		s += p
	}
	return s
}
