// Package metrics scores binary fraud classifiers.
package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrSingleClass is returned by ranking metrics when y_true holds one label.
	ErrSingleClass = errors.New("metrics: only one class present in y_true")
	// ErrLength is returned when inputs differ in length or are empty.
	ErrLength = errors.New("metrics: inputs must be non-empty and of equal length")
)

func checkLabels(yTrue []int, n int) (pos int, err error) {
	if len(yTrue) == 0 || len(yTrue) != n {
		return 0, fmt.Errorf("%w: %d labels, %d values", ErrLength, len(yTrue), n)
	}
	for i, v := range yTrue {
		switch v {
		case 0:
		case 1:
			pos++
		default:
			return 0, fmt.Errorf("metrics: label %d at %d is not binary", v, i)
		}
	}
	return pos, nil
}

// ConfusionMatrix counts predictions; rows are the true label, columns the
// predicted label.
type ConfusionMatrix [2][2]int

// Confusion builds the confusion matrix of binary predictions.
func Confusion(yTrue, yPred []int) (ConfusionMatrix, error) {
	var c ConfusionMatrix
	if _, err := checkLabels(yTrue, len(yPred)); err != nil {
		return c, err
	}
	if _, err := checkLabels(yPred, len(yTrue)); err != nil {
		return c, err
	}
	for i := range yTrue {
		c[yTrue[i]][yPred[i]]++
	}
	return c, nil
}

// TN, FP, FN and TP unpack the matrix.
func (c ConfusionMatrix) TN() int { return c[0][0] }
func (c ConfusionMatrix) FP() int { return c[0][1] }
func (c ConfusionMatrix) FN() int { return c[1][0] }
func (c ConfusionMatrix) TP() int { return c[1][1] }

// String formats the matrix as a nested array, right-aligned.
func (c ConfusionMatrix) String() string {
	w := 1
	for _, row := range c {
		for _, v := range row {
			w = max(w, len(fmt.Sprint(v)))
		}
	}
	return fmt.Sprintf("[[%*d %*d]\n [%*d %*d]]", w, c[0][0], w, c[0][1], w, c[1][0], w, c[1][1])
}

// ClassMetrics holds the per-class scores of a report row.
type ClassMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is a binary classification report. Undefined ratios are 0.
type Report struct {
	Classes     [2]ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// ClassificationReport computes precision, recall, F1 and support for both
// classes plus accuracy, macro and support-weighted averages.
func ClassificationReport(yTrue, yPred []int) (Report, error) {
	c, err := Confusion(yTrue, yPred)
	if err != nil {
		return Report{}, err
	}
	n := len(yTrue)

	var r Report
	for k := 0; k < 2; k++ {
		tp := c[k][k]
		predicted := c[0][k] + c[1][k]
		support := c[k][0] + c[k][1]
		p, rec := ratio(tp, predicted), ratio(tp, support)
		r.Classes[k] = ClassMetrics{Precision: p, Recall: rec, F1: f1(p, rec), Support: support}
	}
	r.Accuracy = ratio(c.TN()+c.TP(), n)

	for _, m := range r.Classes {
		r.MacroAvg.Precision += m.Precision / 2
		r.MacroAvg.Recall += m.Recall / 2
		r.MacroAvg.F1 += m.F1 / 2
		w := float64(m.Support) / float64(n)
		r.WeightedAvg.Precision += m.Precision * w
		r.WeightedAvg.Recall += m.Recall * w
		r.WeightedAvg.F1 += m.F1 * w
	}
	r.MacroAvg.Support = n
	r.WeightedAvg.Support = n
	return r, nil
}

// String renders the report as a fixed-width table with two decimals.
func (r Report) String() string {
	const width = len("weighted avg")
	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	row := func(name string, m ClassMetrics) {
		fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, name, m.Precision, m.Recall, m.F1, m.Support)
	}
	row("0", r.Classes[0])
	row("1", r.Classes[1])
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	row("macro avg", r.MacroAvg)
	row("weighted avg", r.WeightedAvg)
	return b.String()
}

// ranked returns the scores in ascending order with the matching classes.
func ranked(yTrue []int, score []float64) ([]float64, []bool) {
	idx := make([]int, len(score))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return score[idx[a]] < score[idx[b]] })

	s := make([]float64, len(idx))
	classes := make([]bool, len(idx))
	for i, j := range idx {
		s[i] = score[j]
		classes[i] = yTrue[j] == 1
	}
	return s, classes
}

// ROCAUC returns the area under the ROC curve of score against yTrue.
// Tied scores form a single operating point.
func ROCAUC(yTrue []int, score []float64) (float64, error) {
	pos, err := checkLabels(yTrue, len(score))
	if err != nil {
		return 0, err
	}
	if pos == 0 || pos == len(yTrue) {
		return 0, ErrSingleClass
	}

	s, classes := ranked(yTrue, score)
	tpr, fpr, _ := stat.ROC(nil, s, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// AveragePrecision summarises the precision-recall curve as
// sum_k (R_k - R_{k-1}) * P_k over descending score thresholds.
func AveragePrecision(yTrue []int, score []float64) (float64, error) {
	pos, err := checkLabels(yTrue, len(score))
	if err != nil {
		return 0, err
	}
	if pos == 0 || pos == len(yTrue) {
		return 0, ErrSingleClass
	}

	s, classes := ranked(yTrue, score)
	var ap, prevRecall float64
	var tp, fp int
	for i := len(s) - 1; i >= 0; i-- {
		if classes[i] {
			tp++
		} else {
			fp++
		}
		if i > 0 && s[i-1] == s[i] {
			continue
		}
		recall := float64(tp) / float64(pos)
		precision := float64(tp) / float64(tp+fp)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
	}
	return ap, nil
}
