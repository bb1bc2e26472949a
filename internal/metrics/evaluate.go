package metrics

import (
	"errors"
	"fmt"
	"math"
)

// Evaluation bundles the scores reported for one fitted model.
type Evaluation struct {
	Report    Report
	Confusion ConfusionMatrix
	ROCAUC    float64
	PRAUC     float64
}

// Evaluate scores probabilities against the truth, thresholding at 0.5.
// When the truth holds a single class the AUC fields are NaN and the
// report is still returned.
func Evaluate(yTrue []int, proba []float64) (Evaluation, error) {
	pred := make([]int, len(proba))
	for i, p := range proba {
		if p >= 0.5 {
			pred[i] = 1
		}
	}

	var ev Evaluation
	var err error
	if ev.Report, err = ClassificationReport(yTrue, pred); err != nil {
		return ev, err
	}
	if ev.Confusion, err = Confusion(yTrue, pred); err != nil {
		return ev, err
	}

	ev.ROCAUC, err = ROCAUC(yTrue, proba)
	if errors.Is(err, ErrSingleClass) {
		ev.ROCAUC, ev.PRAUC = math.NaN(), math.NaN()
		return ev, nil
	}
	if err != nil {
		return ev, err
	}
	ev.PRAUC, err = AveragePrecision(yTrue, proba)
	return ev, err
}

// String renders the evaluation the way it is printed after training.
func (ev Evaluation) String() string {
	return fmt.Sprintf("Classification Report:\n%s\nConfusion Matrix:\n%s\nROC AUC: %.4f\nPR AUC: %.4f\n",
		ev.Report, ev.Confusion, ev.ROCAUC, ev.PRAUC)
}
