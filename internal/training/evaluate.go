package training

import (
	"github.com/neurasky/neurasky/internal/artifact"
	"github.com/neurasky/neurasky/internal/gbdt"
	"github.com/neurasky/neurasky/internal/risk"
)

// Evaluation holds held-out classification metrics.
type Evaluation struct {
	Accuracy           float64
	Precision          float64
	Recall             float64
	F1                 float64
	ROCAUC             float64
	DelayDetectionRate float64
	FalseAlarmRate     float64
	Confusion          artifact.Confusion
}

// Evaluate scores probabilities against binary labels, predicting delayed
// with the same rule the serving path uses.
func Evaluate(labels, probs []float64) Evaluation {
	var c artifact.Confusion
	for i, y := range labels {
		delayed := risk.OutcomeFor(probs[i]) == risk.Delayed
		switch {
		case y == 1 && delayed:
			c.TP++
		case y == 1:
			c.FN++
		case delayed:
			c.FP++
		default:
			c.TN++
		}
	}

	e := Evaluation{Confusion: c, ROCAUC: gbdt.AUC(labels, probs)}
	e.Accuracy = ratio(c.TP+c.TN, len(labels))
	e.Precision = ratio(c.TP, c.TP+c.FP)
	e.Recall = ratio(c.TP, c.TP+c.FN)
	if e.Precision+e.Recall > 0 {
		e.F1 = 2 * e.Precision * e.Recall / (e.Precision + e.Recall)
	}
	e.DelayDetectionRate = e.Recall
	e.FalseAlarmRate = ratio(c.FP, c.FP+c.TN)
	return e
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
