package artifact

import (
	"fmt"
	"io"
	"strings"
)

const reportTopFeatures = 10

// WriteReport renders m as the plain-text summary stored beside a bundle.
func WriteReport(w io.Writer, m Metrics) error {
	var b strings.Builder
	b.WriteString("FLIGHT DELAY PREDICTION MODEL METRICS\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	fmt.Fprintf(&b, "Bundle:         %s\n", m.BundleID)
	fmt.Fprintf(&b, "Schema Version: %s\n", m.SchemaVersion)
	fmt.Fprintf(&b, "Training Date:  %s\n", m.TrainedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Dataset Size:   %d flights (%d dropped)\n", m.DatasetSize, m.DroppedRows)
	fmt.Fprintf(&b, "Split:          %d train / %d validation / %d test\n\n", m.TrainSize, m.ValidationSize, m.TestSize)

	b.WriteString("PERFORMANCE METRICS:\n")
	fmt.Fprintf(&b, "Accuracy:  %.2f%%\n", m.Accuracy*100)
	fmt.Fprintf(&b, "Precision: %.4f\n", m.Precision)
	fmt.Fprintf(&b, "Recall:    %.4f\n", m.Recall)
	fmt.Fprintf(&b, "F1-Score:  %.4f\n", m.F1)
	fmt.Fprintf(&b, "ROC-AUC:   %.4f\n", m.ROCAUC)
	fmt.Fprintf(&b, "Delay Detection Rate: %.2f%%\n", m.DelayDetectionRate*100)
	fmt.Fprintf(&b, "False Alarm Rate:     %.2f%%\n\n", m.FalseAlarmRate*100)

	total := m.ClassDistribution.OnTime + m.ClassDistribution.Delayed
	b.WriteString("CLASS DISTRIBUTION:\n")
	fmt.Fprintf(&b, "On-Time:  %d (%.1f%%)\n", m.ClassDistribution.OnTime, percent(m.ClassDistribution.OnTime, total))
	fmt.Fprintf(&b, "Delayed:  %d (%.1f%%)\n\n", m.ClassDistribution.Delayed, percent(m.ClassDistribution.Delayed, total))

	b.WriteString("CONFUSION MATRIX:\n")
	fmt.Fprintf(&b, "True Negatives:  %d\n", m.Confusion.TN)
	fmt.Fprintf(&b, "False Positives: %d\n", m.Confusion.FP)
	fmt.Fprintf(&b, "False Negatives: %d\n", m.Confusion.FN)
	fmt.Fprintf(&b, "True Positives:  %d\n\n", m.Confusion.TP)

	fmt.Fprintf(&b, "BOOSTING:\nBest Iteration: %d\nValidation AUC: %.4f\n\n", m.BestIteration, m.ValidationAUC)

	fmt.Fprintf(&b, "TOP %d FEATURES:\n", reportTopFeatures)
	for i, imp := range m.FeatureImportances {
		if i == reportTopFeatures {
			break
		}
		fmt.Fprintf(&b, "%-20s: %.4f\n", imp.Feature, imp.Gain)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
