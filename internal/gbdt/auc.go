package gbdt

import (
	"slices"
)

// AUC is the area under the ROC curve for binary labels and arbitrary
// scores, computed from average ranks so that tied scores count half.
// It returns 0.5 when only one class is present.
func AUC(labels, scores []float64) float64 {
	n := len(labels)
	if n == 0 || len(scores) != n {
		return 0.5
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case scores[a] < scores[b]:
			return -1
		case scores[a] > scores[b]:
			return 1
		}
		return 0
	})

	var pos, neg int
	var rankSum float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[idx[j+1]] == scores[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if labels[idx[k]] == 1 {
				rankSum += avg
				pos++
			} else {
				neg++
			}
		}
		i = j + 1
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}
	fp, fn := float64(pos), float64(neg)
	return (rankSum - fp*(fp+1)/2) / (fp * fn)
}
