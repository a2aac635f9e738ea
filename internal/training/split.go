package training

import (
	"math"
	"math/rand/v2"
	"slices"
)

// StratifiedSplit partitions the indices of labels into a kept part and a
// held-out part of roughly frac, preserving the class ratio in both. Each
// class with at least two members contributes at least one held-out row.
// Both results are sorted.
func StratifiedSplit(labels []bool, frac float64, rng *rand.Rand) (keep, held []int) {
	var pos, neg []int
	for i, y := range labels {
		if y {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	for _, class := range [][]int{neg, pos} {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		k := int(math.Round(frac * float64(len(class))))
		if k == 0 && len(class) >= 2 && frac > 0 {
			k = 1
		}
		if k >= len(class) && len(class) > 0 {
			k = len(class) - 1
		}
		held = append(held, class[:k]...)
		keep = append(keep, class[k:]...)
	}
	slices.Sort(keep)
	slices.Sort(held)
	return keep, held
}

// ClassWeights returns balanced weights n/(2*count) for the negative and
// positive class.
func ClassWeights(labels []bool) (neg, pos float64) {
	var np int
	for _, y := range labels {
		if y {
			np++
		}
	}
	n := len(labels)
	nn := n - np
	if np == 0 || nn == 0 {
		return 1, 1
	}
	return float64(n) / (2 * float64(nn)), float64(n) / (2 * float64(np))
}
