// Package gbdt implements gradient-boosted decision trees for binary
// classification with a logistic loss.
//
// A trained Booster is plain data: it serializes to JSON and can be scored
// concurrently without locking.
package gbdt

import (
	"errors"
	"fmt"
	"math"
)

// Node is one node of a tree. Leaves carry Value; internal nodes route a row
// left when x[Feature] <= Threshold.
type Node struct {
	Leaf      bool    `json:"leaf"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Gain      float64 `json:"gain,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// Tree stores nodes in a flat slice rooted at index 0. Children always sit
// after their parent.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t Tree) leaves() int {
	n := 0
	for _, node := range t.Nodes {
		if node.Leaf {
			n++
		}
	}
	return n
}

type Booster struct {
	NumFeatures   int     `json:"num_features"`
	BaseScore     float64 `json:"base_score"`
	Trees         []Tree  `json:"trees"`
	BestIteration int     `json:"best_iteration"`
	BestScore     float64 `json:"best_score,omitempty"`
}

var ErrFeatureCount = errors.New("gbdt: feature count mismatch")

// Margin returns the raw log-odds for x.
func (b *Booster) Margin(x []float64) (float64, error) {
	if len(x) != b.NumFeatures {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(x), b.NumFeatures)
	}
	m := b.BaseScore
	for _, t := range b.Trees {
		m += t.predict(x)
	}
	return m, nil
}

// Predict returns the probability of the positive class.
func (b *Booster) Predict(x []float64) (float64, error) {
	m, err := b.Margin(x)
	if err != nil {
		return 0, err
	}
	return sigmoid(m), nil
}

// Importance returns the total split gain attributed to each feature.
func (b *Booster) Importance() []float64 {
	out := make([]float64, b.NumFeatures)
	for _, t := range b.Trees {
		for _, n := range t.Nodes {
			if !n.Leaf && n.Feature >= 0 && n.Feature < len(out) {
				out[n.Feature] += n.Gain
			}
		}
	}
	return out
}

// Validate checks structural integrity so that Predict cannot index out of
// range or loop forever on a corrupt model file.
func (b *Booster) Validate() error {
	if b.NumFeatures <= 0 {
		return fmt.Errorf("gbdt: invalid feature count %d", b.NumFeatures)
	}
	if math.IsNaN(b.BaseScore) || math.IsInf(b.BaseScore, 0) {
		return errors.New("gbdt: base score is not finite")
	}
	for ti, t := range b.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("gbdt: tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
					return fmt.Errorf("gbdt: tree %d node %d has non-finite value", ti, ni)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= b.NumFeatures {
				return fmt.Errorf("gbdt: tree %d node %d splits on feature %d of %d", ti, ni, n.Feature, b.NumFeatures)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("gbdt: tree %d node %d has invalid children %d/%d", ti, ni, n.Left, n.Right)
			}
		}
	}
	return nil
}

// NumLeaves returns the total leaf count across all trees.
func (b *Booster) NumLeaves() int {
	n := 0
	for _, t := range b.Trees {
		n += t.leaves()
	}
	return n
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
