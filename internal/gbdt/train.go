package gbdt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
)

type Params struct {
	Rounds              int     `json:"rounds" yaml:"rounds"`
	LearningRate        float64 `json:"learning_rate" yaml:"learning_rate"`
	NumLeaves           int     `json:"num_leaves" yaml:"num_leaves"`
	MaxDepth            int     `json:"max_depth" yaml:"max_depth"` // <= 0 means unlimited
	MinChildSamples     int     `json:"min_child_samples" yaml:"min_child_samples"`
	MinChildWeight      float64 `json:"min_child_weight" yaml:"min_child_weight"`
	L1                  float64 `json:"lambda_l1" yaml:"lambda_l1"`
	L2                  float64 `json:"lambda_l2" yaml:"lambda_l2"`
	Subsample           float64 `json:"subsample" yaml:"subsample"`
	ColSample           float64 `json:"colsample" yaml:"colsample"`
	MaxBins             int     `json:"max_bins" yaml:"max_bins"`
	EarlyStoppingRounds int     `json:"early_stopping_rounds" yaml:"early_stopping_rounds"`
	Seed                uint64  `json:"seed" yaml:"seed"`

	// OnRound is called after every boosting round with the validation AUC,
	// or NaN when no validation set was given.
	OnRound func(round int, validAUC float64) `json:"-" yaml:"-"`
}

func DefaultParams() Params {
	return Params{
		Rounds:              1000,
		LearningRate:        0.05,
		NumLeaves:           31,
		MaxDepth:            -1,
		MinChildSamples:     20,
		MinChildWeight:      1e-3,
		L1:                  0.1,
		L2:                  0.1,
		Subsample:           0.8,
		ColSample:           0.8,
		MaxBins:             255,
		EarlyStoppingRounds: 50,
		Seed:                42,
	}
}

func (p Params) validate() error {
	switch {
	case p.Rounds <= 0:
		return fmt.Errorf("gbdt: rounds must be positive, got %d", p.Rounds)
	case p.LearningRate <= 0:
		return fmt.Errorf("gbdt: learning rate must be positive, got %v", p.LearningRate)
	case p.NumLeaves < 2:
		return fmt.Errorf("gbdt: num leaves must be at least 2, got %d", p.NumLeaves)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("gbdt: subsample must be in (0, 1], got %v", p.Subsample)
	case p.ColSample <= 0 || p.ColSample > 1:
		return fmt.Errorf("gbdt: colsample must be in (0, 1], got %v", p.ColSample)
	case p.MaxBins < 2 || p.MaxBins > math.MaxUint16:
		return fmt.Errorf("gbdt: max bins must be in [2, %d], got %d", math.MaxUint16, p.MaxBins)
	case p.L1 < 0 || p.L2 < 0:
		return errors.New("gbdt: regularization must be non-negative")
	}
	return nil
}

// Dataset is a dense row-major feature matrix with binary labels. Weights
// may be nil, meaning every row weighs 1.
type Dataset struct {
	X       [][]float64
	Y       []float64
	Weights []float64
}

func (d *Dataset) Len() int { return len(d.X) }

func (d *Dataset) weight(i int) float64 {
	if d.Weights == nil {
		return 1
	}
	return d.Weights[i]
}

func (d *Dataset) check(numFeatures int) error {
	if len(d.X) == 0 {
		return errors.New("gbdt: empty dataset")
	}
	if len(d.Y) != len(d.X) {
		return fmt.Errorf("gbdt: %d rows but %d labels", len(d.X), len(d.Y))
	}
	if d.Weights != nil && len(d.Weights) != len(d.X) {
		return fmt.Errorf("gbdt: %d rows but %d weights", len(d.X), len(d.Weights))
	}
	for i, row := range d.X {
		if len(row) != numFeatures {
			return fmt.Errorf("gbdt: row %d has %d features, want %d", i, len(row), numFeatures)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("gbdt: row %d feature %d is not finite", i, j)
			}
		}
		if y := d.Y[i]; y != 0 && y != 1 {
			return fmt.Errorf("gbdt: row %d label %v is not 0 or 1", i, y)
		}
		if w := d.weight(i); w < 0 || math.IsNaN(w) {
			return fmt.Errorf("gbdt: row %d has invalid weight %v", i, w)
		}
	}
	return nil
}

// Train fits a booster on train. When valid is non-nil, training stops after
// EarlyStoppingRounds rounds without a validation AUC improvement and the
// returned booster is truncated to the best round.
func Train(ctx context.Context, train, valid *Dataset, p Params) (*Booster, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if train == nil || len(train.X) == 0 {
		return nil, errors.New("gbdt: empty dataset")
	}
	nf := len(train.X[0])
	if nf == 0 {
		return nil, errors.New("gbdt: rows have no features")
	}
	if err := train.check(nf); err != nil {
		return nil, err
	}
	if valid != nil {
		if err := valid.check(nf); err != nil {
			return nil, fmt.Errorf("validation set: %w", err)
		}
	}

	var wPos, wAll float64
	for i, y := range train.Y {
		w := train.weight(i)
		wPos += w * y
		wAll += w
	}
	if wPos == 0 || wPos == wAll {
		return nil, errors.New("gbdt: training labels contain a single class")
	}
	prior := wPos / wAll
	base := math.Log(prior / (1 - prior))

	bins := newBinner(train.X, nf, p.MaxBins)
	binned := bins.apply(train.X)

	n := len(train.X)
	margin := make([]float64, n)
	for i := range margin {
		margin[i] = base
	}
	var validMargin []float64
	if valid != nil {
		validMargin = make([]float64, len(valid.X))
		for i := range validMargin {
			validMargin[i] = base
		}
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	grad := make([]float64, n)
	hess := make([]float64, n)
	g := &grower{p: p, bins: bins, binned: binned, grad: grad, hess: hess}

	b := &Booster{NumFeatures: nf, BaseScore: base}
	bestAUC, bestIter := math.Inf(-1), 0

	for round := 0; round < p.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := range n {
			prob := sigmoid(margin[i])
			w := train.weight(i)
			grad[i] = (prob - train.Y[i]) * w
			hess[i] = math.Max(prob*(1-prob), 1e-16) * w
		}

		rows := sampleRows(rng, n, p.Subsample)
		feats := sampleFeatures(rng, nf, p.ColSample)
		tree := g.grow(rows, feats)
		b.Trees = append(b.Trees, tree)

		for i, x := range train.X {
			margin[i] += tree.predict(x)
		}

		auc := math.NaN()
		if valid != nil {
			for i, x := range valid.X {
				validMargin[i] += tree.predict(x)
			}
			auc = AUC(valid.Y, validMargin)
			if auc > bestAUC {
				bestAUC, bestIter = auc, round+1
			}
		}
		if p.OnRound != nil {
			p.OnRound(round+1, auc)
		}
		if valid != nil && p.EarlyStoppingRounds > 0 && round+1-bestIter >= p.EarlyStoppingRounds {
			break
		}
	}

	if valid != nil {
		b.Trees = b.Trees[:bestIter]
		b.BestIteration = bestIter
		b.BestScore = bestAUC
	} else {
		b.BestIteration = len(b.Trees)
	}
	return b, nil
}

func sampleRows(rng *rand.Rand, n int, frac float64) []int {
	rows := make([]int, 0, n)
	if frac >= 1 {
		for i := range n {
			rows = append(rows, i)
		}
		return rows
	}
	for i := range n {
		if rng.Float64() < frac {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rng.IntN(n))
	}
	return rows
}

func sampleFeatures(rng *rand.Rand, nf int, frac float64) []int {
	k := int(math.Round(frac * float64(nf)))
	k = max(1, min(k, nf))
	feats := rng.Perm(nf)[:k]
	slices.Sort(feats)
	return feats
}

// binner quantizes each feature into at most maxBins ordered buckets.
// A value lands in bucket i when it is <= thresholds[i], which matches the
// routing rule used by Tree.predict.
type binner struct {
	thresholds [][]float64
}

func newBinner(x [][]float64, nf, maxBins int) *binner {
	b := &binner{thresholds: make([][]float64, nf)}
	col := make([]float64, len(x))
	for f := range nf {
		for i, row := range x {
			col[i] = row[f]
		}
		slices.Sort(col)
		distinct := slices.Compact(slices.Clone(col))

		var thr []float64
		if len(distinct) <= maxBins {
			for i := 0; i+1 < len(distinct); i++ {
				thr = append(thr, (distinct[i]+distinct[i+1])/2)
			}
		} else {
			for k := 1; k < maxBins; k++ {
				v := col[k*len(col)/maxBins]
				if v == distinct[len(distinct)-1] {
					break
				}
				if len(thr) == 0 || v > thr[len(thr)-1] {
					thr = append(thr, v)
				}
			}
		}
		b.thresholds[f] = thr
	}
	return b
}

func (b *binner) numBins(f int) int { return len(b.thresholds[f]) + 1 }

func (b *binner) apply(x [][]float64) [][]uint16 {
	out := make([][]uint16, len(b.thresholds))
	for f, thr := range b.thresholds {
		col := make([]uint16, len(x))
		for i, row := range x {
			col[i] = uint16(sort.SearchFloat64s(thr, row[f]))
		}
		out[f] = col
	}
	return out
}

type grower struct {
	p      Params
	bins   *binner
	binned [][]uint16 // feature-major
	grad   []float64
	hess   []float64
}

type split struct {
	feature int
	bin     int
	gain    float64
}

type candidate struct {
	node  int
	depth int
	rows  []int
	best  split
	ok    bool
}

// grow builds one tree leaf-wise: the leaf with the largest gain is split
// next until NumLeaves is reached or no split improves the loss.
func (g *grower) grow(rows, feats []int) Tree {
	var t Tree
	root := candidate{node: 0, depth: 0, rows: rows}
	t.Nodes = append(t.Nodes, Node{Leaf: true, Value: g.leafValue(rows)})
	root.best, root.ok = g.findSplit(rows, feats)

	open := []candidate{root}
	leaves := 1
	for leaves < g.p.NumLeaves {
		pick := -1
		for i, c := range open {
			if !c.ok {
				continue
			}
			if g.p.MaxDepth > 0 && c.depth >= g.p.MaxDepth {
				continue
			}
			if pick < 0 || c.best.gain > open[pick].best.gain {
				pick = i
			}
		}
		if pick < 0 {
			break
		}
		c := open[pick]
		open = slices.Delete(open, pick, pick+1)

		col := g.binned[c.best.feature]
		var left, right []int
		for _, r := range c.rows {
			if int(col[r]) <= c.best.bin {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}

		li, ri := len(t.Nodes), len(t.Nodes)+1
		t.Nodes = append(t.Nodes,
			Node{Leaf: true, Value: g.leafValue(left)},
			Node{Leaf: true, Value: g.leafValue(right)},
		)
		t.Nodes[c.node] = Node{
			Feature:   c.best.feature,
			Threshold: g.bins.thresholds[c.best.feature][c.best.bin],
			Left:      li,
			Right:     ri,
			Gain:      c.best.gain,
		}
		leaves++

		for _, child := range []candidate{{node: li, depth: c.depth + 1, rows: left}, {node: ri, depth: c.depth + 1, rows: right}} {
			child.best, child.ok = g.findSplit(child.rows, feats)
			open = append(open, child)
		}
	}
	return t
}

func (g *grower) sums(rows []int) (gs, hs float64) {
	for _, r := range rows {
		gs += g.grad[r]
		hs += g.hess[r]
	}
	return gs, hs
}

func (g *grower) leafValue(rows []int) float64 {
	gs, hs := g.sums(rows)
	return -softThreshold(gs, g.p.L1) / (hs + g.p.L2) * g.p.LearningRate
}

func (g *grower) score(gs, hs float64) float64 {
	t := softThreshold(gs, g.p.L1)
	return t * t / (hs + g.p.L2)
}

func (g *grower) findSplit(rows, feats []int) (split, bool) {
	if len(rows) < 2*max(g.p.MinChildSamples, 1) {
		return split{}, false
	}
	gAll, hAll := g.sums(rows)
	parent := g.score(gAll, hAll)

	best := split{gain: 0}
	found := false
	for _, f := range feats {
		nb := g.bins.numBins(f)
		if nb < 2 {
			continue
		}
		hg := make([]float64, nb)
		hh := make([]float64, nb)
		hc := make([]int, nb)
		col := g.binned[f]
		for _, r := range rows {
			b := col[r]
			hg[b] += g.grad[r]
			hh[b] += g.hess[r]
			hc[b]++
		}

		var gl, hl float64
		cl := 0
		for b := 0; b < nb-1; b++ {
			gl += hg[b]
			hl += hh[b]
			cl += hc[b]
			cr := len(rows) - cl
			if cl < g.p.MinChildSamples || cr < g.p.MinChildSamples || cl == 0 || cr == 0 {
				continue
			}
			gr, hr := gAll-gl, hAll-hl
			if hl < g.p.MinChildWeight || hr < g.p.MinChildWeight {
				continue
			}
			gain := g.score(gl, hl) + g.score(gr, hr) - parent
			if gain > best.gain {
				best = split{feature: f, bin: b, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func softThreshold(g, l1 float64) float64 {
	switch {
	case g > l1:
		return g - l1
	case g < -l1:
		return g + l1
	default:
		return 0
	}
}
