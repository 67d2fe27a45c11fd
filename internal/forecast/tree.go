// internal/forecast/tree.go
package forecast

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/apparelworks/demandplan/internal/domain"
)

// treeNode is one node of a CART regression tree. Leaves have Feature == -1.
type treeNode struct {
	Feature   int
	Threshold float64
	Value     float64
	Left      *treeNode
	Right     *treeNode
}

func (n *treeNode) predict(x []float64) float64 {
	cur := n
	for cur.Feature >= 0 {
		if x[cur.Feature] <= cur.Threshold {
			cur = cur.Left
		} else {
			cur = cur.Right
		}
	}
	return cur.Value
}

// regressionTree grows a variance-reduction CART tree.
type regressionTree struct {
	MaxDepth    int
	MinLeaf     int
	MaxFeatures int // 0 = all
	Root        *treeNode
	Importance  []float64
}

func (t *regressionTree) fit(X [][]float64, y []float64, rng *rand.Rand) {
	t.Importance = make([]float64, len(X[0]))
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.Root = t.grow(X, y, idx, 0, rng)
}

func (t *regressionTree) grow(X [][]float64, y []float64, idx []int, depth int, rng *rand.Rand) *treeNode {
	node := &treeNode{Feature: -1, Value: meanAt(y, idx)}
	if depth >= t.MaxDepth || len(idx) < 2*t.MinLeaf {
		return node
	}

	parentSS := sumSquaresAt(y, idx)
	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0
	var bestLeft, bestRight []int

	features := t.candidateFeatures(len(X[0]), rng)
	for _, j := range features {
		sorted := append([]int(nil), idx...)
		sort.Slice(sorted, func(a, b int) bool { return X[sorted[a]][j] < X[sorted[b]][j] })

		for split := t.MinLeaf; split <= len(sorted)-t.MinLeaf; split++ {
			if X[sorted[split-1]][j] == X[sorted[split]][j] {
				continue
			}
			left, right := sorted[:split], sorted[split:]
			gain := parentSS - sumSquaresAt(y, left) - sumSquaresAt(y, right)
			if gain > bestGain {
				bestGain = gain
				bestFeature = j
				bestThreshold = (X[sorted[split-1]][j] + X[sorted[split]][j]) / 2
				bestLeft = append([]int(nil), left...)
				bestRight = append([]int(nil), right...)
			}
		}
	}

	if bestFeature < 0 {
		return node
	}

	t.Importance[bestFeature] += bestGain
	node.Feature = bestFeature
	node.Threshold = bestThreshold
	node.Left = t.grow(X, y, bestLeft, depth+1, rng)
	node.Right = t.grow(X, y, bestRight, depth+1, rng)
	return node
}

func (t *regressionTree) candidateFeatures(total int, rng *rand.Rand) []int {
	all := make([]int, total)
	for j := range all {
		all[j] = j
	}
	if t.MaxFeatures <= 0 || t.MaxFeatures >= total || rng == nil {
		return all
	}
	rng.Shuffle(total, func(a, b int) { all[a], all[b] = all[b], all[a] })
	picked := append([]int(nil), all[:t.MaxFeatures]...)
	sort.Ints(picked)
	return picked
}

func meanAt(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func sumSquaresAt(y []float64, idx []int) float64 {
	m := meanAt(y, idx)
	ss := 0.0
	for _, i := range idx {
		d := y[i] - m
		ss += d * d
	}
	return ss
}

// RandomForestRegressor is a bagged ensemble of deep CART trees with feature
// subsampling. Seeded deterministically so repeated training is reproducible.
type RandomForestRegressor struct {
	NumTrees int
	MaxDepth int
	MinLeaf  int
	Seed     int64
	Trees    []*regressionTree
	numFeats int
}

// NewRandomForest builds a forest candidate with the default shape.
func NewRandomForest() *RandomForestRegressor {
	return &RandomForestRegressor{NumTrees: 100, MaxDepth: 8, MinLeaf: 2, Seed: 42}
}

func (f *RandomForestRegressor) Name() string    { return "random_forest" }
func (f *RandomForestRegressor) MinSamples() int { return 24 }

func (f *RandomForestRegressor) Fit(X [][]float64, y []float64) error {
	n := len(X)
	if n == 0 {
		return fmt.Errorf("random forest: empty training set: %w", domain.ErrInsufficientData)
	}
	f.numFeats = len(X[0])
	maxFeatures := int(math.Ceil(math.Sqrt(float64(f.numFeats))))

	rng := rand.New(rand.NewSource(f.Seed))
	f.Trees = make([]*regressionTree, f.NumTrees)
	for k := 0; k < f.NumTrees; k++ {
		sampleX := make([][]float64, n)
		sampleY := make([]float64, n)
		for i := 0; i < n; i++ {
			pick := rng.Intn(n)
			sampleX[i] = X[pick]
			sampleY[i] = y[pick]
		}
		tree := &regressionTree{MaxDepth: f.MaxDepth, MinLeaf: f.MinLeaf, MaxFeatures: maxFeatures}
		tree.fit(sampleX, sampleY, rng)
		f.Trees[k] = tree
	}
	return nil
}

func (f *RandomForestRegressor) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range f.Trees {
		sum += t.Root.predict(x)
	}
	return sum / float64(len(f.Trees))
}

func (f *RandomForestRegressor) PredictPerTree(x []float64) []float64 {
	out := make([]float64, len(f.Trees))
	for k, t := range f.Trees {
		out[k] = t.Root.predict(x)
	}
	return out
}

func (f *RandomForestRegressor) FeatureImportance() []float64 {
	agg := make([]float64, f.numFeats)
	for _, t := range f.Trees {
		for j, v := range t.Importance {
			agg[j] += v
		}
	}
	return absNormalized(agg)
}

// GradientBoostRegressor is stagewise boosting of shallow CART trees on the
// squared-error gradient.
type GradientBoostRegressor struct {
	NumTrees     int
	MaxDepth     int
	MinLeaf      int
	LearningRate float64
	Seed         int64
	Base         float64
	Trees        []*regressionTree
	numFeats     int
}

// NewGradientBoost builds a boosted-trees candidate with the default shape.
func NewGradientBoost() *GradientBoostRegressor {
	return &GradientBoostRegressor{NumTrees: 100, MaxDepth: 3, MinLeaf: 2, LearningRate: 0.1, Seed: 42}
}

func (g *GradientBoostRegressor) Name() string    { return "gradient_boost" }
func (g *GradientBoostRegressor) MinSamples() int { return 24 }

func (g *GradientBoostRegressor) Fit(X [][]float64, y []float64) error {
	n := len(X)
	if n == 0 {
		return fmt.Errorf("gradient boost: empty training set: %w", domain.ErrInsufficientData)
	}
	g.numFeats = len(X[0])

	g.Base = 0
	for _, v := range y {
		g.Base += v
	}
	g.Base /= float64(n)

	resid := make([]float64, n)
	for i, v := range y {
		resid[i] = v - g.Base
	}

	rng := rand.New(rand.NewSource(g.Seed))
	g.Trees = make([]*regressionTree, 0, g.NumTrees)
	for k := 0; k < g.NumTrees; k++ {
		tree := &regressionTree{MaxDepth: g.MaxDepth, MinLeaf: g.MinLeaf}
		tree.fit(X, resid, rng)
		g.Trees = append(g.Trees, tree)
		for i := range resid {
			resid[i] -= g.LearningRate * tree.Root.predict(X[i])
		}
	}
	return nil
}

func (g *GradientBoostRegressor) Predict(x []float64) float64 {
	v := g.Base
	for _, t := range g.Trees {
		v += g.LearningRate * t.Root.predict(x)
	}
	return v
}

func (g *GradientBoostRegressor) FeatureImportance() []float64 {
	agg := make([]float64, g.numFeats)
	for _, t := range g.Trees {
		for j, v := range t.Importance {
			agg[j] += v
		}
	}
	return absNormalized(agg)
}
