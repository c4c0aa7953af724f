package ml

import (
	"encoding/json"
	"math/rand"
	"sort"

	"batteryflow/ports"
)

// treeNode is one node of a fitted regression tree. Leaves have nil children.
type treeNode struct {
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"` // x <= threshold goes left
	Value     float64   `json:"value"`
	Samples   int       `json:"samples"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

func (n *treeNode) leaf() bool { return n.Left == nil }

func (n *treeNode) predict(x []float64) float64 {
	for !n.leaf() {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

func (n *treeNode) depth() int {
	if n == nil || n.leaf() {
		return 0
	}
	l, r := n.Left.depth(), n.Right.depth()
	if l > r {
		return l + 1
	}
	return r + 1
}

// treeGrower builds squared-error regression trees.
// With lambda 0 a leaf holds the mean target and a split scores its SSE reduction;
// a positive lambda gives the L2-regularised leaf weight sum/(n+lambda) of boosted trees.
type treeGrower struct {
	maxDepth int     // 0 means unbounded
	lambda   float64 // L2 penalty on leaf weights
	minGain  float64 // a split must gain strictly more than this; negative accepts zero-gain splits
	minLeaf  int
}

func (g treeGrower) grow(X [][]float64, y []float64, idx []int, rnd *rand.Rand) *treeNode {
	return g.node(X, y, idx, 0, rnd)
}

func (g treeGrower) score(sum float64, n int) float64 {
	return sum * sum / (float64(n) + g.lambda)
}

func (g treeGrower) node(X [][]float64, y []float64, idx []int, depth int, rnd *rand.Rand) *treeNode {
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	node := &treeNode{Value: sum / (float64(len(idx)) + g.lambda), Samples: len(idx)}

	if len(idx) < 2*g.minLeaf || (g.maxDepth > 0 && depth >= g.maxDepth) || pure(y, idx) {
		return node
	}

	p := len(X[idx[0]])
	features := rnd.Perm(p)
	parent := g.score(sum, len(idx))

	best := struct {
		gain      float64
		feature   int
		threshold float64
		found     bool
	}{}
	sorted := make([]int, len(idx))
	for _, f := range features {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

		left := 0.0
		for k := 0; k < len(sorted)-1; k++ {
			left += y[sorted[k]]
			nl := k + 1
			lo, hi := X[sorted[k]][f], X[sorted[k+1]][f]
			if lo == hi || nl < g.minLeaf || len(sorted)-nl < g.minLeaf {
				continue
			}
			gain := g.score(left, nl) + g.score(sum-left, len(sorted)-nl) - parent
			if gain > g.minGain && (!best.found || gain > best.gain) {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				best.gain, best.feature, best.threshold, best.found = gain, f, threshold, true
			}
		}
	}
	if !best.found {
		return node
	}

	var li, ri []int
	for _, i := range idx {
		if X[i][best.feature] <= best.threshold {
			li = append(li, i)
		} else {
			ri = append(ri, i)
		}
	}
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = g.node(X, y, li, depth+1, rnd)
	node.Right = g.node(X, y, ri, depth+1, rnd)
	return node
}

func pure(y []float64, idx []int) bool {
	for _, i := range idx[1:] {
		if y[i] != y[idx[0]] {
			return false
		}
	}
	return true
}

// DecisionTree is an unbounded CART regressor with squared-error splits
type DecisionTree struct {
	MaxDepth    int
	RandomState int64

	root      *treeNode
	nFeatures int
}

// TreeOption configures a DecisionTree
type TreeOption func(*DecisionTree)

func WithTreeMaxDepth(d int) TreeOption         { return func(t *DecisionTree) { t.MaxDepth = d } }
func WithTreeRandomState(seed int64) TreeOption { return func(t *DecisionTree) { t.RandomState = seed } }

// NewDecisionTree returns a tree grown until leaves are pure
func NewDecisionTree(opts ...TreeOption) *DecisionTree {
	t := &DecisionTree{RandomState: 42}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *DecisionTree) grower() treeGrower {
	return treeGrower{maxDepth: t.MaxDepth, minGain: -1, minLeaf: 1}
}

// Fit grows the tree on X (n x p) and y
func (t *DecisionTree) Fit(X [][]float64, y []float64) error {
	p, err := checkXY("decision_tree", X, y)
	if err != nil {
		return err
	}
	t.root = t.grower().grow(X, y, indices(len(X)), rand.New(rand.NewSource(t.RandomState)))
	t.nFeatures = p
	return nil
}

// Predict returns one prediction per row of X
func (t *DecisionTree) Predict(X [][]float64) ([]float64, error) {
	if err := checkFitted("decision_tree", t.root != nil, t.nFeatures, X); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = t.root.predict(x)
	}
	return out, nil
}

// Depth returns the depth of the fitted tree
func (t *DecisionTree) Depth() int { return t.root.depth() }

// Family implements ports.Model
func (t *DecisionTree) Family() ports.ModelFamily { return ports.FamilyTree }

// MarshalJSON encodes the hyperparameters and the fitted tree
func (t *DecisionTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MaxDepth    int       `json:"max_depth"`
		RandomState int64     `json:"random_state"`
		NFeatures   int       `json:"n_features"`
		Root        *treeNode `json:"root"`
	}{t.MaxDepth, t.RandomState, t.nFeatures, t.root})
}

func indices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
