package ml

import (
	"math"
	"math/rand"

	"batteryflow/domain/core"
	"batteryflow/domain/stats"
)

const eulerGamma = 0.5772156649

// Anomaly labels produced by IsolationForest
const (
	LabelInlier  = 1
	LabelOutlier = -1
)

// IsolationForest scores rows by how quickly random axis-aligned splits isolate them
type IsolationForest struct {
	NEstimators   int
	MaxSamples    int // 0 means min(256, n)
	Contamination float64
	RandomState   int64

	offset float64
}

// IsolationOption configures an IsolationForest
type IsolationOption func(*IsolationForest)

func WithContamination(c float64) IsolationOption      { return func(f *IsolationForest) { f.Contamination = c } }
func WithIsolationRandomState(s int64) IsolationOption { return func(f *IsolationForest) { f.RandomState = s } }

// NewIsolationForest returns 100 trees with contamination 0.05
func NewIsolationForest(opts ...IsolationOption) *IsolationForest {
	f := &IsolationForest{
		NEstimators:   100,
		Contamination: 0.05,
		RandomState:   42,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

type isoNode struct {
	feature   int
	threshold float64
	size      int
	left      *isoNode
	right     *isoNode
}

// FitPredict builds the forest on X, scores the same rows and labels each one
// LabelOutlier when its score falls below the contamination percentile of all scores
func (f *IsolationForest) FitPredict(X [][]float64) (labels []int, scores []float64, err error) {
	if len(X) == 0 {
		return nil, nil, core.NewInvalidArgumentError("isolation_forest", "empty input")
	}
	if _, err := checkX("isolation_forest", X); err != nil {
		return nil, nil, err
	}
	if !(f.Contamination > 0 && f.Contamination <= 0.5) {
		return nil, nil, core.NewInvalidArgumentError("contamination", "must be in (0, 0.5]")
	}
	if f.NEstimators <= 0 {
		return nil, nil, core.NewInvalidArgumentError("n_estimators", "must be positive")
	}

	n := len(X)
	psi := f.MaxSamples
	if psi <= 0 || psi > n {
		psi = min(256, n)
	}
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))
	rnd := rand.New(rand.NewSource(f.RandomState))

	depths := make([]float64, n)
	for t := 0; t < f.NEstimators; t++ {
		perm := rnd.Perm(n)[:psi]
		root := buildIsoTree(X, perm, 0, maxDepth, rnd)
		for i, x := range X {
			depths[i] += pathLength(root, x)
		}
	}

	norm := averagePathLength(psi)
	scores = make([]float64, n)
	for i := range depths {
		mean := depths[i] / float64(f.NEstimators)
		if norm == 0 {
			scores[i] = -0.5
			continue
		}
		scores[i] = -math.Pow(2, -mean/norm)
	}

	f.offset, err = stats.Percentile(scores, 100*f.Contamination)
	if err != nil {
		return nil, nil, err
	}
	labels = make([]int, n)
	for i, s := range scores {
		if s < f.offset {
			labels[i] = LabelOutlier
		} else {
			labels[i] = LabelInlier
		}
	}
	return labels, scores, nil
}

// Offset returns the score threshold of the last FitPredict
func (f *IsolationForest) Offset() float64 { return f.offset }

func buildIsoTree(X [][]float64, idx []int, depth, maxDepth int, rnd *rand.Rand) *isoNode {
	node := &isoNode{size: len(idx)}
	if len(idx) <= 1 || depth >= maxDepth {
		return node
	}

	p := len(X[idx[0]])
	candidates := rnd.Perm(p)
	for _, feat := range candidates {
		lo, hi := X[idx[0]][feat], X[idx[0]][feat]
		for _, i := range idx[1:] {
			v := X[i][feat]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if lo == hi {
			continue
		}

		threshold := lo + rnd.Float64()*(hi-lo)
		var li, ri []int
		for _, i := range idx {
			if X[i][feat] <= threshold {
				li = append(li, i)
			} else {
				ri = append(ri, i)
			}
		}
		node.feature, node.threshold = feat, threshold
		node.left = buildIsoTree(X, li, depth+1, maxDepth, rnd)
		node.right = buildIsoTree(X, ri, depth+1, maxDepth, rnd)
		return node
	}
	// every feature is constant in this node
	return node
}

// pathLength is the depth of the leaf reached by x plus the expected depth of the
// unbuilt subtree holding the leaf's samples
func pathLength(n *isoNode, x []float64) float64 {
	depth := 0.0
	for n.left != nil {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return depth + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
