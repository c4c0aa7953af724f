package ml

import (
	"encoding/json"
	"math/rand"

	"batteryflow/domain/core"
	"batteryflow/ports"
)

// RandomForest averages bootstrap-trained unbounded regression trees
type RandomForest struct {
	NEstimators int
	MaxDepth    int
	Bootstrap   bool
	RandomState int64

	trees     []*treeNode
	nFeatures int
}

// ForestOption configures a RandomForest
type ForestOption func(*RandomForest)

func WithNEstimators(n int) ForestOption         { return func(rf *RandomForest) { rf.NEstimators = n } }
func WithBootstrap(b bool) ForestOption          { return func(rf *RandomForest) { rf.Bootstrap = b } }
func WithForestRandomState(s int64) ForestOption { return func(rf *RandomForest) { rf.RandomState = s } }

// NewRandomForest returns a forest of 100 bootstrap trees
func NewRandomForest(opts ...ForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators: 100,
		Bootstrap:   true,
		RandomState: 42,
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

// Fit trains the trees one after another from a single seeded stream
func (rf *RandomForest) Fit(X [][]float64, y []float64) error {
	p, err := checkXY("random_forest", X, y)
	if err != nil {
		return err
	}
	if rf.NEstimators <= 0 {
		return core.NewInvalidArgumentError("n_estimators", "must be positive")
	}

	n := len(X)
	rnd := rand.New(rand.NewSource(rf.RandomState))
	grower := treeGrower{maxDepth: rf.MaxDepth, minGain: -1, minLeaf: 1}

	rf.trees = make([]*treeNode, rf.NEstimators)
	for t := range rf.trees {
		sample := make([]int, n)
		for j := range sample {
			if rf.Bootstrap {
				sample[j] = rnd.Intn(n)
			} else {
				sample[j] = j
			}
		}
		rf.trees[t] = grower.grow(X, y, sample, rnd)
	}
	rf.nFeatures = p
	return nil
}

// Predict averages the tree predictions
func (rf *RandomForest) Predict(X [][]float64) ([]float64, error) {
	if err := checkFitted("random_forest", len(rf.trees) > 0, rf.nFeatures, X); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, x := range X {
		s := 0.0
		for _, t := range rf.trees {
			s += t.predict(x)
		}
		out[i] = s / float64(len(rf.trees))
	}
	return out, nil
}

// Family implements ports.Model
func (rf *RandomForest) Family() ports.ModelFamily { return ports.FamilyForest }

// MarshalJSON encodes the hyperparameters and every tree
func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		NEstimators int         `json:"n_estimators"`
		MaxDepth    int         `json:"max_depth"`
		Bootstrap   bool        `json:"bootstrap"`
		RandomState int64       `json:"random_state"`
		NFeatures   int         `json:"n_features"`
		Trees       []*treeNode `json:"trees"`
	}{rf.NEstimators, rf.MaxDepth, rf.Bootstrap, rf.RandomState, rf.nFeatures, rf.trees})
}
