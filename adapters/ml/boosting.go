package ml

import (
	"encoding/json"
	"math/rand"

	"batteryflow/domain/core"
	"batteryflow/ports"
)

// GradientBoosting fits depth-limited trees to squared-error residuals.
// Leaf weights are sum(residual)/(n+lambda) and a split must have positive gain.
type GradientBoosting struct {
	NEstimators  int
	LearningRate float64
	MaxDepth     int
	Lambda       float64
	RandomState  int64

	base      float64
	trees     []*treeNode
	nFeatures int
}

// BoostingOption configures GradientBoosting
type BoostingOption func(*GradientBoosting)

func WithRounds(n int) BoostingOption             { return func(g *GradientBoosting) { g.NEstimators = n } }
func WithLearningRate(eta float64) BoostingOption { return func(g *GradientBoosting) { g.LearningRate = eta } }
func WithBoostingMaxDepth(d int) BoostingOption   { return func(g *GradientBoosting) { g.MaxDepth = d } }
func WithLambda(l float64) BoostingOption         { return func(g *GradientBoosting) { g.Lambda = l } }
func WithBoostingRandomState(s int64) BoostingOption {
	return func(g *GradientBoosting) { g.RandomState = s }
}

// NewGradientBoosting returns 100 rounds of depth-6 trees with eta 0.3 and lambda 1
func NewGradientBoosting(opts ...BoostingOption) *GradientBoosting {
	g := &GradientBoosting{
		NEstimators:  100,
		LearningRate: 0.3,
		MaxDepth:     6,
		Lambda:       1,
		RandomState:  42,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Fit starts from the target mean and adds one tree per round
func (g *GradientBoosting) Fit(X [][]float64, y []float64) error {
	p, err := checkXY("gradient_boosting", X, y)
	if err != nil {
		return err
	}
	if g.NEstimators <= 0 || g.LearningRate <= 0 || g.MaxDepth <= 0 || g.Lambda < 0 {
		return core.NewInvalidArgumentError("gradient_boosting", "rounds, learning rate and depth must be positive and lambda non-negative")
	}

	n := len(X)
	g.base = 0
	for _, v := range y {
		g.base += v
	}
	g.base /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.base
	}
	residual := make([]float64, n)
	all := indices(n)
	rnd := rand.New(rand.NewSource(g.RandomState))
	grower := treeGrower{maxDepth: g.MaxDepth, lambda: g.Lambda, minGain: 1e-6, minLeaf: 1}

	g.trees = make([]*treeNode, 0, g.NEstimators)
	for round := 0; round < g.NEstimators; round++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		tree := grower.grow(X, residual, all, rnd)
		for i, x := range X {
			pred[i] += g.LearningRate * tree.predict(x)
		}
		g.trees = append(g.trees, tree)
	}
	g.nFeatures = p
	return nil
}

// Predict sums the base score and the shrunken tree outputs
func (g *GradientBoosting) Predict(X [][]float64) ([]float64, error) {
	if err := checkFitted("gradient_boosting", g.trees != nil, g.nFeatures, X); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, x := range X {
		s := g.base
		for _, t := range g.trees {
			s += g.LearningRate * t.predict(x)
		}
		out[i] = s
	}
	return out, nil
}

// Family implements ports.Model
func (g *GradientBoosting) Family() ports.ModelFamily { return ports.FamilyBoosting }

// MarshalJSON encodes the hyperparameters, base score and trees
func (g *GradientBoosting) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		NEstimators  int         `json:"n_estimators"`
		LearningRate float64     `json:"learning_rate"`
		MaxDepth     int         `json:"max_depth"`
		Lambda       float64     `json:"lambda"`
		RandomState  int64       `json:"random_state"`
		BaseScore    float64     `json:"base_score"`
		NFeatures    int         `json:"n_features"`
		Trees        []*treeNode `json:"trees"`
	}{g.NEstimators, g.LearningRate, g.MaxDepth, g.Lambda, g.RandomState, g.base, g.nFeatures, g.trees})
}
