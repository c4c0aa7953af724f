// Package stats holds sampling, scoring and outlier statistics over plain float slices.
package stats

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"batteryflow/domain/core"
)

// TrainTestSplit shuffles n positions and returns ceil(testSize*n) of them as the test set
func TrainTestSplit(n int, testSize float64, rnd *rand.Rand) (train, test []int, err error) {
	nTest, nTrain, err := shuffleSizes(n, testSize)
	if err != nil {
		return nil, nil, err
	}
	perm := rnd.Perm(n)
	test = perm[:nTest]
	train = perm[nTest : nTest+nTrain]
	return train, test, nil
}

// StratifiedShuffleSplit draws one train/test split that preserves class proportions.
// The test partition has ceil(testSize*n) rows; per-class counts follow the approximate mode
// of the multivariate hypergeometric distribution.
func StratifiedShuffleSplit(labels []int, testSize float64, rnd *rand.Rand) (train, test []int, err error) {
	nTest, _, err := shuffleSizes(len(labels), testSize)
	if err != nil {
		return nil, nil, err
	}
	return StratifiedShuffleSplitN(labels, nTest, rnd)
}

// StratifiedShuffleSplitN is StratifiedShuffleSplit with an absolute test size of nTest rows
func StratifiedShuffleSplitN(labels []int, nTest int, rnd *rand.Rand) (train, test []int, err error) {
	n := len(labels)
	if n <= 0 {
		return nil, nil, core.NewInvalidArgumentError("n", "no rows to split")
	}
	if nTest <= 0 || nTest >= n {
		return nil, nil, core.NewInvalidArgumentError("test_size", fmt.Sprintf("%d rows is not in (0, %d)", nTest, n))
	}
	nTrain := n - nTest

	classes, members := groupByClass(labels)
	counts := make([]int, len(classes))
	for i, m := range members {
		counts[i] = len(m)
		if len(m) < 2 {
			return nil, nil, core.NewDataFormatError("stratify", fmt.Sprintf("class %d has only %d member; every class needs at least 2", classes[i], len(m)))
		}
	}
	if nTrain < len(classes) {
		return nil, nil, core.NewInvalidArgumentError("train_size", fmt.Sprintf("%d rows cannot hold %d classes", nTrain, len(classes)))
	}
	if nTest < len(classes) {
		return nil, nil, core.NewInvalidArgumentError("test_size", fmt.Sprintf("%d rows cannot hold %d classes", nTest, len(classes)))
	}

	trainCounts := approximateMode(counts, nTrain, rnd)
	remaining := make([]int, len(counts))
	for i := range counts {
		remaining[i] = counts[i] - trainCounts[i]
	}
	testCounts := approximateMode(remaining, nTest, rnd)

	train = make([]int, 0, nTrain)
	test = make([]int, 0, nTest)
	for i, m := range members {
		perm := rnd.Perm(len(m))
		drawn := make([]int, len(m))
		for k, p := range perm {
			drawn[k] = m[p]
		}
		train = append(train, drawn[:trainCounts[i]]...)
		test = append(test, drawn[trainCounts[i]:trainCounts[i]+testCounts[i]]...)
	}
	rnd.Shuffle(len(train), func(a, b int) { train[a], train[b] = train[b], train[a] })
	rnd.Shuffle(len(test), func(a, b int) { test[a], test[b] = test[b], test[a] })
	return train, test, nil
}

// shuffleSizes returns test and train sizes for a fractional test size in (0, 1)
func shuffleSizes(n int, testSize float64) (nTest, nTrain int, err error) {
	if n <= 0 {
		return 0, 0, core.NewInvalidArgumentError("n", "no rows to split")
	}
	if !(testSize > 0 && testSize < 1) {
		return 0, 0, core.NewInvalidArgumentError("test_size", fmt.Sprintf("%v is not in (0, 1)", testSize))
	}
	nTest = int(math.Ceil(testSize * float64(n)))
	nTrain = n - nTest
	if nTrain <= 0 {
		return 0, 0, core.NewInvalidArgumentError("test_size", fmt.Sprintf("%v of %d rows leaves an empty train set", testSize, n))
	}
	return nTest, nTrain, nil
}

// groupByClass returns the sorted distinct labels and the positions of each, in input order
func groupByClass(labels []int) ([]int, [][]int) {
	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	members := make([][]int, len(classes))
	for i, c := range classes {
		members[i] = byClass[c]
	}
	return classes, members
}

// approximateMode allocates draws to classes proportionally, handing the leftover
// draws to the largest fractional remainders with random tie-breaking
func approximateMode(counts []int, draws int, rnd *rand.Rand) []int {
	total := 0
	for _, c := range counts {
		total += c
	}
	out := make([]int, len(counts))
	if total == 0 {
		return out
	}

	remainder := make([]float64, len(counts))
	assigned := 0
	for i, c := range counts {
		cont := float64(c) / float64(total) * float64(draws)
		out[i] = int(math.Floor(cont))
		remainder[i] = cont - float64(out[i])
		assigned += out[i]
	}

	need := draws - assigned
	if need <= 0 {
		return out
	}

	distinct := append([]float64(nil), remainder...)
	sort.Sort(sort.Reverse(sort.Float64Slice(distinct)))
	for k := 0; k < len(distinct) && need > 0; k++ {
		if k > 0 && distinct[k] == distinct[k-1] {
			continue
		}
		var tied []int
		for i, r := range remainder {
			if r == distinct[k] {
				tied = append(tied, i)
			}
		}
		rnd.Shuffle(len(tied), func(a, b int) { tied[a], tied[b] = tied[b], tied[a] })
		if len(tied) > need {
			tied = tied[:need]
		}
		for _, i := range tied {
			out[i]++
		}
		need -= len(tied)
	}
	return out
}
