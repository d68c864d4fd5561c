// Package model_selection provides train/test splitting, stratified k-fold
// assignment and cross-validated scoring.
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

// Split is the result of TrainTestSplit. TrainIndices and TestIndices are
// row indices into the source data, disjoint, exhaustive and ascending.
type Split struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest *mat.Dense

	TrainIndices []int
	TestIndices  []int
}

type splitConfig struct {
	testSize    float64
	randomState uint64
	stratify    bool
}

// SplitOption configures TrainTestSplit.
type SplitOption func(*splitConfig)

// WithTestSize sets the held-out fraction, in (0, 1). Default 0.2.
func WithTestSize(p float64) SplitOption {
	return func(c *splitConfig) { c.testSize = p }
}

// WithSplitRandomState seeds the shuffling. Default 0.
func WithSplitRandomState(seed uint64) SplitOption {
	return func(c *splitConfig) { c.randomState = seed }
}

// WithStratify preserves per-class proportions in both subsets. Default true.
func WithStratify(stratify bool) SplitOption {
	return func(c *splitConfig) { c.stratify = stratify }
}

// TrainTestSplit partitions X and y into training and held-out subsets.
//
// The held-out subset has ceil(testSize·n) rows. With stratification each
// class c contributes t_c rows, where t_c is count_c·nTest/n rounded by the
// largest-remainder method (ties go to the earlier class). Inside each class
// the rows are shuffled with the seeded source and the first t_c are held out.
func TrainTestSplit(X, y mat.Matrix, opts ...SplitOption) (*Split, error) {
	cfg := splitConfig{testSize: 0.2, stratify: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if math.IsNaN(cfg.testSize) || cfg.testSize <= 0 || cfg.testSize >= 1 {
		return nil, errors.NewValidationError("test_size", "must be in the open interval (0, 1)", cfg.testSize)
	}
	n, _ := X.Dims()
	yRows, _ := y.Dims()
	if yRows != n {
		return nil, errors.NewDimensionError("TrainTestSplit", n, yRows, 0)
	}

	nTest := int(math.Ceil(cfg.testSize*float64(n) - 1e-9))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, errors.NewInsufficientSamplesError("TrainTestSplit", -1, 2, n)
	}

	rng := rand.New(rand.NewPCG(cfg.randomState, cfg.randomState))
	var testIdx []int
	if cfg.stratify {
		var err error
		testIdx, err = stratifiedTestIndices(y, n, nTest, rng)
		if err != nil {
			return nil, err
		}
	} else {
		testIdx = rng.Perm(n)[:nTest]
	}

	isTest := make([]bool, n)
	for _, i := range testIdx {
		isTest[i] = true
	}
	split := &Split{
		TrainIndices: make([]int, 0, nTrain),
		TestIndices:  make([]int, 0, nTest),
	}
	for i := 0; i < n; i++ {
		if isTest[i] {
			split.TestIndices = append(split.TestIndices, i)
		} else {
			split.TrainIndices = append(split.TrainIndices, i)
		}
	}

	split.XTrain = ExtractRows(X, split.TrainIndices)
	split.XTest = ExtractRows(X, split.TestIndices)
	split.YTrain = ExtractRows(y, split.TrainIndices)
	split.YTest = ExtractRows(y, split.TestIndices)
	return split, nil
}

func stratifiedTestIndices(y mat.Matrix, n, nTest int, rng *rand.Rand) ([]int, error) {
	classes, members := groupByClass(y)

	for c, idx := range members {
		if len(idx) < 2 {
			return nil, errors.NewInsufficientSamplesError("TrainTestSplit", classes[c], 2, len(idx))
		}
	}
	nClasses := len(classes)
	if nTest < nClasses {
		return nil, errors.NewInsufficientSamplesError("TrainTestSplit", -1, nClasses, nTest)
	}
	if n-nTest < nClasses {
		return nil, errors.NewInsufficientSamplesError("TrainTestSplit", -1, nClasses, n-nTest)
	}

	counts := make([]int, nClasses)
	for c, idx := range members {
		counts[c] = len(idx)
	}
	alloc := largestRemainder(counts, n, nTest)

	testIdx := make([]int, 0, nTest)
	for c, idx := range members {
		shuffled := append([]int(nil), idx...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		testIdx = append(testIdx, shuffled[:alloc[c]]...)
	}
	return testIdx, nil
}

// largestRemainder apportions total seats among groups in proportion to
// counts/n. Leftover seats go to the largest fractional remainders, ties to
// the lower group index.
func largestRemainder(counts []int, n, total int) []int {
	alloc := make([]int, len(counts))
	remainders := make([]float64, len(counts))
	assigned := 0
	for c, count := range counts {
		exact := float64(count) * float64(total) / float64(n)
		alloc[c] = int(math.Floor(exact))
		remainders[c] = exact - float64(alloc[c])
		assigned += alloc[c]
	}

	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]+1e-12
	})
	for i := 0; assigned < total; i++ {
		c := order[i%len(order)]
		if alloc[c] < counts[c] {
			alloc[c]++
			assigned++
		}
	}
	return alloc
}

// groupByClass returns the sorted distinct labels of y and the ascending
// row indices belonging to each.
func groupByClass(y mat.Matrix) ([]int, [][]int) {
	n, _ := y.Dims()
	byLabel := make(map[int][]int)
	for i := 0; i < n; i++ {
		label := int(y.At(i, 0))
		byLabel[label] = append(byLabel[label], i)
	}

	classes := make([]int, 0, len(byLabel))
	for label := range byLabel {
		classes = append(classes, label)
	}
	sort.Ints(classes)

	members := make([][]int, len(classes))
	for c, label := range classes {
		members[c] = byLabel[label]
	}
	return classes, members
}

// ExtractRows copies the given rows of m, in order, into a new matrix.
func ExtractRows(m mat.Matrix, indices []int) *mat.Dense {
	_, cols := m.Dims()
	if len(indices) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(indices), cols, nil)
	row := make([]float64, cols)
	for i, idx := range indices {
		mat.Row(row, idx, m)
		out.SetRow(i, row)
	}
	return out
}
