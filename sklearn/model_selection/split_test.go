package model_selection

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

// labelled returns X with the row index in column 0 and y with the given
// class counts, classes laid out in interleaved order.
func labelled(counts ...int) (*mat.Dense, *mat.Dense) {
	var labels []float64
	remaining := append([]int(nil), counts...)
	for {
		added := false
		for c := range remaining {
			if remaining[c] > 0 {
				labels = append(labels, float64(c))
				remaining[c]--
				added = true
			}
		}
		if !added {
			break
		}
	}
	n := len(labels)
	X := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i*i))
	}
	return X, mat.NewDense(n, 1, labels)
}

func classCounts(y mat.Matrix) map[int]int {
	n, _ := y.Dims()
	counts := map[int]int{}
	for i := 0; i < n; i++ {
		counts[int(y.At(i, 0))]++
	}
	return counts
}

func TestTrainTestSplit_ReferenceSizes(t *testing.T) {
	X, y := labelled(500, 500)

	split, err := TrainTestSplit(X, y, WithTestSize(0.2), WithSplitRandomState(42))
	require.NoError(t, err)

	assert.Len(t, split.TrainIndices, 800)
	assert.Len(t, split.TestIndices, 200)
	assert.Equal(t, map[int]int{0: 100, 1: 100}, classCounts(split.YTest))
	assert.Equal(t, map[int]int{0: 400, 1: 400}, classCounts(split.YTrain))

	r, c := split.XTrain.Dims()
	assert.Equal(t, 800, r)
	assert.Equal(t, 2, c)
}

func TestTrainTestSplit_DisjointExhaustiveAscending(t *testing.T) {
	X, y := labelled(37, 21, 12)

	split, err := TrainTestSplit(X, y, WithTestSize(0.25), WithSplitRandomState(3))
	require.NoError(t, err)

	assert.True(t, sort.IntsAreSorted(split.TrainIndices))
	assert.True(t, sort.IntsAreSorted(split.TestIndices))

	seen := make(map[int]bool)
	for _, idx := range append(append([]int(nil), split.TrainIndices...), split.TestIndices...) {
		assert.False(t, seen[idx], "index %d appears twice", idx)
		seen[idx] = true
	}
	assert.Len(t, seen, 70)

	// rows are copied from the source in index order
	for i, idx := range split.TestIndices {
		assert.Equal(t, float64(idx), split.XTest.At(i, 0))
		assert.Equal(t, y.At(idx, 0), split.YTest.At(i, 0))
	}

	// ceil(0.25·70) = 18, largest remainder over 37/21/12
	assert.Len(t, split.TestIndices, 18)
	assert.Equal(t, map[int]int{0: 10, 1: 5, 2: 3}, classCounts(split.YTest))
}

func TestTrainTestSplit_Deterministic(t *testing.T) {
	X, y := labelled(50, 50)

	a, err := TrainTestSplit(X, y, WithSplitRandomState(42))
	require.NoError(t, err)
	b, err := TrainTestSplit(X, y, WithSplitRandomState(42))
	require.NoError(t, err)
	c, err := TrainTestSplit(X, y, WithSplitRandomState(43))
	require.NoError(t, err)

	assert.Equal(t, a.TestIndices, b.TestIndices)
	assert.NotEqual(t, a.TestIndices, c.TestIndices)
}

func TestTrainTestSplit_Unstratified(t *testing.T) {
	X, y := labelled(90, 10)

	split, err := TrainTestSplit(X, y, WithStratify(false), WithTestSize(0.3), WithSplitRandomState(1))
	require.NoError(t, err)
	assert.Len(t, split.TestIndices, 30)
	assert.Len(t, split.TrainIndices, 70)
}

func TestTrainTestSplit_Errors(t *testing.T) {
	X, y := labelled(10, 10)

	tests := []struct {
		name string
		X, y mat.Matrix
		opts []SplitOption
		code string
	}{
		{"test size zero", X, y, []SplitOption{WithTestSize(0)}, errors.CodeInvalidParameters},
		{"test size one", X, y, []SplitOption{WithTestSize(1)}, errors.CodeInvalidParameters},
		{"row mismatch", X, mat.NewDense(3, 1, nil), nil, errors.CodeShapeMismatch},
		{"singleton class", mat.NewDense(5, 1, nil), mat.NewDense(5, 1, []float64{0, 0, 0, 0, 1}), nil, errors.CodeInsufficientSamples},
		{"test smaller than classes", mat.NewDense(6, 1, nil), mat.NewDense(6, 1, []float64{0, 0, 1, 1, 2, 2}), []SplitOption{WithTestSize(0.3)}, errors.CodeInsufficientSamples},
		{"train smaller than classes", mat.NewDense(6, 1, nil), mat.NewDense(6, 1, []float64{0, 0, 1, 1, 2, 2}), []SplitOption{WithTestSize(0.9)}, errors.CodeInsufficientSamples},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TrainTestSplit(tt.X, tt.y, tt.opts...)
			assert.Equal(t, tt.code, errors.Code(err))
		})
	}
}

func TestLargestRemainder(t *testing.T) {
	assert.Equal(t, []int{1, 1}, largestRemainder([]int{3, 3}, 6, 2))
	// equal remainders go to the earlier class
	assert.Equal(t, []int{2, 1}, largestRemainder([]int{5, 5}, 10, 3))
	assert.Equal(t, []int{10, 5, 3}, largestRemainder([]int{37, 21, 12}, 70, 18))
}
