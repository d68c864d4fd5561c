package model_selection

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/sklearn/tree"
)

func TestStratifiedKFold_Split(t *testing.T) {
	X, y := labelled(12, 8)
	skf := NewStratifiedKFold(4, false, 0)

	folds, err := skf.Split(X, y)
	require.NoError(t, err)
	require.Len(t, folds, 4)

	seenTest := make(map[int]int)
	for _, fold := range folds {
		assert.Len(t, fold.TestIndices, 5)
		assert.Len(t, fold.TrainIndices, 15)
		counts := classCounts(ExtractRows(y, fold.TestIndices))
		assert.Equal(t, map[int]int{0: 3, 1: 2}, counts)
		for _, idx := range fold.TestIndices {
			seenTest[idx]++
		}
	}
	// every row is held out exactly once
	assert.Len(t, seenTest, 20)
	for _, n := range seenTest {
		assert.Equal(t, 1, n)
	}
}

func TestStratifiedKFold_UnevenClasses(t *testing.T) {
	X, y := labelled(7, 5)
	skf := NewStratifiedKFold(3, true, 11)

	folds, err := skf.Split(X, y)
	require.NoError(t, err)

	// class 0: 3,2,2  class 1: 2,2,1
	sizes := []int{5, 4, 3}
	for i, fold := range folds {
		assert.Len(t, fold.TestIndices, sizes[i])
	}

	again, err := skf.Split(X, y)
	require.NoError(t, err)
	assert.Equal(t, folds, again)
}

func TestStratifiedKFold_Validate(t *testing.T) {
	_, y := labelled(10, 3)

	assert.Equal(t, errors.CodeInsufficientSamples, errors.Code(NewStratifiedKFold(1, false, 0).Validate(y)))
	assert.Equal(t, errors.CodeInsufficientSamples, errors.Code(NewStratifiedKFold(20, false, 0).Validate(y)))
	assert.Equal(t, errors.CodeInsufficientSamples, errors.Code(NewStratifiedKFold(4, false, 0).Validate(y)))
	assert.NoError(t, NewStratifiedKFold(3, false, 0).Validate(y))
}

func TestCrossValScore(t *testing.T) {
	X, y := labelled(30, 30)
	// the class is recoverable from column 0 parity only through memorisation,
	// so use a column that separates the classes cleanly
	n, _ := X.Dims()
	for i := 0; i < n; i++ {
		X.Set(i, 1, y.At(i, 0)*10+float64(i%3))
	}

	cv := NewStratifiedKFold(5, true, 42)
	result, err := CrossValScore(context.Background(), tree.NewDecisionTreeClassifier(), X, y, cv, WithNJobs(2))
	require.NoError(t, err)

	require.Len(t, result.Scores, 5)
	require.Len(t, result.FitTimes, 5)
	for _, s := range result.Scores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Equal(t, 1.0, result.Mean())
	assert.Equal(t, 0.0, result.Std())
}

func TestCVResultStatistics(t *testing.T) {
	r := &CVResult{Scores: []float64{0.8, 0.9, 1.0, 0.9, 0.9}}
	assert.InDelta(t, 0.9, r.Mean(), 1e-12)
	// population std: sqrt(0.004)
	assert.InDelta(t, math.Sqrt(0.004), r.Std(), 1e-12)
	assert.InDelta(t, 2*math.Sqrt(0.004), r.Spread(), 1e-12)
	assert.Equal(t, "0.9000 (+/- 0.1265)", r.String())

	empty := &CVResult{}
	assert.Equal(t, 0.0, empty.Mean())
	assert.Equal(t, 0.0, empty.Std())
}

type panickyEstimator struct{}

func (panickyEstimator) Fit(X, y mat.Matrix) error { panic("fit exploded") }

func (panickyEstimator) Score(X, y mat.Matrix) (float64, error) { return 0, nil }

func (p panickyEstimator) Clone() panickyEstimator { return p }

func TestCrossValScore_RecoversFoldPanic(t *testing.T) {
	X, y := labelled(10, 10)

	_, err := CrossValScore(context.Background(), panickyEstimator{}, X, y, NewStratifiedKFold(5, false, 0))
	require.Error(t, err)

	var panicErr *errors.PanicError
	assert.True(t, errors.As(err, &panicErr))
}

func TestCrossValScore_Cancelled(t *testing.T) {
	X, y := labelled(10, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CrossValScore(ctx, tree.NewDecisionTreeClassifier(), X, y, NewStratifiedKFold(5, false, 0))
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestCrossValScore_SplitError(t *testing.T) {
	X, y := labelled(3, 3)

	_, err := CrossValScore(context.Background(), tree.NewDecisionTreeClassifier(), X, y, NewStratifiedKFold(5, false, 0))
	assert.Equal(t, errors.CodeInsufficientSamples, errors.Code(err))
}
