package ensemble

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

// blobs returns two shifted Gaussian clusters. Columns 0 and 1 carry the
// class signal, the remaining columns are noise.
func blobs(n, nFeatures int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, nFeatures, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		label := i % 2
		y.Set(i, 0, float64(label))
		for j := 0; j < nFeatures; j++ {
			v := rng.NormFloat64()
			if j < 2 {
				v += 2.5 * float64(2*label-1)
			}
			X.Set(i, j, v)
		}
	}
	return X, y
}

func TestRandomForestClassifier_FitPredict(t *testing.T) {
	X, y := blobs(200, 6, 1)

	rf := NewRandomForestClassifier(WithNEstimators(25), WithRandomState(42))
	require.NoError(t, rf.Fit(X, y))
	assert.Len(t, rf.Estimators(), 25)
	assert.Equal(t, []int{0, 1}, rf.Classes())
	assert.Equal(t, 6, rf.NFeatures())

	XTest, yTest := blobs(100, 6, 2)
	score, err := rf.Score(XTest, yTest)
	require.NoError(t, err)
	assert.Greater(t, score, 0.9)

	proba, err := rf.PredictProba(XTest)
	require.NoError(t, err)
	pred, err := rf.Predict(XTest)
	require.NoError(t, err)

	rows, cols := proba.Dims()
	require.Equal(t, 100, rows)
	require.Equal(t, 2, cols)
	for i := 0; i < rows; i++ {
		p0, p1 := proba.At(i, 0), proba.At(i, 1)
		assert.InDelta(t, 1.0, p0+p1, 1e-9)
		want := 0.0
		if p1 > p0 {
			want = 1
		}
		assert.Equal(t, want, pred.At(i, 0), "row %d", i)
	}
}

func TestRandomForestClassifier_Deterministic(t *testing.T) {
	X, y := blobs(120, 5, 3)

	fit := func(nJobs int) mat.Matrix {
		rf := NewRandomForestClassifier(WithNEstimators(15), WithRandomState(7), WithNJobs(nJobs))
		require.NoError(t, rf.Fit(X, y))
		proba, err := rf.PredictProba(X)
		require.NoError(t, err)
		return proba
	}

	// the same seed gives the same forest regardless of worker count
	assert.True(t, mat.Equal(fit(1), fit(4)))
	assert.True(t, mat.Equal(fit(0), fit(0)))
}

func TestRandomForestClassifier_FeatureImportances(t *testing.T) {
	X, y := blobs(300, 6, 5)

	rf := NewRandomForestClassifier(WithNEstimators(30), WithRandomState(1))
	_, err := rf.FeatureImportances()
	assert.Equal(t, errors.CodeNotFitted, errors.Code(err))

	require.NoError(t, rf.Fit(X, y))
	importances, err := rf.FeatureImportances()
	require.NoError(t, err)
	require.Len(t, importances, 6)

	sum := 0.0
	for _, v := range importances {
		assert.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	for noise := 2; noise < 6; noise++ {
		assert.Greater(t, importances[0], importances[noise])
		assert.Greater(t, importances[1], importances[noise])
	}
}

func TestRandomForestClassifier_MultiClassWithoutBootstrap(t *testing.T) {
	X := mat.NewDense(9, 1, []float64{0, 1, 2, 10, 11, 12, 20, 21, 22})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	rf := NewRandomForestClassifier(WithNEstimators(5), WithBootstrap(false), WithMaxFeatures(MaxFeaturesAll))
	require.NoError(t, rf.Fit(X, y))

	score, err := rf.Score(X, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestRandomForestClassifier_Errors(t *testing.T) {
	X, y := blobs(20, 3, 9)

	rf := NewRandomForestClassifier(WithNEstimators(3))
	_, err := rf.Predict(X)
	assert.Equal(t, errors.CodeNotFitted, errors.Code(err))

	require.NoError(t, rf.Fit(X, y))
	_, err = rf.PredictProba(mat.NewDense(2, 4, nil))
	assert.Equal(t, errors.CodeShapeMismatch, errors.Code(err))

	err = NewRandomForestClassifier(WithNEstimators(0)).Fit(X, y)
	assert.Equal(t, errors.CodeInvalidParameters, errors.Code(err))

	err = NewRandomForestClassifier(WithMaxFeatures("half")).Fit(X, y)
	assert.Equal(t, errors.CodeInvalidParameters, errors.Code(err))

	err = rf.Fit(X, mat.NewDense(3, 1, nil))
	assert.Equal(t, errors.CodeShapeMismatch, errors.Code(err))
	assert.True(t, rf.IsFitted(), "failed fit keeps the previous model")
}

func TestRandomForestClassifier_CloneAndParams(t *testing.T) {
	rf := NewRandomForestClassifier(WithNEstimators(12), WithMaxDepth(4), WithRandomState(3))
	X, y := blobs(40, 4, 11)
	require.NoError(t, rf.Fit(X, y))

	clone := rf.Clone()
	assert.False(t, clone.IsFitted())
	assert.Equal(t, rf.GetParams(), clone.GetParams())
	assert.Equal(t, 12, clone.GetParams()["n_estimators"])
	assert.Contains(t, rf.String(), "n_estimators=12")
}

func TestRandomForestClassifier_BinaryRoundTrip(t *testing.T) {
	X, y := blobs(80, 4, 13)
	rf := NewRandomForestClassifier(WithNEstimators(10), WithRandomState(5))
	require.NoError(t, rf.Fit(X, y))

	data, err := rf.MarshalBinary()
	require.NoError(t, err)

	var restored RandomForestClassifier
	require.NoError(t, restored.UnmarshalBinary(data))

	want, _ := rf.PredictProba(X)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))

	wantImp, _ := rf.FeatureImportances()
	gotImp, err := restored.FeatureImportances()
	require.NoError(t, err)
	assert.Equal(t, wantImp, gotImp)
}

func TestResolveMaxFeatures(t *testing.T) {
	tests := []struct {
		strategy  string
		nFeatures int
		want      int
	}{
		{MaxFeaturesSqrt, 20, 4},
		{MaxFeaturesSqrt, 1, 1},
		{MaxFeaturesLog2, 20, 4},
		{MaxFeaturesLog2, 1, 1},
		{MaxFeaturesAll, 20, 20},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			rf := NewRandomForestClassifier(WithMaxFeatures(tt.strategy))
			assert.Equal(t, tt.want, rf.resolveMaxFeatures(tt.nFeatures))
		})
	}
}
