package inspection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/sklearn/ensemble"
)

func TestRankFeatures(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	importances := []float64{0.1, 0.4, 0.1, 0.4}

	tests := []struct {
		name string
		k    int
		want []int
	}{
		{"top two", 2, []int{1, 3}},
		{"ties by index", 4, []int{1, 3, 0, 2}},
		{"zero means all", 0, []int{1, 3, 0, 2}},
		{"k above length", 10, []int{1, 3, 0, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked, err := RankFeatures(importances, names, tt.k)
			require.NoError(t, err)
			got := make([]int, len(ranked))
			for i, f := range ranked {
				got[i] = f.Index
				assert.Equal(t, names[f.Index], f.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRankFeatures_Errors(t *testing.T) {
	_, err := RankFeatures(nil, nil, 3)
	assert.Equal(t, errors.CodeNotFitted, errors.Code(err))

	_, err = RankFeatures([]float64{1, 2}, []string{"a"}, 1)
	assert.Equal(t, errors.CodeShapeMismatch, errors.Code(err))

	_, err = RankFeatures([]float64{1, 2}, []string{"a", "b"}, -1)
	assert.Equal(t, errors.CodeInvalidParameters, errors.Code(err))
}

func TestFeatureScoreString(t *testing.T) {
	assert.Equal(t, "feature_03: 0.125", FeatureScore{Name: "feature_03", Index: 3, Importance: 0.125}.String())
}

func TestTopFeatures(t *testing.T) {
	// column 1 decides the label, column 0 is constant
	X := mat.NewDense(8, 2, []float64{
		1, 0, 1, 1, 1, 2, 1, 3,
		1, 10, 1, 11, 1, 12, 1, 13,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	forest := ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(5),
		ensemble.WithMaxFeatures("all"),
		ensemble.WithBootstrap(false),
		ensemble.WithRandomState(1),
	)

	_, err := TopFeatures(forest, []string{"const", "signal"}, 1)
	assert.Equal(t, errors.CodeNotFitted, errors.Code(err))

	require.NoError(t, forest.Fit(X, y))
	top, err := TopFeatures(forest, []string{"const", "signal"}, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "signal", top[0].Name)
	assert.InDelta(t, 1.0, top[0].Importance, 1e-12)
}
