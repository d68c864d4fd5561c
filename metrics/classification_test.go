package metrics

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

func column(v ...float64) *mat.Dense {
	return mat.NewDense(len(v), 1, v)
}

func captureWarnings(t *testing.T) *[]error {
	t.Helper()
	var warnings []error
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })
	return &warnings
}

func TestAccuracyScore(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 2, 1, 0},
			want:  1.0,
		},
		{
			name:  "80% accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 1, 1, 0},
			want:  0.8,
		},
		{
			name:  "Zero accuracy",
			yTrue: []float64{0, 0, 0},
			yPred: []float64{1, 1, 1},
			want:  0.0,
		},
		{
			name:    "Length mismatch",
			yTrue:   []float64{0, 1},
			yPred:   []float64{0},
			wantErr: true,
		},
		{
			name:    "Empty vectors",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred mat.Matrix
			if len(tt.yTrue) > 0 {
				yTrue = column(tt.yTrue...)
			}
			if len(tt.yPred) > 0 {
				yPred = column(tt.yPred...)
			}

			got, err := AccuracyScore(yTrue, yPred)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestConfusionMatrix(t *testing.T) {
	yTrue := column(0, 0, 1, 1, 2, 2)
	yPred := column(0, 1, 1, 1, 2, 0)

	cm, err := ConfusionMatrix(yTrue, yPred, nil)
	require.NoError(t, err)

	want := mat.NewDense(3, 3, []float64{
		1, 1, 0,
		0, 2, 0,
		1, 0, 1,
	})
	assert.True(t, mat.Equal(want, cm))

	// restricting labels drops rows and columns of the others
	cm, err = ConfusionMatrix(yTrue, yPred, []int{1, 2})
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{2, 0, 0, 1}), cm))

	_, err = ConfusionMatrix(yTrue, yPred, []int{1, 1})
	assert.Equal(t, errors.CodeInvalidParameters, errors.Code(err))
}

func TestClassificationReport(t *testing.T) {
	captureWarnings(t)

	yTrue := column(0, 0, 0, 0, 1, 1, 1, 1, 1, 1)
	yPred := column(0, 0, 0, 1, 1, 1, 1, 1, 0, 0)

	report, err := ClassificationReport(yTrue, yPred, nil)
	require.NoError(t, err)
	require.Len(t, report.Classes, 2)

	c0, c1 := report.Classes[0], report.Classes[1]
	assert.InDelta(t, 3.0/5.0, c0.Precision, 1e-12)
	assert.InDelta(t, 3.0/4.0, c0.Recall, 1e-12)
	assert.InDelta(t, 2*0.6*0.75/(0.6+0.75), c0.F1, 1e-12)
	assert.Equal(t, 4, c0.Support)
	assert.InDelta(t, 4.0/5.0, c1.Precision, 1e-12)
	assert.InDelta(t, 4.0/6.0, c1.Recall, 1e-12)
	assert.Equal(t, 6, c1.Support)

	assert.InDelta(t, 0.7, report.Accuracy, 1e-12)
	assert.InDelta(t, (0.6+0.8)/2, report.MacroAvg.Precision, 1e-12)
	assert.InDelta(t, (0.6*4+0.8*6)/10, report.WeightedAvg.Precision, 1e-12)
	assert.Equal(t, 10, report.WeightedAvg.Support)
}

func TestClassificationReport_UndefinedMetric(t *testing.T) {
	warnings := captureWarnings(t)

	// label 2 is never predicted and never present
	report, err := ClassificationReport(column(0, 1, 1), column(0, 1, 0), []int{0, 1, 2})
	require.NoError(t, err)

	c2 := report.Classes[2]
	assert.Equal(t, 0.0, c2.Precision)
	assert.Equal(t, 0.0, c2.Recall)
	assert.Equal(t, 0.0, c2.F1)
	assert.False(t, math.IsNaN(report.MacroAvg.F1))

	require.Len(t, *warnings, 2)
	var w *errors.UndefinedMetricWarning
	require.True(t, errors.As((*warnings)[0], &w))
	assert.Equal(t, "precision", w.Metric)
	assert.Equal(t, 2, w.Label)
	assert.Contains(t, (*warnings)[1].Error(), "'recall' is ill-defined for label 2")
}

func TestReportString(t *testing.T) {
	captureWarnings(t)

	report, err := ClassificationReport(column(0, 0, 1, 1), column(0, 0, 1, 1), nil)
	require.NoError(t, err)

	want := strings.Join([]string{
		"              precision    recall  f1-score   support",
		"",
		"           0       1.00      1.00      1.00         2",
		"           1       1.00      1.00      1.00         2",
		"",
		"    accuracy                           1.00         4",
		"   macro avg       1.00      1.00      1.00         4",
		"weighted avg       1.00      1.00      1.00         4",
		"",
	}, "\n")
	assert.Equal(t, want, report.String())
}
