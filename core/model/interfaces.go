// Package model provides the estimator contracts, fitted-state tracking and
// gob persistence shared by the forestkit estimators.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns the mean accuracy on the given test data and labels.
	Score(X, y mat.Matrix) (float64, error)
}

// Classifier combines interfaces for classification models.
type Classifier interface {
	Fitter
	Predictor
	Scorer

	// PredictProba returns probability estimates for each class.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the unique classes seen during fitting.
	Classes() []int
}

// Estimator is the minimal contract the cross-validator needs: a model that
// can be fitted and scored.
type Estimator interface {
	Fitter
	Scorer
}

// Cloner is implemented by estimators that can produce an unfitted copy of
// themselves with identical hyperparameters.
type Cloner[E any] interface {
	Clone() E
}

// CloneableEstimator is an Estimator that can be cloned per fold. E is the
// concrete estimator type, e.g. *pipeline.Pipeline.
type CloneableEstimator[E any] interface {
	Estimator
	Cloner[E]
}

// ImportanceReporter is implemented by fitted models exposing impurity-based
// feature importances normalised to sum to 1.
type ImportanceReporter interface {
	FeatureImportances() ([]float64, error)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}
