// Package pipeline chains a StandardScaler and a RandomForestClassifier into
// a single estimator and provides evaluation, batch prediction and artifact
// persistence on top of it.
package pipeline

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/core/model"
	"github.com/YuminosukeSato/forestkit/datasets"
	"github.com/YuminosukeSato/forestkit/metrics"
	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/pkg/log"
	"github.com/YuminosukeSato/forestkit/preprocessing"
	"github.com/YuminosukeSato/forestkit/sklearn/ensemble"
)

// Step names.
const (
	ScalerStep     = "scaler"
	ClassifierStep = "classifier"
)

// Step represents a single named step in the pipeline.
type Step struct {
	Name      string
	Estimator interface{}
}

// Pipeline standardizes features and then classifies them.
//
// A pipeline is either fully unfitted or fully fitted. Fit works on clones
// of both steps and swaps them in only after both have been fitted, so a
// failed Fit leaves the previous state untouched.
type Pipeline struct {
	state  *model.StateManager
	logger log.Logger

	scaler       *preprocessing.StandardScaler
	classifier   *ensemble.RandomForestClassifier
	featureNames []string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFeatureNames names the input columns. When unset, Fit names them
// feature_00, feature_01, ...
func WithFeatureNames(names []string) Option {
	return func(p *Pipeline) {
		p.featureNames = append([]string(nil), names...)
	}
}

// New creates a pipeline from an unfitted scaler and classifier. The steps
// are used as templates and are never fitted in place.
func New(scaler *preprocessing.StandardScaler, classifier *ensemble.RandomForestClassifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		state:      model.NewStateManager(),
		logger:     log.GetLoggerWithName("Pipeline"),
		scaler:     scaler,
		classifier: classifier,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fit fits the scaler on X, transforms X and fits the classifier on the
// transformed data.
func (p *Pipeline) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "Pipeline.Fit")

	rows, cols := X.Dims()
	yRows, _ := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("Pipeline.Fit", rows, yRows, 0)
	}
	names := p.featureNames
	if len(names) == 0 {
		names = datasets.FeatureNames(cols)
	} else if len(names) != cols {
		return errors.NewDimensionError("Pipeline.Fit", len(names), cols, 1)
	}

	start := time.Now()
	scaler := p.scaler.Clone()
	classifier := p.classifier.Clone()

	Xt, err := scaler.FitTransform(X)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to fit step '%s'", ScalerStep))
	}
	if err := classifier.Fit(Xt, y); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to fit step '%s'", ClassifierStep))
	}

	p.scaler = scaler
	p.classifier = classifier
	p.featureNames = names
	p.state.SetDimensions(cols, rows)
	p.state.SetFitted()

	p.logger.Info("Pipeline fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// transform applies the fitted scaler after checking the fitted state and
// the column count.
func (p *Pipeline) transform(X mat.Matrix, method string) (mat.Matrix, error) {
	if err := p.state.RequireFitted("Pipeline", method); err != nil {
		return nil, err
	}
	_, cols := X.Dims()
	if err := p.state.RequireFeatures("Pipeline."+method, cols); err != nil {
		return nil, err
	}
	Xt, err := p.scaler.Transform(X)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to transform at step '%s'", ScalerStep))
	}
	return Xt, nil
}

// Predict returns an n×1 matrix of predicted labels.
func (p *Pipeline) Predict(X mat.Matrix) (mat.Matrix, error) {
	Xt, err := p.transform(X, "Predict")
	if err != nil {
		return nil, err
	}
	return p.classifier.Predict(Xt)
}

// PredictProba returns class probabilities, columns ordered as Classes().
func (p *Pipeline) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	Xt, err := p.transform(X, "PredictProba")
	if err != nil {
		return nil, err
	}
	return p.classifier.PredictProba(Xt)
}

// Score returns the accuracy of Predict(X) against y.
func (p *Pipeline) Score(X, y mat.Matrix) (float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyScore(y, pred)
}

// Clone returns an unfitted pipeline with identical hyperparameters.
func (p *Pipeline) Clone() *Pipeline {
	clone := New(p.scaler.Clone(), p.classifier.Clone())
	clone.featureNames = append([]string(nil), p.featureNames...)
	clone.logger = p.logger
	return clone
}

// IsFitted reports whether Fit has completed successfully.
func (p *Pipeline) IsFitted() bool {
	return p.state.IsFitted()
}

// NFeatures returns the number of columns seen during Fit.
func (p *Pipeline) NFeatures() int {
	n, _ := p.state.GetDimensions()
	return n
}

// Steps returns the steps in execution order.
func (p *Pipeline) Steps() []Step {
	return []Step{
		{Name: ScalerStep, Estimator: p.scaler},
		{Name: ClassifierStep, Estimator: p.classifier},
	}
}

// NamedSteps returns the steps keyed by name.
func (p *Pipeline) NamedSteps() map[string]interface{} {
	return map[string]interface{}{
		ScalerStep:     p.scaler,
		ClassifierStep: p.classifier,
	}
}

// Scaler returns the scaler step.
func (p *Pipeline) Scaler() *preprocessing.StandardScaler {
	return p.scaler
}

// Classifier returns the classifier step.
func (p *Pipeline) Classifier() *ensemble.RandomForestClassifier {
	return p.classifier
}

// FeatureNames returns the input column names.
func (p *Pipeline) FeatureNames() []string {
	return append([]string(nil), p.featureNames...)
}

// Classes returns the class labels seen during Fit.
func (p *Pipeline) Classes() []int {
	if !p.state.IsFitted() {
		return nil
	}
	return p.classifier.Classes()
}

// FeatureImportances forwards the fitted classifier's importances.
func (p *Pipeline) FeatureImportances() ([]float64, error) {
	if err := p.state.RequireFitted("Pipeline", "FeatureImportances"); err != nil {
		return nil, err
	}
	return p.classifier.FeatureImportances()
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("Pipeline(steps=[('%s', %s), ('%s', %s)])",
		ScalerStep, p.scaler, ClassifierStep, p.classifier)
}
