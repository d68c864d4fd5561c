// Package ensemble implements a random forest classifier on top of the CART
// trees in sklearn/tree.
package ensemble

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/core/model"
	"github.com/YuminosukeSato/forestkit/core/parallel"
	"github.com/YuminosukeSato/forestkit/metrics"
	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/pkg/log"
	"github.com/YuminosukeSato/forestkit/sklearn/tree"
)

// Supported max_features strategies.
const (
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesLog2 = "log2"
	MaxFeaturesAll  = "all"
)

// RandomForestClassifier averages the class probabilities of bootstrap
// trained decision trees.
type RandomForestClassifier struct {
	state  *model.StateManager
	logger log.Logger

	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string
	bootstrap       bool
	randomState     uint64
	nJobs           int

	trees       []*tree.DecisionTreeClassifier
	classes     []int
	importances []float64
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion sets the split criterion of every tree.
func WithCriterion(criterion string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithMaxDepth limits tree depth. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithMinSamplesSplit sets min_samples_split of every tree.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets min_samples_leaf of every tree.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature sampling strategy:
// "sqrt" (default), "log2" or "all".
func WithMaxFeatures(strategy string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = strategy }
}

// WithBootstrap toggles bootstrap sampling of the training rows.
func WithBootstrap(bootstrap bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = bootstrap }
}

// WithRandomState seeds tree seeds, bootstrap draws and feature sampling.
func WithRandomState(seed uint64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs bounds the number of goroutines used for fitting and
// prediction. 0 or negative means one per CPU.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// NewRandomForestClassifier creates a forest with scikit-learn defaults:
// 100 trees, gini, unlimited depth, sqrt features, bootstrap.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		logger:          log.GetLoggerWithName("RandomForestClassifier"),
		nEstimators:     100,
		criterion:       tree.CriterionGini,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     MaxFeaturesSqrt,
		bootstrap:       true,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Clone returns an unfitted forest with the same hyperparameters.
func (rf *RandomForestClassifier) Clone() *RandomForestClassifier {
	return &RandomForestClassifier{
		state:           model.NewStateManager(),
		logger:          rf.logger,
		nEstimators:     rf.nEstimators,
		criterion:       rf.criterion,
		maxDepth:        rf.maxDepth,
		minSamplesSplit: rf.minSamplesSplit,
		minSamplesLeaf:  rf.minSamplesLeaf,
		maxFeatures:     rf.maxFeatures,
		bootstrap:       rf.bootstrap,
		randomState:     rf.randomState,
		nJobs:           rf.nJobs,
	}
}

func (rf *RandomForestClassifier) validateParams() error {
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.nEstimators)
	}
	switch rf.maxFeatures {
	case MaxFeaturesSqrt, MaxFeaturesLog2, MaxFeaturesAll:
	default:
		return errors.NewValidationError("max_features", "must be 'sqrt', 'log2' or 'all'", rf.maxFeatures)
	}
	return nil
}

// resolveMaxFeatures returns the number of features drawn per split.
func (rf *RandomForestClassifier) resolveMaxFeatures(nFeatures int) int {
	var k int
	switch rf.maxFeatures {
	case MaxFeaturesSqrt:
		k = int(math.Sqrt(float64(nFeatures)))
	case MaxFeaturesLog2:
		k = int(math.Log2(float64(nFeatures)))
	default:
		k = nFeatures
	}
	if k < 1 {
		k = 1
	}
	return k
}

// Fit grows nEstimators trees concurrently. Every tree gets its seed from
// the forest's source before any goroutine starts, so the fitted forest does
// not depend on scheduling. On error the previous fitted state is kept.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomForestClassifier.Fit")

	if err := rf.validateParams(); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, _ := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("RandomForestClassifier.Fit", rows, yRows, 0)
	}

	start := time.Now()
	maxFeatures := rf.resolveMaxFeatures(cols)

	rng := rand.New(rand.NewPCG(rf.randomState, rf.randomState))
	seeds := make([]uint64, rf.nEstimators)
	for i := range seeds {
		seeds[i] = rng.Uint64()
	}

	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	errs := make([]error, rf.nEstimators)
	parallel.ParallelizeWithWorkers(rf.nEstimators, rf.nJobs, func(s, e int) {
		for i := s; i < e; i++ {
			i := i
			errs[i] = errors.SafeExecute(fmt.Sprintf("RandomForestClassifier.Fit tree %d", i), func() error {
				t := tree.NewDecisionTreeClassifier(
					tree.WithCriterion(rf.criterion),
					tree.WithMaxDepth(rf.maxDepth),
					tree.WithMinSamplesSplit(rf.minSamplesSplit),
					tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
					tree.WithMaxFeatures(maxFeatures),
					tree.WithRandomState(seeds[i]),
				)
				var weights []float64
				if rf.bootstrap {
					weights = bootstrapWeights(rows, seeds[i])
				}
				if err := t.FitWeighted(X, y, weights); err != nil {
					return err
				}
				trees[i] = t
				return nil
			})
		}
	})
	for _, e := range errs {
		if e != nil {
			return e
		}
	}

	importances := make([]float64, cols)
	for _, t := range trees {
		floats.Add(importances, t.GetFeatureImportances())
	}
	if total := floats.Sum(importances); total > 0 {
		floats.Scale(1/total, importances)
	}

	rf.trees = trees
	rf.classes = trees[0].Classes()
	rf.importances = importances
	rf.state.SetDimensions(cols, rows)
	rf.state.SetFitted()

	rf.logger.Debug("Forest fitted",
		log.OperationKey, log.OperationFit,
		log.NEstimatorsKey, rf.nEstimators,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.ClassesKey, len(rf.classes),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// bootstrapWeights draws n rows with replacement and returns how often each
// row was drawn.
func bootstrapWeights(n int, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, ^seed))
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		weights[rng.IntN(n)]++
	}
	return weights
}

func (rf *RandomForestClassifier) checkPredict(X mat.Matrix, method string) error {
	if err := rf.state.RequireFitted("RandomForestClassifier", method); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return errors.NewModelError("RandomForestClassifier."+method, "empty data", errors.ErrEmptyData)
	}
	return rf.state.RequireFeatures("RandomForestClassifier."+method, cols)
}

// PredictProba returns the mean of the trees' class probabilities,
// columns ordered as Classes(). Rows are processed in parallel chunks and
// each chunk writes only its own rows.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.checkPredict(X, "PredictProba"); err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	out := mat.NewDense(rows, len(rf.classes), nil)
	scale := 1 / float64(len(rf.trees))

	parallel.ParallelizeWithWorkers(rows, rf.nJobs, func(start, end int) {
		for _, t := range rf.trees {
			t.AccumulateProba(X, start, end, out)
		}
		for i := start; i < end; i++ {
			floats.Scale(scale, out.RawRowView(i))
		}
	})
	return out, nil
}

// Predict returns an n_samples × 1 matrix with the most probable class.
// Ties go to the smallest class label.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	dense := proba.(*mat.Dense)
	rows, _ := dense.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, float64(rf.classes[floats.MaxIdx(dense.RawRowView(i))]))
	}
	return out, nil
}

// Score returns the mean accuracy on X and y.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}
	rows, _ := pred.Dims()
	yRows, _ := y.Dims()
	if yRows != rows {
		return 0, errors.NewDimensionError("RandomForestClassifier.Score", rows, yRows, 0)
	}
	return metrics.AccuracyScore(y, pred)
}

// Classes returns the sorted class labels seen during fitting.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.classes...)
}

// FeatureImportances returns the mean impurity decrease per feature across
// trees, normalised to sum to 1.
func (rf *RandomForestClassifier) FeatureImportances() ([]float64, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), rf.importances...), nil
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return rf.trees
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestClassifier) IsFitted() bool {
	return rf.state.IsFitted()
}

// NFeatures returns the number of features seen during Fit.
func (rf *RandomForestClassifier) NFeatures() int {
	nFeatures, _ := rf.state.GetDimensions()
	return nFeatures
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// String returns a short description of the forest.
func (rf *RandomForestClassifier) String() string {
	return fmt.Sprintf("RandomForestClassifier(n_estimators=%d, max_features=%s, random_state=%d)",
		rf.nEstimators, rf.maxFeatures, rf.randomState)
}

type forestState struct {
	NEstimators     int
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	Bootstrap       bool
	RandomState     uint64
	NJobs           int

	Trees       []*tree.DecisionTreeClassifier
	Classes     []int
	Importances []float64
	State       model.ModelState
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (rf *RandomForestClassifier) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(forestState{
		NEstimators:     rf.nEstimators,
		Criterion:       rf.criterion,
		MaxDepth:        rf.maxDepth,
		MinSamplesSplit: rf.minSamplesSplit,
		MinSamplesLeaf:  rf.minSamplesLeaf,
		MaxFeatures:     rf.maxFeatures,
		Bootstrap:       rf.bootstrap,
		RandomState:     rf.randomState,
		NJobs:           rf.nJobs,
		Trees:           rf.trees,
		Classes:         rf.classes,
		Importances:     rf.importances,
		State:           rf.state.GetState(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "RandomForestClassifier: encode")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (rf *RandomForestClassifier) UnmarshalBinary(data []byte) error {
	var st forestState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "RandomForestClassifier: decode")
	}
	if st.State.Fitted {
		if len(st.Trees) == 0 || len(st.Importances) != st.State.NFeatures {
			return errors.NewValueError("RandomForestClassifier.UnmarshalBinary", "fitted forest is incomplete")
		}
		for i, t := range st.Trees {
			if t == nil || !t.IsFitted() || len(t.Classes()) != len(st.Classes) {
				return errors.NewValueError("RandomForestClassifier.UnmarshalBinary",
					fmt.Sprintf("tree %d does not match the forest", i))
			}
		}
	}

	rf.nEstimators = st.NEstimators
	rf.criterion = st.Criterion
	rf.maxDepth = st.MaxDepth
	rf.minSamplesSplit = st.MinSamplesSplit
	rf.minSamplesLeaf = st.MinSamplesLeaf
	rf.maxFeatures = st.MaxFeatures
	rf.bootstrap = st.Bootstrap
	rf.randomState = st.RandomState
	rf.nJobs = st.NJobs
	rf.trees = st.Trees
	rf.classes = st.Classes
	rf.importances = st.Importances
	if rf.state == nil {
		rf.state = model.NewStateManager()
	}
	if rf.logger == nil {
		rf.logger = log.GetLoggerWithName("RandomForestClassifier")
	}
	rf.state.SetState(st.State)
	return nil
}
