// Package tree implements a CART decision tree classifier.
//
// The fitted tree is stored as a flat slice of nodes addressed by index, so
// it has no pointer cycles and encodes directly with gob.
package tree

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/core/model"
	"github.com/YuminosukeSato/forestkit/metrics"
	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

const (
	// CriterionGini selects Gini impurity.
	CriterionGini = "gini"
	// CriterionEntropy selects Shannon entropy (information gain).
	CriterionEntropy = "entropy"

	leafChild = -1
)

// Node is one node of a fitted tree. Leaves have Left == Right == -1.
type Node struct {
	Feature   int
	Threshold float64 // x[Feature] <= Threshold goes left
	Left      int
	Right     int

	Impurity        float64
	NSamples        int
	WeightedSamples float64
	Value           []float64 // class distribution, sums to 1
}

// IsLeaf reports whether n is a terminal node.
func (n *Node) IsLeaf() bool {
	return n.Left == leafChild
}

// DecisionTreeClassifier is a CART classifier supporting gini and entropy
// criteria, depth and leaf-size limits, per-split feature subsampling and
// sample weights.
type DecisionTreeClassifier struct {
	state *model.StateManager

	criterion       string
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 means all features
	randomState     uint64

	nodes       []Node
	classes     []int
	importances []float64
	depth       int
	nLeaves     int
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the split quality measure ("gini" or "entropy").
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the depth of the tree. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples required in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features are drawn at each split. 0 means all.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithRandomState seeds the feature sampling.
func WithRandomState(seed uint64) Option {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

// NewDecisionTreeClassifier creates a tree with scikit-learn defaults:
// gini, unlimited depth, min_samples_split=2, min_samples_leaf=1, all features.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       CriterionGini,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// Clone returns an unfitted tree with the same hyperparameters.
func (dt *DecisionTreeClassifier) Clone() *DecisionTreeClassifier {
	return &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       dt.criterion,
		maxDepth:        dt.maxDepth,
		minSamplesSplit: dt.minSamplesSplit,
		minSamplesLeaf:  dt.minSamplesLeaf,
		maxFeatures:     dt.maxFeatures,
		randomState:     dt.randomState,
	}
}

func (dt *DecisionTreeClassifier) validateParams() error {
	switch {
	case dt.criterion != CriterionGini && dt.criterion != CriterionEntropy:
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	case dt.maxDepth < 0:
		return errors.NewValidationError("max_depth", "must be non-negative (0 means unlimited)", dt.maxDepth)
	case dt.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	case dt.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	case dt.maxFeatures < 0:
		return errors.NewValidationError("max_features", "must be non-negative (0 means all)", dt.maxFeatures)
	}
	return nil
}

// Fit builds the tree from X (n_samples × n_features) and integer labels y (n_samples × 1).
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	return dt.FitWeighted(X, y, nil)
}

// FitWeighted builds the tree with per-sample weights. Samples with zero
// weight do not reach any node, but their labels still count towards the
// class list, so a tree grown on a bootstrap sample reports probabilities
// for every class present in y.
func (dt *DecisionTreeClassifier) FitWeighted(X, y mat.Matrix, sampleWeight []float64) error {
	if err := dt.validateParams(); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, _ := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", rows, yRows, 0)
	}
	if sampleWeight != nil && len(sampleWeight) != rows {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", rows, len(sampleWeight), 0)
	}
	if err := errors.CheckMatrix("DecisionTreeClassifier.Fit", X, rows, cols); err != nil {
		return err
	}

	classes, yIdx, err := encodeLabels(y)
	if err != nil {
		return err
	}

	weights := sampleWeight
	if weights == nil {
		weights = make([]float64, rows)
		for i := range weights {
			weights[i] = 1
		}
	}

	samples := make([]int, 0, rows)
	for i, w := range weights {
		if w < 0 {
			return errors.NewValidationError("sample_weight", "must be non-negative", w)
		}
		if w > 0 {
			samples = append(samples, i)
		}
	}
	if len(samples) == 0 {
		return errors.NewValidationError("sample_weight", "at least one sample needs positive weight", 0)
	}

	columns := make([][]float64, cols)
	for j := range columns {
		columns[j] = mat.Col(nil, j, X)
	}

	b := &builder{
		dt:       dt,
		columns:  columns,
		yIdx:     yIdx,
		weights:  weights,
		nClasses: len(classes),
		rng:      rand.New(rand.NewPCG(dt.randomState, dt.randomState)),
		gains:    make([]float64, cols),
	}
	b.build(samples)

	dt.nodes = b.nodes
	dt.classes = classes
	dt.depth = b.maxDepth
	dt.nLeaves = b.nLeaves
	dt.importances = normalize(b.gains)
	dt.state.SetDimensions(cols, rows)
	dt.state.SetFitted()
	return nil
}

// encodeLabels returns the sorted distinct labels of y and each row's index
// into them.
func encodeLabels(y mat.Matrix) ([]int, []int, error) {
	rows, _ := y.Dims()
	labels := make([]int, rows)
	seen := make(map[int]struct{})
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return nil, nil, errors.NewValidationError("y", "class labels must be integers", v)
		}
		labels[i] = int(v)
		seen[labels[i]] = struct{}{}
	}

	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	yIdx := make([]int, rows)
	for i, l := range labels {
		yIdx[i] = index[l]
	}
	return classes, yIdx, nil
}

func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	total := floats.Sum(v)
	if total <= 0 {
		return out
	}
	copy(out, v)
	floats.Scale(1/total, out)
	return out
}

type builder struct {
	dt       *DecisionTreeClassifier
	columns  [][]float64
	yIdx     []int
	weights  []float64
	nClasses int
	rng      *rand.Rand

	nodes    []Node
	gains    []float64
	maxDepth int
	nLeaves  int
}

type split struct {
	feature   int
	threshold float64
	pos       int // samples[:pos] go left after sorting by feature
	gain      float64
	impLeft   float64
	impRight  float64
	wLeft     float64
	wRight    float64
}

func (b *builder) impurity(counts []float64, total float64) float64 {
	if b.dt.criterion == CriterionEntropy {
		return entropy(counts, total)
	}
	return gini(counts, total)
}

func (b *builder) classCounts(samples []int) ([]float64, float64) {
	counts := make([]float64, b.nClasses)
	total := 0.0
	for _, s := range samples {
		counts[b.yIdx[s]] += b.weights[s]
		total += b.weights[s]
	}
	return counts, total
}

// build grows the subtree for samples and returns its node index.
func (b *builder) build(samples []int) int {
	return b.grow(samples, 0)
}

func (b *builder) grow(samples []int, depth int) int {
	counts, total := b.classCounts(samples)
	imp := b.impurity(counts, total)

	value := make([]float64, len(counts))
	copy(value, counts)
	floats.Scale(1/total, value)

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature:         -1,
		Left:            leafChild,
		Right:           leafChild,
		Impurity:        imp,
		NSamples:        len(samples),
		WeightedSamples: total,
		Value:           value,
	})
	if depth > b.maxDepth {
		b.maxDepth = depth
	}

	dt := b.dt
	n := len(samples)
	if (dt.maxDepth > 0 && depth >= dt.maxDepth) ||
		n < dt.minSamplesSplit ||
		n < 2*dt.minSamplesLeaf ||
		imp <= 1e-12 {
		b.nLeaves++
		return id
	}

	best, ok := b.bestSplit(samples, counts, imp, total)
	if !ok {
		b.nLeaves++
		return id
	}

	sortByFeature(samples, b.columns[best.feature])
	left := append([]int(nil), samples[:best.pos]...)
	right := append([]int(nil), samples[best.pos:]...)

	b.gains[best.feature] += total*imp - best.wLeft*best.impLeft - best.wRight*best.impRight

	leftID := b.grow(left, depth+1)
	rightID := b.grow(right, depth+1)

	node := &b.nodes[id]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = leftID
	node.Right = rightID
	return id
}

func (b *builder) candidateFeatures() []int {
	nFeatures := len(b.columns)
	k := b.dt.maxFeatures
	if k <= 0 || k >= nFeatures {
		features := make([]int, nFeatures)
		for i := range features {
			features[i] = i
		}
		return features
	}
	return b.rng.Perm(nFeatures)[:k]
}

func (b *builder) bestSplit(samples []int, parentCounts []float64, parentImp, total float64) (split, bool) {
	var best split
	found := false
	minLeaf := b.dt.minSamplesLeaf
	n := len(samples)

	sorted := make([]int, n)
	left := make([]float64, b.nClasses)
	right := make([]float64, b.nClasses)

	for _, f := range b.candidateFeatures() {
		col := b.columns[f]
		copy(sorted, samples)
		sortByFeature(sorted, col)

		if col[sorted[0]] == col[sorted[n-1]] {
			continue
		}

		for c := range left {
			left[c] = 0
		}
		copy(right, parentCounts)
		wLeft, wRight := 0.0, total

		for i := 0; i < n-1; i++ {
			s := sorted[i]
			w := b.weights[s]
			left[b.yIdx[s]] += w
			right[b.yIdx[s]] -= w
			wLeft += w
			wRight -= w

			nLeft := i + 1
			if nLeft < minLeaf || n-nLeft < minLeaf {
				continue
			}
			lo, hi := col[s], col[sorted[i+1]]
			if lo == hi {
				continue
			}

			impL := b.impurity(left, wLeft)
			impR := b.impurity(right, wRight)
			gain := parentImp - (wLeft*impL+wRight*impR)/total
			if !found || gain > best.gain+1e-12 {
				threshold := lo + (hi-lo)/2
				if threshold == hi {
					threshold = lo
				}
				best = split{
					feature:   f,
					threshold: threshold,
					pos:       nLeft,
					gain:      gain,
					impLeft:   impL,
					impRight:  impR,
					wLeft:     wLeft,
					wRight:    wRight,
				}
				found = true
			}
		}
	}
	return best, found
}

// sortByFeature orders samples by their value in col, ties by sample index,
// so that split positions are reproducible.
func sortByFeature(samples []int, col []float64) {
	sort.Slice(samples, func(a, b int) bool {
		va, vb := col[samples[a]], col[samples[b]]
		if va != vb {
			return va < vb
		}
		return samples[a] < samples[b]
	})
}

func gini(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := c / total
		sum += p * p
	}
	return 1 - sum
}

func entropy(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c <= 0 {
			continue
		}
		p := c / total
		h -= p * math.Log2(p)
	}
	return h
}

// leaf returns the leaf reached by row i of X.
func (dt *DecisionTreeClassifier) leaf(X mat.Matrix, i int) *Node {
	node := &dt.nodes[0]
	for !node.IsLeaf() {
		if X.At(i, node.Feature) <= node.Threshold {
			node = &dt.nodes[node.Left]
		} else {
			node = &dt.nodes[node.Right]
		}
	}
	return node
}

func (dt *DecisionTreeClassifier) checkPredict(X mat.Matrix, method string) error {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", method); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return errors.NewModelError("DecisionTreeClassifier."+method, "empty data", errors.ErrEmptyData)
	}
	return dt.state.RequireFeatures("DecisionTreeClassifier."+method, cols)
}

// PredictProba returns an n_samples × n_classes matrix of class
// probabilities, columns ordered as Classes().
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict(X, "PredictProba"); err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	out := mat.NewDense(rows, len(dt.classes), nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, dt.leaf(X, i).Value)
	}
	return out, nil
}

// AccumulateProba adds the leaf distributions for rows [start, end) of X
// into dst. dst has one row per row of X. It is used by ensembles that
// average probabilities without allocating per-tree matrices.
func (dt *DecisionTreeClassifier) AccumulateProba(X mat.Matrix, start, end int, dst *mat.Dense) {
	for i := start; i < end; i++ {
		row := dst.RawRowView(i)
		floats.Add(row, dt.leaf(X, i).Value)
	}
}

// Predict returns an n_samples × 1 matrix of predicted labels.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict(X, "Predict"); err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, float64(dt.classes[floats.MaxIdx(dt.leaf(X, i).Value)]))
	}
	return out, nil
}

// Score returns the mean accuracy on X and y.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}
	rows, _ := X.Dims()
	yRows, _ := y.Dims()
	if yRows != rows {
		return 0, errors.NewDimensionError("DecisionTreeClassifier.Score", rows, yRows, 0)
	}
	return metrics.AccuracyScore(y, pred)
}

// Classes returns the sorted class labels seen during fitting.
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.classes...)
}

// GetFeatureImportances returns the normalised total impurity decrease per
// feature. All zeros for a tree with no split; nil before Fit.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.importances...)
}

// FeatureImportances is GetFeatureImportances with a NotFittedError for
// unfitted trees.
func (dt *DecisionTreeClassifier) FeatureImportances() ([]float64, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return dt.GetFeatureImportances(), nil
}

// GetDepth returns the depth of the deepest leaf (root depth is 0).
func (dt *DecisionTreeClassifier) GetDepth() int {
	return dt.depth
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return dt.nLeaves
}

// GetNodeCount returns the total number of nodes.
func (dt *DecisionTreeClassifier) GetNodeCount() int {
	return len(dt.nodes)
}

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeClassifier) IsFitted() bool {
	return dt.state.IsFitted()
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams updates hyperparameters from a map using GetParams keys.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion":
			v, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			dt.criterion = v
		case "max_depth", "min_samples_split", "min_samples_leaf", "max_features":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			switch key {
			case "max_depth":
				dt.maxDepth = v
			case "min_samples_split":
				dt.minSamplesSplit = v
			case "min_samples_leaf":
				dt.minSamplesLeaf = v
			case "max_features":
				dt.maxFeatures = v
			}
		case "random_state":
			switch v := value.(type) {
			case uint64:
				dt.randomState = v
			case int:
				dt.randomState = uint64(v)
			default:
				return errors.NewValidationError(key, "must be an integer", value)
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return dt.validateParams()
}

// String returns a short description of the tree.
func (dt *DecisionTreeClassifier) String() string {
	if !dt.IsFitted() {
		return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, max_depth=%d)", dt.criterion, dt.maxDepth)
	}
	return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, max_depth=%d, depth=%d, n_leaves=%d)",
		dt.criterion, dt.maxDepth, dt.depth, dt.nLeaves)
}

type treeState struct {
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     uint64

	Nodes       []Node
	Classes     []int
	Importances []float64
	Depth       int
	NLeaves     int
	State       model.ModelState
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (dt *DecisionTreeClassifier) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(treeState{
		Criterion:       dt.criterion,
		MaxDepth:        dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit,
		MinSamplesLeaf:  dt.minSamplesLeaf,
		MaxFeatures:     dt.maxFeatures,
		RandomState:     dt.randomState,
		Nodes:           dt.nodes,
		Classes:         dt.classes,
		Importances:     dt.importances,
		Depth:           dt.depth,
		NLeaves:         dt.nLeaves,
		State:           dt.state.GetState(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "DecisionTreeClassifier: encode")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (dt *DecisionTreeClassifier) UnmarshalBinary(data []byte) error {
	var st treeState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "DecisionTreeClassifier: decode")
	}
	if st.State.Fitted {
		if err := validateNodes(st.Nodes, len(st.Classes), st.State.NFeatures); err != nil {
			return err
		}
	}

	dt.criterion = st.Criterion
	dt.maxDepth = st.MaxDepth
	dt.minSamplesSplit = st.MinSamplesSplit
	dt.minSamplesLeaf = st.MinSamplesLeaf
	dt.maxFeatures = st.MaxFeatures
	dt.randomState = st.RandomState
	dt.nodes = st.Nodes
	dt.classes = st.Classes
	dt.importances = st.Importances
	dt.depth = st.Depth
	dt.nLeaves = st.NLeaves
	if dt.state == nil {
		dt.state = model.NewStateManager()
	}
	dt.state.SetState(st.State)
	return nil
}

// validateNodes rejects decoded trees whose child links or class
// distributions would make prediction index out of range.
func validateNodes(nodes []Node, nClasses, nFeatures int) error {
	if len(nodes) == 0 || nClasses == 0 {
		return errors.NewValueError("DecisionTreeClassifier.UnmarshalBinary", "fitted tree has no nodes or classes")
	}
	for i, n := range nodes {
		if len(n.Value) != nClasses {
			return errors.NewValueError("DecisionTreeClassifier.UnmarshalBinary",
				fmt.Sprintf("node %d has %d class values, want %d", i, len(n.Value), nClasses))
		}
		if n.IsLeaf() {
			continue
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(nodes) || n.Right >= len(nodes) ||
			n.Feature < 0 || n.Feature >= nFeatures {
			return errors.NewValueError("DecisionTreeClassifier.UnmarshalBinary",
				fmt.Sprintf("node %d has invalid links", i))
		}
	}
	return nil
}
