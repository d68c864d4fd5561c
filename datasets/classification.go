// Package datasets generates synthetic classification data.
package datasets

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

// Dataset is a generated feature matrix with its labels.
type Dataset struct {
	X            *mat.Dense // n×f
	Y            *mat.Dense // n×1, integer-valued
	FeatureNames []string
	Classes      []int
}

// Dims returns the number of samples and features.
func (d *Dataset) Dims() (int, int) {
	return d.X.Dims()
}

// ClassCounts returns the number of samples per class, indexed by label.
func (d *Dataset) ClassCounts() []int {
	counts := make([]int, len(d.Classes))
	n, _ := d.Y.Dims()
	for i := 0; i < n; i++ {
		counts[int(d.Y.At(i, 0))]++
	}
	return counts
}

type classificationConfig struct {
	nSamples          int
	nFeatures         int
	nInformative      int
	nRedundant        int
	nRepeated         int
	nClasses          int
	nClustersPerClass int
	classSep          float64
	flipY             float64
	shuffle           bool
	randomState       uint64
}

// ClassificationOption configures MakeClassification.
type ClassificationOption func(*classificationConfig)

// WithNSamples sets the number of rows. Default 100.
func WithNSamples(n int) ClassificationOption {
	return func(c *classificationConfig) { c.nSamples = n }
}

// WithNFeatures sets the total number of columns. Default 20.
func WithNFeatures(n int) ClassificationOption {
	return func(c *classificationConfig) { c.nFeatures = n }
}

// WithNInformative sets the number of informative columns. Default 2.
func WithNInformative(n int) ClassificationOption {
	return func(c *classificationConfig) { c.nInformative = n }
}

// WithNRedundant sets the number of linear combinations of the informative
// columns. Default 2.
func WithNRedundant(n int) ClassificationOption {
	return func(c *classificationConfig) { c.nRedundant = n }
}

// WithNRepeated sets the number of duplicated informative or redundant
// columns. Default 0.
func WithNRepeated(n int) ClassificationOption {
	return func(c *classificationConfig) { c.nRepeated = n }
}

// WithNClasses sets the number of classes. Default 2.
func WithNClasses(n int) ClassificationOption {
	return func(c *classificationConfig) { c.nClasses = n }
}

// WithNClustersPerClass sets the number of Gaussian clusters per class.
// Default 2.
func WithNClustersPerClass(n int) ClassificationOption {
	return func(c *classificationConfig) { c.nClustersPerClass = n }
}

// WithClassSep sets the half side length of the hypercube the cluster
// centers sit on. Default 1.0.
func WithClassSep(sep float64) ClassificationOption {
	return func(c *classificationConfig) { c.classSep = sep }
}

// WithFlipY sets the fraction of labels reassigned at random. Default 0.01.
func WithFlipY(p float64) ClassificationOption {
	return func(c *classificationConfig) { c.flipY = p }
}

// WithShuffle permutes the rows after generation. Default true.
func WithShuffle(shuffle bool) ClassificationOption {
	return func(c *classificationConfig) { c.shuffle = shuffle }
}

// WithRandomState seeds the generator. Default 0.
func WithRandomState(seed uint64) ClassificationOption {
	return func(c *classificationConfig) { c.randomState = seed }
}

func (c *classificationConfig) validate() error {
	switch {
	case c.nSamples < 1:
		return errors.NewValidationError("n_samples", "must be positive", c.nSamples)
	case c.nFeatures < 1:
		return errors.NewValidationError("n_features", "must be positive", c.nFeatures)
	case c.nInformative < 1:
		return errors.NewValidationError("n_informative", "must be at least 1", c.nInformative)
	case c.nRedundant < 0:
		return errors.NewValidationError("n_redundant", "must be non-negative", c.nRedundant)
	case c.nRepeated < 0:
		return errors.NewValidationError("n_repeated", "must be non-negative", c.nRepeated)
	case c.nInformative+c.nRedundant+c.nRepeated > c.nFeatures:
		return errors.NewValidationError("n_features",
			"must be at least n_informative + n_redundant + n_repeated",
			c.nFeatures)
	case c.nClasses < 2:
		return errors.NewValidationError("n_classes", "must be at least 2", c.nClasses)
	case c.nClustersPerClass < 1:
		return errors.NewValidationError("n_clusters_per_class", "must be positive", c.nClustersPerClass)
	case c.classSep < 0 || math.IsNaN(c.classSep):
		return errors.NewValidationError("class_sep", "must be non-negative", c.classSep)
	case c.flipY < 0 || c.flipY > 1 || math.IsNaN(c.flipY):
		return errors.NewValidationError("flip_y", "must be in [0, 1]", c.flipY)
	}

	nClusters := c.nClasses * c.nClustersPerClass
	if c.nInformative < 63 && nClusters > 1<<c.nInformative {
		return errors.NewValidationError("n_informative",
			fmt.Sprintf("2^n_informative must be at least n_classes * n_clusters_per_class = %d", nClusters),
			c.nInformative)
	}
	if c.nSamples < nClusters {
		return errors.NewValidationError("n_samples",
			fmt.Sprintf("must be at least n_classes * n_clusters_per_class = %d", nClusters),
			c.nSamples)
	}
	return nil
}

// MakeClassification generates a random n-class classification problem.
//
// Each class is made of Gaussian clusters centred on distinct vertices of a
// hypercube with side 2·classSep in the informative subspace. Columns are laid
// out in order: informative, redundant, repeated, then noise. Identical
// options always produce an identical dataset.
func MakeClassification(opts ...ClassificationOption) (*Dataset, error) {
	cfg := classificationConfig{
		nSamples:          100,
		nFeatures:         20,
		nInformative:      2,
		nRedundant:        2,
		nRepeated:         0,
		nClasses:          2,
		nClustersPerClass: 2,
		classSep:          1.0,
		flipY:             0.01,
		shuffle:           true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(cfg.randomState, cfg.randomState))
	n, f := cfg.nSamples, cfg.nFeatures
	nInf, nRed, nRep := cfg.nInformative, cfg.nRedundant, cfg.nRepeated
	nClusters := cfg.nClasses * cfg.nClustersPerClass

	X := mat.NewDense(n, f, nil)
	y := make([]float64, n)

	centroids := hypercubeVertices(nClusters, nInf, rng)
	for _, c := range centroids {
		for j := range c {
			c[j] *= cfg.classSep
		}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < nInf; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
	}

	perCluster := n / nClusters
	extra := n % nClusters
	start := 0
	for k := 0; k < nClusters; k++ {
		size := perCluster
		if k < extra {
			size++
		}
		stop := start + size
		for i := start; i < stop; i++ {
			y[i] = float64(k % cfg.nClasses)
		}

		A := uniformMatrix(nInf, nInf, rng)
		block := X.Slice(start, stop, 0, nInf).(*mat.Dense)
		var mixed mat.Dense
		mixed.Mul(block, A)
		for i := 0; i < size; i++ {
			row := mixed.RawRowView(i)
			for j := range row {
				row[j] += centroids[k][j]
			}
			block.SetRow(i, row)
		}
		start = stop
	}

	if nRed > 0 {
		B := uniformMatrix(nInf, nRed, rng)
		var redundant mat.Dense
		redundant.Mul(X.Slice(0, n, 0, nInf), B)
		for i := 0; i < n; i++ {
			for j := 0; j < nRed; j++ {
				X.Set(i, nInf+j, redundant.At(i, j))
			}
		}
	}

	if nRep > 0 {
		pool := nInf + nRed
		for r := 0; r < nRep; r++ {
			src := int(float64(pool-1)*rng.Float64() + 0.5)
			dst := pool + r
			for i := 0; i < n; i++ {
				X.Set(i, dst, X.At(i, src))
			}
		}
	}

	for j := nInf + nRed + nRep; j < f; j++ {
		for i := 0; i < n; i++ {
			X.Set(i, j, rng.NormFloat64())
		}
	}

	if cfg.flipY > 0 {
		for i := 0; i < n; i++ {
			if rng.Float64() < cfg.flipY {
				y[i] = float64(rng.IntN(cfg.nClasses))
			}
		}
	}

	if cfg.shuffle {
		perm := rng.Perm(n)
		shuffled := mat.NewDense(n, f, nil)
		shuffledY := make([]float64, n)
		for i, src := range perm {
			shuffled.SetRow(i, X.RawRowView(src))
			shuffledY[i] = y[src]
		}
		X, y = shuffled, shuffledY
	}

	classes := make([]int, cfg.nClasses)
	for c := range classes {
		classes[c] = c
	}

	return &Dataset{
		X:            X,
		Y:            mat.NewDense(n, 1, y),
		FeatureNames: FeatureNames(f),
		Classes:      classes,
	}, nil
}

// FeatureNames returns feature_00, feature_01, ... for n columns. Indices
// are zero-padded to two digits, or wider when n-1 needs more.
func FeatureNames(n int) []string {
	width := len(strconv.Itoa(n - 1))
	if width < 2 {
		width = 2
	}
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("feature_%0*d", width, i)
	}
	return names
}

// hypercubeVertices draws k distinct vertices of the {-1, +1}^dim cube.
func hypercubeVertices(k, dim int, rng *rand.Rand) [][]float64 {
	seen := make(map[string]bool, k)
	vertices := make([][]float64, 0, k)
	key := make([]byte, dim)
	for len(vertices) < k {
		v := make([]float64, dim)
		for j := range v {
			if rng.Uint64()&1 == 1 {
				v[j], key[j] = 1, '1'
			} else {
				v[j], key[j] = -1, '0'
			}
		}
		if seen[string(key)] {
			continue
		}
		seen[string(key)] = true
		vertices = append(vertices, v)
	}
	return vertices
}

// uniformMatrix returns an r×c matrix with entries uniform in [-1, 1).
func uniformMatrix(r, c int, rng *rand.Rand) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = 2*rng.Float64() - 1
	}
	return mat.NewDense(r, c, data)
}
