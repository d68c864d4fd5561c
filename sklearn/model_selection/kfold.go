package model_selection

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

// CVFold holds the train/test row indices for a single fold.
type CVFold struct {
	TrainIndices []int
	TestIndices  []int
}

// Splitter assigns rows to cross-validation folds.
type Splitter interface {
	Split(X, y mat.Matrix) ([]CVFold, error)
	GetNSplits() int
}

// StratifiedKFold deals each class's rows to NSplits folds in contiguous
// blocks, so every fold keeps approximately the class proportions of y.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a stratified k-fold splitter.
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	return &StratifiedKFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of folds.
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Validate checks that y can be split into NSplits stratified folds.
func (skf *StratifiedKFold) Validate(y mat.Matrix) error {
	n, _ := y.Dims()
	if skf.NSplits < 2 {
		return errors.NewInsufficientSamplesError("StratifiedKFold", -1, 2, skf.NSplits)
	}
	if skf.NSplits > n {
		return errors.NewInsufficientSamplesError("StratifiedKFold", -1, skf.NSplits, n)
	}
	classes, members := groupByClass(y)
	for c, idx := range members {
		if len(idx) < skf.NSplits {
			return errors.NewInsufficientSamplesError("StratifiedKFold", classes[c], skf.NSplits, len(idx))
		}
	}
	return nil
}

// Split returns NSplits folds. For class c with count_c rows, fold i receives
// count_c/k rows, plus one for the first count_c%k folds. Test and train
// indices are ascending within each fold.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]CVFold, error) {
	nSamples, _ := X.Dims()
	yRows, _ := y.Dims()
	if yRows != nSamples {
		return nil, errors.NewDimensionError("StratifiedKFold.Split", nSamples, yRows, 0)
	}
	if err := skf.Validate(y); err != nil {
		return nil, err
	}

	_, members := groupByClass(y)
	if skf.Shuffle {
		r := rand.New(rand.NewPCG(skf.RandomSeed, skf.RandomSeed))
		for c := range members {
			indices := append([]int(nil), members[c]...)
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
			members[c] = indices
		}
	}

	foldOf := make([]int, nSamples)
	for _, indices := range members {
		nClass := len(indices)
		foldSize := nClass / skf.NSplits
		remainder := nClass % skf.NSplits

		current := 0
		for fold := 0; fold < skf.NSplits; fold++ {
			size := foldSize
			if fold < remainder {
				size++
			}
			for _, idx := range indices[current : current+size] {
				foldOf[idx] = fold
			}
			current += size
		}
	}

	folds := make([]CVFold, skf.NSplits)
	for i := 0; i < nSamples; i++ {
		for f := range folds {
			if foldOf[i] == f {
				folds[f].TestIndices = append(folds[f].TestIndices, i)
			} else {
				folds[f].TrainIndices = append(folds[f].TrainIndices, i)
			}
		}
	}
	return folds, nil
}
