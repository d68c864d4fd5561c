// Package inspection ranks fitted models' features by importance.
package inspection

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/forestkit/core/model"
	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

// FeatureScore is one entry of a feature ranking.
type FeatureScore struct {
	Name       string
	Index      int
	Importance float64
}

func (f FeatureScore) String() string {
	return fmt.Sprintf("%s: %.3f", f.Name, f.Importance)
}

// ImportanceSource is any fitted model that reports per-feature importances.
type ImportanceSource = model.ImportanceReporter

// RankFeatures pairs importances with names and returns the top k entries
// sorted by descending importance, ties broken by ascending feature index.
// k == 0 or k larger than the feature count returns every feature.
func RankFeatures(importances []float64, names []string, k int) ([]FeatureScore, error) {
	if len(importances) == 0 {
		return nil, errors.NewNotFittedError("model", "RankFeatures")
	}
	if len(names) != len(importances) {
		return nil, errors.NewDimensionError("RankFeatures", len(importances), len(names), 1)
	}
	if k < 0 {
		return nil, errors.NewValidationError("k", "must be non-negative", k)
	}

	ranked := make([]FeatureScore, len(importances))
	for i, imp := range importances {
		ranked[i] = FeatureScore{Name: names[i], Index: i, Importance: imp}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Importance != ranked[b].Importance {
			return ranked[a].Importance > ranked[b].Importance
		}
		return ranked[a].Index < ranked[b].Index
	})

	if k == 0 || k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k], nil
}

// TopFeatures ranks the importances reported by source.
func TopFeatures(source ImportanceSource, names []string, k int) ([]FeatureScore, error) {
	importances, err := source.FeatureImportances()
	if err != nil {
		return nil, err
	}
	return RankFeatures(importances, names, k)
}
