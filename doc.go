// Package forestkit is a small, deterministic random forest toolkit for Go
// with a scikit-learn-like API, built for an end-to-end classification
// workflow: generate data, split, cross-validate, fit, evaluate, explain,
// persist and predict.
//
// # Installation
//
//	go get github.com/YuminosukeSato/forestkit
//
// # Quick Start
//
// The quickstart command runs the whole workflow with a reference
// configuration (1000 samples, 20 features, seed 42):
//
//	go run ./cmd/quickstart
//
// The same sequence from code:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "os"
//
//	    "github.com/YuminosukeSato/forestkit/quickstart"
//	)
//
//	func main() {
//	    cfg := quickstart.DefaultConfig()
//	    if _, err := quickstart.Run(context.Background(), cfg, os.Stdout); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// Building blocks can be used directly:
//
//	ds, _ := datasets.MakeClassification(datasets.WithRandomState(42))
//	split, _ := model_selection.TrainTestSplit(ds.X, ds.Y, model_selection.WithSplitRandomState(42))
//
//	p := pipeline.New(
//	    preprocessing.NewStandardScalerDefault(),
//	    ensemble.NewRandomForestClassifier(ensemble.WithNEstimators(100), ensemble.WithRandomState(42)),
//	)
//	if err := p.Fit(split.XTrain, split.YTrain); err != nil {
//	    log.Fatal(err)
//	}
//	acc, _ := p.Score(split.XTest, split.YTest)
//
// # Packages
//
//   - datasets: synthetic classification problems (MakeClassification)
//   - preprocessing: StandardScaler
//   - sklearn/tree: DecisionTreeClassifier (gini / entropy)
//   - sklearn/ensemble: RandomForestClassifier
//   - sklearn/model_selection: TrainTestSplit, StratifiedKFold, CrossValScore
//   - pipeline: scaler + forest pipeline, evaluation and gob artifacts
//   - metrics: accuracy, confusion matrix, classification report
//   - inspection: feature importance ranking
//   - report: feature importance chart (PNG)
//   - telemetry: Prometheus metrics for quickstart runs
//   - history: bbolt ledger of quickstart runs
//   - envcheck: toolchain and module dependency validation
//   - core/model, core/parallel: shared interfaces, state and worker helpers
//   - pkg/errors, pkg/log: error types and structured logging
//
// # Determinism
//
// Every random choice is driven by an explicit seed. The same configuration
// produces the same split, folds, forest and predictions regardless of
// GOMAXPROCS.
//
// # License
//
// forestkit is released under the MIT License.
package forestkit
