// Package quickstart runs the end-to-end classification demo: generate a
// dataset, split it, cross-validate and fit a scaler + random forest
// pipeline, evaluate it, rank features, persist the model and predict with
// the reloaded artifact.
package quickstart

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/YuminosukeSato/forestkit/datasets"
	"github.com/YuminosukeSato/forestkit/history"
	"github.com/YuminosukeSato/forestkit/inspection"
	"github.com/YuminosukeSato/forestkit/pipeline"
	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/pkg/log"
	"github.com/YuminosukeSato/forestkit/preprocessing"
	"github.com/YuminosukeSato/forestkit/report"
	"github.com/YuminosukeSato/forestkit/sklearn/ensemble"
	"github.com/YuminosukeSato/forestkit/sklearn/model_selection"
	"github.com/YuminosukeSato/forestkit/telemetry"
)

// Stage names, in execution order.
const (
	StageDataset  = "dataset"
	StageSplit    = "split"
	StageBuild    = "build"
	StageCV       = "cross_validate"
	StageFit      = "fit"
	StageEvaluate = "evaluate"
	StageRank     = "rank_features"
	StagePersist  = "persist"
	StagePredict  = "predict"
)

// Report is everything a run produced.
type Report struct {
	RunID string

	Dataset     *datasets.Dataset
	ClassCounts []int
	Split       *model_selection.Split

	CV                *model_selection.CVResult
	Pipeline          *pipeline.Pipeline
	Evaluation        *pipeline.Evaluation
	TopFeatures       []inspection.FeatureScore
	ModelPath         string
	SamplePredictions []pipeline.Prediction

	Durations map[string]time.Duration
	Metrics   *telemetry.Metrics
}

type runner struct {
	ctx     context.Context
	cfg     *Config
	out     io.Writer
	logger  log.Logger
	metrics *telemetry.Metrics
	report  *Report
}

// stage runs fn as the named stage, recording its duration and wrapping its
// error with the stage name.
func (r *runner) stage(name string, fn func() error) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	r.report.Durations[name] = elapsed
	r.metrics.ObserveStage(name, elapsed)

	if err != nil {
		r.logger.Error("Stage failed", err, log.StageKey, name, log.ErrorCodeKey, errors.Code(err))
		return errors.Wrapf(err, "%s stage failed", name)
	}
	r.logger.Debug("Stage complete", log.StageKey, name, log.DurationMsKey, elapsed.Milliseconds())
	return nil
}

func (r *runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// Run executes every stage in order and prints progress to out. Stages never
// re-enter earlier ones; the first failing stage ends the run.
func Run(ctx context.Context, cfg *Config, out io.Writer) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := history.NewRunID()
	r := &runner{
		ctx:     ctx,
		cfg:     cfg,
		out:     out,
		logger:  log.GetLoggerWithName("quickstart").With(log.RunIDKey, runID),
		metrics: telemetry.New(),
		report: &Report{
			RunID:     runID,
			ModelPath: cfg.Output.ModelPath,
			Durations: make(map[string]time.Duration),
		},
	}
	r.report.Metrics = r.metrics
	r.metrics.RunsTotal.Inc()

	start := time.Now()
	err := r.run()
	if err != nil {
		r.metrics.ObserveFailure(err)
	}
	if cfg.Output.MetricsFile != "" {
		if werr := r.metrics.WriteToTextfile(cfg.Output.MetricsFile); werr != nil && err == nil {
			err = werr
		}
	}
	if err != nil {
		return r.report, err
	}

	if cfg.Output.HistoryPath != "" {
		if err := r.record(time.Since(start)); err != nil {
			return r.report, err
		}
	}
	r.logger.Info("Run complete", log.AccuracyKey, r.report.Evaluation.Accuracy)
	return r.report, nil
}

func (r *runner) run() error {
	cfg := r.cfg
	rep := r.report

	r.printf("Quick Start ML Pipeline\n%s\n", strings.Repeat("=", 40))

	err := r.stage(StageDataset, func() error {
		r.printf("Creating dataset...\n")
		ds, err := datasets.MakeClassification(
			datasets.WithNSamples(cfg.Dataset.NSamples),
			datasets.WithNFeatures(cfg.Dataset.NFeatures),
			datasets.WithNInformative(cfg.Dataset.NInformative),
			datasets.WithNRedundant(cfg.Dataset.NRedundant),
			datasets.WithNClasses(cfg.Dataset.NClasses),
			datasets.WithFlipY(cfg.Dataset.FlipY),
			datasets.WithClassSep(cfg.Dataset.ClassSep),
			datasets.WithRandomState(cfg.Seed),
		)
		if err != nil {
			return err
		}
		rep.Dataset = ds
		rep.ClassCounts = ds.ClassCounts()
		n, f := ds.Dims()
		r.printf("Dataset shape: (%d, %d)\n", n, f)
		r.printf("Target distribution: %v\n", rep.ClassCounts)
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(StageSplit, func() error {
		r.printf("\nSplitting data...\n")
		split, err := model_selection.TrainTestSplit(rep.Dataset.X, rep.Dataset.Y,
			model_selection.WithTestSize(cfg.Split.TestSize),
			model_selection.WithSplitRandomState(cfg.Seed),
			model_selection.WithStratify(true),
		)
		if err != nil {
			return err
		}
		rep.Split = split
		r.printf("Training samples: %d, test samples: %d\n", len(split.TrainIndices), len(split.TestIndices))
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(StageBuild, func() error {
		r.printf("\nBuilding ML pipeline...\n")
		rep.Pipeline = pipeline.New(
			preprocessing.NewStandardScalerDefault(),
			ensemble.NewRandomForestClassifier(
				ensemble.WithNEstimators(cfg.Model.Trees),
				ensemble.WithMaxDepth(cfg.Model.MaxDepth),
				ensemble.WithRandomState(cfg.Seed),
				ensemble.WithNJobs(cfg.Model.NJobs),
			),
			pipeline.WithFeatureNames(rep.Dataset.FeatureNames),
		)
		r.printf("%s\n", rep.Pipeline)
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(StageCV, func() error {
		r.printf("\nTraining model...\n")
		cv := model_selection.NewStratifiedKFold(cfg.Split.Folds, true, cfg.Seed)
		result, err := model_selection.CrossValScore(r.ctx, rep.Pipeline, rep.Split.XTrain, rep.Split.YTrain, cv,
			model_selection.WithNJobs(cfg.Model.NJobs))
		if err != nil {
			return err
		}
		rep.CV = result
		r.metrics.ObserveCV(result.Scores, result.Mean(), result.Spread())
		r.printf("Cross-validation accuracy: %.3f (+/- %.3f)\n", result.Mean(), result.Spread())
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(StageFit, func() error {
		return rep.Pipeline.Fit(rep.Split.XTrain, rep.Split.YTrain)
	})
	if err != nil {
		return err
	}

	err = r.stage(StageEvaluate, func() error {
		eval, err := pipeline.Evaluate(rep.Pipeline, rep.Split.XTest, rep.Split.YTest)
		if err != nil {
			return err
		}
		rep.Evaluation = eval
		r.metrics.TestAccuracy.Set(eval.Accuracy)
		r.printf("\nTest Results:\n")
		r.printf("Test accuracy: %.3f\n\n", eval.Accuracy)
		r.printf("%s", eval.Report)
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(StageRank, func() error {
		top, err := inspection.TopFeatures(rep.Pipeline, rep.Pipeline.FeatureNames(), cfg.Output.TopK)
		if err != nil {
			return err
		}
		rep.TopFeatures = top
		r.printf("\nTop %d Important Features:\n", len(top))
		for _, f := range top {
			r.printf("  %s\n", f)
		}
		if cfg.Output.PlotPath != "" {
			if err := report.PlotFeatureImportance(top, cfg.Output.PlotPath); err != nil {
				return err
			}
			r.printf("Feature importance plot saved to: %s\n", cfg.Output.PlotPath)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(StagePersist, func() error {
		if err := pipeline.Save(rep.Pipeline, cfg.Output.ModelPath, pipeline.WithRunID(rep.RunID)); err != nil {
			return err
		}
		r.printf("\nModel saved to: %s\n", cfg.Output.ModelPath)
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(StagePredict, func() error {
		r.printf("\nMaking predictions...\n")
		loaded, err := pipeline.Load(cfg.Output.ModelPath)
		if err != nil {
			return err
		}
		k := cfg.Output.SamplePredictions
		if k > len(rep.Split.TestIndices) {
			k = len(rep.Split.TestIndices)
		}
		if k == 0 {
			return nil
		}
		_, f := rep.Split.XTest.Dims()
		preds, err := pipeline.PredictBatch(loaded, rep.Split.XTest.Slice(0, k, 0, f))
		if err != nil {
			return err
		}
		rep.SamplePredictions = preds
		r.printf("Sample predictions:\n")
		for i, p := range preds {
			r.metrics.Confidence.Observe(p.Confidence)
			r.printf("  Sample %d: Class %d (confidence: %.3f)\n", i+1, p.Label, p.Confidence)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.printf("\nPipeline complete!\n")
	r.printf("Final model accuracy: %.3f\n", rep.Evaluation.Accuracy)
	return nil
}

func (r *runner) record(elapsed time.Duration) error {
	ledger, err := history.Open(r.cfg.Output.HistoryPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	_, err = ledger.Record(history.Run{
		ID:           r.report.RunID,
		Seed:         r.cfg.Seed,
		CVMean:       r.report.CV.Mean(),
		CVSpread:     r.report.CV.Spread(),
		TestAccuracy: r.report.Evaluation.Accuracy,
		ArtifactPath: r.cfg.Output.ModelPath,
		Duration:     elapsed,
	})
	return err
}
