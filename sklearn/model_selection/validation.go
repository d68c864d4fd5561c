package model_selection

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/forestkit/core/model"
	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/pkg/log"
)

// CVResult holds per-fold scores in fold order.
type CVResult struct {
	Scores   []float64
	FitTimes []time.Duration
}

// Mean returns the mean fold score.
func (r *CVResult) Mean() float64 {
	if len(r.Scores) == 0 {
		return 0
	}
	return stat.Mean(r.Scores, nil)
}

// Std returns the population standard deviation of the fold scores.
func (r *CVResult) Std() float64 {
	if len(r.Scores) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(r.Scores, nil)
	return std
}

// Spread returns 2·Std, the half-width reported as "mean (+/- spread)".
func (r *CVResult) Spread() float64 {
	return 2 * r.Std()
}

func (r *CVResult) String() string {
	return fmt.Sprintf("%.4f (+/- %.4f)", r.Mean(), r.Spread())
}

type cvConfig struct {
	nJobs int
}

// CVOption configures CrossValScore.
type CVOption func(*cvConfig)

// WithNJobs bounds the number of folds evaluated concurrently. 0 or negative
// means one per CPU.
func WithNJobs(n int) CVOption {
	return func(c *cvConfig) { c.nJobs = n }
}

// CrossValScore fits a fresh clone of estimator on each fold's training rows
// and records its accuracy on the fold's held-out rows.
//
// Folds run concurrently and write only their own slot of the result, which
// is read after every fold has joined. A panic inside a fold is returned as
// an error. When ctx is cancelled no further folds are started and ctx.Err()
// is returned.
func CrossValScore[E model.CloneableEstimator[E]](ctx context.Context, estimator E, X, y mat.Matrix, cv Splitter, opts ...CVOption) (*CVResult, error) {
	cfg := cvConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	nJobs := cfg.nJobs
	if nJobs <= 0 {
		nJobs = runtime.NumCPU()
	}

	folds, err := cv.Split(X, y)
	if err != nil {
		return nil, err
	}
	nFolds := len(folds)
	logger := log.GetLoggerWithName("CrossValScore")

	result := &CVResult{
		Scores:   make([]float64, nFolds),
		FitTimes: make([]time.Duration, nFolds),
	}
	errs := make([]error, nFolds)

	var wg sync.WaitGroup
	sem := make(chan struct{}, nJobs)

launch:
	for foldIdx := 0; foldIdx < nFolds; foldIdx++ {
		select {
		case <-ctx.Done():
			break launch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			op := fmt.Sprintf("CrossValScore fold %d", idx+1)
			errs[idx] = errors.SafeExecute(op, func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				fold := folds[idx]
				trainX, trainY := ExtractRows(X, fold.TrainIndices), ExtractRows(y, fold.TrainIndices)
				testX, testY := ExtractRows(X, fold.TestIndices), ExtractRows(y, fold.TestIndices)

				est := estimator.Clone()
				start := time.Now()
				if err := est.Fit(trainX, trainY); err != nil {
					return errors.Wrapf(err, "fold %d training failed", idx+1)
				}
				result.FitTimes[idx] = time.Since(start)

				score, err := est.Score(testX, testY)
				if err != nil {
					return errors.Wrapf(err, "fold %d scoring failed", idx+1)
				}
				result.Scores[idx] = score

				logger.Debug("Fold scored",
					log.FoldKey, idx+1,
					log.AccuracyKey, score,
					log.DurationMsKey, result.FitTimes[idx].Milliseconds(),
				)
				return nil
			})
		}(foldIdx)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Cross-validation complete",
		log.NSplitsKey, nFolds,
		log.CVMeanKey, result.Mean(),
		log.CVStdKey, result.Std(),
	)
	return result, nil
}
