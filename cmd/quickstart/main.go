// Command quickstart runs the end-to-end random forest demo and prints every
// stage to stdout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/pkg/log"
	"github.com/YuminosukeSato/forestkit/quickstart"
)

type args struct {
	Config      string  `arg:"-c,--config" help:"YAML configuration file"`
	ModelPath   *string `arg:"--model-path" help:"where to write the fitted pipeline"`
	Seed        *uint64 `arg:"--seed" help:"random seed for every stage"`
	Folds       *int    `arg:"--folds" help:"number of cross-validation folds"`
	Trees       *int    `arg:"--trees" help:"number of trees in the forest"`
	TopK        *int    `arg:"--top-k" help:"number of features to report"`
	LogLevel    *string `arg:"--log-level" help:"debug, info, warn or error"`
	MetricsFile *string `arg:"--metrics-file" help:"write Prometheus metrics in text format to this file"`
	Plot        *string `arg:"--plot" help:"write a feature importance chart (PNG) to this file"`
	History     *string `arg:"--history" help:"record the run in this bbolt database"`
}

func (args) Version() string {
	return "forestkit quickstart 0.1.0"
}

func (args) Description() string {
	return "Generate a synthetic dataset, train and evaluate a scaler + random forest pipeline, save it and predict with the reloaded model."
}

func (a args) apply(cfg *quickstart.Config) {
	if a.ModelPath != nil {
		cfg.Output.ModelPath = *a.ModelPath
	}
	if a.Seed != nil {
		cfg.Seed = *a.Seed
	}
	if a.Folds != nil {
		cfg.Split.Folds = *a.Folds
	}
	if a.Trees != nil {
		cfg.Model.Trees = *a.Trees
	}
	if a.TopK != nil {
		cfg.Output.TopK = *a.TopK
	}
	if a.LogLevel != nil {
		cfg.LogLevel = *a.LogLevel
	}
	if a.MetricsFile != nil {
		cfg.Output.MetricsFile = *a.MetricsFile
	}
	if a.Plot != nil {
		cfg.Output.PlotPath = *a.Plot
	}
	if a.History != nil {
		cfg.Output.HistoryPath = *a.History
	}
}

func main() {
	var a args
	arg.MustParse(&a)

	if err := run(a); err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", errors.Code(err), err)
		os.Exit(1)
	}
}

func run(a args) error {
	cfg, err := quickstart.LoadConfig(a.Config)
	if err != nil {
		return err
	}
	a.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := log.SetupLogger(os.Stderr, cfg.LogLevel); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = quickstart.Run(ctx, cfg, os.Stdout)
	return err
}
