package quickstart

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/forestkit/pipeline"
	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/pkg/log"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "FORESTKIT_"

// Config drives a quick-start run. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	Seed     uint64 `yaml:"seed"`
	LogLevel string `yaml:"logLevel"`

	Dataset DatasetConfig `yaml:"dataset"`
	Split   SplitConfig   `yaml:"split"`
	Model   ModelConfig   `yaml:"model"`
	Output  OutputConfig  `yaml:"output"`
}

// DatasetConfig shapes the synthetic dataset.
type DatasetConfig struct {
	NSamples     int     `yaml:"nSamples"`
	NFeatures    int     `yaml:"nFeatures"`
	NInformative int     `yaml:"nInformative"`
	NRedundant   int     `yaml:"nRedundant"`
	NClasses     int     `yaml:"nClasses"`
	FlipY        float64 `yaml:"flipY"`
	ClassSep     float64 `yaml:"classSep"`
}

// SplitConfig controls the hold-out split and cross-validation.
type SplitConfig struct {
	TestSize float64 `yaml:"testSize"`
	Folds    int     `yaml:"folds"`
}

// ModelConfig holds the forest hyperparameters.
type ModelConfig struct {
	Trees    int `yaml:"trees"`
	MaxDepth int `yaml:"maxDepth"`
	NJobs    int `yaml:"nJobs"`
}

// OutputConfig selects what a run writes and prints.
type OutputConfig struct {
	ModelPath         string `yaml:"modelPath"`
	TopK              int    `yaml:"topK"`
	SamplePredictions int    `yaml:"samplePredictions"`
	MetricsFile       string `yaml:"metricsFile"`
	PlotPath          string `yaml:"plotPath"`
	HistoryPath       string `yaml:"historyPath"`
}

// DefaultConfig returns the reference scenario: 1000 samples, 20 features
// (10 informative, 10 redundant), seed 42, 20% held out, 5 folds and 100
// trees.
func DefaultConfig() *Config {
	return &Config{
		Seed:     42,
		LogLevel: "warn",
		Dataset: DatasetConfig{
			NSamples:     1000,
			NFeatures:    20,
			NInformative: 10,
			NRedundant:   10,
			NClasses:     2,
			FlipY:        0.01,
			ClassSep:     1.0,
		},
		Split: SplitConfig{
			TestSize: 0.2,
			Folds:    5,
		},
		Model: ModelConfig{
			Trees: 100,
		},
		Output: OutputConfig{
			ModelPath:         pipeline.DefaultModelPath,
			TopK:              5,
			SamplePredictions: 5,
		},
	}
}

// Validate rejects settings no run could satisfy.
func (c *Config) Validate() error {
	switch {
	case c.Dataset.NSamples < 1:
		return errors.NewValidationError("dataset.nSamples", "must be positive", c.Dataset.NSamples)
	case c.Dataset.NFeatures < 1:
		return errors.NewValidationError("dataset.nFeatures", "must be positive", c.Dataset.NFeatures)
	case c.Split.TestSize <= 0 || c.Split.TestSize >= 1:
		return errors.NewValidationError("split.testSize", "must be in the open interval (0, 1)", c.Split.TestSize)
	case c.Split.Folds < 2:
		return errors.NewValidationError("split.folds", "must be at least 2", c.Split.Folds)
	case c.Model.Trees < 1:
		return errors.NewValidationError("model.trees", "must be at least 1", c.Model.Trees)
	case c.Model.MaxDepth < 0:
		return errors.NewValidationError("model.maxDepth", "must be non-negative", c.Model.MaxDepth)
	case c.Output.TopK < 0:
		return errors.NewValidationError("output.topK", "must be non-negative", c.Output.TopK)
	case c.Output.SamplePredictions < 0:
		return errors.NewValidationError("output.samplePredictions", "must be non-negative", c.Output.SamplePredictions)
	case strings.TrimSpace(c.Output.ModelPath) == "":
		return errors.NewValidationError("output.modelPath", "must not be empty", c.Output.ModelPath)
	}
	if _, err := log.ToLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Loader layers configuration sources over DefaultConfig, each overriding
// the previous one: the YAML file, the dotenv file, then the environment.
type Loader struct {
	ConfigPath string // optional YAML file
	DotEnvPath string // optional; a missing file is ignored
	LookupEnv  func(string) (string, bool)
}

// LoadConfig loads configuration from the YAML file at path (may be empty),
// ./.env and the process environment.
func LoadConfig(path string) (*Config, error) {
	return Loader{ConfigPath: path, DotEnvPath: ".env", LookupEnv: os.LookupEnv}.Load()
}

// Load builds the configuration. It does not call Validate, so callers can
// still apply flag overrides.
func (l Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.ConfigPath != "" {
		data, err := os.ReadFile(l.ConfigPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", l.ConfigPath)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, errors.NewValidationError("config", err.Error(), l.ConfigPath)
		}
	}

	if l.DotEnvPath != "" {
		values, err := godotenv.Read(l.DotEnvPath)
		switch {
		case err == nil:
			if err := cfg.applyEnv(func(k string) (string, bool) {
				v, ok := values[k]
				return v, ok
			}); err != nil {
				return nil, err
			}
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "failed to read %s", l.DotEnvPath)
		}
	}

	if l.LookupEnv != nil {
		if err := cfg.applyEnv(l.LookupEnv); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// applyEnv overrides fields from FORESTKIT_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return errors.NewValidationError(EnvPrefix+name, "must be an integer", v)
			}
			*dst = n
		}
		return nil
	}
	float := func(name string, dst *float64) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return errors.NewValidationError(EnvPrefix+name, "must be a number", v)
			}
			*dst = f
		}
		return nil
	}

	if v, ok := lookup(EnvPrefix + "SEED"); ok {
		seed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"SEED", "must be a non-negative integer", v)
		}
		c.Seed = seed
	}
	str("LOG_LEVEL", &c.LogLevel)
	str("MODEL_PATH", &c.Output.ModelPath)
	str("METRICS_FILE", &c.Output.MetricsFile)
	str("PLOT", &c.Output.PlotPath)
	str("HISTORY", &c.Output.HistoryPath)

	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"N_SAMPLES", &c.Dataset.NSamples},
		{"N_FEATURES", &c.Dataset.NFeatures},
		{"N_INFORMATIVE", &c.Dataset.NInformative},
		{"N_REDUNDANT", &c.Dataset.NRedundant},
		{"N_CLASSES", &c.Dataset.NClasses},
		{"FOLDS", &c.Split.Folds},
		{"TREES", &c.Model.Trees},
		{"MAX_DEPTH", &c.Model.MaxDepth},
		{"N_JOBS", &c.Model.NJobs},
		{"TOP_K", &c.Output.TopK},
		{"SAMPLE_PREDICTIONS", &c.Output.SamplePredictions},
	} {
		if err := integer(f.name, f.dst); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"TEST_SIZE", &c.Split.TestSize},
		{"FLIP_Y", &c.Dataset.FlipY},
		{"CLASS_SEP", &c.Dataset.ClassSep},
	} {
		if err := float(f.name, f.dst); err != nil {
			return err
		}
	}
	return nil
}
