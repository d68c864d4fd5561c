package pipeline

import (
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/forestkit/core/model"
	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/pkg/log"
	"github.com/YuminosukeSato/forestkit/preprocessing"
	"github.com/YuminosukeSato/forestkit/sklearn/ensemble"
)

// Artifact format identifiers written in every header.
const (
	ArtifactFormat  = "forestkit.pipeline"
	ArtifactVersion = 1

	DefaultModelPath = "models/quick_start_model.gob"
)

// ArtifactHeader precedes the pipeline body in an artifact file.
type ArtifactHeader struct {
	Format    string
	Version   int
	CreatedAt time.Time
	RunID     string
}

// pipelineState is the gob body of an artifact. The scaler and the forest
// encode themselves through MarshalBinary.
type pipelineState struct {
	Scaler       *preprocessing.StandardScaler
	Classifier   *ensemble.RandomForestClassifier
	FeatureNames []string
	State        model.ModelState
}

type saveConfig struct {
	runID string
}

// SaveOption configures Save.
type SaveOption func(*saveConfig)

// WithRunID records the given run ID in the header instead of a fresh one.
func WithRunID(id string) SaveOption {
	return func(c *saveConfig) { c.runID = id }
}

// Save writes a fitted pipeline to path, creating the parent directory when
// missing. The file is replaced atomically.
func Save(p *Pipeline, path string, opts ...SaveOption) error {
	if err := p.state.RequireFitted("Pipeline", "Save"); err != nil {
		return err
	}
	var cfg saveConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}

	header := ArtifactHeader{
		Format:    ArtifactFormat,
		Version:   ArtifactVersion,
		CreatedAt: time.Now().UTC(),
		RunID:     cfg.runID,
	}
	body := pipelineState{
		Scaler:       p.scaler,
		Classifier:   p.classifier,
		FeatureNames: p.featureNames,
		State:        p.state.GetState(),
	}
	if err := model.SaveModelAtomic(path, header, body); err != nil {
		return errors.Wrapf(err, "failed to save pipeline to %s", path)
	}

	p.logger.Info("Model saved",
		log.OperationKey, log.OperationSave,
		log.ArtifactPathKey, path,
		log.RunIDKey, header.RunID,
	)
	return nil
}

// Load reads a pipeline written by Save.
func Load(path string) (*Pipeline, error) {
	p, _, err := LoadWithHeader(path)
	return p, err
}

// LoadWithHeader reads a pipeline written by Save together with its header.
//
// A missing file yields an ArtifactError of kind ArtifactNotFound. Anything
// that cannot be decoded into a fitted pipeline of the current format and
// version yields kind CorruptArtifact.
func LoadWithHeader(path string) (*Pipeline, *ArtifactHeader, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.NewArtifactError(path, errors.ArtifactNotFound, err)
		}
		return nil, nil, errors.NewArtifactError(path, errors.CorruptArtifact, err)
	}

	var header ArtifactHeader
	var body pipelineState
	if err := model.LoadModel(path, &header, &body); err != nil {
		return nil, nil, errors.NewArtifactError(path, errors.CorruptArtifact, err)
	}
	if header.Format != ArtifactFormat {
		return nil, nil, errors.NewArtifactError(path, errors.CorruptArtifact,
			errors.Newf("unexpected format %q", header.Format))
	}
	if header.Version != ArtifactVersion {
		return nil, nil, errors.NewArtifactError(path, errors.CorruptArtifact,
			errors.Newf("unsupported version %d", header.Version))
	}
	if err := body.validate(); err != nil {
		return nil, nil, errors.NewArtifactError(path, errors.CorruptArtifact, err)
	}

	p := New(body.Scaler, body.Classifier, WithFeatureNames(body.FeatureNames))
	p.state.SetState(body.State)

	p.logger.Info("Model loaded",
		log.OperationKey, log.OperationLoad,
		log.ArtifactPathKey, path,
		log.RunIDKey, header.RunID,
	)
	return p, &header, nil
}

func (s *pipelineState) validate() error {
	if s.Scaler == nil || s.Classifier == nil {
		return errors.New("missing pipeline step")
	}
	if !s.State.Fitted || !s.Scaler.IsFitted() || !s.Classifier.IsFitted() {
		return errors.New("pipeline is not fitted")
	}
	n := s.State.NFeatures
	if s.Scaler.NFeatures() != n || s.Classifier.NFeatures() != n || len(s.FeatureNames) != n {
		return errors.Newf("inconsistent feature count %d", n)
	}
	return nil
}
