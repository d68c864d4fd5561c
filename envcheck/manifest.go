package envcheck

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

// Requirement is one module the manifest asks for.
type Requirement struct {
	Path       string `yaml:"path"`
	MinVersion string `yaml:"minVersion"`
}

// Manifest lists the toolchain and modules a working install needs.
type Manifest struct {
	// GoVersion is the minimum toolchain, e.g. "1.23".
	GoVersion string        `yaml:"go"`
	Required  []Requirement `yaml:"required"`
	Optional  []Requirement `yaml:"optional"`
}

// DefaultManifest describes what forestkit itself builds against.
func DefaultManifest() *Manifest {
	return &Manifest{
		GoVersion: "1.23",
		Required: []Requirement{
			{Path: "gonum.org/v1/gonum", MinVersion: "v0.16.0"},
			{Path: "gonum.org/v1/plot", MinVersion: "v0.16.0"},
			{Path: "github.com/cockroachdb/errors", MinVersion: "v1.12.0"},
			{Path: "github.com/rs/zerolog", MinVersion: "v1.34.0"},
			{Path: "github.com/alexflint/go-arg", MinVersion: "v1.5.1"},
			{Path: "gopkg.in/yaml.v3", MinVersion: "v3.0.1"},
		},
		Optional: []Requirement{
			{Path: "github.com/prometheus/client_golang", MinVersion: "v1.20.4"},
			{Path: "go.etcd.io/bbolt", MinVersion: "v1.3.8"},
			{Path: "github.com/joho/godotenv", MinVersion: "v1.5.1"},
			{Path: "github.com/google/uuid", MinVersion: "v1.6.0"},
		},
	}
}

// LoadManifest reads a YAML manifest. Unknown keys are rejected.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}

	m := &Manifest{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil && err != io.EOF {
		return nil, errors.NewValidationError("manifest", err.Error(), path)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks module paths and version syntax.
func (m *Manifest) Validate() error {
	if m.GoVersion != "" && !semver.IsValid("v"+m.GoVersion) {
		return errors.NewValidationError("go", "must look like 1.23 or 1.23.4", m.GoVersion)
	}
	seen := make(map[string]bool)
	for _, group := range [][]Requirement{m.Required, m.Optional} {
		for _, r := range group {
			if err := module.CheckPath(r.Path); err != nil {
				return errors.NewValidationError("path", err.Error(), r.Path)
			}
			if r.MinVersion != "" && !semver.IsValid(r.MinVersion) {
				return errors.NewValidationError("minVersion", "must be a semantic version such as v1.2.3", r.MinVersion)
			}
			if seen[r.Path] {
				return errors.NewValidationError("path", "listed more than once", r.Path)
			}
			seen[r.Path] = true
		}
	}
	return nil
}
