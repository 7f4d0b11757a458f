package areamodel

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/iceberg.report/internal/monitoring"
	"github.com/banshee-data/iceberg.report/internal/sar/features"
)

// maxArtifactBytes caps model artifact size; a regression artifact is a few
// hundred bytes, anything larger is a wrong file.
const maxArtifactBytes = 1 << 20

// LinearModel is an ordinary linear regression over the canonical feature
// vector, trained against root length (sqrt of validated area). Artifacts
// are JSON files exported by the training notebooks.
type LinearModel struct {
	SchemaVersion string    `json:"schema_version"`
	FeatureNames  []string  `json:"feature_names"`
	Intercept     float64   `json:"intercept"`
	Coefficients  []float64 `json:"coefficients"`
}

// LoadLinearModel reads and validates a model artifact. A schema that does
// not match this build's feature layout fails with ErrModelMismatch.
func LoadLinearModel(path string) (*LinearModel, error) {
	if filepath.Ext(path) != ".json" {
		return nil, fmt.Errorf("model artifact must be a .json file, got %q", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat model artifact: %w", err)
	}
	if info.Size() > maxArtifactBytes {
		return nil, fmt.Errorf("model artifact %q too large (%d bytes)", path, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model artifact %q: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("model artifact %q: %w", path, err)
	}
	monitoring.Logf("areamodel: loaded %s (schema %s, %d features)",
		path, m.SchemaVersion, len(m.FeatureNames))
	return &m, nil
}

// Validate checks the artifact against the feature schema of this build.
func (m *LinearModel) Validate() error {
	if m.SchemaVersion != features.SchemaVersion {
		return fmt.Errorf("%w: artifact schema %q, build schema %q",
			ErrModelMismatch, m.SchemaVersion, features.SchemaVersion)
	}
	want := features.FeatureNames()
	if len(m.FeatureNames) != len(want) {
		return fmt.Errorf("%w: artifact has %d features, build has %d",
			ErrModelMismatch, len(m.FeatureNames), len(want))
	}
	for i, name := range m.FeatureNames {
		if name != want[i] {
			return fmt.Errorf("%w: feature %d is %q, build expects %q",
				ErrModelMismatch, i, name, want[i])
		}
	}
	if len(m.Coefficients) != len(want) {
		return fmt.Errorf("%w: %d coefficients for %d features",
			ErrModelMismatch, len(m.Coefficients), len(want))
	}
	for i, c := range m.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("coefficient %d (%s) is not finite", i, m.FeatureNames[i])
		}
	}
	return nil
}

// Predict evaluates the regression. The root-length prediction is squared
// into m², keeping the sign so that negative root lengths surface as
// negative areas for the clamp policy to handle.
func (m *LinearModel) Predict(f features.FeatureVector) (float64, error) {
	vec := f.ToVector()
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: feature %s is %v",
				ErrNumericalInstability, features.FeatureNames()[i], v)
		}
	}
	root := m.Intercept + floats.Dot(m.Coefficients, vec)
	return math.Copysign(root*root, root), nil
}
