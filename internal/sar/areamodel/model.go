// Package areamodel turns raw CFAR pixel areas into corrected above-waterline
// area estimates. The regression operates in the root-length domain
// (sqrt of area), where the relationship between detected extent and true
// extent is close to linear; predictions are squared back to square metres.
package areamodel

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/iceberg.report/internal/sar/features"
)

var (
	// ErrModelMismatch reports a model artifact whose feature schema does
	// not match the vectors this build produces.
	ErrModelMismatch = errors.New("model feature schema mismatch")

	// ErrNumericalInstability reports a non-finite prediction.
	ErrNumericalInstability = errors.New("non-finite model prediction")
)

// Model predicts above-waterline area in m² from an object's features. A
// negative return value means the model considers the object smaller than
// physically representable; the caller decides how to clamp it.
type Model interface {
	Predict(f features.FeatureVector) (float64, error)
}

// ClampPolicy selects the floor applied to non-positive area predictions.
type ClampPolicy string

const (
	// ClampZero floors non-positive predictions at exactly zero.
	ClampZero ClampPolicy = "zero"
	// ClampOnePixel floors non-positive predictions at one pixel's area,
	// on the grounds that a detected object occupies at least one cell.
	ClampOnePixel ClampPolicy = "one_pixel"
)

func (p ClampPolicy) valid() bool {
	return p == ClampZero || p == ClampOnePixel
}

// Corrector applies a model and a clamp policy to produce final areas.
type Corrector struct {
	model  Model
	policy ClampPolicy
}

// NewCorrector wraps a model with a clamp policy.
func NewCorrector(m Model, policy ClampPolicy) (*Corrector, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	if !policy.valid() {
		return nil, fmt.Errorf("unknown clamp policy %q", policy)
	}
	return &Corrector{model: m, policy: policy}, nil
}

// CorrectArea predicts the corrected area for one object. pixelAreaM2 is the
// raster's cell area, used by the one-pixel clamp.
func (c *Corrector) CorrectArea(f features.FeatureVector, pixelAreaM2 float64) (float64, error) {
	area, err := c.model.Predict(f)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(area) || math.IsInf(area, 0) {
		return 0, fmt.Errorf("%w: predicted %v", ErrNumericalInstability, area)
	}
	if area <= 0 {
		if c.policy == ClampOnePixel {
			return pixelAreaM2, nil
		}
		return 0, nil
	}
	return area, nil
}
