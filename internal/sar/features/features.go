// Package features computes the per-object statistics consumed by the area
// regression model. The feature schema is fixed and versioned: the vector
// layout must match exactly what a model artifact was trained on, and models
// declare the schema they expect so mismatches fail loudly.
package features

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/banshee-data/iceberg.report/internal/sar"
	"github.com/banshee-data/iceberg.report/internal/sar/blob"
	"github.com/banshee-data/iceberg.report/internal/sar/cfar"
	"github.com/banshee-data/iceberg.report/internal/units"
)

// SchemaVersion identifies the feature vector layout produced by this
// package. Bump it whenever FeatureNames changes.
const SchemaVersion = "v1"

// FeatureVector captures per-object backscatter and shape statistics.
// Backscatter statistics are in decibels; areas in square metres.
type FeatureVector struct {
	// SqrtAreaCFAR is the "root length" of the raw CFAR area: the side of a
	// square with the same area. The regression predicts in this domain.
	SqrtAreaCFAR float64

	MeanDB float64
	StdDB  float64
	MaxDB  float64
	MinDB  float64

	// ClutterMeanDB is the mean local background level under the object;
	// ContrastMeanDB is the object's mean excess over that background.
	ClutterMeanDB  float64
	ContrastMeanDB float64

	// Compactness is perimeter²/area; a square of pixels scores 16.
	Compactness float64
	// PerimeterIndex is 2·sqrt(π·area)/perimeter; 1 for a circle, lower for
	// ragged outlines.
	PerimeterIndex float64
	// MaxDiameterM is the largest vertex-to-vertex distance of the
	// simplified outline.
	MaxDiameterM float64
}

// FeatureNames returns the canonical feature names in vector order.
func FeatureNames() []string {
	return []string{
		"sqrt_area_cfar",
		"mean_db",
		"std_db",
		"max_db",
		"min_db",
		"clutter_mean_db",
		"contrast_mean_db",
		"compactness",
		"perimeter_index",
		"max_diameter_m",
	}
}

// ToVector flattens the features in canonical order, matching FeatureNames.
func (f FeatureVector) ToVector() []float64 {
	return []float64{
		f.SqrtAreaCFAR,
		f.MeanDB,
		f.StdDB,
		f.MaxDB,
		f.MinDB,
		f.ClutterMeanDB,
		f.ContrastMeanDB,
		f.Compactness,
		f.PerimeterIndex,
		f.MaxDiameterM,
	}
}

// Extract computes the feature vector for one blob from the raster values at
// its pixel set and the detector's clutter map.
func Extract(b blob.Blob, r *sar.Raster, det *cfar.Detection) FeatureVector {
	f := FeatureVector{
		SqrtAreaCFAR: math.Sqrt(b.AreaCFARM2),
	}

	// Backscatter statistics over the blob's pixels. Mask pixels are always
	// valid raster pixels with positive values, so the dB conversions are
	// well defined.
	var sumLinear float64
	maxLinear := math.Inf(-1)
	minLinear := math.Inf(1)
	for _, p := range b.Pixels {
		v := r.At(p.Col, p.Row)
		sumLinear += v
		if v > maxLinear {
			maxLinear = v
		}
		if v < minLinear {
			minLinear = v
		}
	}
	n := float64(b.PixelCount)
	meanLinear := sumLinear / n
	f.MeanDB = units.LinearToDecibels(meanLinear)
	f.MaxDB = units.LinearToDecibels(maxLinear)
	f.MinDB = units.LinearToDecibels(minLinear)

	// Standard deviation in the decibel domain.
	var sumDB, sumDB2 float64
	for _, p := range b.Pixels {
		db := units.LinearToDecibels(r.At(p.Col, p.Row))
		sumDB += db
		sumDB2 += db * db
	}
	meanDB := sumDB / n
	varDB := sumDB2/n - meanDB*meanDB
	if varDB > 0 {
		f.StdDB = math.Sqrt(varDB)
	}

	// Clutter under the object: mean of the local background estimates,
	// skipping pixels whose statistics were undefined.
	var clutterSum float64
	clutterN := 0
	for _, p := range b.Pixels {
		c := det.ClutterMean[p.Row*det.Width+p.Col]
		if !math.IsNaN(c) {
			clutterSum += c
			clutterN++
		}
	}
	if clutterN > 0 {
		f.ClutterMeanDB = units.LinearToDecibels(clutterSum / float64(clutterN))
		f.ContrastMeanDB = f.MeanDB - f.ClutterMeanDB
	} else {
		f.ClutterMeanDB = math.NaN()
		f.ContrastMeanDB = math.NaN()
	}

	// Shape descriptors from the outline.
	if b.AreaCFARM2 > 0 && b.PerimeterM > 0 {
		f.Compactness = b.PerimeterM * b.PerimeterM / b.AreaCFARM2
		f.PerimeterIndex = 2 * math.Sqrt(math.Pi*b.AreaCFARM2) / b.PerimeterM
	}
	f.MaxDiameterM = maxDiameter(b.Outline, math.Sqrt(r.PixelAreaM2)/2)

	return f
}

// maxDiameter returns the largest vertex-to-vertex distance of the outline
// after Douglas-Peucker simplification. Simplification keeps the pairwise
// scan cheap on large ragged outlines.
func maxDiameter(outline orb.Ring, tolerance float64) float64 {
	if len(outline) == 0 {
		return 0
	}
	ring := simplify.DouglasPeucker(tolerance).Ring(outline.Clone())

	best := 0.0
	for i := 0; i < len(ring); i++ {
		for j := i + 1; j < len(ring); j++ {
			d := math.Hypot(ring[j][0]-ring[i][0], ring[j][1]-ring[i][1])
			if d > best {
				best = d
			}
		}
	}
	return best
}
