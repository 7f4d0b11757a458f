// Package sar holds the core data model shared by the iceberg detection
// pipeline: calibrated backscatter rasters, polarization channels, and the
// CFAR window geometry. Rasters are read-only once constructed; all pipeline
// products are derived fresh per invocation.
package sar

import (
	"fmt"
	"math"
)

// Affine is a 2D affine pixel-to-geographic transform in the order
// [a, b, c, d, e, f]:
//
//	X = a*col + b*row + c
//	Y = d*col + e*row + f
//
// (col, row) address pixel centers when offset by 0.5, pixel corners when
// integral. This matches the affine layout emitted by common geospatial
// preprocessing tools.
type Affine [6]float64

// Apply transforms pixel coordinates to geographic coordinates.
func (t Affine) Apply(col, row float64) (x, y float64) {
	x = t[0]*col + t[1]*row + t[2]
	y = t[3]*col + t[4]*row + t[5]
	return x, y
}

// IdentityTransform maps pixel coordinates straight through, for synthetic
// rasters and tests.
var IdentityTransform = Affine{1, 0, 0, 0, 1, 0}

// Raster is a single-channel grid of linear backscatter intensities with a
// validity mask and geographic registration. It is immutable input to the
// detection pipeline.
type Raster struct {
	Channel Channel
	Width   int
	Height  int

	// Values holds linear (not decibel) backscatter, row-major, len = Width*Height.
	Values []float64
	// Valid marks usable pixels; false entries are nodata and excluded from
	// both statistics and detection. Same layout as Values.
	Valid []bool

	// Transform registers pixel coordinates to the product's CRS.
	Transform Affine
	// PixelAreaM2 is the ground area covered by one pixel, in square metres.
	PixelAreaM2 float64
}

// NewRaster builds a Raster over the given linear intensity values, marking
// non-finite and negative entries as nodata. The values slice is retained,
// not copied.
func NewRaster(ch Channel, width, height int, values []float64, transform Affine, pixelAreaM2 float64) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster dimensions must be positive, got %dx%d", width, height)
	}
	if len(values) != width*height {
		return nil, fmt.Errorf("raster values length %d does not match %dx%d", len(values), width, height)
	}
	if pixelAreaM2 <= 0 {
		return nil, fmt.Errorf("pixel area must be positive, got %g", pixelAreaM2)
	}

	valid := make([]bool, len(values))
	for i, v := range values {
		valid[i] = !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
	}

	return &Raster{
		Channel:     ch,
		Width:       width,
		Height:      height,
		Values:      values,
		Valid:       valid,
		Transform:   transform,
		PixelAreaM2: pixelAreaM2,
	}, nil
}

// Idx returns the flat index of pixel (col, row).
func (r *Raster) Idx(col, row int) int { return row*r.Width + col }

// At returns the linear backscatter value at (col, row).
func (r *Raster) At(col, row int) float64 { return r.Values[r.Idx(col, row)] }

// IsValid reports whether the pixel at (col, row) carries usable data.
func (r *Raster) IsValid(col, row int) bool { return r.Valid[r.Idx(col, row)] }

// ValidCount returns the number of usable pixels.
func (r *Raster) ValidCount() int {
	n := 0
	for _, ok := range r.Valid {
		if ok {
			n++
		}
	}
	return n
}

// PixelCenter returns the geographic coordinates of the center of pixel
// (col, row).
func (r *Raster) PixelCenter(col, row int) (x, y float64) {
	return r.Transform.Apply(float64(col)+0.5, float64(row)+0.5)
}

// PixelCorner returns the geographic coordinates of the top-left corner of
// pixel (col, row). Corners index from 0..Width / 0..Height inclusive, so
// the same call addresses the shared corner of up to four pixels.
func (r *Raster) PixelCorner(col, row int) (x, y float64) {
	return r.Transform.Apply(float64(col), float64(row))
}
