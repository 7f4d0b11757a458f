// Package units provides shared conversions between the backscatter and area
// units used across the detection pipeline.
//
// Rasters carry linear intensity values; backscatter statistics and model
// features are expressed in decibels. Areas are stored in square metres.
package units

import (
	"fmt"
	"math"
)

// Unit name constants
const (
	Linear       = "linear"
	Decibels     = "db"
	SquareMeters = "m2"
	SquareKm     = "km2"
)

// LinearToDecibels converts a linear intensity to decibels.
// Non-positive inputs yield NaN since they have no decibel representation.
func LinearToDecibels(v float64) float64 {
	if v <= 0 {
		return math.NaN()
	}
	return 10 * math.Log10(v)
}

// DecibelsToLinear converts a decibel intensity to linear units.
func DecibelsToLinear(db float64) float64 {
	return math.Pow(10, db/10)
}

// SquareMetersToSquareKm converts an area in square metres to square kilometres.
func SquareMetersToSquareKm(m2 float64) float64 {
	return m2 / 1e6
}

// FormatArea renders an area in square metres for logs and reports, switching
// to square kilometres above 1 km².
func FormatArea(m2 float64) string {
	if m2 >= 1e6 {
		return fmt.Sprintf("%.3f km2", SquareMetersToSquareKm(m2))
	}
	return fmt.Sprintf("%.1f m2", m2)
}
