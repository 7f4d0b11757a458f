package cfar

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/banshee-data/iceberg.report/internal/monitoring"
	"github.com/banshee-data/iceberg.report/internal/sar"
)

// DefaultPFA is the production-default false alarm probability.
const DefaultPFA = 1e-6

// maxDetectWorkers caps the row-band parallelism of the threshold pass.
const maxDetectWorkers = 8

// ErrNoValidData indicates a raster consisting entirely of nodata pixels.
var ErrNoValidData = errors.New("raster contains no valid data")

// Params configures the gamma-CFAR detector for one channel.
type Params struct {
	Window sar.WindowSpec
	PFA    float64

	// MaxShape caps the method-of-moments gamma shape estimate. Near-zero
	// local variance would otherwise drive the shape (and with it the
	// threshold sharpness) unbounded.
	MaxShape float64
	// RelativeVarianceFloor treats local variance below floor*mean² as
	// degenerate and lifts it to that floor before estimating the shape.
	RelativeVarianceFloor float64

	// Workers bounds the number of row bands processed concurrently.
	// Zero selects GOMAXPROCS capped at 8.
	Workers int
}

// DefaultParams returns production-default detector parameters.
func DefaultParams() Params {
	return Params{
		Window:                sar.DefaultWindowSpec(),
		PFA:                   DefaultPFA,
		MaxShape:              DefaultMaxShape,
		RelativeVarianceFloor: defaultVarFloor,
	}
}

// Detection is the per-channel detector output. All grids are row-major with
// the raster's dimensions. Threshold and ClutterMean are NaN where the local
// statistics were undefined; such pixels are never flagged.
type Detection struct {
	Width  int
	Height int

	// Mask is true where the pixel's backscatter strictly exceeds its
	// adaptive threshold.
	Mask []bool
	// Threshold is the per-pixel adaptive decision threshold (linear units).
	Threshold []float64
	// ClutterMean is the local background mean (linear units), used
	// downstream for clutter and contrast features.
	ClutterMean []float64

	FlaggedCount int
	// DegenerateCount counts pixels whose local variance hit the floor.
	DegenerateCount int
}

// Detect computes the adaptive threshold map and detection mask for one
// raster. Numerical edge cases (degenerate variance, non-positive mean,
// empty windows) are recovered per pixel and never abort the run.
func Detect(r *sar.Raster, p Params) (*Detection, error) {
	if err := p.Window.Validate(); err != nil {
		return nil, err
	}
	if p.PFA <= 0 || p.PFA >= 1 {
		return nil, fmt.Errorf("false alarm probability must be in (0, 1), got %g", p.PFA)
	}
	if r.ValidCount() == 0 {
		return nil, ErrNoValidData
	}

	maxShape := p.MaxShape
	if maxShape <= 0 {
		maxShape = DefaultMaxShape
	}
	varFloor := p.RelativeVarianceFloor
	if varFloor <= 0 {
		varFloor = defaultVarFloor
	}

	stats, err := ComputeLocalStats(r, p.Window)
	if err != nil {
		return nil, err
	}

	w, h := r.Width, r.Height
	det := &Detection{
		Width:       w,
		Height:      h,
		Mask:        make([]bool, w*h),
		Threshold:   make([]float64, w*h),
		ClutterMean: make([]float64, w*h),
	}

	cache := newMultiplierCache(p.PFA)

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > maxDetectWorkers {
		workers = maxDetectWorkers
	}
	if workers > h {
		workers = h
	}

	// Each worker owns a disjoint row band; the only shared state is the
	// read-mostly multiplier cache.
	var wg sync.WaitGroup
	flagged := make([]int, workers)
	degenerate := make([]int, workers)
	rowsPerBand := (h + workers - 1) / workers

	for band := 0; band < workers; band++ {
		rowStart := band * rowsPerBand
		rowEnd := rowStart + rowsPerBand
		if rowEnd > h {
			rowEnd = h
		}
		if rowStart >= rowEnd {
			continue
		}

		wg.Add(1)
		go func(band, rowStart, rowEnd int) {
			defer wg.Done()
			for row := rowStart; row < rowEnd; row++ {
				for col := 0; col < w; col++ {
					i := row*w + col
					det.Threshold[i] = math.NaN()
					det.ClutterMean[i] = math.NaN()

					if !r.Valid[i] {
						continue
					}
					mean := stats.Mean[i]
					if stats.Count[i] == 0 || math.IsNaN(mean) || mean <= 0 {
						// Undefined clutter statistics: excluded from detection.
						continue
					}
					det.ClutterMean[i] = mean

					variance := stats.Variance[i]
					floor := varFloor * mean * mean
					if variance < floor {
						variance = floor
						degenerate[band]++
					}

					shape := mean * mean / variance
					if shape > maxShape {
						shape = maxShape
					}
					if shape < MinGammaShape {
						shape = MinGammaShape
					}

					threshold := mean * cache.lookup(shape)
					det.Threshold[i] = threshold
					if r.Values[i] > threshold {
						det.Mask[i] = true
						flagged[band]++
					}
				}
			}
		}(band, rowStart, rowEnd)
	}
	wg.Wait()

	for band := 0; band < workers; band++ {
		det.FlaggedCount += flagged[band]
		det.DegenerateCount += degenerate[band]
	}

	monitoring.Logf("cfar: channel=%s pfa=%g window=%d/%d flagged=%d degenerate=%d",
		r.Channel, p.PFA, p.Window.Outer, p.Window.Guard, det.FlaggedCount, det.DegenerateCount)

	return det, nil
}
