// Package pipeline orchestrates the per-channel detection chain: CFAR
// detection, blob extraction, feature aggregation, area correction, and
// plausibility scoring, followed by a cross-channel merge. Channels are
// processed independently and concurrently; a failure in one channel never
// blocks the others.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/iceberg.report/internal/config"
	"github.com/banshee-data/iceberg.report/internal/monitoring"
	"github.com/banshee-data/iceberg.report/internal/sar"
	"github.com/banshee-data/iceberg.report/internal/sar/areamodel"
	"github.com/banshee-data/iceberg.report/internal/sar/blob"
	"github.com/banshee-data/iceberg.report/internal/sar/cfar"
	"github.com/banshee-data/iceberg.report/internal/sar/classify"
	"github.com/banshee-data/iceberg.report/internal/sar/features"
)

var (
	// ErrInvalidWindowConfig reports an unusable CFAR window configuration;
	// this is fatal before any channel runs.
	ErrInvalidWindowConfig = errors.New("invalid window configuration")

	// ErrNoDetections reports a channel that ran cleanly but flagged
	// nothing. Recorded per channel; an empty scene is not a pipeline
	// failure.
	ErrNoDetections = errors.New("no detections")
)

// ErrorKind classifies channel failures for reporting and persistence.
type ErrorKind string

const (
	KindInvalidWindowConfig  ErrorKind = "invalid_window_config"
	KindNoValidData          ErrorKind = "no_valid_data"
	KindNoDetections         ErrorKind = "no_detections"
	KindModelMismatch        ErrorKind = "model_mismatch"
	KindNumericalInstability ErrorKind = "numerical_instability"
	KindInternal             ErrorKind = "internal"
)

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidWindowConfig):
		return KindInvalidWindowConfig
	case errors.Is(err, cfar.ErrNoValidData):
		return KindNoValidData
	case errors.Is(err, ErrNoDetections):
		return KindNoDetections
	case errors.Is(err, areamodel.ErrModelMismatch):
		return KindModelMismatch
	case errors.Is(err, areamodel.ErrNumericalInstability):
		return KindNumericalInstability
	}
	return KindInternal
}

// ChannelError ties a processing error to the channel it occurred on.
type ChannelError struct {
	Channel sar.Channel
	Kind    ErrorKind
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s [%s]: %v", e.Channel, e.Kind, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Object is one detected candidate iceberg with its measurements.
type Object struct {
	ID      string      `json:"id"`
	Channel sar.Channel `json:"channel"`
	// DetectionChannels lists every channel that detected this object;
	// after the cross-channel merge it can hold both.
	DetectionChannels []sar.Channel `json:"detection_channels"`

	PixelCount int      `json:"pixel_count"`
	Truncated  bool     `json:"truncated"`
	Outline    orb.Ring `json:"outline"`
	PerimeterM float64  `json:"perimeter_m"`

	// CenterX/CenterY is the mean of the object's pixel centers in the
	// raster's CRS.
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`

	Features features.FeatureVector `json:"features"`

	AreaCFARM2 float64 `json:"area_cfar_m2"`
	// AreaCorrectedM2 is nil when no model was configured for the channel
	// or the model failed on this object; AreaCFARM2 is always present.
	AreaCorrectedM2 *float64 `json:"area_corrected_m2,omitempty"`

	Assessment *classify.Assessment `json:"assessment,omitempty"`
}

// ChannelResult is the outcome of one channel's detection chain.
type ChannelResult struct {
	Channel         sar.Channel `json:"channel"`
	Objects         []Object    `json:"objects"`
	FlaggedCount    int         `json:"flagged_count"`
	DegenerateCount int         `json:"degenerate_count"`
	// Warnings records per-object model failures that did not stop the
	// channel.
	Warnings []string `json:"warnings,omitempty"`
}

// Result is one pipeline run over a scene.
type Result struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Channels map[sar.Channel]*ChannelResult `json:"channels"`
	// Merged is the cross-channel object list; objects detected on both
	// channels appear once with the larger CFAR footprint.
	Merged []Object `json:"merged"`

	// Errors holds per-channel failures; the run as a whole still carries
	// the results of the channels that succeeded.
	Errors []*ChannelError `json:"-"`
}

// Pipeline holds the validated configuration for repeated runs.
type Pipeline struct {
	params          cfar.Params
	minObjectPixels int
	mergeBufferM    float64

	correctors map[sar.Channel]*areamodel.Corrector
	classifier *classify.Classifier

	// aoi restricts detection to an area of interest in the raster CRS;
	// nil means the whole scene.
	aoi orb.Polygon
}

// New validates the tuning configuration and binds the optional per-channel
// area models, plausibility classifier, and area of interest. An unusable
// CFAR window fails here with ErrInvalidWindowConfig, before any data is
// touched.
func New(tc *config.TuningConfig, models map[sar.Channel]areamodel.Model, classifier *classify.Classifier, aoi orb.Polygon) (*Pipeline, error) {
	if tc == nil {
		tc = config.EmptyTuningConfig()
	}

	window := sar.WindowSpec{
		Outer: tc.GetOuterWindowSize(),
		Guard: tc.GetGuardWindowSize(),
	}
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindowConfig, err)
	}

	params := cfar.DefaultParams()
	params.Window = window
	params.PFA = tc.GetFalseAlarmProbability()
	params.MaxShape = tc.GetMaxGammaShape()
	params.RelativeVarianceFloor = tc.GetRelativeVarianceFloor()

	correctors := make(map[sar.Channel]*areamodel.Corrector, len(models))
	for ch, m := range models {
		c, err := areamodel.NewCorrector(m, areamodel.ClampPolicy(tc.GetClampPolicy()))
		if err != nil {
			return nil, fmt.Errorf("channel %s model: %w", ch, err)
		}
		correctors[ch] = c
	}

	return &Pipeline{
		params:          params,
		minObjectPixels: tc.GetMinObjectPixels(),
		mergeBufferM:    tc.GetMergeBufferMeters(),
		correctors:      correctors,
		classifier:      classifier,
		aoi:             aoi,
	}, nil
}

// Params exposes the validated detector parameters, for callers that render
// diagnostics from the raw detection products.
func (p *Pipeline) Params() cfar.Params { return p.params }

// Run processes every supplied channel raster concurrently and merges the
// results. Per-channel failures are collected in Result.Errors; Run itself
// only fails when the context is cancelled or no raster was supplied.
func (p *Pipeline) Run(ctx context.Context, rasters map[sar.Channel]*sar.Raster) (*Result, error) {
	if len(rasters) == 0 {
		return nil, errors.New("no channel rasters supplied")
	}

	// Validate every raster before any worker starts, so a mistagged raster
	// cannot abandon in-flight goroutines.
	for ch, raster := range rasters {
		if raster.Channel != ch {
			return nil, fmt.Errorf("raster for channel %s is tagged %s", ch, raster.Channel)
		}
	}

	result := &Result{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Channels:  make(map[sar.Channel]*ChannelResult, len(rasters)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for ch, raster := range rasters {
		wg.Add(1)
		go func(ch sar.Channel, raster *sar.Raster) {
			defer wg.Done()
			cr, err := p.runChannel(ctx, ch, raster)
			mu.Lock()
			defer mu.Unlock()
			if cr != nil {
				result.Channels[ch] = cr
			}
			if err != nil {
				result.Errors = append(result.Errors,
					&ChannelError{Channel: ch, Kind: kindOf(err), Err: err})
			}
		}(ch, raster)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Merged = mergeChannels(result.Channels, p.mergeBufferM)
	result.FinishedAt = time.Now().UTC()

	monitoring.Logf("pipeline: run %s finished: %d channels, %d merged objects, %d errors",
		result.RunID, len(result.Channels), len(result.Merged), len(result.Errors))
	return result, nil
}

// runChannel executes the full detection chain for one channel.
func (p *Pipeline) runChannel(ctx context.Context, ch sar.Channel, raster *sar.Raster) (*ChannelResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	det, err := cfar.Detect(raster, p.params)
	if err != nil {
		return nil, err
	}

	cr := &ChannelResult{
		Channel:         ch,
		FlaggedCount:    det.FlaggedCount,
		DegenerateCount: det.DegenerateCount,
	}

	blobs := blob.Extract(det, raster)
	corrector := p.correctors[ch]
	for _, b := range blobs {
		if b.PixelCount < p.minObjectPixels {
			continue
		}
		if p.aoi != nil && !p.blobInAOI(b, raster) {
			continue
		}

		obj := Object{
			ID:                uuid.New().String(),
			Channel:           ch,
			DetectionChannels: []sar.Channel{ch},
			PixelCount:        b.PixelCount,
			Truncated:         b.Truncated,
			Outline:           b.Outline,
			PerimeterM:        b.PerimeterM,
			AreaCFARM2:        b.AreaCFARM2,
		}
		obj.CenterX, obj.CenterY = pixelCentroid(b.Pixels, raster)
		obj.Features = features.Extract(b, raster, det)

		if corrector != nil {
			area, err := corrector.CorrectArea(obj.Features, raster.PixelAreaM2)
			if err != nil {
				// Model failure on one object does not fail the channel:
				// the raw CFAR area is still reported.
				cr.Warnings = append(cr.Warnings,
					fmt.Sprintf("object %s: area model: %v", obj.ID, err))
			} else {
				obj.AreaCorrectedM2 = &area
			}
		}

		if p.classifier != nil {
			a, err := p.classifier.Assess(ch, obj.Features)
			if err != nil {
				cr.Warnings = append(cr.Warnings,
					fmt.Sprintf("object %s: classifier: %v", obj.ID, err))
			} else {
				obj.Assessment = &a
			}
		}

		cr.Objects = append(cr.Objects, obj)
	}

	monitoring.Logf("pipeline: channel %s: %d flagged pixels, %d objects kept of %d blobs",
		ch, det.FlaggedCount, len(cr.Objects), len(blobs))

	if len(cr.Objects) == 0 {
		return cr, fmt.Errorf("%w on channel %s", ErrNoDetections, ch)
	}
	return cr, nil
}

// blobInAOI reports whether any of the blob's pixel centers fall inside the
// area of interest. Containment on pixel centers keeps the filter monotone:
// shrinking the AOI can only remove objects.
func (p *Pipeline) blobInAOI(b blob.Blob, raster *sar.Raster) bool {
	for _, px := range b.Pixels {
		x, y := raster.PixelCenter(px.Col, px.Row)
		if planar.PolygonContains(p.aoi, orb.Point{x, y}) {
			return true
		}
	}
	return false
}

func pixelCentroid(pixels []blob.Pixel, raster *sar.Raster) (x, y float64) {
	for _, px := range pixels {
		cx, cy := raster.PixelCenter(px.Col, px.Row)
		x += cx
		y += cy
	}
	n := float64(len(pixels))
	return x / n, y / n
}
