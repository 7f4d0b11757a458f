// Package plot renders diagnostic images of detection products: backscatter,
// threshold map, and detection mask as heatmap PNGs. Intended for tuning
// sessions, not for production output.
package plot

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/iceberg.report/internal/sar"
	"github.com/banshee-data/iceberg.report/internal/sar/cfar"
	"github.com/banshee-data/iceberg.report/internal/units"
)

// rasterGrid adapts a flat row-major value slice to plotter.GridXYZ. Rows
// are flipped so row 0 renders at the top, matching raster orientation.
type rasterGrid struct {
	w, h   int
	values []float64
}

func (g rasterGrid) Dims() (c, r int)   { return g.w, g.h }
func (g rasterGrid) Z(c, r int) float64 { return g.values[(g.h-1-r)*g.w+c] }
func (g rasterGrid) X(c int) float64    { return float64(c) }
func (g rasterGrid) Y(r int) float64    { return float64(r) }

// SaveDetectionPlots writes three PNGs into outputDir: the scene in
// decibels, the CFAR threshold map in decibels, and the binary detection
// mask. Returns the paths written.
func SaveDetectionPlots(det *cfar.Detection, r *sar.Raster, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create plot output dir: %w", err)
	}

	w, h := det.Width, det.Height
	backscatter := make([]float64, w*h)
	threshold := make([]float64, w*h)
	mask := make([]float64, w*h)
	for i := range backscatter {
		if r.Valid[i] {
			backscatter[i] = units.LinearToDecibels(r.Values[i])
		} else {
			backscatter[i] = math.NaN()
		}
		if !math.IsNaN(det.Threshold[i]) {
			threshold[i] = units.LinearToDecibels(det.Threshold[i])
		} else {
			threshold[i] = math.NaN()
		}
		if det.Mask[i] {
			mask[i] = 1
		}
	}
	fillUndefined(backscatter)
	fillUndefined(threshold)

	var written []string
	for _, layer := range []struct {
		name, title string
		values      []float64
	}{
		{"backscatter_db", fmt.Sprintf("%s backscatter (dB)", r.Channel), backscatter},
		{"threshold_db", fmt.Sprintf("%s CFAR threshold (dB)", r.Channel), threshold},
		{"detection_mask", fmt.Sprintf("%s detection mask", r.Channel), mask},
	} {
		file := filepath.Join(outputDir, fmt.Sprintf("%s_%s.png", r.Channel, layer.name))
		if err := saveHeatmap(layer.title, rasterGrid{w: w, h: h, values: layer.values}, file); err != nil {
			return written, err
		}
		written = append(written, file)
	}
	return written, nil
}

func saveHeatmap(title string, grid rasterGrid, file string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Column"
	p.Y.Label.Text = "Row"

	hm := plotter.NewHeatMap(grid, palette.Heat(16, 1))
	p.Add(hm)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, file); err != nil {
		return fmt.Errorf("save heatmap %s: %w", file, err)
	}
	return nil
}

// fillUndefined replaces NaN cells with the finite minimum so nodata renders
// as the coldest palette color instead of breaking the value range.
func fillUndefined(values []float64) {
	min := math.Inf(1)
	for _, v := range values {
		if !math.IsNaN(v) && v < min {
			min = v
		}
	}
	if math.IsInf(min, 1) {
		min = 0
	}
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = min
		}
	}
}

// MakeOutputDir builds a timestamped plot directory under baseDir, named
// after the scene identifier.
func MakeOutputDir(baseDir, scene string) string {
	ts := time.Now().Format("20060102_150405")
	if scene != "" {
		return filepath.Join(baseDir, scene, ts)
	}
	return filepath.Join(baseDir, "scene_"+ts)
}
