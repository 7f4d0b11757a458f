// Command iceberg-report estimates above-waterline iceberg areas from
// calibrated SAR backscatter rasters. It runs the gamma-CFAR detection
// pipeline per polarization channel, merges the channel results, and writes
// them as JSON, optionally persisting to sqlite and rendering diagnostic
// plots.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/banshee-data/iceberg.report/internal/config"
	"github.com/banshee-data/iceberg.report/internal/sar"
	"github.com/banshee-data/iceberg.report/internal/sar/areamodel"
	"github.com/banshee-data/iceberg.report/internal/sar/cfar"
	"github.com/banshee-data/iceberg.report/internal/sar/classify"
	"github.com/banshee-data/iceberg.report/internal/sar/pipeline"
	"github.com/banshee-data/iceberg.report/internal/sar/plot"
	storage "github.com/banshee-data/iceberg.report/internal/sar/storage/sqlite"
	"github.com/banshee-data/iceberg.report/internal/units"
)

var (
	hhPath     = flag.String("hh", "", "HH channel raster dump (JSON)")
	hvPath     = flag.String("hv", "", "HV channel raster dump (JSON)")
	configPath = flag.String("config", "", "Tuning config JSON (optional)")
	aoiPath    = flag.String("aoi", "", "Area of interest GeoJSON in the raster CRS (optional)")
	dbPath     = flag.String("db", "", "Persist results to this sqlite database (optional)")
	plotsDir   = flag.String("plots", "", "Write diagnostic plots under this directory (optional)")
	outPath    = flag.String("out", "-", "Results JSON output path, - for stdout")
	sceneID    = flag.String("scene", "", "Scene identifier used in plot paths and logs")
)

func main() {
	flag.Parse()

	if *hhPath == "" && *hvPath == "" {
		log.Fatal("at least one of -hh or -hv is required")
	}

	tc := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tc, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	rasters, err := loadRasters(tc)
	if err != nil {
		log.Fatalf("load rasters: %v", err)
	}

	models, err := loadModels(tc)
	if err != nil {
		log.Fatalf("load models: %v", err)
	}

	var classifier *classify.Classifier
	if path := tc.GetReferenceStatsPath(); path != "" {
		stats, err := classify.LoadReferenceStats(path)
		if err != nil {
			log.Fatalf("load reference stats: %v", err)
		}
		classifier, err = classify.NewClassifier(stats, classify.DefaultZThreshold)
		if err != nil {
			log.Fatalf("build classifier: %v", err)
		}
	}

	var aoi orb.Polygon
	if *aoiPath != "" {
		aoi, err = loadAOI(*aoiPath)
		if err != nil {
			log.Fatalf("load AOI: %v", err)
		}
	}

	p, err := pipeline.New(tc, models, classifier, aoi)
	if err != nil {
		log.Fatalf("configure pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := p.Run(ctx, rasters)
	if err != nil {
		log.Fatalf("pipeline run: %v", err)
	}
	for _, ce := range result.Errors {
		log.Printf("warning: %v", ce)
	}
	logSummary(result)

	if *plotsDir != "" {
		if err := writePlots(p, rasters); err != nil {
			log.Printf("warning: plots: %v", err)
		}
	}

	if *dbPath != "" {
		db, err := storage.Open(*dbPath)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()
		if err := storage.NewRunStore(db).SaveResult(result); err != nil {
			log.Fatalf("persist results: %v", err)
		}
		log.Printf("persisted run %s to %s", result.RunID, *dbPath)
	}

	if err := writeResult(result); err != nil {
		log.Fatalf("write results: %v", err)
	}
}

// loadRasters reads the raster dumps named on the command line, restricted to
// the channels the config enables.
func loadRasters(tc *config.TuningConfig) (map[sar.Channel]*sar.Raster, error) {
	enabled := make(map[sar.Channel]bool)
	for _, name := range tc.GetChannels() {
		ch, err := sar.ParseChannel(name)
		if err != nil {
			return nil, err
		}
		enabled[ch] = true
	}

	paths := map[sar.Channel]string{
		sar.ChannelHH: *hhPath,
		sar.ChannelHV: *hvPath,
	}
	rasters := make(map[sar.Channel]*sar.Raster)
	for ch, path := range paths {
		if path == "" || !enabled[ch] {
			continue
		}
		raster, err := sar.LoadRasterDump(path)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch, err)
		}
		if raster.Channel != ch {
			return nil, fmt.Errorf("raster %q declares channel %s, expected %s", path, raster.Channel, ch)
		}
		rasters[ch] = raster
	}
	if len(rasters) == 0 {
		return nil, fmt.Errorf("no rasters for the enabled channels %v", tc.GetChannels())
	}
	return rasters, nil
}

func loadModels(tc *config.TuningConfig) (map[sar.Channel]areamodel.Model, error) {
	models := make(map[sar.Channel]areamodel.Model)
	for name, path := range tc.ModelPaths {
		ch, err := sar.ParseChannel(name)
		if err != nil {
			return nil, err
		}
		m, err := areamodel.LoadLinearModel(path)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch, err)
		}
		models[ch] = m
	}
	return models, nil
}

// loadAOI reads a GeoJSON file and returns its first polygon. Feature
// collections, single features, and bare geometries are all accepted.
func loadAOI(path string) (orb.Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read AOI file: %w", err)
	}

	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		for _, f := range fc.Features {
			if poly, ok := polygonOf(f.Geometry); ok {
				return poly, nil
			}
		}
		return nil, fmt.Errorf("no polygon in AOI feature collection %q", path)
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil {
		if poly, ok := polygonOf(f.Geometry); ok {
			return poly, nil
		}
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("parse AOI geojson %q: %w", path, err)
	}
	if poly, ok := polygonOf(g.Geometry()); ok {
		return poly, nil
	}
	return nil, fmt.Errorf("AOI geometry in %q is not a polygon", path)
}

func polygonOf(g orb.Geometry) (orb.Polygon, bool) {
	switch geom := g.(type) {
	case orb.Polygon:
		return geom, true
	case orb.MultiPolygon:
		if len(geom) > 0 {
			return geom[0], true
		}
	}
	return nil, false
}

func writePlots(p *pipeline.Pipeline, rasters map[sar.Channel]*sar.Raster) error {
	dir := plot.MakeOutputDir(*plotsDir, *sceneID)
	for _, raster := range rasters {
		det, err := cfar.Detect(raster, p.Params())
		if err != nil {
			return fmt.Errorf("channel %s: %w", raster.Channel, err)
		}
		files, err := plot.SaveDetectionPlots(det, raster, dir)
		if err != nil {
			return err
		}
		log.Printf("wrote %d plots for channel %s under %s", len(files), raster.Channel, dir)
	}
	return nil
}

func logSummary(result *pipeline.Result) {
	for _, obj := range result.Merged {
		area := obj.AreaCFARM2
		label := "raw"
		if obj.AreaCorrectedM2 != nil {
			area = *obj.AreaCorrectedM2
			label = "corrected"
		}
		log.Printf("object %s [%v]: %s %s at (%.0f, %.0f)",
			obj.ID, obj.DetectionChannels, label, units.FormatArea(area), obj.CenterX, obj.CenterY)
	}
}

func writeResult(result *pipeline.Result) error {
	doc := struct {
		*pipeline.Result
		Scene  string   `json:"scene,omitempty"`
		Errors []string `json:"errors,omitempty"`
	}{Result: result, Scene: *sceneID}
	for _, ce := range result.Errors {
		doc.Errors = append(doc.Errors, ce.Error())
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if *outPath == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(*outPath, data, 0o644)
}
