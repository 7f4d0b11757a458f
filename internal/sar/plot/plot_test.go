package plot

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/iceberg.report/internal/sar"
	"github.com/banshee-data/iceberg.report/internal/sar/cfar"
)

func TestSaveDetectionPlots(t *testing.T) {
	values := make([]float64, 30*30)
	for i := range values {
		values[i] = 0.01
	}
	values[15*30+15] = 1.0
	values[0] = math.NaN() // nodata must not break rendering
	r, err := sar.NewRaster(sar.ChannelHH, 30, 30, values, sar.IdentityTransform, 1)
	if err != nil {
		t.Fatalf("NewRaster: %v", err)
	}

	det, err := cfar.Detect(r, cfar.DefaultParams())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	dir := t.TempDir()
	files, err := SaveDetectionPlots(det, r, dir)
	if err != nil {
		t.Fatalf("SaveDetectionPlots: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("wrote %d files, want 3", len(files))
	}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			t.Errorf("missing plot file %s: %v", f, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("plot file %s is empty", f)
		}
		if filepath.Ext(f) != ".png" {
			t.Errorf("plot file %s is not a PNG", f)
		}
	}
}

func TestMakeOutputDir(t *testing.T) {
	dir := MakeOutputDir("plots", "scene-042")
	if !strings.HasPrefix(dir, filepath.Join("plots", "scene-042")) {
		t.Errorf("MakeOutputDir = %q, want under plots/scene-042", dir)
	}

	anon := MakeOutputDir("plots", "")
	if !strings.Contains(anon, "scene_") {
		t.Errorf("MakeOutputDir with empty scene = %q", anon)
	}
}
