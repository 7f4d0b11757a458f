package features

import (
	"math"
	"testing"

	"github.com/banshee-data/iceberg.report/internal/sar"
	"github.com/banshee-data/iceberg.report/internal/sar/blob"
	"github.com/banshee-data/iceberg.report/internal/sar/cfar"
)

// squareScene builds a w×h raster of background clutter with a square object
// of the given value and returns the single extracted blob plus the raster
// and a detection whose clutter map is the background everywhere.
func squareScene(t *testing.T, w, h, col, row, side int, object, clutter float64) (blob.Blob, *sar.Raster, *cfar.Detection) {
	t.Helper()
	values := make([]float64, w*h)
	for i := range values {
		values[i] = clutter
	}
	det := &cfar.Detection{
		Width:       w,
		Height:      h,
		Mask:        make([]bool, w*h),
		ClutterMean: make([]float64, w*h),
	}
	for i := range det.ClutterMean {
		det.ClutterMean[i] = clutter
	}
	for r := row; r < row+side; r++ {
		for c := col; c < col+side; c++ {
			values[r*w+c] = object
			det.Mask[r*w+c] = true
		}
	}
	raster, err := sar.NewRaster(sar.ChannelHH, w, h, values, sar.IdentityTransform, 1)
	if err != nil {
		t.Fatalf("NewRaster: %v", err)
	}
	blobs := blob.Extract(det, raster)
	if len(blobs) != 1 {
		t.Fatalf("got %d blobs, want 1", len(blobs))
	}
	return blobs[0], raster, det
}

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestExtract_UniformSquare(t *testing.T) {
	b, r, det := squareScene(t, 12, 12, 5, 5, 2, 1.0, 0.01)

	f := Extract(b, r, det)

	approx(t, "SqrtAreaCFAR", f.SqrtAreaCFAR, 2, 1e-12)
	approx(t, "MeanDB", f.MeanDB, 0, 1e-12)
	approx(t, "StdDB", f.StdDB, 0, 1e-12)
	approx(t, "MaxDB", f.MaxDB, 0, 1e-12)
	approx(t, "MinDB", f.MinDB, 0, 1e-12)
	approx(t, "ClutterMeanDB", f.ClutterMeanDB, -20, 1e-12)
	approx(t, "ContrastMeanDB", f.ContrastMeanDB, 20, 1e-12)
	// 2×2 square: perimeter 8, area 4.
	approx(t, "Compactness", f.Compactness, 16, 1e-9)
	approx(t, "PerimeterIndex", f.PerimeterIndex, math.Sqrt(math.Pi)/2, 1e-9)
	approx(t, "MaxDiameterM", f.MaxDiameterM, 2*math.Sqrt2, 1e-9)
}

func TestExtract_BackscatterSpread(t *testing.T) {
	b, r, det := squareScene(t, 10, 10, 4, 4, 2, 1.0, 0.01)
	// Two pixels at 0.5, two at 2.0: ±3.0103 dB around 0.
	r.Values[4*10+4] = 0.5
	r.Values[4*10+5] = 0.5
	r.Values[5*10+4] = 2.0
	r.Values[5*10+5] = 2.0

	f := Extract(b, r, det)

	halfDB := 10 * math.Log10(2)
	approx(t, "MaxDB", f.MaxDB, halfDB, 1e-9)
	approx(t, "MinDB", f.MinDB, -halfDB, 1e-9)
	approx(t, "StdDB", f.StdDB, halfDB, 1e-9)
	// Mean is computed on linear power, not on decibels.
	approx(t, "MeanDB", f.MeanDB, 10*math.Log10(1.25), 1e-9)
}

func TestExtract_UndefinedClutter(t *testing.T) {
	b, r, det := squareScene(t, 10, 10, 4, 4, 2, 1.0, 0.01)
	for i := range det.ClutterMean {
		det.ClutterMean[i] = math.NaN()
	}

	f := Extract(b, r, det)
	if !math.IsNaN(f.ClutterMeanDB) {
		t.Errorf("ClutterMeanDB = %v, want NaN when no clutter estimate exists", f.ClutterMeanDB)
	}
	if !math.IsNaN(f.ContrastMeanDB) {
		t.Errorf("ContrastMeanDB = %v, want NaN when no clutter estimate exists", f.ContrastMeanDB)
	}
	// The rest of the vector stays defined.
	approx(t, "MeanDB", f.MeanDB, 0, 1e-12)
}

func TestExtract_ScalesWithPixelSize(t *testing.T) {
	// Single 40m pixel.
	values := make([]float64, 25)
	for i := range values {
		values[i] = 0.01
	}
	values[2*5+2] = 1.0
	r, err := sar.NewRaster(sar.ChannelHV, 5, 5, values,
		sar.Affine{40, 0, 400000, 0, -40, 7600000}, 1600)
	if err != nil {
		t.Fatalf("NewRaster: %v", err)
	}
	det := &cfar.Detection{
		Width: 5, Height: 5,
		Mask:        make([]bool, 25),
		ClutterMean: make([]float64, 25),
	}
	for i := range det.ClutterMean {
		det.ClutterMean[i] = 0.01
	}
	det.Mask[2*5+2] = true
	blobs := blob.Extract(det, r)
	if len(blobs) != 1 {
		t.Fatalf("got %d blobs, want 1", len(blobs))
	}

	f := Extract(blobs[0], r, det)
	approx(t, "SqrtAreaCFAR", f.SqrtAreaCFAR, 40, 1e-9)
	approx(t, "MaxDiameterM", f.MaxDiameterM, 40*math.Sqrt2, 1e-9)
	// Shape ratios are scale invariant.
	approx(t, "Compactness", f.Compactness, 16, 1e-9)
}

func TestToVector_MatchesSchema(t *testing.T) {
	names := FeatureNames()
	f := FeatureVector{
		SqrtAreaCFAR:   1,
		MeanDB:         2,
		StdDB:          3,
		MaxDB:          4,
		MinDB:          5,
		ClutterMeanDB:  6,
		ContrastMeanDB: 7,
		Compactness:    8,
		PerimeterIndex: 9,
		MaxDiameterM:   10,
	}
	vec := f.ToVector()
	if len(vec) != len(names) {
		t.Fatalf("vector length %d != schema length %d", len(vec), len(names))
	}
	for i, v := range vec {
		if v != float64(i+1) {
			t.Errorf("vector[%d] (%s) = %v, want %v", i, names[i], v, i+1)
		}
	}
	if SchemaVersion != "v1" {
		t.Errorf("SchemaVersion = %q, want v1", SchemaVersion)
	}
}
