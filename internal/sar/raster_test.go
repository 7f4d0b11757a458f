package sar

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestNewRaster_MarksNodata(t *testing.T) {
	values := []float64{0.1, math.NaN(), 0.2, -0.5}
	r, err := NewRaster(ChannelHH, 2, 2, values, IdentityTransform, 1600)
	if err != nil {
		t.Fatalf("NewRaster: %v", err)
	}

	if !r.IsValid(0, 0) || !r.IsValid(0, 1) {
		t.Error("finite non-negative pixels should be valid")
	}
	if r.IsValid(1, 0) {
		t.Error("NaN pixel should be nodata")
	}
	if r.IsValid(1, 1) {
		t.Error("negative pixel should be nodata")
	}
	if got := r.ValidCount(); got != 2 {
		t.Errorf("ValidCount = %d, want 2", got)
	}
}

func TestNewRaster_RejectsBadShape(t *testing.T) {
	if _, err := NewRaster(ChannelHH, 3, 2, make([]float64, 5), IdentityTransform, 1600); err == nil {
		t.Error("expected error for mismatched values length")
	}
	if _, err := NewRaster(ChannelHH, 0, 2, nil, IdentityTransform, 1600); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := NewRaster(ChannelHH, 2, 2, make([]float64, 4), IdentityTransform, 0); err == nil {
		t.Error("expected error for zero pixel area")
	}
}

func TestAffine_Apply(t *testing.T) {
	// 40m pixels, origin at (400000, 8200000), north-up grid.
	tr := Affine{40, 0, 400000, 0, -40, 8200000}
	x, y := tr.Apply(0, 0)
	if x != 400000 || y != 8200000 {
		t.Errorf("origin corner = (%v, %v)", x, y)
	}
	x, y = tr.Apply(10.5, 2.5)
	if x != 400420 || y != 8199900 {
		t.Errorf("pixel center = (%v, %v), want (400420, 8199900)", x, y)
	}
}

func TestParseChannel(t *testing.T) {
	if ch, err := ParseChannel("hv"); err != nil || ch != ChannelHV {
		t.Errorf("ParseChannel(hv) = %v, %v", ch, err)
	}
	if _, err := ParseChannel("VV"); err == nil {
		t.Error("expected error for unsupported channel")
	}
}

func TestWindowSpec_Validate(t *testing.T) {
	if err := DefaultWindowSpec().Validate(); err != nil {
		t.Errorf("default window spec should validate: %v", err)
	}

	bad := []WindowSpec{
		{Outer: 28, Guard: 21}, // even outer
		{Outer: 29, Guard: 20}, // even guard
		{Outer: 29, Guard: 29}, // guard not smaller
		{Outer: -1, Guard: 21}, // non-positive
		{Outer: 29, Guard: 31}, // guard larger
	}
	for _, w := range bad {
		if err := w.Validate(); err == nil {
			t.Errorf("WindowSpec %+v should not validate", w)
		}
	}
}

func TestLoadRasterDump(t *testing.T) {
	nodata := -9999.0
	dump := RasterDump{
		Channel:     "HH",
		Width:       2,
		Height:      2,
		Transform:   IdentityTransform,
		PixelAreaM2: 1600,
		NodataValue: &nodata,
		Values:      []float64{0.01, -9999, 0.02, 0.03},
	}
	data, err := json.Marshal(&dump)
	if err != nil {
		t.Fatalf("marshal dump: %v", err)
	}
	path := filepath.Join(t.TempDir(), "hh.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write dump: %v", err)
	}

	r, err := LoadRasterDump(path)
	if err != nil {
		t.Fatalf("LoadRasterDump: %v", err)
	}
	if r.Channel != ChannelHH {
		t.Errorf("Channel = %v, want HH", r.Channel)
	}
	if r.IsValid(1, 0) {
		t.Error("nodata sentinel pixel should be invalid")
	}
	if got := r.ValidCount(); got != 3 {
		t.Errorf("ValidCount = %d, want 3", got)
	}
}
