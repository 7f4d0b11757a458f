package sar

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// RasterDump is the on-disk interchange format the CLI consumes: a JSON
// header plus a flat value array. Upstream preprocessing (calibration,
// geocoding) writes these dumps; SAFE-archive parsing is not this module's
// concern.
type RasterDump struct {
	Channel     string    `json:"channel"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Transform   Affine    `json:"transform"`
	PixelAreaM2 float64   `json:"pixel_area_m2"`
	NodataValue *float64  `json:"nodata_value,omitempty"`
	Values      []float64 `json:"values"`
}

// LoadRasterDump reads a raster dump file and materializes it as a Raster.
// Entries equal to the declared nodata value (and any non-finite entries)
// become nodata pixels.
func LoadRasterDump(path string) (*Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raster dump: %w", err)
	}

	var dump RasterDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("failed to parse raster dump %s: %w", path, err)
	}
	return dump.ToRaster()
}

// ToRaster validates the dump and converts it to a Raster.
func (d *RasterDump) ToRaster() (*Raster, error) {
	ch, err := ParseChannel(d.Channel)
	if err != nil {
		return nil, err
	}

	values := d.Values
	if d.NodataValue != nil {
		nodata := *d.NodataValue
		values = make([]float64, len(d.Values))
		copy(values, d.Values)
		for i, v := range values {
			if v == nodata {
				values[i] = math.NaN()
			}
		}
	}

	return NewRaster(ch, d.Width, d.Height, values, d.Transform, d.PixelAreaM2)
}
