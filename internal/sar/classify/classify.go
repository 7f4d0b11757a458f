// Package classify scores detected objects against reference statistics of
// confirmed icebergs. Objects whose backscatter or outline shape falls far
// below the reference population are flagged as implausible rather than
// dropped, leaving the final call to downstream consumers.
package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/iceberg.report/internal/sar"
	"github.com/banshee-data/iceberg.report/internal/sar/features"
)

// DefaultZThreshold is the z-score below which an object is considered
// implausible. Only the low tail matters: unusually bright or unusually
// compact objects are fine.
const DefaultZThreshold = -2.0

// Moments holds the mean and standard deviation of one reference feature.
type Moments struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// z standardizes a value; a degenerate reference spread yields zero so the
// feature never votes against the object.
func (m Moments) z(v float64) float64 {
	if m.Std <= 0 || math.IsNaN(v) {
		return 0
	}
	return (v - m.Mean) / m.Std
}

// ChannelStats carries the reference moments for one polarization channel.
type ChannelStats struct {
	MeanDB         Moments `json:"mean_db"`
	PerimeterIndex Moments `json:"perimeter_index"`
}

// ReferenceStats is the JSON artifact of per-channel reference moments,
// exported alongside the regression models.
type ReferenceStats struct {
	SchemaVersion string                         `json:"schema_version"`
	Channels      map[sar.Channel]ChannelStats `json:"channels"`
}

// LoadReferenceStats reads a reference statistics artifact.
func LoadReferenceStats(path string) (*ReferenceStats, error) {
	if filepath.Ext(path) != ".json" {
		return nil, fmt.Errorf("reference stats must be a .json file, got %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference stats: %w", err)
	}
	var stats ReferenceStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("parse reference stats %q: %w", path, err)
	}
	if len(stats.Channels) == 0 {
		return nil, fmt.Errorf("reference stats %q has no channels", path)
	}
	for ch := range stats.Channels {
		if !ch.Valid() {
			return nil, fmt.Errorf("reference stats %q has unknown channel %q", path, ch)
		}
	}
	return &stats, nil
}

// Assessment is the classifier's verdict on one object.
type Assessment struct {
	ZMeanDB         float64 `json:"z_mean_db"`
	ZPerimeterIndex float64 `json:"z_perimeter_index"`
	Plausible       bool    `json:"plausible"`
}

// Classifier flags objects implausibly far below the reference population.
type Classifier struct {
	stats     *ReferenceStats
	threshold float64
}

// NewClassifier builds a classifier; pass DefaultZThreshold unless tuning.
func NewClassifier(stats *ReferenceStats, threshold float64) (*Classifier, error) {
	if stats == nil {
		return nil, fmt.Errorf("nil reference stats")
	}
	return &Classifier{stats: stats, threshold: threshold}, nil
}

// Assess standardizes the object's mean backscatter and perimeter index
// against the channel's reference moments. The object is plausible when
// neither z-score falls below the threshold.
func (c *Classifier) Assess(ch sar.Channel, f features.FeatureVector) (Assessment, error) {
	ref, ok := c.stats.Channels[ch]
	if !ok {
		return Assessment{}, fmt.Errorf("no reference stats for channel %s", ch)
	}
	a := Assessment{
		ZMeanDB:         ref.MeanDB.z(f.MeanDB),
		ZPerimeterIndex: ref.PerimeterIndex.z(f.PerimeterIndex),
	}
	a.Plausible = a.ZMeanDB >= c.threshold && a.ZPerimeterIndex >= c.threshold
	return a, nil
}
