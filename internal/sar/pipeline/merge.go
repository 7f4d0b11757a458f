package pipeline

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/iceberg.report/internal/sar"
)

// mergeChannels folds the per-channel object lists into one scene-level
// list. Objects from different channels whose outlines come within bufferM
// of each other, or where one outline sits inside the other, are treated as
// the same physical target: the detection with the larger CFAR footprint
// wins and carries both channel tags. Objects seen on only one channel pass
// through unchanged.
//
// Merging is pairwise between the first two channels present in sar.Channels
// order, which covers the HH/HV dual-pol scenes this pipeline ingests.
func mergeChannels(channels map[sar.Channel]*ChannelResult, bufferM float64) []Object {
	// Deterministic channel order regardless of map iteration.
	var lists [][]Object
	for _, ch := range sar.Channels {
		if cr, ok := channels[ch]; ok && len(cr.Objects) > 0 {
			lists = append(lists, cr.Objects)
		}
	}
	switch len(lists) {
	case 0:
		return nil
	case 1:
		return append([]Object(nil), lists[0]...)
	}

	primary, secondary := lists[0], lists[1]
	claimed := make([]bool, len(secondary))
	var merged []Object

	for _, a := range primary {
		matchIdx := -1
		matchDist := math.Inf(1)
		for j, b := range secondary {
			if claimed[j] {
				continue
			}
			d := outlineDistance(a.Outline, b.Outline, bufferM)
			if d <= bufferM && d < matchDist {
				matchIdx, matchDist = j, d
			}
		}
		if matchIdx < 0 {
			merged = append(merged, a)
			continue
		}
		claimed[matchIdx] = true
		b := secondary[matchIdx]

		winner := a
		if b.AreaCFARM2 > a.AreaCFARM2 {
			winner = b
		}
		winner.DetectionChannels = []sar.Channel{a.Channel, b.Channel}
		merged = append(merged, winner)
	}

	for j, b := range secondary {
		if !claimed[j] {
			merged = append(merged, b)
		}
	}
	return merged
}

// outlineDistance returns the minimum planar distance between two rings,
// probing each ring's vertices against the other's segments. A ring fully
// inside the other counts as distance zero: a compact HV footprint nested in
// a wider HH footprint is the same target even when the boundaries stay
// apart. The bounding box check short-circuits the common far-apart case.
func outlineDistance(a, b orb.Ring, bufferM float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return math.Inf(1)
	}
	if !a.Bound().Pad(bufferM).Intersects(b.Bound()) {
		return math.Inf(1)
	}
	if planar.PolygonContains(orb.Polygon{a}, b[0]) ||
		planar.PolygonContains(orb.Polygon{b}, a[0]) {
		return 0
	}

	best := math.Inf(1)
	for _, v := range a {
		if d := planar.DistanceFrom(b, v); d < best {
			best = d
		}
	}
	for _, v := range b {
		if d := planar.DistanceFrom(a, v); d < best {
			best = d
		}
	}
	return best
}
