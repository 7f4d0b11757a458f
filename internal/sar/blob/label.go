// Package blob groups CFAR detection pixels into connected objects and
// derives their geometric outlines. Components use 8-connectivity, matching
// the convention that diagonal detection pixels belong to the same target.
package blob

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/banshee-data/iceberg.report/internal/sar"
	"github.com/banshee-data/iceberg.report/internal/sar/cfar"
)

// Pixel addresses one raster cell of a blob.
type Pixel struct {
	Col int
	Row int
}

// Blob is a connected set of detection pixels treated as one candidate
// object. Outline and perimeter are in the raster's CRS; AreaCFARM2 is
// exactly PixelCount times the raster's pixel area.
type Blob struct {
	ID      int
	Channel sar.Channel

	Pixels     []Pixel
	PixelCount int

	Outline    orb.Ring
	PerimeterM float64
	AreaCFARM2 float64

	// Truncated marks objects touching the raster boundary; their true
	// extent is not fully observed.
	Truncated bool
}

// unionFind is a plain union-find over provisional component labels.
type unionFind struct {
	parent []int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: []int{0}} // label 0 unused (background)
}

func (uf *unionFind) newLabel() int {
	label := len(uf.parent)
	uf.parent = append(uf.parent, label)
	return label
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		uf.parent[rb] = ra
	} else {
		uf.parent[ra] = rb
	}
}

// Extract groups the detection mask into blobs. IDs are assigned in raster
// scan order starting at 1, so repeated runs over the same mask produce
// identical results.
func Extract(det *cfar.Detection, r *sar.Raster) []Blob {
	w, h := det.Width, det.Height
	labels := make([]int, w*h)
	uf := newUnionFind()

	// First pass: provisional labels, merging across the four already-seen
	// 8-neighbours (west, north-west, north, north-east).
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			i := row*w + col
			if !det.Mask[i] {
				continue
			}

			best := 0
			assign := func(ni int) {
				if ni < 0 || !det.Mask[ni] || labels[ni] == 0 {
					return
				}
				if best == 0 {
					best = labels[ni]
				} else {
					uf.union(best, labels[ni])
				}
			}

			if col > 0 {
				assign(i - 1)
			}
			if row > 0 {
				assign(i - w)
				if col > 0 {
					assign(i - w - 1)
				}
				if col < w-1 {
					assign(i - w + 1)
				}
			}

			if best == 0 {
				best = uf.newLabel()
			}
			labels[i] = best
		}
	}

	// Second pass: resolve to compact IDs in first-appearance order.
	idByRoot := make(map[int]int)
	var blobs []Blob
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			i := row*w + col
			if labels[i] == 0 {
				continue
			}
			root := uf.find(labels[i])
			id, ok := idByRoot[root]
			if !ok {
				id = len(blobs) + 1
				idByRoot[root] = id
				blobs = append(blobs, Blob{ID: id, Channel: r.Channel})
			}
			b := &blobs[id-1]
			b.Pixels = append(b.Pixels, Pixel{Col: col, Row: row})
			if col == 0 || row == 0 || col == w-1 || row == h-1 {
				b.Truncated = true
			}
		}
	}

	for i := range blobs {
		b := &blobs[i]
		b.PixelCount = len(b.Pixels)
		b.AreaCFARM2 = float64(b.PixelCount) * r.PixelAreaM2
		b.Outline = traceOutline(b.Pixels, r)
		b.PerimeterM = ringLength(b.Outline)
	}

	return blobs
}

// ringLength sums the planar segment lengths of a closed ring.
func ringLength(ring orb.Ring) float64 {
	total := 0.0
	for i := 1; i < len(ring); i++ {
		total += math.Hypot(ring[i][0]-ring[i-1][0], ring[i][1]-ring[i-1][1])
	}
	return total
}
