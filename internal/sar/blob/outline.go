package blob

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/banshee-data/iceberg.report/internal/sar"
)

// vertex is a pixel-corner coordinate. Corner (c, r) is the top-left corner
// of pixel (c, r), so corners range over 0..Width and 0..Height inclusive.
type vertex struct {
	c int
	r int
}

type direction struct {
	dc int
	dr int
}

// traceOutline walks the exterior boundary of a pixel set and returns it as
// a closed ring in the raster's CRS. Boundary edges are directed so the
// interior stays on the walk's right-hand side (clockwise in row-down pixel
// space); at pinch vertices shared by diagonal-only pixels the walk prefers
// the left turn, which carries it around the whole 8-connected component in
// a single ring.
func traceOutline(pixels []Pixel, r *sar.Raster) orb.Ring {
	if len(pixels) == 0 {
		return nil
	}

	inBlob := make(map[Pixel]bool, len(pixels))
	for _, p := range pixels {
		inBlob[p] = true
	}

	// Collect directed boundary edges keyed by start vertex.
	edges := make(map[vertex][]vertex)
	addEdge := func(from, to vertex) {
		edges[from] = append(edges[from], to)
	}
	for _, p := range pixels {
		if !inBlob[Pixel{p.Col, p.Row - 1}] { // top side, walk east
			addEdge(vertex{p.Col, p.Row}, vertex{p.Col + 1, p.Row})
		}
		if !inBlob[Pixel{p.Col + 1, p.Row}] { // right side, walk south
			addEdge(vertex{p.Col + 1, p.Row}, vertex{p.Col + 1, p.Row + 1})
		}
		if !inBlob[Pixel{p.Col, p.Row + 1}] { // bottom side, walk west
			addEdge(vertex{p.Col + 1, p.Row + 1}, vertex{p.Col, p.Row + 1})
		}
		if !inBlob[Pixel{p.Col - 1, p.Row}] { // left side, walk north
			addEdge(vertex{p.Col, p.Row + 1}, vertex{p.Col, p.Row})
		}
	}
	// Deterministic candidate order regardless of map iteration.
	for v := range edges {
		sort.Slice(edges[v], func(i, j int) bool {
			a, b := edges[v][i], edges[v][j]
			if a.r != b.r {
				return a.r < b.r
			}
			return a.c < b.c
		})
	}

	// The first pixel in scan order has no blob pixel above it, so its top
	// edge starts the exterior ring.
	start := vertex{pixels[0].Col, pixels[0].Row}
	walk := []vertex{start}
	current := vertex{pixels[0].Col + 1, pixels[0].Row}
	takeEdge(edges, start, current)
	incoming := direction{1, 0}
	walk = append(walk, current)

	for current != start {
		next, ok := pickNext(edges, current, incoming)
		if !ok {
			// A consistent edge set cannot dead-end; bail out defensively
			// rather than loop forever on a corrupted mask.
			break
		}
		takeEdge(edges, current, next)
		incoming = direction{next.c - current.c, next.r - current.r}
		current = next
		walk = append(walk, current)
	}

	ring := make(orb.Ring, len(walk))
	for i, v := range walk {
		x, y := r.PixelCorner(v.c, v.r)
		ring[i] = orb.Point{x, y}
	}
	return ring
}

// pickNext selects the outgoing edge at a vertex, preferring the sharpest
// left turn relative to the incoming direction, then straight, then right,
// then reverse.
func pickNext(edges map[vertex][]vertex, at vertex, incoming direction) (vertex, bool) {
	candidates := edges[at]
	if len(candidates) == 0 {
		return vertex{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	prefs := []direction{
		{incoming.dr, -incoming.dc},  // left turn
		incoming,                     // straight
		{-incoming.dr, incoming.dc},  // right turn
		{-incoming.dc, -incoming.dr}, // reverse
	}
	for _, d := range prefs {
		want := vertex{at.c + d.dc, at.r + d.dr}
		for _, cand := range candidates {
			if cand == want {
				return cand, true
			}
		}
	}
	return candidates[0], true
}

// takeEdge removes the directed edge from the candidate set.
func takeEdge(edges map[vertex][]vertex, from, to vertex) {
	list := edges[from]
	for i, v := range list {
		if v == to {
			edges[from] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}
