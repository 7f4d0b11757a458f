// Package cfar implements gamma-distributed constant-false-alarm-rate outlier
// detection over backscatter rasters. Local clutter statistics come from an
// annular moving window (outer window minus guard window) evaluated in O(1)
// per pixel via summed-area tables.
package cfar

import (
	"fmt"
	"math"

	"github.com/banshee-data/iceberg.report/internal/sar"
)

// LocalStats holds per-pixel clutter statistics of the annular background
// window. Pixels whose annulus contained no valid samples have NaN mean and
// variance and a zero count.
type LocalStats struct {
	Width  int
	Height int

	Mean     []float64 // annulus mean of linear backscatter
	Variance []float64 // annulus population variance
	Count    []int     // number of valid samples in the annulus
}

// integral accumulates summed-area tables over value, value squared, and
// valid-sample count. Tables are (Width+1)x(Height+1) with a zero border so
// box queries need no special casing at the origin.
type integral struct {
	width  int
	height int
	sum    []float64
	sumSq  []float64
	count  []int64
}

func newIntegral(r *sar.Raster) *integral {
	w, h := r.Width, r.Height
	stride := w + 1
	ii := &integral{
		width:  w,
		height: h,
		sum:    make([]float64, stride*(h+1)),
		sumSq:  make([]float64, stride*(h+1)),
		count:  make([]int64, stride*(h+1)),
	}

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			i := (row+1)*stride + (col + 1)
			up := i - stride
			left := i - 1
			upLeft := up - 1

			var v, v2 float64
			var n int64
			if r.Valid[row*w+col] {
				v = r.Values[row*w+col]
				v2 = v * v
				n = 1
			}
			ii.sum[i] = v + ii.sum[up] + ii.sum[left] - ii.sum[upLeft]
			ii.sumSq[i] = v2 + ii.sumSq[up] + ii.sumSq[left] - ii.sumSq[upLeft]
			ii.count[i] = n + ii.count[up] + ii.count[left] - ii.count[upLeft]
		}
	}
	return ii
}

// boxQuery returns the sums over the inclusive pixel box [col0,col1]x[row0,row1],
// clipped to the raster extent. An empty (fully clipped) box yields zeros.
func (ii *integral) boxQuery(col0, row0, col1, row1 int) (sum, sumSq float64, n int64) {
	if col0 < 0 {
		col0 = 0
	}
	if row0 < 0 {
		row0 = 0
	}
	if col1 >= ii.width {
		col1 = ii.width - 1
	}
	if row1 >= ii.height {
		row1 = ii.height - 1
	}
	if col0 > col1 || row0 > row1 {
		return 0, 0, 0
	}

	stride := ii.width + 1
	a := row0*stride + col0
	b := row0*stride + (col1 + 1)
	c := (row1+1)*stride + col0
	d := (row1+1)*stride + (col1 + 1)

	sum = ii.sum[d] - ii.sum[b] - ii.sum[c] + ii.sum[a]
	sumSq = ii.sumSq[d] - ii.sumSq[b] - ii.sumSq[c] + ii.sumSq[a]
	n = ii.count[d] - ii.count[b] - ii.count[c] + ii.count[a]
	return sum, sumSq, n
}

// ComputeLocalStats evaluates annular background statistics for every pixel.
// Windows extending past the raster edge are clipped to the available pixels;
// nodata pixels never contribute samples.
func ComputeLocalStats(r *sar.Raster, window sar.WindowSpec) (*LocalStats, error) {
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("invalid window spec: %w", err)
	}

	w, h := r.Width, r.Height
	ls := &LocalStats{
		Width:    w,
		Height:   h,
		Mean:     make([]float64, w*h),
		Variance: make([]float64, w*h),
		Count:    make([]int, w*h),
	}

	ii := newIntegral(r)
	outerR := window.OuterRadius()
	guardR := window.GuardRadius()

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			oSum, oSumSq, oN := ii.boxQuery(col-outerR, row-outerR, col+outerR, row+outerR)
			gSum, gSumSq, gN := ii.boxQuery(col-guardR, row-guardR, col+guardR, row+guardR)

			sum := oSum - gSum
			sumSq := oSumSq - gSumSq
			n := oN - gN

			i := row*w + col
			ls.Count[i] = int(n)
			if n == 0 {
				ls.Mean[i] = math.NaN()
				ls.Variance[i] = math.NaN()
				continue
			}

			mean := sum / float64(n)
			variance := sumSq/float64(n) - mean*mean
			if variance < 0 {
				// Catastrophic cancellation on near-constant windows can
				// push the two-pass estimate slightly negative.
				variance = 0
			}
			ls.Mean[i] = mean
			ls.Variance[i] = variance
		}
	}

	return ls, nil
}
