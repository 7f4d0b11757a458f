package cfar

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"
)

// Bounds for the method-of-moments gamma shape estimate. The lower bound
// guards against meaningless sub-exponential shapes from extreme variance;
// the upper bound is the variance floor expressed as a shape ceiling.
const (
	MinGammaShape     = 0.1
	DefaultMaxShape   = 1000.0
	defaultVarFloor   = 1e-3
	multiplierPerUnit = 64 // shape quantization steps per unit for the cache
)

// gammaMultiplier returns the factor t such that a gamma-distributed clutter
// sample with the given shape, normalized by its mean, exceeds t with
// probability pfa:
//
//	Survival_{Gamma(shape, rate=shape)}(t) = pfa
//
// The per-pixel CFAR threshold is then localMean * t. The equation has no
// closed form; t is found by doubling to bracket and bisecting, which is
// deterministic and monotone in pfa.
func gammaMultiplier(shape, pfa float64) float64 {
	g := distuv.Gamma{Alpha: shape, Beta: shape}

	// The normalized distribution has mean 1, so for any pfa < 0.5 the
	// solution lies above 1.
	lo := 1.0
	hi := 2.0
	for g.Survival(hi) > pfa {
		hi *= 2
		if hi > 1e9 {
			return math.Inf(1)
		}
	}

	for i := 0; i < 200; i++ {
		mid := 0.5 * (lo + hi)
		if g.Survival(mid) > pfa {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo <= 1e-12*hi {
			break
		}
	}
	return 0.5 * (lo + hi)
}

// multiplierCache memoizes gamma multipliers keyed by quantized shape, since
// neighbouring pixels produce near-identical shape estimates. Quantization to
// 1/64 shape units keeps the threshold error far below the raster's
// radiometric resolution while collapsing millions of solves to a handful.
type multiplierCache struct {
	mu      sync.RWMutex
	pfa     float64
	entries map[int64]float64
}

func newMultiplierCache(pfa float64) *multiplierCache {
	return &multiplierCache{pfa: pfa, entries: make(map[int64]float64)}
}

// lookup returns the multiplier for the given shape, computing and caching
// the quantized entry on first use. Safe for concurrent use.
func (c *multiplierCache) lookup(shape float64) float64 {
	key := int64(shape*multiplierPerUnit + 0.5)
	if key < 1 {
		key = 1
	}

	c.mu.RLock()
	t, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return t
	}

	quantized := float64(key) / multiplierPerUnit
	t = gammaMultiplier(quantized, c.pfa)

	c.mu.Lock()
	c.entries[key] = t
	c.mu.Unlock()
	return t
}
