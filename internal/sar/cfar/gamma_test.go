package cfar

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat/distuv"
)

func TestGammaMultiplier_InvertsSurvival(t *testing.T) {
	for _, shape := range []float64{1, 4.3, 16, 100, 1000} {
		for _, pfa := range []float64{1e-4, 1e-6, 1e-8} {
			mult := gammaMultiplier(shape, pfa)
			g := distuv.Gamma{Alpha: shape, Beta: shape}
			got := g.Survival(mult)
			if math.Abs(got-pfa) > 1e-3*pfa {
				t.Errorf("shape=%g pfa=%g: Survival(%g) = %g", shape, pfa, mult, got)
			}
		}
	}
}

func TestGammaMultiplier_MonotoneInPFA(t *testing.T) {
	// A stricter (smaller) false alarm probability demands a higher threshold.
	shape := 50.0
	loose := gammaMultiplier(shape, 1e-4)
	strict := gammaMultiplier(shape, 1e-6)
	if strict <= loose {
		t.Errorf("multiplier(1e-6)=%g should exceed multiplier(1e-4)=%g", strict, loose)
	}
}

func TestGammaMultiplier_TightensWithShape(t *testing.T) {
	// Higher shape (more looks, less speckle) concentrates the clutter
	// distribution, so the relative threshold shrinks towards 1.
	prev := math.Inf(1)
	for _, shape := range []float64{1, 10, 100, 1000} {
		mult := gammaMultiplier(shape, 1e-6)
		if mult >= prev {
			t.Errorf("multiplier should decrease with shape, got %g after %g", mult, prev)
		}
		if mult <= 1 {
			t.Errorf("multiplier must stay above the clutter mean, got %g", mult)
		}
		prev = mult
	}
}

func TestMultiplierCache_Deterministic(t *testing.T) {
	cache := newMultiplierCache(1e-6)
	a := cache.lookup(437.21)
	b := cache.lookup(437.21)
	if a != b {
		t.Errorf("repeated lookups differ: %g vs %g", a, b)
	}
	// Any shape rounding to the same 1/64 key shares the cached multiplier.
	key := math.Round(437.21 * multiplierPerUnit)
	c := cache.lookup((key + 0.4) / multiplierPerUnit)
	if a != c {
		t.Errorf("lookups within one quantization bucket differ: %g vs %g", a, c)
	}
	// The next bucket is a higher shape and must resolve to its own, tighter
	// multiplier.
	d := cache.lookup((key + 1) / multiplierPerUnit)
	if d >= a {
		t.Errorf("next quantization bucket should tighten the multiplier: %g vs %g", d, a)
	}
}
