package sar

import "fmt"

// Default CFAR window geometry. The guard window excludes the target's own
// returns from the background sample; the outer window bounds the annulus
// sampled for clutter statistics.
const (
	DefaultOuterWindowSize = 29
	DefaultGuardWindowSize = 21
)

// WindowSpec defines the annular background sampling region centered on each
// pixel: the outer window minus the guard window. Both sizes are side lengths
// in pixels and must be positive odd integers with Guard < Outer.
type WindowSpec struct {
	Outer int
	Guard int
}

// DefaultWindowSpec returns the production-default window geometry.
func DefaultWindowSpec() WindowSpec {
	return WindowSpec{Outer: DefaultOuterWindowSize, Guard: DefaultGuardWindowSize}
}

// Validate rejects window geometries that cannot define an annulus.
func (w WindowSpec) Validate() error {
	if w.Outer <= 0 || w.Outer%2 == 0 {
		return fmt.Errorf("outer window size must be a positive odd integer, got %d", w.Outer)
	}
	if w.Guard <= 0 || w.Guard%2 == 0 {
		return fmt.Errorf("guard window size must be a positive odd integer, got %d", w.Guard)
	}
	if w.Guard >= w.Outer {
		return fmt.Errorf("guard window size (%d) must be smaller than outer window size (%d)", w.Guard, w.Outer)
	}
	return nil
}

// OuterRadius returns the half-width of the outer window.
func (w WindowSpec) OuterRadius() int { return w.Outer / 2 }

// GuardRadius returns the half-width of the guard window.
func (w WindowSpec) GuardRadius() int { return w.Guard / 2 }
