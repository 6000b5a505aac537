// Package linfunc implements affine cost functions y = C + M*x used by the
// protocol performance model.
package linfunc

import "math"

// Func is an affine function of a message length.
// C is the constant term (seconds), M is the per-byte term (seconds/byte).
type Func struct {
	C float64
	M float64
}

// Make returns the affine function with the given constant and per-byte terms.
func Make(c, m float64) Func {
	return Func{C: c, M: m}
}

// At evaluates the function at length x.
func (f Func) At(x uint64) float64 {
	return f.C + f.M*float64(x)
}

// Add returns the sum of two functions.
func (f Func) Add(g Func) Func {
	return Func{
		C: f.C + g.C,
		M: f.M + g.M,
	}
}

// IsZero returns true for the zero function.
func (f Func) IsZero() bool {
	return f.C == 0 && f.M == 0
}

// Intersect returns the length at which f and g evaluate to the same value.
// It reports false when the functions are parallel or cross only at a
// negative length. A crossover beyond the uint64 range clamps to MaxUint64.
func (f Func) Intersect(g Func) (uint64, bool) {
	if f.M == g.M {
		return 0, false
	}
	x := (g.C - f.C) / (f.M - g.M)
	if x < 0 {
		return 0, false
	}
	if x >= math.MaxUint64 {
		return math.MaxUint64, true
	}
	return uint64(x), true
}
