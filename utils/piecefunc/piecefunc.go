// Package piecefunc implements monotonic piecewise linear functions on uint64.
package piecefunc

import "math"

// Dot is a pivot point of a piecewise linear function.
type Dot struct {
	X uint64
	Y uint64
}

// NewFunc interpolates the given pivot dots into a function.
// Dots must be sorted by X in ascending order and X values must be unique.
// Values outside of the dots range are clamped to the first/last Y.
func NewFunc(dots []Dot) func(x uint64) uint64 {
	if len(dots) < 2 {
		panic("too few dots")
	}
	for i := 1; i < len(dots); i++ {
		if dots[i].X <= dots[i-1].X {
			panic("non-ascending dots")
		}
	}
	cp := make([]Dot, len(dots))
	copy(cp, dots)
	return func(x uint64) uint64 {
		return interpolate(cp, x)
	}
}

func interpolate(dots []Dot, x uint64) uint64 {
	if x <= dots[0].X {
		return dots[0].Y
	}
	if x >= dots[len(dots)-1].X {
		return dots[len(dots)-1].Y
	}
	// binary search for the enclosing segment
	lo, hi := 0, len(dots)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if dots[mid].X <= x {
			lo = mid
		} else {
			hi = mid
		}
	}
	x0, y0 := dots[lo].X, dots[lo].Y
	x1, y1 := dots[hi].X, dots[hi].Y
	ratio := float64(x-x0) / float64(x1-x0)
	if y1 >= y0 {
		return y0 + uint64(math.Round(ratio*float64(y1-y0)))
	}
	return y0 - uint64(math.Round(ratio*float64(y0-y1)))
}
