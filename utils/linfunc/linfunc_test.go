package linfunc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAt(t *testing.T) {
	f := Make(1.5e-6, 2e-9)
	require.Equal(t, 1.5e-6, f.At(0))
	require.Equal(t, 1.5e-6+2e-9*1000, f.At(1000))
}

func TestAdd(t *testing.T) {
	f := Make(1e-6, 1e-9)
	g := Make(3e-6, 2e-9)
	sum := f.Add(g)
	require.Equal(t, 4e-6, sum.C)
	require.Equal(t, 3e-9, sum.M)
	// addition is exact, not merely approximate
	require.Equal(t, f.At(123)+g.At(123), sum.At(123))
}

func TestIsZero(t *testing.T) {
	require.True(t, Func{}.IsZero())
	require.False(t, Make(0, 1e-9).IsZero())
}

func TestIntersect(t *testing.T) {
	f := Make(0, 2e-9)
	g := Make(100e-9, 1e-9)
	x, ok := f.Intersect(g)
	require.True(t, ok)
	require.Equal(t, uint64(100), x)

	_, ok = f.Intersect(Make(5, 2e-9))
	require.False(t, ok)

	// crossing behind the origin is no crossover at any valid length
	_, ok = Make(100e-9, 2e-9).Intersect(Make(0, 1e-9))
	require.False(t, ok)

	// far crossovers clamp instead of overflowing the conversion
	x, ok = Make(0, 1e-9).Intersect(Make(1e12, 0.5e-9))
	require.True(t, ok)
	require.Equal(t, uint64(math.MaxUint64), x)
}
