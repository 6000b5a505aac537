package wlru

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// packedKey fakes a packed remote key of the given size. The rkey cache keys
// entries by the packed bytes and weighs them by the packed size.
func packedKey(id byte, size int) string {
	b := make([]byte, size)
	for i := range b {
		b[i] = id
	}
	return string(b)
}

func TestNegativeSize(t *testing.T) {
	_, err := New(10, -10)
	require.Error(t, err)
}

func TestWeightBound(t *testing.T) {
	cache, err := New(64, 16)
	require.NoError(t, err)

	// three 24-byte keys exceed the 64-byte budget, the oldest goes
	for id := byte(1); id <= 3; id++ {
		k := packedKey(id, 24)
		evicted := cache.Add(k, id, uint(len(k)))
		if id < 3 {
			require.Equal(t, 0, evicted)
		} else {
			require.Equal(t, 1, evicted)
		}
	}
	require.Equal(t, 2, cache.Len())
	require.Equal(t, uint(48), cache.Weight())
	require.False(t, cache.Contains(packedKey(1, 24)))
	require.True(t, cache.Contains(packedKey(3, 24)))

	w, n := cache.Total()
	require.Equal(t, uint(48), w)
	require.Equal(t, 2, n)
}

func TestCountBound(t *testing.T) {
	cache, err := New(1<<20, 2)
	require.NoError(t, err)

	cache.Add(packedKey(1, 8), 1, 8)
	cache.Add(packedKey(2, 8), 2, 8)
	evicted := cache.Add(packedKey(3, 8), 3, 8)
	require.Equal(t, 1, evicted)
	require.Equal(t, 2, cache.Len())
	require.False(t, cache.Contains(packedKey(1, 8)))
}

func TestRefreshReplacesWeight(t *testing.T) {
	cache, err := New(100, 16)
	require.NoError(t, err)

	k := packedKey(1, 8)
	cache.Add(k, "short", 8)
	cache.Add(k, "long", 40)
	require.Equal(t, 1, cache.Len())
	require.Equal(t, uint(40), cache.Weight())

	v, ok := cache.Get(k)
	require.True(t, ok)
	require.Equal(t, "long", v)
}

func TestRecency(t *testing.T) {
	cache, err := New(1<<20, 16)
	require.NoError(t, err)

	a, b, c := packedKey(1, 8), packedKey(2, 8), packedKey(3, 8)
	cache.Add(a, 1, 8)
	cache.Add(b, 2, 8)
	cache.Add(c, 3, 8)
	require.Equal(t, []interface{}{a, b, c}, cache.Keys())

	// Get promotes, Peek does not
	_, ok := cache.Get(a)
	require.True(t, ok)
	_, ok = cache.Peek(b)
	require.True(t, ok)

	k, v, ok := cache.GetOldest()
	require.True(t, ok)
	require.Equal(t, b, k)
	require.Equal(t, 2, v)

	k, v, ok = cache.RemoveOldest()
	require.True(t, ok)
	require.Equal(t, b, k)
	require.Equal(t, 2, v)
	require.Equal(t, 2, cache.Len())
}

func TestEvictCallback(t *testing.T) {
	released := map[interface{}]int{}
	cache, err := NewWithEvict(32, 16, func(key, _ interface{}) {
		released[key]++
	})
	require.NoError(t, err)

	a, b, c := packedKey(1, 16), packedKey(2, 16), packedKey(3, 16)
	cache.Add(a, 1, 16)
	cache.Add(b, 2, 16)
	cache.Add(c, 3, 16) // evicts a
	require.Equal(t, 1, released[a])

	require.True(t, cache.Remove(b))
	require.Equal(t, 1, released[b])
	require.False(t, cache.Remove(b))

	cache.Purge()
	require.Equal(t, 1, released[c])
	require.Equal(t, 0, cache.Len())
	require.Equal(t, uint(0), cache.Weight())
}

func TestResize(t *testing.T) {
	cache, err := New(1<<20, 16)
	require.NoError(t, err)

	for id := byte(1); id <= 4; id++ {
		cache.Add(packedKey(id, 16), id, 16)
	}
	evicted := cache.Resize(32, 16)
	require.Equal(t, 2, evicted)
	require.Equal(t, 2, cache.Len())
	require.True(t, cache.Contains(packedKey(4, 16)))
	require.False(t, cache.Contains(packedKey(1, 16)))
}
