package cache

import (
	"expvar"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New[string, []int64](10, nil)
	require.NotNil(t, c)
	assert.Equal(t, 10, c.capacity)
	assert.Zero(t, c.Len())

	disabled := New[string, []int64](-3, nil)
	assert.Equal(t, 0, disabled.capacity)
}

func TestLRU_PutGetEvict(t *testing.T) {
	var evicted []string
	c := New(3, func(key string, _ int64) { evicted = append(evicted, key) })

	c.Put("AAA", 0)
	c.Put("BBB", 6)
	c.Put("AAC", 12)
	require.Equal(t, 3, c.Len())

	v, ok := c.Get("AAC")
	require.True(t, ok)
	assert.Equal(t, int64(12), v)
	_, ok = c.Get("AAA")
	require.True(t, ok)

	_, ok = c.Get("ZZZ")
	assert.False(t, ok)

	// BBB is now least recently used.
	c.Put("CCC", 18)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"BBB"}, evicted)
	_, ok = c.Get("BBB")
	assert.False(t, ok)
	v, ok = c.Get("CCC")
	require.True(t, ok)
	assert.Equal(t, int64(18), v)
}

func TestLRU_PutUpdates(t *testing.T) {
	c := New[string, string](2, nil)
	c.Put("k", "v1")
	c.Put("k", "v2")
	assert.Equal(t, 1, c.Len())
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestLRU_Clear(t *testing.T) {
	var cleared int
	c := New(5, func(string, int) { cleared++ })
	c.Put("k1", 1)
	c.Put("k2", 2)

	c.Clear()
	assert.Zero(t, c.Len())
	assert.Equal(t, 2, cleared)
	_, ok := c.Get("k1")
	assert.False(t, ok)

	c.Put("k3", 3)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_HitRate(t *testing.T) {
	hits, misses := new(expvar.Int), new(expvar.Int)
	c := New[string, int](2, nil)
	assert.Equal(t, 0.0, c.HitRate())
	c.SetMetrics(hits, misses)
	assert.Equal(t, 0.0, c.HitRate())

	c.Get("k1") // miss
	c.Put("k1", 1)
	c.Get("k1") // hit
	c.Put("k2", 2)
	c.Get("k2")    // hit
	c.Put("k3", 3) // evicts k1
	c.Get("k1")    // miss
	c.Get("k3")    // hit

	assert.Equal(t, int64(3), hits.Value())
	assert.Equal(t, int64(2), misses.Value())
	assert.InDelta(t, 0.6, c.HitRate(), 1e-9)
}

func TestLRU_Disabled(t *testing.T) {
	hits, misses := new(expvar.Int), new(expvar.Int)
	c := New[string, int](0, nil)
	c.SetMetrics(hits, misses)

	c.Put("k1", 1)
	assert.Zero(t, c.Len())
	_, ok := c.Get("k1")
	assert.False(t, ok)
	assert.Zero(t, hits.Value())
	assert.Zero(t, misses.Value())
}
