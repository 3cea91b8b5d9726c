package router

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternCache_HitReturnsSameInstance(t *testing.T) {
	t.Parallel()

	c := NewPatternCache(10)

	p1, err := c.Get("/pets/:id")
	require.NoError(t, err)
	p2, err := c.Get("/pets/:id")
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.Equal(t, 1, c.Len())
}

func TestPatternCache_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	c := NewPatternCache(10)

	_, err := c.Get("no-slash")
	require.Error(t, err)
	assert.Zero(t, c.Len())
}

func TestPatternCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := NewPatternCache(2)

	a, err := c.Get("/a")
	require.NoError(t, err)
	_, err = c.Get("/b")
	require.NoError(t, err)

	// touch /a so /b becomes the eviction candidate
	_, err = c.Get("/a")
	require.NoError(t, err)

	_, err = c.Get("/c")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	again, err := c.Get("/a")
	require.NoError(t, err)
	assert.Same(t, a, again)

	c.mu.Lock()
	_, hasB := c.entries["/b"]
	c.mu.Unlock()
	assert.False(t, hasB)
}

func TestPatternCache_DefaultSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultPatternCacheSize, NewPatternCache(0).maxSize)
}

func TestPatternCache_Concurrent(t *testing.T) {
	t.Parallel()

	c := NewPatternCache(8)
	patterns := []string{"/a", "/b/:id", "/c/{x}", "/d"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := c.Get(patterns[(i+j)%len(patterns)])
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, len(patterns), c.Len())
}
