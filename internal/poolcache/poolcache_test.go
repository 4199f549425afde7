package poolcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetMissThenPutThenHit(t *testing.T) {
	c := New[string, int](2, time.Minute)
	_, ok := c.Get("a")
	require.False(t, ok)

	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestEvictsLeastRecentlyAccessedAtCapacity(t *testing.T) {
	c := New[string, int](2, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)
	// touch "a" so it's more recently used than "b"
	_, _ = c.Get("a")
	c.Put("c", 3) // should evict "b", the least recently touched

	_, ok := c.Get("b")
	require.False(t, ok)
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	c := New[string, int](10, time.Millisecond)
	c.Put("a", 1)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestFlush(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Put("a", 1)
	c.Flush()
	require.Zero(t, c.Len())
}
