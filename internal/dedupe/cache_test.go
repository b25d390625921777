package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestCacheSeenDuplicate(t *testing.T) {
	cache := NewCache(10, time.Minute)
	require.False(t, cache.IsSeen("alpha"))
	cache.MarkSeen("alpha")
	require.True(t, cache.IsSeen("alpha"))
}

func TestCacheTTLExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 11, 8, 0, 0, 0, 0, time.UTC)}
	cache := newCache(10, time.Minute, clock.now)

	cache.MarkSeen("beta")
	clock.advance(59 * time.Second)
	require.True(t, cache.IsSeen("beta"))

	clock.advance(2 * time.Second)
	require.False(t, cache.IsSeen("beta"))

	cache.MarkSeen("gamma")
	require.Equal(t, 1, cache.Len(), "expired entries are compacted on the next mark")
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := NewCache(1, time.Minute)
	cache.MarkSeen("first")
	cache.MarkSeen("second")

	require.False(t, cache.IsSeen("first"))
	require.True(t, cache.IsSeen("second"))
	require.Equal(t, 1, cache.Len())
}

func TestCacheRemarkKeepsNewestEntry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 11, 8, 0, 0, 0, 0, time.UTC)}
	cache := newCache(2, time.Minute, clock.now)

	cache.MarkSeen("a")
	clock.advance(time.Second)
	cache.MarkSeen("b")
	clock.advance(time.Second)
	cache.MarkSeen("a")
	clock.advance(time.Second)
	cache.MarkSeen("c")

	require.True(t, cache.IsSeen("a"))
	require.True(t, cache.IsSeen("c"))
	require.False(t, cache.IsSeen("b"))
}
