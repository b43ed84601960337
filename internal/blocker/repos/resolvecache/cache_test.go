package resolvecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)

	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	c.Set(Entry{
		Site:       "example.com",
		Addrs:      []string{"93.184.216.34"},
		ResolvedAt: now,
		ExpiresAt:  now.Add(5 * time.Minute),
	})

	e, ok := c.Get("example.com", now)
	require.True(t, ok)
	assert.Equal(t, []string{"93.184.216.34"}, e.Addrs)

	_, ok = c.Get("missing.com", now)
	assert.False(t, ok)
}

func TestExpiredEntryIsEvictedOnAccess(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)

	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	c.Set(Entry{Site: "example.com", Addrs: []string{"1.2.3.4"}, ResolvedAt: now, ExpiresAt: now.Add(time.Minute)})

	_, ok := c.Get("example.com", now.Add(59*time.Second))
	assert.True(t, ok, "still live just before expiry")

	_, ok = c.Get("example.com", now.Add(time.Minute))
	assert.False(t, ok, "expired exactly at the deadline")
	assert.Equal(t, 0, c.Len(), "expired entry evicted on access")
}

func TestSetRefreshesEntry(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)

	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	c.Set(Entry{Site: "example.com", Addrs: []string{"1.1.1.1"}, ExpiresAt: now.Add(time.Minute)})
	c.Set(Entry{Site: "example.com", Addrs: []string{"2.2.2.2"}, ExpiresAt: now.Add(time.Hour)})

	e, ok := c.Get("example.com", now.Add(30*time.Minute))
	require.True(t, ok, "refreshed TTL keeps the entry live")
	assert.Equal(t, []string{"2.2.2.2"}, e.Addrs)
	assert.Equal(t, 1, c.Len())
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	c.Set(Entry{Site: "a.com", ExpiresAt: exp})
	c.Set(Entry{Site: "b.com", ExpiresAt: exp})

	// touch a.com so b.com becomes the eviction candidate
	_, ok := c.Get("a.com", now)
	require.True(t, ok)

	c.Set(Entry{Site: "c.com", ExpiresAt: exp})

	_, ok = c.Get("b.com", now)
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = c.Get("a.com", now)
	assert.True(t, ok)
	_, ok = c.Get("c.com", now)
	assert.True(t, ok)
}

func TestRejectsNonPositiveSize(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}
