package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStable(t *testing.T) {
	a := Key("http", "https://doi.org/10.1/x", "text/html")
	b := Key("http", "https://doi.org/10.1/x", "text/html")
	c := Key("http", "https://doi.org/10.1/x", "application/ld+json")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "fairmeter:v1:http:")
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	require.NoError(t, c.Set("k", []byte("v"), 0))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, 1, c.Len())

	got[0] = 'x'
	again, _ := c.Get("k")
	assert.Equal(t, []byte("v"), again, "stored value must not alias caller slices")

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestDiskCache(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := Key("refdata", "licenses.json")

	require.NoError(t, c.Set(key, []byte(`{"a":1}`), 0))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(got))

	require.NoError(t, c.Delete(key))
	require.NoError(t, c.Delete(key))
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestDiskCacheExpiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set("k:abcdef", []byte("v"), time.Minute))
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("k:abcdef")
	assert.False(t, ok)
}

func TestDiskCacheNoExpiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set("k:abcdef", []byte("v"), -1))
	now = now.Add(24 * 365 * time.Hour)

	_, ok := c.Get("k:abcdef")
	assert.True(t, ok)
}

func TestLayeredCachePromotes(t *testing.T) {
	fast := NewMemoryCache(time.Minute, time.Minute)
	slow := NewDiskCache(t.TempDir(), time.Hour)
	c := NewLayeredCache(fast, slow)

	require.NoError(t, slow.Set("k:0123", []byte("v"), 0))
	got, ok := c.Get("k:0123")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	_, ok = fast.Get("k:0123")
	assert.True(t, ok, "slow hit should be promoted")
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	require.NoError(t, c.Set("k", []byte("v"), 0))
	_, ok := c.Get("k")
	assert.False(t, ok)
}
