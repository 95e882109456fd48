package cache

import "time"

// LayeredCache reads through a fast layer to a slow layer and writes to both
type LayeredCache struct {
	fast Cache
	slow Cache
}

// NewLayeredCache combines two caches
func NewLayeredCache(fast, slow Cache) *LayeredCache {
	return &LayeredCache{fast: fast, slow: slow}
}

// NewMemoryDiskCache builds the default memory-over-disk cache
func NewMemoryDiskCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return NewLayeredCache(NewMemoryCache(memoryTTL, 10*time.Minute), NewDiskCache(diskDir, diskTTL))
}

// Get checks the fast layer first and promotes slow-layer hits
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.fast.Get(key); found {
		return val, true
	}

	if val, found := c.slow.Get(key); found {
		_ = c.fast.Set(key, val, 0)
		return val, true
	}

	return nil, false
}

// Set stores the value in both layers
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.fast.Set(key, value, ttl); err != nil {
		return err
	}
	return c.slow.Set(key, value, ttl)
}

// Delete removes the value from both layers
func (c *LayeredCache) Delete(key string) error {
	_ = c.fast.Delete(key)
	return c.slow.Delete(key)
}

// Clear empties both layers
func (c *LayeredCache) Clear() error {
	_ = c.fast.Clear()
	return c.slow.Clear()
}
