package cache

import "time"

// LayeredCache checks memory first, then disk, promoting disk hits into
// memory. Writes go to both layers.
type LayeredCache struct {
	memory Cache
	disk   Cache
}

// NewLayered builds the standard two-layer cache. An empty diskDir
// disables the disk layer.
func NewLayered(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	lc := &LayeredCache{
		memory: NewMemoryCache(memoryTTL, 10*time.Minute),
	}
	if diskDir != "" {
		lc.disk = NewDiskCache(diskDir, diskTTL)
	}
	return lc
}

func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}
	if c.disk != nil {
		if val, found := c.disk.Get(key); found {
			c.memory.Set(key, val, 0) // promote with default TTL
			return val, true
		}
	}
	return nil, false
}

func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	if c.disk != nil {
		return c.disk.Set(key, value, ttl)
	}
	return nil
}

func (c *LayeredCache) Delete(key string) error {
	_ = c.memory.Delete(key)
	if c.disk != nil {
		return c.disk.Delete(key)
	}
	return nil
}

func (c *LayeredCache) Clear() error {
	_ = c.memory.Clear()
	if c.disk != nil {
		return c.disk.Clear()
	}
	return nil
}
