package cache

import (
	"sync"
	"time"
)

type item struct {
	value      interface{}
	expiration int64
}

// MemoryCache is a TTL key/value cache used for market data snapshots
type MemoryCache struct {
	items  sync.Map
	stopCh chan struct{}
	once   sync.Once
}

// NewMemoryCache creates a cache with a background sweep of expired entries
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{stopCh: make(chan struct{})}
	go c.sweep()
	return c
}

// Set stores a value; ttl == 0 means no expiry
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	var expiration int64
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}
	c.items.Store(key, &item{value: value, expiration: expiration})
}

// Get returns the value and whether a live entry exists
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	v, ok := c.items.Load(key)
	if !ok {
		return nil, false
	}
	it := v.(*item)
	if it.expiration > 0 && time.Now().UnixNano() > it.expiration {
		c.items.Delete(key)
		return nil, false
	}
	return it.value, true
}

// Delete removes an entry
func (c *MemoryCache) Delete(key string) {
	c.items.Delete(key)
}

// Keys returns the keys of all live entries
func (c *MemoryCache) Keys() []string {
	now := time.Now().UnixNano()
	var keys []string
	c.items.Range(func(key, value interface{}) bool {
		it := value.(*item)
		if it.expiration == 0 || now <= it.expiration {
			keys = append(keys, key.(string))
		}
		return true
	})
	return keys
}

// Close stops the background sweep
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stopCh) })
}

func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := time.Now().UnixNano()
			c.items.Range(func(key, value interface{}) bool {
				it := value.(*item)
				if it.expiration > 0 && now > it.expiration {
					c.items.Delete(key)
				}
				return true
			})
		}
	}
}
