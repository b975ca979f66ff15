package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	c.Set("book:binance:BTCUSDT", 42, time.Minute)

	v, ok := c.Get("book:binance:BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = c.Get("book:okx:BTCUSDT")
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	c.Set("stale", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("stale")
	assert.False(t, ok)

	// ttl == 0 never expires
	c.Set("pinned", 2, 0)
	v, ok := c.Get("pinned")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestMemoryCache_Keys(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Delete("a")

	keys := c.Keys()
	assert.Equal(t, []string{"b"}, keys)
}
