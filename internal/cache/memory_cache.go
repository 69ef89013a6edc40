package cache

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process Cache for single-instance deployments and
// tests. Values are stored as JSON so callers see the same copy semantics as
// with Redis.
type MemoryCache struct {
	c *gocache.Cache
}

func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{c: gocache.New(defaultTTL, 2*defaultTTL)}
}

func (m *MemoryCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(v.([]byte), dst); err != nil {
		m.c.Delete(key)
		return false, nil
	}
	return true, nil
}

func (m *MemoryCache) SetJSON(_ context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	m.c.Set(key, b, ttl)
	return nil
}

func (m *MemoryCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}
