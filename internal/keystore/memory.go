package keystore

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory implements Store in-process for development and tests. go-cache
// handles per-entry expiry; the outer RWMutex makes SetMany isolated from
// concurrent readers, which go-cache alone does not guarantee across keys.
type Memory struct {
	mu sync.RWMutex
	c  *gocache.Cache
}

func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.c.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return v.([]byte), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Set(key, value, normalizeTTL(ttl))
	return nil
}

func (m *Memory) SetMany(ctx context.Context, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		m.c.Set(op.Key, op.Value, normalizeTTL(op.TTL))
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// go-cache treats 0 as "use default"; we want 0 to mean "never expire".
func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}
