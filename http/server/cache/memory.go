package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is a size bounded in-memory cache whose entries expire after a fixed TTL.
type Memory struct {
	cache *expirable.LRU[string, []byte]
}

func NewMemory(maxSize int, ttl time.Duration) *Memory {
	return &Memory{
		cache: expirable.NewLRU[string, []byte](maxSize, nil, ttl),
	}
}

// Get returns the content for key, or false if it is missing or expired.
func (m *Memory) Get(key string) ([]byte, bool) {
	return m.cache.Get(key)
}

func (m *Memory) Set(key string, content []byte) {
	m.cache.Add(key, content)
}

// Purge drops every entry.
func (m *Memory) Purge() {
	m.cache.Purge()
}
