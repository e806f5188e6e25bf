package generation

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cache maps exact prompt text to generated code. Entries expire after a
// fixed TTL regardless of access, the entry count is bounded with LRU
// eviction, and a background sweep removes expired entries even when no
// inserts happen.
type cache struct {
	lru *expirable.LRU[string, string]
}

func newCache(size int, ttl time.Duration) *cache {
	return &cache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *cache) get(prompt string) (string, bool) {
	return c.lru.Get(prompt)
}

func (c *cache) put(prompt, code string) {
	c.lru.Add(prompt, code)
}

func (c *cache) len() int {
	return c.lru.Len()
}

func (c *cache) purge() {
	c.lru.Purge()
}
