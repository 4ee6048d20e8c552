// Package cache provides chart-result cache adapters.
// Clean Architecture: Adapter implementing ports.ChartCache.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/0xcro3dile/datachat-go/internal/domain/ports"
)

// Defaults for chart-result retention.
const (
	DefaultTTL  = 10 * time.Minute
	DefaultSize = 512
)

// ChartCache is a size-bounded LRU whose entries expire after a fixed TTL
// measured from insertion. Safe for concurrent use.
type ChartCache struct {
	lru *expirable.LRU[string, ports.ChartResult]
}

// NewChartCache creates a cache. Non-positive arguments select the defaults.
func NewChartCache(size int, ttl time.Duration) *ChartCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ChartCache{lru: expirable.NewLRU[string, ports.ChartResult](size, nil, ttl)}
}

// Get returns the cached result for key.
func (c *ChartCache) Get(key string) (ports.ChartResult, bool) {
	return c.lru.Get(key)
}

// Set stores result under key.
func (c *ChartCache) Set(key string, result ports.ChartResult) {
	c.lru.Add(key, result)
}

// Len returns the number of cached entries, expired ones included until swept.
func (c *ChartCache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *ChartCache) Purge() {
	c.lru.Purge()
}
