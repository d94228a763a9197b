package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/yashrajoria/inventory-reservation-service/models"
)

const DefaultMemoryCacheSize = 10000

type memoryEntry struct {
	gen    Generation
	status models.StockStatus
}

// MemoryStockCache is a per-instance cache. Other instances learn about
// changes through the event broadcaster, which calls Invalidate here.
type MemoryStockCache struct {
	mu      sync.Mutex
	entries *expirable.LRU[string, memoryEntry]
	gens    map[string]Generation
}

func NewMemoryStockCache(size int, ttl time.Duration) *MemoryStockCache {
	if size <= 0 {
		size = DefaultMemoryCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &MemoryStockCache{
		entries: expirable.NewLRU[string, memoryEntry](size, nil, ttl),
		gens:    make(map[string]Generation),
	}
}

func (c *MemoryStockCache) Shared() bool { return false }

func (c *MemoryStockCache) Lookup(ctx context.Context, productID string) (*models.StockStatus, Generation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.gens[productID]
	entry, ok := c.entries.Get(productID)
	if !ok || entry.gen != gen {
		return nil, gen, false
	}
	status := entry.status
	return &status, gen, true
}

func (c *MemoryStockCache) Store(ctx context.Context, gen Generation, status *models.StockStatus) {
	if gen < 0 || status == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[status.ProductID] != gen {
		return
	}
	c.entries.Add(status.ProductID, memoryEntry{gen: gen, status: *status})
}

func (c *MemoryStockCache) Invalidate(ctx context.Context, productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[productID]++
	c.entries.Remove(productID)
}
