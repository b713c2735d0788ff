package routing

import (
	"context"
	"sync"

	"incidentbridge/src/pagerduty/types"
)

// Cache holds the routing table for the life of the process. The first
// successful load is kept until Reset; failed loads are not remembered, so
// the next caller tries again.
type Cache struct {
	source Source

	mu    sync.Mutex
	table *types.RoutingTable
	loads int
}

func NewCache(source Source) *Cache {
	return &Cache{source: source}
}

// Get returns the cached table, loading it on first use. Concurrent callers
// wait on the same load.
func (c *Cache) Get(ctx context.Context) (types.RoutingTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table != nil {
		return *c.table, nil
	}

	data, err := c.source.Fetch(ctx)
	c.loads++
	if err != nil {
		return types.RoutingTable{}, err
	}

	table, err := ParseRoutingTable(data)
	if err != nil {
		return types.RoutingTable{}, err
	}

	c.table = &table
	return table, nil
}

// Reset drops the cached table so the next Get reloads it.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = nil
}

// Loads reports how many times the source has been read.
func (c *Cache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func (c *Cache) SourceName() string {
	return c.source.Name()
}
