package routing

import (
	"context"

	"incidentbridge/src/pagerduty/types"
	common "incidentbridge/src/shared"
)

// Resolver answers service key lookups from a cached routing table.
type Resolver struct {
	cache *Cache
}

func NewResolver(cache *Cache) *Resolver {
	return &Resolver{cache: cache}
}

// Table returns the whole routing table, including the API token.
func (r *Resolver) Table(ctx context.Context) (types.RoutingTable, error) {
	return common.WithTracedOperation(ctx, "routing-table", func(tracedCtx context.Context) (types.RoutingTable, error) {
		common.WithAnnotation(tracedCtx, "routing_source", r.cache.SourceName())
		return r.cache.Get(tracedCtx)
	})
}

func (r *Resolver) Resolve(ctx context.Context, serviceKey string) (types.ServiceRoutingConfig, error) {
	table, err := r.Table(ctx)
	if err != nil {
		return types.ServiceRoutingConfig{}, err
	}
	return table.Lookup(serviceKey)
}
