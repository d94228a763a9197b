package services

import (
	"context"

	"github.com/yashrajoria/inventory-reservation-service/cache"
	"github.com/yashrajoria/inventory-reservation-service/events"
	"go.uber.org/zap"
)

// EventRelay applies events broadcast by other instances to this one.
type EventRelay struct {
	cache  cache.StockCache
	bus    *events.Bus
	logger *zap.Logger
}

func NewEventRelay(c cache.StockCache, bus *events.Bus, logger *zap.Logger) *EventRelay {
	return &EventRelay{cache: c, bus: bus, logger: logger}
}

// Handle drops the local cache entry when the cache is per-instance, then
// hands the event to local subscribers.
func (r *EventRelay) Handle(evt events.Event) {
	if !r.cache.Shared() && evt.ProductID != "" {
		r.cache.Invalidate(context.Background(), evt.ProductID)
	}
	r.bus.Deliver(evt)
	r.logger.Debug("Relayed remote inventory event",
		zap.String("event_type", string(evt.Type)),
		zap.String("product_id", evt.ProductID),
		zap.String("origin", evt.Origin),
	)
}
