package cache

import (
	"context"

	"github.com/yashrajoria/inventory-reservation-service/models"
)

// Generation identifies the version of a product's cache slot observed by a
// lookup. A negative generation means the backend could not be read and the
// caller must not write back.
type Generation int64

// StockCache is a read-through cache of derived stock status.
//
// Every mutation bumps the product's generation and deletes the entry, and
// Store only writes under the generation seen by the Lookup that missed. A
// status computed before a concurrent mutation therefore never becomes
// visible after it.
type StockCache interface {
	Lookup(ctx context.Context, productID string) (*models.StockStatus, Generation, bool)
	Store(ctx context.Context, gen Generation, status *models.StockStatus)
	Invalidate(ctx context.Context, productID string)
	// Shared reports whether all instances see the same entries.
	Shared() bool
}
