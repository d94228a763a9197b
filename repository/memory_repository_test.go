package repository_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/inventory-reservation-service/apperrors"
	"github.com/yashrajoria/inventory-reservation-service/models"
	"github.com/yashrajoria/inventory-reservation-service/repository"
)

func newReservation(productID string, qty int, expiresIn time.Duration) *models.Reservation {
	now := time.Now()
	return &models.Reservation{
		ProductID: productID,
		Quantity:  qty,
		Holder:    "cart-1",
		CreatedAt: now,
		ExpiresAt: now.Add(expiresIn),
	}
}

func TestMemory_ConcurrentReservesNeverOversell(t *testing.T) {
	repo := repository.NewMemoryInventoryRepository()
	repo.Seed("sku-1", 50, nil)

	var wg sync.WaitGroup
	var granted int64
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Reserve(context.Background(), newReservation("sku-1", 1, time.Minute))
			if err == nil {
				atomic.AddInt64(&granted, 1)
				return
			}
			assert.True(t, errors.Is(err, apperrors.ErrInsufficientStock))
		}()
	}
	wg.Wait()

	rec, reserved, err := repo.StockLevel(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), granted)
	assert.Equal(t, 50, reserved)
	assert.LessOrEqual(t, reserved, rec.TotalQuantity)
}

func TestMemory_ConfirmOnlyOnce(t *testing.T) {
	repo := repository.NewMemoryInventoryRepository()
	repo.Seed("sku-1", 10, nil)

	res := newReservation("sku-1", 4, time.Minute)
	require.NoError(t, repo.Reserve(context.Background(), res))

	var wg sync.WaitGroup
	var ok int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := repo.Confirm(context.Background(), res.ID, time.Now()); err == nil {
				atomic.AddInt64(&ok, 1)
			}
		}()
	}
	wg.Wait()

	rec, _ := repo.GetStock(context.Background(), "sku-1")
	assert.Equal(t, int64(1), ok)
	assert.Equal(t, 6, rec.TotalQuantity)
}

func TestMemory_CancelReleasesWithoutLedgerChange(t *testing.T) {
	repo := repository.NewMemoryInventoryRepository()
	repo.Seed("sku-1", 10, nil)

	res := newReservation("sku-1", 3, time.Minute)
	require.NoError(t, repo.Reserve(context.Background(), res))

	cancelled, err := repo.Cancel(context.Background(), res.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCancelled, cancelled.Status)

	rec, reserved, _ := repo.StockLevel(context.Background(), "sku-1")
	assert.Equal(t, 10, rec.TotalQuantity)
	assert.Equal(t, 0, reserved)

	_, err = repo.Cancel(context.Background(), res.ID, time.Now())
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
}

func TestMemory_ExpireDueIsIdempotent(t *testing.T) {
	repo := repository.NewMemoryInventoryRepository()
	repo.Seed("sku-1", 10, nil)

	stale := newReservation("sku-1", 2, -time.Second)
	fresh := newReservation("sku-1", 3, time.Hour)
	require.NoError(t, repo.Reserve(context.Background(), stale))
	require.NoError(t, repo.Reserve(context.Background(), fresh))

	expired, err := repo.ExpireDue(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)

	again, err := repo.ExpireDue(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	_, _, err = repo.Confirm(context.Background(), stale.ID, time.Now())
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
}

func TestMemory_ExpireDueRespectsLimit(t *testing.T) {
	repo := repository.NewMemoryInventoryRepository()
	repo.Seed("sku-1", 10, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Reserve(context.Background(), newReservation("sku-1", 1, -time.Minute)))
	}

	first, _ := repo.ExpireDue(context.Background(), time.Now(), 3)
	second, _ := repo.ExpireDue(context.Background(), time.Now(), 3)
	assert.Len(t, first, 3)
	assert.Len(t, second, 2)
}

func TestMemory_AdjustStock(t *testing.T) {
	repo := repository.NewMemoryInventoryRepository()
	ctx := context.Background()

	change, err := repo.AdjustStock(ctx, models.StockAdjustment{ProductID: "new", Quantity: 7, Type: models.AdjustIncrement})
	require.NoError(t, err)
	assert.Equal(t, 0, change.PreviousTotal)
	assert.Equal(t, 7, change.NewTotal)

	_, err = repo.AdjustStock(ctx, models.StockAdjustment{ProductID: "missing", Quantity: 1, Type: models.AdjustDecrement})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, repo.Reserve(ctx, newReservation("new", 5, time.Minute)))

	_, err = repo.AdjustStock(ctx, models.StockAdjustment{ProductID: "new", Quantity: 4, Type: models.AdjustSet})
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientStock))

	change, err = repo.AdjustStock(ctx, models.StockAdjustment{ProductID: "new", Quantity: 2, Type: models.AdjustDecrement})
	require.NoError(t, err)
	assert.Equal(t, 5, change.NewTotal)
	assert.Equal(t, 5, change.Reserved)
}

func TestMemory_SnapshotRoundTrip(t *testing.T) {
	repo := repository.NewMemoryInventoryRepository()
	ctx := context.Background()
	repo.Seed("b", 4, nil)
	repo.Seed("a", 10, nil)
	require.NoError(t, repo.Reserve(ctx, newReservation("a", 3, time.Minute)))

	items, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ProductID)
	assert.Equal(t, 7, items[0].Available)

	snap := &models.InventorySnapshot{Reason: "audit", Items: items}
	snap.Summarize()
	require.NoError(t, repo.SaveSnapshot(ctx, snap))
	require.NoError(t, repo.SetSnapshotExport(ctx, snap.ID, "s3://bucket/key.json"))

	got, err := repo.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, got.TotalUnits)
	assert.Equal(t, 3, got.ReservedUnits)
	assert.Equal(t, "s3://bucket/key.json", got.ExportLocation)
}
