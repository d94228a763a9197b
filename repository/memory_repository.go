package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/inventory-reservation-service/apperrors"
	"github.com/yashrajoria/inventory-reservation-service/models"
)

// MemoryInventoryRepository keeps the ledger in process memory. A single
// mutex serialises every operation, which gives the same all-or-nothing
// behaviour as the Postgres transactions for a single instance.
type MemoryInventoryRepository struct {
	mu           sync.Mutex
	stock        map[string]*models.StockRecord
	reservations map[uuid.UUID]*models.Reservation
	snapshots    map[uuid.UUID]*models.InventorySnapshot
}

// NewMemoryInventoryRepository creates an empty in-memory store.
func NewMemoryInventoryRepository() *MemoryInventoryRepository {
	return &MemoryInventoryRepository{
		stock:        make(map[string]*models.StockRecord),
		reservations: make(map[uuid.UUID]*models.Reservation),
		snapshots:    make(map[uuid.UUID]*models.InventorySnapshot),
	}
}

// Seed creates or overwrites a stock record. Used by tests and local dev.
func (r *MemoryInventoryRepository) Seed(productID string, total int, threshold *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.stock[productID] = &models.StockRecord{
		ID:                uuid.New(),
		ProductID:         productID,
		TotalQuantity:     total,
		LowStockThreshold: threshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (r *MemoryInventoryRepository) GetStock(ctx context.Context, productID string) (*models.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.stock[productID]
	if !ok {
		return nil, apperrors.NotFound("stock record for product %s not found", productID)
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryInventoryRepository) StockLevel(ctx context.Context, productID string) (*models.StockRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.stock[productID]
	if !ok {
		return nil, 0, apperrors.NotFound("stock record for product %s not found", productID)
	}
	cp := *rec
	return &cp, r.reservedLocked(productID), nil
}

func (r *MemoryInventoryRepository) Reserve(ctx context.Context, res *models.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.stock[res.ProductID]
	if !ok {
		return apperrors.NotFound("stock record for product %s not found", res.ProductID)
	}
	available := rec.TotalQuantity - r.reservedLocked(res.ProductID)
	if res.Quantity > available {
		return apperrors.InsufficientStock(res.ProductID, res.Quantity, max(available, 0))
	}

	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	res.UpdatedAt = res.CreatedAt
	res.Status = models.ReservationActive
	cp := *res
	r.reservations[res.ID] = &cp
	return nil
}

func (r *MemoryInventoryRepository) Confirm(ctx context.Context, id uuid.UUID, now time.Time) (*models.Reservation, *models.LedgerChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok {
		return nil, nil, apperrors.NotFound("reservation %s not found", id)
	}
	if res.Status != models.ReservationActive {
		return nil, nil, apperrors.InvalidTransition(id.String(), string(res.Status), string(models.ReservationConfirmed))
	}
	rec, ok := r.stock[res.ProductID]
	if !ok {
		return nil, nil, apperrors.NotFound("stock record for product %s not found", res.ProductID)
	}
	if rec.TotalQuantity < res.Quantity {
		return nil, nil, apperrors.InsufficientStock(res.ProductID, res.Quantity, rec.TotalQuantity)
	}

	prev := rec.TotalQuantity
	rec.TotalQuantity -= res.Quantity
	rec.UpdatedAt = now
	res.Status = models.ReservationConfirmed
	res.UpdatedAt = now

	cp := *res
	return &cp, &models.LedgerChange{
		ProductID:     res.ProductID,
		PreviousTotal: prev,
		NewTotal:      rec.TotalQuantity,
		Reserved:      r.reservedLocked(res.ProductID),
	}, nil
}

func (r *MemoryInventoryRepository) Cancel(ctx context.Context, id uuid.UUID, now time.Time) (*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok {
		return nil, apperrors.NotFound("reservation %s not found", id)
	}
	if res.Status != models.ReservationActive {
		return nil, apperrors.InvalidTransition(id.String(), string(res.Status), string(models.ReservationCancelled))
	}
	res.Status = models.ReservationCancelled
	res.UpdatedAt = now
	cp := *res
	return &cp, nil
}

func (r *MemoryInventoryRepository) GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, apperrors.NotFound("reservation %s not found", id)
	}
	cp := *res
	return &cp, nil
}

func (r *MemoryInventoryRepository) ListReservationsByHolder(ctx context.Context, holder string) ([]models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Reservation
	for _, res := range r.reservations {
		if res.Holder == holder {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryInventoryRepository) ExpireDue(ctx context.Context, now time.Time, limit int) ([]models.ExpiredReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*models.Reservation
	for _, res := range r.reservations {
		if res.Status == models.ReservationActive && !res.ExpiresAt.After(now) {
			due = append(due, res)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]models.ExpiredReservation, 0, len(due))
	for _, res := range due {
		res.Status = models.ReservationExpired
		res.UpdatedAt = now
		out = append(out, models.ExpiredReservation{ID: res.ID, ProductID: res.ProductID, Quantity: res.Quantity})
	}
	return out, nil
}

func (r *MemoryInventoryRepository) AdjustStock(ctx context.Context, adj models.StockAdjustment) (*models.LedgerChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.stock[adj.ProductID]
	if !ok {
		if adj.Type == models.AdjustDecrement {
			return nil, apperrors.NotFound("stock record for product %s not found", adj.ProductID)
		}
		now := time.Now()
		rec = &models.StockRecord{ID: uuid.New(), ProductID: adj.ProductID, CreatedAt: now, UpdatedAt: now}
	}

	reserved := r.reservedLocked(adj.ProductID)
	newTotal, err := applyAdjustment(rec.TotalQuantity, reserved, adj)
	if err != nil {
		return nil, err
	}

	prev := rec.TotalQuantity
	rec.TotalQuantity = newTotal
	rec.UpdatedAt = time.Now()
	if adj.LocationID != nil {
		loc := *adj.LocationID
		rec.LocationID = &loc
	}
	r.stock[adj.ProductID] = rec

	return &models.LedgerChange{ProductID: adj.ProductID, PreviousTotal: prev, NewTotal: newTotal, Reserved: reserved}, nil
}

func (r *MemoryInventoryRepository) SetThreshold(ctx context.Context, productID string, threshold int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.stock[productID]
	if !ok {
		return apperrors.NotFound("stock record for product %s not found", productID)
	}
	if threshold < 0 {
		return apperrors.Validation("threshold must not be negative")
	}
	t := threshold
	rec.LowStockThreshold = &t
	return nil
}

func (r *MemoryInventoryRepository) Snapshot(ctx context.Context) ([]models.SnapshotItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]models.SnapshotItem, 0, len(r.stock))
	for _, rec := range r.stock {
		reserved := r.reservedLocked(rec.ProductID)
		items = append(items, models.SnapshotItem{
			ProductID:     rec.ProductID,
			LocationID:    rec.LocationID,
			TotalQuantity: rec.TotalQuantity,
			Reserved:      reserved,
			Available:     rec.TotalQuantity - reserved,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

func (r *MemoryInventoryRepository) SaveSnapshot(ctx context.Context, snap *models.InventorySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	cp := *snap
	cp.Items = append([]models.SnapshotItem(nil), snap.Items...)
	r.snapshots[snap.ID] = &cp
	return nil
}

func (r *MemoryInventoryRepository) SetSnapshotExport(ctx context.Context, id uuid.UUID, location string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[id]
	if !ok {
		return apperrors.NotFound("snapshot %s not found", id)
	}
	snap.ExportLocation = location
	return nil
}

func (r *MemoryInventoryRepository) GetSnapshot(ctx context.Context, id uuid.UUID) (*models.InventorySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[id]
	if !ok {
		return nil, apperrors.NotFound("snapshot %s not found", id)
	}
	cp := *snap
	return &cp, nil
}

func (r *MemoryInventoryRepository) reservedLocked(productID string) int {
	sum := 0
	for _, res := range r.reservations {
		if res.ProductID == productID && res.Status == models.ReservationActive {
			sum += res.Quantity
		}
	}
	return sum
}
