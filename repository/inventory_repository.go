package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/inventory-reservation-service/apperrors"
	"github.com/yashrajoria/inventory-reservation-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRepository is the stock ledger plus the reservation store.
// Every mutating method is atomic: either all of its writes commit or none do.
type InventoryRepository interface {
	GetStock(ctx context.Context, productID string) (*models.StockRecord, error)
	// StockLevel returns the ledger row and the current sum of ACTIVE
	// reservations for the product, read consistently.
	StockLevel(ctx context.Context, productID string) (*models.StockRecord, int, error)

	Reserve(ctx context.Context, res *models.Reservation) error
	Confirm(ctx context.Context, id uuid.UUID, now time.Time) (*models.Reservation, *models.LedgerChange, error)
	Cancel(ctx context.Context, id uuid.UUID, now time.Time) (*models.Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	ListReservationsByHolder(ctx context.Context, holder string) ([]models.Reservation, error)
	// ExpireDue marks up to limit ACTIVE reservations with expires_at <= now
	// as EXPIRED and returns the rows it changed.
	ExpireDue(ctx context.Context, now time.Time, limit int) ([]models.ExpiredReservation, error)

	AdjustStock(ctx context.Context, adj models.StockAdjustment) (*models.LedgerChange, error)
	SetThreshold(ctx context.Context, productID string, threshold int) error

	Snapshot(ctx context.Context) ([]models.SnapshotItem, error)
	SaveSnapshot(ctx context.Context, snap *models.InventorySnapshot) error
	SetSnapshotExport(ctx context.Context, id uuid.UUID, location string) error
	GetSnapshot(ctx context.Context, id uuid.UUID) (*models.InventorySnapshot, error)
}

// PostgresInventoryRepository implements InventoryRepository using GORM.
type PostgresInventoryRepository struct {
	db *gorm.DB
}

// NewPostgresInventoryRepository creates a new PostgresInventoryRepository.
func NewPostgresInventoryRepository(db *gorm.DB) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{db: db}
}

func (r *PostgresInventoryRepository) GetStock(ctx context.Context, productID string) (*models.StockRecord, error) {
	var rec models.StockRecord
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&rec).Error; err != nil {
		return nil, translate(err, "stock record for product %s not found", productID)
	}
	return &rec, nil
}

type stockLevelRow struct {
	models.StockRecord
	Reserved int
}

func (r *PostgresInventoryRepository) StockLevel(ctx context.Context, productID string) (*models.StockRecord, int, error) {
	var row stockLevelRow
	res := r.db.WithContext(ctx).Raw(`
		SELECT s.*, COALESCE((
			SELECT SUM(rv.quantity) FROM reservations rv
			WHERE rv.product_id = s.product_id AND rv.status = ?
		), 0) AS reserved
		FROM stock_records s
		WHERE s.product_id = ?`, models.ReservationActive, productID).Scan(&row)
	if res.Error != nil {
		return nil, 0, unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, 0, apperrors.NotFound("stock record for product %s not found", productID)
	}
	return &row.StockRecord, row.Reserved, nil
}

func (r *PostgresInventoryRepository) Reserve(ctx context.Context, res *models.Reservation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stock, err := lockStock(tx, res.ProductID)
		if err != nil {
			return err
		}

		reserved, err := activeReserved(tx, res.ProductID)
		if err != nil {
			return err
		}

		available := stock.TotalQuantity - reserved
		if res.Quantity > available {
			return apperrors.InsufficientStock(res.ProductID, res.Quantity, max(available, 0))
		}

		res.Status = models.ReservationActive
		if err := tx.Create(res).Error; err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		return nil
	})
}

func (r *PostgresInventoryRepository) Confirm(ctx context.Context, id uuid.UUID, now time.Time) (*models.Reservation, *models.LedgerChange, error) {
	var res models.Reservation
	var change *models.LedgerChange

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&res, "id = ?", id).Error; err != nil {
			return translate(err, "reservation %s not found", id)
		}
		if res.Status != models.ReservationActive {
			return apperrors.InvalidTransition(id.String(), string(res.Status), string(models.ReservationConfirmed))
		}

		stock, err := lockStock(tx, res.ProductID)
		if err != nil {
			return err
		}
		if stock.TotalQuantity < res.Quantity {
			return apperrors.InsufficientStock(res.ProductID, res.Quantity, stock.TotalQuantity)
		}

		newTotal := stock.TotalQuantity - res.Quantity
		if err := tx.Model(&models.StockRecord{}).
			Where("id = ?", stock.ID).
			Updates(map[string]interface{}{"total_quantity": newTotal, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}

		if err := tx.Model(&models.Reservation{}).
			Where("id = ?", res.ID).
			Updates(map[string]interface{}{"status": models.ReservationConfirmed, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("confirm reservation: %w", err)
		}
		res.Status = models.ReservationConfirmed
		res.UpdatedAt = now

		reserved, err := activeReserved(tx, res.ProductID)
		if err != nil {
			return err
		}
		change = &models.LedgerChange{
			ProductID:     res.ProductID,
			PreviousTotal: stock.TotalQuantity,
			NewTotal:      newTotal,
			Reserved:      reserved,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &res, change, nil
}

func (r *PostgresInventoryRepository) Cancel(ctx context.Context, id uuid.UUID, now time.Time) (*models.Reservation, error) {
	var res models.Reservation
	result := r.db.WithContext(ctx).Raw(
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ? RETURNING *`,
		models.ReservationCancelled, now, id, models.ReservationActive,
	).Scan(&res)
	if result.Error != nil {
		return nil, unavailable(result.Error)
	}
	if result.RowsAffected > 0 {
		return &res, nil
	}

	existing, err := r.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, apperrors.InvalidTransition(id.String(), string(existing.Status), string(models.ReservationCancelled))
}

func (r *PostgresInventoryRepository) GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	if err := r.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		return nil, translate(err, "reservation %s not found", id)
	}
	return &res, nil
}

func (r *PostgresInventoryRepository) ListReservationsByHolder(ctx context.Context, holder string) ([]models.Reservation, error) {
	var out []models.Reservation
	if err := r.db.WithContext(ctx).
		Where("holder = ?", holder).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (r *PostgresInventoryRepository) ExpireDue(ctx context.Context, now time.Time, limit int) ([]models.ExpiredReservation, error) {
	var expired []models.ExpiredReservation
	err := r.db.WithContext(ctx).Raw(`
		UPDATE reservations SET status = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM reservations
			WHERE status = ? AND expires_at <= ?
			ORDER BY expires_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		) AND status = ?
		RETURNING id, product_id, quantity`,
		models.ReservationExpired, now,
		models.ReservationActive, now, limit,
		models.ReservationActive,
	).Scan(&expired).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return expired, nil
}

func (r *PostgresInventoryRepository) AdjustStock(ctx context.Context, adj models.StockAdjustment) (*models.LedgerChange, error) {
	var change *models.LedgerChange

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if adj.Type != models.AdjustDecrement {
			seed := models.StockRecord{ProductID: adj.ProductID, LocationID: adj.LocationID}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "product_id"}},
				DoNothing: true,
			}).Create(&seed).Error; err != nil {
				return fmt.Errorf("ensure stock record: %w", err)
			}
		}

		stock, err := lockStock(tx, adj.ProductID)
		if err != nil {
			return err
		}
		reserved, err := activeReserved(tx, adj.ProductID)
		if err != nil {
			return err
		}

		newTotal, err := applyAdjustment(stock.TotalQuantity, reserved, adj)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{"total_quantity": newTotal, "updated_at": time.Now()}
		if adj.LocationID != nil {
			updates["location_id"] = *adj.LocationID
		}
		if err := tx.Model(&models.StockRecord{}).Where("id = ?", stock.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update stock: %w", err)
		}

		change = &models.LedgerChange{
			ProductID:     adj.ProductID,
			PreviousTotal: stock.TotalQuantity,
			NewTotal:      newTotal,
			Reserved:      reserved,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (r *PostgresInventoryRepository) SetThreshold(ctx context.Context, productID string, threshold int) error {
	res := r.db.WithContext(ctx).Model(&models.StockRecord{}).
		Where("product_id = ?", productID).
		Update("low_stock_threshold", threshold)
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("stock record for product %s not found", productID)
	}
	return nil
}

type reservedSum struct {
	ProductID string
	Reserved  int
}

func (r *PostgresInventoryRepository) Snapshot(ctx context.Context) ([]models.SnapshotItem, error) {
	var items []models.SnapshotItem

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stocks []models.StockRecord
		if err := tx.Order("product_id").Find(&stocks).Error; err != nil {
			return fmt.Errorf("read stock records: %w", err)
		}

		var sums []reservedSum
		if err := tx.Model(&models.Reservation{}).
			Select("product_id, COALESCE(SUM(quantity), 0) AS reserved").
			Where("status = ?", models.ReservationActive).
			Group("product_id").
			Scan(&sums).Error; err != nil {
			return fmt.Errorf("sum active reservations: %w", err)
		}

		byProduct := make(map[string]int, len(sums))
		for _, s := range sums {
			byProduct[s.ProductID] = s.Reserved
		}

		items = make([]models.SnapshotItem, 0, len(stocks))
		for _, s := range stocks {
			reserved := byProduct[s.ProductID]
			items = append(items, models.SnapshotItem{
				ProductID:     s.ProductID,
				LocationID:    s.LocationID,
				TotalQuantity: s.TotalQuantity,
				Reserved:      reserved,
				Available:     s.TotalQuantity - reserved,
			})
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, unavailable(err)
	}
	return items, nil
}

func (r *PostgresInventoryRepository) SaveSnapshot(ctx context.Context, snap *models.InventorySnapshot) error {
	b, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("marshal snapshot items: %w", err)
	}
	snap.ItemsJSON = string(b)
	if err := r.db.WithContext(ctx).Create(snap).Error; err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *PostgresInventoryRepository) SetSnapshotExport(ctx context.Context, id uuid.UUID, location string) error {
	return r.db.WithContext(ctx).Model(&models.InventorySnapshot{}).
		Where("id = ?", id).
		Update("export_location", location).Error
}

func (r *PostgresInventoryRepository) GetSnapshot(ctx context.Context, id uuid.UUID) (*models.InventorySnapshot, error) {
	var snap models.InventorySnapshot
	if err := r.db.WithContext(ctx).First(&snap, "id = ?", id).Error; err != nil {
		return nil, translate(err, "snapshot %s not found", id)
	}
	if snap.ItemsJSON != "" {
		if err := json.Unmarshal([]byte(snap.ItemsJSON), &snap.Items); err != nil {
			return nil, fmt.Errorf("decode snapshot items: %w", err)
		}
	}
	return &snap, nil
}

func lockStock(tx *gorm.DB, productID string) (*models.StockRecord, error) {
	var stock models.StockRecord
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		First(&stock).Error; err != nil {
		return nil, translate(err, "stock record for product %s not found", productID)
	}
	return &stock, nil
}

func activeReserved(tx *gorm.DB, productID string) (int, error) {
	var reserved int
	if err := tx.Model(&models.Reservation{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("product_id = ? AND status = ?", productID, models.ReservationActive).
		Scan(&reserved).Error; err != nil {
		return 0, fmt.Errorf("sum active reservations: %w", err)
	}
	return reserved, nil
}

// applyAdjustment computes the new ledger total, refusing any result that
// would go negative or drop below what is already held by reservations.
func applyAdjustment(total, reserved int, adj models.StockAdjustment) (int, error) {
	if adj.Quantity < 0 {
		return 0, apperrors.Validation("quantity must not be negative")
	}
	var newTotal int
	switch adj.Type {
	case models.AdjustIncrement:
		newTotal = total + adj.Quantity
	case models.AdjustDecrement:
		newTotal = total - adj.Quantity
		if newTotal < reserved {
			return 0, apperrors.InsufficientStock(adj.ProductID, adj.Quantity, max(total-reserved, 0))
		}
	case models.AdjustSet:
		newTotal = adj.Quantity
		if newTotal < reserved {
			return 0, apperrors.New(http.StatusConflict, apperrors.KindInsufficientStock,
				fmt.Sprintf("cannot set stock for product %s to %d: %d units are reserved", adj.ProductID, adj.Quantity, reserved), nil)
		}
	default:
		return 0, apperrors.Validation("unknown adjustment type %q", adj.Type)
	}
	return newTotal, nil
}

func translate(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(format, args...)
	}
	return unavailable(err)
}

func unavailable(err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.Unavailable("inventory store unavailable", err)
}
