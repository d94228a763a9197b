package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/inventory-reservation-service/apperrors"
	"github.com/yashrajoria/inventory-reservation-service/events"
	"github.com/yashrajoria/inventory-reservation-service/models"
	awspkg "github.com/yashrajoria/inventory-reservation-service/pkg/aws"
	"github.com/yashrajoria/inventory-reservation-service/repository"
	"go.uber.org/zap"
)

// InventoryAdmin covers operator actions: bulk ledger changes, thresholds,
// audit snapshots and on-demand sweeps.
type InventoryAdmin struct {
	repo     repository.InventoryRepository
	status   *StockStatusService
	bus      *events.Bus
	alerts   *AlertEmitter
	sweeper  *ExpirySweeper
	uploader awspkg.ObjectUploader
	metrics  awspkg.MetricsRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewInventoryAdmin wires the admin service. uploader may be nil, in which
// case snapshots are only stored in the database.
func NewInventoryAdmin(
	repo repository.InventoryRepository,
	status *StockStatusService,
	bus *events.Bus,
	alerts *AlertEmitter,
	sweeper *ExpirySweeper,
	uploader awspkg.ObjectUploader,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
) *InventoryAdmin {
	return &InventoryAdmin{
		repo:     repo,
		status:   status,
		bus:      bus,
		alerts:   alerts,
		sweeper:  sweeper,
		uploader: uploader,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// BulkUpdateInventory applies each adjustment in its own transaction and
// reports per-item outcomes. One failed item does not stop the rest.
func (a *InventoryAdmin) BulkUpdateInventory(ctx context.Context, items []models.StockAdjustment) ([]models.AdjustmentResult, error) {
	if len(items) == 0 {
		return nil, apperrors.Validation("at least one item is required")
	}

	results := make([]models.AdjustmentResult, 0, len(items))
	succeeded := 0
	for _, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		result := models.AdjustmentResult{ProductID: item.ProductID}

		if item.ProductID == "" {
			result.Error = "product_id is required"
			results = append(results, result)
			continue
		}

		change, err := a.repo.AdjustStock(ctx, item)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			a.logger.Warn("Stock adjustment rejected",
				zap.String("product_id", item.ProductID),
				zap.String("type", string(item.Type)),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
			continue
		}

		result.Success = true
		result.PreviousTotal = change.PreviousTotal
		result.NewTotal = change.NewTotal
		results = append(results, result)
		succeeded++

		a.status.Invalidate(ctx, item.ProductID)
		a.bus.Publish(ctx, events.NewLedgerEvent(change, "admin_"+string(item.Type)))
		if item.Type != models.AdjustIncrement {
			a.alerts.Evaluate(ctx, item.ProductID)
		}
	}

	recordValue(a.metrics, awspkg.MetricInventoryAdjusted, succeeded, serviceDims())
	a.logger.Info("Bulk inventory update applied", zap.Int("items", len(items)), zap.Int("succeeded", succeeded))
	return results, nil
}

// SetLowStockAlert stores a per-product threshold and re-checks alerts
// against it.
func (a *InventoryAdmin) SetLowStockAlert(ctx context.Context, productID string, threshold int) (*models.StockStatus, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, apperrors.Validation("product_id is required")
	}
	if threshold < 0 {
		return nil, apperrors.Validation("threshold must not be negative")
	}

	if err := a.repo.SetThreshold(ctx, productID, threshold); err != nil {
		return nil, err
	}
	a.status.Invalidate(ctx, productID)
	a.alerts.Evaluate(ctx, productID)

	a.logger.Info("Low stock threshold updated", zap.String("product_id", productID), zap.Int("threshold", threshold))
	return a.status.Get(ctx, productID)
}

// CreateInventorySnapshot captures a consistent copy of the ledger. When an
// uploader is configured the snapshot is also exported as JSON; a failed
// export is logged and the snapshot is still returned.
func (a *InventoryAdmin) CreateInventorySnapshot(ctx context.Context, reason string) (*models.InventorySnapshot, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("reason is required")
	}

	items, err := a.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	snap := &models.InventorySnapshot{
		ID:        uuid.New(),
		Reason:    reason,
		Items:     items,
		CreatedAt: a.now().UTC(),
	}
	snap.Summarize()

	if err := a.repo.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	if a.uploader != nil {
		if loc, err := a.export(ctx, snap); err != nil {
			a.logger.Warn("Snapshot export failed (non-fatal)", zap.String("snapshot_id", snap.ID.String()), zap.Error(err))
		} else {
			snap.ExportLocation = loc
		}
	}

	a.logger.Info("Inventory snapshot created",
		zap.String("snapshot_id", snap.ID.String()),
		zap.String("reason", reason),
		zap.Int("products", snap.ProductCount),
		zap.Int("available_units", snap.AvailableUnits),
	)
	return snap, nil
}

func (a *InventoryAdmin) export(ctx context.Context, snap *models.InventorySnapshot) (string, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	loc, err := a.uploader.Upload(ctx, SnapshotKey(snap), "application/json", body)
	if err != nil {
		return "", err
	}
	if err := a.repo.SetSnapshotExport(ctx, snap.ID, loc); err != nil {
		return "", fmt.Errorf("record export location: %w", err)
	}
	return loc, nil
}

// SnapshotKey is the object key a snapshot is exported under.
func SnapshotKey(snap *models.InventorySnapshot) string {
	return fmt.Sprintf("snapshots/%s/%s.json", snap.CreatedAt.Format("2006/01/02"), snap.ID)
}

func (a *InventoryAdmin) GetSnapshot(ctx context.Context, id uuid.UUID) (*models.InventorySnapshot, error) {
	return a.repo.GetSnapshot(ctx, id)
}

// TriggerSweep runs one expiry pass now.
func (a *InventoryAdmin) TriggerSweep(ctx context.Context) (int, error) {
	return a.sweeper.RunOnce(ctx)
}
