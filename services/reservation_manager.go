package services

import (
	"context"
	"errors"
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

const (
	DefaultHoldDuration = 15 * time.Minute
	DefaultMaxHold      = time.Hour
	MinHoldDuration     = time.Minute
)

// HoldPolicy bounds how long a reservation may hold stock.
type HoldPolicy struct {
	Default time.Duration
	Max     time.Duration
}

// ReservationManager runs the reservation lifecycle against the ledger and
// fans out the after-commit side effects.
type ReservationManager struct {
	repo    repository.InventoryRepository
	status  *StockStatusService
	bus     *events.Bus
	alerts  *AlertEmitter
	catalog ProductCatalog
	metrics awspkg.MetricsRecorder
	hold    HoldPolicy
	logger  *zap.Logger
	now     func() time.Time
}

// NewReservationManager wires the manager. catalog may be nil.
func NewReservationManager(
	repo repository.InventoryRepository,
	status *StockStatusService,
	bus *events.Bus,
	alerts *AlertEmitter,
	catalog ProductCatalog,
	metrics awspkg.MetricsRecorder,
	hold HoldPolicy,
	logger *zap.Logger,
) *ReservationManager {
	if hold.Default <= 0 {
		hold.Default = DefaultHoldDuration
	}
	if hold.Max < hold.Default {
		hold.Max = max(DefaultMaxHold, hold.Default)
	}
	return &ReservationManager{
		repo:    repo,
		status:  status,
		bus:     bus,
		alerts:  alerts,
		catalog: catalog,
		metrics: metrics,
		hold:    hold,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (m *ReservationManager) SetClock(now func() time.Time) {
	m.now = now
}

// Reserve places an ACTIVE hold on req.Quantity units or fails with
// InsufficientStock, leaving the ledger untouched.
func (m *ReservationManager) Reserve(ctx context.Context, req models.ReserveRequest) (*models.Reservation, error) {
	productID := strings.TrimSpace(req.ProductID)
	holder := strings.TrimSpace(req.Holder)
	if productID == "" {
		return nil, apperrors.Validation("product_id is required")
	}
	if req.Quantity <= 0 {
		return nil, apperrors.Validation("quantity must be positive, got %d", req.Quantity)
	}
	if holder == "" {
		return nil, apperrors.Validation("holder is required")
	}
	hold, err := m.holdFor(req.HoldSeconds)
	if err != nil {
		return nil, err
	}

	if err := m.checkCatalog(ctx, productID); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	res := &models.Reservation{
		ID:        uuid.New(),
		ProductID: productID,
		Quantity:  req.Quantity,
		Holder:    holder,
		Status:    models.ReservationActive,
		CreatedAt: now,
		ExpiresAt: now.Add(hold),
		UpdatedAt: now,
	}

	if err := m.repo.Reserve(ctx, res); err != nil {
		if errors.Is(err, apperrors.ErrInsufficientStock) {
			recordValue(m.metrics, awspkg.MetricInventoryRejected, 1, serviceDims())
			m.logger.Info("Reservation rejected",
				zap.String("product_id", productID),
				zap.Int("quantity", req.Quantity),
				zap.String("reason", err.Error()),
			)
		}
		return nil, err
	}

	m.status.Invalidate(ctx, productID)
	m.bus.Publish(ctx, events.NewReservationEvent(events.ReservationCreated, res))
	recordValue(m.metrics, awspkg.MetricInventoryReserved, res.Quantity, serviceDims())

	m.logger.Info("Reservation created",
		zap.String("reservation_id", res.ID.String()),
		zap.String("product_id", productID),
		zap.String("holder", holder),
		zap.Int("quantity", res.Quantity),
		zap.Time("expires_at", res.ExpiresAt),
	)
	return res, nil
}

// Confirm finalises an ACTIVE reservation and takes its units off the ledger.
func (m *ReservationManager) Confirm(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	res, change, err := m.repo.Confirm(ctx, id, m.now().UTC())
	if err != nil {
		return nil, err
	}

	m.status.Invalidate(ctx, res.ProductID)
	m.bus.Publish(ctx, events.NewReservationEvent(events.ReservationConfirmed, res))
	m.bus.Publish(ctx, events.NewLedgerEvent(change, "reservation_confirmed"))
	m.alerts.Evaluate(ctx, res.ProductID)
	recordValue(m.metrics, awspkg.MetricInventoryConfirmed, res.Quantity, serviceDims())

	m.logger.Info("Reservation confirmed",
		zap.String("reservation_id", id.String()),
		zap.String("product_id", res.ProductID),
		zap.Int("quantity", res.Quantity),
		zap.Int("new_total", change.NewTotal),
	)
	return res, nil
}

// Cancel releases an ACTIVE reservation. The ledger total is unchanged.
func (m *ReservationManager) Cancel(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	res, err := m.repo.Cancel(ctx, id, m.now().UTC())
	if err != nil {
		return nil, err
	}

	m.status.Invalidate(ctx, res.ProductID)
	m.bus.Publish(ctx, events.NewReservationEvent(events.ReservationCancelled, res))
	recordValue(m.metrics, awspkg.MetricInventoryReleased, res.Quantity, serviceDims())

	m.logger.Info("Reservation cancelled",
		zap.String("reservation_id", id.String()),
		zap.String("product_id", res.ProductID),
		zap.Int("quantity", res.Quantity),
	)
	return res, nil
}

func (m *ReservationManager) GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	return m.repo.GetReservation(ctx, id)
}

func (m *ReservationManager) ListReservations(ctx context.Context, holder string) ([]models.Reservation, error) {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return nil, apperrors.Validation("holder is required")
	}
	return m.repo.ListReservationsByHolder(ctx, holder)
}

func (m *ReservationManager) GetStockStatus(ctx context.Context, productID string) (*models.StockStatus, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, apperrors.Validation("product_id is required")
	}
	return m.status.Get(ctx, productID)
}

func (m *ReservationManager) holdFor(seconds int) (time.Duration, error) {
	if seconds == 0 {
		return m.hold.Default, nil
	}
	d := time.Duration(seconds) * time.Second
	if d < MinHoldDuration || d > m.hold.Max {
		return 0, apperrors.Validation("hold_seconds must be between %d and %d",
			int(MinHoldDuration.Seconds()), int(m.hold.Max.Seconds()))
	}
	return d, nil
}

// checkCatalog rejects products the catalog reports as unknown. An
// unreachable catalog is not fatal; the ledger lookup still decides.
func (m *ReservationManager) checkCatalog(ctx context.Context, productID string) error {
	if m.catalog == nil {
		return nil
	}
	exists, err := m.catalog.ProductExists(ctx, productID)
	if err != nil {
		m.logger.Warn("Product catalog unavailable, relying on ledger", zap.String("product_id", productID), zap.Error(err))
		return nil
	}
	if !exists {
		return apperrors.NotFound("product %s not found", productID)
	}
	return nil
}
