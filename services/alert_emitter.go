package services

import (
	"context"
	"fmt"
	"time"

	"github.com/yashrajoria/inventory-reservation-service/events"
	"github.com/yashrajoria/inventory-reservation-service/models"
	awspkg "github.com/yashrajoria/inventory-reservation-service/pkg/aws"
	"go.uber.org/zap"
)

// AlertEmitter publishes low-stock and out-of-stock alerts.
type AlertEmitter struct {
	status  *StockStatusService
	bus     *events.Bus
	metrics awspkg.MetricsRecorder
	logger  *zap.Logger
	now     func() time.Time
}

func NewAlertEmitter(status *StockStatusService, bus *events.Bus, metrics awspkg.MetricsRecorder, logger *zap.Logger) *AlertEmitter {
	return &AlertEmitter{status: status, bus: bus, metrics: metrics, logger: logger, now: time.Now}
}

// Evaluate recomputes the product's status and publishes an alert when it is
// at or below its threshold. Failures are logged and nil is returned.
func (a *AlertEmitter) Evaluate(ctx context.Context, productID string) *models.Alert {
	status, err := a.status.Get(ctx, productID)
	if err != nil {
		a.logger.Warn("Skipping stock alert evaluation", zap.String("product_id", productID), zap.Error(err))
		return nil
	}

	alert := BuildAlert(status, a.now().UTC())
	if alert == nil {
		return nil
	}

	a.bus.Publish(ctx, events.NewAlertEvent(*alert))
	recordValue(a.metrics, awspkg.MetricInventoryLow, 1, serviceDims())
	a.logger.Info("Stock alert emitted",
		zap.String("product_id", productID),
		zap.String("type", string(alert.Type)),
		zap.Int("available", alert.Available),
		zap.Int("threshold", alert.Threshold),
	)
	return alert
}

// BuildAlert maps a status to the alert it warrants, or nil.
func BuildAlert(status *models.StockStatus, now time.Time) *models.Alert {
	switch {
	case status.OutOfStock:
		return &models.Alert{
			ProductID: status.ProductID,
			Type:      models.AlertOutOfStock,
			Severity:  models.SeverityCritical,
			Message:   fmt.Sprintf("product %s is out of stock", status.ProductID),
			Available: status.Available,
			Threshold: status.Threshold,
			Timestamp: now,
		}
	case status.LowStock:
		return &models.Alert{
			ProductID: status.ProductID,
			Type:      models.AlertLowStock,
			Severity:  models.SeverityWarning,
			Message:   fmt.Sprintf("product %s is low on stock: %d available (threshold %d)", status.ProductID, status.Available, status.Threshold),
			Available: status.Available,
			Threshold: status.Threshold,
			Timestamp: now,
		}
	}
	return nil
}
