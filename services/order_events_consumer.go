package services

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"github.com/google/uuid"
	"github.com/yashrajoria/inventory-reservation-service/apperrors"
	"github.com/yashrajoria/inventory-reservation-service/models"
	awspkg "github.com/yashrajoria/inventory-reservation-service/pkg/aws"
	"go.uber.org/zap"
)

// Order lifecycle event types published by the order and payment services.
const (
	OrderPaymentSucceeded  = "payment_succeeded"
	OrderPaymentFailed     = "payment_failed"
	OrderCancelled         = "order_cancelled"
	OrderRefunded          = "order_refunded"
	OrderCheckoutAbandoned = "checkout_abandoned"
)

// OrderEvent is the subset of an order lifecycle message this service reads.
type OrderEvent struct {
	EventType      string   `json:"event_type"`
	OrderID        string   `json:"order_id"`
	ReservationIDs []string `json:"reservation_ids"`
}

// ReservationLifecycle is the part of ReservationManager driven by order
// events.
type ReservationLifecycle interface {
	Confirm(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
}

// OrderEventsConsumer confirms or releases reservations as orders move
// through payment.
type OrderEventsConsumer struct {
	consumer *awspkg.SQSConsumer
	manager  ReservationLifecycle
	metrics  awspkg.MetricsRecorder
	logger   *zap.Logger
}

func NewOrderEventsConsumer(consumer *awspkg.SQSConsumer, manager ReservationLifecycle, metrics awspkg.MetricsRecorder, logger *zap.Logger) *OrderEventsConsumer {
	return &OrderEventsConsumer{consumer: consumer, manager: manager, metrics: metrics, logger: logger}
}

// Start polls until ctx is cancelled.
func (c *OrderEventsConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting order events consumer")
	if err := c.consumer.StartPolling(ctx, c.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Order events polling stopped", zap.Error(err))
	}
}

// HandleMessage applies one order event. A returned error leaves the message
// on the queue; reservations already moved by an earlier delivery are
// skipped.
func (c *OrderEventsConsumer) HandleMessage(ctx context.Context, body string) error {
	var snsEnvelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &snsEnvelope); err == nil && snsEnvelope.Message != "" {
		body = snsEnvelope.Message
	}

	var evt OrderEvent
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		c.logger.Warn("Dropping malformed order event", zap.Error(err))
		return nil
	}

	var apply func(context.Context, uuid.UUID) (*models.Reservation, error)
	var settled []models.ReservationStatus
	switch evt.EventType {
	case OrderPaymentSucceeded:
		apply = c.manager.Confirm
		settled = []models.ReservationStatus{models.ReservationConfirmed}
	case OrderCancelled, OrderPaymentFailed, OrderRefunded, OrderCheckoutAbandoned:
		apply = c.manager.Cancel
		settled = []models.ReservationStatus{models.ReservationCancelled, models.ReservationExpired}
	default:
		c.logger.Debug("Ignoring order event", zap.String("event_type", evt.EventType), zap.String("order_id", evt.OrderID))
		return nil
	}

	for _, raw := range evt.ReservationIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.logger.Warn("Skipping invalid reservation id", zap.String("order_id", evt.OrderID), zap.String("reservation_id", raw))
			continue
		}

		if _, err := apply(ctx, id); err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			if err := c.explainRejected(ctx, evt, id, settled); err != nil {
				return err
			}
		}
	}

	recordValue(c.metrics, awspkg.MetricSQSMessages, 1, serviceDims())
	return nil
}

// explainRejected looks at a reservation the event could not move. A
// redelivery finds it already in the event's target state. Anything else is
// logged for operators; a payment that lost its hold also records
// PaidReservationLost because the units may already be sold to someone else.
func (c *OrderEventsConsumer) explainRejected(ctx context.Context, evt OrderEvent, id uuid.UUID, settled []models.ReservationStatus) error {
	fields := []zap.Field{
		zap.String("event_type", evt.EventType),
		zap.String("order_id", evt.OrderID),
		zap.String("reservation_id", id.String()),
	}

	res, err := c.manager.GetReservation(ctx, id)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		if evt.EventType == OrderPaymentSucceeded {
			c.logger.Error("Payment received for unknown reservation", fields...)
			recordValue(c.metrics, awspkg.MetricPaidReservationLost, 1, serviceDims())
			return nil
		}
		c.logger.Warn("Order event references unknown reservation, skipping", fields...)
		return nil
	case err != nil:
		return err
	}

	fields = append(fields, zap.String("status", string(res.Status)))
	if slices.Contains(settled, res.Status) {
		c.logger.Info("Reservation already settled, skipping", fields...)
		return nil
	}

	if evt.EventType == OrderPaymentSucceeded {
		c.logger.Error("Payment received after reservation was released; stock was not decremented",
			append(fields, zap.String("product_id", res.ProductID), zap.Int("quantity", res.Quantity))...)
		recordValue(c.metrics, awspkg.MetricPaidReservationLost, res.Quantity, serviceDims())
		return nil
	}
	c.logger.Warn("Cannot release a confirmed reservation from an order event", fields...)
	return nil
}
