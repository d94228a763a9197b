package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yashrajoria/inventory-reservation-service/models"
)

// EventType is the closed set of change notifications.
type EventType string

const (
	ReservationCreated   EventType = "reservation_created"
	ReservationConfirmed EventType = "reservation_confirmed"
	ReservationCancelled EventType = "reservation_cancelled"
	ReservationExpired   EventType = "reservation_expired"
	LedgerAdjusted       EventType = "ledger_adjusted"
	StockAlert           EventType = "stock_alert"
)

// Payload is implemented only by the payload types in this package.
type Payload interface {
	isPayload()
}

type ReservationPayload struct {
	ReservationID string                   `json:"reservation_id"`
	Holder        string                   `json:"holder"`
	Quantity      int                      `json:"quantity"`
	Status        models.ReservationStatus `json:"status"`
	ExpiresAt     time.Time                `json:"expires_at"`
}

type ExpiryPayload struct {
	ReservationIDs   []string `json:"reservation_ids"`
	ReleasedQuantity int      `json:"released_quantity"`
}

type LedgerPayload struct {
	PreviousTotal int    `json:"previous_total"`
	NewTotal      int    `json:"new_total"`
	Reserved      int    `json:"reserved"`
	Reason        string `json:"reason"`
}

type AlertPayload struct {
	models.Alert
}

func (ReservationPayload) isPayload() {}
func (ExpiryPayload) isPayload()      {}
func (LedgerPayload) isPayload()      {}
func (AlertPayload) isPayload()       {}

// Event tells observers that a product's stock picture changed and should be
// re-fetched. Payloads are advisory.
type Event struct {
	ProductID string    `json:"product_id"`
	Type      EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Origin    string    `json:"origin,omitempty"`
	Payload   Payload   `json:"payload"`
}

func NewReservationEvent(t EventType, res *models.Reservation) Event {
	return Event{
		ProductID: res.ProductID,
		Type:      t,
		Timestamp: time.Now().UTC(),
		Payload: ReservationPayload{
			ReservationID: res.ID.String(),
			Holder:        res.Holder,
			Quantity:      res.Quantity,
			Status:        res.Status,
			ExpiresAt:     res.ExpiresAt,
		},
	}
}

func NewExpiryEvent(productID string, ids []string, released int) Event {
	return Event{
		ProductID: productID,
		Type:      ReservationExpired,
		Timestamp: time.Now().UTC(),
		Payload:   ExpiryPayload{ReservationIDs: ids, ReleasedQuantity: released},
	}
}

func NewLedgerEvent(change *models.LedgerChange, reason string) Event {
	return Event{
		ProductID: change.ProductID,
		Type:      LedgerAdjusted,
		Timestamp: time.Now().UTC(),
		Payload: LedgerPayload{
			PreviousTotal: change.PreviousTotal,
			NewTotal:      change.NewTotal,
			Reserved:      change.Reserved,
			Reason:        reason,
		},
	}
}

func NewAlertEvent(alert models.Alert) Event {
	return Event{
		ProductID: alert.ProductID,
		Type:      StockAlert,
		Timestamp: alert.Timestamp,
		Payload:   AlertPayload{Alert: alert},
	}
}

type envelope struct {
	ProductID string          `json:"product_id"`
	Type      EventType       `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Origin    string          `json:"origin,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Marshal encodes an event into its wire envelope.
func Marshal(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

// Decode parses a wire envelope back into a typed event.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode event envelope: %w", err)
	}

	evt := Event{ProductID: env.ProductID, Type: env.Type, Timestamp: env.Timestamp, Origin: env.Origin}
	var err error
	switch env.Type {
	case ReservationCreated, ReservationConfirmed, ReservationCancelled:
		var p ReservationPayload
		err = json.Unmarshal(env.Payload, &p)
		evt.Payload = p
	case ReservationExpired:
		var p ExpiryPayload
		err = json.Unmarshal(env.Payload, &p)
		evt.Payload = p
	case LedgerAdjusted:
		var p LedgerPayload
		err = json.Unmarshal(env.Payload, &p)
		evt.Payload = p
	case StockAlert:
		var p AlertPayload
		err = json.Unmarshal(env.Payload, &p)
		evt.Payload = p
	default:
		return Event{}, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return evt, nil
}
