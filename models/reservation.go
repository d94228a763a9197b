package models

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Terminal reports whether no further transition is allowed.
func (s ReservationStatus) Terminal() bool {
	return s != ReservationActive
}

// Reservation is a time-limited hold on stock for one holder.
type Reservation struct {
	ID        uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID string            `gorm:"type:varchar(64);not null;index" json:"product_id"`
	Quantity  int               `gorm:"not null;check:quantity > 0" json:"quantity"`
	Holder    string            `gorm:"type:varchar(128);not null;index" json:"holder"`
	Status    ReservationStatus `gorm:"type:varchar(16);not null;index:idx_reservations_status_expires,priority:1" json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `gorm:"not null;index:idx_reservations_status_expires,priority:2" json:"expires_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Reservation) TableName() string { return "reservations" }

// ReserveRequest is the input to a reservation attempt.
type ReserveRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Holder    string `json:"holder" binding:"required"`
	// HoldSeconds optionally overrides the default hold duration.
	HoldSeconds int `json:"hold_seconds,omitempty" binding:"omitempty,min=1"`
}

// ExpiredReservation is a row released by the sweeper.
type ExpiredReservation struct {
	ID        uuid.UUID
	ProductID string
	Quantity  int
}
