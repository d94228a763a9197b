package models

import (
	"time"

	"github.com/google/uuid"
)

// SnapshotItem is one product line captured in an inventory snapshot.
type SnapshotItem struct {
	ProductID     string  `json:"product_id"`
	LocationID    *string `json:"location_id,omitempty"`
	TotalQuantity int     `json:"total_quantity"`
	Reserved      int     `json:"reserved"`
	Available     int     `json:"available"`
}

// InventorySnapshot is a point-in-time copy of the ledger for audits.
type InventorySnapshot struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Reason         string         `gorm:"type:varchar(255);not null" json:"reason"`
	ItemsJSON      string         `gorm:"column:items;type:jsonb" json:"-"`
	Items          []SnapshotItem `gorm:"-" json:"items"`
	ProductCount   int            `json:"product_count"`
	TotalUnits     int            `json:"total_units"`
	ReservedUnits  int            `json:"reserved_units"`
	AvailableUnits int            `json:"available_units"`
	ExportLocation string         `gorm:"type:varchar(512)" json:"export_location,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (InventorySnapshot) TableName() string { return "inventory_snapshots" }

// Summarize fills the aggregate counters from Items.
func (s *InventorySnapshot) Summarize() {
	s.ProductCount = len(s.Items)
	s.TotalUnits, s.ReservedUnits, s.AvailableUnits = 0, 0, 0
	for _, it := range s.Items {
		s.TotalUnits += it.TotalQuantity
		s.ReservedUnits += it.Reserved
		s.AvailableUnits += it.Available
	}
}

// SnapshotRequest is the admin payload for creating a snapshot.
type SnapshotRequest struct {
	Reason string `json:"reason" binding:"required"`
}
