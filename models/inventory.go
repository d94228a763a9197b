package models

import (
	"time"

	"github.com/google/uuid"
)

// StockRecord is the authoritative ledger entry for a product.
type StockRecord struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID         string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"product_id"`
	LocationID        *string   `gorm:"type:varchar(64)" json:"location_id,omitempty"`
	TotalQuantity     int       `gorm:"not null;default:0;check:total_quantity >= 0" json:"total_quantity"`
	LowStockThreshold *int      `json:"low_stock_threshold,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (StockRecord) TableName() string { return "stock_records" }

// StockStatus is derived from the ledger and the live ACTIVE reservations.
// It is never stored in the database.
type StockStatus struct {
	ProductID     string    `json:"product_id"`
	TotalQuantity int       `json:"total_quantity"`
	Reserved      int       `json:"reserved"`
	Available     int       `json:"available"`
	Threshold     int       `json:"threshold"`
	LowStock      bool      `json:"low_stock"`
	OutOfStock    bool      `json:"out_of_stock"`
	ComputedAt    time.Time `json:"computed_at"`
}

// NewStockStatus derives availability flags from ledger totals.
// threshold is the per-product value when set, otherwise defaultThreshold.
func NewStockStatus(rec *StockRecord, reserved, defaultThreshold int, now time.Time) *StockStatus {
	threshold := defaultThreshold
	if rec.LowStockThreshold != nil {
		threshold = *rec.LowStockThreshold
	}
	available := rec.TotalQuantity - reserved
	return &StockStatus{
		ProductID:     rec.ProductID,
		TotalQuantity: rec.TotalQuantity,
		Reserved:      reserved,
		Available:     available,
		Threshold:     threshold,
		LowStock:      available <= threshold,
		OutOfStock:    available <= 0,
		ComputedAt:    now,
	}
}

// AdjustmentType selects how a bulk adjustment applies its quantity.
type AdjustmentType string

const (
	AdjustIncrement AdjustmentType = "increment"
	AdjustDecrement AdjustmentType = "decrement"
	AdjustSet       AdjustmentType = "set"
)

// StockAdjustment is a single admin change to the ledger.
type StockAdjustment struct {
	ProductID  string         `json:"product_id" binding:"required"`
	LocationID *string        `json:"location_id,omitempty"`
	Quantity   int            `json:"quantity" binding:"gte=0"`
	Type       AdjustmentType `json:"type" binding:"required,oneof=increment decrement set"`
}

// BulkUpdateRequest is the admin payload for BulkUpdateInventory.
type BulkUpdateRequest struct {
	Items []StockAdjustment `json:"items" binding:"required,min=1,dive"`
}

// AdjustmentResult reports the outcome of one bulk item.
type AdjustmentResult struct {
	ProductID     string `json:"product_id"`
	Success       bool   `json:"success"`
	PreviousTotal int    `json:"previous_total"`
	NewTotal      int    `json:"new_total"`
	Error         string `json:"error,omitempty"`
}

// ThresholdRequest sets a per-product low-stock threshold.
type ThresholdRequest struct {
	Threshold *int `json:"threshold" binding:"required,gte=0"`
}

// LedgerChange is what the repository reports after a committed adjustment.
type LedgerChange struct {
	ProductID     string
	PreviousTotal int
	NewTotal      int
	Reserved      int
}
