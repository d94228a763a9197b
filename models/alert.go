package models

import "time"

type AlertType string

const (
	AlertLowStock   AlertType = "LOW_STOCK"
	AlertOutOfStock AlertType = "OUT_OF_STOCK"
)

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Alert is an ephemeral notification; it is published, never stored.
type Alert struct {
	ProductID string        `json:"product_id"`
	Type      AlertType     `json:"type"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Available int           `json:"available"`
	Threshold int           `json:"threshold"`
	Timestamp time.Time     `json:"timestamp"`
}
