package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yashrajoria/inventory-reservation-service/models"
)

// AdminService is implemented by services.InventoryAdmin.
type AdminService interface {
	BulkUpdateInventory(ctx context.Context, items []models.StockAdjustment) ([]models.AdjustmentResult, error)
	SetLowStockAlert(ctx context.Context, productID string, threshold int) (*models.StockStatus, error)
	CreateInventorySnapshot(ctx context.Context, reason string) (*models.InventorySnapshot, error)
	GetSnapshot(ctx context.Context, id uuid.UUID) (*models.InventorySnapshot, error)
	TriggerSweep(ctx context.Context) (int, error)
}

type AdminController struct {
	service AdminService
}

func NewAdminController(service AdminService) *AdminController {
	return &AdminController{service: service}
}

// BulkUpdate applies ledger adjustments item by item
// POST /inventory/admin/bulk
func (ac *AdminController) BulkUpdate(c *gin.Context) {
	var req models.BulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	results, err := ac.service.BulkUpdateInventory(c.Request.Context(), req.Items)
	if err != nil {
		respondError(c, err)
		return
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"succeeded": len(results) - failed,
		"failed":    failed,
	})
}

// SetThreshold sets a product's low-stock threshold
// PUT /inventory/admin/thresholds/:productId
func (ac *AdminController) SetThreshold(c *gin.Context) {
	var req models.ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	status, err := ac.service.SetLowStockAlert(c.Request.Context(), c.Param("productId"), *req.Threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// CreateSnapshot records a point-in-time copy of the ledger
// POST /inventory/admin/snapshots
func (ac *AdminController) CreateSnapshot(c *gin.Context) {
	var req models.SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	snap, err := ac.service.CreateInventorySnapshot(c.Request.Context(), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// GET /inventory/admin/snapshots/:id
func (ac *AdminController) GetSnapshot(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	snap, err := ac.service.GetSnapshot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// TriggerSweep runs the expiry sweeper once
// POST /inventory/admin/sweep
func (ac *AdminController) TriggerSweep(c *gin.Context) {
	n, err := ac.service.TriggerSweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}
