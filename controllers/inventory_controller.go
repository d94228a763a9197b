package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yashrajoria/inventory-reservation-service/models"
)

// ReservationService is implemented by services.ReservationManager.
type ReservationService interface {
	Reserve(ctx context.Context, req models.ReserveRequest) (*models.Reservation, error)
	Confirm(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	ListReservations(ctx context.Context, holder string) ([]models.Reservation, error)
	GetStockStatus(ctx context.Context, productID string) (*models.StockStatus, error)
}

// InventoryController handles reservation and stock status requests.
type InventoryController struct {
	service ReservationService
}

func NewInventoryController(service ReservationService) *InventoryController {
	return &InventoryController{service: service}
}

// Reserve places a hold on stock
// POST /inventory/reservations
func (ic *InventoryController) Reserve(c *gin.Context) {
	var req models.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := ic.service.Reserve(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GetReservation returns one reservation
// GET /inventory/reservations/:id
func (ic *InventoryController) GetReservation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := ic.service.GetReservation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListReservations returns a holder's reservations, newest first
// GET /inventory/reservations?holder=
func (ic *InventoryController) ListReservations(c *gin.Context) {
	list, err := ic.service.ListReservations(c.Request.Context(), c.Query("holder"))
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Reservation{}
	}
	c.JSON(http.StatusOK, gin.H{"reservations": list, "count": len(list)})
}

// Confirm finalises a reservation
// POST /inventory/reservations/:id/confirm
func (ic *InventoryController) Confirm(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := ic.service.Confirm(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Cancel releases a reservation
// POST /inventory/reservations/:id/cancel
func (ic *InventoryController) Cancel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := ic.service.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetStockStatus returns availability for a product
// GET /inventory/stock/:productId
func (ic *InventoryController) GetStockStatus(c *gin.Context) {
	status, err := ic.service.GetStockStatus(c.Request.Context(), c.Param("productId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
