package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/inventory-reservation-service/controllers"
	"github.com/yashrajoria/inventory-reservation-service/middleware"
)

// Options carries the per-route middleware settings.
type Options struct {
	JWTSecret        string
	ReservePerMinute int
	RequestTimeout   time.Duration
}

// RegisterRoutes registers all inventory service routes
func RegisterRoutes(r *gin.Engine, inv *controllers.InventoryController, admin *controllers.AdminController, stream *controllers.StreamController, opts Options) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	perMinute := opts.ReservePerMinute
	if perMinute <= 0 {
		perMinute = 120
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	inventory := r.Group("/inventory")

	// The event stream stays open, so it is registered outside the timeout.
	inventory.GET("/events/stream", stream.Stream)

	api := inventory.Group("", middleware.Timeout(timeout))
	{
		api.POST("/reservations", middleware.RateLimit(perMinute, perMinute/4+1), inv.Reserve)
		api.GET("/reservations", inv.ListReservations)
		api.GET("/reservations/:id", inv.GetReservation)
		api.POST("/reservations/:id/confirm", inv.Confirm)
		api.POST("/reservations/:id/cancel", inv.Cancel)
		api.GET("/stock/:productId", inv.GetStockStatus)
	}

	adminGroup := api.Group("/admin", middleware.RequireRole(opts.JWTSecret, "admin"))
	{
		adminGroup.POST("/bulk", admin.BulkUpdate)
		adminGroup.PUT("/thresholds/:productId", admin.SetThreshold)
		adminGroup.POST("/snapshots", admin.CreateSnapshot)
		adminGroup.GET("/snapshots/:id", admin.GetSnapshot)
		adminGroup.POST("/sweep", admin.TriggerSweep)
	}
}
