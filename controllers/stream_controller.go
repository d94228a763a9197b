package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/inventory-reservation-service/events"
)

const (
	streamBuffer     = 32
	defaultHeartbeat = 15 * time.Second
)

// StreamController pushes inventory events to browsers over Server-Sent
// Events. Delivery is at-most-once; clients re-fetch status on each event.
type StreamController struct {
	bus       *events.Bus
	heartbeat time.Duration
}

func NewStreamController(bus *events.Bus, heartbeat time.Duration) *StreamController {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &StreamController{bus: bus, heartbeat: heartbeat}
}

// Stream subscribes to one product's events, or all when product_id is empty
// GET /inventory/events/stream?product_id=
func (sc *StreamController) Stream(c *gin.Context) {
	productID := c.Query("product_id")
	sub := sc.bus.Subscribe(productID, streamBuffer)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("ready", gin.H{"product_id": productID})
	c.Writer.Flush()

	ticker := time.NewTicker(sc.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			c.SSEvent(string(evt.Type), evt)
			c.Writer.Flush()
		case t := <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": t.UTC()})
			c.Writer.Flush()
		}
	}
}
