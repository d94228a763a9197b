package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	awspkg "github.com/yashrajoria/inventory-reservation-service/pkg/aws"
)

// MetricsMiddleware records request count, latency and error ranges to
// CloudWatch. It does nothing when metrics are disabled.
func MetricsMiddleware(metrics awspkg.MetricsRecorder, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil || !metrics.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		dims := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Path":    path,
			"Status":  statusCodeToRange(status),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = metrics.RecordCount(ctx, awspkg.MetricHTTPRequests, dims)
			_ = metrics.RecordLatency(ctx, awspkg.MetricHTTPLatency, duration, dims)
			switch {
			case status >= 500:
				_ = metrics.RecordCount(ctx, awspkg.MetricHTTPErrors, dims)
				_ = metrics.RecordCount(ctx, awspkg.MetricHTTP5xx, dims)
			case status >= 400:
				_ = metrics.RecordCount(ctx, awspkg.MetricHTTPErrors, dims)
				_ = metrics.RecordCount(ctx, awspkg.MetricHTTP4xx, dims)
			}
		}()
	}
}

func statusCodeToRange(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
