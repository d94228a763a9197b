package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/inventory-reservation-service/logger"
	"go.uber.org/zap"
)

// RequestLogger emits one structured "http_request" line per request. The
// level follows the response status.
func RequestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		reqLog := logger.WithRequest(l, c)
		switch {
		case status >= 500:
			reqLog.Error("http_request", fields...)
		case status >= 400:
			reqLog.Warn("http_request", fields...)
		default:
			reqLog.Info("http_request", fields...)
		}
	}
}

// Timeout bounds the request context. Streaming routes should not use it.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
