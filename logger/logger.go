package logger

import (
	"io"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process logger, set by Initialize.
var Log = zap.NewNop()

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

const RequestIDHeader = "X-Request-ID"

// Initialize builds the logger for env without a remote sink.
func Initialize(env string) (*zap.Logger, error) {
	return InitializeWithWriter(env, nil)
}

// InitializeWithWriter builds the logger for env. When remote is non-nil
// (e.g. the CloudWatch Logs writer) every entry is also encoded as JSON and
// written to it.
func InitializeWithWriter(env string, remote io.Writer) (*zap.Logger, error) {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if remote == nil {
		l, err := config.Build(zap.Fields(zap.String("service", "inventory-reservation-service")))
		if err != nil {
			return nil, err
		}
		Log = l
		return l, nil
	}

	level := zap.NewAtomicLevelAt(config.Level.Level())
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(config.EncoderConfig), zapcore.AddSync(os.Stdout), level)

	jsonConfig := config.EncoderConfig
	jsonConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	remoteCore := zapcore.NewCore(zapcore.NewJSONEncoder(jsonConfig), zapcore.AddSync(remote), level)

	Log = zap.New(zapcore.NewTee(consoleCore, remoteCore),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service", "inventory-reservation-service")),
	)
	return Log, nil
}

// RequestID assigns a request ID, reusing an inbound X-Request-ID, and echoes
// it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// WithRequest returns l annotated with the request ID of c, if any.
func WithRequest(l *zap.Logger, c *gin.Context) *zap.Logger {
	if rid := c.GetString(RequestIDKey); rid != "" {
		return l.With(zap.String("request_id", rid))
	}
	return l
}
