package services

import (
	"context"
	"time"

	awspkg "github.com/yashrajoria/inventory-reservation-service/pkg/aws"
)

const metricsTimeout = 5 * time.Second

// recordValue ships a business metric in the background so CloudWatch
// latency never sits on the request path.
func recordValue(metrics awspkg.MetricsRecorder, name string, value int, dims map[string]string) {
	if metrics == nil || !metrics.IsEnabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsTimeout)
		defer cancel()
		_ = metrics.RecordValue(ctx, name, float64(value), dims)
	}()
}

func recordLatency(metrics awspkg.MetricsRecorder, name string, d time.Duration, dims map[string]string) {
	if metrics == nil || !metrics.IsEnabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsTimeout)
		defer cancel()
		_ = metrics.RecordLatency(ctx, name, d, dims)
	}()
}

func serviceDims() map[string]string {
	return map[string]string{"Service": ServiceName}
}

// ServiceName is used as the metrics and log service dimension.
const ServiceName = "inventory-reservation-service"
