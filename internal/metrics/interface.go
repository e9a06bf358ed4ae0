package metrics

import (
	"context"
	"time"
)

// MetricsCollector defines the core domain interface
type MetricsCollector interface {
	Record(ctx context.Context, snapshot *MetricsSnapshot) error
	Close() error
}

// MetricsRepository defines the interface for metrics data storage
type MetricsRepository interface {
	Record(snapshot *MetricsSnapshot) error
	Close() error
}

// MetricsSnapshot is one telemetry attempt as seen by the device.
type MetricsSnapshot struct {
	Timestamp time.Time
	Serial    string
	Reading   ReadingMetrics
	State     StateMetrics
	Result    string
}

type ReadingMetrics struct {
	Temperature float64
	Humidity    *float64
}

type StateMetrics struct {
	Connected     bool
	UploadEnabled bool
}
