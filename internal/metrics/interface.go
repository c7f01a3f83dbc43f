package metrics

import "time"

// MetricType tags a raw data point
type MetricType string

const (
	MetricFPS       MetricType = "fps"
	MetricMemory    MetricType = "memory"
	MetricGPU       MetricType = "gpu"
	MetricNetwork   MetricType = "network"
	MetricOperation MetricType = "operation"
)

// RawPoint is one immutable performance observation. CollectionOverhead
// records what collecting this very point cost, so monitoring expense is
// self-accounted.
type RawPoint struct {
	Timestamp          time.Time      `json:"timestamp"`
	Type               MetricType     `json:"type"`
	Value              float64        `json:"value"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	SessionID          string         `json:"session_id"`
	CollectionOverhead time.Duration  `json:"collection_overhead"`
}

// Sink receives batches of raw points for asynchronous aggregation.
// Enqueue must never block the sampler; Flush processes synchronously.
type Sink interface {
	Enqueue(points []RawPoint)
	Flush()
}
