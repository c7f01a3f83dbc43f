package aggregate

import "time"

type FPSStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P95 float64 `json:"p95"`
}

type MemoryStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Avg  float64 `json:"avg"`
	Peak float64 `json:"peak"`
}

type OperationStats struct {
	Count   int     `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
}

// QualitySection snapshots the control loop state observed while the
// window was open.
type QualitySection struct {
	Level         string `json:"level"`
	LevelChanges  int    `json:"level_changes"`
	Degradations  int    `json:"degradations"`
	Optimizations int    `json:"optimizations"`
}

// Overhead accounts what monitoring itself cost inside the window.
type Overhead struct {
	CollectionTime time.Duration `json:"collection_time"`
	ProcessingTime time.Duration `json:"processing_time"`
	SerializedSize int           `json:"serialized_size"`
	PercentImpact  float64       `json:"percent_impact"`
}

// Aggregated reduces one fixed time window of raw points into summary
// statistics.
type Aggregated struct {
	WindowStart time.Time                 `json:"window_start"`
	WindowEnd   time.Time                 `json:"window_end"`
	SampleCount int                       `json:"sample_count"`
	FPS         FPSStats                  `json:"fps"`
	Memory      MemoryStats               `json:"memory"`
	Operations  map[string]OperationStats `json:"operations,omitempty"`
	Quality     QualitySection            `json:"quality"`
	Overhead    Overhead                  `json:"overhead"`
}
