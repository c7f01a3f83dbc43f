package telemetry

import (
	"context"
	"time"
)

// Collector persists control loop snapshots.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Repository is the storage backend for snapshots.
type Repository interface {
	Store(snapshot *Snapshot) error
	Close() error
}

// Snapshot captures one control loop interval.
type Snapshot struct {
	Timestamp     time.Time
	FPS           float64
	MemoryMB      float64
	Level         string
	TargetLevel   string
	Transitioning bool
	Optimizations int
	Strategy      string
}
