package quality

import (
	"time"

	"codeberg.org/mutker/perfctl/internal/strategy"
)

// ChangeEvent notifies a committed quality level change.
type ChangeEvent struct {
	OldLevel  Level
	NewLevel  Level
	Reason    string
	Timestamp time.Time
}

// TransitionStepEvent notifies intermediate progress during a smooth
// transition so consumers can blend instead of popping between levels.
type TransitionStepEvent struct {
	OldLevel  Level
	NewLevel  Level
	Progress  float64
	Timestamp time.Time
}

// OptimizationEvent notifies an optimization being applied or removed.
type OptimizationEvent struct {
	Optimization strategy.Optimization
	Timestamp    time.Time
}

// OnQualityChange registers a listener for committed level changes.
func (m *Manager) OnQualityChange(fn func(ChangeEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeListeners = append(m.changeListeners, fn)
}

// OnTransitionStep registers a listener for intermediate transition steps.
func (m *Manager) OnTransitionStep(fn func(TransitionStepEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepListeners = append(m.stepListeners, fn)
}

// OnOptimizationApplied registers a listener for applied optimizations.
func (m *Manager) OnOptimizationApplied(fn func(OptimizationEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appliedListeners = append(m.appliedListeners, fn)
}

// OnOptimizationRemoved registers a listener for removed optimizations.
func (m *Manager) OnOptimizationRemoved(fn func(OptimizationEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removedListeners = append(m.removedListeners, fn)
}
