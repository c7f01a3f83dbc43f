package quality

import (
	"sync"
	"time"

	"codeberg.org/mutker/perfctl/internal/logger"
)

// TransitionConfig shapes one smooth level change.
type TransitionConfig struct {
	Duration  time.Duration
	Steps     int
	Easing    Easing
	Smoothing bool
}

// transitionFor scales the transition with the distance between levels:
// further apart means longer, more steps and a smoother curve. Scale
// compresses or stretches the duration without changing the step count.
func transitionFor(distance int, scale float64) TransitionConfig {
	var cfg TransitionConfig
	switch {
	case distance <= 1:
		cfg = TransitionConfig{Duration: 300 * time.Millisecond, Steps: 3, Easing: EaseOut, Smoothing: true}
	case distance == 2:
		cfg = TransitionConfig{Duration: 500 * time.Millisecond, Steps: 5, Easing: EaseInOut, Smoothing: true}
	default:
		cfg = TransitionConfig{Duration: 800 * time.Millisecond, Steps: 8, Easing: EaseSmoothstep, Smoothing: true}
	}

	if scale > 0 && scale != 1 {
		cfg.Duration = time.Duration(float64(cfg.Duration) * scale)
	}

	return cfg
}

type transition struct {
	from   Level
	to     Level
	reason string
	cfg    TransitionConfig
	stop   chan struct{}
	once   sync.Once // Reset and Destroy can race to cancel
	done   chan struct{}
}

func (t *transition) cancel() {
	t.once.Do(func() { close(t.stop) })
}

// run executes the timed step sequence. Each step emits an eased
// progress value; only the final step commits the new level. A close of
// stop forces immediate completion-state cleanup.
func (m *Manager) runTransition(t *transition) {
	defer close(t.done)

	stepInterval := t.cfg.Duration / time.Duration(t.cfg.Steps)
	timer := time.NewTimer(stepInterval)
	defer timer.Stop()

	for step := 1; step <= t.cfg.Steps; step++ {
		select {
		case <-t.stop:
			m.completeTransition(t, true)
			return
		case <-timer.C:
		}

		progress := ease(t.cfg.Easing, float64(step)/float64(t.cfg.Steps))

		if step < t.cfg.Steps {
			if t.cfg.Smoothing {
				m.emitStep(t, progress)
			}
			timer.Reset(stepInterval)
			continue
		}

		if t.cfg.Smoothing {
			m.emitStep(t, 1)
		}
		m.completeTransition(t, false)
	}
}

func (m *Manager) emitStep(t *transition, progress float64) {
	m.mu.Lock()
	listeners := append([]func(TransitionStepEvent){}, m.stepListeners...)
	m.mu.Unlock()

	ev := TransitionStepEvent{
		OldLevel:  t.from,
		NewLevel:  t.to,
		Progress:  progress,
		Timestamp: time.Now(),
	}
	for _, fn := range listeners {
		fn(ev)
	}
}

// completeTransition commits the target level, clears the transitioning
// flag and starts the stability period. Forced completion (destroy or
// reset mid-flight) commits silently so state is never left half-applied.
func (m *Manager) completeTransition(t *transition, forced bool) {
	now := time.Now()

	m.mu.Lock()
	if m.transition != t {
		m.mu.Unlock()
		return
	}

	old := m.state.CurrentLevel
	m.state.CurrentLevel = t.to
	m.state.TargetLevel = t.to
	m.state.IsTransitioning = false
	m.transition = nil
	m.stableUntil = now.Add(m.cfg.StabilityPeriod)
	m.levelChanges++
	if m.evaluator != nil {
		m.evaluator.Reset()
	}

	var listeners []func(ChangeEvent)
	if !forced {
		listeners = append(listeners, m.changeListeners...)
	}
	m.mu.Unlock()

	logger.Info().
		Str("old_level", old.String()).
		Str("new_level", t.to.String()).
		Str("reason", t.reason).
		Bool("forced", forced).
		Msg("Quality level changed")

	ev := ChangeEvent{OldLevel: t.from, NewLevel: t.to, Reason: t.reason, Timestamp: now}
	for _, fn := range listeners {
		fn(ev)
	}
}
