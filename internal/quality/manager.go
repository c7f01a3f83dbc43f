package quality

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"codeberg.org/mutker/perfctl/internal/profile"
	"codeberg.org/mutker/perfctl/internal/strategy"
)

const (
	defaultStabilityPeriod = 5 * time.Second

	historySize       = 30
	improveWindow     = 10
	improveMinSamples = 5
	goodFPS           = 55.0
	goodMemoryMB      = 100.0

	lowBatteryLevel = 20.0
)

type Config struct {
	StabilityPeriod time.Duration
	// TransitionScale compresses or stretches transition durations.
	// 1.0 keeps the distance-based defaults.
	TransitionScale float64
}

func DefaultConfig() Config {
	return Config{
		StabilityPeriod: defaultStabilityPeriod,
		TransitionScale: 1,
	}
}

// State is a read-only snapshot of the control loop.
type State struct {
	CurrentLevel         Level
	TargetLevel          Level
	IsTransitioning      bool
	ActiveStrategy       string
	AppliedOptimizations []string
	TransitionStart      time.Time
	Transition           TransitionConfig
	StabilityPeriod      time.Duration
}

type sample struct {
	fps      float64
	memoryMB float64
	at       time.Time
}

// Manager runs the quality control loop: it consumes metric updates,
// evaluates the active strategy and decides level transitions. It owns
// its state exclusively and only reads metric data.
type Manager struct {
	mu sync.Mutex

	cfg      Config
	profiler *profile.Profiler
	registry *strategy.Registry

	deviceProfile profile.Profile
	evaluator     *strategy.Evaluator

	state       State
	samples     []sample
	applied     []strategy.Optimization // insertion ordered
	appliedIDs  map[string]struct{}
	stableUntil time.Time
	transition  *transition

	levelChanges  int
	degradations  int
	optimizations int

	changeListeners  []func(ChangeEvent)
	stepListeners    []func(TransitionStepEvent)
	appliedListeners []func(OptimizationEvent)
	removedListeners []func(OptimizationEvent)

	initialized bool
	destroyed   bool
}

func NewManager(profiler *profile.Profiler, registry *strategy.Registry, cfg Config) *Manager {
	if cfg.StabilityPeriod <= 0 {
		cfg.StabilityPeriod = defaultStabilityPeriod
	}
	if cfg.TransitionScale <= 0 {
		cfg.TransitionScale = 1
	}

	return &Manager{
		cfg:        cfg,
		profiler:   profiler,
		registry:   registry,
		appliedIDs: make(map[string]struct{}),
	}
}

// Initialize profiles the device, selects the initial strategy and picks
// the starting quality level from the device class.
func (m *Manager) Initialize(ctx context.Context) error {
	errFactory := errors.New()

	prof, err := m.profiler.Detect(ctx)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitProfiler, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return errFactory.New(errors.ErrInvalidOperation)
	}
	if m.initialized {
		return nil
	}

	m.deviceProfile = prof
	strat := m.registry.Select(prof.Class, prof.Power)
	m.evaluator = strategy.NewEvaluator(strat)

	level := initialLevelFor(prof.Class)
	m.state = State{
		CurrentLevel:    level,
		TargetLevel:     level,
		ActiveStrategy:  strat.Name,
		StabilityPeriod: m.cfg.StabilityPeriod,
	}
	m.initialized = true

	logger.Info().
		Str("class", string(prof.Class)).
		Str("strategy", strat.Name).
		Str("level", level.String()).
		Msg("Quality manager initialized")

	return nil
}

func initialLevelFor(class profile.Class) Level {
	switch class {
	case profile.ClassPremium:
		return Highest
	case profile.ClassHighEnd:
		return High
	case profile.ClassMidRange:
		return Medium
	default:
		return Low
	}
}

// UpdateMetrics feeds one host-reported sample into the control loop. An
// optional battery level refreshes the power state and may re-select the
// active strategy before evaluation.
func (m *Manager) UpdateMetrics(fps, memoryMB float64, batteryLevel ...float64) {
	now := time.Now()

	m.mu.Lock()
	if !m.initialized || m.destroyed {
		m.mu.Unlock()
		return
	}

	m.samples = append(m.samples, sample{fps: fps, memoryMB: memoryMB, at: now})
	if len(m.samples) > historySize {
		m.samples = m.samples[len(m.samples)-historySize:]
	}

	if len(batteryLevel) > 0 {
		m.refreshPowerLocked(batteryLevel[0])
	}

	// Hysteresis: no evaluation while transitioning or inside the
	// stability window.
	if m.state.IsTransitioning || now.Before(m.stableUntil) {
		m.mu.Unlock()
		return
	}

	metricsIn := strategy.Metrics{FPS: fps, MemoryMB: memoryMB}
	var appliedEvents, removedEvents []OptimizationEvent

	if m.evaluator.ConditionsMet(metricsIn, now) {
		appliedEvents = m.degradeLocked(now)
	} else {
		removedEvents = m.improveLocked(now)
	}

	appliedListeners := append([]func(OptimizationEvent){}, m.appliedListeners...)
	removedListeners := append([]func(OptimizationEvent){}, m.removedListeners...)
	m.mu.Unlock()

	for _, ev := range appliedEvents {
		for _, fn := range appliedListeners {
			fn(ev)
		}
	}
	for _, ev := range removedEvents {
		for _, fn := range removedListeners {
			fn(ev)
		}
	}
}

func (m *Manager) refreshPowerLocked(batteryLevel float64) {
	power := m.deviceProfile.Power
	power.BatteryLevel = batteryLevel
	power.LowPower = batteryLevel <= lowBatteryLevel && !power.Charging
	m.deviceProfile.Power = power
	m.profiler.SetPower(power)

	strat := m.registry.Select(m.deviceProfile.Class, power)
	if strat.Name != m.state.ActiveStrategy {
		logger.Info().
			Str("old_strategy", m.state.ActiveStrategy).
			Str("new_strategy", strat.Name).
			Float64("battery", batteryLevel).
			Msg("Strategy re-selected")
		m.evaluator = strategy.NewEvaluator(strat)
		m.state.ActiveStrategy = strat.Name
	}
}

// degradeLocked applies the strategy's optimizations in descending
// priority order (each at most once) and steps the level down as a
// function of how many are applied.
func (m *Manager) degradeLocked(now time.Time) []OptimizationEvent {
	var events []OptimizationEvent

	for _, opt := range m.evaluator.Strategy().OptimizationsByPriority() {
		if _, ok := m.appliedIDs[opt.ID]; ok {
			continue
		}
		m.appliedIDs[opt.ID] = struct{}{}
		m.applied = append(m.applied, opt)
		m.optimizations++
		events = append(events, OptimizationEvent{Optimization: opt, Timestamp: now})

		logger.Debug().
			Str("optimization", opt.ID).
			Str("target", opt.Target).
			Int("priority", opt.Priority).
			Msg("Optimization applied")
	}

	// Level stepping heuristic preserved as-is: half the applied
	// optimization count, integer division.
	target := clampLevel(m.state.CurrentLevel - Level(len(m.applied)/2))
	if target != m.state.CurrentLevel {
		m.degradations++
		m.beginTransitionLocked(target, "performance degradation", now)
	}

	return events
}

// improveLocked runs only when the degrade path did not trigger: with
// enough healthy history and at least one applied optimization, it
// removes the oldest one and steps the level up by a single tier.
func (m *Manager) improveLocked(now time.Time) []OptimizationEvent {
	if len(m.samples) < improveMinSamples || len(m.applied) == 0 {
		return nil
	}

	avgFPS, avgMemory := m.recentAveragesLocked(improveWindow)
	if avgFPS <= goodFPS || avgMemory >= goodMemoryMB {
		return nil
	}

	oldest := m.applied[0]
	m.applied = m.applied[1:]
	delete(m.appliedIDs, oldest.ID)

	logger.Debug().
		Str("optimization", oldest.ID).
		Msg("Optimization removed")

	if m.state.CurrentLevel < Highest {
		m.beginTransitionLocked(m.state.CurrentLevel+1, "performance improvement", now)
	}

	return []OptimizationEvent{{Optimization: oldest, Timestamp: now}}
}

func (m *Manager) recentAveragesLocked(window int) (avgFPS, avgMemory float64) {
	n := len(m.samples)
	if n == 0 {
		return 0, 0
	}
	if window > n {
		window = n
	}

	recent := m.samples[n-window:]
	for i := range recent {
		avgFPS += recent[i].fps
		avgMemory += recent[i].memoryMB
	}

	return avgFPS / float64(window), avgMemory / float64(window)
}

// beginTransitionLocked starts a smooth transition. Caller holds the
// mutex and has verified no transition is active.
func (m *Manager) beginTransitionLocked(target Level, reason string, now time.Time) {
	cfg := transitionFor(levelDistance(m.state.CurrentLevel, target), m.cfg.TransitionScale)

	t := &transition{
		from:   m.state.CurrentLevel,
		to:     target,
		reason: reason,
		cfg:    cfg,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	m.state.TargetLevel = target
	m.state.IsTransitioning = true
	m.state.TransitionStart = now
	m.state.Transition = cfg
	m.transition = t

	logger.Debug().
		Str("from", t.from.String()).
		Str("to", target.String()).
		Str("reason", reason).
		Dur("duration", cfg.Duration).
		Int("steps", cfg.Steps).
		Str("easing", cfg.Easing.String()).
		Msg("Transition started")

	go m.runTransition(t)
}

// ForceLevel bypasses strategy evaluation but still runs through the
// transition engine. It is a no-op while a transition is active.
func (m *Manager) ForceLevel(level Level, reason string) {
	if !level.IsValid() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized || m.destroyed || m.state.IsTransitioning {
		return
	}
	if level == m.state.CurrentLevel {
		return
	}

	m.beginTransitionLocked(level, reason, time.Now())
}

func (m *Manager) CurrentLevel() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentLevel
}

func (m *Manager) DeviceProfile() profile.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceProfile
}

// StateSnapshot returns a copy of the control loop state.
func (m *Manager) StateSnapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.state
	state.AppliedOptimizations = make([]string, len(m.applied))
	for i := range m.applied {
		state.AppliedOptimizations[i] = m.applied[i].ID
	}

	return state
}

// Counters reports accumulated control loop activity for aggregation
// snapshots.
func (m *Manager) Counters() (level string, levelChanges, degradations, optimizations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentLevel.String(), m.levelChanges, m.degradations, m.optimizations
}

// Reset cancels any in-flight transition and restores the freshly
// initialized state for the profiled device.
func (m *Manager) Reset() {
	m.mu.Lock()
	if !m.initialized || m.destroyed {
		m.mu.Unlock()
		return
	}
	t := m.transition
	m.mu.Unlock()

	m.cancelTransition(t)

	m.mu.Lock()
	defer m.mu.Unlock()

	level := initialLevelFor(m.deviceProfile.Class)
	m.state.CurrentLevel = level
	m.state.TargetLevel = level
	m.state.IsTransitioning = false
	m.samples = nil
	m.applied = nil
	m.appliedIDs = make(map[string]struct{})
	m.stableUntil = time.Time{}
	if m.evaluator != nil {
		m.evaluator.Reset()
	}

	logger.Debug().Str("level", level.String()).Msg("Quality manager reset")
}

// Destroy tears the manager down. A pending step timer is cancelled and
// an in-flight transition is forced to immediate completion so state is
// never left half-applied.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.changeListeners = nil
	m.stepListeners = nil
	m.appliedListeners = nil
	m.removedListeners = nil
	t := m.transition
	m.mu.Unlock()

	m.cancelTransition(t)

	logger.Debug().Msg("Quality manager destroyed")
}

func (m *Manager) cancelTransition(t *transition) {
	if t == nil {
		return
	}

	t.cancel()
	<-t.done
}
