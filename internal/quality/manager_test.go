package quality_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/perfctl/internal/profile"
	"codeberg.org/mutker/perfctl/internal/quality"
	"codeberg.org/mutker/perfctl/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func midRangeProfile() profile.Profile {
	return profile.Profile{
		MemoryGB: 8,
		CPUCores: 4,
		GPU:      profile.GPUBasic,
		Display:  profile.Display{Width: 1920, Height: 1080, PixelRatio: 1},
		Power:    profile.Power{BatteryLevel: 90},
	}
}

func premiumProfile() profile.Profile {
	return profile.Profile{
		MemoryGB: 32,
		CPUCores: 16,
		GPU:      profile.GPUHigh,
		Display:  profile.Display{Width: 3840, Height: 2160, PixelRatio: 2},
		Power:    profile.Power{BatteryLevel: 90},
	}
}

func highEndProfile() profile.Profile {
	return profile.Profile{
		MemoryGB: 16,
		CPUCores: 8,
		GPU:      profile.GPUStandard,
		Display:  profile.Display{Width: 1920, Height: 1080, PixelRatio: 1},
		Power:    profile.Power{BatteryLevel: 90},
	}
}

func newTestManager(t *testing.T, p profile.Profile, stability time.Duration) *quality.Manager {
	t.Helper()

	mgr := quality.NewManager(profile.NewStatic(p), strategy.NewRegistry(), quality.Config{
		StabilityPeriod: stability,
		TransitionScale: 0.05, // keep test transitions short
	})
	require.NoError(t, mgr.Initialize(context.Background()))
	t.Cleanup(mgr.Destroy)

	return mgr
}

func waitSettled(t *testing.T, mgr *quality.Manager) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return !mgr.StateSnapshot().IsTransitioning
	}, time.Second, time.Millisecond, "Transition must complete")
}

func TestInitialLevelByClass(t *testing.T) {
	tests := []struct {
		name string
		p    profile.Profile
		want quality.Level
	}{
		{"premium", premiumProfile(), quality.Highest},
		{"high-end", highEndProfile(), quality.High},
		{"mid-range", midRangeProfile(), quality.Medium},
		{"low-end", profile.Profile{MemoryGB: 2, CPUCores: 2, Power: profile.Power{BatteryLevel: 90}}, quality.Low},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := newTestManager(t, tt.p, 50*time.Millisecond)
			assert.Equal(t, tt.want, mgr.CurrentLevel())
		})
	}
}

func TestDegradeAppliesOptimizationsOnce(t *testing.T) {
	mgr := newTestManager(t, midRangeProfile(), 50*time.Millisecond)

	var mu sync.Mutex
	var applied []string
	mgr.OnOptimizationApplied(func(ev quality.OptimizationEvent) {
		mu.Lock()
		applied = append(applied, ev.Optimization.ID)
		mu.Unlock()
	})

	mgr.UpdateMetrics(20, 250, 90)

	mu.Lock()
	require.Len(t, applied, 3, "All strategy optimizations apply on first breach")
	assert.Equal(t, "reduce-particle-density", applied[0], "Highest priority applies first")
	mu.Unlock()

	waitSettled(t, mgr)
	assert.Equal(t, quality.Low, mgr.CurrentLevel())
	time.Sleep(70 * time.Millisecond) // let the stability period lapse

	// A repeated breach must not re-apply anything.
	mgr.UpdateMetrics(20, 250, 90)

	mu.Lock()
	assert.Len(t, applied, 3, "Applied optimizations must not duplicate")
	mu.Unlock()
	assert.Equal(t, quality.Low, mgr.CurrentLevel())
	assert.Len(t, mgr.StateSnapshot().AppliedOptimizations, 3)
}

func TestHysteresisSuppressesEvaluation(t *testing.T) {
	mgr := newTestManager(t, midRangeProfile(), time.Second)

	mgr.UpdateMetrics(20, 250, 90)
	require.True(t, mgr.StateSnapshot().IsTransitioning)

	// Healthy metrics during the transition must not trigger recovery.
	for i := 0; i < 10; i++ {
		mgr.UpdateMetrics(59, 40, 90)
	}

	waitSettled(t, mgr)
	assert.Equal(t, quality.Low, mgr.CurrentLevel())

	// Still inside the stability period: more healthy metrics stay inert.
	for i := 0; i < 10; i++ {
		mgr.UpdateMetrics(59, 40, 90)
	}
	assert.Equal(t, quality.Low, mgr.CurrentLevel())
	assert.Len(t, mgr.StateSnapshot().AppliedOptimizations, 3)
}

func TestDegradeThenRecover(t *testing.T) {
	mgr := newTestManager(t, midRangeProfile(), 100*time.Millisecond)
	require.Equal(t, quality.Medium, mgr.CurrentLevel())

	var mu sync.Mutex
	var removed []string
	mgr.OnOptimizationRemoved(func(ev quality.OptimizationEvent) {
		mu.Lock()
		removed = append(removed, ev.Optimization.ID)
		mu.Unlock()
	})

	// Sustained poor performance: optimizations apply, level degrades.
	mgr.UpdateMetrics(20, 250, 90)
	waitSettled(t, mgr)
	require.Equal(t, quality.Low, mgr.CurrentLevel())
	time.Sleep(120 * time.Millisecond)

	// Sustained healthy performance: one optimization lifts, one tier back.
	for i := 0; i < 15; i++ {
		mgr.UpdateMetrics(59, 40, 90)
		time.Sleep(time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return mgr.CurrentLevel() == quality.Medium
	}, time.Second, time.Millisecond, "Recovery must step up exactly one tier")

	mu.Lock()
	assert.Equal(t, []string{"reduce-particle-density"}, removed, "The oldest applied optimization lifts first")
	mu.Unlock()
	assert.Len(t, mgr.StateSnapshot().AppliedOptimizations, 2)
}

func TestTransitionProgressMonotonic(t *testing.T) {
	mgr := newTestManager(t, highEndProfile(), 50*time.Millisecond)
	require.Equal(t, quality.High, mgr.CurrentLevel())

	var mu sync.Mutex
	var progress []float64
	mgr.OnTransitionStep(func(ev quality.TransitionStepEvent) {
		mu.Lock()
		progress = append(progress, ev.Progress)
		mu.Unlock()
	})

	mgr.ForceLevel(quality.Low, "test")
	require.True(t, mgr.StateSnapshot().IsTransitioning)
	assert.Equal(t, quality.High, mgr.CurrentLevel(), "Level holds until the transition commits")

	// A second request while transitioning is ignored.
	mgr.ForceLevel(quality.Highest, "test")

	waitSettled(t, mgr)
	assert.Equal(t, quality.Low, mgr.CurrentLevel())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, progress)
	prev := 0.0
	for _, p := range progress {
		assert.GreaterOrEqual(t, p, prev, "Progress must never move backwards")
		assert.LessOrEqual(t, p, 1.0)
		prev = p
	}
	assert.InDelta(t, 1.0, progress[len(progress)-1], 1e-9, "Final step reports full progress")
}

func TestBatteryOverride(t *testing.T) {
	mgr := newTestManager(t, premiumProfile(), 50*time.Millisecond)
	require.Equal(t, "premium-maximal", mgr.StateSnapshot().ActiveStrategy)

	// A critically low battery report re-selects the battery saver even
	// though the metrics themselves are healthy.
	mgr.UpdateMetrics(60, 50, 15)
	assert.Equal(t, strategy.BatterySaverName, mgr.StateSnapshot().ActiveStrategy)

	var mu sync.Mutex
	applied := 0
	mgr.OnOptimizationApplied(func(quality.OptimizationEvent) {
		mu.Lock()
		applied++
		mu.Unlock()
	})

	// 40 fps breaches the battery saver threshold immediately.
	mgr.UpdateMetrics(40, 50, 15)

	mu.Lock()
	assert.Equal(t, 4, applied, "Battery saver optimizations apply without persistence delay")
	mu.Unlock()

	waitSettled(t, mgr)
	assert.Equal(t, quality.Medium, mgr.CurrentLevel())
}

func TestBatteryRecoveryRestoresClassStrategy(t *testing.T) {
	mgr := newTestManager(t, premiumProfile(), 50*time.Millisecond)

	mgr.UpdateMetrics(60, 50, 15)
	require.Equal(t, strategy.BatterySaverName, mgr.StateSnapshot().ActiveStrategy)

	mgr.UpdateMetrics(60, 50, 85)
	assert.Equal(t, "premium-maximal", mgr.StateSnapshot().ActiveStrategy)
}

func TestForceLevel(t *testing.T) {
	mgr := newTestManager(t, midRangeProfile(), 50*time.Millisecond)

	var mu sync.Mutex
	var changes []quality.ChangeEvent
	mgr.OnQualityChange(func(ev quality.ChangeEvent) {
		mu.Lock()
		changes = append(changes, ev)
		mu.Unlock()
	})

	mgr.ForceLevel(quality.Highest, "user override")
	waitSettled(t, mgr)
	assert.Equal(t, quality.Highest, mgr.CurrentLevel())

	mu.Lock()
	require.Len(t, changes, 1)
	assert.Equal(t, quality.Medium, changes[0].OldLevel)
	assert.Equal(t, quality.Highest, changes[0].NewLevel)
	assert.Equal(t, "user override", changes[0].Reason)
	mu.Unlock()

	// Forcing the current level is a no-op.
	mgr.ForceLevel(quality.Highest, "again")
	assert.False(t, mgr.StateSnapshot().IsTransitioning)

	// Invalid levels are rejected.
	mgr.ForceLevel(quality.Level(99), "bogus")
	assert.False(t, mgr.StateSnapshot().IsTransitioning)
}

func TestDestroyMidTransition(t *testing.T) {
	mgr := quality.NewManager(profile.NewStatic(midRangeProfile()), strategy.NewRegistry(), quality.Config{
		StabilityPeriod: 50 * time.Millisecond,
		TransitionScale: 1, // full-length transition so Destroy lands mid-flight
	})
	require.NoError(t, mgr.Initialize(context.Background()))

	mgr.ForceLevel(quality.Highest, "test")
	require.True(t, mgr.StateSnapshot().IsTransitioning)

	mgr.Destroy()

	// Destroy forces the transition to complete so state is consistent.
	state := mgr.StateSnapshot()
	assert.False(t, state.IsTransitioning)
	assert.Equal(t, quality.Highest, state.CurrentLevel)

	// The manager is inert afterwards.
	mgr.UpdateMetrics(10, 500, 90)
	assert.False(t, mgr.StateSnapshot().IsTransitioning)
	mgr.Destroy() // second destroy is safe
}

func TestConcurrentResetAndDestroy(t *testing.T) {
	for i := 0; i < 25; i++ {
		mgr := quality.NewManager(profile.NewStatic(midRangeProfile()), strategy.NewRegistry(), quality.Config{
			StabilityPeriod: 50 * time.Millisecond,
			TransitionScale: 1, // long transition so cancellation races land mid-flight
		})
		require.NoError(t, mgr.Initialize(context.Background()))

		mgr.ForceLevel(quality.Highest, "test")
		require.True(t, mgr.StateSnapshot().IsTransitioning)

		// Reset and Destroy both cancel the in-flight transition; racing
		// them must not double-close its stop channel.
		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); mgr.Reset() }()
		go func() { defer wg.Done(); mgr.Reset() }()
		go func() { defer wg.Done(); mgr.Destroy() }()
		wg.Wait()

		assert.False(t, mgr.StateSnapshot().IsTransitioning)
	}
}

func TestReset(t *testing.T) {
	mgr := newTestManager(t, midRangeProfile(), 50*time.Millisecond)

	mgr.UpdateMetrics(20, 250, 90)
	waitSettled(t, mgr)
	require.Equal(t, quality.Low, mgr.CurrentLevel())
	require.NotEmpty(t, mgr.StateSnapshot().AppliedOptimizations)

	mgr.Reset()

	state := mgr.StateSnapshot()
	assert.Equal(t, quality.Medium, state.CurrentLevel, "Reset restores the class default level")
	assert.Empty(t, state.AppliedOptimizations)
	assert.False(t, state.IsTransitioning)
}

func TestUpdateBeforeInitialize(t *testing.T) {
	mgr := quality.NewManager(profile.NewStatic(midRangeProfile()), strategy.NewRegistry(), quality.DefaultConfig())

	// Must not panic or start anything.
	mgr.UpdateMetrics(20, 250)
	assert.False(t, mgr.StateSnapshot().IsTransitioning)

	mgr.Destroy()
	assert.Error(t, mgr.Initialize(context.Background()), "Initialize after Destroy must fail")
}
