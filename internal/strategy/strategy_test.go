package strategy_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/perfctl/internal/profile"
	"codeberg.org/mutker/perfctl/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectByClass(t *testing.T) {
	registry := strategy.NewRegistry()
	healthy := profile.Power{BatteryLevel: 90}

	tests := []struct {
		class profile.Class
		want  string
	}{
		{profile.ClassLowEnd, "low-end-conservative"},
		{profile.ClassMidRange, "mid-range-balanced"},
		{profile.ClassHighEnd, "high-end-performance"},
		{profile.ClassPremium, "premium-maximal"},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			s := registry.Select(tt.class, healthy)
			require.NotNil(t, s)
			assert.Equal(t, tt.want, s.Name)
		})
	}
}

func TestSelectBatteryOverride(t *testing.T) {
	registry := strategy.NewRegistry()

	// Critically low battery overrides even the premium class.
	s := registry.Select(profile.ClassPremium, profile.Power{BatteryLevel: 15})
	require.NotNil(t, s)
	assert.Equal(t, strategy.BatterySaverName, s.Name)

	// OS low-power mode overrides regardless of battery level.
	s = registry.Select(profile.ClassHighEnd, profile.Power{BatteryLevel: 80, LowPower: true})
	require.NotNil(t, s)
	assert.Equal(t, strategy.BatterySaverName, s.Name)

	// At the boundary the override still applies.
	s = registry.Select(profile.ClassMidRange, profile.Power{BatteryLevel: 20})
	require.NotNil(t, s)
	assert.Equal(t, strategy.BatterySaverName, s.Name)

	// Just above the boundary the class strategy wins.
	s = registry.Select(profile.ClassMidRange, profile.Power{BatteryLevel: 21})
	require.NotNil(t, s)
	assert.Equal(t, "mid-range-balanced", s.Name)
}

func TestSelectUnknownClass(t *testing.T) {
	registry := strategy.NewRegistry()

	s := registry.Select(profile.Class("experimental"), profile.Power{BatteryLevel: 90})
	require.NotNil(t, s)
	assert.Equal(t, strategy.BatterySaverName, s.Name)
}

func TestOptimizationsByPriority(t *testing.T) {
	registry := strategy.NewRegistry()
	s := registry.Get("low-end-conservative")
	require.NotNil(t, s)

	ordered := s.OptimizationsByPriority()
	require.Len(t, ordered, 4)
	for i := 1; i < len(ordered); i++ {
		assert.GreaterOrEqual(t, ordered[i-1].Priority, ordered[i].Priority,
			"Optimizations must come out in descending priority order")
	}

	// The source strategy is not mutated.
	assert.Equal(t, "reduce-particle-density", s.Optimizations[0].ID)
}

func TestConditionsMetOR(t *testing.T) {
	s := &strategy.Strategy{
		Name: "test",
		Conditions: []strategy.Condition{
			{Metric: strategy.MetricFPS, Comparator: strategy.CompareLT, Threshold: 30},
			{Metric: strategy.MetricMemory, Comparator: strategy.CompareGT, Threshold: 200},
		},
	}
	eval := strategy.NewEvaluator(s)
	now := time.Now()

	assert.False(t, eval.ConditionsMet(strategy.Metrics{FPS: 60, MemoryMB: 100}, now))
	assert.True(t, eval.ConditionsMet(strategy.Metrics{FPS: 20, MemoryMB: 100}, now), "FPS breach alone must trigger")
	assert.True(t, eval.ConditionsMet(strategy.Metrics{FPS: 60, MemoryMB: 250}, now), "Memory breach alone must trigger")
	assert.True(t, eval.ConditionsMet(strategy.Metrics{FPS: 20, MemoryMB: 250}, now))
}

func TestConditionsMetMinDuration(t *testing.T) {
	s := &strategy.Strategy{
		Name: "test",
		Conditions: []strategy.Condition{
			{Metric: strategy.MetricFPS, Comparator: strategy.CompareLT, Threshold: 30, MinDuration: 2 * time.Second},
		},
	}
	eval := strategy.NewEvaluator(s)
	base := time.Now()
	low := strategy.Metrics{FPS: 20}

	assert.False(t, eval.ConditionsMet(low, base), "A fresh breach must not trigger before MinDuration")
	assert.False(t, eval.ConditionsMet(low, base.Add(time.Second)))
	assert.True(t, eval.ConditionsMet(low, base.Add(2*time.Second)), "A persistent breach must trigger at MinDuration")

	// Recovery clears persistence, so the next breach starts over.
	assert.False(t, eval.ConditionsMet(strategy.Metrics{FPS: 60}, base.Add(3*time.Second)))
	assert.False(t, eval.ConditionsMet(low, base.Add(4*time.Second)))
	assert.True(t, eval.ConditionsMet(low, base.Add(6*time.Second)))
}

func TestEvaluatorReset(t *testing.T) {
	s := &strategy.Strategy{
		Name: "test",
		Conditions: []strategy.Condition{
			{Metric: strategy.MetricFPS, Comparator: strategy.CompareLT, Threshold: 30, MinDuration: time.Second},
		},
	}
	eval := strategy.NewEvaluator(s)
	base := time.Now()
	low := strategy.Metrics{FPS: 20}

	assert.False(t, eval.ConditionsMet(low, base))
	eval.Reset()
	assert.False(t, eval.ConditionsMet(low, base.Add(time.Second)), "Reset must restart persistence tracking")
	assert.True(t, eval.ConditionsMet(low, base.Add(2*time.Second)))
}

func TestCatalogShape(t *testing.T) {
	registry := strategy.NewRegistry()

	for _, s := range registry.All() {
		assert.NotEmpty(t, s.Name)
		assert.NotEmpty(t, s.Version)
		assert.NotEmpty(t, s.TargetClasses, "Strategy %s must target at least one class", s.Name)
		assert.NotEmpty(t, s.Conditions, "Strategy %s must have trigger conditions", s.Name)
		assert.NotEmpty(t, s.Optimizations, "Strategy %s must have optimizations", s.Name)

		for _, opt := range s.Optimizations {
			assert.NotEmpty(t, opt.ID)
			assert.GreaterOrEqual(t, opt.Priority, 1, "Optimization %s priority out of range", opt.ID)
			assert.LessOrEqual(t, opt.Priority, 10, "Optimization %s priority out of range", opt.ID)
		}
	}
}
