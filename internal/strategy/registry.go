package strategy

import (
	"time"

	"codeberg.org/mutker/perfctl/internal/profile"
)

// Battery-critical threshold for the universal override.
const criticalBatteryLevel = 20

const BatterySaverName = "battery-saver"

// Registry holds the fixed strategy catalog.
type Registry struct {
	strategies []*Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: catalog()}
}

// Select matches a strategy in priority order: universal battery
// overrides first (critically low battery or OS low-power mode pick the
// battery saver regardless of class), then device class. Exactly one
// strategy is active at a time.
func (r *Registry) Select(class profile.Class, power profile.Power) *Strategy {
	if power.LowPower || power.BatteryLevel <= criticalBatteryLevel {
		if s := r.Get(BatterySaverName); s != nil {
			return s
		}
	}

	for _, s := range r.strategies {
		if s.Name == BatterySaverName {
			continue
		}
		if s.targets(class) {
			return s
		}
	}

	// Unknown class degrades to the most conservative policy.
	return r.Get(BatterySaverName)
}

func (r *Registry) Get(name string) *Strategy {
	for _, s := range r.strategies {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (r *Registry) All() []*Strategy {
	return append([]*Strategy(nil), r.strategies...)
}

func catalog() []*Strategy {
	return []*Strategy{
		{
			Name:    BatterySaverName,
			Version: "1.0",
			TargetClasses: []profile.Class{
				profile.ClassLowEnd, profile.ClassMidRange, profile.ClassHighEnd, profile.ClassPremium,
			},
			Conditions: []Condition{
				{Metric: MetricFPS, Comparator: CompareLT, Threshold: 45},
				{Metric: MetricMemory, Comparator: CompareGT, Threshold: 150},
			},
			Optimizations: []Optimization{
				{ID: "disable-ambient-animations", Type: DisableFeature, Target: "ambient", Reversible: true, Priority: 10},
				{ID: "throttle-sampling", Type: Throttle, Target: "sampler", Params: map[string]any{"factor": 2}, Reversible: true, Priority: 9},
				{ID: "reduce-particle-density", Type: ReduceComplexity, Target: "particles", Params: map[string]any{"scale": 0.25}, Reversible: true, Priority: 8},
				{ID: "disable-motion-blur", Type: DisableFeature, Target: "blur", Reversible: true, Priority: 7},
			},
		},
		{
			Name:          "low-end-conservative",
			Version:       "1.0",
			TargetClasses: []profile.Class{profile.ClassLowEnd},
			Conditions: []Condition{
				{Metric: MetricFPS, Comparator: CompareLT, Threshold: 25},
				{Metric: MetricMemory, Comparator: CompareGT, Threshold: 150},
			},
			Optimizations: []Optimization{
				{ID: "reduce-particle-density", Type: ReduceComplexity, Target: "particles", Params: map[string]any{"scale": 0.25}, Reversible: true, Priority: 9},
				{ID: "disable-motion-blur", Type: DisableFeature, Target: "blur", Reversible: true, Priority: 8},
				{ID: "throttle-effect-updates", Type: Throttle, Target: "effects", Params: map[string]any{"factor": 3}, Reversible: true, Priority: 7},
				{ID: "disable-parallax", Type: DisableFeature, Target: "parallax", Reversible: false, Priority: 5},
			},
		},
		{
			Name:          "mid-range-balanced",
			Version:       "1.0",
			TargetClasses: []profile.Class{profile.ClassMidRange},
			Conditions: []Condition{
				{Metric: MetricFPS, Comparator: CompareLT, Threshold: 30},
				{Metric: MetricMemory, Comparator: CompareGT, Threshold: 200},
			},
			Optimizations: []Optimization{
				{ID: "reduce-particle-density", Type: ReduceComplexity, Target: "particles", Params: map[string]any{"scale": 0.5}, Reversible: true, Priority: 8},
				{ID: "throttle-effect-updates", Type: Throttle, Target: "effects", Params: map[string]any{"factor": 2}, Reversible: true, Priority: 6},
				{ID: "disable-motion-blur", Type: DisableFeature, Target: "blur", Reversible: true, Priority: 4},
			},
		},
		{
			Name:          "high-end-performance",
			Version:       "1.0",
			TargetClasses: []profile.Class{profile.ClassHighEnd},
			Conditions: []Condition{
				{Metric: MetricFPS, Comparator: CompareLT, Threshold: 40, MinDuration: 2 * time.Second},
				{Metric: MetricMemory, Comparator: CompareGT, Threshold: 300},
			},
			Optimizations: []Optimization{
				{ID: "reduce-shadow-quality", Type: ReduceComplexity, Target: "shadows", Params: map[string]any{"scale": 0.5}, Reversible: true, Priority: 7},
				{ID: "throttle-background-effects", Type: Throttle, Target: "background", Params: map[string]any{"factor": 2}, Reversible: true, Priority: 5},
			},
		},
		{
			Name:          "premium-maximal",
			Version:       "1.0",
			TargetClasses: []profile.Class{profile.ClassPremium},
			Conditions: []Condition{
				{Metric: MetricFPS, Comparator: CompareLT, Threshold: 50, MinDuration: 3 * time.Second},
				{Metric: MetricMemory, Comparator: CompareGT, Threshold: 400},
			},
			Optimizations: []Optimization{
				{ID: "reduce-supersampling", Type: ReduceComplexity, Target: "render-scale", Params: map[string]any{"scale": 0.75}, Reversible: true, Priority: 6},
				{ID: "throttle-parallax-layers", Type: Throttle, Target: "parallax", Params: map[string]any{"factor": 2}, Reversible: true, Priority: 4},
			},
		},
	}
}
