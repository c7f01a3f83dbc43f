package strategy

import (
	"sort"
	"time"

	"codeberg.org/mutker/perfctl/internal/profile"
)

type Metric string

const (
	MetricFPS    Metric = "fps"
	MetricMemory Metric = "memory"
)

type Comparator string

const (
	CompareGT  Comparator = "gt"
	CompareLT  Comparator = "lt"
	CompareGTE Comparator = "gte"
	CompareLTE Comparator = "lte"
)

// Condition triggers optimization evaluation when a metric crosses a
// threshold, optionally requiring the breach to persist for MinDuration.
type Condition struct {
	Metric      Metric
	Comparator  Comparator
	Threshold   float64
	MinDuration time.Duration
}

type OptimizationType string

const (
	ReduceComplexity OptimizationType = "reduce-complexity"
	DisableFeature   OptimizationType = "disable-feature"
	Throttle         OptimizationType = "throttle"
)

// Optimization is one reversible or irreversible relief action.
type Optimization struct {
	ID         string
	Type       OptimizationType
	Target     string
	Params     map[string]any
	Reversible bool
	Priority   int // 1-10, higher applied first
}

// Strategy is a named, versioned policy bundle. Strategies are static
// configuration: loaded once, never mutated at runtime.
type Strategy struct {
	Name          string
	Version       string
	TargetClasses []profile.Class
	Conditions    []Condition
	Optimizations []Optimization
}

// OptimizationsByPriority returns the optimizations in descending
// priority order without mutating the strategy.
func (s *Strategy) OptimizationsByPriority() []Optimization {
	out := append([]Optimization(nil), s.Optimizations...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

func (s *Strategy) targets(class profile.Class) bool {
	for _, c := range s.TargetClasses {
		if c == class {
			return true
		}
	}
	return false
}

// Metrics is the condition evaluation input.
type Metrics struct {
	FPS      float64
	MemoryMB float64
}

func (c *Condition) value(m Metrics) float64 {
	switch c.Metric {
	case MetricMemory:
		return m.MemoryMB
	default:
		return m.FPS
	}
}

func (c *Condition) breached(m Metrics) bool {
	v := c.value(m)
	switch c.Comparator {
	case CompareGT:
		return v > c.Threshold
	case CompareLT:
		return v < c.Threshold
	case CompareGTE:
		return v >= c.Threshold
	case CompareLTE:
		return v <= c.Threshold
	default:
		return false
	}
}

// Evaluator tracks per-condition persistence for one active strategy.
type Evaluator struct {
	strategy *Strategy
	since    []time.Time
}

func NewEvaluator(s *Strategy) *Evaluator {
	return &Evaluator{
		strategy: s,
		since:    make([]time.Time, len(s.Conditions)),
	}
}

func (e *Evaluator) Strategy() *Strategy {
	return e.strategy
}

// ConditionsMet is a logical OR across the strategy's conditions: any
// single condition holding (for its MinDuration, where set) triggers
// optimization evaluation.
func (e *Evaluator) ConditionsMet(m Metrics, now time.Time) bool {
	met := false
	for i := range e.strategy.Conditions {
		cond := &e.strategy.Conditions[i]
		if !cond.breached(m) {
			e.since[i] = time.Time{}
			continue
		}

		if e.since[i].IsZero() {
			e.since[i] = now
		}
		if now.Sub(e.since[i]) >= cond.MinDuration {
			met = true
		}
	}

	return met
}

// Reset clears persistence tracking, e.g. after a quality transition.
func (e *Evaluator) Reset() {
	for i := range e.since {
		e.since[i] = time.Time{}
	}
}
