package export

import (
	"math"
	"sort"
	"time"

	"codeberg.org/mutker/perfctl/internal/metrics"
)

// Trend detection and health thresholds. Identical input always yields
// identical analysis output.
const (
	fpsDeclineDetect   = 1.0
	fpsDeclineModerate = 5.0
	fpsDeclineSevere   = 10.0

	memGrowthDetect   = 5.0
	memGrowthModerate = 20.0
	memGrowthSevere   = 50.0

	dropEnterFPS = 30.0
	dropExitFPS  = 45.0

	targetFPS      = 60.0
	memoryBudgetMB = 50.0

	slowestOperationsLimit = 5
)

type Trend struct {
	Detected bool    `json:"detected"`
	Change   float64 `json:"change"`
	Severity string  `json:"severity,omitempty"`
}

type OperationStat struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	MaxMs float64 `json:"max_ms"`
}

// DropInterval is a contiguous low frame rate stretch: entered below 30
// fps, extended while below 45.
type DropInterval struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	MinFPS  float64   `json:"min_fps"`
	Samples int       `json:"samples"`
}

type Analysis struct {
	AvgFPS            float64         `json:"avg_fps"`
	AvgMemoryMB       float64         `json:"avg_memory_mb"`
	FPSTrend          Trend           `json:"fps_trend"`
	MemoryTrend       Trend           `json:"memory_trend"`
	SlowestOperations []OperationStat `json:"slowest_operations,omitempty"`
	DropIntervals     []DropInterval  `json:"drop_intervals,omitempty"`
	Grade             string          `json:"grade"`
	HealthScore       int             `json:"health_score"`
	Recommendations   []string        `json:"recommendations,omitempty"`
}

// GenerateDetailedAnalysis reduces raw points into trends, bottlenecks
// and deterministic recommendations.
func GenerateDetailedAnalysis(raw []metrics.RawPoint) Analysis {
	points := append([]metrics.RawPoint(nil), raw...)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	var fpsPoints []metrics.RawPoint
	var fpsValues, memValues []float64
	ops := make(map[string]*OperationStat)

	for i := range points {
		p := &points[i]
		switch p.Type {
		case metrics.MetricFPS:
			fpsPoints = append(fpsPoints, *p)
			fpsValues = append(fpsValues, p.Value)
		case metrics.MetricMemory:
			memValues = append(memValues, p.Value)
		case metrics.MetricOperation:
			name, _ := p.Metadata["operation"].(string)
			if name == "" {
				name = "unnamed"
			}
			stat, ok := ops[name]
			if !ok {
				stat = &OperationStat{Name: name}
				ops[name] = stat
			}
			stat.Count++
			stat.AvgMs += p.Value // summed here, divided below
			if p.Value > stat.MaxMs {
				stat.MaxMs = p.Value
			}
		case metrics.MetricGPU, metrics.MetricNetwork:
		}
	}

	analysis := Analysis{
		AvgFPS:      average(fpsValues),
		AvgMemoryMB: average(memValues),
	}
	analysis.FPSTrend = detectFPSDecline(fpsValues)
	analysis.MemoryTrend = detectMemoryGrowth(memValues)
	analysis.SlowestOperations = rankOperations(ops)
	analysis.DropIntervals = findDropIntervals(fpsPoints)
	analysis.Grade = grade(analysis.AvgFPS, analysis.AvgMemoryMB)
	analysis.HealthScore = healthScore(analysis)
	analysis.Recommendations = recommend(analysis)

	return analysis
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// detectFPSDecline compares first-half and second-half averages of the
// sample window.
func detectFPSDecline(values []float64) Trend {
	if len(values) < 2 {
		return Trend{}
	}

	half := len(values) / 2
	decline := average(values[:half]) - average(values[half:])
	if decline <= fpsDeclineDetect {
		return Trend{Change: decline}
	}

	severity := "mild"
	switch {
	case decline > fpsDeclineSevere:
		severity = "severe"
	case decline > fpsDeclineModerate:
		severity = "moderate"
	}

	return Trend{Detected: true, Change: decline, Severity: severity}
}

func detectMemoryGrowth(values []float64) Trend {
	if len(values) < 2 {
		return Trend{}
	}

	half := len(values) / 2
	growth := average(values[half:]) - average(values[:half])
	if growth <= memGrowthDetect {
		return Trend{Change: growth}
	}

	severity := "mild"
	switch {
	case growth > memGrowthSevere:
		severity = "severe"
	case growth > memGrowthModerate:
		severity = "moderate"
	}

	return Trend{Detected: true, Change: growth, Severity: severity}
}

func rankOperations(ops map[string]*OperationStat) []OperationStat {
	out := make([]OperationStat, 0, len(ops))
	for _, stat := range ops {
		s := *stat
		s.AvgMs /= float64(s.Count)
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgMs != out[j].AvgMs {
			return out[i].AvgMs > out[j].AvgMs
		}
		return out[i].Name < out[j].Name
	})

	if len(out) > slowestOperationsLimit {
		out = out[:slowestOperationsLimit]
	}

	return out
}

func findDropIntervals(fps []metrics.RawPoint) []DropInterval {
	var intervals []DropInterval
	var current *DropInterval

	for i := range fps {
		p := &fps[i]
		switch {
		case current == nil && p.Value < dropEnterFPS:
			current = &DropInterval{
				Start:   p.Timestamp,
				End:     p.Timestamp,
				MinFPS:  p.Value,
				Samples: 1,
			}
		case current != nil && p.Value < dropExitFPS:
			current.End = p.Timestamp
			current.Samples++
			if p.Value < current.MinFPS {
				current.MinFPS = p.Value
			}
		case current != nil:
			intervals = append(intervals, *current)
			current = nil
		}
	}

	if current != nil {
		intervals = append(intervals, *current)
	}

	return intervals
}

// grade buckets a weighted fps/memory score into a letter.
func grade(avgFPS, avgMemoryMB float64) string {
	fpsScore := math.Min(1, avgFPS/targetFPS)

	memScore := 1.0
	if avgMemoryMB > memoryBudgetMB {
		memScore = math.Max(0, 1-(avgMemoryMB-memoryBudgetMB)/(4*memoryBudgetMB))
	}

	score := fpsScore*0.6 + memScore*0.4
	switch {
	case score >= 0.9:
		return "A"
	case score >= 0.8:
		return "B"
	case score >= 0.7:
		return "C"
	case score >= 0.6:
		return "D"
	default:
		return "F"
	}
}

// healthScore starts at 100 and subtracts proportional penalties for
// sub-target fps and over-budget memory, plus flat penalties for
// detected negative trends.
func healthScore(a Analysis) int {
	score := 100.0

	if a.AvgFPS < targetFPS {
		score -= (targetFPS - a.AvgFPS) / targetFPS * 40
	}
	if a.AvgMemoryMB > memoryBudgetMB {
		penalty := (a.AvgMemoryMB - memoryBudgetMB) / memoryBudgetMB * 15
		score -= math.Min(penalty, 30)
	}
	if a.FPSTrend.Detected {
		score -= 10
	}
	if a.MemoryTrend.Detected {
		score -= 10
	}

	if score < 0 {
		score = 0
	}

	return int(math.Round(score))
}

// recommend derives advice from the same thresholds as the analysis, so
// identical input always produces identical recommendations.
func recommend(a Analysis) []string {
	var recs []string

	if a.AvgFPS > 0 && a.AvgFPS < dropEnterFPS {
		recs = append(recs, "Frame rate is critically low; reduce animation complexity or disable decorative effects")
	} else if a.AvgFPS > 0 && a.AvgFPS < targetFPS-10 {
		recs = append(recs, "Frame rate is below target; consider lowering particle density")
	}
	if a.AvgMemoryMB > 2*memoryBudgetMB {
		recs = append(recs, "Memory usage is high; release cached frames and reduce buffer sizes")
	}
	if a.FPSTrend.Detected {
		recs = append(recs, "Frame rate is declining over the sample window; check for accumulating work per frame")
	}
	if a.MemoryTrend.Detected {
		recs = append(recs, "Memory is growing over the sample window; check for leaked references")
	}
	if len(a.DropIntervals) > 0 {
		recs = append(recs, "Contiguous frame drops detected; investigate the slowest operations listed")
	}

	return recs
}
