package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/perfctl/internal/aggregate"
	"codeberg.org/mutker/perfctl/internal/metrics"
	"github.com/google/uuid"
)

// Format selects the export serialization. Selection is always explicit,
// never inferred.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMetrics Format = "metrics"
	FormatTable   Format = "table"
	FormatSummary Format = "summary"
)

type Options struct {
	Format Format
	From   time.Time // zero = unbounded
	To     time.Time // zero = unbounded
}

type Result struct {
	Success    bool          `json:"success"`
	Format     Format        `json:"format"`
	FileName   string        `json:"file_name"`
	Data       []byte        `json:"-"`
	Size       int           `json:"size"`
	DataPoints int           `json:"data_points"`
	ExportTime time.Duration `json:"export_time"`
	Error      string        `json:"error,omitempty"`
}

// Envelope is the JSON export artifact.
type Envelope struct {
	ExportedAt time.Time              `json:"exported_at"`
	Raw        []metrics.RawPoint     `json:"raw"`
	Aggregated []aggregate.Aggregated `json:"aggregated"`
}

// Export serializes raw and aggregated data into the requested format.
// Failures are returned in the result, never raised, so callers can
// always branch on the result shape.
func Export(raw []metrics.RawPoint, aggregated []aggregate.Aggregated, opts Options) Result {
	start := time.Now()

	raw = filterRaw(raw, opts.From, opts.To)
	aggregated = filterAggregated(aggregated, opts.From, opts.To)

	var (
		data []byte
		ext  string
		err  error
	)

	switch opts.Format {
	case FormatJSON:
		data, err = renderJSON(raw, aggregated)
		ext = "json"
	case FormatMetrics:
		data = renderMetrics(aggregated)
		ext = "txt"
	case FormatTable:
		data = renderTable(raw)
		ext = "txt"
	case FormatSummary:
		data = renderSummary(raw, aggregated)
		ext = "txt"
	default:
		err = fmt.Errorf("unsupported export format: %q", opts.Format)
	}

	if err != nil {
		return Result{
			Success:    false,
			Format:     opts.Format,
			ExportTime: time.Since(start),
			Error:      err.Error(),
		}
	}

	return Result{
		Success:    true,
		Format:     opts.Format,
		FileName:   fmt.Sprintf("perfctl-export-%s.%s", uuid.NewString(), ext),
		Data:       data,
		Size:       len(data),
		DataPoints: len(raw) + len(aggregated),
		ExportTime: time.Since(start),
	}
}

func filterRaw(raw []metrics.RawPoint, from, to time.Time) []metrics.RawPoint {
	if from.IsZero() && to.IsZero() {
		return raw
	}

	out := make([]metrics.RawPoint, 0, len(raw))
	for i := range raw {
		ts := raw[i].Timestamp
		if !from.IsZero() && ts.Before(from) {
			continue
		}
		if !to.IsZero() && ts.After(to) {
			continue
		}
		out = append(out, raw[i])
	}

	return out
}

func filterAggregated(aggs []aggregate.Aggregated, from, to time.Time) []aggregate.Aggregated {
	if from.IsZero() && to.IsZero() {
		return aggs
	}

	out := make([]aggregate.Aggregated, 0, len(aggs))
	for i := range aggs {
		if !from.IsZero() && aggs[i].WindowEnd.Before(from) {
			continue
		}
		if !to.IsZero() && aggs[i].WindowStart.After(to) {
			continue
		}
		out = append(out, aggs[i])
	}

	return out
}

func renderJSON(raw []metrics.RawPoint, aggregated []aggregate.Aggregated) ([]byte, error) {
	env := Envelope{
		ExportedAt: time.Now(),
		Raw:        raw,
		Aggregated: aggregated,
	}
	if env.Raw == nil {
		env.Raw = []metrics.RawPoint{}
	}
	if env.Aggregated == nil {
		env.Aggregated = []aggregate.Aggregated{}
	}

	return json.MarshalIndent(env, "", "  ")
}

// renderMetrics emits a structured key/value block per aggregated window.
func renderMetrics(aggregated []aggregate.Aggregated) []byte {
	var b strings.Builder

	for i := range aggregated {
		agg := &aggregated[i]
		fmt.Fprintf(&b, "window.start %s\n", agg.WindowStart.Format(time.RFC3339))
		fmt.Fprintf(&b, "window.samples %d\n", agg.SampleCount)
		fmt.Fprintf(&b, "fps.min %.2f\n", agg.FPS.Min)
		fmt.Fprintf(&b, "fps.max %.2f\n", agg.FPS.Max)
		fmt.Fprintf(&b, "fps.avg %.2f\n", agg.FPS.Avg)
		fmt.Fprintf(&b, "fps.p95 %.2f\n", agg.FPS.P95)
		fmt.Fprintf(&b, "memory.min %.2f\n", agg.Memory.Min)
		fmt.Fprintf(&b, "memory.max %.2f\n", agg.Memory.Max)
		fmt.Fprintf(&b, "memory.avg %.2f\n", agg.Memory.Avg)
		fmt.Fprintf(&b, "memory.peak %.2f\n", agg.Memory.Peak)
		fmt.Fprintf(&b, "quality.level %s\n", agg.Quality.Level)
		fmt.Fprintf(&b, "quality.level_changes %d\n", agg.Quality.LevelChanges)
		fmt.Fprintf(&b, "overhead.percent %.4f\n", agg.Overhead.PercentImpact)

		names := make([]string, 0, len(agg.Operations))
		for name := range agg.Operations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			op := agg.Operations[name]
			fmt.Fprintf(&b, "operation.%s.count %d\n", name, op.Count)
			fmt.Fprintf(&b, "operation.%s.avg_ms %.2f\n", name, op.AvgMs)
		}
		b.WriteString("\n")
	}

	return []byte(b.String())
}

// renderTable emits one row per raw point.
func renderTable(raw []metrics.RawPoint) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "%-30s %-10s %12s %14s\n", "TIMESTAMP", "TYPE", "VALUE", "OVERHEAD_US")
	for i := range raw {
		p := &raw[i]
		fmt.Fprintf(&b, "%-30s %-10s %12.3f %14d\n",
			p.Timestamp.Format(time.RFC3339Nano),
			p.Type,
			p.Value,
			p.CollectionOverhead.Microseconds(),
		)
	}

	return []byte(b.String())
}

func renderSummary(raw []metrics.RawPoint, aggregated []aggregate.Aggregated) []byte {
	analysis := GenerateDetailedAnalysis(raw)

	var b strings.Builder
	fmt.Fprintf(&b, "Performance summary (%d raw points, %d windows)\n\n", len(raw), len(aggregated))
	fmt.Fprintf(&b, "Average FPS: %.1f\n", analysis.AvgFPS)
	fmt.Fprintf(&b, "Average memory: %.1f MB\n", analysis.AvgMemoryMB)
	fmt.Fprintf(&b, "Performance grade: %s\n", analysis.Grade)
	fmt.Fprintf(&b, "Health score: %d/100\n", analysis.HealthScore)

	if analysis.FPSTrend.Detected {
		fmt.Fprintf(&b, "FPS declining: %.1f fps (%s)\n", analysis.FPSTrend.Change, analysis.FPSTrend.Severity)
	}
	if analysis.MemoryTrend.Detected {
		fmt.Fprintf(&b, "Memory growing: %.1f MB (%s)\n", analysis.MemoryTrend.Change, analysis.MemoryTrend.Severity)
	}
	if len(analysis.DropIntervals) > 0 {
		fmt.Fprintf(&b, "Frame rate drops: %d interval(s)\n", len(analysis.DropIntervals))
	}
	if len(analysis.SlowestOperations) > 0 {
		b.WriteString("\nSlowest operations:\n")
		for _, op := range analysis.SlowestOperations {
			fmt.Fprintf(&b, "  %s: %.1f ms avg over %d call(s)\n", op.Name, op.AvgMs, op.Count)
		}
	}
	if len(analysis.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range analysis.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}

	return []byte(b.String())
}
