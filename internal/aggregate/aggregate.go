package aggregate

import (
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"codeberg.org/mutker/perfctl/internal/logger"
	"codeberg.org/mutker/perfctl/internal/metrics"
)

const (
	defaultWindow     = 5 * time.Second
	defaultMaxWindows = 100
)

type Config struct {
	Window     time.Duration
	MaxWindows int
}

func DefaultConfig() Config {
	return Config{
		Window:     defaultWindow,
		MaxWindows: defaultMaxWindows,
	}
}

// windowAccum accumulates the raw values of one open window so its
// statistics can be recomputed as later batches land in it.
type windowAccum struct {
	fps        []float64
	memory     []float64
	operations map[string]*OperationStats
	samples    int
	collection time.Duration
	processing time.Duration
}

// Aggregator groups raw points into fixed time windows and reduces each
// into an Aggregated record. Processing passes run asynchronously and
// never concurrently: while one is in flight, queued data waits.
type Aggregator struct {
	cfg Config

	mu         sync.Mutex
	idle       *sync.Cond // signalled when an async pass finishes
	queue      []metrics.RawPoint
	accums     map[int64]*windowAccum
	order      []int64 // insertion order, for oldest-first eviction
	reduced    map[int64]Aggregated
	processing bool
	qualityFn  func() QualitySection
}

func New(cfg Config) *Aggregator {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.MaxWindows <= 0 {
		cfg.MaxWindows = defaultMaxWindows
	}

	a := &Aggregator{
		cfg:     cfg,
		accums:  make(map[int64]*windowAccum),
		reduced: make(map[int64]Aggregated),
	}
	a.idle = sync.NewCond(&a.mu)

	return a
}

// SetQualitySource registers the callback that snapshots control loop
// state into each produced window.
func (a *Aggregator) SetQualitySource(fn func() QualitySection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.qualityFn = fn
}

// Enqueue hands a batch over for asynchronous processing. It never
// blocks on the processing itself.
func (a *Aggregator) Enqueue(points []metrics.RawPoint) {
	if len(points) == 0 {
		return
	}

	a.mu.Lock()
	a.queue = append(a.queue, points...)
	start := !a.processing
	if start {
		a.processing = true
	}
	a.mu.Unlock()

	if start {
		go a.run()
	}
}

func (a *Aggregator) run() {
	for {
		a.mu.Lock()
		if len(a.queue) == 0 {
			a.processing = false
			a.idle.Broadcast()
			a.mu.Unlock()
			return
		}
		batch := a.queue
		a.queue = nil
		a.mu.Unlock()

		a.process(batch)
	}
}

// Flush drains any queued points synchronously and waits out an async
// pass already in flight, so completed data is visible on return.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	batch := a.queue
	a.queue = nil
	a.mu.Unlock()

	if len(batch) > 0 {
		a.process(batch)
	}

	a.mu.Lock()
	for a.processing {
		a.idle.Wait()
	}
	a.mu.Unlock()
}

func (a *Aggregator) windowKey(ts time.Time) int64 {
	windowMs := a.cfg.Window.Milliseconds()
	return ts.UnixMilli() / windowMs * windowMs
}

func (a *Aggregator) process(batch []metrics.RawPoint) {
	start := time.Now()
	touched := make(map[int64]struct{})

	a.mu.Lock()
	for i := range batch {
		p := &batch[i]
		key := a.windowKey(p.Timestamp)
		acc, ok := a.accums[key]
		if !ok {
			acc = &windowAccum{operations: make(map[string]*OperationStats)}
			a.accums[key] = acc
			a.order = append(a.order, key)
		}

		acc.samples++
		acc.collection += p.CollectionOverhead

		switch p.Type {
		case metrics.MetricFPS:
			acc.fps = append(acc.fps, p.Value)
		case metrics.MetricMemory:
			acc.memory = append(acc.memory, p.Value)
		case metrics.MetricOperation:
			name, _ := p.Metadata["operation"].(string)
			if name == "" {
				name = "unnamed"
			}
			op, ok := acc.operations[name]
			if !ok {
				op = &OperationStats{}
				acc.operations[name] = op
			}
			op.Count++
			op.TotalMs += p.Value
			op.AvgMs = op.TotalMs / float64(op.Count)
			if p.Value > op.MaxMs {
				op.MaxMs = p.Value
			}
		case metrics.MetricGPU, metrics.MetricNetwork:
			// Presence probes carry no window statistics.
		}

		touched[key] = struct{}{}
	}

	quality := QualitySection{}
	if a.qualityFn != nil {
		quality = a.qualityFn()
	}

	// Apportion the pass cost across the windows it touched so repeated
	// batches into one window do not overcount monitoring expense.
	elapsed := time.Since(start)
	share := elapsed
	if len(touched) > 0 {
		share = elapsed / time.Duration(len(touched))
	}
	for key := range touched {
		acc := a.accums[key]
		acc.processing += share
		a.reduced[key] = a.reduce(key, acc, quality)
	}

	a.evictLocked()
	a.mu.Unlock()

	logger.Debug().
		Int("points", len(batch)).
		Int("windows", len(touched)).
		Dur("took", elapsed).
		Msg("Processed aggregation batch")
}

func (a *Aggregator) reduce(key int64, acc *windowAccum, quality QualitySection) Aggregated {
	out := Aggregated{
		WindowStart: time.UnixMilli(key),
		WindowEnd:   time.UnixMilli(key).Add(a.cfg.Window),
		SampleCount: acc.samples,
		Quality:     quality,
	}

	if len(acc.fps) > 0 {
		sorted := append([]float64(nil), acc.fps...)
		sort.Float64s(sorted)
		out.FPS = FPSStats{
			Min: sorted[0],
			Max: sorted[len(sorted)-1],
			Avg: mean(sorted),
			P95: Percentile(sorted, 95),
		}
	}

	if len(acc.memory) > 0 {
		sorted := append([]float64(nil), acc.memory...)
		sort.Float64s(sorted)
		out.Memory = MemoryStats{
			Min:  sorted[0],
			Max:  sorted[len(sorted)-1],
			Avg:  mean(sorted),
			Peak: sorted[len(sorted)-1],
		}
	}

	if len(acc.operations) > 0 {
		out.Operations = make(map[string]OperationStats, len(acc.operations))
		for name, op := range acc.operations {
			out.Operations[name] = *op
		}
	}

	out.Overhead.CollectionTime = acc.collection
	out.Overhead.ProcessingTime = acc.processing
	if raw, err := json.Marshal(out); err == nil {
		out.Overhead.SerializedSize = len(raw)
	}
	if a.cfg.Window > 0 {
		spent := acc.collection + acc.processing
		out.Overhead.PercentImpact = float64(spent) / float64(a.cfg.Window) * 100
	}

	return out
}

// evictLocked drops the oldest windows once the cache ceiling is
// exceeded. Caller holds the mutex.
func (a *Aggregator) evictLocked() {
	for len(a.order) > a.cfg.MaxWindows {
		oldest := a.order[0]
		a.order = a.order[1:]
		delete(a.accums, oldest)
		delete(a.reduced, oldest)
	}
}

// Aggregates returns the reduced windows ordered by window start.
func (a *Aggregator) Aggregates() []Aggregated {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := append([]int64(nil), a.order...)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]Aggregated, 0, len(keys))
	for _, key := range keys {
		if agg, ok := a.reduced[key]; ok {
			out = append(out, agg)
		}
	}

	return out
}

// Percentile computes the p-th percentile of ascending sorted values:
// index = ceil(p/100 * n) - 1, clamped to [0, n-1].
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}

	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}

	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
