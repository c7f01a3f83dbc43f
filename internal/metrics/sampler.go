package metrics

import (
	"runtime"
	"sync"
	"time"

	"codeberg.org/mutker/perfctl/internal/logger"
	"github.com/google/uuid"
)

const (
	defaultInterval   = 16670 * time.Microsecond // ~60Hz
	defaultBatchSize  = 50
	memoryProbeEvery  = 30 // ticks between heap probes
	maxPlausibleFPS   = 240
	bytesPerMB        = 1024 * 1024
)

type SamplerConfig struct {
	Interval   time.Duration
	BatchSize  int
	Realtime   bool // injected operation data bypasses batching
	GPUPresent bool
}

func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Interval:  defaultInterval,
		BatchSize: defaultBatchSize,
	}
}

// Sampler produces raw performance points on a fixed cadence. A failed
// tick is logged and skipped; sampling continues on the next one.
type Sampler struct {
	cfg       SamplerConfig
	ring      *Ring
	sink      Sink
	sessionID string

	mu           sync.Mutex
	pending      []RawPoint
	lastTick     time.Time
	lastMemoryMB float64
	tickCount    uint64
	running      bool
	stop         chan struct{}
	done         chan struct{}
}

func NewSampler(cfg SamplerConfig, ring *Ring, sink Sink) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	return &Sampler{
		cfg:       cfg,
		ring:      ring,
		sink:      sink,
		sessionID: uuid.NewString(),
		pending:   make([]RawPoint, 0, cfg.BatchSize),
	}
}

func (s *Sampler) SessionID() string {
	return s.sessionID
}

func (s *Sampler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.lastTick = time.Now()
	s.mu.Unlock()

	go s.loop()

	logger.Debug().
		Dur("interval", s.cfg.Interval).
		Int("batch_size", s.cfg.BatchSize).
		Str("session_id", s.sessionID).
		Msg("Sampler started")
}

func (s *Sampler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Sampler) tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Interface("panic", r).Msg("Sample collection failed, continuing")
		}
	}()

	start := time.Now()

	s.mu.Lock()
	elapsed := now.Sub(s.lastTick)
	s.lastTick = now
	s.tickCount++

	fps := 0.0
	if elapsed > 0 {
		fps = 1 / elapsed.Seconds()
		if fps > maxPlausibleFPS {
			fps = maxPlausibleFPS
		}
	}

	// Heap probes stop the world briefly, so they run on a coarser
	// cadence and the last reading is reused in between.
	if s.tickCount%memoryProbeEvery == 1 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		s.lastMemoryMB = float64(ms.HeapAlloc) / bytesPerMB
	}
	memoryMB := s.lastMemoryMB

	gpu := 0.0
	if s.cfg.GPUPresent {
		gpu = 1.0
	}
	s.mu.Unlock()

	overhead := time.Since(start)

	points := []RawPoint{
		{Timestamp: now, Type: MetricFPS, Value: fps, SessionID: s.sessionID, CollectionOverhead: overhead},
		{Timestamp: now, Type: MetricMemory, Value: memoryMB, SessionID: s.sessionID, CollectionOverhead: overhead},
		{Timestamp: now, Type: MetricGPU, Value: gpu, SessionID: s.sessionID, CollectionOverhead: overhead},
	}

	for i := range points {
		s.record(points[i], false)
	}
}

// CollectOperation injects an externally measured operation. With
// realtime enabled the point is handed to the sink immediately instead
// of waiting for the next batch.
func (s *Sampler) CollectOperation(name string, duration time.Duration, metadata map[string]any) {
	start := time.Now()

	md := map[string]any{"operation": name}
	for k, v := range metadata {
		md[k] = v
	}

	point := RawPoint{
		Timestamp:          start,
		Type:               MetricOperation,
		Value:              float64(duration.Milliseconds()),
		Metadata:           md,
		SessionID:          s.sessionID,
		CollectionOverhead: time.Since(start),
	}

	s.record(point, s.cfg.Realtime)
}

func (s *Sampler) record(p RawPoint, realtime bool) {
	s.ring.Append(p)

	if realtime {
		s.sink.Enqueue([]RawPoint{p})
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, p)
	var batch []RawPoint
	if len(s.pending) >= s.cfg.BatchSize {
		batch = s.pending
		s.pending = make([]RawPoint, 0, s.cfg.BatchSize)
	}
	s.mu.Unlock()

	if batch != nil {
		// Handed off without blocking the sampling cadence.
		s.sink.Enqueue(batch)
	}
}

// Stop cancels the pending tick, drains the open batch into the sink and
// processes it synchronously.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	<-s.done

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) > 0 {
		s.sink.Enqueue(batch)
	}
	s.sink.Flush()

	logger.Debug().Str("session_id", s.sessionID).Msg("Sampler stopped")
}
