package profile

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/perfctl/internal/logger"
)

// Class is the derived device capability tier
type Class string

const (
	ClassLowEnd   Class = "low-end"
	ClassMidRange Class = "mid-range"
	ClassHighEnd  Class = "high-end"
	ClassPremium  Class = "premium"
)

// GPUTier is a coarse GPU capability bucket
type GPUTier int

const (
	GPUNone GPUTier = iota
	GPUBasic
	GPUStandard
	GPUHigh
)

func (t GPUTier) String() string {
	switch t {
	case GPUBasic:
		return "basic"
	case GPUStandard:
		return "standard"
	case GPUHigh:
		return "high"
	default:
		return "none"
	}
}

// NetworkClass is a coarse connectivity bucket
type NetworkClass string

const (
	NetworkSlow     NetworkClass = "slow"
	NetworkModerate NetworkClass = "moderate"
	NetworkFast     NetworkClass = "fast"
)

type Display struct {
	Width       int
	Height      int
	PixelRatio  float64
	RefreshRate int
}

type Power struct {
	BatteryLevel float64 // 0-100
	Charging     bool
	LowPower     bool
	ThermalState string // nominal, fair, serious, critical
}

// Profile is an immutable capability snapshot captured once per session.
// Only the Power fields are refreshed after creation.
type Profile struct {
	MemoryGB   float64
	CPUCores   int
	CPUModel   string
	GPU        GPUTier
	Display    Display
	Network    NetworkClass
	Power      Power
	Class      Class
	Hostname   string
	Platform   string
	DetectedAt time.Time
}

// Profiler detects device capabilities once and serves read-only copies.
type Profiler struct {
	mu       sync.RWMutex
	profile  Profile
	detected bool
}

func New() *Profiler {
	return &Profiler{}
}

// NewStatic returns a profiler pre-seeded with a host-supplied profile,
// for embedders that already know the device capabilities. The class is
// derived when the caller left it empty.
func NewStatic(p Profile) *Profiler {
	if p.Class == "" {
		p.Class = ClassifyDevice(p)
	}
	if p.DetectedAt.IsZero() {
		p.DetectedAt = time.Now()
	}

	return &Profiler{profile: p, detected: true}
}

// Detect probes the host and classifies it. It runs the probes at most
// once; subsequent calls return the cached profile. Every probe fails
// soft to a conservative default, so Detect always succeeds.
func (p *Profiler) Detect(ctx context.Context) (Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.detected {
		return p.profile, nil
	}

	prof := Profile{
		MemoryGB:   detectMemory(ctx),
		CPUCores:   detectCPUCores(ctx),
		CPUModel:   detectCPUModel(ctx),
		GPU:        detectGPU(ctx),
		Display:    detectDisplay(),
		Network:    detectNetwork(),
		Power:      detectPower(ctx),
		DetectedAt: time.Now(),
	}
	prof.Hostname, prof.Platform = detectHost(ctx)
	prof.Class = ClassifyDevice(prof)

	logger.Info().
		Float64("memory_gb", prof.MemoryGB).
		Int("cpu_cores", prof.CPUCores).
		Str("gpu_tier", prof.GPU.String()).
		Str("class", string(prof.Class)).
		Msg("Device capabilities detected")

	p.profile = prof
	p.detected = true

	return p.profile, nil
}

// Profile returns the current snapshot. Detect must have run first;
// otherwise the zero profile is returned.
func (p *Profiler) Profile() Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.profile
}

// RefreshPower re-probes the power state. All other fields stay frozen.
func (p *Profiler) RefreshPower(ctx context.Context) Power {
	power := detectPower(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detected {
		p.profile.Power = power
	}

	return power
}

// SetPower overrides the power state with host-supplied values, e.g. a
// battery level reported through the metrics feed.
func (p *Profiler) SetPower(power Power) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profile.Power = power
}
