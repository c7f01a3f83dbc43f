package profile_test

import (
	"testing"

	"codeberg.org/mutker/perfctl/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name string
		p    profile.Profile
		want profile.Class
	}{
		{
			name: "workstation",
			p: profile.Profile{
				MemoryGB: 32,
				CPUCores: 16,
				GPU:      profile.GPUHigh,
				Display:  profile.Display{Width: 3840, Height: 2160, PixelRatio: 2},
			},
			want: profile.ClassPremium,
		},
		{
			name: "gaming laptop",
			p: profile.Profile{
				MemoryGB: 16,
				CPUCores: 8,
				GPU:      profile.GPUStandard,
				Display:  profile.Display{Width: 1920, Height: 1080, PixelRatio: 1},
			},
			want: profile.ClassHighEnd,
		},
		{
			name: "office desktop",
			p: profile.Profile{
				MemoryGB: 8,
				CPUCores: 4,
				GPU:      profile.GPUBasic,
				Display:  profile.Display{Width: 1920, Height: 1080, PixelRatio: 1},
			},
			want: profile.ClassMidRange,
		},
		{
			name: "constrained host",
			p: profile.Profile{
				MemoryGB: 2,
				CPUCores: 2,
				GPU:      profile.GPUNone,
				Display:  profile.Display{Width: 1366, Height: 768, PixelRatio: 1},
			},
			want: profile.ClassLowEnd,
		},
		{
			name: "zero profile",
			p:    profile.Profile{},
			want: profile.ClassLowEnd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, profile.ClassifyDevice(tt.p))
		})
	}
}

func TestClassifyDeviceDeterministic(t *testing.T) {
	p := profile.Profile{
		MemoryGB: 16,
		CPUCores: 8,
		GPU:      profile.GPUStandard,
		Display:  profile.Display{Width: 2560, Height: 1440, PixelRatio: 1},
	}

	first := profile.ClassifyDevice(p)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, profile.ClassifyDevice(p), "Identical profiles must classify identically")
	}
}

func TestNewStaticClassifies(t *testing.T) {
	profiler := profile.NewStatic(profile.Profile{
		MemoryGB: 8,
		CPUCores: 4,
		GPU:      profile.GPUBasic,
		Display:  profile.Display{Width: 1920, Height: 1080, PixelRatio: 1},
	})

	p := profiler.Profile()
	assert.Equal(t, profile.ClassMidRange, p.Class)
	assert.False(t, p.DetectedAt.IsZero(), "Expected DetectedAt to be stamped")
}

func TestNewStaticKeepsExplicitClass(t *testing.T) {
	profiler := profile.NewStatic(profile.Profile{
		MemoryGB: 2,
		Class:    profile.ClassPremium,
	})

	assert.Equal(t, profile.ClassPremium, profiler.Profile().Class)
}

func TestSetPower(t *testing.T) {
	profiler := profile.NewStatic(profile.Profile{MemoryGB: 8, CPUCores: 4})

	profiler.SetPower(profile.Power{BatteryLevel: 15, LowPower: true})

	power := profiler.Profile().Power
	require.InDelta(t, 15.0, power.BatteryLevel, 0.001)
	assert.True(t, power.LowPower)
}
