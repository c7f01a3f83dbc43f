package profile

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/perfctl/internal/logger"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Conservative defaults used when a probe is unavailable. Profiling must
// always complete, so no probe ever propagates an error.
const (
	defaultMemoryGB    = 4.0
	defaultCPUCores    = 4
	defaultWidth       = 1920
	defaultHeight      = 1080
	defaultPixelRatio  = 1.0
	defaultRefreshRate = 60
	defaultBattery     = 100.0

	bytesPerGB = 1024 * 1024 * 1024
)

func detectMemory(ctx context.Context) float64 {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil || vm.Total == 0 {
		logger.Debug().Err(err).Msg("Memory probe unavailable, using default")
		return defaultMemoryGB
	}

	return float64(vm.Total) / bytesPerGB
}

func detectCPUCores(ctx context.Context) int {
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores <= 0 {
		logger.Debug().Err(err).Msg("CPU probe unavailable, using default")
		return defaultCPUCores
	}

	return cores
}

func detectCPUModel(ctx context.Context) string {
	info, err := cpu.InfoWithContext(ctx)
	if err != nil || len(info) == 0 {
		return "unknown"
	}

	return info[0].ModelName
}

// detectGPU is a minimal presence probe: a GPU temperature sensor or a
// DRM card node marks a GPU as present, and the host's memory/core
// budget buckets its tier. Absence of every signal yields GPUNone.
func detectGPU(ctx context.Context) GPUTier {
	present := false

	temps, err := sensors.TemperaturesWithContext(ctx)
	if err == nil {
		for i := range temps {
			key := strings.ToLower(temps[i].SensorKey)
			if strings.Contains(key, "gpu") || strings.Contains(key, "amdgpu") || strings.Contains(key, "nouveau") {
				present = true
				break
			}
		}
	}

	if !present {
		if matches, globErr := filepath.Glob("/sys/class/drm/card[0-9]*"); globErr == nil && len(matches) > 0 {
			present = true
		}
	}

	if !present {
		return GPUNone
	}

	memGB := detectMemory(ctx)
	cores := detectCPUCores(ctx)
	switch {
	case memGB >= 16 && cores >= 12:
		return GPUHigh
	case memGB >= 8 && cores >= 8:
		return GPUStandard
	default:
		return GPUBasic
	}
}

// detectDisplay has no compositor to interrogate, so it reports the
// documented conservative defaults. Refresh rate estimation over a
// bounded frame window belongs to the embedding host, which can override
// via SetPower-style injection at the composition root.
func detectDisplay() Display {
	return Display{
		Width:       defaultWidth,
		Height:      defaultHeight,
		PixelRatio:  defaultPixelRatio,
		RefreshRate: defaultRefreshRate,
	}
}

func detectNetwork() NetworkClass {
	return NetworkModerate
}

func detectHost(ctx context.Context) (hostname, platform string) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return "unknown", "unknown"
	}

	return info.Hostname, info.Platform
}

func detectPower(ctx context.Context) Power {
	power := Power{
		BatteryLevel: defaultBattery,
		Charging:     true,
		ThermalState: detectThermalState(ctx),
	}

	level, charging, ok := readBattery()
	if ok {
		power.BatteryLevel = level
		power.Charging = charging
		power.LowPower = level <= 20 && !charging
	}

	return power
}

func detectThermalState(ctx context.Context) string {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil || len(temps) == 0 {
		return "nominal"
	}

	maxTemp := 0.0
	for i := range temps {
		if temps[i].Temperature > maxTemp {
			maxTemp = temps[i].Temperature
		}
	}

	switch {
	case maxTemp >= 90:
		return "critical"
	case maxTemp >= 80:
		return "serious"
	case maxTemp >= 65:
		return "fair"
	default:
		return "nominal"
	}
}

// readBattery reads the first battery exposed through sysfs. Hosts
// without one (desktops, containers) report ok=false.
func readBattery() (level float64, charging bool, ok bool) {
	matches, err := filepath.Glob("/sys/class/power_supply/BAT*/capacity")
	if err != nil || len(matches) == 0 {
		return 0, false, false
	}

	raw, err := os.ReadFile(matches[0])
	if err != nil {
		return 0, false, false
	}

	level, err = strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, false, false
	}

	statusPath := filepath.Join(filepath.Dir(matches[0]), "status")
	if raw, err := os.ReadFile(statusPath); err == nil {
		status := strings.TrimSpace(string(raw))
		charging = status == "Charging" || status == "Full"
	}

	return level, charging, true
}
