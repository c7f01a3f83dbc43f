package profile

// Additive point budget per signal group
const (
	memoryPointsMax  = 3
	cpuPointsMax     = 3
	gpuPointsMax     = 4
	displayPointsMax = 3

	premiumThreshold  = 11
	highEndThreshold  = 8
	midRangeThreshold = 5
)

// ClassifyDevice maps a profile onto a capability class with a weighted
// point system. Identical profiles always classify identically.
func ClassifyDevice(p Profile) Class {
	points := memoryPoints(p.MemoryGB) +
		cpuPoints(p.CPUCores) +
		gpuPoints(p.GPU) +
		displayPoints(p.Display)

	switch {
	case points >= premiumThreshold:
		return ClassPremium
	case points >= highEndThreshold:
		return ClassHighEnd
	case points >= midRangeThreshold:
		return ClassMidRange
	default:
		return ClassLowEnd
	}
}

func memoryPoints(gb float64) int {
	switch {
	case gb >= 16:
		return memoryPointsMax
	case gb >= 8:
		return 2
	case gb >= 4:
		return 1
	default:
		return 0
	}
}

func cpuPoints(cores int) int {
	switch {
	case cores >= 12:
		return cpuPointsMax
	case cores >= 8:
		return 2
	case cores >= 4:
		return 1
	default:
		return 0
	}
}

func gpuPoints(tier GPUTier) int {
	switch tier {
	case GPUHigh:
		return gpuPointsMax
	case GPUStandard:
		return 3
	case GPUBasic:
		return 1
	default:
		return 0
	}
}

func displayPoints(d Display) int {
	highRes := d.Width >= 2560 || d.Height >= 1440
	dense := d.PixelRatio >= 2

	switch {
	case highRes && dense:
		return displayPointsMax
	case highRes || dense:
		return 2
	case d.Width >= 1920:
		return 1
	default:
		return 0
	}
}
