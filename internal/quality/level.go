package quality

import "codeberg.org/mutker/perfctl/internal/errors"

// Level is the ordered rendering quality tier: Low < Medium < High < Highest.
type Level int

const (
	Low Level = iota
	Medium
	High
	Highest
)

func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Highest:
		return "highest"
	default:
		return "unknown"
	}
}

func (l Level) IsValid() bool {
	return l >= Low && l <= Highest
}

// ParseLevel maps a level name back onto its Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "low":
		return Low, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	case "highest":
		return Highest, nil
	default:
		return Low, errors.New().WithData(errors.ErrInvalidArgument, s)
	}
}

func clampLevel(l Level) Level {
	if l < Low {
		return Low
	}
	if l > Highest {
		return Highest
	}
	return l
}

func levelDistance(a, b Level) int {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d
}
