package quality

// Easing names a progress curve for transition steps.
type Easing int

const (
	EaseLinear Easing = iota
	EaseIn
	EaseOut
	EaseInOut
	EaseSmoothstep
)

func (e Easing) String() string {
	switch e {
	case EaseIn:
		return "ease-in"
	case EaseOut:
		return "ease-out"
	case EaseInOut:
		return "ease-in-out"
	case EaseSmoothstep:
		return "smoothstep"
	default:
		return "linear"
	}
}

// ease maps linear progress p in [0,1] through the curve. Every curve is
// monotonically non-decreasing and fixed at ease(0)=0, ease(1)=1.
func ease(e Easing, p float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}

	switch e {
	case EaseIn:
		return p * p
	case EaseOut:
		return 1 - (1-p)*(1-p)
	case EaseInOut:
		if p < 0.5 {
			return 2 * p * p
		}
		return 1 - 2*(1-p)*(1-p)
	case EaseSmoothstep:
		return p * p * (3 - 2*p)
	case EaseLinear:
		return p
	default:
		return p
	}
}
