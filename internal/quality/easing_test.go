package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func allEasings() []Easing {
	return []Easing{EaseLinear, EaseIn, EaseOut, EaseInOut, EaseSmoothstep}
}

func TestEaseEndpoints(t *testing.T) {
	for _, e := range allEasings() {
		assert.InDelta(t, 0.0, ease(e, 0), 1e-9, "%s at 0", e)
		assert.InDelta(t, 1.0, ease(e, 1), 1e-9, "%s at 1", e)
		assert.InDelta(t, 0.0, ease(e, -0.5), 1e-9, "%s clamps below 0", e)
		assert.InDelta(t, 1.0, ease(e, 1.5), 1e-9, "%s clamps above 1", e)
	}
}

func TestEaseMonotonic(t *testing.T) {
	for _, e := range allEasings() {
		prev := 0.0
		for p := 0.0; p <= 1.0; p += 0.01 {
			v := ease(e, p)
			assert.GreaterOrEqual(t, v, prev, "%s must be non-decreasing at p=%.2f", e, p)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
			prev = v
		}
	}
}

func TestTransitionFor(t *testing.T) {
	one := transitionFor(1, 1)
	assert.Equal(t, 300*time.Millisecond, one.Duration)
	assert.Equal(t, 3, one.Steps)
	assert.Equal(t, EaseOut, one.Easing)

	two := transitionFor(2, 1)
	assert.Equal(t, 500*time.Millisecond, two.Duration)
	assert.Equal(t, 5, two.Steps)
	assert.Equal(t, EaseInOut, two.Easing)

	three := transitionFor(3, 1)
	assert.Equal(t, 800*time.Millisecond, three.Duration)
	assert.Equal(t, 8, three.Steps)
	assert.Equal(t, EaseSmoothstep, three.Easing)

	scaled := transitionFor(1, 0.1)
	assert.Equal(t, 30*time.Millisecond, scaled.Duration)
	assert.Equal(t, 3, scaled.Steps, "Scale changes duration, not step count")
}

func TestClampLevel(t *testing.T) {
	assert.Equal(t, Low, clampLevel(Low-3))
	assert.Equal(t, Low, clampLevel(Low))
	assert.Equal(t, High, clampLevel(High))
	assert.Equal(t, Highest, clampLevel(Highest+2))
}

func TestLevelDistance(t *testing.T) {
	assert.Equal(t, 0, levelDistance(Medium, Medium))
	assert.Equal(t, 3, levelDistance(Low, Highest))
	assert.Equal(t, 2, levelDistance(High, Low))
}

func TestParseLevel(t *testing.T) {
	for _, l := range []Level{Low, Medium, High, Highest} {
		parsed, err := ParseLevel(l.String())
		assert.NoError(t, err)
		assert.Equal(t, l, parsed)
	}

	_, err := ParseLevel("ultra")
	assert.Error(t, err)

	assert.False(t, Level(-1).IsValid())
	assert.False(t, (Highest + 1).IsValid())
	assert.Equal(t, "unknown", Level(42).String())
}
