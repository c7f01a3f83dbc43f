package metrics

import "sync"

// Ring is a bounded raw point buffer. Once full, the oldest point is
// overwritten.
type Ring struct {
	mu   sync.RWMutex
	buf  []RawPoint
	head int
	size int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}

	return &Ring{buf: make([]RawPoint, capacity)}
}

func (r *Ring) Append(p RawPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = p
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Snapshot returns the buffered points in chronological order.
func (r *Ring) Snapshot() []RawPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RawPoint, 0, r.size)
	start := r.head - r.size
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}

	return out
}
