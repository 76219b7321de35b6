package audio

import "sync"

// LevelRing is a thread-safe circular buffer of recent samples, fed by
// the capture callback and read by the TUI waveform. It always holds
// the most recent samples up to capacity.
type LevelRing struct {
	samples []int16
	head    int // next write position
	count   int // valid samples, up to capacity
	mu      sync.RWMutex
}

// NewLevelRing creates a ring with the given capacity.
func NewLevelRing(capacity int) *LevelRing {
	return &LevelRing{samples: make([]int16, capacity)}
}

// Write appends samples, overwriting the oldest when full. Single
// writer (the capture callback thread).
func (r *LevelRing) Write(samples []int16) {
	if len(samples) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.samples)
	for _, s := range samples {
		r.samples[r.head] = s
		r.head = (r.head + 1) % capacity

		if r.count < capacity {
			r.count++
		}
	}
}

// Latest returns up to n of the most recent samples in chronological
// order. Safe for concurrent readers.
func (r *LevelRing) Latest(n int) []int16 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 || n <= 0 {
		return nil
	}

	if n > r.count {
		n = r.count
	}

	capacity := len(r.samples)
	start := (r.head - n + capacity) % capacity

	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = r.samples[(start+i)%capacity]
	}

	return out
}

// Count returns the number of valid samples held.
func (r *LevelRing) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
