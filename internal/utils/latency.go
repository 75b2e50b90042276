package utils

import (
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// LatencyTracker keeps a fixed window of recent durations. Once the window is
// full the oldest sample is overwritten.
type LatencyTracker struct {
	mu   sync.Mutex
	ring []time.Duration
	next int
	full bool
}

// NewLatencyTracker creates a tracker holding up to size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{ring: make([]time.Duration, size)}
}

// Observe records d.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = d
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}
}

// Percentile returns the p-th percentile (0-100), or zero without samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	window := l.window()
	if len(window) == 0 {
		return 0
	}
	switch {
	case p <= 0:
		return lo.Min(window)
	case p >= 100:
		return lo.Max(window)
	}
	slices.Sort(window)
	return window[int(p/100*float64(len(window)-1))]
}

// Count returns the number of samples in the window.
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.ring)
	}
	return l.next
}

func (l *LatencyTracker) window() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return slices.Clone(l.ring)
	}
	return slices.Clone(l.ring[:l.next])
}
