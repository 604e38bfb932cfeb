package gateway

import (
	"sync"
	"time"
)

// floodTracker limits how many events one connection may send in a sliding
// window. A world server hosts many players, so the limit is per connection
// rather than per player.
type floodTracker struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	times  []time.Time
	now    func() time.Time
}

func newFloodTracker(max int, window time.Duration) *floodTracker {
	if window <= 0 {
		window = time.Second
	}
	return &floodTracker{max: max, window: window, now: time.Now}
}

// allow records an event and reports whether it is within the limit. When it
// is not, wait is how long until the oldest event leaves the window.
func (f *floodTracker) allow() (ok bool, wait time.Duration) {
	if f.max <= 0 {
		return true, 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	cutoff := now.Add(-f.window)
	kept := f.times[:0]
	for _, t := range f.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	f.times = kept

	if len(f.times) >= f.max {
		return false, f.times[0].Add(f.window).Sub(now)
	}
	f.times = append(f.times, now)
	return true, 0
}
