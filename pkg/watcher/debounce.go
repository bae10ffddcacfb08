package watcher

import (
	"sync"
	"time"
)

// DefaultDebounceDuration is the default coalescing window for change
// notifications.
const DefaultDebounceDuration = 200 * time.Millisecond

// Debouncer coalesces bursts of triggers per key: the callback fires
// once per key after the window elapses without further triggers for
// that key. Editors and build tools produce several filesystem events
// per logical change; downstream invalidation wants one.
type Debouncer struct {
	duration time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDebouncer creates a debouncer with the given window. A
// non-positive duration falls back to DefaultDebounceDuration.
func NewDebouncer(d time.Duration) *Debouncer {
	if d <= 0 {
		d = DefaultDebounceDuration
	}
	return &Debouncer{
		duration: d,
		timers:   make(map[string]*time.Timer),
	}
}

// Trigger schedules fn for key, resetting the window if a trigger for
// the same key is already pending.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if timer, ok := d.timers[key]; ok {
		timer.Stop()
	}
	d.timers[key] = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops all pending triggers.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}
