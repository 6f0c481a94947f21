package realtime

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of change notifications into a single callback
// after a quiet delay. There is at most one pending fire: a Trigger during
// the wait resets the timer instead of queueing another refresh, so a bulk
// operation produces one re-query instead of one per row touched.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules the callback after the quiet delay, resetting any
// pending schedule. Never blocks.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Close cancels any pending fire. Triggers after Close are ignored.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
