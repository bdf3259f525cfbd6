package interaction

import (
	"sync"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/playback"
)

// Debouncer runs only the most recently submitted function, once no newer
// submission has arrived for the quiescence delay.
type Debouncer struct {
	sched playback.Scheduler
	delay time.Duration
	guard sync.Locker

	pending    playback.Handle
	generation uint64
}

// NewDebouncer creates a debouncer. fn passed to Submit runs with guard held.
func NewDebouncer(sched playback.Scheduler, delay time.Duration, guard sync.Locker) *Debouncer {
	if sched == nil {
		sched = playback.RealScheduler{}
	}
	if guard == nil {
		guard = &sync.Mutex{}
	}
	return &Debouncer{sched: sched, delay: delay, guard: guard}
}

// Submit replaces any pending function with fn. The caller must hold the
// guard when scheduled functions can run concurrently.
func (d *Debouncer) Submit(fn func()) {
	d.Cancel()
	gen := d.generation
	d.pending = d.sched.After(d.delay, func() {
		d.guard.Lock()
		defer d.guard.Unlock()
		if gen != d.generation {
			return
		}
		d.pending = nil
		fn()
	})
}

// Cancel drops the pending function, if any
func (d *Debouncer) Cancel() {
	d.generation++
	if d.pending != nil {
		d.pending.Cancel()
		d.pending = nil
	}
}

// Pending reports whether a function is waiting to run
func (d *Debouncer) Pending() bool {
	return d.pending != nil
}
