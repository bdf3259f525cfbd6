package playback

import "time"

// Handle is a pending delayed call
type Handle interface {
	// Cancel stops the call if it has not started. A call that is already
	// running is not interrupted.
	Cancel()
}

// Scheduler runs functions after a delay and reports the current time.
// Tests substitute a manual implementation.
type Scheduler interface {
	After(d time.Duration, fn func()) Handle
	Now() time.Time
}

// RealScheduler is backed by time.AfterFunc
type RealScheduler struct{}

type timerHandle struct {
	t *time.Timer
}

func (h timerHandle) Cancel() { h.t.Stop() }

// After implements Scheduler
func (RealScheduler) After(d time.Duration, fn func()) Handle {
	return timerHandle{t: time.AfterFunc(d, fn)}
}

// Now implements Scheduler
func (RealScheduler) Now() time.Time { return time.Now() }
