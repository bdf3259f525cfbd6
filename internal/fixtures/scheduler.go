package fixtures

import (
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/playback"
)

// ManualScheduler fires delayed calls only when Advance is called.
// Callbacks run on the caller's goroutine.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer

	// IgnoreCancel makes Cancel a no-op for timers created afterwards, to
	// simulate a call that was already in flight
	IgnoreCancel bool
}

type manualTimer struct {
	at        time.Time
	seq       int
	fn        func()
	cancelled bool
	fired     bool
	ignore    bool
}

func (t *manualTimer) Cancel() {
	if !t.ignore {
		t.cancelled = true
	}
}

// NewManualScheduler starts the clock at the Unix epoch
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{now: time.Unix(0, 0)}
}

// After implements playback.Scheduler
func (s *ManualScheduler) After(d time.Duration, fn func()) playback.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &manualTimer{at: s.now.Add(d), seq: len(s.timers), fn: fn, ignore: s.IgnoreCancel}
	s.timers = append(s.timers, t)
	return t
}

// Now implements playback.Scheduler
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of timers that will still fire
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingLocked())
}

func (s *ManualScheduler) pendingLocked() []*manualTimer {
	var out []*manualTimer
	for _, t := range s.timers {
		if !t.cancelled && !t.fired {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].at.Equal(out[j].at) {
			return out[i].seq < out[j].seq
		}
		return out[i].at.Before(out[j].at)
	})
	return out
}

// Advance moves time forward, firing due timers in order
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		due := s.pendingLocked()
		if len(due) == 0 || due[0].at.After(target) {
			s.now = target
			s.mu.Unlock()
			return
		}
		t := due[0]
		s.now = t.at
		t.fired = true
		s.mu.Unlock()

		t.fn()
	}
}
