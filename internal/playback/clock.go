// Package playback drives the shared current step forward in time.
//
// The clock wakes at a fixed frame interval and advances the step only when
// at least one playback interval has elapsed since the previous advance, so
// the speed can change without restarting the frame loop.
package playback

import (
	"sync"
	"time"

	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"github.com/atlas-desktop/portfolio-replay/pkg/utils"
	"go.uber.org/zap"
)

// Speed bounds in milliseconds per step
const (
	MinSpeedMs     = 1
	MaxSpeedMs     = 2000
	DefaultSpeedMs = 250

	DefaultFrameInterval = 16 * time.Millisecond
)

// State of the clock
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// AdvanceFunc is called after each step advance. stopped reports whether the
// advance reached the last step.
type AdvanceFunc func(index int, stopped bool)

// ClockConfig configures a Clock
type ClockConfig struct {
	SpeedMs       int
	FrameInterval time.Duration
	Scheduler     Scheduler

	// Guard is held while a scheduled tick runs. Owners that call the clock
	// under their own lock pass that lock here. When nil the clock uses a
	// private mutex, available through Guard().
	Guard sync.Locker

	// OnAdvance runs with Guard held
	OnAdvance AdvanceFunc
}

// Clock holds the current step and playback state.
//
// Clock methods do no locking of their own; callers must hold Guard() when
// scheduled ticks may run concurrently.
type Clock struct {
	logger *zap.Logger

	sched     Scheduler
	guard     sync.Locker
	frame     time.Duration
	onAdvance AdvanceFunc

	index       int
	maxIndex    int
	speedMs     int
	state       State
	lastAdvance time.Time

	pending    Handle
	generation uint64
}

// NewClock creates a stopped clock at step 0
func NewClock(logger *zap.Logger, cfg ClockConfig) *Clock {
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler{}
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.SpeedMs == 0 {
		cfg.SpeedMs = DefaultSpeedMs
	}
	if cfg.Guard == nil {
		cfg.Guard = &sync.Mutex{}
	}

	return &Clock{
		logger:    logger,
		sched:     cfg.Scheduler,
		guard:     cfg.Guard,
		frame:     cfg.FrameInterval,
		onAdvance: cfg.OnAdvance,
		speedMs:   utils.ClampInt(cfg.SpeedMs, MinSpeedMs, MaxSpeedMs),
	}
}

// Guard returns the lock held by scheduled ticks
func (c *Clock) Guard() sync.Locker { return c.guard }

// SetOnAdvance replaces the advance callback
func (c *Clock) SetOnAdvance(fn AdvanceFunc) { c.onAdvance = fn }

// Play starts playback. It does nothing when there is at most one step.
// Playing from the last step restarts from the beginning.
func (c *Clock) Play() bool {
	if c.maxIndex == 0 {
		return false
	}
	if c.state == Running {
		return false
	}
	if c.index >= c.maxIndex {
		c.index = 0
	}

	c.state = Running
	c.lastAdvance = c.sched.Now()
	c.schedule()

	c.logger.Debug("Playback started", zap.Int("index", c.index), zap.Int("speed_ms", c.speedMs))
	return true
}

// Pause stops playback at the current step
func (c *Clock) Pause() {
	c.stop()
}

// Seek stops playback and jumps to a step, clamped to [0, maxIndex]
func (c *Clock) Seek(index int) int {
	c.stop()
	c.index = utils.ClampInt(index, 0, c.maxIndex)
	return c.index
}

// Step stops playback and moves by delta steps. At either end the index
// stays put rather than wrapping.
func (c *Clock) Step(delta int) int {
	c.stop()
	c.index = utils.ClampInt(c.index+delta, 0, c.maxIndex)
	return c.index
}

// SetSpeed sets the interval between advances in milliseconds
func (c *Clock) SetSpeed(ms int) int {
	c.speedMs = utils.ClampInt(ms, MinSpeedMs, MaxSpeedMs)
	return c.speedMs
}

// SetMaxIndex updates the last reachable step and re-clamps the current one
func (c *Clock) SetMaxIndex(n int) {
	if n < 0 {
		n = 0
	}
	c.maxIndex = n
	if c.index > n {
		c.index = n
	}
	if c.maxIndex == 0 {
		c.stop()
	}
}

// Reset stops playback and returns to step 0
func (c *Clock) Reset() {
	c.stop()
	c.index = 0
}

// Index returns the current step
func (c *Clock) Index() int { return c.index }

// MaxIndex returns the last reachable step
func (c *Clock) MaxIndex() int { return c.maxIndex }

// SpeedMs returns the playback interval
func (c *Clock) SpeedMs() int { return c.speedMs }

// State returns Running or Stopped
func (c *Clock) State() State { return c.state }

// Snapshot returns the playback state
func (c *Clock) Snapshot() types.PlaybackState {
	return types.PlaybackState{
		CurrentIndex: c.index,
		IsPlaying:    c.state == Running,
		SpeedMs:      c.speedMs,
		MaxIndex:     c.maxIndex,
	}
}

func (c *Clock) stop() {
	c.state = Stopped
	c.cancelPending()
}

func (c *Clock) cancelPending() {
	// Bumping the generation turns a tick that already fired into a no-op
	c.generation++
	if c.pending != nil {
		c.pending.Cancel()
		c.pending = nil
	}
}

func (c *Clock) schedule() {
	c.cancelPending()
	gen := c.generation
	c.pending = c.sched.After(c.frame, func() { c.tick(gen) })
}

func (c *Clock) tick(gen uint64) {
	c.guard.Lock()
	defer c.guard.Unlock()

	if gen != c.generation || c.state != Running {
		return
	}
	c.pending = nil

	now := c.sched.Now()
	if now.Sub(c.lastAdvance) < time.Duration(c.speedMs)*time.Millisecond {
		c.schedule()
		return
	}

	c.index++
	c.lastAdvance = now

	stopped := false
	if c.index >= c.maxIndex {
		c.index = c.maxIndex
		c.state = Stopped
		c.generation++
		stopped = true
		c.logger.Debug("Playback reached the last step", zap.Int("index", c.index))
	} else {
		c.schedule()
	}

	if c.onAdvance != nil {
		c.onAdvance(c.index, stopped)
	}
}
