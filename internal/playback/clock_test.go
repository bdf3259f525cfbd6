package playback_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/fixtures"
	"github.com/atlas-desktop/portfolio-replay/internal/playback"
	"go.uber.org/zap"
)

func newClock(sched *fixtures.ManualScheduler, speedMs, maxIndex int) *playback.Clock {
	c := playback.NewClock(zap.NewNop(), playback.ClockConfig{
		SpeedMs:       speedMs,
		FrameInterval: 50 * time.Millisecond,
		Scheduler:     sched,
	})
	c.SetMaxIndex(maxIndex)
	return c
}

func TestPlaybackAdvancesAtSpeed(t *testing.T) {
	sched := fixtures.NewManualScheduler()
	clock := newClock(sched, 100, 20)

	if !clock.Play() {
		t.Fatal("Play returned false")
	}
	sched.Advance(350 * time.Millisecond)

	if clock.Index() != 3 {
		t.Errorf("Expected index 3 after 350ms at 100ms/step, got %d", clock.Index())
	}
	if clock.State() != playback.Running {
		t.Errorf("Expected running, got %s", clock.State())
	}
}

func TestSpeedChangeKeepsFrameLoop(t *testing.T) {
	sched := fixtures.NewManualScheduler()
	clock := newClock(sched, 100, 50)

	clock.Play()
	sched.Advance(200 * time.Millisecond)
	if clock.Index() != 2 {
		t.Fatalf("Expected index 2, got %d", clock.Index())
	}

	clock.SetSpeed(50)
	sched.Advance(200 * time.Millisecond)
	if clock.Index() != 6 {
		t.Errorf("Expected index 6 after speeding up, got %d", clock.Index())
	}
	if clock.State() != playback.Running {
		t.Error("SetSpeed should not change state")
	}
}

func TestPlaybackAutoStopsAndReplays(t *testing.T) {
	sched := fixtures.NewManualScheduler()
	clock := newClock(sched, 10, 5)

	var advances []int
	var stoppedAt = -1
	clock.SetOnAdvance(func(index int, stopped bool) {
		advances = append(advances, index)
		if stopped {
			stoppedAt = index
		}
	})

	clock.Play()
	sched.Advance(time.Second)

	if clock.Index() != 5 || clock.State() != playback.Stopped {
		t.Fatalf("Expected stopped at 5, got %d (%s)", clock.Index(), clock.State())
	}
	if stoppedAt != 5 || len(advances) != 5 {
		t.Errorf("Unexpected advance callbacks %v (stopped at %d)", advances, stoppedAt)
	}
	if sched.Pending() != 0 {
		t.Error("No tick should be scheduled after auto-stop")
	}

	clock.Play()
	if clock.Index() != 0 || clock.State() != playback.Running {
		t.Errorf("Play from the end should restart at 0, got %d (%s)", clock.Index(), clock.State())
	}
}

func TestPauseCancelsPendingTick(t *testing.T) {
	sched := fixtures.NewManualScheduler()
	clock := newClock(sched, 100, 10)

	clock.Play()
	sched.Advance(120 * time.Millisecond)
	clock.Pause()

	if sched.Pending() != 0 {
		t.Fatal("Pause should cancel the scheduled tick")
	}
	index := clock.Index()
	sched.Advance(time.Second)
	if clock.Index() != index {
		t.Errorf("Index moved after pause: %d -> %d", index, clock.Index())
	}
}

func TestStaleTickIsDiscarded(t *testing.T) {
	sched := fixtures.NewManualScheduler()
	sched.IgnoreCancel = true
	clock := newClock(sched, 1, 10)

	clock.Play()
	clock.Seek(4)

	// The tick scheduled by Play still fires because its cancel was lost
	sched.Advance(time.Second)
	if clock.Index() != 4 {
		t.Errorf("Stale tick advanced the clock to %d", clock.Index())
	}
	if clock.State() != playback.Stopped {
		t.Error("Expected stopped after seek")
	}
}

func TestPlayIsNoOpWithoutSteps(t *testing.T) {
	sched := fixtures.NewManualScheduler()
	clock := newClock(sched, 100, 0)

	if clock.Play() {
		t.Error("Play should be refused with max index 0")
	}
	if clock.State() != playback.Stopped || sched.Pending() != 0 {
		t.Error("Expected stopped clock with nothing scheduled")
	}
}

func TestStepSeekAndSpeedClamp(t *testing.T) {
	sched := fixtures.NewManualScheduler()
	clock := newClock(sched, 100, 3)

	tests := []struct {
		name string
		op   func() int
		want int
	}{
		{"step back at start", func() int { return clock.Step(-1) }, 0},
		{"step forward", func() int { return clock.Step(1) }, 1},
		{"seek past end", func() int { return clock.Seek(99) }, 3},
		{"step forward at end", func() int { return clock.Step(1) }, 3},
		{"seek negative", func() int { return clock.Seek(-5) }, 0},
		{"speed too low", func() int { return clock.SetSpeed(0) }, playback.MinSpeedMs},
		{"speed too high", func() int { return clock.SetSpeed(10000) }, playback.MaxSpeedMs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.op(); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStepStopsPlayback(t *testing.T) {
	sched := fixtures.NewManualScheduler()
	clock := newClock(sched, 100, 10)

	clock.Play()
	clock.Step(1)
	if clock.State() != playback.Stopped {
		t.Error("Step should stop playback")
	}
	if sched.Pending() != 0 {
		t.Error("Step should cancel the scheduled tick")
	}
}

func TestSetMaxIndexReclamps(t *testing.T) {
	sched := fixtures.NewManualScheduler()
	clock := newClock(sched, 100, 10)

	clock.Seek(8)
	clock.SetMaxIndex(5)
	if clock.Index() != 5 {
		t.Errorf("Expected index clamped to 5, got %d", clock.Index())
	}

	clock.Play()
	clock.SetMaxIndex(0)
	if clock.Index() != 0 || clock.State() != playback.Stopped {
		t.Errorf("Expected stopped at 0, got %d (%s)", clock.Index(), clock.State())
	}

	snap := clock.Snapshot()
	if snap.IsPlaying || snap.MaxIndex != 0 || snap.SpeedMs != 100 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}
