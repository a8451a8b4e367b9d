package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/Cheese-Clock/internal/domain"
)

func newTestClock(t *testing.T, baseMillis, incMillis int64) *Clock {
	t.Helper()
	tc := domain.TimeControl{
		Base:      time.Duration(baseMillis) * time.Millisecond,
		Increment: time.Duration(incMillis) * time.Millisecond,
	}
	return New(tc, time.Second)
}

func TestTickDecrementsOnlyActiveSide(t *testing.T) {
	c := newTestClock(t, 10_000, 0)
	if err := c.Start(domain.White); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Tick()
	c.Tick()
	if got := c.Remaining(domain.White); got != 8_000 {
		t.Fatalf("white = %d, want 8000", got)
	}
	if got := c.Remaining(domain.Black); got != 10_000 {
		t.Fatalf("black = %d, want 10000", got)
	}
}

func TestStoppedClockDoesNotTick(t *testing.T) {
	c := newTestClock(t, 5_000, 0)
	_ = c.Start(domain.Black)
	c.Stop()
	c.Stop()
	if _, flagged := c.Tick(); flagged {
		t.Fatalf("stopped clock flagged")
	}
	if got := c.Remaining(domain.Black); got != 5_000 {
		t.Fatalf("black = %d, want 5000", got)
	}
	if c.ActiveSide() != domain.Black || c.Running() {
		t.Fatalf("unexpected state %+v", c.State())
	}
}

func TestTimeoutReportedOnceAndClamped(t *testing.T) {
	c := New(domain.TimeControl{Base: 1500 * time.Millisecond}, time.Second)
	_ = c.Start(domain.White)
	if _, flagged := c.Tick(); flagged {
		t.Fatalf("flagged too early")
	}
	side, flagged := c.Tick()
	if !flagged || side != domain.White {
		t.Fatalf("expected white flag, got %v %v", side, flagged)
	}
	if c.Remaining(domain.White) != 0 {
		t.Fatalf("remaining went negative: %d", c.Remaining(domain.White))
	}
	if c.Running() {
		t.Fatalf("clock still running after flag")
	}
	if err := c.Start(domain.White); err != ErrExpired {
		t.Fatalf("restart after flag: %v", err)
	}
	if _, flagged := c.Tick(); flagged {
		t.Fatalf("flag reported twice")
	}
}

func TestIncrementGoesToNamedSide(t *testing.T) {
	c := newTestClock(t, 60_000, 5_000)
	_ = c.Start(domain.Black)
	c.Credit(domain.White)
	if got := c.Remaining(domain.White); got != 65_000 {
		t.Fatalf("white = %d", got)
	}
	if got := c.Remaining(domain.Black); got != 60_000 {
		t.Fatalf("black = %d", got)
	}
	b := c.Budgets()
	if b.WhiteMillis != 65_000 || b.BlackMillis != 60_000 || b.WhiteIncrementMillis != 5_000 || b.BlackIncrementMillis != 5_000 {
		t.Fatalf("budgets = %+v", b)
	}
}

func TestResetClearsFlag(t *testing.T) {
	c := New(domain.TimeControl{Base: time.Second}, time.Second)
	_ = c.Start(domain.Black)
	if _, flagged := c.Tick(); !flagged {
		t.Fatalf("expected flag")
	}
	c.Reset(domain.TimeControl{Base: 3 * time.Second})
	if err := c.Start(domain.Black); err != nil {
		t.Fatalf("Start after reset: %v", err)
	}
	if c.Remaining(domain.Black) != 3_000 {
		t.Fatalf("reset base not applied")
	}
}

func TestStartRejectsNoSide(t *testing.T) {
	c := newTestClock(t, 1_000, 0)
	if err := c.Start(domain.NoSide); err != ErrNoSide {
		t.Fatalf("got %v", err)
	}
}

func TestTickerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	done := make(chan struct{})
	go func() {
		NewTicker(5*time.Millisecond).Run(ctx, func(uint64) {
			if n.Add(1) == 3 {
				cancel()
			}
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("ticker did not stop")
	}
	if n.Load() < 3 {
		t.Fatalf("ticks = %d", n.Load())
	}
}

func TestTickerRephaseDropsOldTicks(t *testing.T) {
	tk := NewTicker(time.Second)
	before := tk.phase.Load()
	tk.Rephase()
	if tk.Current(before) {
		t.Fatalf("tick from the previous turn still current")
	}
	if !tk.Current(tk.phase.Load()) {
		t.Fatalf("tick from the running turn not current")
	}
}

func TestTickerRephaseRestartsInterval(t *testing.T) {
	const interval = 100 * time.Millisecond
	tk := NewTicker(interval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	ticks := make(chan time.Time, 4)
	go tk.Run(ctx, func(phase uint64) {
		if tk.Current(phase) {
			ticks <- time.Now()
		}
	})
	time.Sleep(60 * time.Millisecond)
	tk.Rephase()

	select {
	case at := <-ticks:
		if elapsed := at.Sub(start); elapsed < 140*time.Millisecond {
			t.Fatalf("first tick after %v; interval was not restarted", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no tick after rephase")
	}
}
