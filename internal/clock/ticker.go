package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// Ticker drives a Clock at a fixed interval. Rephase restarts the interval when a
// side's clock starts, so every turn is charged from its own start.
type Ticker struct {
	interval time.Duration
	rephase  chan struct{}
	phase    atomic.Uint64
}

func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{interval: interval, rephase: make(chan struct{}, 1)}
}

// Rephase restarts the interval. Ticks fired under the previous phase are no longer Current.
// The signal goes out before the phase moves so a tick carrying the new phase never beats the reset.
func (t *Ticker) Rephase() {
	if t == nil {
		return
	}
	select {
	case t.rephase <- struct{}{}:
	default:
	}
	t.phase.Add(1)
}

// Current reports whether a tick fired under phase still belongs to the running turn.
func (t *Ticker) Current(phase uint64) bool {
	return t != nil && t.phase.Load() == phase
}

// Run calls fn with the phase of each tick until ctx is done.
// fn must not block for long; the coordinator posts the tick into its loop.
func (t *Ticker) Run(ctx context.Context, fn func(phase uint64)) {
	if t == nil || t.interval <= 0 || fn == nil {
		return
	}
	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.rephase:
			tk.Reset(t.interval)
		case <-tk.C:
			phase := t.phase.Load()
			select {
			case <-t.rephase:
				tk.Reset(t.interval)
				continue
			default:
			}
			fn(phase)
		}
	}
}
