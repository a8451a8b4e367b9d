package coordinator

import (
	"context"
	"sync"
)

// outbox runs one session's engine calls in order on a single goroutine,
// so a move report always reaches the server before the next bestmove.
type outbox struct {
	mu     sync.Mutex
	queue  []func(context.Context)
	wake   chan struct{}
	closed bool
}

func newOutbox(ctx context.Context) *outbox {
	o := &outbox{wake: make(chan struct{}, 1)}
	go o.run(ctx)
	return o
}

func (o *outbox) push(fn func(context.Context)) {
	if o == nil || fn == nil {
		return
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, fn)
	o.mu.Unlock()
	o.signal()
}

// close drops queued work. A call already running finishes on its own.
func (o *outbox) close() {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.closed = true
	o.queue = nil
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *outbox) run(ctx context.Context) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return
		}
		if len(o.queue) == 0 {
			o.mu.Unlock()
			select {
			case <-o.wake:
			case <-ctx.Done():
				return
			}
			continue
		}
		fn := o.queue[0]
		o.queue[0] = nil
		o.queue = o.queue[1:]
		o.mu.Unlock()
		fn(ctx)
	}
}
