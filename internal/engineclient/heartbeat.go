package engineclient

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Clock/internal/domain"
)

const DefaultHeartbeatInterval = 30 * time.Second

// Pinger is the part of the client the heartbeat needs.
type Pinger interface {
	Heartbeat(ctx context.Context, id domain.SessionID) error
}

// Heartbeater keeps the current remote session alive for the life of the process.
// It only reads the session ID; it never touches game state.
type Heartbeater struct {
	pinger   Pinger
	current  func() domain.SessionID
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	onResult func(domain.SessionID, error)
}

type HeartbeatOption func(*Heartbeater)

func WithHeartbeatInterval(d time.Duration) HeartbeatOption {
	return func(h *Heartbeater) {
		if d > 0 {
			h.interval = d
		}
	}
}

func WithHeartbeatLogger(l *zap.Logger) HeartbeatOption {
	return func(h *Heartbeater) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHeartbeatObserver is called after every attempt. Tests use it to count beats.
func WithHeartbeatObserver(fn func(domain.SessionID, error)) HeartbeatOption {
	return func(h *Heartbeater) { h.onResult = fn }
}

func NewHeartbeater(p Pinger, current func() domain.SessionID, opts ...HeartbeatOption) *Heartbeater {
	h := &Heartbeater{
		pinger:   p,
		current:  current,
		interval: DefaultHeartbeatInterval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.timeout = h.interval
	if h.timeout > 10*time.Second {
		h.timeout = 10 * time.Second
	}
	return h
}

func (h *Heartbeater) Run(ctx context.Context) {
	if h == nil || h.pinger == nil || h.current == nil {
		return
	}
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeater) beat(ctx context.Context) {
	id := h.current()
	if id.Empty() {
		return
	}
	hctx, cancel := context.WithTimeout(ctx, h.timeout)
	err := h.pinger.Heartbeat(hctx, id)
	cancel()
	if err != nil {
		h.logger.Warn("engine_heartbeat_failed", zap.String("session", string(id)), zap.Error(err))
	}
	if h.onResult != nil {
		h.onResult(id, err)
	}
}
