package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-Clock/internal/adapter/chesspresenter"
	"github.com/park285/Cheese-Clock/internal/coordinator"
	"github.com/park285/Cheese-Clock/internal/domain"
	"github.com/park285/Cheese-Clock/pkg/chessdto"
)

const (
	writeTimeout   = 5 * time.Second
	commandTimeout = 30 * time.Second
	replyQueue     = 16
)

type reply struct {
	id   string
	err  error
	bad  *chessdto.DomainError
	flip bool
}

// conn is one viewer. Snapshots coalesce to the latest one; replies queue in order.
// Only the writer goroutine touches the presenter.
type conn struct {
	srv *Server
	ws  *websocket.Conn
	log *zap.Logger

	mu     sync.Mutex
	latest *coordinator.Snapshot
	wake   chan struct{}

	replies chan reply

	// mirrors the presenter's orientation for the read loop; flips are applied to both
	orientation domain.Side
}

func newConn(s *Server, ws *websocket.Conn) *conn {
	return &conn{
		srv:         s,
		ws:          ws,
		log:         s.logger,
		wake:        make(chan struct{}, 1),
		replies:     make(chan reply, replyQueue),
		orientation: s.defaultSide,
	}
}

func (c *conn) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	subID := c.srv.coord.Subscribe(c.offer)
	defer c.srv.coord.Unsubscribe(subID)
	if snap, err := c.srv.coord.Snapshot(ctx); err == nil {
		c.offer(snap)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		c.writeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.pingLoop(ctx, cancel)
	}()

	err := c.readLoop(ctx)
	cancel()
	wg.Wait()

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Debug("ws_conn_closed", zap.Error(err))
	}
	_ = c.ws.Close(websocket.StatusGoingAway, "closing")
}

// offer runs on the coordinator loop and must not block.
func (c *conn) offer(s coordinator.Snapshot) {
	c.mu.Lock()
	c.latest = &s
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *conn) take() *coordinator.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.latest
	c.latest = nil
	return s
}

func (c *conn) writeLoop(ctx context.Context) {
	var last *coordinator.Snapshot
	p := chesspresenter.NewPresenter(c.srv.format, func(env *chessdto.Envelope) error {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return wsjson.Write(wctx, c.ws, env)
	}, c.srv.defaultSide)

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			if s := c.take(); s != nil {
				last = s
				err = p.Snapshot(*s)
			}
		case r := <-c.replies:
			switch {
			case r.flip:
				p.Flip()
				if err = p.Reply(r.id, nil); err == nil && last != nil {
					err = p.Snapshot(*last)
				}
			case r.bad != nil:
				err = p.Reject(r.id, *r.bad)
			default:
				err = p.Reply(r.id, r.err)
			}
		}
		if err != nil {
			c.log.Debug("ws_write_failed", zap.Error(err))
			return
		}
	}
}

func (c *conn) readLoop(ctx context.Context) error {
	for {
		var cmd chessdto.Command
		if err := wsjson.Read(ctx, c.ws, &cmd); err != nil {
			return err
		}
		r := c.dispatch(ctx, cmd)
		select {
		case c.replies <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *conn) dispatch(parent context.Context, cmd chessdto.Command) reply {
	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()
	coord := c.srv.coord
	r := reply{id: cmd.ID}

	switch strings.TrimSpace(cmd.Type) {
	case chessdto.CmdNewGame:
		side := c.srv.defaultSide
		if strings.TrimSpace(cmd.Side) != "" {
			parsed, err := domain.ParseSide(cmd.Side)
			if err != nil {
				r.err = coordinator.ErrInvalidSide
				return r
			}
			side = parsed
		}
		r.err = coord.NewGame(ctx, side)
	case chessdto.CmdLoadPosition:
		// the player sits on the side the viewer has at the bottom
		side := c.orientation
		if strings.TrimSpace(cmd.Side) != "" {
			parsed, err := domain.ParseSide(cmd.Side)
			if err != nil {
				r.err = coordinator.ErrInvalidSide
				return r
			}
			side = parsed
		}
		r.err = coord.LoadPosition(ctx, cmd.FEN, side)
	case chessdto.CmdMove:
		from, to, promo := splitMove(cmd)
		r.err = coord.LocalMove(ctx, from, to, promo)
	case chessdto.CmdResign:
		r.err = coord.Resign(ctx, domain.NoSide)
	case chessdto.CmdRetryEngine:
		r.err = coord.RetryEngine(ctx)
	case chessdto.CmdSetTimeControl:
		r.err = coord.SetTimeControl(ctx, domain.TimeControlOf(cmd.BaseMinutes, cmd.IncrementSeconds))
	case chessdto.CmdFlip:
		c.orientation = c.orientation.Opponent()
		r.flip = true
	default:
		bad := c.srv.format.UnknownCommand(cmd.Type)
		r.bad = &bad
	}
	if r.err != nil {
		c.log.Debug("ws_command_rejected", zap.String("type", cmd.Type), zap.Error(r.err))
	}
	return r
}

// splitMove accepts either from/to squares or a single UCI string in From.
func splitMove(cmd chessdto.Command) (from, to, promo string) {
	from, to, promo = strings.TrimSpace(cmd.From), strings.TrimSpace(cmd.To), strings.TrimSpace(cmd.Promotion)
	if to == "" && len(from) >= 4 {
		if len(from) > 4 && promo == "" {
			promo = from[4:]
		}
		from, to = from[:2], from[2:4]
	}
	return from, to, promo
}

func (c *conn) pingLoop(ctx context.Context, cancel context.CancelFunc) {
	t := time.NewTicker(c.srv.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.ws.Ping(pctx)
			pcancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				c.log.Debug("ws_ping_failed", zap.Error(err))
				cancel()
				return
			}
		}
	}
}
