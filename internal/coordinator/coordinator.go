// Package coordinator sequences a human vs. engine game.
//
// Every mutation of the position, the clock and the session happens on the goroutine
// running Run. Commands, clock ticks and engine replies are posted to that loop as
// closures; network calls run elsewhere and post their results back together with the
// TurnContext they were issued under.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Clock/internal/clock"
	"github.com/park285/Cheese-Clock/internal/domain"
	"github.com/park285/Cheese-Clock/internal/rules"
)

// Engine is the remote session protocol as the coordinator uses it.
type Engine interface {
	CreateSession(ctx context.Context, spec domain.StartSpec) (domain.SessionID, error)
	EndSession(ctx context.Context, id domain.SessionID) error
	RequestMove(ctx context.Context, id domain.SessionID, budgets domain.TimeBudgets) (string, error)
	ReportMove(ctx context.Context, id domain.SessionID, move string) error
}

// Recorder receives finished games. Failures are logged only.
type Recorder interface {
	Record(ctx context.Context, g *domain.GameRecord) error
}

const (
	defaultTimeControlMinutes = 10
	defaultIncrementSeconds   = 5
	bestEffortTimeout         = 5 * time.Second
)

type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTimeControl sets the time control used by the first game.
func WithTimeControl(tc domain.TimeControl) Option {
	return func(c *Coordinator) { c.nextTC = tc }
}

// WithTickInterval drives the clock from an internal ticker. Each tick subtracts d.
func WithTickInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		c.tickInterval = d
		if d > 0 {
			c.tickUnit = d
		}
	}
}

// WithManualTicks disables the internal ticker; callers drive the clock with Tick.
func WithManualTicks(unit time.Duration) Option {
	return func(c *Coordinator) {
		c.tickInterval = 0
		if unit > 0 {
			c.tickUnit = unit
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

type Coordinator struct {
	engine   Engine
	recorder Recorder
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time

	tickInterval time.Duration
	tickUnit     time.Duration
	ticker       *clock.Ticker

	events  chan func()
	done    chan struct{}
	running atomic.Bool
	current atomic.Value // domain.SessionID, read by the heartbeat
	bg      sync.WaitGroup

	subM      sync.RWMutex
	subs      []subscriber
	nextSubID int

	// owned by the loop goroutine
	root       context.Context
	state      State
	pos        rules.Position
	clk        *clock.Clock
	tc         domain.TimeControl
	nextTC     domain.TimeControl
	player     domain.Side
	session    domain.SessionID
	generation uint64
	outcome    domain.Outcome
	notice     Notice
	lastErr    error
	lastMove   rules.Move
	requesting bool
	outbox     *outbox
	startedAt  time.Time
	engineTime time.Duration
}

func New(engine Engine, opts ...Option) *Coordinator {
	c := &Coordinator{
		engine:       engine,
		logger:       zap.NewNop(),
		now:          time.Now,
		tickInterval: clock.DefaultUnit,
		tickUnit:     clock.DefaultUnit,
		events:       make(chan func(), 64),
		done:         make(chan struct{}),
		nextTC:       domain.TimeControlOf(defaultTimeControlMinutes, defaultIncrementSeconds),
		pos:          rules.StartingPosition(),
		root:         context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	c.tc = c.nextTC
	c.clk = clock.New(c.tc, c.tickUnit)
	if c.tickInterval > 0 {
		c.ticker = clock.NewTicker(c.tickInterval)
	}
	c.current.Store(domain.SessionID(""))
	return c
}

// Run owns all game state until ctx is done. It ends the live session on the way out.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrStopped
	}
	c.root = ctx
	defer close(c.done)

	if c.ticker != nil {
		go c.ticker.Run(ctx, func(phase uint64) {
			c.post(func() {
				if c.ticker.Current(phase) {
					c.tick()
				}
			})
		})
	}

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case ev := <-c.events:
			ev()
		}
	}
}

func (c *Coordinator) shutdown() {
	c.clk.Stop()
	c.outbox.close()
	if !c.session.Empty() {
		ctx, cancel := context.WithTimeout(context.Background(), bestEffortTimeout)
		if err := c.engine.EndSession(ctx, c.session); err != nil {
			c.logger.Warn("engine_end_session_failed", zap.String("session", string(c.session)), zap.Error(err))
		}
		cancel()
	}
	c.session = ""
	c.current.Store(domain.SessionID(""))
	c.bg.Wait()
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// CurrentSession is safe to call from any goroutine.
func (c *Coordinator) CurrentSession() domain.SessionID {
	id, _ := c.current.Load().(domain.SessionID)
	return id
}

// Subscribe registers fn for every published snapshot.
// fn runs on the loop goroutine and must not block or call back into the coordinator.
func (c *Coordinator) Subscribe(fn func(Snapshot)) int {
	c.subM.Lock()
	defer c.subM.Unlock()
	c.nextSubID++
	c.subs = append(c.subs, subscriber{id: c.nextSubID, fn: fn})
	return c.nextSubID
}

func (c *Coordinator) Unsubscribe(id int) {
	c.subM.Lock()
	defer c.subM.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
}

func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.call(ctx, func() error {
		snap = c.snapshot()
		return nil
	})
	return snap, err
}

// post queues fn on the loop. It reports false once the loop has stopped.
func (c *Coordinator) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the loop and waits for its result.
func (c *Coordinator) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.events <- func() { reply <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrStopped
		}
	}
}

func (c *Coordinator) snapshot() Snapshot {
	snap := Snapshot{
		State:           c.state,
		Generation:      c.generation,
		SessionID:       c.session,
		PlayerSide:      c.player,
		SideToMove:      rules.SideToMove(c.pos),
		FEN:             rules.FEN(c.pos),
		StartFEN:        rules.StartFEN(c.pos),
		Moves:           rules.Moves(c.pos),
		LastMove:        c.lastMove.UCI,
		LastSAN:         c.lastMove.SAN,
		Clock:           c.clk.State(),
		Outcome:         c.outcome,
		Requesting:      c.requesting,
		Notice:          c.notice,
		Err:             c.lastErr,
		TimeControl:     c.tc,
		NextTimeControl: c.nextTC,
	}
	return snap
}

func (c *Coordinator) publish() {
	c.subM.RLock()
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.subM.RUnlock()
	if len(subs) == 0 {
		return
	}
	snap := c.snapshot()
	for _, s := range subs {
		if s.fn != nil {
			s.fn(snap)
		}
	}
}

// goBackground runs a best-effort task detached from game flow.
func (c *Coordinator) goBackground(name string, fn func(ctx context.Context) error) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.root), bestEffortTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			c.logger.Warn(name+"_failed", zap.Error(err))
		}
	}()
}
