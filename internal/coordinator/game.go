package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Clock/internal/domain"
	"github.com/park285/Cheese-Clock/internal/rules"
)

// NewGame tears down the current game and starts a standard game with the
// player on side. It blocks until the engine session exists or fails.
func (c *Coordinator) NewGame(ctx context.Context, side domain.Side) error {
	if !side.Valid() {
		return fmt.Errorf("new game: %w", ErrInvalidSide)
	}
	return c.start(ctx, side, rules.StartingPosition(), domain.StartSpec{})
}

// LoadPosition starts a game from fen. With side == NoSide the player takes
// the side to move. A bad FEN is rejected before anything is torn down.
func (c *Coordinator) LoadPosition(ctx context.Context, fen string, side domain.Side) error {
	pos, err := rules.LoadFEN(fen)
	if err != nil {
		return err
	}
	if !side.Valid() {
		side = rules.SideToMove(pos)
	}
	return c.start(ctx, side, pos, domain.StartSpec{FEN: rules.StartFEN(pos)})
}

func (c *Coordinator) start(ctx context.Context, player domain.Side, pos rules.Position, spec domain.StartSpec) error {
	var gen uint64
	if err := c.call(ctx, func() error {
		gen = c.reset(player, pos)
		return nil
	}); err != nil {
		return err
	}

	begin := c.now()
	id, createErr := c.engine.CreateSession(ctx, spec)
	elapsed := c.now().Sub(begin)

	return c.call(context.WithoutCancel(ctx), func() error {
		return c.sessionCreated(gen, id, createErr, elapsed)
	})
}

// reset returns to Idle under a new generation. Replies for older generations become stale.
func (c *Coordinator) reset(player domain.Side, pos rules.Position) uint64 {
	c.generation++
	c.outbox.close()
	c.outbox = nil
	if old := c.session; !old.Empty() {
		c.goBackground("engine_end_session", func(ctx context.Context) error {
			return c.engine.EndSession(ctx, old)
		})
	}
	c.session = ""
	c.current.Store(domain.SessionID(""))

	c.clk.Stop()
	c.tc = c.nextTC
	c.clk.Reset(c.tc)

	c.pos = pos
	c.player = player
	c.state = Idle
	c.outcome = domain.Outcome{}
	c.notice = NoticeNone
	c.lastErr = nil
	c.lastMove = rules.Move{}
	c.requesting = false
	c.engineTime = 0
	c.publish()
	return c.generation
}

func (c *Coordinator) sessionCreated(gen uint64, id domain.SessionID, err error, elapsed time.Duration) error {
	if gen != c.generation {
		if err == nil {
			c.goBackground("engine_end_session", func(ctx context.Context) error {
				return c.engine.EndSession(ctx, id)
			})
		}
		return ErrSuperseded
	}
	if err != nil {
		c.metrics.SessionFailures.Inc()
		c.logger.Warn("engine_session_create_failed", zap.Uint64("generation", gen), zap.Error(err))
		c.notice = NoticeCannotStart
		c.lastErr = fmt.Errorf("%w: %w", ErrCannotStart, err)
		c.publish()
		return c.lastErr
	}

	c.session = id
	c.current.Store(id)
	c.outbox = newOutbox(c.root)
	c.startedAt = c.now()
	c.logger.Info("game_started",
		zap.String("session", string(id)),
		zap.String("player", c.player.String()),
		zap.String("fen", rules.FEN(c.pos)),
		zap.Duration("create_latency", elapsed),
	)

	if o := rules.Classify(c.pos); o.Terminal() {
		c.finish(o)
		c.publish()
		return nil
	}
	mover := rules.SideToMove(c.pos)
	if err := c.startClock(mover); err != nil {
		c.finish(domain.TimeoutOf(mover))
		c.publish()
		return nil
	}
	if mover == c.player {
		c.state = WaitingForLocalMove
	} else {
		c.state = WaitingForRemoteMove
		c.requestRemote()
	}
	c.publish()
	return nil
}

// LocalMove plays the human's move. Only accepted while waiting for it.
func (c *Coordinator) LocalMove(ctx context.Context, from, to, promotion string) error {
	return c.call(ctx, func() error {
		if c.state != WaitingForLocalMove {
			return ErrNotYourTurn
		}
		mv, err := rules.LegalMove(c.pos, from, to, promotion)
		if err != nil {
			return err
		}
		finished, err := c.commit(c.player, mv, "local")
		if err != nil {
			return err
		}
		if !finished {
			c.state = WaitingForRemoteMove
			c.requestRemote()
		}
		c.publish()
		return nil
	})
}

// Resign ends the game for side; NoSide means the local player.
func (c *Coordinator) Resign(ctx context.Context, side domain.Side) error {
	return c.call(ctx, func() error {
		if !c.state.InGame() {
			return ErrNotInGame
		}
		if !side.Valid() {
			side = c.player
		}
		c.finish(domain.ResignedBy(side))
		c.publish()
		return nil
	})
}

// RetryEngine re-issues the move request after a failure.
func (c *Coordinator) RetryEngine(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.state != WaitingForRemoteMove {
			return ErrNotYourTurn
		}
		if c.requesting {
			return ErrRequestPending
		}
		c.requestRemote()
		c.publish()
		return nil
	})
}

// SetTimeControl applies from the next NewGame or LoadPosition; a running clock is untouched.
func (c *Coordinator) SetTimeControl(ctx context.Context, tc domain.TimeControl) error {
	if tc.Base <= 0 {
		return ErrInvalidTimeControl
	}
	return c.call(ctx, func() error {
		c.nextTC = tc
		c.publish()
		return nil
	})
}

// Tick advances the clock by one unit. The internal ticker calls the same path.
func (c *Coordinator) Tick(ctx context.Context) error {
	return c.call(ctx, func() error {
		c.tick()
		return nil
	})
}

func (c *Coordinator) tick() {
	side, flagged := c.clk.Tick()
	if flagged {
		c.timedOut(side)
		return
	}
	if c.clk.Running() {
		c.publish()
	}
}

func (c *Coordinator) timedOut(side domain.Side) {
	if !c.state.InGame() {
		return
	}
	c.logger.Info("clock_flag_fell", zap.String("side", side.String()), zap.String("session", string(c.session)))
	c.finish(domain.TimeoutOf(side))
	c.publish()
}

// requestRemote issues the single outstanding bestmove for the current turn.
// Budgets are read from the live clock right before the request goes out.
func (c *Coordinator) requestRemote() {
	if c.requesting || c.state != WaitingForRemoteMove || c.outbox == nil {
		return
	}
	tc := TurnContext{
		Generation: c.generation,
		SessionID:  c.session,
		Mover:      rules.SideToMove(c.pos),
		MoveNumber: rules.Ply(c.pos),
	}
	c.requesting = true
	c.notice = NoticeNone
	c.lastErr = nil

	c.outbox.push(func(ctx context.Context) {
		budgets, ok := c.liveBudgets(ctx, tc)
		if !ok {
			return
		}
		tc.Budgets = budgets
		tc.IssuedAt = c.now()
		mv, err := c.engine.RequestMove(ctx, tc.SessionID, tc.Budgets)
		c.post(func() { c.remoteReply(tc, mv, err) })
	})
}

func (c *Coordinator) liveBudgets(ctx context.Context, tc TurnContext) (domain.TimeBudgets, bool) {
	var (
		b     domain.TimeBudgets
		fresh bool
	)
	err := c.call(ctx, func() error {
		if fresh = !c.stale(tc); fresh {
			b = c.clk.Budgets()
		}
		return nil
	})
	return b, err == nil && fresh
}

func (c *Coordinator) stale(tc TurnContext) bool {
	return tc.Generation != c.generation ||
		tc.SessionID != c.session ||
		c.state != WaitingForRemoteMove ||
		tc.MoveNumber != rules.Ply(c.pos)
}

func (c *Coordinator) remoteReply(tc TurnContext, notation string, err error) {
	if c.stale(tc) {
		c.metrics.StaleDropped.Inc()
		c.logger.Debug("stale_response_dropped",
			zap.Uint64("generation", tc.Generation),
			zap.Uint64("current_generation", c.generation),
			zap.String("session", string(tc.SessionID)),
			zap.String("move", notation),
		)
		return
	}
	c.requesting = false
	latency := c.now().Sub(tc.IssuedAt)
	c.metrics.RequestLatency.Observe(latency.Seconds())
	c.engineTime += latency

	if err != nil {
		// the engine's clock keeps running; the player may wait, retry or resign
		c.metrics.EngineFailures.Inc()
		c.logger.Warn("engine_request_failed", zap.String("session", string(tc.SessionID)), zap.Error(err))
		c.notice = NoticeEngineUnavailable
		c.lastErr = fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
		c.publish()
		return
	}

	mv, perr := rules.ParseMove(c.pos, notation)
	if perr != nil {
		c.abort(&ProtocolError{SessionID: tc.SessionID, Move: notation, Err: perr})
		return
	}
	finished, cerr := c.commit(tc.Mover, mv, "remote")
	if cerr != nil {
		c.abort(&ProtocolError{SessionID: tc.SessionID, Move: notation, Err: cerr})
		return
	}
	if !finished {
		c.state = WaitingForLocalMove
	}
	c.publish()
}

// commit plays mv for mover: stop, increment the mover, apply, report, classify,
// then start the opponent. It reports whether the game ended.
func (c *Coordinator) commit(mover domain.Side, mv rules.Move, origin string) (bool, error) {
	next, err := rules.ApplyMove(c.pos, mv)
	if err != nil {
		return false, err
	}
	c.clk.Stop()
	c.clk.Credit(mover)
	c.pos = next
	c.lastMove = mv
	c.metrics.Moves.WithLabelValues(origin).Inc()
	c.report(mv.UCI)

	if o := rules.Classify(c.pos); o.Terminal() {
		c.finish(o)
		return true, nil
	}
	opponent := rules.SideToMove(c.pos)
	if err := c.startClock(opponent); err != nil {
		c.finish(domain.TimeoutOf(opponent))
		return true, nil
	}
	return false, nil
}

// startClock runs side's clock and restarts the tick interval from now.
func (c *Coordinator) startClock(side domain.Side) error {
	if err := c.clk.Start(side); err != nil {
		return err
	}
	c.ticker.Rephase()
	return nil
}

func (c *Coordinator) report(move string) {
	id := c.session
	c.outbox.push(func(ctx context.Context) {
		if err := c.engine.ReportMove(ctx, id, move); err != nil {
			c.logger.Warn("engine_report_move_failed", zap.String("session", string(id)), zap.String("move", move), zap.Error(err))
			c.metrics.ReportFailures.Inc()
		}
	})
}

func (c *Coordinator) abort(perr *ProtocolError) {
	c.logger.Error("engine_protocol_error", zap.String("session", string(perr.SessionID)), zap.String("move", perr.Move), zap.Error(perr.Err))
	c.finish(domain.AbortedFor(perr.Error()))
	c.lastErr = perr
	c.publish()
}

// finish is the only way into Finished. The clock never runs after it.
func (c *Coordinator) finish(o domain.Outcome) {
	c.clk.Stop()
	c.outcome = o
	c.state = Finished
	c.requesting = false
	c.notice = NoticeNone
	c.lastErr = nil
	c.metrics.GamesFinished.WithLabelValues(o.Kind.String()).Inc()
	c.logger.Info("game_finished",
		zap.String("session", string(c.session)),
		zap.String("outcome", o.String()),
		zap.Int("ply", rules.Ply(c.pos)),
	)
	if c.recorder != nil {
		rec := c.buildRecord()
		c.goBackground("game_record", func(ctx context.Context) error {
			return c.recorder.Record(ctx, rec)
		})
	}
}

func (c *Coordinator) buildRecord() *domain.GameRecord {
	ended := c.now()
	started := c.startedAt
	if started.IsZero() {
		started = ended
	}
	winner := c.outcome.Winner()
	result := "draw"
	switch {
	case winner.Valid():
		result = winner.String()
	case c.outcome.Kind == domain.Aborted:
		result = "aborted"
	}
	return &domain.GameRecord{
		ID:            uuid.NewString(),
		SessionID:     c.session,
		PlayerSide:    c.player,
		StartFEN:      rules.StartFEN(c.pos),
		Result:        result,
		ResultMethod:  c.outcome.Method,
		Outcome:       c.outcome,
		MovesUCI:      rules.Moves(c.pos),
		MovesSAN:      rules.SANMoves(c.pos),
		FinalFEN:      rules.FEN(c.pos),
		TimeControl:   c.tc,
		WhiteLeft:     time.Duration(c.clk.Remaining(domain.White)) * time.Millisecond,
		BlackLeft:     time.Duration(c.clk.Remaining(domain.Black)) * time.Millisecond,
		StartedAt:     started,
		EndedAt:       ended,
		Duration:      ended.Sub(started),
		EngineLatency: c.engineTime,
	}
}
