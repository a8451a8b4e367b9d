// Package clock implements a two-sided Fischer chess clock driven by discrete ticks.
//
// The clock holds no lock and starts no goroutine. Its owner (the coordinator loop)
// serializes every call, including Tick.
package clock

import (
	"errors"
	"time"

	"github.com/park285/Cheese-Clock/internal/domain"
)

const DefaultUnit = time.Second

var (
	ErrExpired = errors.New("clock: side has no time left")
	ErrNoSide  = errors.New("clock: no side to start")
)

// State is a read-only view of the clock.
type State struct {
	WhiteMillis     int64
	BlackMillis     int64
	IncrementMillis int64
	Active          domain.Side
	Running         bool
}

type Clock struct {
	white     int64
	black     int64
	increment int64
	unit      int64

	active  domain.Side
	running bool
	flagged domain.Side
}

// New creates a stopped clock. unit is the amount subtracted per Tick.
func New(tc domain.TimeControl, unit time.Duration) *Clock {
	if unit <= 0 {
		unit = DefaultUnit
	}
	c := &Clock{unit: unit.Milliseconds()}
	if c.unit <= 0 {
		c.unit = 1
	}
	c.Reset(tc)
	return c
}

// Reset stops the clock and gives both sides the base time.
func (c *Clock) Reset(tc domain.TimeControl) {
	c.white = tc.BaseMillis()
	c.black = tc.BaseMillis()
	c.increment = tc.IncrementMillis()
	c.active = domain.NoSide
	c.running = false
	c.flagged = domain.NoSide
}

func (c *Clock) Start(side domain.Side) error {
	if !side.Valid() {
		return ErrNoSide
	}
	if c.flagged != domain.NoSide || c.Remaining(side) <= 0 {
		return ErrExpired
	}
	c.active = side
	c.running = true
	return nil
}

func (c *Clock) Stop() { c.running = false }

// Tick subtracts one unit from the running side.
// It reports (side, true) the single time that side's time reaches zero.
func (c *Clock) Tick() (domain.Side, bool) {
	if !c.running || !c.active.Valid() {
		return domain.NoSide, false
	}
	left := c.ptr(c.active)
	*left -= c.unit
	if *left > 0 {
		return domain.NoSide, false
	}
	*left = 0
	c.running = false
	if c.flagged != domain.NoSide {
		return domain.NoSide, false
	}
	c.flagged = c.active
	return c.active, true
}

// ApplyIncrement credits amount to side, independent of which side is active.
func (c *Clock) ApplyIncrement(side domain.Side, amount time.Duration) {
	if !side.Valid() || amount <= 0 {
		return
	}
	*c.ptr(side) += amount.Milliseconds()
}

// Credit applies the configured increment to side.
func (c *Clock) Credit(side domain.Side) {
	c.ApplyIncrement(side, time.Duration(c.increment)*time.Millisecond)
}

func (c *Clock) Remaining(side domain.Side) int64 {
	switch side {
	case domain.White:
		return c.white
	case domain.Black:
		return c.black
	default:
		return 0
	}
}

func (c *Clock) ActiveSide() domain.Side { return c.active }
func (c *Clock) Running() bool { return c.running }
func (c *Clock) Increment() int64 { return c.increment }

func (c *Clock) State() State {
	return State{
		WhiteMillis:     c.white,
		BlackMillis:     c.black,
		IncrementMillis: c.increment,
		Active:          c.active,
		Running:         c.running,
	}
}

// Budgets reads the live times for a move request.
func (c *Clock) Budgets() domain.TimeBudgets {
	return domain.TimeBudgets{
		WhiteMillis:          c.white,
		BlackMillis:          c.black,
		WhiteIncrementMillis: c.increment,
		BlackIncrementMillis: c.increment,
	}
}

func (c *Clock) ptr(side domain.Side) *int64 {
	if side == domain.Black {
		return &c.black
	}
	return &c.white
}
