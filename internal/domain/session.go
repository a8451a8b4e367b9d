package domain

import (
	"math"
	"strings"
	"time"
)

// SessionID is the opaque token handed out by the remote engine service.
type SessionID string

func (id SessionID) Empty() bool { return strings.TrimSpace(string(id)) == "" }

// StartSpec selects the initial position of a remote session.
// An empty FEN means the standard starting position.
type StartSpec struct {
	FEN string
}

func (s StartSpec) Standard() bool { return strings.TrimSpace(s.FEN) == "" }

// Body renders the newgame payload: "startpos" or "fen <fen>".
func (s StartSpec) Body() string {
	if s.Standard() {
		return "startpos"
	}
	return "fen " + strings.TrimSpace(s.FEN)
}

// TimeBudgets are the remaining times sent with a move request, in milliseconds.
type TimeBudgets struct {
	WhiteMillis          int64
	BlackMillis          int64
	WhiteIncrementMillis int64
	BlackIncrementMillis int64
}

// TimeControl is base time per side plus Fischer increment.
type TimeControl struct {
	Base      time.Duration
	Increment time.Duration
}

// TimeControlOf converts fractional minutes/seconds, rounding to the millisecond.
func TimeControlOf(baseMinutes, incrementSeconds float64) TimeControl {
	if baseMinutes < 0 || math.IsNaN(baseMinutes) {
		baseMinutes = 0
	}
	if incrementSeconds < 0 || math.IsNaN(incrementSeconds) {
		incrementSeconds = 0
	}
	return TimeControl{
		Base:      time.Duration(math.Round(baseMinutes*60*1000)) * time.Millisecond,
		Increment: time.Duration(math.Round(incrementSeconds*1000)) * time.Millisecond,
	}
}

func (tc TimeControl) BaseMillis() int64 { return tc.Base.Milliseconds() }
func (tc TimeControl) IncrementMillis() int64 { return tc.Increment.Milliseconds() }
