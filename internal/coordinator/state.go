package coordinator

import (
	"time"

	"github.com/park285/Cheese-Clock/internal/clock"
	"github.com/park285/Cheese-Clock/internal/domain"
)

type State int

const (
	Idle State = iota
	WaitingForLocalMove
	WaitingForRemoteMove
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitingForLocalMove:
		return "waiting_local"
	case WaitingForRemoteMove:
		return "waiting_remote"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

func (s State) InGame() bool { return s == WaitingForLocalMove || s == WaitingForRemoteMove }

type Notice string

const (
	NoticeNone              Notice = ""
	NoticeCannotStart       Notice = "cannot_start"
	NoticeEngineUnavailable Notice = "engine_unavailable"
)

// TurnContext pins an outstanding move request to the game it was issued for.
type TurnContext struct {
	Generation uint64
	SessionID  domain.SessionID
	Mover      domain.Side
	MoveNumber int
	Budgets    domain.TimeBudgets
	IssuedAt   time.Time
}

// Snapshot is what the presentation layer sees after every transition.
type Snapshot struct {
	State       State
	Generation  uint64
	SessionID   domain.SessionID
	PlayerSide  domain.Side
	SideToMove  domain.Side
	FEN         string
	StartFEN    string
	Moves       []string
	LastMove    string
	LastSAN     string
	Clock       clock.State
	Outcome     domain.Outcome
	Requesting  bool
	Notice      Notice
	Err         error
	TimeControl domain.TimeControl
	// NextTimeControl takes effect at the next NewGame or LoadPosition.
	NextTimeControl domain.TimeControl
}

func (s Snapshot) Ply() int { return len(s.Moves) }
