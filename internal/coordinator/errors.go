package coordinator

import (
	"errors"
	"fmt"

	"github.com/park285/Cheese-Clock/internal/domain"
)

var (
	ErrNotYourTurn        = errors.New("not your turn")
	ErrNotInGame          = errors.New("no game in progress")
	ErrCannotStart        = errors.New("cannot start game")
	ErrEngineUnavailable  = errors.New("engine unavailable")
	ErrRequestPending     = errors.New("engine request already in flight")
	ErrSuperseded         = errors.New("superseded by a newer game")
	ErrStopped            = errors.New("coordinator stopped")
	ErrInvalidSide        = errors.New("invalid side")
	ErrInvalidTimeControl = errors.New("time control: base must be positive")
)

// ProtocolError means the engine answered with a move the position does not allow.
// It ends the game; it is never retried.
type ProtocolError struct {
	SessionID domain.SessionID
	Move      string
	Err       error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("engine protocol error (session=%s move=%q): %v", e.SessionID, e.Move, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
