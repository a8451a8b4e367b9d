package domain

import "fmt"

type OutcomeKind int

const (
	InProgress OutcomeKind = iota
	Checkmate
	Draw
	Resigned
	Timeout
	// Aborted ends a game the remote side broke (illegal or unreadable move).
	Aborted
)

func (k OutcomeKind) String() string {
	switch k {
	case InProgress:
		return "in_progress"
	case Checkmate:
		return "checkmate"
	case Draw:
		return "draw"
	case Resigned:
		return "resigned"
	case Timeout:
		return "timeout"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is a tagged result.
// Side is the winner for Checkmate and the loser for Resigned and Timeout.
type Outcome struct {
	Kind   OutcomeKind
	Side   Side
	Method string
	Reason string
}

func CheckmateBy(winner Side) Outcome { return Outcome{Kind: Checkmate, Side: winner, Method: "checkmate"} }
func DrawBy(method string) Outcome { return Outcome{Kind: Draw, Method: method} }
func ResignedBy(loser Side) Outcome { return Outcome{Kind: Resigned, Side: loser, Method: "resignation"} }
func TimeoutOf(loser Side) Outcome { return Outcome{Kind: Timeout, Side: loser, Method: "timeout"} }
func AbortedFor(reason string) Outcome {
	return Outcome{Kind: Aborted, Method: "protocol_error", Reason: reason}
}

func (o Outcome) Terminal() bool { return o.Kind != InProgress }

// Winner returns NoSide for draws, aborts and games in progress.
func (o Outcome) Winner() Side {
	switch o.Kind {
	case Checkmate:
		return o.Side
	case Resigned, Timeout:
		return o.Side.Opponent()
	default:
		return NoSide
	}
}

func (o Outcome) PGNResult() string {
	switch o.Winner() {
	case White:
		return "1-0"
	case Black:
		return "0-1"
	}
	if o.Kind == Draw {
		return "1/2-1/2"
	}
	return "*"
}

func (o Outcome) String() string {
	switch o.Kind {
	case Checkmate:
		return fmt.Sprintf("checkmate(%s)", o.Side)
	case Draw:
		if o.Method != "" {
			return fmt.Sprintf("draw(%s)", o.Method)
		}
		return "draw"
	case Resigned:
		return fmt.Sprintf("resigned(%s)", o.Side)
	case Timeout:
		return fmt.Sprintf("timeout(%s)", o.Side)
	case Aborted:
		return fmt.Sprintf("aborted(%s)", o.Reason)
	default:
		return o.Kind.String()
	}
}

// ParseOutcomeKind is the inverse of OutcomeKind.String.
func ParseOutcomeKind(raw string) OutcomeKind {
	for k := InProgress; k <= Aborted; k++ {
		if k.String() == raw {
			return k
		}
	}
	return InProgress
}
