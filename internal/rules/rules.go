// Package rules adapts corentings/chess to the coordinator.
// Every function is pure: a Position is never mutated in place.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/Cheese-Clock/internal/domain"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrParse       = errors.New("invalid FEN")
)

// IllegalMoveError rejects a move without touching the position.
type IllegalMoveError struct {
	Move   string
	Reason string
}

func (e *IllegalMoveError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("illegal move %q", e.Move)
	}
	return fmt.Sprintf("illegal move %q: %s", e.Move, e.Reason)
}

func (e *IllegalMoveError) Is(target error) bool { return target == ErrIllegalMove }

type ParseError struct {
	FEN string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse fen %q: %v", e.FEN, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Position is an immutable game state: placement, side to move and history.
type Position struct {
	game     *nchess.Game
	startFEN string
}

// Move is a validated move, bound to the position it was validated against.
type Move struct {
	UCI string
	SAN string
}

func (m Move) String() string { return m.UCI }

func StartingPosition() Position {
	return Position{game: nchess.NewGame()}
}

func LoadFEN(fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return Position{}, &ParseError{FEN: fen, Err: errors.New("empty")}
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return Position{}, &ParseError{FEN: fen, Err: err}
	}
	return Position{game: nchess.NewGame(opt), startFEN: fen}, nil
}

// LegalMove validates a from/to pair. A missing promotion piece defaults to a queen.
func LegalMove(p Position, from, to, promotion string) (Move, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))
	if len(from) != 2 || len(to) != 2 {
		return Move{}, &IllegalMoveError{Move: from + to + promotion, Reason: "malformed square"}
	}
	raw := from + to + promotion
	mv, err := validate(p, raw)
	if err != nil && promotion == "" {
		if promoted, perr := validate(p, raw+"q"); perr == nil {
			return promoted, nil
		}
	}
	return mv, err
}

// ParseMove reads a remote move in UCI (long algebraic) or SAN.
func ParseMove(p Position, notation string) (Move, error) {
	raw := strings.TrimSpace(notation)
	if raw == "" {
		return Move{}, &IllegalMoveError{Move: notation, Reason: "empty"}
	}
	if mv, err := validate(p, strings.ToLower(raw)); err == nil {
		return mv, nil
	}
	g := p.current()
	pos := g.Position()
	decoded, err := nchess.AlgebraicNotation{}.Decode(pos, raw)
	if err != nil {
		return Move{}, &IllegalMoveError{Move: raw, Reason: "unreadable notation"}
	}
	return validate(p, nchess.UCINotation{}.Encode(pos, decoded))
}

// ApplyMove returns the position after m. p is left untouched.
func ApplyMove(p Position, m Move) (Position, error) {
	next := p.current().Clone()
	decoded, err := nchess.UCINotation{}.Decode(next.Position(), m.UCI)
	if err != nil {
		return p, &IllegalMoveError{Move: m.UCI, Reason: err.Error()}
	}
	if err := next.Move(decoded, nil); err != nil {
		return p, &IllegalMoveError{Move: m.UCI, Reason: err.Error()}
	}
	return Position{game: next, startFEN: p.startFEN}, nil
}

func SideToMove(p Position) domain.Side {
	return sideOf(p.current().Position().Turn())
}

// Classify derives checkmate, draw or in-progress from the position alone.
func Classify(p Position) domain.Outcome {
	g := p.current()
	switch g.Outcome() {
	case nchess.WhiteWon:
		return domain.CheckmateBy(domain.White)
	case nchess.BlackWon:
		return domain.CheckmateBy(domain.Black)
	case nchess.Draw:
		return domain.DrawBy(methodName(g.Method()))
	}
	// positions loaded from FEN are not evaluated until a move is made
	pos := g.Position()
	switch pos.Status() {
	case nchess.Checkmate:
		return domain.CheckmateBy(sideOf(pos.Turn()).Opponent())
	case nchess.Stalemate:
		return domain.DrawBy(methodName(nchess.Stalemate))
	}
	return domain.Outcome{}
}

func FEN(p Position) string { return p.current().FEN() }

// StartFEN is empty for the standard start position.
func StartFEN(p Position) string { return p.startFEN }

func Ply(p Position) int { return len(p.current().Moves()) }

// Moves returns the history in UCI notation.
func Moves(p Position) []string {
	g := p.current()
	moves := g.Moves()
	positions := g.Positions()
	out := make([]string, 0, len(moves))
	for i, mv := range moves {
		if i < len(positions) {
			out = append(out, strings.ToLower(nchess.UCINotation{}.Encode(positions[i], mv)))
		}
	}
	return out
}

func SANMoves(p Position) []string {
	g := p.current()
	moves := g.Moves()
	positions := g.Positions()
	out := make([]string, 0, len(moves))
	for i, mv := range moves {
		if i < len(positions) {
			out = append(out, nchess.AlgebraicNotation{}.Encode(positions[i], mv))
		}
	}
	return out
}

func validate(p Position, uci string) (Move, error) {
	clone := p.current().Clone()
	pos := clone.Position()
	decoded, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return Move{}, &IllegalMoveError{Move: uci, Reason: "unreadable notation"}
	}
	if err := clone.Move(decoded, nil); err != nil {
		return Move{}, &IllegalMoveError{Move: uci}
	}
	return Move{
		UCI: strings.ToLower(nchess.UCINotation{}.Encode(pos, decoded)),
		SAN: nchess.AlgebraicNotation{}.Encode(pos, decoded),
	}, nil
}

func (p Position) current() *nchess.Game {
	if p.game == nil {
		return nchess.NewGame()
	}
	return p.game
}

func sideOf(c nchess.Color) domain.Side {
	if c == nchess.Black {
		return domain.Black
	}
	return domain.White
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Stalemate:
		return "stalemate"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	default:
		return strings.ToLower(m.String())
	}
}
