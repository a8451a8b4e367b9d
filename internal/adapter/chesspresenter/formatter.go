package chesspresenter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/Cheese-Clock/internal/coordinator"
	"github.com/park285/Cheese-Clock/internal/domain"
	"github.com/park285/Cheese-Clock/internal/msgcat"
	"github.com/park285/Cheese-Clock/internal/rules"
	"github.com/park285/Cheese-Clock/pkg/chessdto"
)

// Formatter turns coordinator values into display text using the message catalog.
type Formatter struct {
	cat *msgcat.Catalog
}

func NewFormatter(cat *msgcat.Catalog) *Formatter {
	if cat == nil {
		cat = msgcat.Default()
	}
	return &Formatter{cat: cat}
}

// Clock renders remaining time as mm:ss, or h:mm:ss from one hour up.
// Partial seconds round down; a flagged clock reads 00:00.
func (f *Formatter) Clock(millis int64) string {
	if millis < 0 {
		millis = 0
	}
	total := millis / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func (f *Formatter) Side(s domain.Side) string {
	switch s {
	case domain.White:
		return f.cat.Text("side.white", nil)
	case domain.Black:
		return f.cat.Text("side.black", nil)
	default:
		return f.cat.Text("side.none", nil)
	}
}

func (f *Formatter) State(st coordinator.State) string {
	return f.cat.Text("state."+st.String(), nil)
}

func (f *Formatter) Outcome(o domain.Outcome) string {
	data := map[string]string{
		"Winner": f.Side(o.Winner()),
		"Loser":  f.Side(loserOf(o)),
		"Method": f.drawMethod(o.Method),
		"Reason": o.Reason,
	}
	return f.cat.Text("outcome."+o.Kind.String(), data)
}

func (f *Formatter) Notice(n coordinator.Notice) string {
	if n == coordinator.NoticeNone {
		return ""
	}
	return f.cat.Text("notice."+string(n), nil)
}

func (f *Formatter) TimeControl(tc domain.TimeControl) string {
	return f.cat.Text("time_control.current", map[string]string{
		"Minutes":   trimNumber(tc.Base.Minutes()),
		"Increment": trimNumber(tc.Increment.Seconds()),
	})
}

// Error maps a command error to its wire form. Unknown errors become "internal".
func (f *Formatter) Error(err error) chessdto.DomainError {
	var illegal *rules.IllegalMoveError
	switch {
	case err == nil:
		return chessdto.DomainError{}
	case errors.As(err, &illegal):
		return f.domainError("illegal_move", map[string]string{"Move": illegal.Move}, false)
	case errors.Is(err, rules.ErrParse):
		return f.domainError("parse", nil, false)
	case errors.Is(err, coordinator.ErrNotYourTurn):
		return f.domainError("not_your_turn", nil, false)
	case errors.Is(err, coordinator.ErrNotInGame):
		return f.domainError("not_in_game", nil, false)
	case errors.Is(err, coordinator.ErrRequestPending):
		return f.domainError("request_pending", nil, false)
	case errors.Is(err, coordinator.ErrInvalidSide):
		return f.domainError("invalid_side", nil, false)
	case errors.Is(err, coordinator.ErrInvalidTimeControl):
		return f.domainError("invalid_time_control", nil, false)
	case errors.Is(err, coordinator.ErrCannotStart):
		return chessdto.DomainError{Code: string(coordinator.NoticeCannotStart), Message: f.Notice(coordinator.NoticeCannotStart), Retryable: true}
	case errors.Is(err, coordinator.ErrEngineUnavailable):
		return chessdto.DomainError{Code: string(coordinator.NoticeEngineUnavailable), Message: f.Notice(coordinator.NoticeEngineUnavailable), Retryable: true}
	case errors.Is(err, coordinator.ErrSuperseded):
		return chessdto.DomainError{Code: "superseded", Message: err.Error()}
	default:
		return f.domainError("internal", nil, false)
	}
}

// UnknownCommand is the reply for a command type the gateway does not handle.
func (f *Formatter) UnknownCommand(kind string) chessdto.DomainError {
	return f.domainError("unknown_command", map[string]string{"Command": kind}, false)
}

func (f *Formatter) domainError(code string, data any, retryable bool) chessdto.DomainError {
	return chessdto.DomainError{Code: code, Message: f.cat.Text("error."+code, data), Retryable: retryable}
}

func (f *Formatter) drawMethod(method string) string {
	if method == "" {
		return ""
	}
	key := "draw." + method
	if text := f.cat.Text(key, nil); text != key {
		return text
	}
	return method
}

func loserOf(o domain.Outcome) domain.Side {
	switch o.Kind {
	case domain.Resigned, domain.Timeout:
		return o.Side
	case domain.Checkmate:
		return o.Side.Opponent()
	default:
		return domain.NoSide
	}
}

func trimNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// boardRows expands the FEN placement field into eight rows of piece letters and dots,
// top row first as seen from orientation.
func boardRows(fen string, orientation domain.Side) []string {
	placement, _, _ := strings.Cut(strings.TrimSpace(fen), " ")
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return nil
	}
	rows := make([]string, 8)
	for i, rank := range ranks {
		var b strings.Builder
		for _, r := range rank {
			if r >= '1' && r <= '8' {
				b.WriteString(strings.Repeat(".", int(r-'0')))
				continue
			}
			b.WriteRune(r)
		}
		rows[i] = b.String()
	}
	if orientation == domain.Black {
		for i, j := 0, 7; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
		for i, row := range rows {
			rows[i] = reverse(row)
		}
	}
	return rows
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
