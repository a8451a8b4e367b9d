package chesspresenter

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/park285/Cheese-Clock/internal/clock"
	"github.com/park285/Cheese-Clock/internal/coordinator"
	"github.com/park285/Cheese-Clock/internal/domain"
	"github.com/park285/Cheese-Clock/internal/msgcat"
	"github.com/park285/Cheese-Clock/internal/rules"
	"github.com/park285/Cheese-Clock/pkg/chessdto"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func newFormatter(t *testing.T) *Formatter {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewFormatter(cat)
}

func TestClock(t *testing.T) {
	f := newFormatter(t)
	cases := map[int64]string{
		600000:  "10:00",
		59999:   "00:59",
		0:       "00:00",
		-20:     "00:00",
		3725000: "1:02:05",
	}
	for in, want := range cases {
		if got := f.Clock(in); got != want {
			t.Fatalf("Clock(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestOutcomeText(t *testing.T) {
	f := newFormatter(t)
	if got := f.Outcome(domain.CheckmateBy(domain.Black)); !strings.Contains(got, "흑 승리") {
		t.Fatalf("checkmate text %q", got)
	}
	if got := f.Outcome(domain.TimeoutOf(domain.White)); !strings.Contains(got, "백 시간 초과") || !strings.Contains(got, "흑 승리") {
		t.Fatalf("timeout text %q", got)
	}
	if got := f.Outcome(domain.DrawBy("stalemate")); !strings.Contains(got, "스테일메이트") {
		t.Fatalf("draw text %q", got)
	}
	if got := f.Outcome(domain.DrawBy("something_new")); !strings.Contains(got, "something_new") {
		t.Fatalf("unknown draw method should pass through: %q", got)
	}
	if got := f.Outcome(domain.AbortedFor("bad move zz")); !strings.Contains(got, "bad move zz") {
		t.Fatalf("abort text %q", got)
	}
}

func TestErrorMapping(t *testing.T) {
	f := newFormatter(t)
	cases := []struct {
		err       error
		code      string
		retryable bool
	}{
		{&rules.IllegalMoveError{Move: "e2e5"}, "illegal_move", false},
		{fmt.Errorf("load: %w", &rules.ParseError{FEN: "x"}), "parse", false},
		{coordinator.ErrNotYourTurn, "not_your_turn", false},
		{fmt.Errorf("%w: boom", coordinator.ErrCannotStart), "cannot_start", true},
		{coordinator.ErrEngineUnavailable, "engine_unavailable", true},
		{fmt.Errorf("plain"), "internal", false},
	}
	for _, tc := range cases {
		de := f.Error(tc.err)
		if de.Code != tc.code || de.Retryable != tc.retryable || de.Message == "" {
			t.Fatalf("Error(%v) = %+v, want code %s", tc.err, de, tc.code)
		}
	}
	if de := f.Error(&rules.IllegalMoveError{Move: "e2e5"}); !strings.Contains(de.Message, "e2e5") {
		t.Fatalf("illegal move message should name the move: %q", de.Message)
	}
}

func TestToDTOSnapshot_Orientation(t *testing.T) {
	f := newFormatter(t)
	s := coordinator.Snapshot{
		State:           coordinator.WaitingForLocalMove,
		PlayerSide:      domain.White,
		SideToMove:      domain.White,
		FEN:             startFEN,
		Clock:           clock.State{WhiteMillis: 604000, BlackMillis: 599500, Active: domain.White, Running: true},
		Notice:          coordinator.NoticeEngineUnavailable,
		TimeControl:     domain.TimeControlOf(10, 5),
		NextTimeControl: domain.TimeControlOf(3, 2),
	}
	white := f.ToDTOSnapshot(s, domain.White)
	if white.Board[0] != "rnbqkbnr" || white.Board[7] != "RNBQKBNR" || white.Board[4] != "........" {
		t.Fatalf("white board %v", white.Board)
	}
	black := f.ToDTOSnapshot(s, domain.Black)
	if black.Board[0] != "RNBKQBNR" || black.Board[7] != "rnbkqbnr" {
		t.Fatalf("black board %v", black.Board)
	}
	if white.Clock.White != "10:04" || white.Clock.Black != "09:59" || white.Clock.Active != "white" {
		t.Fatalf("clock %+v", white.Clock)
	}
	if white.Notice == nil || white.Notice.Code != "engine_unavailable" {
		t.Fatalf("notice %+v", white.Notice)
	}
	if white.NextTimeControl == "" || white.Outcome.Kind != "in_progress" || white.Outcome.Result != "*" {
		t.Fatalf("unexpected %+v", white)
	}
}

func TestPresenter_FlipAndReply(t *testing.T) {
	f := newFormatter(t)
	var got []*chessdto.Envelope
	p := NewPresenter(f, func(e *chessdto.Envelope) error {
		got = append(got, e)
		return nil
	}, domain.NoSide)
	if p.Orientation() != domain.White {
		t.Fatalf("default orientation should be white")
	}
	if p.Flip() != domain.Black {
		t.Fatalf("flip")
	}
	if err := p.Snapshot(coordinator.Snapshot{FEN: startFEN}); err != nil {
		t.Fatal(err)
	}
	if err := p.Reply("c1", coordinator.ErrNotInGame); err != nil {
		t.Fatal(err)
	}
	if err := p.Reply("c2", nil); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Snapshot.Orientation != "black" {
		t.Fatalf("envelopes %+v", got)
	}
	if got[1].OK || got[1].Error == nil || got[1].Error.Code != "not_in_game" {
		t.Fatalf("error reply %+v", got[1])
	}
	if !got[2].OK || got[2].ID != "c2" {
		t.Fatalf("ok reply %+v", got[2])
	}
}

func TestToDTOGames(t *testing.T) {
	f := newFormatter(t)
	games := f.ToDTOGames([]*domain.GameRecord{nil, {
		ID:          "g1",
		PlayerSide:  domain.White,
		Outcome:     domain.ResignedBy(domain.White),
		MovesSAN:    []string{"e4"},
		TimeControl: domain.TimeControlOf(10, 5),
		Duration:    90 * time.Second,
	}})
	if len(games) != 1 || games[0].Result != "0-1" || games[0].DurationMs != 90000 {
		t.Fatalf("games %+v", games)
	}
}
