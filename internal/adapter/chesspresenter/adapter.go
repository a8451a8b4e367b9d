package chesspresenter

import (
	"github.com/park285/Cheese-Clock/internal/coordinator"
	"github.com/park285/Cheese-Clock/internal/domain"
	"github.com/park285/Cheese-Clock/pkg/chessdto"
)

// ToDTOSnapshot renders s for a viewer looking from orientation.
func (f *Formatter) ToDTOSnapshot(s coordinator.Snapshot, orientation domain.Side) *chessdto.Snapshot {
	if !orientation.Valid() {
		orientation = domain.White
	}
	out := &chessdto.Snapshot{
		State:       s.State.String(),
		StateText:   f.State(s.State),
		Generation:  s.Generation,
		SessionID:   string(s.SessionID),
		PlayerSide:  s.PlayerSide.String(),
		SideToMove:  s.SideToMove.String(),
		Orientation: orientation.String(),
		FEN:         s.FEN,
		Board:       boardRows(s.FEN, orientation),
		Moves:       append([]string{}, s.Moves...),
		LastMove:    s.LastMove,
		LastSAN:     s.LastSAN,
		Clock: chessdto.Clock{
			White:       f.Clock(s.Clock.WhiteMillis),
			Black:       f.Clock(s.Clock.BlackMillis),
			WhiteMillis: s.Clock.WhiteMillis,
			BlackMillis: s.Clock.BlackMillis,
			Active:      s.Clock.Active.String(),
			Running:     s.Clock.Running,
		},
		Outcome: chessdto.Outcome{
			Kind:   s.Outcome.Kind.String(),
			Method: s.Outcome.Method,
			Result: s.Outcome.PGNResult(),
			Text:   f.Outcome(s.Outcome),
		},
		Requesting:  s.Requesting,
		TimeControl: f.TimeControl(s.TimeControl),
	}
	if w := s.Outcome.Winner(); w.Valid() {
		out.Outcome.Winner = w.String()
	}
	if s.Notice != coordinator.NoticeNone {
		out.Notice = &chessdto.Notice{Code: string(s.Notice), Text: f.Notice(s.Notice)}
	}
	if s.NextTimeControl != s.TimeControl {
		out.NextTimeControl = f.TimeControl(s.NextTimeControl)
	}
	return out
}

func (f *Formatter) ToDTOGames(list []*domain.GameRecord) []*chessdto.GameSummary {
	out := make([]*chessdto.GameSummary, 0, len(list))
	for _, g := range list {
		if g == nil {
			continue
		}
		out = append(out, &chessdto.GameSummary{
			ID:           g.ID,
			PlayerSide:   g.PlayerSide.String(),
			Result:       g.PGNResult(),
			ResultMethod: g.ResultMethod,
			OutcomeText:  f.Outcome(g.Outcome),
			MovesSAN:     append([]string{}, g.MovesSAN...),
			PGN:          g.PGN,
			TimeControl:  f.TimeControl(g.TimeControl),
			StartedAt:    g.StartedAt,
			EndedAt:      g.EndedAt,
			DurationMs:   g.Duration.Milliseconds(),
		})
	}
	return out
}
