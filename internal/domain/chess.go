package domain

import "time"

// GameRecord is the archived summary of a finished game.
type GameRecord struct {
	ID            string
	SessionID     SessionID
	PlayerSide    Side
	StartFEN      string
	Result        string
	ResultMethod  string
	Outcome       Outcome
	MovesUCI      []string
	MovesSAN      []string
	PGN           string
	FinalFEN      string
	TimeControl   TimeControl
	WhiteLeft     time.Duration
	BlackLeft     time.Duration
	StartedAt     time.Time
	EndedAt       time.Time
	Duration      time.Duration
	EngineLatency time.Duration
}

// PGNResult maps the record outcome to a PGN result token.
func (g *GameRecord) PGNResult() string {
	if g == nil {
		return "*"
	}
	return g.Outcome.PGNResult()
}
