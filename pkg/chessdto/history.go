package chessdto

import "time"

// GameSummary is one archived game as listed by GET /games.
type GameSummary struct {
	ID           string    `json:"id"`
	PlayerSide   string    `json:"playerSide"`
	Result       string    `json:"result"`
	ResultMethod string    `json:"resultMethod,omitempty"`
	OutcomeText  string    `json:"outcomeText"`
	MovesSAN     []string  `json:"movesSan"`
	PGN          string    `json:"pgn"`
	TimeControl  string    `json:"timeControl"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	DurationMs   int64     `json:"durationMs"`
}
