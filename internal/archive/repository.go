package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/Cheese-Clock/internal/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS clock_games (
	game_id        TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL DEFAULT '',
	player_side    TEXT NOT NULL,
	start_fen      TEXT NOT NULL DEFAULT '',
	outcome        TEXT NOT NULL,
	outcome_side   TEXT NOT NULL DEFAULT '',
	result         TEXT NOT NULL,
	result_method  TEXT NOT NULL DEFAULT '',
	moves_uci      JSONB NOT NULL DEFAULT '[]',
	moves_san      JSONB NOT NULL DEFAULT '[]',
	pgn            TEXT NOT NULL DEFAULT '',
	final_fen      TEXT NOT NULL DEFAULT '',
	base_ms        BIGINT NOT NULL,
	increment_ms   BIGINT NOT NULL,
	white_left_ms  BIGINT NOT NULL,
	black_left_ms  BIGINT NOT NULL,
	engine_ms      BIGINT,
	started_at     TIMESTAMPTZ NOT NULL,
	ended_at       TIMESTAMPTZ NOT NULL,
	duration_ms    BIGINT
)`

// Repository stores finished games in PostgreSQL.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Record inserts the game once. A second write with the same ID is ignored.
func (r *Repository) Record(ctx context.Context, g *domain.GameRecord) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	movesUCI, err := json.Marshal(nonNil(g.MovesUCI))
	if err != nil {
		return err
	}
	movesSAN, err := json.Marshal(nonNil(g.MovesSAN))
	if err != nil {
		return err
	}
	pgn := g.PGN
	if pgn == "" {
		pgn = BuildPGN(g)
	}
	var engineMs sql.NullInt64
	if g.EngineLatency > 0 {
		engineMs = sql.NullInt64{Int64: g.EngineLatency.Milliseconds(), Valid: true}
	}
	var durationMs sql.NullInt64
	if g.Duration > 0 {
		durationMs = sql.NullInt64{Int64: g.Duration.Milliseconds(), Valid: true}
	}

	q := `INSERT INTO clock_games (
		game_id, session_id, player_side, start_fen,
		outcome, outcome_side, result, result_method,
		moves_uci, moves_san, pgn, final_fen,
		base_ms, increment_ms, white_left_ms, black_left_ms,
		engine_ms, started_at, ended_at, duration_ms
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10::jsonb,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
	) ON CONFLICT (game_id) DO NOTHING`

	_, err = r.db.ExecContext(ctx, q,
		g.ID, string(g.SessionID), g.PlayerSide.String(), g.StartFEN,
		g.Outcome.Kind.String(), sideToken(g.Outcome.Side), g.Result, g.ResultMethod,
		string(movesUCI), string(movesSAN), pgn, g.FinalFEN,
		g.TimeControl.BaseMillis(), g.TimeControl.IncrementMillis(),
		g.WhiteLeft.Milliseconds(), g.BlackLeft.Milliseconds(),
		engineMs, g.StartedAt, g.EndedAt, durationMs,
	)
	if err != nil {
		return fmt.Errorf("insert game %s: %w", g.ID, err)
	}
	return nil
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = defaultKeep
	}
	q := `SELECT game_id, session_id, player_side, start_fen,
		outcome, outcome_side, result, result_method,
		moves_uci, moves_san, pgn, final_fen,
		base_ms, increment_ms, white_left_ms, black_left_ms,
		engine_ms, started_at, ended_at, duration_ms
	FROM clock_games ORDER BY ended_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.GameRecord
	for rows.Next() {
		var (
			g                           domain.GameRecord
			sessionID, playerSide       string
			outcome, outcomeSide        string
			movesUCI, movesSAN          []byte
			baseMs, incMs, wLeft, bLeft int64
			engineMs, durationMs        sql.NullInt64
		)
		if err := rows.Scan(&g.ID, &sessionID, &playerSide, &g.StartFEN,
			&outcome, &outcomeSide, &g.Result, &g.ResultMethod,
			&movesUCI, &movesSAN, &g.PGN, &g.FinalFEN,
			&baseMs, &incMs, &wLeft, &bLeft,
			&engineMs, &g.StartedAt, &g.EndedAt, &durationMs); err != nil {
			return nil, err
		}
		g.SessionID = domain.SessionID(sessionID)
		g.PlayerSide, _ = domain.ParseSide(playerSide)
		g.Outcome = domain.Outcome{Kind: domain.ParseOutcomeKind(outcome), Method: g.ResultMethod}
		g.Outcome.Side, _ = domain.ParseSide(outcomeSide)
		_ = json.Unmarshal(movesUCI, &g.MovesUCI)
		_ = json.Unmarshal(movesSAN, &g.MovesSAN)
		g.TimeControl = domain.TimeControl{
			Base:      time.Duration(baseMs) * time.Millisecond,
			Increment: time.Duration(incMs) * time.Millisecond,
		}
		g.WhiteLeft = time.Duration(wLeft) * time.Millisecond
		g.BlackLeft = time.Duration(bLeft) * time.Millisecond
		if engineMs.Valid {
			g.EngineLatency = time.Duration(engineMs.Int64) * time.Millisecond
		}
		if durationMs.Valid {
			g.Duration = time.Duration(durationMs.Int64) * time.Millisecond
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func sideToken(s domain.Side) string {
	if !s.Valid() {
		return ""
	}
	return s.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
