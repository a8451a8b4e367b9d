package engineserver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/park285/Cheese-Clock/internal/rules"
)

var errUnknownSession = errors.New("unknown playerID")

// game is one remote player's position. mu serialises moves and searches.
type game struct {
	mu       sync.Mutex
	pos      rules.Position
	lastSeen time.Time
}

type table struct {
	mu    sync.Mutex
	games map[string]*game
	now   func() time.Time
}

func newTable(now func() time.Time) *table {
	return &table{games: make(map[string]*game), now: now}
}

// parseStart accepts "startpos" or "fen <fen>" as sent by the client.
func parseStart(body string) (rules.Position, error) {
	body = strings.TrimSpace(body)
	switch {
	case body == "" || body == "startpos":
		return rules.StartingPosition(), nil
	case strings.HasPrefix(body, "fen "):
		return rules.LoadFEN(strings.TrimSpace(strings.TrimPrefix(body, "fen ")))
	default:
		return rules.LoadFEN(body)
	}
}

func (t *table) create(pos rules.Position) string {
	id := uuid.NewString()
	t.mu.Lock()
	t.games[id] = &game{pos: pos, lastSeen: t.now()}
	t.mu.Unlock()
	return id
}

// get returns the game and refreshes its lease.
func (t *table) get(id string) (*game, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.games[strings.TrimSpace(id)]
	if !ok {
		return nil, errUnknownSession
	}
	g.lastSeen = t.now()
	return g, nil
}

func (t *table) remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.games[id]
	delete(t.games, id)
	return ok
}

func (t *table) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.games)
}

// reap drops sessions idle for longer than ttl and reports how many went.
func (t *table) reap(ttl time.Duration) int {
	cutoff := t.now().Add(-ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, g := range t.games {
		if g.lastSeen.Before(cutoff) {
			delete(t.games, id)
			n++
		}
	}
	return n
}

func (t *table) reapLoop(ctx context.Context, ttl time.Duration, onReap func(int)) {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if n := t.reap(ttl); n > 0 && onReap != nil {
				onReap(n)
			}
		}
	}
}
