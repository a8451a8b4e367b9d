package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/Cheese-Clock/internal/domain"
)

// MemoryStore keeps records in process. Used when no database is configured.
type MemoryStore struct {
	mu    sync.Mutex
	games map[string]*domain.GameRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: make(map[string]*domain.GameRecord)}
}

func (m *MemoryStore) Record(_ context.Context, g *domain.GameRecord) error {
	if g == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; ok {
		return nil
	}
	m.games[g.ID] = copyRecord(g)
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]*domain.GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.GameRecord, 0, len(m.games))
	for _, g := range m.games {
		out = append(out, copyRecord(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRecord(g *domain.GameRecord) *domain.GameRecord {
	cp := *g
	cp.MovesUCI = append([]string(nil), g.MovesUCI...)
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &cp
}
