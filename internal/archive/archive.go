// Package archive keeps finished games. Nothing here is read back into a live game.
package archive

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Clock/internal/domain"
)

// Store persists finished games and lists the most recent ones, newest first.
type Store interface {
	Record(ctx context.Context, g *domain.GameRecord) error
	Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error)
}

// Multi writes to every store and reads from the first one.
type Multi struct {
	stores []Store
	logger *zap.Logger
}

func NewMulti(logger *zap.Logger, stores ...Store) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Store, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Multi{stores: kept, logger: logger}
}

func (m *Multi) Record(ctx context.Context, g *domain.GameRecord) error {
	if g == nil {
		return nil
	}
	if g.PGN == "" {
		g.PGN = BuildPGN(g)
	}
	var errs []error
	for _, s := range m.stores {
		if err := s.Record(ctx, g); err != nil {
			m.logger.Warn("archive_record_failed", zap.String("game", g.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if len(m.stores) == 0 {
		return nil, nil
	}
	return m.stores[0].Recent(ctx, limit)
}
