package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/Cheese-Clock/internal/domain"
)

const (
	recentKey   = "clock:games:recent"
	ttlRecent   = 7 * 24 * time.Hour
	defaultKeep = 20
)

// RedisStore keeps a capped list of recent games, newest at the head.
type RedisStore struct {
	rdb  redis.UniversalClient
	keep int
}

func NewRedisStore(rdb redis.UniversalClient, keep int) *RedisStore {
	if keep <= 0 {
		keep = defaultKeep
	}
	return &RedisStore{rdb: rdb, keep: keep}
}

func (s *RedisStore) Record(ctx context.Context, g *domain.GameRecord) error {
	if g == nil {
		return nil
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, recentKey, raw)
	pipe.LTrim(ctx, recentKey, 0, int64(s.keep-1))
	pipe.Expire(ctx, recentKey, ttlRecent)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push recent game: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 || limit > s.keep {
		limit = s.keep
	}
	items, err := s.rdb.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]*domain.GameRecord, 0, len(items))
	for _, raw := range items {
		var g domain.GameRecord
		if err := json.Unmarshal([]byte(raw), &g); err != nil {
			continue
		}
		out = append(out, &g)
	}
	return out, nil
}

// OpenRedis parses a redis:// URL and checks the server answers.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
