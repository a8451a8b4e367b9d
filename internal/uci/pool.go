package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

type PoolConfig struct {
	BinaryPath string
	Capacity   int
	Options    Options
	Logger     *zap.Logger
}

// Pool keeps up to Capacity warm engine processes with identical options.
type Pool struct {
	capacity int
	spawn    func(ctx context.Context) (*Session, error)
	logger   *zap.Logger

	mu     sync.Mutex
	total  int
	closed bool
	idle   chan *Session
}

var (
	errPoolAtCapacity = errors.New("engine pool at capacity")
	ErrPoolClosed     = errors.New("engine pool closed")
)

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	if err := validateOptions(cfg.Options); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	spawn := func(ctx context.Context) (*Session, error) {
		return NewSession(ctx, cfg.BinaryPath, cfg.Options, logger)
	}
	return newPool(cfg.Capacity, spawn, logger), nil
}

func newPool(capacity int, spawn func(ctx context.Context) (*Session, error), logger *zap.Logger) *Pool {
	if capacity <= 0 {
		capacity = defaultCapacity()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{capacity: capacity, spawn: spawn, logger: logger, idle: make(chan *Session, capacity)}
}

func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	for {
		select {
		case s := <-p.idle:
			if err := s.EnsureReady(ctx); err != nil {
				p.discard(s)
				continue
			}
			return s, nil
		default:
		}

		s, err := p.create(ctx)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, errPoolAtCapacity) {
			return nil, err
		}

		select {
		case s := <-p.idle:
			if err := s.EnsureReady(ctx); err != nil {
				p.discard(s)
				continue
			}
			return s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns s to the pool. A non-nil err means the process is suspect and is killed.
func (p *Pool) Release(s *Session, err error) {
	if s == nil {
		return
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if err != nil || closed {
		p.discard(s)
		return
	}
	select {
	case p.idle <- s:
	default:
		p.discard(s)
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for {
		select {
		case s := <-p.idle:
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
			p.decrement()
		default:
			return errors.Join(errs...)
		}
	}
}

// BestMove runs one clocked search from scratch on a pooled process.
func (p *Pool) BestMove(ctx context.Context, fen string, moves []string, clock GoClock) (string, error) {
	s, err := p.Acquire(ctx)
	if err != nil {
		return "", err
	}
	if err := s.NewGame(ctx); err != nil {
		p.Release(s, err)
		return "", err
	}
	resp, err := s.Search(ctx, SearchRequest{FEN: fen, Moves: moves, Clock: clock})
	p.Release(s, err)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) > 0 {
		top := resp.Candidates[0]
		p.logger.Debug("uci_search_done",
			zap.String("best", resp.BestMove),
			zap.Int("eval_cp", top.EvalCP),
			zap.Int("depth", top.Depth))
	}
	return resp.BestMove, nil
}

func (p *Pool) create(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.total >= p.capacity {
		p.mu.Unlock()
		return nil, errPoolAtCapacity
	}
	p.total++
	p.mu.Unlock()

	s, err := p.spawn(ctx)
	if err != nil {
		p.decrement()
		return nil, err
	}
	return s, nil
}

func (p *Pool) discard(s *Session) {
	if s != nil {
		_ = s.Close()
	}
	p.decrement()
}

func (p *Pool) decrement() {
	p.mu.Lock()
	if p.total > 0 {
		p.total--
	}
	p.mu.Unlock()
}

func defaultCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
