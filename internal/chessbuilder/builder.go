// Package chessbuilder wires the process graph for both binaries.
package chessbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/Cheese-Clock/internal/adapter/chesspresenter"
	"github.com/park285/Cheese-Clock/internal/archive"
	"github.com/park285/Cheese-Clock/internal/config"
	"github.com/park285/Cheese-Clock/internal/coordinator"
	"github.com/park285/Cheese-Clock/internal/engineclient"
	"github.com/park285/Cheese-Clock/internal/engineserver"
	"github.com/park285/Cheese-Clock/internal/gateway"
	"github.com/park285/Cheese-Clock/internal/msgcat"
	"github.com/park285/Cheese-Clock/internal/uci"
)

// Deps is the chess-clock process: coordinator, heartbeat, archive and gateway.
type Deps struct {
	Config      *config.AppConfig
	Registry    *prometheus.Registry
	Client      *engineclient.Client
	Coordinator *coordinator.Coordinator
	Heartbeater *engineclient.Heartbeater
	Archive     *archive.Multi
	Gateway     *gateway.Server

	logger  *zap.Logger
	closers []func() error
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{Config: cfg, logger: logger, Registry: newRegistry()}

	d.Client = engineclient.NewClient(cfg.EngineBaseURL,
		engineclient.WithTimeout(cfg.EngineTimeout),
		engineclient.WithRetry(cfg.EngineRetry),
		engineclient.WithLogger(logger.Named("engineclient")))

	arch, err := d.buildArchive(ctx)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Archive = arch

	d.Coordinator = coordinator.New(d.Client,
		coordinator.WithLogger(logger.Named("coordinator")),
		coordinator.WithRecorder(d.Archive),
		coordinator.WithMetrics(coordinator.NewMetrics(d.Registry)),
		coordinator.WithTimeControl(cfg.TimeControl),
		coordinator.WithTickInterval(cfg.TickInterval))

	d.Heartbeater = engineclient.NewHeartbeater(d.Client, d.Coordinator.CurrentSession,
		engineclient.WithHeartbeatInterval(cfg.HeartbeatInterval),
		engineclient.WithHeartbeatLogger(logger.Named("heartbeat")))

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d.Gateway = gateway.New(d.Coordinator, chesspresenter.NewFormatter(cat),
		gateway.WithLogger(logger.Named("gateway")),
		gateway.WithArchive(d.Archive, cfg.RecentLimit),
		gateway.WithGatherer(d.Registry),
		gateway.WithDefaultSide(cfg.PlayerSide))
	return d, nil
}

// buildArchive picks every configured backend; with none it keeps games in memory.
func (d *Deps) buildArchive(ctx context.Context) (*archive.Multi, error) {
	var stores []archive.Store
	if url := strings.TrimSpace(d.Config.DatabaseURL); url != "" {
		repo, err := archive.NewRepository(url)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		d.closers = append(d.closers, repo.Close)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		stores = append(stores, repo)
	}
	if url := strings.TrimSpace(d.Config.RedisURL); url != "" {
		rdb, err := archive.OpenRedis(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		d.closers = append(d.closers, rdb.Close)
		stores = append(stores, archive.NewRedisStore(rdb, d.Config.RecentLimit))
	}
	if len(stores) == 0 {
		d.logger.Info("archive_memory_only")
		stores = append(stores, archive.NewMemoryStore())
	}
	return archive.NewMulti(d.logger.Named("archive"), stores...), nil
}

// Run blocks until ctx is done or a component fails.
func (d *Deps) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(d.Coordinator.Run(gctx)) })
	g.Go(func() error {
		d.Heartbeater.Run(gctx)
		return nil
	})
	g.Go(func() error { return d.Gateway.ListenAndServe(gctx, d.Config.ListenAddr) })
	if d.Config.PlayerSide.Valid() {
		g.Go(func() error {
			if err := d.Coordinator.NewGame(gctx, d.Config.PlayerSide); err != nil {
				d.logger.Warn("initial_game_failed", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// EngineDeps is the engine-server process: a UCI pool behind the protocol server.
type EngineDeps struct {
	Pool   *uci.Pool
	Server *engineserver.Server
	addr   string
}

func NewEngine(cfg *config.AppConfig, logger *zap.Logger) (*EngineDeps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if err := cfg.ValidateEngine(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.StockfishPath,
		Capacity:   cfg.EnginePoolSize,
		Options:    uci.Options{Threads: cfg.EngineThreads, HashMB: cfg.EngineHashMB, Elo: cfg.EngineElo},
		Logger:     logger.Named("uci"),
	})
	if err != nil {
		return nil, fmt.Errorf("init engine pool: %w", err)
	}
	srv := engineserver.New(pool,
		engineserver.WithLogger(logger.Named("engineserver")),
		engineserver.WithSessionTTL(cfg.EngineSessionTTL),
		engineserver.WithRegistry(newRegistry()))
	return &EngineDeps{Pool: pool, Server: srv, addr: cfg.EngineListenAddr}, nil
}

func (e *EngineDeps) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.Server.ListenAndServe(gctx, e.addr) })
	return g.Wait()
}

func (e *EngineDeps) Close() error { return e.Pool.Close() }

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
