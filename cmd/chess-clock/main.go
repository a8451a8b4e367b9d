package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Clock/internal/chessbuilder"
	appcfg "github.com/park285/Cheese-Clock/internal/config"
	"github.com/park285/Cheese-Clock/internal/obslog"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := obslog.InitFromEnv("clock")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := chessbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init_failed", zap.Error(err))
	}
	defer func() { _ = deps.Close() }()

	logger.Info("chess_clock_started",
		zap.String("engine", cfg.EngineBaseURL),
		zap.String("listen", cfg.ListenAddr),
		zap.Duration("base", cfg.TimeControl.Base),
		zap.Duration("increment", cfg.TimeControl.Increment))
	if err := deps.Run(ctx); err != nil {
		logger.Error("chess_clock_stopped", zap.Error(err))
		return
	}
	logger.Info("chess_clock_stopped")
}
