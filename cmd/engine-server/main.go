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
	logger, err := obslog.InitFromEnv("engine")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	deps, err := chessbuilder.NewEngine(cfg, logger)
	if err != nil {
		logger.Fatal("init_failed", zap.Error(err))
	}
	defer func() { _ = deps.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := deps.Run(ctx); err != nil {
		logger.Error("engine_server_stopped", zap.Error(err))
	}
}
