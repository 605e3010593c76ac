package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/coursegen/internal/config"
	"github.com/yungbote/coursegen/internal/devserver"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "coursegen-devserver",
		Environment: cfg.Env,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(shutdownCtx)
	}()

	srv := devserver.New(log, cfg.DevServer, nil)
	srv.SeedUsers()

	if err := srv.Run(ctx, cfg.DevServer.Addr, 15*time.Second); err != nil {
		log.Error("devserver stopped", "error", err)
		os.Exit(1)
	}
	log.Info("devserver shut down")
}
