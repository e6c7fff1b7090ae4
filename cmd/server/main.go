package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/app/server"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, config.Load()); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
