package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/kbessonov/roomhub/internal/plugin"
	"github.com/kbessonov/roomhub/internal/server"
	"github.com/kbessonov/roomhub/internal/store"
	"github.com/kbessonov/roomhub/pkg/config"
	"github.com/kbessonov/roomhub/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)
	plugin.RegisterAll()

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	db, err := store.OpenSQLite(cfg.Database.Path, cfg.Server.Auth.PasswordSalt, logger)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := server.NewApp(logger, ctx, cfg, server.Collaborators{
		Messages: db,
		Users:    db,
		Auth:     db,
	})
	if err != nil {
		logger.Error("Failed to initialize application", slog.Any("error", err))
		os.Exit(1)
	}
	if err := app.LoadHistories(ctx); err != nil {
		logger.Warn("Failed to restore room histories", slog.Any("error", err))
	}
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
