package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/exp/slog"

	"postboard/internal/api"
	"postboard/internal/auth"
	"postboard/internal/config"
	"postboard/internal/images"
	"postboard/internal/posts"
	"postboard/internal/store"
	"postboard/internal/store/mongostore"
	"postboard/internal/store/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: false,
		Level:     cfg.LogLevel,
	}))

	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init the database", "error", err)
		os.Exit(1)
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := db.Close(closeCtx); err != nil {
			slog.Error("Failed to close the database", "error", err)
		}
	}()

	tokens := auth.NewTokens(cfg.JWTSecret, auth.DefaultTokenTTL, cfg.JWTIssuer)

	server := api.NewAPIServer(
		auth.NewService(db, tokens, cfg.BcryptCost),
		posts.NewService(db),
		images.NewStore(cfg.ImagesDir),
		cfg.ListenAddr,
		cfg.MaxUploadBytes,
	)

	if err := server.Run(ctx); err != nil {
		slog.Error("Server run error", "error", err)
		stop()
		os.Exit(1)
	}
}

// openStore picks the backend from the DATABASE_URL scheme.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	u := cfg.DatabaseURL

	switch {
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return sqlstore.OpenPostgres(openCtx, u)
	case strings.HasPrefix(u, "sqlite://"):
		return sqlstore.OpenSQLite(openCtx, strings.TrimPrefix(u, "sqlite://"))
	case strings.HasPrefix(u, "file:"):
		return sqlstore.OpenSQLite(openCtx, u)
	case strings.HasPrefix(u, "mongodb://"), strings.HasPrefix(u, "mongodb+srv://"):
		return mongostore.Open(openCtx, u, cfg.DatabaseName)
	default:
		scheme, _, _ := strings.Cut(u, ":")
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}
