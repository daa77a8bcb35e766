package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"plebchat/internal/agents"
	httpserver "plebchat/internal/http"
	"plebchat/internal/runner"
	"plebchat/internal/search"
	pgstore "plebchat/internal/store/postgres"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// optional .env
	_ = godotenv.Load()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	addr := os.Getenv("PLEBCHAT_HTTP_ADDR")
	if addr == "" {
		addr = ":8000"
	}

	reg, err := agents.LoadRegistry(agents.Deps{
		Models:   agents.DefaultModels,
		Searcher: search.FromEnv(),
	})
	if err != nil {
		logger.Fatal("failed to load agent registry", zap.Error(err))
	}
	logger.Info("loaded agents", zap.Strings("agents", reg.ListAgentIDs()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := runner.NewService(reg, logger)
	if pool := initPostgresPool(ctx, logger); pool != nil {
		defer pool.Close()
		store := pgstore.NewRunStore(pool)
		if err := store.Migrate(ctx); err != nil {
			logger.Error("run history disabled", zap.Error(err))
		} else {
			svc.WithRunStore(store)
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpserver.NewServer(svc, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("plebchat listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("DEBUG") != "" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func initPostgresPool(ctx context.Context, logger *zap.Logger) *pgxpool.Pool {
	cfg := pgstore.FromEnv()
	if !cfg.Enabled() {
		return nil
	}
	pool, err := pgstore.NewPool(ctx, cfg)
	if err != nil {
		logger.Warn("failed to connect to postgres", zap.Error(err))
		return nil
	}
	return pool
}
