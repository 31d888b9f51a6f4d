package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teetime/backend/internal/config"
	"github.com/teetime/backend/internal/db"
	"github.com/teetime/backend/internal/handlers"
	"github.com/teetime/backend/internal/httpserver"
	"github.com/teetime/backend/internal/logging"
	"github.com/teetime/backend/internal/middleware"
)

// Run bootstraps the TeeTime backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or seed")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.StoreDriver == "postgres" {
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
	} else {
		logger.Warn("using in-memory stores; data is lost on restart", "store_driver", cfg.StoreDriver)
	}

	var deps handlers.Dependencies
	var closers []closer
	if pool != nil {
		deps, closers, err = buildDependencies(ctx, pool, cfg, logger)
	} else {
		deps, closers, err = buildDependencies(ctx, nil, cfg, logger)
	}
	if err != nil {
		runClosers(closers, logger)
		return err
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	handler := middleware.RequestLogger(logger)(mux)

	srv := httpserver.New(cfg.AppPort, handler, logger)
	for _, c := range closers {
		srv.OnShutdown(c)
	}

	logger.Info("starting http server",
		"port", cfg.AppPort,
		"store_driver", cfg.StoreDriver,
		"cache_driver", cfg.CacheDriver,
		"notify_driver", cfg.Notify.Driver,
	)

	return srv.Run(ctx)
}

func runClosers(closers []closer, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()
	for _, c := range closers {
		if err := c(ctx); err != nil {
			logger.Warn("release dependency", "error", err)
		}
	}
}

// commandPool opens the database for the migrate and seed commands, which only
// make sense against PostgreSQL.
func commandPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.StoreDriver != "postgres" {
		return nil, fmt.Errorf("store driver %q has no schema to manage", cfg.StoreDriver)
	}
	return db.Connect(ctx, cfg.DatabaseURL)
}

func resolveDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Join(wd, dir), nil
}
