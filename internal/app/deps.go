package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teetime/backend/internal/auth"
	"github.com/teetime/backend/internal/config"
	"github.com/teetime/backend/internal/db"
	"github.com/teetime/backend/internal/handlers"
	"github.com/teetime/backend/internal/middleware"
	"github.com/teetime/backend/internal/notify"
	"github.com/teetime/backend/internal/repositories"
	"github.com/teetime/backend/internal/social"
	"github.com/teetime/backend/internal/storage"
)

// limiterIdleTTL is how long a client's rate limit bucket survives without traffic.
const limiterIdleTTL = 10 * time.Minute

// closer releases a dependency during shutdown.
type closer func(context.Context) error

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// pool may be nil when cfg.StoreDriver is "memory". The returned closers must
// run in order after the HTTP server stops.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, []closer, error) {
	var (
		deps     handlers.Dependencies
		closers  []closer
		users    handlers.UserStore
		sessions auth.SessionStore
		store    social.Store
	)

	switch cfg.StoreDriver {
	case "memory":
		users = repositories.NewMemoryUserRepository()
		sessions = auth.NewInMemorySessionStore()
		store = social.NewMemoryStore()
	default:
		if pool == nil {
			return deps, nil, fmt.Errorf("store driver %q requires a database pool", cfg.StoreDriver)
		}
		connections := repositories.NewPostgresConnectionStore(pool)
		users = repositories.NewPostgresUserRepository(pool)
		sessions = repositories.NewPostgresSessionStore(pool)
		store = connections
		deps.Health = connections
	}

	cache, cacheClose := buildStatusCache(cfg, logger)
	if cacheClose != nil {
		closers = append(closers, cacheClose)
	}

	publisher, err := buildPublisher(cfg.Notify, logger)
	if err != nil {
		return deps, closers, err
	}
	dispatcher := notify.NewDispatcher(publisher, notify.DispatcherConfig{
		QueueSize:      cfg.Notify.QueueSize,
		Workers:        cfg.Notify.Workers,
		PublishTimeout: cfg.Notify.PublishTimeout,
	}, logger)
	// Drain queued events before the cache and pool go away.
	closers = append([]closer{dispatcher.Shutdown}, closers...)

	var archiver social.Archiver
	if cfg.Archive.Bucket != "" {
		archive, err := storage.NewS3Archive(ctx, cfg.Archive)
		if err != nil {
			return deps, closers, fmt.Errorf("configure request archive: %w", err)
		}
		archiver = archive
		logger.Info("archiving superseded connection requests", "bucket", cfg.Archive.Bucket)
	}

	resolver := social.NewResolver(store, cache, cfg.StatusCacheTTL)
	mutator := social.NewMutator(store, resolver, dispatcher, archiver)

	deps.Users = users
	manager := auth.NewManager(cfg.AccessTokenTTL, cfg.RefreshTokenTTL, sessions)
	if cfg.SessionSweepInterval > 0 {
		closers = append(closers, startSessionSweep(manager, cfg.SessionSweepInterval, logger))
	}
	deps.Sessions = manager
	deps.Connections = social.NewCoordinator(mutator, resolver, store)
	deps.AuthLimiter = middleware.NewKeyedRateLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute, cfg.RateLimit.Burst, limiterIdleTTL)
	deps.SendLimiter = middleware.NewKeyedRateLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute, cfg.RateLimit.Burst, limiterIdleTTL)

	return deps, closers, nil
}

func buildStatusCache(cfg config.Config, logger *slog.Logger) (social.StatusCache, closer) {
	if cfg.CacheDriver != "redis" {
		return social.NewMemoryCache(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cache := social.NewRedisCache(client, cfg.Redis.Prefix, func(op string, err error) {
		logger.Warn("status cache unavailable", "op", op, "error", err)
	})
	return cache, func(context.Context) error { return client.Close() }
}

func buildPublisher(cfg config.NotifyConfig, logger *slog.Logger) (notify.Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		return notify.NewKafkaPublisher(notify.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
			Topic:    cfg.Kafka.Topic,
		})
	case "nats":
		return notify.NewNATSPublisher(notify.NATSConfig{
			URL:           cfg.NATS.URL,
			Name:          "teetime-api",
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		})
	default:
		return notify.LogPublisher{Logger: logger}, nil
	}
}

// startSessionSweep purges expired tokens in the background. The returned
// closer stops the sweep and waits for it to exit.
func startSessionSweep(manager *auth.Manager, interval time.Duration, logger *slog.Logger) closer {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		manager.Sweep(ctx, interval, logger)
	}()

	return func(wait context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-wait.Done():
			return wait.Err()
		}
	}
}
