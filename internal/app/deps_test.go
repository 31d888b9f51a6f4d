package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teetime/backend/internal/config"
	"github.com/teetime/backend/internal/models"
	"github.com/teetime/backend/internal/repositories"
	"github.com/teetime/backend/internal/social"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Close() {}

func testConfig(driver string) config.Config {
	return config.Config{
		StoreDriver:     driver,
		CacheDriver:     "memory",
		StatusCacheTTL:  time.Second,
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Notify:          config.NotifyConfig{Driver: "log", QueueSize: 8, Workers: 1, PublishTimeout: time.Second},
		RateLimit:       config.RateLimitConfig{RequestsPerMinute: 30, Burst: 10},
	}
}

func shutdown(t *testing.T, closers []closer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, c := range closers {
		if err := c(ctx); err != nil {
			t.Fatalf("close dependency: %v", err)
		}
	}
}

func TestBuildDependenciesPostgres(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, closers, err := buildDependencies(context.Background(), fakePool{}, testConfig("postgres"), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer shutdown(t, closers)

	if deps.Users == nil || deps.Sessions == nil || deps.Connections == nil {
		t.Fatalf("expected handlers to be wired, got %+v", deps)
	}
	if deps.Health == nil {
		t.Fatal("expected postgres health check to be configured")
	}
	if deps.AuthLimiter == nil || deps.SendLimiter == nil {
		t.Fatal("expected rate limiters to be configured")
	}
	if len(closers) != 1 {
		t.Fatalf("expected only the dispatcher closer, got %d", len(closers))
	}

	if _, err := deps.Connections.GetStatus(context.Background(), "a", "b"); !errors.Is(err, social.ErrStoreUnavailable) {
		t.Fatalf("expected pool failures to surface as ErrStoreUnavailable, got %v", err)
	}
}

func TestBuildDependenciesPostgresRequiresPool(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, _, err := buildDependencies(context.Background(), nil, testConfig("postgres"), logger); err == nil {
		t.Fatal("expected an error without a pool")
	}
}

func TestBuildDependenciesMemory(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, closers, err := buildDependencies(ctx, nil, testConfig("memory"), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer shutdown(t, closers)

	if deps.Health != nil {
		t.Fatal("expected no health check for the memory store")
	}
	if _, ok := deps.Users.(*repositories.MemoryUserRepository); !ok {
		t.Fatalf("expected memory user repository, got %T", deps.Users)
	}
	if err := deps.Users.Create(ctx, models.User{ID: "alice", Email: "alice@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	res, err := deps.Connections.SendRequest(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Status != models.StatusSent {
		t.Fatalf("expected sent, got %s", res.Status)
	}
	status, err := deps.Connections.GetStatus(ctx, "bob", "alice")
	if err != nil || status != models.StatusReceived {
		t.Fatalf("expected bob to see received, got %s (%v)", status, err)
	}
}

func TestBuildDependenciesRedisCache(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig("memory")
	cfg.CacheDriver = "redis"
	cfg.Redis = config.RedisConfig{Addr: "127.0.0.1:1", Prefix: "test:rel"}

	deps, closers, err := buildDependencies(context.Background(), nil, cfg, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer shutdown(t, closers)

	if len(closers) != 2 {
		t.Fatalf("expected dispatcher and redis closers, got %d", len(closers))
	}

	// An unreachable cache degrades to the store.
	status, err := deps.Connections.GetStatus(context.Background(), "a", "b")
	if err != nil || status != models.StatusNone {
		t.Fatalf("expected none from the store, got %s (%v)", status, err)
	}
}

func TestBuildPublisherRejectsIncompleteBrokerConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := buildPublisher(config.NotifyConfig{Driver: "kafka"}, logger); err == nil {
		t.Fatal("expected kafka publisher without brokers to fail")
	}
	if _, err := buildPublisher(config.NotifyConfig{Driver: "nats"}, logger); err == nil {
		t.Fatal("expected nats publisher without url to fail")
	}
}

func TestBuildDependenciesStartsSessionSweep(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig("memory")
	cfg.SessionSweepInterval = time.Millisecond

	_, closers, err := buildDependencies(context.Background(), nil, cfg, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closers) != 2 {
		t.Fatalf("expected dispatcher and sweep closers, got %d", len(closers))
	}
	shutdown(t, closers)
}
