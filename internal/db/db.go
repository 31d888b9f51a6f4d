package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool abstracts the pgx connection pool to make testing easier.
type Pool interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// Connect initialises a PostgreSQL connection pool using the provided database URL
// and waits until the server answers a ping. The database often starts alongside
// the API, so failed pings are retried with a linear backoff.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			return pool, nil
		}
		if attempt == connectAttempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt) * connectBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			pool.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	pool.Close()
	return nil, fmt.Errorf("ping database after %d attempts: %w", connectAttempts, err)
}
