package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/teetime/backend/internal/auth"
	"github.com/teetime/backend/internal/db"
)

// PostgresSessionStore keeps issued bearer and refresh tokens in the sessions table.
type PostgresSessionStore struct {
	pool db.Pool
}

func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Save upserts a token row.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	return withConn(ctx, s.pool, func(q querier) error {
		_, err := q.Exec(ctx, `
            INSERT INTO sessions (token, kind, user_id, expires_at)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (token) DO UPDATE
            SET kind = EXCLUDED.kind, user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
        `, session.Token, string(session.Kind), session.UserID, session.ExpiresAt.UTC())
		if err != nil {
			if pgCode(err) == pgForeignKeyViolation {
				return fmt.Errorf("save session for unknown user %s: %w", session.UserID, ErrNotFound)
			}
			return fmt.Errorf("upsert session: %w", err)
		}
		return nil
	})
}

func (s *PostgresSessionStore) Find(ctx context.Context, token string) (auth.Session, error) {
	var (
		session auth.Session
		kind    string
	)
	err := withConn(ctx, s.pool, func(q querier) error {
		return q.QueryRow(ctx, `SELECT token, kind, user_id, expires_at FROM sessions WHERE token = $1`, token).
			Scan(&session.Token, &kind, &session.UserID, &session.ExpiresAt)
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return auth.Session{}, auth.ErrSessionNotFound
	case err != nil:
		return auth.Session{}, fmt.Errorf("select session: %w", err)
	}

	session.Kind = auth.TokenKind(kind)
	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

// Delete removes one token. Unknown tokens yield auth.ErrSessionNotFound.
func (s *PostgresSessionStore) Delete(ctx context.Context, token string) error {
	return withConn(ctx, s.pool, func(q querier) error {
		tag, err := q.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return auth.ErrSessionNotFound
		}
		return nil
	})
}

// DeleteExpired removes every token whose expiry is at or before cutoff.
func (s *PostgresSessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := withConn(ctx, s.pool, func(q querier) error {
		tag, err := q.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, cutoff.UTC())
		if err != nil {
			return fmt.Errorf("delete expired sessions: %w", err)
		}
		removed = tag.RowsAffected()
		return nil
	})
	return removed, err
}

var _ auth.SessionStore = (*PostgresSessionStore)(nil)
