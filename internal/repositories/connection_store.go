package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/teetime/backend/internal/db"
	"github.com/teetime/backend/internal/models"
	"github.com/teetime/backend/internal/social"
)

const requestColumns = `id, sender_id, receiver_id, status, created_at, responded_at`

// PostgresConnectionStore implements social.Store on PostgreSQL or CockroachDB.
type PostgresConnectionStore struct {
	pool db.Pool
}

// NewPostgresConnectionStore constructs a relationship store backed by PostgreSQL.
func NewPostgresConnectionStore(pool db.Pool) *PostgresConnectionStore {
	return &PostgresConnectionStore{pool: pool}
}

func (s *PostgresConnectionStore) withConn(ctx context.Context, fn func(q querier) error) error {
	return withConn(ctx, s.pool, fn)
}

// InsertPendingRequest creates a pending row for the ordered pair.
func (s *PostgresConnectionStore) InsertPendingRequest(ctx context.Context, senderID, receiverID string) (models.ConnectionRequest, error) {
	req := models.ConnectionRequest{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.RequestPending,
		CreatedAt:  time.Now().UTC(),
	}

	err := s.withConn(ctx, func(q querier) error {
		_, err := q.Exec(ctx, `
            INSERT INTO connection_requests (id, sender_id, receiver_id, status, created_at)
            VALUES ($1, $2, $3, $4, $5)
        `, req.ID, req.SenderID, req.ReceiverID, string(req.Status), req.CreatedAt)
		if err != nil {
			switch pgCode(err) {
			case pgUniqueViolation:
				return social.ErrConflict
			case pgForeignKeyViolation:
				return social.ErrNotFound
			}
			return fmt.Errorf("insert connection request: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	return req, nil
}

func (s *PostgresConnectionStore) GetRequest(ctx context.Context, requestID string) (models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	err := s.withConn(ctx, func(q querier) error {
		var err error
		req, err = scanRequest(q.QueryRow(ctx, `
            SELECT `+requestColumns+`
            FROM connection_requests
            WHERE id = $1
        `, requestID))
		return err
	})
	return req, err
}

func (s *PostgresConnectionStore) GetRequestBetween(ctx context.Context, senderID, receiverID string) (models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	err := s.withConn(ctx, func(q querier) error {
		var err error
		req, err = scanRequest(q.QueryRow(ctx, `
            SELECT `+requestColumns+`
            FROM connection_requests
            WHERE sender_id = $1 AND receiver_id = $2
        `, senderID, receiverID))
		return err
	})
	return req, err
}

func (s *PostgresConnectionStore) GetPendingBetween(ctx context.Context, a, b string) (models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	err := s.withConn(ctx, func(q querier) error {
		var err error
		req, err = scanRequest(q.QueryRow(ctx, `
            SELECT `+requestColumns+`
            FROM connection_requests
            WHERE status = 'pending'
              AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
            ORDER BY created_at DESC
            LIMIT 1
        `, a, b))
		return err
	})
	return req, err
}

// UpdateRequestStatus applies the transition only while the row is still in from.
func (s *PostgresConnectionStore) UpdateRequestStatus(ctx context.Context, requestID string, from, to models.RequestStatus) error {
	return s.withConn(ctx, func(q querier) error {
		tag, err := q.Exec(ctx, `
            UPDATE connection_requests
            SET status = $3, responded_at = $4
            WHERE id = $1 AND status = $2
        `, requestID, string(from), string(to), respondedAt(to))
		if err != nil {
			return fmt.Errorf("update connection request: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM connection_requests WHERE id = $1)`, requestID).Scan(&exists); err != nil {
			return fmt.Errorf("check connection request: %w", err)
		}
		if !exists {
			return social.ErrNotFound
		}
		return social.ErrStaleState
	})
}

func (s *PostgresConnectionStore) DeleteRequest(ctx context.Context, requestID string) error {
	return s.withConn(ctx, func(q querier) error {
		tag, err := q.Exec(ctx, `DELETE FROM connection_requests WHERE id = $1`, requestID)
		if err != nil {
			return fmt.Errorf("delete connection request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return social.ErrNotFound
		}
		return nil
	})
}

func (s *PostgresConnectionStore) GetFriendship(ctx context.Context, a, b string) (models.Friendship, error) {
	var friendship models.Friendship
	err := s.withConn(ctx, func(q querier) error {
		var err error
		friendship, err = selectFriendship(ctx, q, a, b)
		return err
	})
	return friendship, err
}

func (s *PostgresConnectionStore) DeleteFriendship(ctx context.Context, a, b string) error {
	lo, hi := models.CanonicalPair(a, b)
	return s.withConn(ctx, func(q querier) error {
		tag, err := q.Exec(ctx, `DELETE FROM friendships WHERE user1_id = $1 AND user2_id = $2`, lo, hi)
		if err != nil {
			return fmt.Errorf("delete friendship: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return social.ErrNotFound
		}
		return nil
	})
}

func (s *PostgresConnectionStore) ListFriendships(ctx context.Context, userID string) ([]models.Friendship, error) {
	var friendships []models.Friendship
	err := s.withConn(ctx, func(q querier) error {
		rows, err := q.Query(ctx, `
            SELECT id, user1_id, user2_id, created_at
            FROM friendships
            WHERE user1_id = $1 OR user2_id = $1
            ORDER BY created_at DESC
        `, userID)
		if err != nil {
			return fmt.Errorf("query friendships: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var f models.Friendship
			if err := rows.Scan(&f.ID, &f.User1ID, &f.User2ID, &f.CreatedAt); err != nil {
				return fmt.Errorf("scan friendship: %w", err)
			}
			f.CreatedAt = f.CreatedAt.UTC()
			friendships = append(friendships, f)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate friendships: %w", err)
		}
		return nil
	})
	return friendships, err
}

func (s *PostgresConnectionStore) ListPendingRequests(ctx context.Context, userID string, dir social.Direction) ([]models.ConnectionRequest, error) {
	column := "receiver_id"
	if dir == social.Outgoing {
		column = "sender_id"
	}

	var requests []models.ConnectionRequest
	err := s.withConn(ctx, func(q querier) error {
		var err error
		requests, err = queryRequests(ctx, q, `
            SELECT `+requestColumns+`
            FROM connection_requests
            WHERE `+column+` = $1 AND status = 'pending'
            ORDER BY created_at DESC
        `, userID)
		return err
	})
	return requests, err
}

// WithinTx runs fn in a transaction, retrying serialization failures.
func (s *PostgresConnectionStore) WithinTx(ctx context.Context, fn func(tx social.Tx) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&postgresTx{tx: tx})
	})
}

type postgresTx struct {
	tx pgx.Tx
}

// LockPendingBetween takes row locks in id order so two accepts on the same
// pair always queue instead of deadlocking.
func (t *postgresTx) LockPendingBetween(ctx context.Context, a, b string) ([]models.ConnectionRequest, error) {
	return queryRequests(ctx, t.tx, `
        SELECT `+requestColumns+`
        FROM connection_requests
        WHERE status = 'pending'
          AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
        ORDER BY id
        FOR UPDATE
    `, a, b)
}

func (t *postgresTx) SetRequestStatus(ctx context.Context, requestID string, status models.RequestStatus) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE connection_requests
        SET status = $2, responded_at = $3
        WHERE id = $1
    `, requestID, string(status), respondedAt(status))
	if err != nil {
		return fmt.Errorf("set connection request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return social.ErrNotFound
	}
	return nil
}

func (t *postgresTx) InsertFriendship(ctx context.Context, a, b string) (models.Friendship, error) {
	lo, hi := models.CanonicalPair(a, b)
	f := models.Friendship{ID: uuid.NewString(), User1ID: lo, User2ID: hi, CreatedAt: time.Now().UTC()}

	tag, err := t.tx.Exec(ctx, `
        INSERT INTO friendships (id, user1_id, user2_id, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user1_id, user2_id) DO NOTHING
    `, f.ID, f.User1ID, f.User2ID, f.CreatedAt)
	if err != nil {
		return models.Friendship{}, fmt.Errorf("insert friendship: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return f, nil
	}
	return selectFriendship(ctx, t.tx, lo, hi)
}

func selectFriendship(ctx context.Context, q querier, a, b string) (models.Friendship, error) {
	lo, hi := models.CanonicalPair(a, b)
	var f models.Friendship
	err := q.QueryRow(ctx, `
        SELECT id, user1_id, user2_id, created_at
        FROM friendships
        WHERE user1_id = $1 AND user2_id = $2
    `, lo, hi).Scan(&f.ID, &f.User1ID, &f.User2ID, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Friendship{}, social.ErrNotFound
		}
		return models.Friendship{}, fmt.Errorf("select friendship: %w", err)
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

func queryRequests(ctx context.Context, q querier, query string, args ...any) ([]models.ConnectionRequest, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query connection requests: %w", err)
	}
	defer rows.Close()

	var requests []models.ConnectionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connection requests: %w", err)
	}
	return requests, nil
}

func scanRequest(row pgx.Row) (models.ConnectionRequest, error) {
	var (
		req         models.ConnectionRequest
		status      string
		respondedAt sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.SenderID, &req.ReceiverID, &status, &req.CreatedAt, &respondedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ConnectionRequest{}, social.ErrNotFound
		}
		return models.ConnectionRequest{}, fmt.Errorf("scan connection request: %w", err)
	}

	req.Status = models.RequestStatus(status)
	req.CreatedAt = req.CreatedAt.UTC()
	if respondedAt.Valid {
		t := respondedAt.Time.UTC()
		req.RespondedAt = &t
	}
	return req, nil
}

func respondedAt(status models.RequestStatus) sql.NullTime {
	if status == models.RequestPending {
		return sql.NullTime{}
	}
	return sql.NullTime{Valid: true, Time: time.Now().UTC()}
}

var _ social.Store = (*PostgresConnectionStore)(nil)

// Ping verifies a connection can be acquired and answers.
func (s *PostgresConnectionStore) Ping(ctx context.Context) error {
	return s.withConn(ctx, func(q querier) error {
		var one int
		return q.QueryRow(ctx, `SELECT 1`).Scan(&one)
	})
}
