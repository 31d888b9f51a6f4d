package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/teetime/backend/internal/db"
	"github.com/teetime/backend/internal/models"
)

const userColumns = `id, email, handle, password_hash, created_at, updated_at`

// PostgresUserRepository stores golfer accounts in the users table.
type PostgresUserRepository struct {
	pool db.Pool
}

func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create inserts a new account. A duplicate email yields ErrConflict.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	return withConn(ctx, r.pool, func(q querier) error {
		_, err := q.Exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			user.ID, strings.ToLower(user.Email), user.Handle, user.Password, user.CreatedAt, user.UpdatedAt)
		return userWriteError("insert user", err)
	})
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.selectUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.selectUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// Update overwrites the mutable columns of an existing account.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	return withConn(ctx, r.pool, func(q querier) error {
		tag, err := q.Exec(ctx, `
            UPDATE users
            SET email = $2, handle = $3, password_hash = $4, updated_at = $5
            WHERE id = $1
        `, user.ID, strings.ToLower(user.Email), user.Handle, user.Password, user.UpdatedAt)
		if err != nil {
			return userWriteError("update user", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *PostgresUserRepository) selectUser(ctx context.Context, query string, arg string) (models.User, error) {
	var user models.User
	err := withConn(ctx, r.pool, func(q querier) error {
		return q.QueryRow(ctx, query, arg).Scan(
			&user.ID, &user.Email, &user.Handle, &user.Password, &user.CreatedAt, &user.UpdatedAt,
		)
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return models.User{}, ErrNotFound
	case err != nil:
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

func userWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	if pgCode(err) == pgUniqueViolation {
		return ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ UserRepository = (*PostgresUserRepository)(nil)
