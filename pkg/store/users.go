package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitlbot/warden/pkg/models"
)

// UserRepo persists User rows, created on first contact and updated by
// reviewer actions (spec.md §3 User).
type UserRepo struct {
	pool *pgxpool.Pool
}

// EnsureExists inserts a User row if absent (insert-if-absent semantics
// required by the Ingress Adapter's new_message handling), returning the
// resulting row.
func (r *UserRepo) EnsureExists(ctx context.Context, userID string) (*models.User, error) {
	const q = `
		INSERT INTO users (id) VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING id, nickname, customer_status, lifetime_value, created_at, updated_at`
	return scanUser(r.pool.QueryRow(ctx, q, userID))
}

// Get returns the User row, or pgx.ErrNoRows if absent.
func (r *UserRepo) Get(ctx context.Context, userID string) (*models.User, error) {
	const q = `SELECT id, nickname, customer_status, lifetime_value, created_at, updated_at FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, q, userID))
}

// SetNickname updates the display nickname.
func (r *UserRepo) SetNickname(ctx context.Context, userID, nickname string) error {
	const q = `UPDATE users SET nickname = $2, updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, userID, nickname)
	return err
}

// SetCustomerStatus updates the customer label, e.g. from a reviewer action.
func (r *UserRepo) SetCustomerStatus(ctx context.Context, userID, status string) error {
	const q = `UPDATE users SET customer_status = $2, updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, userID, status)
	return err
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var createdAt, updatedAt time.Time
	if err := row.Scan(&u.ID, &u.Nickname, &u.CustomerStatus, &u.LifetimeValue, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt, u.UpdatedAt = createdAt, updatedAt
	return &u, nil
}
