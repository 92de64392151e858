package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitlbot/warden/pkg/models"
)

// ProtocolRepo persists the per-user Protocol (quarantine/silence) State
// (spec.md §3, §4.2).
type ProtocolRepo struct {
	pool *pgxpool.Pool
}

// Get returns the protocol state for a user, defaulting to inactive if no
// row exists yet.
func (r *ProtocolRepo) Get(ctx context.Context, userID string) (*models.ProtocolState, error) {
	const q = `SELECT user_id, status, last_changed_at, actor FROM protocol_states WHERE user_id = $1`
	var s models.ProtocolState
	err := r.pool.QueryRow(ctx, q, userID).Scan(&s.UserID, &s.Status, &s.LastChangedAt, &s.Actor)
	if err == pgx.ErrNoRows {
		return &models.ProtocolState{UserID: userID, Status: models.ProtocolInactive}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Set upserts the protocol state for a user.
func (r *ProtocolRepo) Set(ctx context.Context, userID string, status models.ProtocolStatus, actor string) error {
	const q = `
		INSERT INTO protocol_states (user_id, status, last_changed_at, actor)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (user_id) DO UPDATE SET status = EXCLUDED.status, last_changed_at = now(), actor = EXCLUDED.actor`
	_, err := r.pool.Exec(ctx, q, userID, string(status), actor)
	return err
}
