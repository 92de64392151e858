package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitlbot/warden/pkg/models"
)

// CommitmentRepo persists Commitment rows extracted by the coherence check
// (spec.md §3, §4.6 step 3).
type CommitmentRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a new active Commitment.
func (r *CommitmentRepo) Create(ctx context.Context, c *models.Commitment) error {
	const q = `
		INSERT INTO commitments (id, user_id, text, target_ts, status)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, q, c.ID, c.UserID, c.Text, c.TargetTS, string(models.CommitmentActive))
	return err
}

// ActiveWithin returns active Commitments for a user whose target timestamp
// falls within [now, now+horizon], for the coherence check (spec.md §4.6
// step 3: "within the next 7 days").
func (r *CommitmentRepo) ActiveWithin(ctx context.Context, userID string, horizon time.Duration) ([]*models.Commitment, error) {
	const q = `
		SELECT id, user_id, text, target_ts, status, created_at
		FROM commitments
		WHERE user_id = $1 AND status = 'active' AND target_ts BETWEEN now() AND now() + ($2 * interval '1 second')
		ORDER BY target_ts ASC`
	rows, err := r.pool.Query(ctx, q, userID, horizon.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Commitment
	for rows.Next() {
		var c models.Commitment
		if err := rows.Scan(&c.ID, &c.UserID, &c.Text, &c.TargetTS, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ExpireOverdue marks active commitments whose target has passed as expired
// (spec.md §3 Commitment: "Soft-deleted on expiry").
func (r *CommitmentRepo) ExpireOverdue(ctx context.Context) (int64, error) {
	const q = `UPDATE commitments SET status = 'expired' WHERE status = 'active' AND target_ts < now()`
	tag, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
