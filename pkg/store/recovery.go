package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitlbot/warden/pkg/models"
)

// RecoveryRepo persists Recovery Operation rows (spec.md §3, §4.11).
type RecoveryRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a new running Recovery Operation.
func (r *RecoveryRepo) Create(ctx context.Context, op *models.RecoveryOperation) error {
	const q = `
		INSERT INTO recovery_operations (id, trigger, started_at, status)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, q, op.ID, string(op.Trigger), op.StartedAt, string(op.Status))
	return err
}

// Finish records the terminal counts/errors/status of a Recovery Operation.
func (r *RecoveryRepo) Finish(ctx context.Context, op *models.RecoveryOperation) error {
	const q = `
		UPDATE recovery_operations SET
			finished_at = now(), tier1_count = $2, tier2_count = $3, tier3_count = $4,
			skip_count = $5, users_seen = $6, errors = $7, status = $8
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, op.ID, op.Tier1Count, op.Tier2Count, op.Tier3Count,
		op.SkipCount, op.UsersSeen, op.Errors, string(op.Status))
	return err
}

// AnyRunning reports whether a Recovery Operation is currently in the
// "running" status, used to enforce spec.md §4.11 "must not execute
// concurrently with itself".
func (r *RecoveryRepo) AnyRunning(ctx context.Context) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM recovery_operations WHERE status = 'running')`
	var exists bool
	err := r.pool.QueryRow(ctx, q).Scan(&exists)
	return exists, err
}

// History returns the most recent Recovery Operations, newest first.
func (r *RecoveryRepo) History(ctx context.Context, limit int) ([]*models.RecoveryOperation, error) {
	const q = `
		SELECT id, trigger, started_at, finished_at, tier1_count, tier2_count, tier3_count,
			skip_count, users_seen, errors, status
		FROM recovery_operations ORDER BY started_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.RecoveryOperation
	for rows.Next() {
		var op models.RecoveryOperation
		if err := rows.Scan(&op.ID, &op.Trigger, &op.StartedAt, &op.FinishedAt, &op.Tier1Count,
			&op.Tier2Count, &op.Tier3Count, &op.SkipCount, &op.UsersSeen, &op.Errors, &op.Status); err != nil {
			return nil, err
		}
		out = append(out, &op)
	}
	return out, rows.Err()
}
