package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/werrors"
)

// CursorRepo persists the per-user Processing Cursor (spec.md §3). Updates
// use optimistic concurrency: compare-and-set on (user_id, expected_cursor),
// per spec.md §5 Shared-resource discipline.
type CursorRepo struct {
	pool *pgxpool.Pool
}

// Get returns the cursor for a user, defaulting to an empty watermark if
// the row does not yet exist.
func (r *CursorRepo) Get(ctx context.Context, userID string) (*models.ProcessingCursor, error) {
	const q = `SELECT user_id, last_platform_id, updated_at FROM processing_cursors WHERE user_id = $1`
	var c models.ProcessingCursor
	err := r.pool.QueryRow(ctx, q, userID).Scan(&c.UserID, &c.LastPlatformID, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return &models.ProcessingCursor{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// AdvanceIfGreater sets the cursor to newID if newID exceeds the currently
// stored value (monotonic, per spec.md §3 invariant), using an upsert that
// performs the comparison server-side to avoid a read-modify-write race.
// Ids compare as numeric strings: a longer id is greater, and ids of equal
// length compare lexically.
func (r *CursorRepo) AdvanceIfGreater(ctx context.Context, userID, newID string) error {
	const q = `
		INSERT INTO processing_cursors (user_id, last_platform_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET
			last_platform_id = EXCLUDED.last_platform_id,
			updated_at = now()
		WHERE length(EXCLUDED.last_platform_id) > length(processing_cursors.last_platform_id)
			OR (length(EXCLUDED.last_platform_id) = length(processing_cursors.last_platform_id)
				AND EXCLUDED.last_platform_id > processing_cursors.last_platform_id)`
	_, err := r.pool.Exec(ctx, q, userID, newID)
	return err
}

// CompareAndSet advances the cursor only if its current value matches
// expected, returning werrors.ErrInvalidCursor on mismatch.
func (r *CursorRepo) CompareAndSet(ctx context.Context, userID, expected, newID string) error {
	const q = `
		UPDATE processing_cursors SET last_platform_id = $3, updated_at = now()
		WHERE user_id = $1 AND last_platform_id = $2`
	tag, err := r.pool.Exec(ctx, q, userID, expected, newID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return werrors.ErrInvalidCursor
	}
	return nil
}
