package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/werrors"
)

// QuarantineRepo persists Quarantine Entry rows (spec.md §3, §4.2, §4.10).
type QuarantineRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a new quarantine entry.
func (r *QuarantineRepo) Create(ctx context.Context, e *models.QuarantineEntry) error {
	const q = `
		INSERT INTO quarantine_entries (id, user_id, platform_msg_id, text)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, q, e.ID, e.UserID, e.PlatformMsgID, e.Text)
	return err
}

// ExistsForPlatformMsgID reports whether a non-deleted quarantine entry
// already references the platform message id.
func (r *QuarantineRepo) ExistsForPlatformMsgID(ctx context.Context, userID, platformMsgID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM quarantine_entries WHERE user_id = $1 AND platform_msg_id = $2 AND deleted_at IS NULL)`
	var exists bool
	err := r.pool.QueryRow(ctx, q, userID, platformMsgID).Scan(&exists)
	return exists, err
}

// Get returns a quarantine entry by id.
func (r *QuarantineRepo) Get(ctx context.Context, id string) (*models.QuarantineEntry, error) {
	const q = quarantineSelect + ` WHERE id = $1`
	e, err := scanQuarantine(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, werrors.ErrNotFound
	}
	return e, err
}

// ListForUser returns time-ordered quarantine entries for a user.
func (r *QuarantineRepo) ListForUser(ctx context.Context, userID string, limit int) ([]*models.QuarantineEntry, error) {
	const q = quarantineSelect + ` WHERE user_id = $1 AND deleted_at IS NULL ORDER BY quarantined_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.QuarantineEntry
	for rows.Next() {
		e, err := scanQuarantine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkReleased sets processed=true, released_at=now() for an entry.
func (r *QuarantineRepo) MarkReleased(ctx context.Context, id string) error {
	const q = `UPDATE quarantine_entries SET processed = true, released_at = now() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return werrors.ErrNotFound
	}
	return nil
}

// SoftDeleteOlderThan soft-deletes every entry, released or not, that was
// quarantined longer ago than retention (spec.md §4.10 purge).
func (r *QuarantineRepo) SoftDeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	const q = `
		UPDATE quarantine_entries SET deleted_at = now()
		WHERE deleted_at IS NULL AND quarantined_at < now() - ($1 * interval '1 second')`
	tag, err := r.pool.Exec(ctx, q, retention.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const quarantineSelect = `
	SELECT id, user_id, platform_msg_id, text, quarantined_at, processed, released_at, deleted_at
	FROM quarantine_entries`

func scanQuarantine(row pgx.Row) (*models.QuarantineEntry, error) {
	var e models.QuarantineEntry
	err := row.Scan(&e.ID, &e.UserID, &e.PlatformMsgID, &e.Text, &e.QuarantinedAt, &e.Processed, &e.ReleasedAt, &e.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
