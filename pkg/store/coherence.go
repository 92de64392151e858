package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitlbot/warden/pkg/models"
)

// CoherenceRepo persists per-interaction coherence-check outcomes (spec.md
// §3 CoherenceRecord, §4.6 step 3).
type CoherenceRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a coherence record for an interaction.
func (r *CoherenceRepo) Create(ctx context.Context, c *models.CoherenceRecord) error {
	const q = `
		INSERT INTO coherence_records (id, interaction_id, status, original_span, replacement_span, new_commitment_ids)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, q, c.ID, c.InteractionID, string(c.Status), c.OriginalSpan, c.ReplacementSpan, c.NewCommitmentIDs)
	return err
}

// ForInteraction returns the coherence record for an interaction, if any.
func (r *CoherenceRepo) ForInteraction(ctx context.Context, interactionID string) (*models.CoherenceRecord, error) {
	const q = `
		SELECT id, interaction_id, status, original_span, replacement_span, new_commitment_ids, created_at
		FROM coherence_records WHERE interaction_id = $1`
	var c models.CoherenceRecord
	err := r.pool.QueryRow(ctx, q, interactionID).Scan(
		&c.ID, &c.InteractionID, &c.Status, &c.OriginalSpan, &c.ReplacementSpan, &c.NewCommitmentIDs, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
