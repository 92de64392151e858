package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/werrors"
)

// InteractionRepo persists Interaction rows (spec.md §3 Interaction).
type InteractionRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a new pending Interaction.
func (r *InteractionRepo) Create(ctx context.Context, in *models.Interaction) error {
	refined, err := json.Marshal(bubbleTexts(in.RefinedBubbles))
	if err != nil {
		return err
	}
	final, err := json.Marshal(bubbleTexts(in.FinalBubbles))
	if err != nil {
		return err
	}
	genCost, err := json.Marshal(in.GenerationCost)
	if err != nil {
		return err
	}
	refCost, err := json.Marshal(in.RefinementCost)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO interactions (
			id, user_id, platform_msg_ids, platform_ts, ingest_ts, raw_text,
			generation_draft, refined_bubbles, final_bubbles,
			safety_risk_score, safety_flags, review_status, is_recovered,
			generation_cost, refinement_cost
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err = r.pool.Exec(ctx, q,
		in.ID, in.UserID, in.PlatformMsgIDs, in.PlatformTS, in.IngestTS, in.RawText,
		in.GenerationDraft, refined, final,
		in.Safety.RiskScore, in.Safety.Flags, string(in.ReviewStatus), in.IsRecovered,
		genCost, refCost,
	)
	return err
}

// ExistsForPlatformMsgID reports whether any Interaction already
// references the given platform message id, used for idempotence (spec.md
// §4.6 and the invariant that P appears in at most one store).
func (r *InteractionRepo) ExistsForPlatformMsgID(ctx context.Context, platformMsgID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM interactions WHERE $1 = ANY(platform_msg_ids))`
	var exists bool
	err := r.pool.QueryRow(ctx, q, platformMsgID).Scan(&exists)
	return exists, err
}

// Get returns an Interaction by id.
func (r *InteractionRepo) Get(ctx context.Context, id string) (*models.Interaction, error) {
	const q = interactionSelect + ` WHERE id = $1`
	row := r.pool.QueryRow(ctx, q, id)
	in, err := scanInteraction(row)
	if err == pgx.ErrNoRows {
		return nil, werrors.ErrNotFound
	}
	return in, err
}

// Claim transitions pending → claimed for the given reviewer, atomically.
// Returns werrors.ErrAlreadyClaimed if another reviewer won the race or the
// interaction is not pending.
func (r *InteractionRepo) Claim(ctx context.Context, id, reviewerID string) error {
	const q = `
		UPDATE interactions SET review_status = 'claimed', reviewer_id = $2, claimed_at = now(), updated_at = now()
		WHERE id = $1 AND (review_status = 'pending' OR (review_status = 'claimed' AND reviewer_id = $2))`
	tag, err := r.pool.Exec(ctx, q, id, reviewerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return werrors.ErrAlreadyClaimed
	}
	return nil
}

// Approve transitions claimed/pending → approved, recording the final
// bubbles, edit tags, quality score, and review latency.
func (r *InteractionRepo) Approve(ctx context.Context, id, reviewerID string, finalBubbles []string, editTags []string, quality int, note string) error {
	final, err := json.Marshal(finalBubbles)
	if err != nil {
		return err
	}
	const q = `
		UPDATE interactions SET
			review_status = 'approved',
			reviewer_id = $2,
			final_bubbles = $3,
			edit_tags = $4,
			quality_score = $5,
			reviewer_note = $6,
			reviewed_at = now(),
			review_latency_ms = EXTRACT(EPOCH FROM (now() - COALESCE(claimed_at, created_at))) * 1000,
			updated_at = now()
		WHERE id = $1 AND review_status IN ('pending','claimed')`
	tag, err := r.pool.Exec(ctx, q, id, reviewerID, final, editTags, quality, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return werrors.Wrap(werrors.KindConflict, "interaction not pending/claimed", nil)
	}
	return nil
}

// Reject transitions pending/claimed → rejected.
func (r *InteractionRepo) Reject(ctx context.Context, id, reviewerID, reason string) error {
	const q = `
		UPDATE interactions SET review_status = 'rejected', reviewer_id = $2, reject_reason = $3,
			reviewed_at = now(), updated_at = now()
		WHERE id = $1 AND review_status IN ('pending','claimed')`
	tag, err := r.pool.Exec(ctx, q, id, reviewerID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return werrors.Wrap(werrors.KindConflict, "interaction not pending/claimed", nil)
	}
	return nil
}

// Cancel transitions pending/claimed → cancelled (used when a user is
// quarantined mid-review).
func (r *InteractionRepo) Cancel(ctx context.Context, id string) error {
	const q = `
		UPDATE interactions SET review_status = 'cancelled', updated_at = now()
		WHERE id = $1 AND review_status IN ('pending','claimed')`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// SetReviewerNote updates the free-form note, allowed post-approval for audit.
func (r *InteractionRepo) SetReviewerNote(ctx context.Context, id, note string) error {
	const q = `UPDATE interactions SET reviewer_note = $2, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return werrors.ErrNotFound
	}
	return nil
}

// ListPending returns up to limit pending Interactions, oldest first,
// for feeding the review priority queue projection.
func (r *InteractionRepo) ListPending(ctx context.Context, limit int) ([]*models.Interaction, error) {
	const q = interactionSelect + ` WHERE review_status = 'pending' ORDER BY created_at ASC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// MarkIdentityLoopSuspected flags an interaction per spec.md §4.6 step 3.
func (r *InteractionRepo) MarkIdentityLoopSuspected(ctx context.Context, id string) error {
	const q = `UPDATE interactions SET identity_loop_suspected = true, updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

const interactionSelect = `
	SELECT id, user_id, platform_msg_ids, platform_ts, ingest_ts, raw_text,
		generation_draft, refined_bubbles, final_bubbles,
		safety_risk_score, safety_flags, review_status, reviewer_id,
		claimed_at, reviewed_at, review_latency_ms, generation_cost, refinement_cost,
		is_recovered, reviewer_note, reject_reason, identity_loop_suspected,
		edit_tags, quality_score, created_at, updated_at
	FROM interactions`

func scanInteraction(row pgx.Row) (*models.Interaction, error) {
	var in models.Interaction
	var refinedRaw, finalRaw, genCostRaw, refCostRaw []byte
	var reviewLatencyMS int64
	var claimedAt, reviewedAt *time.Time

	err := row.Scan(
		&in.ID, &in.UserID, &in.PlatformMsgIDs, &in.PlatformTS, &in.IngestTS, &in.RawText,
		&in.GenerationDraft, &refinedRaw, &finalRaw,
		&in.Safety.RiskScore, &in.Safety.Flags, &in.ReviewStatus, &in.ReviewerID,
		&claimedAt, &reviewedAt, &reviewLatencyMS, &genCostRaw, &refCostRaw,
		&in.IsRecovered, &in.ReviewerNote, &in.RejectReason, &in.IdentityLoopSuspected,
		&in.EditTags, &in.QualityScore, &in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	in.ClaimedAt, in.ReviewedAt = claimedAt, reviewedAt
	in.ReviewLatency = time.Duration(reviewLatencyMS) * time.Millisecond

	var refinedTexts, finalTexts []string
	_ = json.Unmarshal(refinedRaw, &refinedTexts)
	_ = json.Unmarshal(finalRaw, &finalTexts)
	in.RefinedBubbles = textsToBubbles(refinedTexts)
	in.FinalBubbles = textsToBubbles(finalTexts)
	_ = json.Unmarshal(genCostRaw, &in.GenerationCost)
	_ = json.Unmarshal(refCostRaw, &in.RefinementCost)

	return &in, nil
}

func bubbleTexts(bs []models.Bubble) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Text
	}
	return out
}

func textsToBubbles(texts []string) []models.Bubble {
	out := make([]models.Bubble, len(texts))
	for i, t := range texts {
		out[i] = models.Bubble{Text: t}
	}
	return out
}
