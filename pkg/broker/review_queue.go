package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// NextReviewSequence returns a small monotonically increasing integer
// (1, 2, 3, ...) used to break priority ties on ascending insertion order
// (spec.md §4.8). Backed by a dedicated Redis counter rather than a
// wall-clock timestamp, since nanosecond timestamps are large enough that
// their fractional tiebreak contribution swamps realistic priority deltas
// within minutes of arrival.
func (b *Broker) NextReviewSequence(ctx context.Context) (int64, error) {
	return b.rdb.Incr(ctx, keyReviewSeq).Result()
}

// EnqueueReview inserts an interaction id into the review sorted set,
// scored by its priority (spec.md §4.8). Ties are broken by an ascending
// sequence number, folded into the score as a small fractional tiebreak so
// ZRANGE naturally orders ties by insertion without ever approaching the
// magnitude of a real priority delta (smallest meaningful delta is on the
// order of 1e-3; the tiebreak term stays below 1e-6 for any sequence this
// process will reach).
func (b *Broker) EnqueueReview(ctx context.Context, interactionID string, priority float64, sequence int64) error {
	score := priority + float64(sequence)*-1e-12
	return b.rdb.ZAdd(ctx, keyReviewQueue, redis.Z{Score: score, Member: interactionID}).Err()
}

// ListPendingReview returns up to limit interaction ids ordered by
// descending priority (spec.md §4.8 list_pending).
func (b *Broker) ListPendingReview(ctx context.Context, limit int64) ([]string, error) {
	return b.rdb.ZRevRange(ctx, keyReviewQueue, 0, limit-1).Result()
}

// AllPendingReview returns every interaction id currently queued, in the
// stored (enqueue-time priority) order. Callers that need the spec's
// age-aware priority recompute the score themselves over the full set
// before truncating to a page size.
func (b *Broker) AllPendingReview(ctx context.Context) ([]string, error) {
	return b.rdb.ZRevRange(ctx, keyReviewQueue, 0, -1).Result()
}

// RemoveFromReview removes an interaction id once it leaves the pending
// state (claimed/approved/rejected/cancelled all exit the review queue
// immediately on claim to prevent double-claim races; approve/reject also
// remove it defensively).
func (b *Broker) RemoveFromReview(ctx context.Context, interactionID string) error {
	return b.rdb.ZRem(ctx, keyReviewQueue, interactionID).Err()
}

// ReviewQueueLen reports the depth of the review sorted set.
func (b *Broker) ReviewQueueLen(ctx context.Context) (int64, error) {
	return b.rdb.ZCard(ctx, keyReviewQueue).Result()
}

// ApprovedJob is one entry on the approved-outbound FIFO list (spec.md §6.3).
type ApprovedJob struct {
	InteractionID string `json:"interaction_id"`
	UserID        string `json:"user_id"`
}

// PushApproved appends a job to the approved FIFO list, consumed by the
// Dispatcher.
func (b *Broker) PushApproved(ctx context.Context, job ApprovedJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.rdb.LPush(ctx, keyApproved, raw).Err()
}

// ApprovedLen reports the depth of the approved list, used for the
// backpressure banner (spec.md §5 Backpressure).
func (b *Broker) ApprovedLen(ctx context.Context) (int64, error) {
	return b.rdb.LLen(ctx, keyApproved).Result()
}

// PopApproved blocks until a job is available on the approved list.
func (b *Broker) PopApproved(ctx context.Context, timeout time.Duration) (*ApprovedJob, error) {
	res, err := b.rdb.BRPop(ctx, timeout, keyApproved).Result()
	if err != nil {
		return nil, err
	}
	// res[0] is the key name, res[1] is the value.
	var job ApprovedJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
