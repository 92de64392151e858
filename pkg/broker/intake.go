package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// IntakeEntry is one raw event appended to the intake log by the Ingress
// Adapter (spec.md §4.1, §4.12).
type IntakeEntry struct {
	UserID        string    `json:"user_id"`
	PlatformMsgID string    `json:"platform_msg_id"`
	Text          string    `json:"text"`
	PlatformTS    time.Time `json:"platform_ts"`
	ReceivedAt    time.Time `json:"received_at"`
	IsRecovered   bool      `json:"is_recovered"`
}

// PushIntake appends an entry to the durable FIFO intake log.
func (b *Broker) PushIntake(ctx context.Context, e IntakeEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.rdb.LPush(ctx, keyIntake, raw).Err()
}

// IntakeLen reports the current depth of the intake log, used for the
// backpressure watermark check (spec.md §5 Backpressure).
func (b *Broker) IntakeLen(ctx context.Context) (int64, error) {
	return b.rdb.LLen(ctx, keyIntake).Result()
}

// DrainOne performs the BRPOPLPUSH-equivalent two-step protocol described
// in spec.md §4.12: block-pop from intake, push onto the worker's
// processing list, and return the decoded entry. A zero timeout blocks
// indefinitely; ctx cancellation always takes precedence.
func (b *Broker) DrainOne(ctx context.Context, workerID string, timeout time.Duration) (*IntakeEntry, error) {
	raw, err := b.rdb.BRPopLPush(ctx, keyIntake, keyProcessing(workerID), timeout).Result()
	if err != nil {
		return nil, err
	}
	var e IntakeEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// AckProcessing removes the entry from the worker's processing list once
// the Activity Tracker has durably absorbed it into a user buffer.
func (b *Broker) AckProcessing(ctx context.Context, workerID, rawEntry string) error {
	return b.rdb.LRem(ctx, keyProcessing(workerID), 1, rawEntry).Err()
}

// ScanStaleProcessing is the janitor half of spec.md §4.12: it returns the
// keys of all processing:* lists so the caller can re-inject entries at the
// head of intake. It does not look at list age; every processing list found
// is returned.
func (b *Broker) ScanStaleProcessing(ctx context.Context) ([]string, error) {
	var keys []string
	iter := b.rdb.Scan(ctx, 0, "processing:*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// RequeueProcessing drains all entries from a stale processing list back
// onto the head of intake (re-injection per spec.md §4.12), returning the
// count requeued.
func (b *Broker) RequeueProcessing(ctx context.Context, processingKey string) (int, error) {
	count := 0
	for {
		_, err := b.rdb.RPopLPush(ctx, processingKey, keyIntake).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return count, err
		}
		count++
	}
	return count, nil
}
