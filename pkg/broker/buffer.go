package broker

import (
	"context"
	"encoding/json"
	"time"
)

// BufferedMessage is one message accumulated in a per-user buffer while the
// Activity Tracker debounces (spec.md §4.3).
type BufferedMessage struct {
	PlatformMsgID string    `json:"platform_msg_id"`
	Text          string    `json:"text"`
	ArrivedAt     time.Time `json:"arrived_at"`
	IsRecovered   bool      `json:"is_recovered"`
	PlatformTS    time.Time `json:"platform_ts"`
}

// AppendToBuffer pushes a message onto the tail of a user's pending buffer
// and refreshes its TTL (W_max + 60s per spec.md §4.12).
func (b *Broker) AppendToBuffer(ctx context.Context, userID string, msg BufferedMessage, ttl time.Duration) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := b.rdb.TxPipeline()
	pipe.RPush(ctx, keyBuffer(userID), raw)
	pipe.Expire(ctx, keyBuffer(userID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// BufferLen reports how many messages are currently buffered for a user.
func (b *Broker) BufferLen(ctx context.Context, userID string) (int64, error) {
	return b.rdb.LLen(ctx, keyBuffer(userID)).Result()
}

// DrainBuffer atomically removes and returns all buffered messages for a
// user, releasing the buffer to the Supervisor as one processing unit.
func (b *Broker) DrainBuffer(ctx context.Context, userID string) ([]BufferedMessage, error) {
	key := keyBuffer(userID)
	pipe := b.rdb.TxPipeline()
	getAll := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	raws, err := getAll.Result()
	if err != nil {
		return nil, err
	}
	out := make([]BufferedMessage, 0, len(raws))
	for _, raw := range raws {
		var m BufferedMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
