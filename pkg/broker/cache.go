package broker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetProtocolCache caches the protocol status for a user with the 5-minute
// TTL named in spec.md §6.3 (`protocol:{user_id}`).
func (b *Broker) SetProtocolCache(ctx context.Context, userID, status string, ttl time.Duration) error {
	return b.rdb.Set(ctx, keyProtocol(userID), status, ttl).Err()
}

// GetProtocolCache reads the cached protocol status. redis.Nil is returned
// on a cache miss; callers fall back to the store (spec.md §4.2 route()).
func (b *Broker) GetProtocolCache(ctx context.Context, userID string) (string, error) {
	return b.rdb.Get(ctx, keyProtocol(userID)).Result()
}

// InvalidateProtocolCache deletes the cached entry, called on
// activate/deactivate (spec.md §4.2).
func (b *Broker) InvalidateProtocolCache(ctx context.Context, userID string) error {
	return b.rdb.Del(ctx, keyProtocol(userID)).Err()
}

// SetTyping sets the per-user typing flag with TTL = typing_window
// (spec.md §4.1).
func (b *Broker) SetTyping(ctx context.Context, userID string, ttl time.Duration) error {
	return b.rdb.Set(ctx, keyTyping(userID), "1", ttl).Err()
}

// IsTyping reports whether the per-user typing flag is currently set,
// consulted by the Activity Tracker's dispatch rule (spec.md §4.3 rule 1).
func (b *Broker) IsTyping(ctx context.Context, userID string) (bool, error) {
	n, err := b.rdb.Exists(ctx, keyTyping(userID)).Result()
	return n > 0, err
}

// IncrQuota atomically increments the per-(model,day) quota counter and
// returns the new value, expiring the key after 48h on first creation
// (spec.md §6.3 `quota:{model}:{yyyymmdd}`).
func (b *Broker) IncrQuota(ctx context.Context, model, yyyymmdd string) (int64, error) {
	key := keyQuota(model, yyyymmdd)
	n, err := b.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		b.rdb.Expire(ctx, key, 48*time.Hour)
	}
	return n, nil
}

// QuotaCount reads the current counter value without incrementing.
func (b *Broker) QuotaCount(ctx context.Context, model, yyyymmdd string) (int64, error) {
	v, err := b.rdb.Get(ctx, keyQuota(model, yyyymmdd)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// AcquireUserMutex implements the per-user mutex held in the key/value
// cache with a 5-minute safety TTL (spec.md §5 Shared-resource discipline),
// preventing concurrent Supervisor invocations for one user. Returns false
// if another worker already holds it.
func (b *Broker) AcquireUserMutex(ctx context.Context, userID, ownerToken string) (bool, error) {
	ok, err := b.rdb.SetNX(ctx, keyUserMutex(userID), ownerToken, 5*time.Minute).Result()
	return ok, err
}

// ReleaseUserMutex releases the per-user mutex if still held by ownerToken,
// using a Lua script so the check-and-delete is atomic.
func (b *Broker) ReleaseUserMutex(ctx context.Context, userID, ownerToken string) error {
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0`
	return b.rdb.Eval(ctx, script, []string{keyUserMutex(userID)}, ownerToken).Err()
}
