// Package broker implements the Queue Broker (spec.md §2 C2, §6.3): the
// durable intake FIFO, the per-worker processing lists, the per-user
// buffers, the review sorted set, the approved outbound list, the
// protocol/typing/quota caches, and the protocol_changed pub/sub channel.
//
// The teacher codebase implements its equivalent coordination layer on top
// of Postgres LISTEN/NOTIFY with a single dedicated goroutine serializing
// subscribe/unsubscribe commands (pkg/events/listener.go, publisher.go).
// Warden keeps that idiom — one goroutine owns the Redis pub/sub
// connection, commands flow through a channel — but backs it with Redis,
// the concrete broker named in spec.md §6.3.
package broker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitlbot/warden/pkg/config"
)

const (
	keyIntake         = "intake"
	keyReviewQueue    = "review_queue"
	keyReviewSeq      = "review_queue:seq"
	keyApproved       = "approved"
	channelProtocol   = "protocol_changed"
)

func keyProcessing(workerID string) string { return "processing:" + workerID }
func keyBuffer(userID string) string       { return "buffer:" + userID }
func keyProtocol(userID string) string     { return "protocol:" + userID }
func keyTyping(userID string) string       { return "typing:" + userID }
func keyQuota(model, yyyymmdd string) string { return "quota:" + model + ":" + yyyymmdd }
func keyUserMutex(userID string) string    { return "mutex:user:" + userID }

// Broker wraps a Redis client and exposes the transient coordination
// primitives owned by the Queue Broker.
type Broker struct {
	rdb *redis.Client

	cacheTimeout time.Duration
}

// New creates a Broker from configuration.
func New(cfg config.RedisConfig, cacheTimeout time.Duration) *Broker {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Broker{rdb: rdb, cacheTimeout: cacheTimeout}
}

// NewWithClient wraps an existing redis.Client, used by tests against
// miniredis.
func NewWithClient(rdb *redis.Client, cacheTimeout time.Duration) *Broker {
	return &Broker{rdb: rdb, cacheTimeout: cacheTimeout}
}

// Ping verifies connectivity at startup.
func (b *Broker) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.cacheTimeout)
	defer cancel()
	return b.rdb.Ping(ctx).Err()
}

// Close releases the underlying Redis connection.
func (b *Broker) Close() error { return b.rdb.Close() }
