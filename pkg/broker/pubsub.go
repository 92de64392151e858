package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ProtocolChangedEvent is published on the protocol_changed channel
// whenever the Protocol Manager activates or deactivates a user (spec.md
// §4.2, §4.10). Activity Tracker and Dispatcher subscribe to invalidate
// their per-user caches immediately.
type ProtocolChangedEvent struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// ProtocolListener runs a single goroutine owning the Redis pub/sub
// connection and fans out decoded events to registered subscriber
// channels. The teacher's pkg/events/listener.go owns a single Postgres
// LISTEN connection the same way, serializing subscribe/unsubscribe
// through a command channel to avoid concurrent writes to one connection;
// Redis pub/sub has the identical constraint, so Warden keeps the pattern.
type ProtocolListener struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[int]chan ProtocolChangedEvent
	next int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewProtocolListener creates a listener bound to the broker's Redis client.
func NewProtocolListener(b *Broker, logger *slog.Logger) *ProtocolListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProtocolListener{
		rdb:    b.rdb,
		logger: logger,
		subs:   make(map[int]chan ProtocolChangedEvent),
	}
}

// Start begins consuming the protocol_changed channel until ctx is
// cancelled or Stop is called.
func (l *ProtocolListener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx)
}

// Stop halts the listener goroutine and waits for it to exit.
func (l *ProtocolListener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *ProtocolListener) run(ctx context.Context) {
	defer close(l.done)

	pubsub := l.rdb.Subscribe(ctx, channelProtocol)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt ProtocolChangedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				l.logger.Warn("protocol_changed: malformed payload", "error", err)
				continue
			}
			l.fanOut(evt)
		}
	}
}

func (l *ProtocolListener) fanOut(evt ProtocolChangedEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- evt:
		default:
			l.logger.Warn("protocol_changed: subscriber channel full, dropping event", "user_id", evt.UserID)
		}
	}
}

// Subscribe registers a new fan-out channel and returns it plus an
// unsubscribe function. The returned channel is buffered so a slow
// consumer cannot block the listener goroutine; see fanOut's non-blocking
// send.
func (l *ProtocolListener) Subscribe() (<-chan ProtocolChangedEvent, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.next
	l.next++
	ch := make(chan ProtocolChangedEvent, 16)
	l.subs[id] = ch

	unsubscribe := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
		close(ch)
	}
	return ch, unsubscribe
}

// PublishProtocolChanged publishes an event on the protocol_changed
// channel (spec.md §4.2 activate/deactivate).
func (b *Broker) PublishProtocolChanged(ctx context.Context, evt ProtocolChangedEvent) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelProtocol, raw).Err()
}
