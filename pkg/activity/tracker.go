// Package activity implements the Activity Tracker (spec.md §2 C3, §4.3):
// per-user debouncing/batching of rapid messages before they reach the
// Supervisor. The drain-worker loop mirrors the teacher's
// pkg/queue/worker.go claim-process-heartbeat shape, adapted to the
// two-step BRPOPLPUSH-equivalent protocol described in spec.md §4.12.
package activity

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/config"
	"github.com/hitlbot/warden/pkg/models"
)

// Sink receives released processing units for handoff to the Supervisor.
type Sink interface {
	Submit(ctx context.Context, unit models.ProcessingUnit)
}

// Tracker runs N drain workers pulling off the intake log and maintaining
// per-user buffers, releasing them to a Sink per the dispatch rule in
// spec.md §4.3.
type Tracker struct {
	broker *broker.Broker
	cfg    config.DebounceConfig
	sink   Sink
	logger *slog.Logger

	workerID string

	mu      sync.Mutex
	timers  map[string]*time.Timer
	firstAt map[string]time.Time
	stopped map[string]bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Tracker.
func New(b *broker.Broker, cfg config.DebounceConfig, sink Sink, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		broker:   b,
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		workerID: uuid.NewString(),
		timers:   make(map[string]*time.Timer),
		firstAt:  make(map[string]time.Time),
		stopped:  make(map[string]bool),
	}
}

// Start launches N drain workers (spec.md §5 "Intake drain workers").
func (t *Tracker) Start(ctx context.Context, n int) {
	ctx, t.cancel = context.WithCancel(ctx)
	for i := 0; i < n; i++ {
		t.wg.Add(1)
		go t.drainLoop(ctx)
	}
}

// Stop signals all drain workers to exit and waits for them.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

func (t *Tracker) drainLoop(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entry, err := t.broker.DrainOne(ctx, t.workerID, 2*time.Second)
		if err != nil {
			continue // timeout or ctx cancellation; loop re-checks ctx.Done()
		}

		t.absorb(ctx, entry)
	}
}

// absorb appends an entry to the user's buffer and schedules/refreshes the
// release timer, honoring B_max and W_max (spec.md §4.3 dispatch rule).
func (t *Tracker) absorb(ctx context.Context, entry *broker.IntakeEntry) {
	if err := t.broker.AppendToBuffer(ctx, entry.UserID, broker.BufferedMessage{
		PlatformMsgID: entry.PlatformMsgID,
		Text:          entry.Text,
		ArrivedAt:     time.Now(),
		IsRecovered:   entry.IsRecovered,
		PlatformTS:    entry.PlatformTS,
	}, t.cfg.MaxWait()+60*time.Second); err != nil {
		t.logger.Error("activity: buffer append failed", "user_id", entry.UserID, "error", err)
		return
	}

	n, err := t.broker.BufferLen(ctx, entry.UserID)
	if err != nil {
		t.logger.Error("activity: buffer len failed", "user_id", entry.UserID, "error", err)
		return
	}

	if n >= int64(t.cfg.MaxBatch) {
		t.release(ctx, entry.UserID)
		return
	}

	t.scheduleTimer(ctx, entry.UserID)
}

// scheduleTimer arms/refreshes the debounce timer for a user. It fires
// after T_debounce of silence, but maybeRelease re-checks the typing flag and
// W_max before actually releasing (spec.md §4.3 rules 1 and 3).
func (t *Tracker) scheduleTimer(ctx context.Context, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.firstAt[userID]; !ok {
		t.firstAt[userID] = time.Now()
	}

	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
	}

	waitRemaining := t.cfg.MaxWait() - time.Since(t.firstAt[userID])
	delay := t.cfg.Window()
	if waitRemaining < delay {
		delay = waitRemaining
	}
	if delay < 0 {
		delay = 0
	}

	t.timers[userID] = time.AfterFunc(delay, func() {
		t.maybeRelease(ctx, userID)
	})
}

func (t *Tracker) maybeRelease(ctx context.Context, userID string) {
	t.mu.Lock()
	first, ok := t.firstAt[userID]
	t.mu.Unlock()
	maxWaitHit := ok && time.Since(first) >= t.cfg.MaxWait()

	typing, err := t.broker.IsTyping(ctx, userID)
	if err == nil && typing && !maxWaitHit {
		// Rule 1 requires the typing flag to be clear; re-arm for another
		// window unless W_max (rule 3) has already elapsed.
		t.scheduleTimer(ctx, userID)
		return
	}
	t.release(ctx, userID)
}

func (t *Tracker) release(ctx context.Context, userID string) {
	t.mu.Lock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
	delete(t.firstAt, userID)
	t.mu.Unlock()

	msgs, err := t.broker.DrainBuffer(ctx, userID)
	if err != nil || len(msgs) == 0 {
		return
	}

	texts := make([]string, len(msgs))
	ids := make([]string, len(msgs))
	var latestTS time.Time
	for i, m := range msgs {
		texts[i] = m.Text
		ids[i] = m.PlatformMsgID
		if m.PlatformTS.After(latestTS) {
			latestTS = m.PlatformTS
		}
	}

	unit := models.ProcessingUnit{
		UserID:         userID,
		CombinedText:   strings.Join(texts, "\n"),
		PlatformMsgIDs: ids,
		ReceivedAt:     time.Now(),
		IsRecovered:    msgs[0].IsRecovered,
		PlatformTS:     latestTS,
	}

	if len(msgs) >= t.cfg.MaxBatch {
		t.logger.Debug("activity: released full batch", "user_id", userID, "count", len(msgs))
	}

	t.sink.Submit(ctx, unit)
}

// DrainForQuarantine drains a pending buffer without submitting to the
// Supervisor, used when Protocol Manager activates quarantine mid-buffer
// (spec.md §4.3 Cancellation). Returns the drained messages so the caller
// can persist them as Quarantine entries.
func (t *Tracker) DrainForQuarantine(ctx context.Context, userID string) ([]broker.BufferedMessage, error) {
	t.mu.Lock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
	delete(t.firstAt, userID)
	t.mu.Unlock()

	return t.broker.DrainBuffer(ctx, userID)
}
