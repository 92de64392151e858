// Package recovery implements the Recovery Agent (spec.md §2 C11, §4.11):
// a bounded startup/scheduled reconciliation pass that pages platform
// history for every known dialog, tiers messages by age, and replays them
// through intake while respecting hard per-run caps and a circuit breaker
// over the platform client. Grounded on the teacher's pkg/runbook executor,
// which runs a similarly bounded multi-step remediation pass with its own
// rate limiting and failure accounting.
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/config"
	"github.com/hitlbot/warden/pkg/metrics"
	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/platform"
	"github.com/hitlbot/warden/pkg/store"
	"github.com/hitlbot/warden/pkg/werrors"
)

const (
	tier1Max    = 2 * time.Hour
	tier2Max    = 6 * time.Hour
	workerCount = 10

	recoveryBatchSize = 5
	tier2BatchPause   = 2 * time.Second
	tier3BatchPause   = 10 * time.Second
)

// Agent runs bounded recovery passes (spec.md §4.11).
type Agent struct {
	store    *store.Store
	broker   *broker.Broker
	platform platform.Client
	cfg      config.RecoveryConfig
	logger   *slog.Logger

	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
}

// New creates an Agent. The token-bucket limiter enforces cfg.RatePerSec
// with a burst of 10; the breaker trips after 5 consecutive platform
// errors and stays open for 60s (spec.md §4.11).
func New(s *store.Store, b *broker.Broker, p platform.Client, cfg config.RecoveryConfig, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "recovery-platform",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Agent{
		store: s, broker: b, platform: p, cfg: cfg, logger: logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 10),
		breaker: breaker,
	}
}

// Run executes one bounded recovery pass, refusing to start a second
// concurrent run (spec.md §4.11 "must not execute concurrently with
// itself").
func (a *Agent) Run(ctx context.Context, trigger models.RecoveryTrigger) (*models.RecoveryOperation, error) {
	running, err := a.store.Recoveries.AnyRunning(ctx)
	if err != nil {
		return nil, werrors.Wrap(werrors.KindTransientExternal, "check running recovery", err)
	}
	if running {
		return nil, werrors.ErrAlreadyRunning
	}

	op := &models.RecoveryOperation{
		ID: uuid.NewString(), Trigger: trigger, StartedAt: time.Now(), Status: models.RecoveryRunning,
	}
	if err := a.store.Recoveries.Create(ctx, op); err != nil {
		return nil, werrors.Wrap(werrors.KindTransientExternal, "create recovery operation", err)
	}

	a.runPass(ctx, op)

	finishedAt := time.Now()
	op.FinishedAt = &finishedAt
	if op.Status != models.RecoveryFailed {
		op.Status = models.RecoveryCompleted
	}
	if err := a.store.Recoveries.Finish(ctx, op); err != nil {
		a.logger.Error("recovery: finish failed", "op_id", op.ID, "error", err)
	}
	return op, nil
}

func (a *Agent) runPass(ctx context.Context, op *models.RecoveryOperation) {
	raw, err := a.breaker.Execute(func() (interface{}, error) { return a.platform.ListDialogs(ctx) })
	if err != nil {
		op.Errors = append(op.Errors, err.Error())
		op.Status = models.RecoveryFailed
		return
	}
	dialogs, _ := raw.([]string)

	if len(dialogs) > a.cfg.MaxUsersPerRun {
		dialogs = dialogs[:a.cfg.MaxUsersPerRun]
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		sem       = make(chan struct{}, workerCount)
		remaining atomic.Int64
	)
	remaining.Store(int64(a.cfg.MaxMessagesPerRun))

	for _, userID := range dialogs {
		if remaining.Load() <= 0 {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(userID string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := a.recoverUser(ctx, userID, &remaining)
			mu.Lock()
			defer mu.Unlock()
			op.UsersSeen++
			op.Tier1Count += result.tier1
			op.Tier2Count += result.tier2
			op.Tier3Count += result.tier3
			op.SkipCount += result.skipped
			if err != nil {
				op.Errors = append(op.Errors, err.Error())
			}
		}(userID)
	}
	wg.Wait()
}

type recoveryResult struct {
	processed, tier1, tier2, tier3, skipped int
}

// recoverUser pages history newer than the user's cursor, tiers each
// message by age, and replays tier1/tier2/tier3 messages through intake
// (spec.md §4.11 steps 2-5). remaining is the run-wide message budget,
// shared across every concurrently-recovering user, so the hard
// per-invocation cap holds even when several users are processed at once.
func (a *Agent) recoverUser(ctx context.Context, userID string, remaining *atomic.Int64) (recoveryResult, error) {
	var result recoveryResult

	cursor, err := a.store.Cursors.Get(ctx, userID)
	if err != nil {
		return result, werrors.Wrap(werrors.KindTransientExternal, "load cursor for recovery", err)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return result, err
	}

	raw, err := a.breaker.Execute(func() (interface{}, error) {
		return a.platform.HistorySince(ctx, userID, cursor.LastPlatformID, 100)
	})
	if err != nil {
		return result, werrors.Wrap(werrors.KindTransientExternal, "fetch history for recovery", err)
	}
	history, _ := raw.([]platform.HistoryMessage)

	var latestID string
	var tier2InBatch, tier3InBatch int
	for _, msg := range history {
		age := time.Since(msg.PlatformTS)
		var tier string
		switch {
		case age <= tier1Max:
			tier = "tier1"
		case age <= tier2Max:
			tier = "tier2"
		case age <= a.cfg.MaxAge():
			tier = "tier3"
		default:
			tier = "skip"
		}

		if tier == "skip" {
			result.skipped++
			metrics.RecoveryMessages.WithLabelValues("skipped").Inc()
			// Permanently dropped per spec.md §4.11; the cursor advances
			// to the newest platform id seen regardless of tier (step 5).
			latestID = msg.PlatformMsgID
			continue
		}

		if remaining.Add(-1) < 0 {
			remaining.Add(1)
			// Hard per-run cap reached: stop without advancing latestID
			// past this message, so the next invocation retries it.
			break
		}

		switch tier {
		case "tier1":
			result.tier1++
		case "tier2":
			result.tier2++
		case "tier3":
			result.tier3++
		}
		metrics.RecoveryMessages.WithLabelValues(tier).Inc()

		if err := a.broker.PushIntake(ctx, broker.IntakeEntry{
			UserID: userID, PlatformMsgID: msg.PlatformMsgID, Text: msg.Text,
			PlatformTS: msg.PlatformTS, ReceivedAt: time.Now(), IsRecovered: true,
		}); err != nil {
			remaining.Add(1)
			return result, werrors.Wrap(werrors.KindTransientExternal, "requeue recovered message", err)
		}
		result.processed++
		latestID = msg.PlatformMsgID

		// Tier 1 is appended immediately; Tier 2/3 get inter-batch pacing on
		// top of the per-message rate limit, batch size 5 (spec.md §4.11
		// step 4).
		switch tier {
		case "tier2":
			tier2InBatch++
			if tier2InBatch%recoveryBatchSize == 0 {
				if err := sleepCtx(ctx, tier2BatchPause); err != nil {
					return result, err
				}
			}
		case "tier3":
			tier3InBatch++
			if tier3InBatch%recoveryBatchSize == 0 {
				if err := sleepCtx(ctx, tier3BatchPause); err != nil {
					return result, err
				}
			}
		}

		if a.limiter.Wait(ctx) != nil {
			return result, ctx.Err()
		}
	}

	if latestID != "" {
		if err := a.store.Cursors.AdvanceIfGreater(ctx, userID, latestID); err != nil {
			return result, werrors.Wrap(werrors.KindTransientExternal, "advance cursor after recovery", err)
		}
	}

	return result, nil
}

// sleepCtx waits for d, returning early with ctx.Err() if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
