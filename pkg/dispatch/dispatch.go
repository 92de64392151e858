// Package dispatch implements the Dispatcher (spec.md §2 C9, §4.9):
// consumes the approved outbound FIFO, resolves the recipient handle with
// backoff, paces bubble-by-bubble delivery with typing indicators, and
// records the conversation into Memory only once every bubble is sent.
// Grounded on the teacher's pkg/queue worker-loop shape combined with
// pkg/slack's outbound send retry.
package dispatch

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/memory"
	"github.com/hitlbot/warden/pkg/metrics"
	"github.com/hitlbot/warden/pkg/platform"
	"github.com/hitlbot/warden/pkg/protocol"
	"github.com/hitlbot/warden/pkg/store"
)

var handleBackoffs = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}

// Dispatcher drains approved jobs and delivers their bubbles.
type Dispatcher struct {
	store    *store.Store
	broker   *broker.Broker
	platform platform.Client
	protocol *protocol.Manager
	memory   *memory.Manager
	logger   *slog.Logger
}

// New creates a Dispatcher.
func New(s *store.Store, b *broker.Broker, p platform.Client, pm *protocol.Manager, m *memory.Manager, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: s, broker: b, platform: p, protocol: pm, memory: m, logger: logger}
}

// Run blocks consuming the approved FIFO until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := d.broker.PopApproved(ctx, 2*time.Second)
		if err != nil {
			continue
		}

		if err := d.dispatch(ctx, job); err != nil {
			d.logger.Error("dispatch: delivery failed", "interaction_id", job.InteractionID, "user_id", job.UserID, "error", err)
		}
	}
}

// dispatch delivers one approved interaction's final bubbles, cancelling
// mid-flight if the user enters quarantine (spec.md §4.9 Cancellation).
func (d *Dispatcher) dispatch(ctx context.Context, job *broker.ApprovedJob) error {
	in, err := d.store.Interactions.Get(ctx, job.InteractionID)
	if err != nil {
		return err
	}

	if err := d.resolveHandleWithBackoff(ctx, job.UserID); err != nil {
		return err
	}

	for _, bubble := range in.FinalBubbles {
		decision, err := d.protocol.Route(ctx, job.UserID)
		if err == nil && decision == protocol.DecisionQuarantine {
			d.logger.Info("dispatch: cancelling mid-delivery, user quarantined", "user_id", job.UserID)
			metrics.DispatchedBubbles.WithLabelValues("cancelled").Inc()
			return nil
		}

		typingFor := typingDuration(bubble.Text)
		_ = d.platform.SendTyping(ctx, job.UserID, typingFor)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(typingFor):
		}

		if err := d.platform.SendMessage(ctx, job.UserID, bubble.Text); err != nil {
			metrics.DispatchedBubbles.WithLabelValues("failed").Inc()
			return err
		}
		metrics.DispatchedBubbles.WithLabelValues("sent").Inc()

		wait := interBubbleWait(bubble.Text)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	for _, bubble := range in.FinalBubbles {
		d.memory.Append(ctx, job.UserID, memory.RoleAssistant, bubble.Text)
	}

	return nil
}

func (d *Dispatcher) resolveHandleWithBackoff(ctx context.Context, userID string) error {
	var lastErr error
	for _, delay := range handleBackoffs {
		if err := d.platform.ResolveHandle(ctx, userID); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// typingDuration implements max(1.2, min(len/40,6)) seconds (spec.md §4.9).
func typingDuration(text string) time.Duration {
	v := math.Min(float64(len(text))/40.0, 6.0)
	v = math.Max(1.2, v)
	return time.Duration(v * float64(time.Second))
}

// interBubbleWait implements min(1.5, len/80) seconds (spec.md §4.9).
func interBubbleWait(text string) time.Duration {
	v := math.Min(1.5, float64(len(text))/80.0)
	return time.Duration(v * float64(time.Second))
}
