// Package ingress implements the Ingress Adapter (spec.md §2 C12, §4.1):
// the boundary where raw platform events (new_message, typing) become
// either intake entries or quarantine entries, with user bookkeeping and
// cursor advancement handled inline. Grounded on the teacher's
// pkg/services.AlertService, which performs the same shape of work at the
// teacher's ingestion boundary: validate a domain-level Input struct built
// by the caller from a transport payload, resolve supporting state, and
// hand the result to the worker pool.
package ingress

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/config"
	"github.com/hitlbot/warden/pkg/metrics"
	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/platform"
	"github.com/hitlbot/warden/pkg/protocol"
	"github.com/hitlbot/warden/pkg/store"
	"github.com/hitlbot/warden/pkg/werrors"
)

// NewMessageInput is the domain-level data needed to ingest one inbound
// platform message, built by the transport layer (e.g. a Slack event
// handler) from a raw payload (spec.md §4.1).
type NewMessageInput struct {
	UserID        string
	PlatformMsgID string
	Text          string
	PlatformTS    time.Time
}

// TypingInput is the domain-level data for a typing event (spec.md §4.1
// rule: "a typing event extends the debounce window without itself
// producing a processing unit").
type TypingInput struct {
	UserID string
}

// Adapter is the Ingress Adapter.
type Adapter struct {
	store    *store.Store
	broker   *broker.Broker
	protocol *protocol.Manager
	platform platform.Client
	debounce config.DebounceConfig
	logger   *slog.Logger
}

// New creates an Adapter.
func New(s *store.Store, b *broker.Broker, pm *protocol.Manager, p platform.Client, debounce config.DebounceConfig, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{store: s, broker: b, protocol: pm, platform: p, debounce: debounce, logger: logger}
}

// HandleNewMessage ingests one inbound message: ensures the user row
// exists, resolves the outbound handle proactively, routes through the
// Protocol Manager, and either appends to intake or quarantines the
// message (spec.md §4.1, §4.2). Returns werrors.ErrDuplicateIngest if the
// platform message id was already ingested.
func (a *Adapter) HandleNewMessage(ctx context.Context, in NewMessageInput) error {
	if in.UserID == "" || in.PlatformMsgID == "" {
		return werrors.New(werrors.KindValidation, "user_id and platform_msg_id are required")
	}

	if _, err := a.store.Users.EnsureExists(ctx, in.UserID); err != nil {
		return werrors.Wrap(werrors.KindTransientExternal, "ensure user exists", err)
	}

	exists, err := a.store.Interactions.ExistsForPlatformMsgID(ctx, in.PlatformMsgID)
	if err != nil {
		return werrors.Wrap(werrors.KindTransientExternal, "check duplicate ingest", err)
	}
	if !exists {
		exists, err = a.store.Quarantine.ExistsForPlatformMsgID(ctx, in.UserID, in.PlatformMsgID)
		if err != nil {
			return werrors.Wrap(werrors.KindTransientExternal, "check duplicate ingest", err)
		}
	}
	if exists {
		metrics.MessagesIngested.WithLabelValues("duplicate").Inc()
		return werrors.ErrDuplicateIngest
	}

	if err := a.platform.ResolveHandle(ctx, in.UserID); err != nil {
		a.logger.Warn("ingress: handle resolution failed, proceeding anyway", "user_id", in.UserID, "error", err)
	}

	decision, err := a.protocol.Route(ctx, in.UserID)
	if err != nil {
		a.logger.Warn("ingress: protocol state read failed, processing message normally", "user_id", in.UserID, "error", err)
	}

	receivedAt := time.Now()
	platformTS := in.PlatformTS
	if platformTS.IsZero() {
		platformTS = receivedAt
	}

	if decision == protocol.DecisionQuarantine {
		if err := a.protocol.Quarantine(ctx, &models.QuarantineEntry{
			ID:            uuid.NewString(),
			UserID:        in.UserID,
			PlatformMsgID: in.PlatformMsgID,
			Text:          in.Text,
			QuarantinedAt: receivedAt,
		}); err != nil {
			return werrors.Wrap(werrors.KindTransientExternal, "quarantine message", err)
		}
		metrics.MessagesIngested.WithLabelValues("quarantined").Inc()
	} else {
		if err := a.broker.PushIntake(ctx, broker.IntakeEntry{
			UserID:        in.UserID,
			PlatformMsgID: in.PlatformMsgID,
			Text:          in.Text,
			PlatformTS:    platformTS,
			ReceivedAt:    receivedAt,
		}); err != nil {
			return werrors.Wrap(werrors.KindTransientExternal, "push intake", err)
		}
		metrics.MessagesIngested.WithLabelValues("accepted").Inc()
	}

	if err := a.store.Cursors.AdvanceIfGreater(ctx, in.UserID, in.PlatformMsgID); err != nil {
		a.logger.Error("ingress: cursor advance failed", "user_id", in.UserID, "error", err)
	}

	return nil
}

// HandleTyping records the per-user typing flag with TTL = typing_window
// (spec.md §4.1, §4.3 rule 1). It never produces a processing unit.
func (a *Adapter) HandleTyping(ctx context.Context, in TypingInput) error {
	if in.UserID == "" {
		return werrors.New(werrors.KindValidation, "user_id is required")
	}
	if err := a.broker.SetTyping(ctx, in.UserID, a.debounce.TypingWindow()); err != nil {
		return werrors.Wrap(werrors.KindTransientExternal, "set typing flag", err)
	}
	return nil
}
