// Package protocol implements the Protocol Manager (spec.md §2 C10, §4.2,
// §4.10): per-user quarantine ("silence") state that short-circuits
// intake, plus the reviewer-facing quarantine queue operations.
package protocol

import (
	"context"
	"time"

	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/store"
)

// Decision is the routing outcome of Route (spec.md §4.2).
type Decision string

const (
	DecisionProcess    Decision = "process"
	DecisionQuarantine Decision = "quarantine"
)

const cacheTTL = 5 * time.Minute

// Manager manages per-user quarantine state and short-circuits intake.
type Manager struct {
	store  *store.Store
	broker *broker.Broker
}

// New creates a Manager.
func New(s *store.Store, b *broker.Broker) *Manager {
	return &Manager{store: s, broker: b}
}

// Route returns process or quarantine for a user: O(1) cache lookup,
// fallback to store on miss, caching the result with TTL=5min (spec.md
// §4.2). Cache failures degrade to direct store reads.
func (m *Manager) Route(ctx context.Context, userID string) (Decision, error) {
	if cached, err := m.broker.GetProtocolCache(ctx, userID); err == nil {
		return decisionFromStatus(models.ProtocolStatus(cached)), nil
	}

	state, err := m.store.Protocol.Get(ctx, userID)
	if err != nil {
		return DecisionProcess, err
	}

	_ = m.broker.SetProtocolCache(ctx, userID, string(state.Status), cacheTTL)
	return decisionFromStatus(state.Status), nil
}

func decisionFromStatus(s models.ProtocolStatus) Decision {
	if s == models.ProtocolActive {
		return DecisionQuarantine
	}
	return DecisionProcess
}

// Activate puts a user into quarantine, invalidates the cache, and
// publishes protocol_changed (spec.md §4.2).
func (m *Manager) Activate(ctx context.Context, userID, actorID string) error {
	return m.setState(ctx, userID, models.ProtocolActive, actorID)
}

// Deactivate releases a user from quarantine (spec.md §4.2).
func (m *Manager) Deactivate(ctx context.Context, userID, actorID string) error {
	return m.setState(ctx, userID, models.ProtocolInactive, actorID)
}

func (m *Manager) setState(ctx context.Context, userID string, status models.ProtocolStatus, actorID string) error {
	if err := m.store.Protocol.Set(ctx, userID, status, actorID); err != nil {
		return err
	}
	_ = m.broker.InvalidateProtocolCache(ctx, userID)
	return m.broker.PublishProtocolChanged(ctx, broker.ProtocolChangedEvent{UserID: userID, Status: string(status)})
}

// QuarantineQueue returns a time-ordered list of a user's quarantine
// entries, for reviewer inspection (spec.md §4.2).
func (m *Manager) QuarantineQueue(ctx context.Context, userID string, limit int) ([]*models.QuarantineEntry, error) {
	return m.store.Quarantine.ListForUser(ctx, userID, limit)
}

// Quarantine records a message as quarantined rather than appended to
// intake (spec.md §4.1, §4.2).
func (m *Manager) Quarantine(ctx context.Context, entry *models.QuarantineEntry) error {
	return m.store.Quarantine.Create(ctx, entry)
}

// Release feeds a quarantine entry back into intake as an ordinary,
// non-recovered intake entry (spec.md §4.2), marking the entry
// processed/released in the store. The pushed intake entry carries no
// marker that it came from quarantine.
func (m *Manager) Release(ctx context.Context, entryID string) (*models.QuarantineEntry, error) {
	entry, err := m.store.Quarantine.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if err := m.store.Quarantine.MarkReleased(ctx, entryID); err != nil {
		return nil, err
	}
	if err := m.broker.PushIntake(ctx, broker.IntakeEntry{
		UserID:        entry.UserID,
		PlatformMsgID: entry.PlatformMsgID,
		Text:          entry.Text,
		ReceivedAt:    time.Now(),
	}); err != nil {
		return nil, err
	}
	return entry, nil
}

// BulkRelease releases all unprocessed entries for a user back to intake
// (spec.md §4.10 "bulk-release a range back to intake").
func (m *Manager) BulkRelease(ctx context.Context, userID string) (int, error) {
	entries, err := m.store.Quarantine.ListForUser(ctx, userID, 10000)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if e.Processed {
			continue
		}
		if _, err := m.Release(ctx, e.ID); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Purge soft-deletes quarantine entries past their 30-day retention
// (spec.md §4.10).
func (m *Manager) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return m.store.Quarantine.SoftDeleteOlderThan(ctx, retention)
}

// Subscribe exposes the protocol_changed feed for the Activity Tracker and
// Dispatcher (spec.md §4.10).
func (m *Manager) Subscribe(listener *broker.ProtocolListener) (<-chan broker.ProtocolChangedEvent, func()) {
	return listener.Subscribe()
}
