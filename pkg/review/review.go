// Package review implements the Review Service (spec.md §2 C8, §4.8): the
// reviewer-facing operations over pending interactions, backed by the
// broker's priority-ordered review queue and the store's interaction
// repository. Grounded on the teacher's pkg/api service layer, which sits
// between HTTP handlers and the database in the same thin-orchestration
// role.
package review

import (
	"context"
	"sort"
	"time"

	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/metrics"
	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/store"
	"github.com/hitlbot/warden/pkg/werrors"
)

// Service implements list_pending/claim/approve/reject/cancel/edit_note
// (spec.md §4.8).
type Service struct {
	store  *store.Store
	broker *broker.Broker
}

// New creates a Service.
func New(s *store.Store, b *broker.Broker) *Service {
	return &Service{store: s, broker: b}
}

// ListPending returns up to limit interactions from the review queue,
// richest-first (spec.md §4.8 list_pending). Priority is recomputed against
// each item's current age rather than read off the frozen enqueue-time
// score, since the age term (0.4*min(age_minutes/60,1.0)) must keep
// advancing the longer an item waits.
func (s *Service) ListPending(ctx context.Context, limit int64) ([]*models.Interaction, error) {
	ids, err := s.broker.AllPendingReview(ctx)
	if err != nil {
		return nil, werrors.Wrap(werrors.KindTransientExternal, "list pending review queue", err)
	}

	out := make([]*models.Interaction, 0, len(ids))
	for _, id := range ids {
		in, err := s.store.Interactions.Get(ctx, id)
		if err != nil {
			if werrors.Is(err, werrors.KindValidation) {
				// Queue entry outlived its interaction row; drop it defensively.
				_ = s.broker.RemoveFromReview(ctx, id)
				continue
			}
			return nil, err
		}
		out = append(out, in)
	}

	scores := make(map[string]float64, len(out))
	for _, in := range out {
		userScalar := 0.0
		if u, err := s.store.Users.Get(ctx, in.UserID); err == nil {
			userScalar = u.LifetimeValue
		}
		scores[in.ID] = Priority(in.CreatedAt, userScalar, in.Safety.RiskScore)
	}
	sort.SliceStable(out, func(i, j int) bool { return scores[out[i].ID] > scores[out[j].ID] })

	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Claim atomically assigns an interaction to a reviewer (spec.md §4.8
// claim), removing it from the shared queue so other reviewers stop seeing
// it the instant one reviewer has taken it.
func (s *Service) Claim(ctx context.Context, interactionID, reviewerID string) error {
	if err := s.store.Interactions.Claim(ctx, interactionID, reviewerID); err != nil {
		return err
	}
	return s.broker.RemoveFromReview(ctx, interactionID)
}

// Approve finalizes an interaction with (possibly edited) bubbles and
// pushes it to the outbound FIFO for the Dispatcher (spec.md §4.8 approve,
// §4.9).
func (s *Service) Approve(ctx context.Context, interactionID, reviewerID string, finalBubbles, editTags []string, quality int, note string) error {
	if err := s.store.Interactions.Approve(ctx, interactionID, reviewerID, finalBubbles, editTags, quality, note); err != nil {
		return err
	}
	_ = s.broker.RemoveFromReview(ctx, interactionID)

	in, err := s.store.Interactions.Get(ctx, interactionID)
	if err != nil {
		return err
	}
	if err := s.broker.PushApproved(ctx, broker.ApprovedJob{InteractionID: interactionID, UserID: in.UserID}); err != nil {
		return err
	}
	metrics.ReviewDecisions.WithLabelValues("approve").Inc()
	return nil
}

// Reject discards a draft without dispatch (spec.md §4.8 reject).
func (s *Service) Reject(ctx context.Context, interactionID, reviewerID, reason string) error {
	if err := s.store.Interactions.Reject(ctx, interactionID, reviewerID, reason); err != nil {
		return err
	}
	if err := s.broker.RemoveFromReview(ctx, interactionID); err != nil {
		return err
	}
	metrics.ReviewDecisions.WithLabelValues("reject").Inc()
	return nil
}

// Cancel withdraws an interaction from review, used when a user enters
// quarantine mid-review (spec.md §4.2, §4.8).
func (s *Service) Cancel(ctx context.Context, interactionID string) error {
	if err := s.store.Interactions.Cancel(ctx, interactionID); err != nil {
		return err
	}
	return s.broker.RemoveFromReview(ctx, interactionID)
}

// EditNote updates the reviewer's free-form note, allowed even after a
// terminal disposition for audit purposes (spec.md §4.8 edit_note).
func (s *Service) EditNote(ctx context.Context, interactionID, note string) error {
	return s.store.Interactions.SetReviewerNote(ctx, interactionID, note)
}

// Get returns a single interaction for the detail view.
func (s *Service) Get(ctx context.Context, interactionID string) (*models.Interaction, error) {
	return s.store.Interactions.Get(ctx, interactionID)
}

// Priority implements the scoring formula (spec.md §4.8):
// 0.4*min(age_minutes/60,1.0) + 0.3*user_value_scalar + 0.3*safety_risk_score.
// userValueScalar is clamped to [0,1]; callers pass the user's lifetime_value.
func Priority(createdAt time.Time, userValueScalar, safetyRisk float64) float64 {
	ageMinutes := time.Since(createdAt).Minutes()
	ageTerm := ageMinutes / 60.0
	if ageTerm > 1.0 {
		ageTerm = 1.0
	}
	if userValueScalar > 1.0 {
		userValueScalar = 1.0
	} else if userValueScalar < 0 {
		userValueScalar = 0
	}
	return 0.4*ageTerm + 0.3*userValueScalar + 0.3*safetyRisk
}
