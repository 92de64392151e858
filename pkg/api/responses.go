package api

import (
	"time"

	"github.com/hitlbot/warden/pkg/models"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	IntakeDepth    int64  `json:"intake_depth"`
	ApprovedDepth  int64  `json:"approved_depth"`
	ModelsDegraded bool   `json:"models_degraded"`
}

// InteractionResponse is the JSON projection of models.Interaction for
// reviewer-facing endpoints.
type InteractionResponse struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"user_id"`
	RawText               string    `json:"raw_text"`
	GenerationDraft       string    `json:"generation_draft"`
	RefinedBubbles        []string  `json:"refined_bubbles"`
	FinalBubbles          []string  `json:"final_bubbles,omitempty"`
	SafetyRiskScore       float64   `json:"safety_risk_score"`
	SafetyFlags           []string  `json:"safety_flags,omitempty"`
	ReviewStatus          string    `json:"review_status"`
	ReviewerID            *string   `json:"reviewer_id,omitempty"`
	ReviewerNote          string    `json:"reviewer_note,omitempty"`
	RejectReason          string    `json:"reject_reason,omitempty"`
	IsRecovered           bool      `json:"is_recovered"`
	IdentityLoopSuspected bool      `json:"identity_loop_suspected"`
	QualityScore          int       `json:"quality_score,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

func toInteractionResponse(in *models.Interaction) *InteractionResponse {
	return &InteractionResponse{
		ID:                    in.ID,
		UserID:                in.UserID,
		RawText:               in.RawText,
		GenerationDraft:       in.GenerationDraft,
		RefinedBubbles:        bubbleStrings(in.RefinedBubbles),
		FinalBubbles:          bubbleStrings(in.FinalBubbles),
		SafetyRiskScore:       in.Safety.RiskScore,
		SafetyFlags:           in.Safety.Flags,
		ReviewStatus:          string(in.ReviewStatus),
		ReviewerID:            in.ReviewerID,
		ReviewerNote:          in.ReviewerNote,
		RejectReason:          in.RejectReason,
		IsRecovered:           in.IsRecovered,
		IdentityLoopSuspected: in.IdentityLoopSuspected,
		QualityScore:          in.QualityScore,
		CreatedAt:             in.CreatedAt,
	}
}

func bubbleStrings(bs []models.Bubble) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Text
	}
	return out
}

// QuarantineEntryResponse is the JSON projection of models.QuarantineEntry.
type QuarantineEntryResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Text          string    `json:"text"`
	QuarantinedAt time.Time `json:"quarantined_at"`
	Processed     bool      `json:"processed"`
}

func toQuarantineResponse(e *models.QuarantineEntry) *QuarantineEntryResponse {
	return &QuarantineEntryResponse{
		ID: e.ID, UserID: e.UserID, Text: e.Text, QuarantinedAt: e.QuarantinedAt, Processed: e.Processed,
	}
}

// ProtocolResponse is returned by GET /api/v1/protocol/:user_id.
type ProtocolResponse struct {
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	LastChangedAt time.Time `json:"last_changed_at"`
	Actor         string    `json:"actor"`
}

// RecoveryOperationResponse is the JSON projection of models.RecoveryOperation.
type RecoveryOperationResponse struct {
	ID          string     `json:"id"`
	Trigger     string     `json:"trigger"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Tier1Count  int        `json:"tier1_count"`
	Tier2Count  int        `json:"tier2_count"`
	Tier3Count  int        `json:"tier3_count"`
	SkipCount   int        `json:"skip_count"`
	UsersSeen   int        `json:"users_seen"`
	Errors      []string   `json:"errors,omitempty"`
	Status      string     `json:"status"`
}

func toRecoveryResponse(op *models.RecoveryOperation) *RecoveryOperationResponse {
	return &RecoveryOperationResponse{
		ID: op.ID, Trigger: string(op.Trigger), StartedAt: op.StartedAt, FinishedAt: op.FinishedAt,
		Tier1Count: op.Tier1Count, Tier2Count: op.Tier2Count, Tier3Count: op.Tier3Count,
		SkipCount: op.SkipCount, UsersSeen: op.UsersSeen, Errors: op.Errors, Status: string(op.Status),
	}
}

// UserStatusResponse is returned by the customer-status endpoints.
type UserStatusResponse struct {
	UserID         string  `json:"user_id"`
	CustomerStatus string  `json:"customer_status"`
	Nickname       string  `json:"nickname"`
	LifetimeValue  float64 `json:"lifetime_value"`
}

// ModelProfilesResponse is returned by GET /api/v1/models/profiles.
type ModelProfilesResponse struct {
	Profiles []string `json:"profiles"`
}

// CurrentProfileResponse is returned by GET /api/v1/models/current.
type CurrentProfileResponse struct {
	Profile  string `json:"profile"`
	Degraded bool   `json:"degraded"`
}
