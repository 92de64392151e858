package api

// ClaimRequest is the body for POST /api/v1/reviews/:id/claim.
type ClaimRequest struct {
	ReviewerID string `json:"reviewer_id"`
}

// ApproveRequest is the body for POST /api/v1/reviews/:id/approve.
type ApproveRequest struct {
	ReviewerID   string   `json:"reviewer_id"`
	FinalBubbles []string `json:"final_bubbles"`
	EditTags     []string `json:"edit_tags,omitempty"`
	QualityScore int      `json:"quality_score"`
	Note         string   `json:"note,omitempty"`
}

// RejectRequest is the body for POST /api/v1/reviews/:id/reject.
type RejectRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Reason     string `json:"reason"`
}

// ReviewerNoteRequest is the body for POST /api/v1/interactions/:id/reviewer-notes.
type ReviewerNoteRequest struct {
	Note string `json:"note"`
}

// CustomerStatusRequest is the body for POST /api/v1/users/:user_id/customer-status.
type CustomerStatusRequest struct {
	Status string `json:"status"`
}

// NicknameRequest is the body for POST /api/v1/users/:user_id/nickname.
type NicknameRequest struct {
	Nickname string `json:"nickname"`
}

// ProtocolActionRequest is the body for
// POST /api/v1/protocol/:user_id/{activate,deactivate}.
type ProtocolActionRequest struct {
	ActorID string `json:"actor_id"`
}

// RecoveryTriggerRequest is the body for POST /api/v1/recovery/trigger.
type RecoveryTriggerRequest struct {
	Trigger string `json:"trigger,omitempty"`
}

// SwitchProfileRequest is the body for POST /api/v1/models/profile.
type SwitchProfileRequest struct {
	Name string `json:"name"`
}
