// Package models defines the durable entities owned by the Message Store
// and the transient projections owned by the Queue Broker.
package models

import "time"

// ReviewStatus is the lifecycle state of an Interaction.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusClaimed  ReviewStatus = "claimed"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
	ReviewStatusCancelled ReviewStatus = "cancelled"
)

// CoherenceStatus is the verdict produced by the coherence check.
type CoherenceStatus string

const (
	CoherenceOK                  CoherenceStatus = "ok"
	CoherenceAvailabilityConflict CoherenceStatus = "availability_conflict"
	CoherenceIdentityConflict    CoherenceStatus = "identity_conflict"
)

// CommitmentStatus tracks the lifecycle of a persona commitment.
type CommitmentStatus string

const (
	CommitmentActive   CommitmentStatus = "active"
	CommitmentFulfilled CommitmentStatus = "fulfilled"
	CommitmentExpired  CommitmentStatus = "expired"
)

// ProtocolStatus is the quarantine/silence state of a user.
type ProtocolStatus string

const (
	ProtocolActive   ProtocolStatus = "active"
	ProtocolInactive ProtocolStatus = "inactive"
)

// RecoveryTrigger identifies what started a Recovery Operation.
type RecoveryTrigger string

const (
	RecoveryTriggerStartup   RecoveryTrigger = "startup"
	RecoveryTriggerManual    RecoveryTrigger = "manual"
	RecoveryTriggerScheduled RecoveryTrigger = "scheduled"
)

// RecoveryOperationStatus is the terminal state of a Recovery Operation.
type RecoveryOperationStatus string

const (
	RecoveryRunning   RecoveryOperationStatus = "running"
	RecoveryCompleted RecoveryOperationStatus = "completed"
	RecoveryFailed    RecoveryOperationStatus = "failed"
)

// User is a stable platform identity.
type User struct {
	ID             string
	Nickname       string
	CustomerStatus string
	LifetimeValue  float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Bubble is one ordered segment of a refined response.
type Bubble struct {
	Text string
}

// SafetyAnnotation is the Safety Filter's output for an Interaction.
type SafetyAnnotation struct {
	RiskScore float64
	Flags     []string
}

// StageCost records token/cost accounting for one LLM Router call.
type StageCost struct {
	ModelUsed     string
	TokensIn      int
	TokensOut     int
	CachedTokens  int
	CostUSD       float64
}

// Interaction is the central entity: one processing unit moving through
// the pipeline from generation to reviewer disposition.
type Interaction struct {
	ID               string
	UserID           string
	PlatformMsgIDs   []string
	PlatformTS       time.Time
	IngestTS         time.Time
	RawText          string
	GenerationDraft  string
	RefinedBubbles   []Bubble
	FinalBubbles     []Bubble
	Safety           SafetyAnnotation
	ReviewStatus     ReviewStatus
	ReviewerID       *string
	ClaimedAt        *time.Time
	ReviewedAt       *time.Time
	ReviewLatency    time.Duration
	GenerationCost   StageCost
	RefinementCost   StageCost
	IsRecovered      bool
	ReviewerNote     string
	RejectReason     string
	IdentityLoopSuspected bool
	EditTags         []string
	QualityScore     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProcessingCursor is the per-user watermark of the last durably ingested
// platform message id.
type ProcessingCursor struct {
	UserID         string
	LastPlatformID string
	UpdatedAt      time.Time
}

// RecoveryOperation tracks one bounded reconciliation pass.
type RecoveryOperation struct {
	ID         string
	Trigger    RecoveryTrigger
	StartedAt  time.Time
	FinishedAt *time.Time
	Tier1Count int
	Tier2Count int
	Tier3Count int
	SkipCount  int
	UsersSeen  int
	Errors     []string
	Status     RecoveryOperationStatus
}

// QuarantineEntry is a message parked while a user is under the silence protocol.
type QuarantineEntry struct {
	ID             string
	UserID         string
	PlatformMsgID  string
	Text           string
	QuarantinedAt  time.Time
	Processed      bool
	ReleasedAt     *time.Time
	DeletedAt      *time.Time
}

// ProtocolState is the per-user quarantine/silence state.
type ProtocolState struct {
	UserID        string
	Status        ProtocolStatus
	LastChangedAt time.Time
	Actor         string
}

// Commitment is a persona promise tracked for coherence checking.
type Commitment struct {
	ID         string
	UserID     string
	Text       string
	TargetTS   time.Time
	Status     CommitmentStatus
	CreatedAt  time.Time
}

// CoherenceRecord is the per-interaction coherence-check outcome.
type CoherenceRecord struct {
	ID              string
	InteractionID   string
	Status          CoherenceStatus
	OriginalSpan    string
	ReplacementSpan string
	NewCommitmentIDs []string
	CreatedAt       time.Time
}

// ReviewItem is the reviewer-facing projection of a pending Interaction.
type ReviewItem struct {
	InteractionID string
	UserID        string
	Priority      float64
	Sequence      int64
	RawText       string
	Draft         string
	Safety        SafetyAnnotation
	IsRecovered   bool
	CreatedAt     time.Time
}

// ProcessingUnit is what the Activity Tracker hands to the Supervisor: one
// or more debounced messages from a single user.
type ProcessingUnit struct {
	UserID         string
	CombinedText   string
	PlatformMsgIDs []string
	ReceivedAt     time.Time
	IsRecovered    bool
	PlatformTS     time.Time
}
