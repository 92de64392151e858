// Package platform defines the chat-platform transport boundary named as
// an external collaborator in spec.md §1 ("the chat-platform client
// library"): Warden depends only on this interface, never on a concrete
// platform SDK directly from pipeline code.
package platform

import (
	"context"
	"time"
)

// HistoryMessage is one platform message returned by history scans, used
// by the Recovery Agent (spec.md §4.11).
type HistoryMessage struct {
	UserID        string
	PlatformMsgID string
	Text          string
	PlatformTS    time.Time
}

// Client is the platform transport boundary: sending messages/typing
// indicators, resolving outbound handles, and paging history for recovery.
type Client interface {
	// SendMessage delivers one bubble to a user. Returns a transient error
	// (wrapped with werrors.KindTransientExternal) on network failure.
	SendMessage(ctx context.Context, userID, text string) error

	// SendTyping signals a typing indicator to a user for the given duration.
	SendTyping(ctx context.Context, userID string, d time.Duration) error

	// ResolveHandle confirms (and may cache) an outbound-addressable handle
	// for a user, called proactively on new_message per spec.md §4.1.
	ResolveHandle(ctx context.Context, userID string) error

	// ListDialogs returns the set of user ids the persona has conversed
	// with, used by Recovery step 1 (spec.md §4.11).
	ListDialogs(ctx context.Context) ([]string, error)

	// HistorySince pages platform history for a user newer than afterMsgID,
	// used by Recovery step 3 (spec.md §4.11).
	HistorySince(ctx context.Context, userID, afterMsgID string, pageSize int) ([]HistoryMessage, error)
}
