// Package werrors defines the abstract error kinds shared across Warden's
// components so that pipeline steps never leak provider- or store-specific
// errors beyond their own boundary.
package werrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry policy and HTTP status mapping.
type Kind string

const (
	// KindTransientExternal covers platform or LLM timeouts, 5xx, rate limits.
	KindTransientExternal Kind = "transient_external"
	// KindQuotaExhausted means all fallbacks in the current profile are out of quota.
	KindQuotaExhausted Kind = "quota_exhausted"
	// KindValidation covers bad reviewer/API input.
	KindValidation Kind = "validation"
	// KindConflict covers optimistic-concurrency failures.
	KindConflict Kind = "conflict"
	// KindDuplicateIngest means the event was dropped silently as a duplicate.
	KindDuplicateIngest Kind = "duplicate_ingest"
	// KindMalformedLLMOutput means best-effort parsing failed after a repair attempt.
	KindMalformedLLMOutput Kind = "malformed_llm_output"
	// KindCircuitOpen means a breaker is open and the caller should back off.
	KindCircuitOpen Kind = "circuit_open"
	// KindFatal covers unrecoverable errors: corrupt state, unreachable store after breaker expiry.
	KindFatal Kind = "fatal"
)

// Error wraps an underlying error with a Kind so callers can branch on
// retry/HTTP-status policy without depending on concrete sentinel values.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a new kinded error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, if any, returning ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Sentinel errors for conditions that do not need a dynamic message.
var (
	ErrAlreadyClaimed   = &Error{Kind: KindConflict, Message: "interaction already claimed"}
	ErrNotFound         = &Error{Kind: KindValidation, Message: "resource not found"}
	ErrAlreadyRunning   = &Error{Kind: KindConflict, Message: "operation already running"}
	ErrQuotaExhausted   = &Error{Kind: KindQuotaExhausted, Message: "all fallbacks exhausted quota"}
	ErrCircuitOpen      = &Error{Kind: KindCircuitOpen, Message: "circuit breaker open"}
	ErrDuplicateIngest  = &Error{Kind: KindDuplicateIngest, Message: "duplicate ingest event"}
	ErrInvalidCursor    = &Error{Kind: KindConflict, Message: "processing cursor moved concurrently"}
)
