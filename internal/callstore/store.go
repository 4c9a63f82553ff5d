package callstore

import (
	"context"
	"errors"
)

// Record is the relay-side view of one placed call.
//
// The provider call SID is the sole lookup key. Status and DurationSeconds are
// overwritten by provider callbacks; ConversationID is set once at initiation
// and never changes.
type Record struct {
	CallSID         string `json:"call_sid"`
	Status          string `json:"status"`
	DurationSeconds int    `json:"duration_seconds"`
	ConversationID  string `json:"conversation_id,omitempty"`
}

var ErrNotFound = errors.New("callstore: call not found")

// Store is the persistence contract for call records.
//
// Implementations must provide atomic per-key reads and writes; callbacks and
// status queries may interleave, and last-write-wins per key is the intended
// semantics.
type Store interface {
	// Put creates or replaces the record for its CallSID.
	Put(ctx context.Context, rec Record) error

	// Get returns ErrNotFound for an unknown SID.
	Get(ctx context.Context, callSID string) (Record, error)

	// UpdateStatus overwrites status and duration for a known SID.
	// An unknown SID is NOT an error: providers redeliver callbacks and may
	// race a delete. Returns false when no record was updated.
	UpdateStatus(ctx context.Context, callSID, status string, durationSeconds int) (bool, error)

	// Delete removes a record. Deleting an absent SID is a no-op.
	Delete(ctx context.Context, callSID string) error
}
