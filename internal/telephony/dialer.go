package telephony

import (
	"context"
)

// Dialer defines the provider-agnostic surface used by the relay.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request/response types provider-agnostic; the relay never sees SDK types.
type Dialer interface {
	Name() string

	// Place starts an outbound call. The provider fetches call instructions
	// from AnswerURL when the callee picks up and posts progress events to
	// StatusCallbackURL.
	Place(ctx context.Context, call OutboundCall) (PlacedCall, error)

	// Complete marks an in-flight call as finished at the provider.
	Complete(ctx context.Context, callSID string) error
}

// OutboundCall describes one call to be placed.
type OutboundCall struct {
	// To and From are E.164.
	To   string `json:"to"`
	From string `json:"from"`

	// AnswerURL serves the voice instructions once the call connects
	// (the voice agent's webhook for this conversation).
	AnswerURL string `json:"answer_url"`

	// StatusCallbackURL receives progress events for
	// initiated, ringing, answered and completed.
	StatusCallbackURL string `json:"status_callback_url"`
}

// PlacedCall is the provider's acknowledgment of a placed call.
type PlacedCall struct {
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
}

// Provider call status values observed on callbacks and status queries.
const (
	StatusQueued     = "queued"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusBusy       = "busy"
	StatusNoAnswer   = "no-answer"
)

// statusCallbackEvents are the progress events registered on every placed call.
var statusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}
