package telephony

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// StatusCallback captures the subset of Twilio's status-callback fields the
// relay records. Twilio sends application/x-www-form-urlencoded by default.
//
// Keep it minimal and provider-adapter-only; the relay decides what to do
// with it.
type StatusCallback struct {
	CallSID         string
	CallStatus      string
	DurationSeconds int
}

var ErrMissingCallSID = errors.New("telephony: status callback without CallSid")

// ParseStatusCallback decodes a provider status callback request.
// CallDuration is absent on early events (initiated, ringing); it defaults
// to zero rather than failing the parse.
func ParseStatusCallback(r *http.Request) (StatusCallback, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallback{}, err
	}

	cb := StatusCallback{
		CallSID:    strings.TrimSpace(r.PostFormValue("CallSid")),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
	}
	if cb.CallSID == "" {
		return StatusCallback{}, ErrMissingCallSID
	}

	if v := strings.TrimSpace(r.PostFormValue("CallDuration")); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n >= 0 {
			cb.DurationSeconds = n
		}
	}
	return cb, nil
}

// IsTerminalStatus reports whether a provider status ends the call.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer:
		return true
	default:
		return false
	}
}
