package calltrack

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"insurance-voice-agent/internal/callclient"
	"insurance-voice-agent/internal/telephony"
)

// State is the UI-facing call lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateInitiating State = "initiating"
	StateTesting    State = "testing"
	StateCalling    State = "calling"
	StateNavigating State = "navigating"
	StateRetrieving State = "retrieving"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions can happen without a reset.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ErrCallActive enforces the at-most-one-active-call contract: a second
// initiation is rejected while the current call is neither idle nor terminal.
var ErrCallActive = errors.New("calltrack: a call is already in progress")

// RelayClient is the slice of the relay client the tracker drives.
type RelayClient interface {
	Initiate(ctx context.Context, req callclient.CallRequest) (callclient.InitiateResult, error)
	Status(ctx context.Context, callSID string) (callclient.StatusResult, error)
	End(ctx context.Context, callSID string) error
}

// Snapshot is a point-in-time copy of the tracker's state.
type Snapshot struct {
	State   State
	CallSID string
	Message string
	Err     error
}

// defaultPollInterval matches the relay's callback cadence closely enough;
// anything much faster just burns requests.
const defaultPollInterval = 5 * time.Second

// Tracker runs the call lifecycle for at most one call at a time.
//
// After a successful initiation it polls the relay on a fixed interval from a
// single goroutine until a terminal state is reached or Cancel is invoked.
// Cancellation and terminal transitions both cut the poller's context, so no
// poll can fire afterwards.
type Tracker struct {
	relay RelayClient

	// PollInterval defaults to 5s. Set before Start.
	PollInterval time.Duration

	// Observer, when set, receives a snapshot after every transition.
	// It is called from tracker goroutines and must not block.
	Observer func(Snapshot)

	mu         sync.Mutex
	state      State
	callSID    string
	message    string
	err        error
	cancelPoll context.CancelFunc

	// gen counts call attempts. Cancel and Reset bump it so a Start still
	// waiting on the initiate round trip can tell its attempt was abandoned.
	gen uint64
}

func NewTracker(relay RelayClient) *Tracker {
	return &Tracker{
		relay:        relay,
		PollInterval: defaultPollInterval,
		state:        StateIdle,
	}
}

// Snapshot returns the current lifecycle state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{State: t.state, CallSID: t.callSID, Message: t.message, Err: t.err}
}

// Start initiates a call and begins tracking it.
//
// It returns once the call is placed (state calling) or has failed; the
// polling that follows runs in the background until a terminal state.
// A Cancel that lands while the initiate round trip is in flight wins: the
// tracker stays idle, the placed provider leg is released, and Start returns
// nil.
func (t *Tracker) Start(ctx context.Context, req callclient.CallRequest) error {
	t.mu.Lock()
	if t.state != StateIdle && !t.state.Terminal() {
		t.mu.Unlock()
		return ErrCallActive
	}
	t.gen++
	gen := t.gen
	t.callSID = ""
	t.err = nil
	t.setLocked(StateInitiating, "Preparing to make the call...")
	t.mu.Unlock()
	t.notify()

	if !t.setIfCurrent(gen, StateTesting, "Testing voice agent connection...") {
		return nil
	}

	res, err := t.relay.Initiate(ctx, req)

	t.mu.Lock()
	if t.gen != gen {
		// Cancelled or reset mid-initiation; the tracker already went idle.
		t.mu.Unlock()
		if err == nil && res.CallSID != "" {
			_ = t.relay.End(ctx, res.CallSID)
		}
		return nil
	}
	if err != nil {
		t.err = err
		t.setLocked(StateFailed, "Call failed")
		t.mu.Unlock()
		t.notify()
		return err
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	t.callSID = res.CallSID
	t.cancelPoll = cancel
	t.setLocked(StateCalling, "Connecting to insurance provider...")
	t.mu.Unlock()
	t.notify()

	go t.poll(pollCtx, res.CallSID)
	return nil
}

// Cancel stops tracking and asks the relay to end the call.
//
// The state always resets to idle; a failed end request is reported to the
// caller and recorded, but does not keep the tracker occupied.
func (t *Tracker) Cancel(ctx context.Context) error {
	t.mu.Lock()
	callSID := t.callSID
	t.gen++
	t.stopPollLocked()
	t.mu.Unlock()

	var endErr error
	if callSID != "" {
		endErr = t.relay.End(ctx, callSID)
	}

	t.mu.Lock()
	t.callSID = ""
	t.err = endErr
	t.setLocked(StateIdle, "")
	t.mu.Unlock()
	t.notify()

	if endErr != nil {
		return fmt.Errorf("calltrack: cancel: %w", endErr)
	}
	return nil
}

// Reset clears a terminal state back to idle without contacting the relay.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.gen++
	t.stopPollLocked()
	t.callSID = ""
	t.err = nil
	t.setLocked(StateIdle, "")
	t.mu.Unlock()
	t.notify()
}

// SetStatus lets the caller drive presentation-only transitions, such as
// navigating a phone tree, that the provider does not report.
func (t *Tracker) SetStatus(state State, message string) {
	t.set(state, message)
}

// poll queries the relay until a terminal provider status arrives or the
// context is cut.
func (t *Tracker) poll(ctx context.Context, callSID string) {
	timer := time.NewTimer(t.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		res, err := t.relay.Status(ctx, callSID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// No poll retry: a failed status check fails the call.
			t.fail("Call status check failed", err)
			return
		}

		switch {
		case res.Status == telephony.StatusInProgress:
			t.set(StateRetrieving, "Retrieving benefits information...")
		case res.Status == telephony.StatusCompleted:
			t.finish(StateCompleted, "Benefits information successfully retrieved", nil)
			return
		case telephony.IsTerminalStatus(res.Status):
			t.finish(StateFailed, "Call failed: "+res.Status, fmt.Errorf("calltrack: call ended with status %s", res.Status))
			return
		}

		timer.Reset(t.PollInterval)
	}
}

func (t *Tracker) set(state State, message string) {
	t.mu.Lock()
	t.setLocked(state, message)
	t.mu.Unlock()
	t.notify()
}

// setIfCurrent applies a transition only when the attempt is still the live
// one, so an abandoned Start cannot overwrite the idle state Cancel left.
func (t *Tracker) setIfCurrent(gen uint64, state State, message string) bool {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return false
	}
	t.setLocked(state, message)
	t.mu.Unlock()
	t.notify()
	return true
}

// setLocked updates state under t.mu; callers fire notify after unlocking.
func (t *Tracker) setLocked(state State, message string) {
	t.state = state
	t.message = message
}

func (t *Tracker) fail(message string, err error) {
	t.finish(StateFailed, message, err)
}

func (t *Tracker) finish(state State, message string, err error) {
	t.mu.Lock()
	t.stopPollLocked()
	if err != nil {
		t.err = err
	}
	t.setLocked(state, message)
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) stopPollLocked() {
	if t.cancelPoll != nil {
		t.cancelPoll()
		t.cancelPoll = nil
	}
}

func (t *Tracker) notify() {
	obs := t.Observer
	if obs == nil {
		return
	}
	obs(t.Snapshot())
}
