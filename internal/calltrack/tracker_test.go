package calltrack

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"insurance-voice-agent/internal/callclient"
)

type fakeRelay struct {
	mu          sync.Mutex
	initiateErr error
	initiateFn  func() (callclient.InitiateResult, error)
	statusFn    func(call int) (callclient.StatusResult, error)
	statusCalls int
	ended       []string
	endErr      error
}

func (f *fakeRelay) Initiate(ctx context.Context, req callclient.CallRequest) (callclient.InitiateResult, error) {
	if f.initiateFn != nil {
		return f.initiateFn()
	}
	if f.initiateErr != nil {
		return callclient.InitiateResult{}, f.initiateErr
	}
	return callclient.InitiateResult{CallSID: "CA1", Status: "queued", Message: "Call initiated successfully"}, nil
}

func (f *fakeRelay) Status(ctx context.Context, callSID string) (callclient.StatusResult, error) {
	f.mu.Lock()
	n := f.statusCalls
	f.statusCalls++
	f.mu.Unlock()
	if f.statusFn == nil {
		return callclient.StatusResult{Status: "queued"}, nil
	}
	return f.statusFn(n)
}

func (f *fakeRelay) End(ctx context.Context, callSID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endErr != nil {
		return f.endErr
	}
	f.ended = append(f.ended, callSID)
	return nil
}

func (f *fakeRelay) statusCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeRelay) endedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

func newTestTracker(relay *fakeRelay) (*Tracker, chan Snapshot) {
	tr := NewTracker(relay)
	tr.PollInterval = 5 * time.Millisecond
	snaps := make(chan Snapshot, 64)
	tr.Observer = func(s Snapshot) { snaps <- s }
	return tr, snaps
}

// waitFor drains snapshots until the wanted state shows up.
func waitFor(t *testing.T, snaps chan Snapshot, want State) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-snaps:
			if s.State == want {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", want)
		}
	}
}

func TestStart_RunsFullLifecycle(t *testing.T) {
	relay := &fakeRelay{
		statusFn: func(call int) (callclient.StatusResult, error) {
			switch call {
			case 0:
				return callclient.StatusResult{Status: "queued"}, nil
			case 1:
				return callclient.StatusResult{Status: "in-progress"}, nil
			default:
				return callclient.StatusResult{Status: "completed", DurationSeconds: 90}, nil
			}
		},
	}
	tr, snaps := newTestTracker(relay)

	if got := tr.Snapshot().State; got != StateIdle {
		t.Fatalf("expected idle before start, got %q", got)
	}
	if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567", PatientName: "John Smith"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// The pre-calling transitions arrive in order before any poll result.
	for _, want := range []State{StateInitiating, StateTesting, StateCalling} {
		s := <-snaps
		if s.State != want {
			t.Fatalf("expected %q, got %q", want, s.State)
		}
	}

	waitFor(t, snaps, StateRetrieving)
	final := waitFor(t, snaps, StateCompleted)
	if final.Err != nil {
		t.Fatalf("completed call must not carry an error, got %v", final.Err)
	}
	if final.CallSID != "CA1" {
		t.Fatalf("expected tracked sid CA1, got %q", final.CallSID)
	}
}

func TestPollingStopsAfterTerminalState(t *testing.T) {
	relay := &fakeRelay{
		statusFn: func(call int) (callclient.StatusResult, error) {
			return callclient.StatusResult{Status: "completed"}, nil
		},
	}
	tr, snaps := newTestTracker(relay)

	if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, snaps, StateCompleted)

	calls := relay.statusCallCount()
	time.Sleep(10 * tr.PollInterval)
	if relay.statusCallCount() != calls {
		t.Fatalf("polling must stop after a terminal state: %d -> %d", calls, relay.statusCallCount())
	}
}

func TestPoll_FailureStatusesRecordReason(t *testing.T) {
	for _, status := range []string{"failed", "busy", "no-answer"} {
		relay := &fakeRelay{
			statusFn: func(call int) (callclient.StatusResult, error) {
				return callclient.StatusResult{Status: status}, nil
			},
		}
		tr, snaps := newTestTracker(relay)

		if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"}); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		final := waitFor(t, snaps, StateFailed)
		if final.Err == nil {
			t.Fatalf("expected recorded reason for %q", status)
		}
		if final.Message != "Call failed: "+status {
			t.Fatalf("unexpected message %q", final.Message)
		}
	}
}

func TestPoll_ErrorFailsWithoutRetry(t *testing.T) {
	relay := &fakeRelay{
		statusFn: func(call int) (callclient.StatusResult, error) {
			return callclient.StatusResult{}, errors.New("relay down")
		},
	}
	tr, snaps := newTestTracker(relay)

	if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, snaps, StateFailed)

	// One failed poll is enough; the poll itself is not retried.
	time.Sleep(10 * tr.PollInterval)
	if got := relay.statusCallCount(); got != 1 {
		t.Fatalf("expected exactly one poll, got %d", got)
	}
}

func TestStart_InitiateRejectionFails(t *testing.T) {
	relay := &fakeRelay{initiateErr: errors.New("relay rejected request")}
	tr, snaps := newTestTracker(relay)

	err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"})
	if err == nil {
		t.Fatalf("expected initiation error")
	}
	final := waitFor(t, snaps, StateFailed)
	if final.Err == nil {
		t.Fatalf("expected recorded error")
	}
	if relay.statusCallCount() != 0 {
		t.Fatalf("no polling may start after a rejected initiation")
	}
}

func TestStart_RejectsSecondCallWhileActive(t *testing.T) {
	relay := &fakeRelay{} // statuses stay "queued", call never terminates
	tr, snaps := newTestTracker(relay)

	if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, snaps, StateCalling)

	if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18009999999"}); !errors.Is(err, ErrCallActive) {
		t.Fatalf("expected ErrCallActive, got %v", err)
	}

	if err := tr.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
}

func TestStart_AllowedAgainAfterTerminalState(t *testing.T) {
	relay := &fakeRelay{
		statusFn: func(call int) (callclient.StatusResult, error) {
			return callclient.StatusResult{Status: "completed"}, nil
		},
	}
	tr, snaps := newTestTracker(relay)

	if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"}); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	waitFor(t, snaps, StateCompleted)

	if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"}); err != nil {
		t.Fatalf("start after completion failed: %v", err)
	}
}

func TestCancel_EndsCallAndResetsToIdle(t *testing.T) {
	relay := &fakeRelay{} // never terminates on its own
	tr, snaps := newTestTracker(relay)

	if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, snaps, StateCalling)

	if err := tr.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if got := relay.endedCalls(); len(got) != 1 || got[0] != "CA1" {
		t.Fatalf("expected endCall for CA1, got %v", got)
	}
	if got := tr.Snapshot().State; got != StateIdle {
		t.Fatalf("expected idle after cancel, got %q", got)
	}

	// No poll may fire after cancellation.
	calls := relay.statusCallCount()
	time.Sleep(10 * tr.PollInterval)
	if relay.statusCallCount() != calls {
		t.Fatalf("polling must stop after cancel")
	}
}

func TestCancel_ResetsToIdleEvenWhenEndFails(t *testing.T) {
	relay := &fakeRelay{endErr: errors.New("provider says no")}
	tr, snaps := newTestTracker(relay)

	if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, snaps, StateCalling)

	err := tr.Cancel(context.Background())
	if err == nil {
		t.Fatalf("expected cancel to report the end failure")
	}
	snap := tr.Snapshot()
	if snap.State != StateIdle {
		t.Fatalf("state must reset to idle regardless, got %q", snap.State)
	}
	if snap.Err == nil {
		t.Fatalf("expected the end failure to be recorded")
	}
}

func TestCancel_DuringInitiationStaysIdle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	relay := &fakeRelay{
		initiateFn: func() (callclient.InitiateResult, error) {
			close(started)
			<-release
			return callclient.InitiateResult{CallSID: "CA1", Status: "queued"}, nil
		},
	}
	tr, _ := newTestTracker(relay)

	startErr := make(chan error, 1)
	go func() {
		startErr <- tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"})
	}()

	<-started
	// Cancel lands while the initiate round trip is still in flight.
	if err := tr.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	close(release)

	if err := <-startErr; err != nil {
		t.Fatalf("cancelled start must not report an error, got %v", err)
	}
	if got := tr.Snapshot().State; got != StateIdle {
		t.Fatalf("cancel must win over the in-flight start, got %q", got)
	}
	if got := relay.endedCalls(); len(got) != 1 || got[0] != "CA1" {
		t.Fatalf("the placed call must be released, got %v", got)
	}
	time.Sleep(10 * tr.PollInterval)
	if got := relay.statusCallCount(); got != 0 {
		t.Fatalf("no polling may start after a mid-initiation cancel, got %d polls", got)
	}
}

func TestSetStatus_DrivesPresentationStates(t *testing.T) {
	relay := &fakeRelay{} // statuses stay "queued"
	tr, snaps := newTestTracker(relay)

	if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, snaps, StateCalling)

	tr.SetStatus(StateNavigating, "Navigating phone system...")

	snap := waitFor(t, snaps, StateNavigating)
	if snap.Message != "Navigating phone system..." {
		t.Fatalf("unexpected message %q", snap.Message)
	}
	if snap.CallSID != "CA1" {
		t.Fatalf("presentation transitions must keep the tracked sid, got %q", snap.CallSID)
	}

	if err := tr.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
}

func TestReset_ClearsTerminalState(t *testing.T) {
	relay := &fakeRelay{
		statusFn: func(call int) (callclient.StatusResult, error) {
			return callclient.StatusResult{Status: "failed"}, nil
		},
	}
	tr, snaps := newTestTracker(relay)

	if err := tr.Start(context.Background(), callclient.CallRequest{PhoneNumber: "+18001234567"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, snaps, StateFailed)

	tr.Reset()

	snap := tr.Snapshot()
	if snap.State != StateIdle {
		t.Fatalf("expected idle after reset, got %q", snap.State)
	}
	if snap.Err != nil || snap.CallSID != "" {
		t.Fatalf("reset must clear the previous attempt, got %+v", snap)
	}
	if len(relay.endedCalls()) != 0 {
		t.Fatalf("reset must not contact the relay")
	}
}

func TestCancel_WithoutActiveCall(t *testing.T) {
	relay := &fakeRelay{}
	tr, _ := newTestTracker(relay)

	if err := tr.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel on idle tracker failed: %v", err)
	}
	if len(relay.endedCalls()) != 0 {
		t.Fatalf("no end request expected without a tracked call")
	}
}
