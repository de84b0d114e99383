package signaling

import (
	"context"
	"testing"
)

func TestChannelKeysAreUserScoped(t *testing.T) {
	if ChannelForCallee("u1") == ChannelForCaller("u1") {
		t.Fatalf("callee and caller channels must differ")
	}
	if ChannelForCallee("u1") == ChannelForCallee("u2") {
		t.Fatalf("channels must be per-user")
	}
}

func TestPublishRow_InsertOnlyReachesCallee(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	calleeCh, stopCallee, err := bus.Subscribe(ctx, ChannelForCallee("bob"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stopCallee()
	callerCh, stopCaller, err := bus.Subscribe(ctx, ChannelForCaller("alice"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stopCaller()

	row := CallRow{CallSession: CallSession{ID: "c1", CallerID: "alice", CalleeID: "bob"}, Status: CallStatusPending}
	if err := publishRow(ctx, bus, EventInsert, row); err != nil {
		t.Fatalf("publish insert: %v", err)
	}
	row.Status = CallStatusAccepted
	if err := publishRow(ctx, bus, EventUpdate, row); err != nil {
		t.Fatalf("publish update: %v", err)
	}

	// Callee sees the insert then the update.
	ev := <-calleeCh
	if ev.Type != EventInsert || ev.Row.Status != CallStatusPending {
		t.Fatalf("unexpected callee event: %+v", ev)
	}
	ev = <-calleeCh
	if ev.Type != EventUpdate || ev.Row.Status != CallStatusAccepted {
		t.Fatalf("unexpected callee event: %+v", ev)
	}

	// Caller sees only the update: it already holds the row from create.
	ev = <-callerCh
	if ev.Type != EventUpdate || ev.Row.Status != CallStatusAccepted {
		t.Fatalf("unexpected caller event: %+v", ev)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []CallStatus{CallStatusEnded, CallStatusDeclined, CallStatusMissed, CallStatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("%q must be terminal", s)
		}
	}
	for _, s := range []CallStatus{CallStatusPending, CallStatusAccepted, CallStatusActive} {
		if s.Terminal() {
			t.Fatalf("%q must not be terminal", s)
		}
	}
}

func TestStatusForReason(t *testing.T) {
	cases := map[EndReason]CallStatus{
		EndReasonEnded:            CallStatusEnded,
		EndReasonMissed:           CallStatusMissed,
		EndReasonDeclined:         CallStatusDeclined,
		EndReasonCancelled:        CallStatusCancelled,
		EndReasonConnectionFailed: CallStatusEnded,
	}
	for reason, want := range cases {
		if got := statusForReason(reason); got != want {
			t.Fatalf("reason %q: expected %q, got %q", reason, want, got)
		}
	}
}
