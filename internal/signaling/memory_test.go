package signaling

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*MemoryStore, *MemoryBus) {
	t.Helper()
	bus := NewMemoryBus()
	store := NewMemoryStore(bus)
	return store, bus
}

func mustCreate(t *testing.T, store *MemoryStore, id, caller, callee string) CallRow {
	t.Helper()
	row, err := store.CreateCall(context.Background(), CreateCallRequest{
		ID:       id,
		CallerID: caller,
		CalleeID: callee,
		CallType: CallTypeVoice,
		RoomName: RoomName(id),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return row
}

func TestCreateCall_InsertsPendingRow(t *testing.T) {
	store, _ := newTestStore(t)
	row := mustCreate(t, store, "c1", "alice", "bob")

	if row.Status != CallStatusPending {
		t.Fatalf("expected pending, got %q", row.Status)
	}
	if row.RoomName != "call_c1" {
		t.Fatalf("unexpected room name %q", row.RoomName)
	}
	if row.AnsweredAt != (time.Time{}) {
		t.Fatalf("answered_at must be unset on create")
	}
}

func TestCreateCall_RejectsBusyCaller(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreate(t, store, "c1", "alice", "bob")

	_, err := store.CreateCall(context.Background(), CreateCallRequest{
		ID: "c2", CallerID: "alice", CalleeID: "carol", CallType: CallTypeVoice, RoomName: RoomName("c2"),
	})
	if err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestCreateCall_RejectsSelfCall(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.CreateCall(context.Background(), CreateCallRequest{
		ID: "c1", CallerID: "alice", CalleeID: "alice", CallType: CallTypeVoice, RoomName: RoomName("c1"),
	})
	if err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAcceptCall_StampsAnsweredAtOnce(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreate(t, store, "c1", "alice", "bob")

	ok, err := store.AcceptCall(context.Background(), "c1", "bob")
	if err != nil || !ok {
		t.Fatalf("accept: ok=%v err=%v", ok, err)
	}

	// Second accept loses the compare-and-set.
	ok, err = store.AcceptCall(context.Background(), "c1", "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if ok {
		t.Fatalf("expected second accept to report unavailable")
	}
}

func TestAcceptCall_OnlyCalleeMayAccept(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreate(t, store, "c1", "alice", "bob")

	ok, err := store.AcceptCall(context.Background(), "c1", "alice")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if ok {
		t.Fatalf("caller must not be able to accept own call")
	}
}

func TestEndCall_TerminalStatusFollowsReason(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreate(t, store, "c1", "alice", "bob")

	if err := store.EndCall(context.Background(), "c1", "alice", EndReasonMissed); err != nil {
		t.Fatalf("end: %v", err)
	}

	_, found, err := store.GetActiveCall(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if found {
		t.Fatalf("missed call must not be active")
	}

	row, err := store.GetCallByRoom(context.Background(), "call_c1")
	if err != nil {
		t.Fatalf("get by room: %v", err)
	}
	if row.Status != CallStatusMissed || row.EndedReason != EndReasonMissed {
		t.Fatalf("unexpected terminal row: %+v", row)
	}

	// Ending again is a best-effort no-op.
	if err := store.EndCall(context.Background(), "c1", "bob", EndReasonEnded); err != nil {
		t.Fatalf("second end: %v", err)
	}
	row, _ = store.GetCallByRoom(context.Background(), "call_c1")
	if row.Status != CallStatusMissed {
		t.Fatalf("second end must not overwrite terminal status, got %q", row.Status)
	}
}

func TestActivateCall_RequiresAccepted(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreate(t, store, "c1", "alice", "bob")

	// pending → activate is a no-op
	if err := store.ActivateCall(context.Background(), "c1", "alice"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	row, _ := store.GetCallByRoom(context.Background(), "call_c1")
	if row.Status != CallStatusPending {
		t.Fatalf("expected still pending, got %q", row.Status)
	}

	if _, err := store.AcceptCall(context.Background(), "c1", "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := store.ActivateCall(context.Background(), "c1", "alice"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	row, _ = store.GetCallByRoom(context.Background(), "call_c1")
	if row.Status != CallStatusActive {
		t.Fatalf("expected active, got %q", row.Status)
	}
}

func TestGetActiveCall_ReportsRole(t *testing.T) {
	store, _ := newTestStore(t)
	mustCreate(t, store, "c1", "alice", "bob")

	ac, found, err := store.GetActiveCall(context.Background(), "bob")
	if err != nil || !found {
		t.Fatalf("get active: found=%v err=%v", found, err)
	}
	if ac.IsCaller {
		t.Fatalf("bob is the callee")
	}

	ac, found, _ = store.GetActiveCall(context.Background(), "alice")
	if !found || !ac.IsCaller {
		t.Fatalf("alice is the caller")
	}
}

func TestMemoryBus_DeliversInOrderPerChannel(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	ch, stop, err := bus.Subscribe(ctx, ChannelForCallee("bob"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	for i, status := range []CallStatus{CallStatusPending, CallStatusAccepted, CallStatusActive} {
		typ := EventUpdate
		if i == 0 {
			typ = EventInsert
		}
		row := CallRow{CallSession: CallSession{ID: "c1", CallerID: "alice", CalleeID: "bob"}, Status: status}
		if err := bus.Publish(ctx, ChannelForCallee("bob"), Event{Type: typ, Row: row}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	want := []CallStatus{CallStatusPending, CallStatusAccepted, CallStatusActive}
	for _, w := range want {
		select {
		case ev := <-ch:
			if ev.Row.Status != w {
				t.Fatalf("expected %q, got %q", w, ev.Row.Status)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func TestMemoryBus_StopClosesStream(t *testing.T) {
	bus := NewMemoryBus()
	ch, stop, err := bus.Subscribe(context.Background(), "chan")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	stop()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel did not close after stop")
	}

	// Publishing after stop must not block or panic.
	if err := bus.Publish(context.Background(), "chan", Event{Type: EventInsert}); err != nil {
		t.Fatalf("publish after stop: %v", err)
	}
}
