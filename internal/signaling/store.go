package signaling

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("signaling: call not found")
	ErrInvalidArgument = errors.New("signaling: invalid argument")
	// ErrUnavailable means the call left the state the action requires,
	// e.g. accepting a call that was concurrently cancelled.
	ErrUnavailable = errors.New("signaling: call no longer available")
	// ErrBusy means the caller already holds an active call slot.
	ErrBusy = errors.New("signaling: caller busy")
)

// CreateCallRequest carries the immutable fields of a new call record.
// ID and RoomName are pre-generated by the caller so the record lands in a
// single insert.
type CreateCallRequest struct {
	ID       string
	CallerID string
	CalleeID string
	CallType CallType
	RoomName string
}

// Store is the transactional call-record API.
//
// All mutations are status compare-and-set operations: an action whose
// precondition status no longer holds fails (accept) or is a no-op
// (activate, end, decline). Every successful mutation is published to the
// bus as a row-change event.
type Store interface {
	// CreateCall inserts a pending call row. Returns ErrBusy when the caller
	// already has a live call.
	CreateCall(ctx context.Context, req CreateCallRequest) (CallRow, error)

	// AcceptCall moves pending → accepted and stamps answered_at.
	// Returns false when the call is no longer pending.
	AcceptCall(ctx context.Context, callID, userID string) (bool, error)

	// DeclineCall moves pending → declined. Best-effort: declining an
	// already-terminal call is not an error.
	DeclineCall(ctx context.Context, callID, userID string) error

	// ActivateCall moves accepted → active (media connected). Idempotent.
	ActivateCall(ctx context.Context, callID, userID string) error

	// EndCall moves any live status to the terminal status matching reason.
	// Best-effort: ending an already-terminal call is not an error.
	EndCall(ctx context.Context, callID, userID string, reason EndReason) error

	// GetActiveCall returns the newest non-terminal call involving userID,
	// or ok=false when there is none. Used for restart recovery.
	GetActiveCall(ctx context.Context, userID string) (ActiveCall, bool, error)

	// GetCallByRoom looks a call up by its media room name. Used by the
	// media token endpoint to authorize room access.
	GetCallByRoom(ctx context.Context, roomName string) (CallRow, error)
}

// statusForReason maps an end reason to the terminal status the row takes.
func statusForReason(reason EndReason) CallStatus {
	switch reason {
	case EndReasonMissed:
		return CallStatusMissed
	case EndReasonDeclined:
		return CallStatusDeclined
	case EndReasonCancelled:
		return CallStatusCancelled
	default:
		// ended and connection_failed both finish as ended.
		return CallStatusEnded
	}
}
