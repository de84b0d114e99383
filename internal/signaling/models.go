package signaling

import (
	"time"
)

// CallType distinguishes audio-only calls from calls that start with camera on.
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// CallStatus is the persisted lifecycle status of a call_sessions row.
//
// The store is the only writer of status; clients issue the transactional
// actions (create/accept/decline/activate/end) and observe the resulting
// row via the bus.
type CallStatus string

const (
	CallStatusPending   CallStatus = "pending"
	CallStatusAccepted  CallStatus = "accepted"
	CallStatusActive    CallStatus = "active"
	CallStatusEnded     CallStatus = "ended"
	CallStatusDeclined  CallStatus = "declined"
	CallStatusMissed    CallStatus = "missed"
	CallStatusCancelled CallStatus = "cancelled"
)

// Terminal reports whether a status ends the call.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusEnded, CallStatusDeclined, CallStatusMissed, CallStatusCancelled:
		return true
	default:
		return false
	}
}

// EndReason is recorded when a call leaves the pending/accepted/active path.
type EndReason string

const (
	EndReasonEnded            EndReason = "ended"
	EndReasonMissed           EndReason = "missed"
	EndReasonDeclined         EndReason = "declined"
	EndReasonCancelled        EndReason = "cancelled"
	EndReasonConnectionFailed EndReason = "connection_failed"
)

// CallSession is the authoritative record of one call attempt.
//
// Participant ids and call type are immutable once created. AnsweredAt is
// set exactly once, when the callee accepts.
type CallSession struct {
	ID         string    `json:"id" db:"id"`
	CallerID   string    `json:"caller_id" db:"caller_id"`
	CalleeID   string    `json:"callee_id" db:"callee_id"`
	CallType   CallType  `json:"call_type" db:"call_type"`
	RoomName   string    `json:"room_name" db:"room_name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	AnsweredAt time.Time `json:"answered_at,omitempty" db:"answered_at"`
}

// CallRow is a call_sessions row as delivered on the bus: the session fields
// plus the mutable status columns.
type CallRow struct {
	CallSession
	Status      CallStatus `json:"status" db:"status"`
	EndedReason EndReason  `json:"ended_reason,omitempty" db:"ended_reason"`
	EndedAt     time.Time  `json:"ended_at,omitempty" db:"ended_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// PeerOf returns the other participant of the call, or "" if userID is not
// part of it.
func (s CallSession) PeerOf(userID string) string {
	switch userID {
	case s.CallerID:
		return s.CalleeID
	case s.CalleeID:
		return s.CallerID
	default:
		return ""
	}
}

// ActiveCall is GetActiveCall's result: the row plus the querying user's role.
type ActiveCall struct {
	CallRow
	IsCaller bool `json:"is_caller"`
}

// RoomName derives the media rendezvous name for a call id.
// The call id is embedded so the token endpoint can look the session back up.
func RoomName(callID string) string {
	return "call_" + callID
}
