package callsession

import (
	"livelinks-platform/internal/identity"
	"livelinks-platform/internal/signaling"
)

// State is the session lifecycle tag.
//
// Caller path: idle → outgoing_invite → connecting → in_call → ended → idle.
// Callee path: idle → incoming_invite → connecting → in_call → ended → idle.
// Any state may fail; failed returns to idle only via an explicit Reset.
type State string

const (
	StateIdle           State = "idle"
	StateOutgoingInvite State = "outgoing_invite"
	StateIncomingInvite State = "incoming_invite"
	StateConnecting     State = "connecting"
	StateInCall         State = "in_call"
	StateEnded          State = "ended"
	StateFailed         State = "failed"
)

// Live reports whether the state belongs to an in-progress call attempt.
func (s State) Live() bool {
	switch s {
	case StateOutgoingInvite, StateIncomingInvite, StateConnecting, StateInCall:
		return true
	default:
		return false
	}
}

// Snapshot is the reactive state surface handed to the UI consumer.
// All fields are copies; mutating a snapshot has no effect on the session.
type Snapshot struct {
	State    State
	CallType signaling.CallType

	// Call is the held call record, nil when idle.
	Call *signaling.CallSession
	// Remote is the peer's display projection, nil until resolved.
	Remote *identity.Profile

	// Duration counts in-call seconds. It starts at 0 when media connects
	// and keeps its last value through ended until the next call starts.
	Duration int

	// LastError is the human-readable failure message while in failed.
	LastError string

	MicEnabled     bool
	CameraEnabled  bool
	SpeakerEnabled bool
}
