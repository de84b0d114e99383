package audit

import "time"

// Event is an immutable, append-only record of one call lifecycle action.
//
// Invariants:
// - Events are never updated or deleted.
// - call_id is required; every record hangs off a call attempt.
// - Audit is best-effort; signaling flows must not block on audit failures.
//
// Storage recommendation (Postgres):
// - Table call_audit_events with an INSERT-only policy.
// - Optional: partition by time for retention.

type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// Type indicates which lifecycle action produced the record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the participant who issued the action.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	// PeerUserID is the other participant, when known.
	PeerUserID string `json:"peer_user_id,omitempty" db:"peer_user_id"`

	// Reason is set for terminal events (ended/missed/declined/...).
	Reason string `json:"reason,omitempty" db:"reason"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallCreated   EventType = "call_created"
	EventTypeCallAccepted  EventType = "call_accepted"
	EventTypeCallDeclined  EventType = "call_declined"
	EventTypeCallActivated EventType = "call_activated"
	EventTypeCallEnded     EventType = "call_ended"
)
