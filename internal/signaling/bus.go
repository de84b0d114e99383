package signaling

import (
	"context"
)

// EventType tags a row-change notification.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// Event is one row-change notification delivered on a subscribed channel.
type Event struct {
	Type EventType `json:"type"`
	Row  CallRow   `json:"row"`
}

// Bus delivers call row changes to subscribers.
//
// Events are ordered per channel. A session subscribes on two channels (as
// callee and as caller); the two streams carry no ordering guarantee
// relative to each other, so consumers must transition on row status, not
// on arrival order.
type Bus interface {
	// Subscribe starts delivery for a channel key. The returned stop func
	// must be called to release the subscription; the channel closes after
	// stop (or when ctx is cancelled).
	Subscribe(ctx context.Context, channel string) (<-chan Event, func(), error)
}

// Publisher is the store-facing half of the bus.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev Event) error
}

// ChannelForCallee is the channel carrying rows where callee_id = userID.
// Invites (inserts) and subsequent updates are both delivered here.
func ChannelForCallee(userID string) string {
	return "call:callee:" + userID
}

// ChannelForCaller is the channel carrying row updates where caller_id = userID.
func ChannelForCaller(userID string) string {
	return "call:caller:" + userID
}

// publishRow fans one row change out to the channels that should see it.
// Inserts only reach the callee (the caller already holds the row from the
// create action); updates reach both sides.
func publishRow(ctx context.Context, pub Publisher, typ EventType, row CallRow) error {
	if pub == nil {
		return nil
	}
	ev := Event{Type: typ, Row: row}
	if typ == EventInsert {
		return pub.Publish(ctx, ChannelForCallee(row.CalleeID), ev)
	}
	if err := pub.Publish(ctx, ChannelForCallee(row.CalleeID), ev); err != nil {
		return err
	}
	return pub.Publish(ctx, ChannelForCaller(row.CallerID), ev)
}
