// Package media is the SFU boundary: room credentials, the live session,
// and local track handles. Signaling decides when a session opens; this
// package only knows how.
package media

import (
	"context"
	"errors"
)

var (
	ErrInvalidArgument = errors.New("media: invalid argument")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("media: session closed")
)

// Credential grants one identity access to one room.
type Credential struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// CredentialFetcher obtains a room credential for the local identity.
type CredentialFetcher interface {
	FetchCredential(ctx context.Context, roomName, identity, displayName string) (Credential, error)
}

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Track is a local capture handle. Owned by exactly one call session; must
// be stopped on every teardown path (a leaked track is an open mic/camera).
type Track interface {
	Kind() TrackKind
	Mute()
	Unmute()
	Muted() bool
	// Stop releases the underlying capture device. Idempotent.
	Stop()
}

// TrackRequest selects which local tracks to acquire.
type TrackRequest struct {
	Audio bool
	Video bool
}

// SessionHandlers receive session lifecycle events. Handlers are invoked
// from the session's reader goroutine; implementations must be safe to call
// after the consumer started tearing down.
type SessionHandlers struct {
	// OnConnected fires once the room join completed.
	OnConnected func()
	// OnDisconnected fires when the session drops, with the server's reason
	// when one was given.
	OnDisconnected func(reason string)
	// OnParticipantLeft fires when the remote side leaves the room.
	OnParticipantLeft func()
}

// Session is one live connection to a media room.
type Session interface {
	Publish(t Track) error
	Unpublish(t Track) error
	// Close disconnects. Idempotent; does not fire OnDisconnected.
	Close()
}

// Provider opens sessions and acquires local tracks.
type Provider interface {
	OpenSession(ctx context.Context, cred Credential, h SessionHandlers) (Session, error)
	CreateLocalTracks(ctx context.Context, req TrackRequest) ([]Track, error)
}
