package media

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSProvider speaks the SFU control plane over a websocket: join with a
// token, announce published tracks, observe peer presence. Media transport
// itself stays inside the SFU peer connection and is not modeled here.
type WSProvider struct {
	dialer *websocket.Dialer
	log    *slog.Logger
}

func NewWSProvider(log *slog.Logger) *WSProvider {
	if log == nil {
		log = slog.Default()
	}
	return &WSProvider{
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
	}
}

// controlMessage is one frame on the control channel, both directions.
type controlMessage struct {
	Type   string `json:"type"`
	Track  string `json:"track,omitempty"`
	Reason string `json:"reason,omitempty"`
}

const (
	msgConnected       = "connected"
	msgParticipantLeft = "participant_left"
	msgPublish         = "publish"
	msgUnpublish       = "unpublish"
	msgBye             = "bye"
)

func (p *WSProvider) OpenSession(ctx context.Context, cred Credential, h SessionHandlers) (Session, error) {
	if cred.Token == "" || cred.URL == "" {
		return nil, ErrInvalidArgument
	}

	u, err := url.Parse(cred.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("access_token", cred.Token)
	u.RawQuery = q.Encode()

	conn, _, err := p.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	s := &wsSession{
		conn:     conn,
		handlers: h,
		log:      p.log,
	}
	go s.readLoop()
	return s, nil
}

func (p *WSProvider) CreateLocalTracks(ctx context.Context, req TrackRequest) ([]Track, error) {
	var out []Track
	if req.Audio {
		out = append(out, newLocalTrack(TrackKindAudio))
	}
	if req.Video {
		out = append(out, newLocalTrack(TrackKindVideo))
	}
	if len(out) == 0 {
		return nil, ErrInvalidArgument
	}
	return out, nil
}

type wsSession struct {
	conn     *websocket.Conn
	handlers SessionHandlers
	log      *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

func (s *wsSession) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			wasClosed := s.closed
			s.mu.Unlock()
			if !wasClosed && s.handlers.OnDisconnected != nil {
				s.handlers.OnDisconnected("connection lost")
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("media: dropping malformed control frame", "err", err)
			continue
		}

		switch msg.Type {
		case msgConnected:
			if s.handlers.OnConnected != nil {
				s.handlers.OnConnected()
			}
		case msgParticipantLeft:
			if s.handlers.OnParticipantLeft != nil {
				s.handlers.OnParticipantLeft()
			}
		case msgBye:
			s.mu.Lock()
			wasClosed := s.closed
			s.closed = true
			s.mu.Unlock()
			if !wasClosed && s.handlers.OnDisconnected != nil {
				s.handlers.OnDisconnected(msg.Reason)
			}
			s.closeOnce.Do(func() { _ = s.conn.Close() })
			return
		}
	}
}

func (s *wsSession) Publish(t Track) error {
	if t == nil {
		return ErrInvalidArgument
	}
	return s.write(controlMessage{Type: msgPublish, Track: string(t.Kind())})
}

func (s *wsSession) Unpublish(t Track) error {
	if t == nil {
		return ErrInvalidArgument
	}
	return s.write(controlMessage{Type: msgUnpublish, Track: string(t.Kind())})
}

func (s *wsSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// Best-effort goodbye so the SFU can notify the peer promptly.
	_ = s.write(controlMessage{Type: msgBye})
	s.closeOnce.Do(func() { _ = s.conn.Close() })
}

func (s *wsSession) write(msg controlMessage) error {
	s.mu.Lock()
	if s.closed && msg.Type != msgBye {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// localTrack is a capture handle with SFU-visible mute state.
type localTrack struct {
	kind TrackKind

	mu      sync.Mutex
	muted   bool
	stopped bool
}

func newLocalTrack(kind TrackKind) *localTrack {
	return &localTrack{kind: kind}
}

func (t *localTrack) Kind() TrackKind { return t.kind }

func (t *localTrack) Mute() {
	t.mu.Lock()
	t.muted = true
	t.mu.Unlock()
}

func (t *localTrack) Unmute() {
	t.mu.Lock()
	t.muted = false
	t.mu.Unlock()
}

func (t *localTrack) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *localTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// Stopped is used by tests to assert release on teardown paths.
func (t *localTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
