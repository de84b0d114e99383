package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestCreateLocalTracks_SelectsKinds(t *testing.T) {
	p := NewWSProvider(nil)

	tracks, err := p.CreateLocalTracks(context.Background(), TrackRequest{Audio: true, Video: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].Kind() != TrackKindAudio || tracks[1].Kind() != TrackKindVideo {
		t.Fatalf("unexpected kinds: %v %v", tracks[0].Kind(), tracks[1].Kind())
	}

	if _, err := p.CreateLocalTracks(context.Background(), TrackRequest{}); err == nil {
		t.Fatalf("expected error for empty request")
	}
}

func TestLocalTrack_MuteRoundTrip(t *testing.T) {
	tr := newLocalTrack(TrackKindAudio)
	if tr.Muted() {
		t.Fatalf("tracks start unmuted")
	}
	tr.Mute()
	if !tr.Muted() {
		t.Fatalf("expected muted")
	}
	tr.Unmute()
	if tr.Muted() {
		t.Fatalf("expected unmuted")
	}
}

func TestOpenSession_DeliversControlEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotToken := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken <- r.URL.Query().Get("access_token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(controlMessage{Type: msgConnected})
		_ = conn.WriteJSON(controlMessage{Type: msgParticipantLeft})
		_ = conn.WriteJSON(controlMessage{Type: msgBye, Reason: "room closed"})
	}))
	defer srv.Close()

	connected := make(chan struct{}, 1)
	left := make(chan struct{}, 1)
	disconnected := make(chan string, 1)

	p := NewWSProvider(nil)
	sess, err := p.OpenSession(context.Background(), Credential{
		Token: "tok-123",
		URL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, SessionHandlers{
		OnConnected:       func() { connected <- struct{}{} },
		OnParticipantLeft: func() { left <- struct{}{} },
		OnDisconnected:    func(reason string) { disconnected <- reason },
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	if tok := <-gotToken; tok != "tok-123" {
		t.Fatalf("expected access token on dial, got %q", tok)
	}

	waitSignal(t, connected, "connected")
	waitSignal(t, left, "participant left")

	select {
	case reason := <-disconnected:
		if reason != "room closed" {
			t.Fatalf("unexpected disconnect reason %q", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for disconnect")
	}
}

func TestOpenSession_CloseSuppressesDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}))
	defer srv.Close()

	disconnected := make(chan string, 1)
	p := NewWSProvider(nil)
	sess, err := p.OpenSession(context.Background(), Credential{
		Token: "tok",
		URL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, SessionHandlers{
		OnDisconnected: func(reason string) { disconnected <- reason },
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	sess.Close()
	sess.Close() // idempotent

	select {
	case reason := <-disconnected:
		t.Fatalf("local close must not fire OnDisconnected, got %q", reason)
	case <-time.After(200 * time.Millisecond):
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
