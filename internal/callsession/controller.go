// Package callsession drives one user's 1:1 call lifecycle: invites,
// ringing, media setup, the in-call clock, and teardown back to idle.
//
// The controller is status-driven, not order-driven. Row-change events from
// the two bus channels carry no cross-channel ordering guarantee, so every
// transition keys off the delivered row status and is idempotent under
// re-delivery. Timers and resumed async work re-check their preconditions
// before acting.
package callsession

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"livelinks-platform/internal/identity"
	"livelinks-platform/internal/media"
	"livelinks-platform/internal/signaling"
)

const (
	defaultRingTimeout      = 30 * time.Second
	defaultResetDelay       = 2 * time.Second
	defaultHangupResetDelay = 1 * time.Second
	defaultDurationTick     = time.Second
	remoteOpTimeout         = 5 * time.Second
)

// Deps are the controller's collaborators.
type Deps struct {
	Store       signaling.Store
	Bus         signaling.Bus
	Profiles    identity.ProfileStore
	Media       media.Provider
	Credentials media.CredentialFetcher
}

// Options tune timing and observation. Zero values take the defaults.
type Options struct {
	// RingTimeout bounds how long an outgoing invite rings before the
	// controller marks the call missed.
	RingTimeout time.Duration
	// ResetDelay is how long ended state lingers before returning to idle
	// when the call ended remotely or timed out.
	ResetDelay time.Duration
	// HangupResetDelay is the shorter linger after a local hang-up.
	HangupResetDelay time.Duration
	// DurationTick is the in-call clock granularity.
	DurationTick time.Duration

	// OnChange, when set, receives a snapshot after every observable state
	// change. Called from controller goroutines; must not block.
	OnChange func(Snapshot)

	Log *slog.Logger
}

// Identity is the local participant.
type Identity struct {
	UserID      string
	DisplayName string
}

// Controller is one user's call session state machine. All methods are safe
// for concurrent use. A controller with an empty UserID is inert: actions
// are silent no-ops, matching an unauthenticated client.
type Controller struct {
	deps Deps
	opts Options
	self Identity
	log  *slog.Logger

	mu       sync.Mutex
	closed   bool
	state    State
	callType signaling.CallType
	current  *signaling.CallSession
	remote   *identity.Profile
	lastErr  string
	duration int

	micOn     bool
	camOn     bool
	speakerOn bool

	audio   media.Track
	video   media.Track
	session media.Session

	ringTimer  *time.Timer
	resetTimer *time.Timer
	durStop    chan struct{}

	unsubs []func()
}

// New validates deps and returns an idle controller. Call Start to attach
// it to the bus.
func New(deps Deps, self Identity, opts Options) (*Controller, error) {
	if deps.Store == nil || deps.Bus == nil || deps.Profiles == nil ||
		deps.Media == nil || deps.Credentials == nil {
		return nil, errors.New("callsession: all deps are required")
	}
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = defaultRingTimeout
	}
	if opts.ResetDelay <= 0 {
		opts.ResetDelay = defaultResetDelay
	}
	if opts.HangupResetDelay <= 0 {
		opts.HangupResetDelay = defaultHangupResetDelay
	}
	if opts.DurationTick <= 0 {
		opts.DurationTick = defaultDurationTick
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		deps: deps,
		opts: opts,
		self: self,
		log:  log.With(slog.String("component", "callsession"), slog.String("user_id", self.UserID)),
	}
	c.resetStateLocked()
	return c, nil
}

// Start subscribes to the user's signaling channels and recovers any live
// call that survived a restart. ctx bounds the subscriptions' lifetime.
func (c *Controller) Start(ctx context.Context) error {
	if c.self.UserID == "" {
		c.log.Debug("no identity, controller stays inert")
		return nil
	}

	for _, ch := range []string{
		signaling.ChannelForCallee(c.self.UserID),
		signaling.ChannelForCaller(c.self.UserID),
	} {
		events, stop, err := c.deps.Bus.Subscribe(ctx, ch)
		if err != nil {
			c.stopSubscriptions()
			return err
		}
		c.mu.Lock()
		c.unsubs = append(c.unsubs, stop)
		c.mu.Unlock()
		go func() {
			for ev := range events {
				c.handleEvent(ev)
			}
		}()
	}

	c.recover(ctx)
	return nil
}

// Close detaches the controller and releases any held media. It does not
// end the call on the signaling side; a restarted controller recovers it.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	release := c.cleanupLocked()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.mu.Unlock()

	c.stopSubscriptions()
	release()
}

func (c *Controller) stopSubscriptions() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()
	for _, stop := range unsubs {
		stop()
	}
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:          c.state,
		CallType:       c.callType,
		Duration:       c.duration,
		LastError:      c.lastErr,
		MicEnabled:     c.micOn,
		CameraEnabled:  c.camOn,
		SpeakerEnabled: c.speakerOn,
	}
	if c.current != nil {
		call := *c.current
		snap.Call = &call
	}
	if c.remote != nil {
		remote := *c.remote
		snap.Remote = &remote
	}
	return snap
}

// StartCall places an outgoing invite. No-op unless idle. For video calls a
// local camera preview starts before the invite is sent.
func (c *Controller) StartCall(ctx context.Context, calleeID string, callType signaling.CallType) {
	c.mu.Lock()
	if c.closed || c.self.UserID == "" || c.state != StateIdle || calleeID == "" {
		c.mu.Unlock()
		return
	}
	c.state = StateOutgoingInvite
	c.callType = callType
	c.lastErr = ""
	c.duration = 0
	c.camOn = callType == signaling.CallTypeVideo
	c.mu.Unlock()
	c.notify()

	if callType == signaling.CallTypeVideo {
		tracks, err := c.deps.Media.CreateLocalTracks(ctx, media.TrackRequest{Video: true})
		if err != nil {
			c.fail("camera unavailable: " + err.Error())
			return
		}
		c.mu.Lock()
		if c.closed || c.state != StateOutgoingInvite {
			c.mu.Unlock()
			stopTracks(tracks)
			return
		}
		for _, t := range tracks {
			if t.Kind() == media.TrackKindVideo {
				c.video = t
			}
		}
		c.mu.Unlock()
		c.notify()
	}

	callID := uuid.NewString()
	row, err := c.deps.Store.CreateCall(ctx, signaling.CreateCallRequest{
		ID:       callID,
		CallerID: c.self.UserID,
		CalleeID: calleeID,
		CallType: callType,
		RoomName: signaling.RoomName(callID),
	})
	if err != nil {
		c.log.Warn("create call failed", slog.Any("error", err))
		c.fail("could not start call: " + err.Error())
		return
	}

	c.mu.Lock()
	if c.closed || c.state != StateOutgoingInvite {
		c.mu.Unlock()
		return
	}
	call := row.CallSession
	c.current = &call
	c.armRingTimerLocked(call.ID)
	c.mu.Unlock()
	c.notify()

	go c.resolveRemote(calleeID, call.ID)
	c.log.Info("outgoing call created",
		slog.String("call_id", call.ID), slog.String("callee_id", calleeID),
		slog.String("call_type", string(callType)))
}

// AcceptCall answers the ringing incoming invite and joins its media room.
func (c *Controller) AcceptCall(ctx context.Context, callID string) {
	c.mu.Lock()
	if c.closed || c.self.UserID == "" || c.state != StateIncomingInvite ||
		c.current == nil || c.current.ID != callID {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.lastErr = ""
	call := *c.current
	c.mu.Unlock()
	c.notify()

	ok, err := c.deps.Store.AcceptCall(ctx, callID, c.self.UserID)
	if err != nil {
		c.log.Warn("accept call failed", slog.String("call_id", callID), slog.Any("error", err))
		c.fail("could not accept call: " + err.Error())
		return
	}
	if !ok {
		c.fail("call no longer available")
		return
	}
	c.connectToRoom(ctx, call)
}

// DeclineCall rejects an incoming invite. The local session returns to idle
// regardless of whether the signaling write succeeded.
func (c *Controller) DeclineCall(ctx context.Context, callID string) {
	c.mu.Lock()
	if c.closed || c.self.UserID == "" {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.deps.Store.DeclineCall(ctx, callID, c.self.UserID); err != nil {
		c.log.Warn("decline call failed", slog.String("call_id", callID), slog.Any("error", err))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	release := c.cleanupLocked()
	c.resetStateLocked()
	c.mu.Unlock()
	release()
	c.notify()
}

// EndCall hangs up. callID may be empty to end the current call; with no
// current call the session just resets to idle.
func (c *Controller) EndCall(ctx context.Context, callID string) {
	c.mu.Lock()
	if c.closed || c.self.UserID == "" {
		c.mu.Unlock()
		return
	}
	if callID == "" && c.current != nil {
		callID = c.current.ID
	}
	if callID == "" {
		release := c.cleanupLocked()
		c.resetStateLocked()
		c.mu.Unlock()
		release()
		c.notify()
		return
	}
	c.mu.Unlock()

	if err := c.deps.Store.EndCall(ctx, callID, c.self.UserID, signaling.EndReasonEnded); err != nil {
		c.log.Warn("end call failed", slog.String("call_id", callID), slog.Any("error", err))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	release := c.cleanupLocked()
	c.state = StateEnded
	c.scheduleResetLocked(c.opts.HangupResetDelay)
	c.mu.Unlock()
	release()
	c.notify()
}

// Reset returns a failed session to idle, releasing any held media.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	release := c.cleanupLocked()
	c.resetStateLocked()
	c.mu.Unlock()
	release()
	c.notify()
}

// ToggleMic flips the outgoing audio mute. No-op without an audio track.
func (c *Controller) ToggleMic() {
	c.mu.Lock()
	if c.closed || c.audio == nil {
		c.mu.Unlock()
		return
	}
	if c.micOn {
		c.audio.Mute()
	} else {
		c.audio.Unmute()
	}
	c.micOn = !c.micOn
	c.mu.Unlock()
	c.notify()
}

// ToggleCam turns the camera on or off. Turning off stops and unpublishes
// the video track; turning on acquires and publishes a fresh one. Turning
// on requires a live media session.
func (c *Controller) ToggleCam(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.camOn {
		track := c.video
		sess := c.session
		c.video = nil
		c.camOn = false
		c.mu.Unlock()
		if track != nil {
			track.Stop()
			if sess != nil {
				if err := sess.Unpublish(track); err != nil {
					c.log.Warn("unpublish video failed", slog.Any("error", err))
				}
			}
		}
		c.notify()
		return
	}
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return
	}

	tracks, err := c.deps.Media.CreateLocalTracks(ctx, media.TrackRequest{Video: true})
	if err != nil {
		c.log.Warn("camera acquire failed", slog.Any("error", err))
		return
	}
	var track media.Track
	for _, t := range tracks {
		if t.Kind() == media.TrackKindVideo {
			track = t
		}
	}
	if track == nil {
		stopTracks(tracks)
		return
	}
	if err := sess.Publish(track); err != nil {
		c.log.Warn("publish video failed", slog.Any("error", err))
		track.Stop()
		return
	}
	c.mu.Lock()
	if c.closed || c.session != sess {
		c.mu.Unlock()
		track.Stop()
		return
	}
	c.video = track
	c.camOn = true
	c.mu.Unlock()
	c.notify()
}

// ToggleSpeaker flips the speakerphone flag. Output routing is left to the
// platform audio layer consuming the snapshot.
func (c *Controller) ToggleSpeaker() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.speakerOn = !c.speakerOn
	c.mu.Unlock()
	c.notify()
}

// recover restores a live call found in the store after a restart. Pending
// calls resume ringing; accepted and active calls rejoin their media room
// without a new accept action.
func (c *Controller) recover(ctx context.Context) {
	active, ok, err := c.deps.Store.GetActiveCall(ctx, c.self.UserID)
	if err != nil {
		c.log.Warn("active call lookup failed", slog.Any("error", err))
		return
	}
	if !ok {
		return
	}

	c.mu.Lock()
	if c.closed || c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	call := active.CallSession
	c.current = &call
	c.callType = call.CallType
	peerID := call.PeerOf(c.self.UserID)
	reconnect := false
	switch active.Status {
	case signaling.CallStatusPending:
		if active.IsCaller {
			c.state = StateOutgoingInvite
			c.armRingTimerLocked(call.ID)
		} else {
			c.state = StateIncomingInvite
		}
	default:
		c.state = StateConnecting
		reconnect = true
	}
	c.mu.Unlock()
	c.notify()
	c.log.Info("recovered live call",
		slog.String("call_id", call.ID), slog.String("status", string(active.Status)))

	go c.resolveRemote(peerID, call.ID)
	if reconnect {
		go c.connectToRoom(ctx, call)
	}
}

// handleEvent consumes one row-change event from either bus channel.
func (c *Controller) handleEvent(ev signaling.Event) {
	switch ev.Type {
	case signaling.EventInsert:
		c.handleInsert(ev.Row)
	case signaling.EventUpdate:
		c.handleStatus(ev.Row)
	}
}

// handleInsert reacts to a new pending row addressed to this user. A second
// invite while any call is live is auto-declined without touching the
// current session.
func (c *Controller) handleInsert(row signaling.CallRow) {
	if row.CalleeID != c.self.UserID || row.Status != signaling.CallStatusPending {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.current != nil && c.current.ID == row.ID {
		// Re-delivery of the invite we already hold.
		c.mu.Unlock()
		return
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		c.log.Info("busy, auto-declining invite", slog.String("call_id", row.ID))
		ctx, cancel := context.WithTimeout(context.Background(), remoteOpTimeout)
		defer cancel()
		if err := c.deps.Store.DeclineCall(ctx, row.ID, c.self.UserID); err != nil {
			c.log.Warn("auto-decline failed", slog.String("call_id", row.ID), slog.Any("error", err))
		}
		return
	}
	call := row.CallSession
	c.current = &call
	c.callType = call.CallType
	c.state = StateIncomingInvite
	c.lastErr = ""
	c.duration = 0
	c.mu.Unlock()
	c.notify()
	c.log.Info("incoming call", slog.String("call_id", call.ID), slog.String("caller_id", call.CallerID))

	go c.resolveRemote(call.CallerID, call.ID)
}

// handleStatus applies a status change for the held call. Keyed on the row
// status so duplicate and out-of-order deliveries converge.
func (c *Controller) handleStatus(row signaling.CallRow) {
	c.mu.Lock()
	if c.closed || c.current == nil || c.current.ID != row.ID {
		c.mu.Unlock()
		return
	}

	switch {
	case row.Status == signaling.CallStatusAccepted:
		if c.state != StateOutgoingInvite && c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		wasOutgoing := c.state == StateOutgoingInvite
		c.state = StateConnecting
		if c.ringTimer != nil {
			c.ringTimer.Stop()
			c.ringTimer = nil
		}
		if !row.AnsweredAt.IsZero() {
			c.current.AnsweredAt = row.AnsweredAt
		}
		call := *c.current
		c.mu.Unlock()
		c.notify()
		if wasOutgoing {
			go c.connectToRoom(context.Background(), call)
		}

	case row.Status == signaling.CallStatusActive:
		if c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.state = StateInCall
		c.startDurationLocked()
		c.mu.Unlock()
		c.notify()

	case row.Status.Terminal():
		release := c.cleanupLocked()
		c.state = StateEnded
		c.scheduleResetLocked(c.opts.ResetDelay)
		c.mu.Unlock()
		release()
		c.notify()
		c.log.Info("call finished",
			slog.String("call_id", row.ID), slog.String("status", string(row.Status)))

	default:
		c.mu.Unlock()
	}
}

// connectToRoom fetches a room credential, opens the media session, and
// publishes the local tracks. Any failure parks the session in failed and
// best-effort ends the call so the peer is not left hanging.
func (c *Controller) connectToRoom(ctx context.Context, call signaling.CallSession) {
	cred, err := c.deps.Credentials.FetchCredential(ctx, call.RoomName, c.self.UserID, c.self.DisplayName)
	if err != nil {
		c.connectFailed(call, "could not get room access: "+err.Error())
		return
	}

	sess, err := c.deps.Media.OpenSession(ctx, cred, media.SessionHandlers{
		OnConnected: func() { c.onMediaConnected(call.ID) },
		OnDisconnected: func(reason string) {
			c.onMediaDisconnected(call.ID, reason)
		},
		OnParticipantLeft: func() {
			opCtx, cancel := context.WithTimeout(context.Background(), remoteOpTimeout)
			defer cancel()
			c.EndCall(opCtx, call.ID)
		},
	})
	if err != nil {
		c.connectFailed(call, "could not join room: "+err.Error())
		return
	}

	c.mu.Lock()
	if c.closed || c.current == nil || c.current.ID != call.ID {
		c.mu.Unlock()
		sess.Close()
		return
	}
	c.session = sess
	havePreview := c.video != nil
	c.mu.Unlock()

	isVideo := call.CallType == signaling.CallTypeVideo
	tracks, err := c.deps.Media.CreateLocalTracks(ctx, media.TrackRequest{
		Audio: true,
		Video: isVideo && !havePreview,
	})
	if err != nil {
		sess.Close()
		c.connectFailed(call, "could not start microphone: "+err.Error())
		return
	}

	c.mu.Lock()
	if c.closed || c.current == nil || c.current.ID != call.ID {
		c.mu.Unlock()
		stopTracks(tracks)
		sess.Close()
		return
	}
	for _, t := range tracks {
		switch t.Kind() {
		case media.TrackKindAudio:
			c.audio = t
		case media.TrackKindVideo:
			c.video = t
		}
	}
	publish := make([]media.Track, 0, 2)
	if c.audio != nil {
		publish = append(publish, c.audio)
	}
	if isVideo && c.video != nil {
		publish = append(publish, c.video)
	}
	c.micOn = true
	c.camOn = isVideo
	c.mu.Unlock()

	for _, t := range publish {
		if err := sess.Publish(t); err != nil {
			c.connectFailed(call, "could not publish media: "+err.Error())
			return
		}
	}
	c.notify()
}

func (c *Controller) connectFailed(call signaling.CallSession, msg string) {
	c.mu.Lock()
	if c.closed || c.current == nil || c.current.ID != call.ID {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.lastErr = msg
	c.mu.Unlock()
	c.notify()
	c.log.Warn("media connect failed", slog.String("call_id", call.ID), slog.String("reason", msg))

	ctx, cancel := context.WithTimeout(context.Background(), remoteOpTimeout)
	defer cancel()
	if err := c.deps.Store.EndCall(ctx, call.ID, c.self.UserID, signaling.EndReasonConnectionFailed); err != nil {
		c.log.Warn("end after connect failure failed", slog.String("call_id", call.ID), slog.Any("error", err))
	}
}

// onMediaConnected fires when the room join completes. It activates the
// call record and starts the in-call clock.
func (c *Controller) onMediaConnected(callID string) {
	c.mu.Lock()
	if c.closed || c.current == nil || c.current.ID != callID {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), remoteOpTimeout)
	defer cancel()
	if err := c.deps.Store.ActivateCall(ctx, callID, c.self.UserID); err != nil {
		c.log.Warn("activate call failed", slog.String("call_id", callID), slog.Any("error", err))
	}

	c.mu.Lock()
	if c.closed || c.current == nil || c.current.ID != callID || !c.state.Live() {
		c.mu.Unlock()
		return
	}
	c.state = StateInCall
	c.duration = 0
	c.startDurationLocked()
	c.mu.Unlock()
	c.notify()
}

// onMediaDisconnected handles an unexpected session drop. Outside in_call
// it is ignored; the status machinery owns those paths.
func (c *Controller) onMediaDisconnected(callID, reason string) {
	c.mu.Lock()
	if c.closed || c.state != StateInCall || c.current == nil || c.current.ID != callID {
		c.mu.Unlock()
		return
	}
	release := c.cleanupLocked()
	c.state = StateEnded
	c.scheduleResetLocked(c.opts.ResetDelay)
	c.mu.Unlock()
	release()
	c.notify()
	c.log.Info("media session dropped", slog.String("call_id", callID), slog.String("reason", reason))
}

func (c *Controller) fail(msg string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.lastErr = msg
	c.mu.Unlock()
	c.notify()
}

// resolveRemote loads the peer's profile. The result is dropped if the call
// changed while the lookup ran.
func (c *Controller) resolveRemote(userID, callID string) {
	if userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), remoteOpTimeout)
	defer cancel()
	profile, ok, err := c.deps.Profiles.GetProfile(ctx, userID)
	if err != nil || !ok {
		c.log.Debug("peer profile lookup failed", slog.String("peer_id", userID), slog.Any("error", err))
		return
	}
	c.mu.Lock()
	if c.closed || c.current == nil || c.current.ID != callID {
		c.mu.Unlock()
		return
	}
	c.remote = &profile
	c.mu.Unlock()
	c.notify()
}

// armRingTimerLocked starts the missed-call deadline for an outgoing invite.
func (c *Controller) armRingTimerLocked(callID string) {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}
	c.ringTimer = time.AfterFunc(c.opts.RingTimeout, func() {
		c.onRingTimeout(callID)
	})
}

// onRingTimeout marks an unanswered outgoing invite missed. Fired by timer;
// re-checks that the invite is still the one it was armed for.
func (c *Controller) onRingTimeout(callID string) {
	c.mu.Lock()
	if c.closed || c.state != StateOutgoingInvite || c.current == nil || c.current.ID != callID {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), remoteOpTimeout)
	defer cancel()
	if err := c.deps.Store.EndCall(ctx, callID, c.self.UserID, signaling.EndReasonMissed); err != nil {
		c.log.Warn("mark missed failed", slog.String("call_id", callID), slog.Any("error", err))
	}

	c.mu.Lock()
	if c.closed || c.state != StateOutgoingInvite || c.current == nil || c.current.ID != callID {
		c.mu.Unlock()
		return
	}
	release := c.cleanupLocked()
	c.state = StateEnded
	c.scheduleResetLocked(c.opts.ResetDelay)
	c.mu.Unlock()
	release()
	c.notify()
	c.log.Info("call missed", slog.String("call_id", callID))
}

// cleanupLocked stops timers and detaches media handles. It returns a
// closure that releases the detached handles; run it after unlocking, the
// session close and track stops may block.
func (c *Controller) cleanupLocked() func() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
	c.stopDurationLocked()
	sess := c.session
	audio := c.audio
	video := c.video
	c.session = nil
	c.audio = nil
	c.video = nil
	return func() {
		if audio != nil {
			audio.Stop()
		}
		if video != nil {
			video.Stop()
		}
		if sess != nil {
			sess.Close()
		}
	}
}

// resetStateLocked returns all observable fields to their idle defaults.
// Duration is kept so an ended snapshot still shows the call length.
func (c *Controller) resetStateLocked() {
	c.state = StateIdle
	c.callType = ""
	c.current = nil
	c.remote = nil
	c.lastErr = ""
	c.micOn = true
	c.camOn = false
	c.speakerOn = true
}

// scheduleResetLocked arms the ended → idle transition. Level-triggered:
// the reset only applies if the session is still in ended when it fires.
func (c *Controller) scheduleResetLocked(d time.Duration) {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.resetTimer = time.AfterFunc(d, func() {
		c.mu.Lock()
		if c.closed || c.state != StateEnded {
			c.mu.Unlock()
			return
		}
		c.resetStateLocked()
		c.mu.Unlock()
		c.notify()
	})
}

// startDurationLocked starts the in-call clock from zero.
func (c *Controller) startDurationLocked() {
	c.stopDurationLocked()
	c.duration = 0
	stop := make(chan struct{})
	c.durStop = stop
	go func() {
		ticker := time.NewTicker(c.opts.DurationTick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.closed || c.state != StateInCall {
					c.mu.Unlock()
					return
				}
				c.duration++
				c.mu.Unlock()
				c.notify()
			}
		}
	}()
}

func (c *Controller) stopDurationLocked() {
	if c.durStop != nil {
		close(c.durStop)
		c.durStop = nil
	}
}

func (c *Controller) notify() {
	if c.opts.OnChange != nil {
		c.opts.OnChange(c.Snapshot())
	}
}

func stopTracks(tracks []media.Track) {
	for _, t := range tracks {
		t.Stop()
	}
}
