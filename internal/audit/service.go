package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records call lifecycle audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCallCreated records a new invite.
func (s *Service) LogCallCreated(ctx context.Context, callID, callerID, calleeID, callType string) error {
	return s.Append(ctx, Event{
		CallID:      callID,
		Type:        EventTypeCallCreated,
		ActorUserID: callerID,
		PeerUserID:  calleeID,
		Message:     "call created (" + callType + ")",
	})
}

// LogCallAccepted records the callee answering.
func (s *Service) LogCallAccepted(ctx context.Context, callID, calleeID string) error {
	return s.Append(ctx, Event{
		CallID:      callID,
		Type:        EventTypeCallAccepted,
		ActorUserID: calleeID,
	})
}

// LogCallActivated records media connecting.
func (s *Service) LogCallActivated(ctx context.Context, callID, userID string) error {
	return s.Append(ctx, Event{
		CallID:      callID,
		Type:        EventTypeCallActivated,
		ActorUserID: userID,
	})
}

// LogCallDeclined records the callee declining.
func (s *Service) LogCallDeclined(ctx context.Context, callID, userID string) error {
	return s.Append(ctx, Event{
		CallID:      callID,
		Type:        EventTypeCallDeclined,
		ActorUserID: userID,
		Reason:      "declined",
	})
}

// LogCallEnded records any terminal transition with its reason.
func (s *Service) LogCallEnded(ctx context.Context, callID, userID, reason string) error {
	return s.Append(ctx, Event{
		CallID:      callID,
		Type:        EventTypeCallEnded,
		ActorUserID: userID,
		Reason:      reason,
	})
}
