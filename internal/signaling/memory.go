package signaling

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus + Publisher.
// It backs tests and single-process local runs; production uses RedisBus.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]*memSub
}

type memSub struct {
	in   chan Event
	done chan struct{}
	once sync.Once
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

func (b *MemoryBus) Publish(ctx context.Context, channel string, ev Event) error {
	b.mu.Lock()
	targets := make([]*memSub, len(b.subs[channel]))
	copy(targets, b.subs[channel])
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.in <- ev:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan Event, func(), error) {
	s := &memSub{in: make(chan Event, 64), done: make(chan struct{})}

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], s)
	b.mu.Unlock()

	stop := func() {
		s.once.Do(func() { close(s.done) })
		b.mu.Lock()
		list := b.subs[channel]
		for i, cur := range list {
			if cur == s {
				b.subs[channel] = append(list[:i], list[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	}

	// The forwarder is the only writer/closer of out; publishers only ever
	// touch s.in, so stop can never race a send on a closed channel.
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				stop()
				return
			case ev := <-s.in:
				select {
				case out <- ev:
				case <-s.done:
					return
				case <-ctx.Done():
					stop()
					return
				}
			}
		}
	}()

	return out, stop, nil
}

// MemoryStore is an in-memory Store with the same transition semantics as
// PostgresStore. Not intended for production use.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string]*CallRow
	pub   Publisher
	clock func() time.Time
}

func NewMemoryStore(pub Publisher) *MemoryStore {
	return &MemoryStore{rows: make(map[string]*CallRow), pub: pub, clock: time.Now}
}

// SetClock makes row timestamps deterministic for tests.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) CreateCall(ctx context.Context, req CreateCallRequest) (CallRow, error) {
	if req.ID == "" || req.CallerID == "" || req.CalleeID == "" || req.RoomName == "" {
		return CallRow{}, ErrInvalidArgument
	}
	if req.CallerID == req.CalleeID {
		return CallRow{}, ErrInvalidArgument
	}
	if req.CallType != CallTypeVoice && req.CallType != CallTypeVideo {
		return CallRow{}, ErrInvalidArgument
	}

	now := s.clock().UTC()

	s.mu.Lock()
	for _, r := range s.rows {
		if !r.Status.Terminal() && (r.CallerID == req.CallerID || r.CalleeID == req.CallerID) {
			s.mu.Unlock()
			return CallRow{}, ErrBusy
		}
	}
	row := CallRow{
		CallSession: CallSession{
			ID:        req.ID,
			CallerID:  req.CallerID,
			CalleeID:  req.CalleeID,
			CallType:  req.CallType,
			RoomName:  req.RoomName,
			CreatedAt: now,
		},
		Status:    CallStatusPending,
		UpdatedAt: now,
	}
	s.rows[req.ID] = &row
	out := row
	s.mu.Unlock()

	if err := publishRow(ctx, s.pub, EventInsert, out); err != nil {
		return out, err
	}
	return out, nil
}

func (s *MemoryStore) AcceptCall(ctx context.Context, callID, userID string) (bool, error) {
	if callID == "" || userID == "" {
		return false, ErrInvalidArgument
	}

	s.mu.Lock()
	r, ok := s.rows[callID]
	if !ok || r.CalleeID != userID || r.Status != CallStatusPending {
		s.mu.Unlock()
		return false, nil
	}
	now := s.clock().UTC()
	r.Status = CallStatusAccepted
	r.AnsweredAt = now
	r.UpdatedAt = now
	out := *r
	s.mu.Unlock()

	if err := publishRow(ctx, s.pub, EventUpdate, out); err != nil {
		return true, err
	}
	return true, nil
}

func (s *MemoryStore) DeclineCall(ctx context.Context, callID, userID string) error {
	return s.finish(ctx, callID, userID, EndReasonDeclined, CallStatusPending)
}

func (s *MemoryStore) ActivateCall(ctx context.Context, callID, userID string) error {
	if callID == "" || userID == "" {
		return ErrInvalidArgument
	}

	s.mu.Lock()
	r, ok := s.rows[callID]
	if !ok || r.PeerOf(userID) == "" || r.Status != CallStatusAccepted {
		s.mu.Unlock()
		return nil
	}
	r.Status = CallStatusActive
	r.UpdatedAt = s.clock().UTC()
	out := *r
	s.mu.Unlock()

	return publishRow(ctx, s.pub, EventUpdate, out)
}

func (s *MemoryStore) EndCall(ctx context.Context, callID, userID string, reason EndReason) error {
	return s.finish(ctx, callID, userID, reason, CallStatusPending, CallStatusAccepted, CallStatusActive)
}

// finish applies a terminal transition when the row is in one of the given
// statuses. Already-terminal rows are left untouched (best-effort contract).
func (s *MemoryStore) finish(ctx context.Context, callID, userID string, reason EndReason, from ...CallStatus) error {
	if callID == "" || userID == "" {
		return ErrInvalidArgument
	}

	s.mu.Lock()
	r, ok := s.rows[callID]
	if !ok || r.PeerOf(userID) == "" {
		s.mu.Unlock()
		return nil
	}
	eligible := false
	for _, st := range from {
		if r.Status == st {
			eligible = true
			break
		}
	}
	if !eligible {
		s.mu.Unlock()
		return nil
	}
	now := s.clock().UTC()
	r.Status = statusForReason(reason)
	r.EndedReason = reason
	r.EndedAt = now
	r.UpdatedAt = now
	out := *r
	s.mu.Unlock()

	return publishRow(ctx, s.pub, EventUpdate, out)
}

func (s *MemoryStore) GetActiveCall(ctx context.Context, userID string) (ActiveCall, bool, error) {
	if userID == "" {
		return ActiveCall{}, false, ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var live []*CallRow
	for _, r := range s.rows {
		if !r.Status.Terminal() && (r.CallerID == userID || r.CalleeID == userID) {
			live = append(live, r)
		}
	}
	if len(live) == 0 {
		return ActiveCall{}, false, nil
	}
	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.After(live[j].CreatedAt) })
	newest := *live[0]
	return ActiveCall{CallRow: newest, IsCaller: newest.CallerID == userID}, true, nil
}

func (s *MemoryStore) GetCallByRoom(ctx context.Context, roomName string) (CallRow, error) {
	if roomName == "" {
		return CallRow{}, ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.RoomName == roomName {
			return *r, nil
		}
	}
	return CallRow{}, ErrNotFound
}
