package identity

import (
	"context"
	"errors"
	"sync"
)

var ErrInvalidArgument = errors.New("identity: invalid argument")

// Profile is the read-only display projection of a user.
type Profile struct {
	ID        string `json:"id" db:"id"`
	Username  string `json:"username,omitempty" db:"username"`
	AvatarURL string `json:"avatar_url,omitempty" db:"avatar_url"`
}

// ProfileStore resolves user display projections.
type ProfileStore interface {
	// GetProfile returns ok=false when no profile exists for id.
	GetProfile(ctx context.Context, id string) (Profile, bool, error)
}

// MemoryStore is an in-memory ProfileStore for tests and local runs.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]Profile
}

func NewMemoryStore(profiles ...Profile) *MemoryStore {
	s := &MemoryStore{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}
	return s
}

func (s *MemoryStore) Put(p Profile) {
	s.mu.Lock()
	s.profiles[p.ID] = p
	s.mu.Unlock()
}

func (s *MemoryStore) GetProfile(ctx context.Context, id string) (Profile, bool, error) {
	if id == "" {
		return Profile{}, false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	return p, ok, nil
}
