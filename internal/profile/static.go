package profile

import (
	"context"
	"sync"
)

// StaticProvider is an in-process provider for local/dev use and tests.
type StaticProvider struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{profiles: make(map[string]Profile)}
}

func (s *StaticProvider) Put(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

func (s *StaticProvider) Get(_ context.Context, userID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}
	return Profile{UserID: userID}, nil
}
