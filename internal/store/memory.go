package store

import (
	"context"
	"sync"
)

// MemoryStore keeps bans and notification preferences in process memory.
// It is the fallback when no redis address is configured; state is lost
// on restart, which matches single-node deployments.
type MemoryStore struct {
	mu            sync.RWMutex
	banned        map[string]map[string]struct{}
	notifications map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		banned:        make(map[string]map[string]struct{}),
		notifications: make(map[string]bool),
	}
}

func (s *MemoryStore) BanPeer(_ context.Context, roomID, peerUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.banned[roomID]
	if !ok {
		set = make(map[string]struct{})
		s.banned[roomID] = set
	}
	set[peerUUID] = struct{}{}
	return nil
}

func (s *MemoryStore) IsBanned(_ context.Context, roomID, peerUUID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.banned[roomID][peerUUID]
	return ok, nil
}

func (s *MemoryStore) ClearBans(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.banned, roomID)
	return nil
}

func (s *MemoryStore) SetNotification(_ context.Context, roomID, peerUUID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[roomID+"/"+peerUUID] = enabled
	return nil
}

func (s *MemoryStore) GetNotification(_ context.Context, roomID, peerUUID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifications[roomID+"/"+peerUUID], nil
}

func (s *MemoryStore) Close() error { return nil }
