package chatclient

import (
	"sort"
	"sync"
)

// OnlineSet is the client's view of which contacts are online.
type OnlineSet struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// NewOnlineSet returns an empty set.
func NewOnlineSet() *OnlineSet {
	return &OnlineSet{users: make(map[string]struct{})}
}

// Replace swaps the whole set, as on the online-users snapshot.
func (s *OnlineSet) Replace(userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		s.users[id] = struct{}{}
	}
}

func (s *OnlineSet) Add(userID string) {
	s.mu.Lock()
	s.users[userID] = struct{}{}
	s.mu.Unlock()
}

func (s *OnlineSet) Remove(userID string) {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
}

// Clear empties the set. Called when the push channel drops.
func (s *OnlineSet) Clear() {
	s.Replace(nil)
}

func (s *OnlineSet) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

// List returns the online user ids in sorted order.
func (s *OnlineSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
