package cache

import (
	"sync"

	"github.com/google/uuid"
)

type subscription struct {
	id uuid.UUID
	fn func(data []byte)
}

// subscribers maps cache keys to ordered callback registrations.
type subscribers struct {
	mu    sync.Mutex
	byKey map[string][]subscription
}

func newSubscribers() *subscribers {
	return &subscribers{byKey: make(map[string][]subscription)}
}

func (s *subscribers) add(key string, fn func(data []byte)) uuid.UUID {
	id := uuid.New()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[key] = append(s.byKey[key], subscription{id: id, fn: fn})
	return id
}

// remove deletes the registration with id. Reports false if it was already gone.
func (s *subscribers) remove(key string, id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byKey[key]
	for i, sub := range list {
		if sub.id != id {
			continue
		}
		rest := make([]subscription, 0, len(list)-1)
		rest = append(rest, list[:i]...)
		rest = append(rest, list[i+1:]...)
		if len(rest) == 0 {
			delete(s.byKey, key)
		} else {
			s.byKey[key] = rest
		}
		return true
	}
	return false
}

// snapshot returns a copy of key's registrations so callbacks run unlocked.
func (s *subscribers) snapshot(key string) []subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byKey[key]
	if len(list) == 0 {
		return nil
	}
	out := make([]subscription, len(list))
	copy(out, list)
	return out
}

func (s *subscribers) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey[key])
}
