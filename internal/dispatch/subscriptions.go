package dispatch

import (
	"sync"
)

type entry[H any] struct {
	id uint64
	fn H
}

// Subscriptions is an ordered, concurrency-safe handler list keyed by event
// name. Both the Dispatcher and the agent transport keep their listeners here.
type Subscriptions[K comparable, H any] struct {
	mu     sync.RWMutex
	nextID uint64
	byKey  map[K][]entry[H]
}

func NewSubscriptions[K comparable, H any]() *Subscriptions[K, H] {
	return &Subscriptions[K, H]{
		byKey: make(map[K][]entry[H]),
	}
}

// Add registers fn under key and returns a function that removes exactly that
// registration. Calling the returned function more than once is a no-op.
func (s *Subscriptions[K, H]) Add(key K, fn H) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.byKey[key] = append(s.byKey[key], entry[H]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(key, id) })
	}
}

func (s *Subscriptions[K, H]) remove(key K, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.byKey[key]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		// copy so snapshots handed out earlier stay intact
		next := make([]entry[H], 0, len(entries)-1)
		next = append(next, entries[:i]...)
		next = append(next, entries[i+1:]...)
		if len(next) == 0 {
			delete(s.byKey, key)
		} else {
			s.byKey[key] = next
		}
		return
	}
}

// Snapshot returns the handlers registered under key in registration order.
func (s *Subscriptions[K, H]) Snapshot(key K) []H {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.byKey[key]
	out := make([]H, len(entries))
	for i, e := range entries {
		out[i] = e.fn
	}
	return out
}

func (s *Subscriptions[K, H]) Len(key K) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey[key])
}

func (s *Subscriptions[K, H]) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, entries := range s.byKey {
		total += len(entries)
	}
	return total
}

// Clear drops every registration. Outstanding unsubscribe functions become no-ops.
func (s *Subscriptions[K, H]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey = make(map[K][]entry[H])
}
