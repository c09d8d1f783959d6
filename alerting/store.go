// alerting/store.go
package alerting

import (
	"sort"
	"sync"
)

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Store holds the active alerts. Updates to one key are serialized; updates
// to different keys proceed in parallel.
type Store struct {
	locksMu sync.Mutex
	locks   map[Key]*keyLock

	mu     sync.RWMutex
	alerts map[Key]Alert
}

// NewStore creates an empty alert store
func NewStore() *Store {
	return &Store{
		locks:  make(map[Key]*keyLock),
		alerts: make(map[Key]Alert),
	}
}

// Update runs fn holding the lock for key. fn receives the current alert,
// or nil when none is active, and returns the alert to keep; returning nil
// removes the key.
func (s *Store) Update(key Key, fn func(cur *Alert) *Alert) {
	l := s.acquire(key)
	defer s.release(key, l)

	s.mu.RLock()
	cur, ok := s.alerts[key]
	s.mu.RUnlock()

	var next *Alert
	if ok {
		next = fn(&cur)
	} else {
		next = fn(nil)
	}

	s.mu.Lock()
	if next == nil {
		delete(s.alerts, key)
	} else {
		s.alerts[key] = *next
	}
	s.mu.Unlock()
}

// Get returns a copy of the active alert for key
func (s *Store) Get(key Key) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[key]
	return a, ok
}

// Active returns a snapshot of all active alerts ordered by id
func (s *Store) Active() []Alert {
	s.mu.RLock()
	out := make([]Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of active alerts
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

func (s *Store) acquire(key Key) *keyLock {
	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Store) release(key Key, l *keyLock) {
	l.mu.Unlock()

	s.locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.locksMu.Unlock()
}
