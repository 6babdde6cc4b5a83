package quota

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore is the single-process Store implementation: a mutex-guarded map
// of fixed windows keyed by client identity. Entries are created lazily on
// first check and removed by Sweep once their window has elapsed.
//
// The fixed window deliberately admits a burst-at-boundary case (up to
// 2x ceiling across a window edge); that imprecision is accepted for
// simplicity.
type MemoryStore struct {
	mu      sync.Mutex
	ceiling int
	window  time.Duration
	entries map[string]*entry

	now func() time.Time // overridable in tests
}

// NewMemoryStore creates an in-memory fixed-window store.
func NewMemoryStore(ceiling int, window time.Duration) *MemoryStore {
	return &MemoryStore{
		ceiling: ceiling,
		window:  window,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Check performs the atomic check-and-increment for one identity.
func (s *MemoryStore) Check(_ context.Context, identity string) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[identity]
	if !ok || now.After(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(s.window)}
		s.entries[identity] = e
		return Decision{Allowed: true, Remaining: s.ceiling - 1, ResetAt: e.resetAt}, nil
	}

	if e.count >= s.ceiling {
		return Decision{Allowed: false, Remaining: 0, ResetAt: e.resetAt}, nil
	}

	e.count++
	return Decision{Allowed: true, Remaining: s.ceiling - e.count, ResetAt: e.resetAt}, nil
}

// Sweep deletes entries whose window has already elapsed.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for identity, e := range s.entries {
		if now.After(e.resetAt) {
			delete(s.entries, identity)
			removed++
		}
	}
	return removed, nil
}

// Reset clears all quota entries.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	return nil
}

// Len reports the current number of tracked identities.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
