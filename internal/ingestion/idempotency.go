package ingestion

import (
	"sync"
	"time"
)

// IdempotencyStore is a simple in-memory TTL dedupe cache keyed by the
// envelope dedupe key. Swap for Redis or a DB table when ingestion spans
// more than one process.
type IdempotencyStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewIdempotencyStore creates a store. ttl <= 0 defaults to 24h.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen reports whether key was marked within the TTL window. An empty key
// is never a duplicate. Seen never records the key: a batch that is
// rejected or fails to fold must stay retryable under the same key.
func (s *IdempotencyStore) Seen(key string) bool {
	if key == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire()
	_, ok := s.seen[key]
	return ok
}

// Mark records key as processed. Called only after the batch folds
// successfully.
func (s *IdempotencyStore) Mark(key string) {
	if key == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire()
	s.seen[key] = s.now().Add(s.ttl)
}

// expire drops entries past their TTL. Caller holds mu.
func (s *IdempotencyStore) expire() {
	now := s.now()
	for k, exp := range s.seen {
		if exp.Before(now) {
			delete(s.seen, k)
		}
	}
}
