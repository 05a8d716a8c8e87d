// Package ratelimit provides the in-memory limiter guarding the status endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/pkg/logger"
)

// Ensure MemoryStore implements out.RateLimiter.
var _ out.RateLimiter = (*MemoryStore)(nil)

// DefaultIdleTTL is how long an unused key keeps its limiter.
const DefaultIdleTTL = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore keeps one token bucket per key. Keys idle for longer than the
// TTL are pruned lazily once the store holds more than maxKeys entries.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	rps     float64
	burst   int
	ttl     time.Duration
	maxKeys int
	log     *logger.Logger
	nowFn   func() time.Time
}

// NewMemoryStore creates a store allowing rps requests per second per key
// with the given burst.
func NewMemoryStore(rps float64, burst int, log *logger.Logger) *MemoryStore {
	if log == nil {
		log = logger.Nop()
	}
	if burst < 1 {
		burst = 1
	}
	return &MemoryStore{
		entries: make(map[string]*entry),
		rps:     rps,
		burst:   burst,
		ttl:     DefaultIdleTTL,
		maxKeys: 1024,
		log:     log,
		nowFn:   time.Now,
	}
}

// Allow consumes one token of key's bucket.
func (s *MemoryStore) Allow(_ context.Context, key string) bool {
	now := s.nowFn()

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		if len(s.entries) >= s.maxKeys {
			s.prune(now)
		}
		e = &entry{limiter: rate.NewLimiter(rate.Limit(s.rps), s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	s.mu.Unlock()

	allowed := e.limiter.AllowN(now, 1)
	if !allowed {
		s.log.Debug("rate limited", "key", key)
	}
	return allowed
}

// prune drops idle keys. Callers hold mu.
func (s *MemoryStore) prune(now time.Time) {
	for k, e := range s.entries {
		if now.Sub(e.lastSeen) > s.ttl {
			delete(s.entries, k)
		}
	}
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
