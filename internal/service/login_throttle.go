package service

import (
	"sync"
	"time"

	"botops-console/internal/bucketing"
	"botops-console/internal/models"
)

const throttleShards = 16

type throttleShard struct {
	mu      sync.Mutex
	entries map[string]*models.LoginAttempt
}

// LoginThrottle tracks failed first-factor attempts per source address.
// An address that accumulates maxAttempts failures is locked out until the
// window elapses; only a completed two-factor login clears it early.
type LoginThrottle struct {
	shards      [throttleShards]*throttleShard
	bucketing   *bucketing.BucketingManager
	maxAttempts int
	window      time.Duration
	retention   time.Duration
	now         func() time.Time
}

func NewLoginThrottle(bucketing *bucketing.BucketingManager, maxAttempts int, window, retention time.Duration) *LoginThrottle {
	t := &LoginThrottle{
		bucketing:   bucketing,
		maxAttempts: maxAttempts,
		window:      window,
		retention:   retention,
		now:         time.Now,
	}
	for i := range t.shards {
		t.shards[i] = &throttleShard{entries: make(map[string]*models.LoginAttempt)}
	}
	return t
}

func (t *LoginThrottle) shard(addr string) *throttleShard {
	return t.shards[t.bucketing.GetShard(addr, throttleShards)]
}

// CheckAllowed reports whether the address may attempt a login, and if not,
// how long until the lockout lifts. An elapsed window resets the counter.
func (t *LoginThrottle) CheckAllowed(addr string) (bool, time.Duration) {
	s := t.shard(addr)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[addr]
	if !ok {
		return true, 0
	}

	elapsed := t.now().Sub(entry.LastFailureAt)
	if elapsed >= t.window {
		delete(s.entries, addr)
		return true, 0
	}

	if entry.Failures >= t.maxAttempts {
		return false, t.window - elapsed
	}
	return true, 0
}

// RecordFailure counts a failed attempt against the address.
func (t *LoginThrottle) RecordFailure(addr string) {
	s := t.shard(addr)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[addr]
	if !ok {
		entry = &models.LoginAttempt{SourceAddress: addr}
		s.entries[addr] = entry
	}
	entry.Failures++
	entry.LastFailureAt = t.now()
}

// Clear wipes the failure history for an address.
func (t *LoginThrottle) Clear(addr string) {
	s := t.shard(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, addr)
}

// Sweep drops entries whose last failure is past the retention horizon.
func (t *LoginThrottle) Sweep() int {
	horizon := t.now().Add(-t.retention)
	removed := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for addr, entry := range s.entries {
			if entry.LastFailureAt.Before(horizon) {
				delete(s.entries, addr)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
