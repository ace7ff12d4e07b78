package service

import (
	"sync"
	"time"

	"botops-console/internal/bucketing"
	"botops-console/internal/models"
)

const codeCacheShards = 16

type codeShard struct {
	mu      sync.Mutex
	entries map[string]*models.VerificationCode
}

// CodeCache holds pending verification codes in memory, striped across
// shards so concurrent logins contend on different locks. Codes are only
// meaningful to the process that issued them; a restart voids all pending
// logins, which is acceptable for an operator dashboard.
type CodeCache struct {
	shards    [codeCacheShards]*codeShard
	bucketing *bucketing.BucketingManager
	now       func() time.Time
}

func NewCodeCache(bucketing *bucketing.BucketingManager) *CodeCache {
	c := &CodeCache{
		bucketing: bucketing,
		now:       time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &codeShard{entries: make(map[string]*models.VerificationCode)}
	}
	return c
}

func (c *CodeCache) shard(codeID string) *codeShard {
	return c.shards[c.bucketing.GetShard(codeID, codeCacheShards)]
}

// Store records a freshly issued code.
func (c *CodeCache) Store(vc *models.VerificationCode) {
	s := c.shard(vc.CodeID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[vc.CodeID] = vc
}

// Get returns a copy of the entry, so callers can inspect it without
// holding the shard lock.
func (c *CodeCache) Get(codeID string) (models.VerificationCode, bool) {
	s := c.shard(codeID)
	s.mu.Lock()
	defer s.mu.Unlock()

	vc, ok := s.entries[codeID]
	if !ok {
		return models.VerificationCode{}, false
	}
	return *vc, true
}

// MarkUsed flips the used flag. It returns false when the entry is missing
// or already used, which makes replay detection atomic.
func (c *CodeCache) MarkUsed(codeID string) bool {
	s := c.shard(codeID)
	s.mu.Lock()
	defer s.mu.Unlock()

	vc, ok := s.entries[codeID]
	if !ok || vc.Used {
		return false
	}
	vc.Used = true
	return true
}

// RecordWrongGuess increments the wrong-guess counter and returns the new
// count. Missing entries report zero.
func (c *CodeCache) RecordWrongGuess(codeID string) int {
	s := c.shard(codeID)
	s.mu.Lock()
	defer s.mu.Unlock()

	vc, ok := s.entries[codeID]
	if !ok {
		return 0
	}
	vc.WrongGuesses++
	return vc.WrongGuesses
}

// Delete removes an entry.
func (c *CodeCache) Delete(codeID string) {
	s := c.shard(codeID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, codeID)
}

// Sweep drops expired entries and returns how many were removed.
func (c *CodeCache) Sweep() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for id, vc := range s.entries {
			if vc.Expired(now) {
				delete(s.entries, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports the number of pending codes across all shards.
func (c *CodeCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
