package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botops-console/internal/bucketing"
	"botops-console/internal/models"
)

func newTestCodeCache(t *testing.T, clock *testClock) *CodeCache {
	t.Helper()
	c := NewCodeCache(bucketing.NewBucketingManager(8, 8))
	c.now = clock.Now
	return c
}

func storedCode(id string, expiresAt time.Time) *models.VerificationCode {
	return &models.VerificationCode{
		CodeID:        id,
		Code:          "123456",
		Email:         "a@b.com",
		SourceAddress: "1.2.3.4",
		ExpiresAt:     expiresAt,
	}
}

func TestCodeCacheStoreGetDelete(t *testing.T) {
	clock := &testClock{t: time.Now()}
	c := newTestCodeCache(t, clock)

	c.Store(storedCode("id-1", clock.Now().Add(time.Minute)))

	vc, ok := c.Get("id-1")
	require.True(t, ok)
	assert.Equal(t, "123456", vc.Code)

	_, ok = c.Get("id-2")
	assert.False(t, ok)

	c.Delete("id-1")
	_, ok = c.Get("id-1")
	assert.False(t, ok)
}

func TestCodeCacheGetReturnsCopy(t *testing.T) {
	clock := &testClock{t: time.Now()}
	c := newTestCodeCache(t, clock)
	c.Store(storedCode("id-1", clock.Now().Add(time.Minute)))

	vc, _ := c.Get("id-1")
	vc.Code = "tampered"

	again, _ := c.Get("id-1")
	assert.Equal(t, "123456", again.Code)
}

func TestCodeCacheMarkUsedIsOneShot(t *testing.T) {
	clock := &testClock{t: time.Now()}
	c := newTestCodeCache(t, clock)
	c.Store(storedCode("id-1", clock.Now().Add(time.Minute)))

	assert.True(t, c.MarkUsed("id-1"))
	assert.False(t, c.MarkUsed("id-1"))
	assert.False(t, c.MarkUsed("missing"))

	vc, ok := c.Get("id-1")
	require.True(t, ok)
	assert.True(t, vc.Used)
}

func TestCodeCacheRecordWrongGuess(t *testing.T) {
	clock := &testClock{t: time.Now()}
	c := newTestCodeCache(t, clock)
	c.Store(storedCode("id-1", clock.Now().Add(time.Minute)))

	assert.Equal(t, 1, c.RecordWrongGuess("id-1"))
	assert.Equal(t, 2, c.RecordWrongGuess("id-1"))
	assert.Equal(t, 0, c.RecordWrongGuess("missing"))
}

func TestCodeCacheSweep(t *testing.T) {
	clock := &testClock{t: time.Now()}
	c := newTestCodeCache(t, clock)

	for i := 0; i < 5; i++ {
		c.Store(storedCode(fmt.Sprintf("old-%d", i), clock.Now().Add(time.Minute)))
	}
	c.Store(storedCode("fresh", clock.Now().Add(time.Hour)))
	require.Equal(t, 6, c.Len())

	clock.Advance(2 * time.Minute)

	assert.Equal(t, 5, c.Sweep())
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}
