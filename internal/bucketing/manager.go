package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// BucketingManager assigns consistent buckets from murmur3 hashes. The auth
// service uses it to stripe its in-memory maps; the repositories use it to
// pick partition buckets for user and event rows.
type BucketingManager struct {
	userBuckets  int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewBucketingManager(userBuckets, eventBuckets int) *BucketingManager {
	bm := &BucketingManager{
		userBuckets:  userBuckets,
		eventBuckets: eventBuckets,
	}

	// Pool of hash functions to avoid allocation overhead on hot paths
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetUserBucket returns the consistent bucket for a user key (0..userBuckets-1)
func (bm *BucketingManager) GetUserBucket(key string) int {
	return bm.getBucket(key, bm.userBuckets)
}

// GetEventBucket returns the bucket for audit events
func (bm *BucketingManager) GetEventBucket(identifier string) int {
	return bm.getBucket(identifier, bm.eventBuckets)
}

// GetShard maps a key onto one of n shards; used for lock striping
func (bm *BucketingManager) GetShard(key string, n int) int {
	return bm.getBucket(key, n)
}

// GetDateBucket returns the UTC date partition for event rows
func (bm *BucketingManager) GetDateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (bm *BucketingManager) getBucket(key string, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}
	return int(bm.getHash(key) % uint64(numBuckets))
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}

func (bm *BucketingManager) GetUserBuckets() int {
	return bm.userBuckets
}

func (bm *BucketingManager) GetEventBuckets() int {
	return bm.eventBuckets
}
