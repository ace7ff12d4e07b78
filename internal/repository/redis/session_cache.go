package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"botops-console/internal/client"
	"botops-console/internal/models"
	"botops-console/internal/util"
)

const (
	sessionKeyPrefix = "session:"
	defaultOpTimeout = 5 * time.Second
)

// SessionCache is the hot path for session verification: a write-through
// copy of the Scylla session row keyed by token. A miss falls back to
// Scylla; an error is treated as a miss by callers.
type SessionCache struct {
	redisClient *client.RedisClient
}

func NewSessionCache(redisClient *client.RedisClient) *SessionCache {
	return &SessionCache{redisClient: redisClient}
}

func (c *SessionCache) sessionKey(token string) string {
	return sessionKeyPrefix + token
}

// Store caches a session until its expiry.
func (c *SessionCache) Store(ctx context.Context, session *models.Session, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := c.redisClient.Set(ctx, c.sessionKey(session.Token), data, ttl); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}

	return nil
}

// Get returns the cached session, or (nil, nil) on a miss.
func (c *SessionCache) Get(ctx context.Context, token string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	data, err := c.redisClient.Get(ctx, c.sessionKey(token))
	if err != nil {
		if isCacheMiss(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session cache: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		// Corrupt entry: drop it and report a miss
		util.Warn("Dropping corrupt session cache entry", zap.Error(err))
		_ = c.redisClient.Del(ctx, c.sessionKey(token))
		return nil, nil
	}

	// The JSON round trip strips the token field
	session.Token = token

	return &session, nil
}

// Invalidate removes a session from the cache.
func (c *SessionCache) Invalidate(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	if err := c.redisClient.Del(ctx, c.sessionKey(token)); err != nil {
		return fmt.Errorf("failed to invalidate session cache: %w", err)
	}

	return nil
}

func isCacheMiss(err error) bool {
	return errors.Is(err, goredis.Nil)
}
