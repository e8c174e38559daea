package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sunublog/sunublog/pkg/config"
	"github.com/sunublog/sunublog/pkg/logging"
)

const keyPrefix = "sunublog:"

// unreadTTL bounds how stale a cached unread count can get if an invalidation is lost
const unreadTTL = 10 * time.Minute

// unreadVersionTTL outlives any cached count; an expired version only makes
// an in-flight write miss
const unreadVersionTTL = 24 * time.Hour

// setUnreadScript stores the count only while the version still matches the
// one read before the count was computed
var setUnreadScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

var (
	// ErrCacheDisabled is returned when cache operations are attempted but cache is disabled
	ErrCacheDisabled = errors.New("cache is disabled")
)

// Cache wraps Redis client
type Cache struct {
	client *redis.Client
}

// New creates a new Redis cache client. It returns a nil *Cache when Redis is
// disabled; every method is safe to call on a nil receiver.
func New(cfg *config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Redis cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return &Cache{client: client}, nil
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

func (c *Cache) namespaceKey(key string) string {
	return keyPrefix + key
}

// Get retrieves a value from cache
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if !c.enabled() {
		return "", ErrCacheDisabled
	}
	return c.client.Get(ctx, c.namespaceKey(key)).Result()
}

// Set sets a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.enabled() {
		return ErrCacheDisabled
	}
	return c.client.Set(ctx, c.namespaceKey(key), value, ttl).Err()
}

// Delete removes a key from cache
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.enabled() {
		return ErrCacheDisabled
	}
	return c.client.Del(ctx, c.namespaceKey(key)).Err()
}

// Exists checks if a key exists
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if !c.enabled() {
		return false, ErrCacheDisabled
	}
	count, err := c.client.Exists(ctx, c.namespaceKey(key)).Result()
	return count > 0, err
}

func revokedTokenKey(jti string) string {
	return "auth:revoked:" + jti
}

func unreadCountKey(userID int64) string {
	return "notifications:unread:" + strconv.FormatInt(userID, 10)
}

func unreadVersionKey(userID int64) string {
	return "notifications:unread-version:" + strconv.FormatInt(userID, 10)
}

// RevokeToken records jti as revoked until the token would have expired anyway
func (c *Cache) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.Set(ctx, revokedTokenKey(jti), 1, ttl)
}

// IsTokenRevoked reports whether jti was revoked
func (c *Cache) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return c.Exists(ctx, revokedTokenKey(jti))
}

// UnreadCount returns the cached unread notification count. The bool is
// false on a cache miss.
func (c *Cache) UnreadCount(ctx context.Context, userID int64) (int64, bool, error) {
	val, err := c.Get(ctx, unreadCountKey(userID))
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt unread count %q: %w", val, err)
	}
	return n, true, nil
}

// UnreadVersion returns the invalidation generation of userID's unread
// count. Read it before computing the count passed to SetUnreadCount.
func (c *Cache) UnreadVersion(ctx context.Context, userID int64) (int64, error) {
	val, err := c.Get(ctx, unreadVersionKey(userID))
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt unread version %q: %w", val, err)
	}
	return v, nil
}

// SetUnreadCount caches count for userID unless the count was invalidated
// after version was read. It reports whether the value was stored.
func (c *Cache) SetUnreadCount(ctx context.Context, userID, count, version int64) (bool, error) {
	if !c.enabled() {
		return false, ErrCacheDisabled
	}
	keys := []string{
		c.namespaceKey(unreadCountKey(userID)),
		c.namespaceKey(unreadVersionKey(userID)),
	}
	stored, err := setUnreadScript.Run(ctx, c.client, keys, count, version, unreadTTL.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// InvalidateUnreadCount bumps the version and drops the cached unread count for userID
func (c *Cache) InvalidateUnreadCount(ctx context.Context, userID int64) error {
	if !c.enabled() {
		return ErrCacheDisabled
	}
	versionKey := c.namespaceKey(unreadVersionKey(userID))
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, unreadVersionTTL)
		pipe.Del(ctx, c.namespaceKey(unreadCountKey(userID)))
		return nil
	})
	return err
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if !c.enabled() {
		return nil
	}
	return c.client.Close()
}

// Health checks Redis health
func (c *Cache) Health(ctx context.Context) error {
	if !c.enabled() {
		return ErrCacheDisabled
	}
	return c.client.Ping(ctx).Err()
}
