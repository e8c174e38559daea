package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/sunublog/sunublog/pkg/config"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	c, err := New(&config.RedisConfig{Enabled: true, URL: "redis://" + srv.Addr()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_NamespaceKey(t *testing.T) {
	cache := &Cache{}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "simple key",
			key:      "test",
			expected: "sunublog:test",
		},
		{
			name:     "revoked token key",
			key:      revokedTokenKey("abc"),
			expected: "sunublog:auth:revoked:abc",
		},
		{
			name:     "unread count key",
			key:      unreadCountKey(42),
			expected: "sunublog:notifications:unread:42",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "sunublog:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cache.namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestNewDisabled(t *testing.T) {
	c, err := New(&config.RedisConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c != nil {
		t.Fatalf("New() = %v, want nil cache when disabled", c)
	}
}

func TestNilCacheIsDisabled(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Get() error = %v, want ErrCacheDisabled", err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Set() error = %v, want ErrCacheDisabled", err)
	}
	if _, err := c.IsTokenRevoked(ctx, "jti"); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("IsTokenRevoked() error = %v, want ErrCacheDisabled", err)
	}
	if stored, err := c.SetUnreadCount(ctx, 1, 1, 0); stored || !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("SetUnreadCount() = %v, %v; want not stored with ErrCacheDisabled", stored, err)
	}
	if err := c.InvalidateUnreadCount(ctx, 1); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("InvalidateUnreadCount() error = %v, want ErrCacheDisabled", err)
	}
	if _, hit, err := c.UnreadCount(ctx, 1); hit || !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("UnreadCount() = hit %v, err %v; want miss with ErrCacheDisabled", hit, err)
	}
	if err := c.RevokeToken(ctx, "jti", 0); err != nil {
		t.Errorf("RevokeToken() with expired ttl = %v, want nil", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestUnreadCountVersioning(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	const user = int64(7)

	unread := func() (int64, bool) {
		t.Helper()
		n, hit, err := c.UnreadCount(ctx, user)
		if err != nil {
			t.Fatalf("UnreadCount() error = %v", err)
		}
		return n, hit
	}
	version := func() int64 {
		t.Helper()
		v, err := c.UnreadVersion(ctx, user)
		if err != nil {
			t.Fatalf("UnreadVersion() error = %v", err)
		}
		return v
	}

	if _, hit := unread(); hit {
		t.Fatal("UnreadCount() hit on an empty cache")
	}

	v0 := version()
	stored, err := c.SetUnreadCount(ctx, user, 3, v0)
	if err != nil || !stored {
		t.Fatalf("SetUnreadCount() = %v, %v; want stored", stored, err)
	}
	if n, hit := unread(); !hit || n != 3 {
		t.Fatalf("UnreadCount() = %d, %v; want 3, hit", n, hit)
	}

	// A reader that computed its count before an invalidation must not
	// overwrite the fresher state
	v1 := version()
	if err := c.InvalidateUnreadCount(ctx, user); err != nil {
		t.Fatalf("InvalidateUnreadCount() error = %v", err)
	}
	if _, hit := unread(); hit {
		t.Error("UnreadCount() hit after invalidation")
	}
	stored, err = c.SetUnreadCount(ctx, user, 3, v1)
	if err != nil {
		t.Fatalf("SetUnreadCount() error = %v", err)
	}
	if stored {
		t.Error("SetUnreadCount() stored a count computed before the invalidation")
	}
	if _, hit := unread(); hit {
		t.Error("UnreadCount() hit after a rejected write")
	}

	v2 := version()
	if v2 != v1+1 {
		t.Errorf("UnreadVersion() = %d, want %d", v2, v1+1)
	}
	stored, err = c.SetUnreadCount(ctx, user, 4, v2)
	if err != nil || !stored {
		t.Fatalf("SetUnreadCount() = %v, %v; want stored", stored, err)
	}
	if n, hit := unread(); !hit || n != 4 {
		t.Errorf("UnreadCount() = %d, %v; want 4, hit", n, hit)
	}
}

func TestTokenRevocation(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.RevokeToken(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}

	tests := []struct {
		jti  string
		want bool
	}{
		{"jti-1", true},
		{"jti-2", false},
	}
	for _, tt := range tests {
		t.Run(tt.jti, func(t *testing.T) {
			got, err := c.IsTokenRevoked(ctx, tt.jti)
			if err != nil {
				t.Fatalf("IsTokenRevoked() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsTokenRevoked() = %v, want %v", got, tt.want)
			}
		})
	}

	if err := c.Health(ctx); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}
