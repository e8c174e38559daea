package blog

import (
	"time"

	"github.com/sunublog/sunublog/internal/cache"
	"github.com/sunublog/sunublog/internal/db"
)

// Clock returns the current time. Services store times in UTC.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// Options configures NewServices
type Options struct {
	// Cache is optional; a nil cache disables unread-count caching
	Cache *cache.Cache
	Clock Clock
}

// Services bundles the domain services sharing one repository
type Services struct {
	Content       *ContentService
	Engagement    *EngagementService
	Social        *SocialService
	Notifications *NotificationService
	Identity      *IdentityService
}

// NewServices wires every domain service
func NewServices(repo *db.Repository, opts Options) *Services {
	clock := opts.Clock
	if clock == nil {
		clock = systemClock
	}
	now := func() time.Time { return clock().UTC() }

	notifications := NewNotificationService(repo, opts.Cache, now)
	return &Services{
		Content:       NewContentService(repo, now),
		Engagement:    NewEngagementService(repo, notifications, now),
		Social:        NewSocialService(repo, notifications, now),
		Notifications: notifications,
		Identity:      NewIdentityService(repo, now),
	}
}
