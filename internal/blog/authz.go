package blog

import (
	"time"

	"github.com/sunublog/sunublog/internal/models"
)

// RequireActor fails with an AuthenticationError when no identity is present
func RequireActor(actor *models.User) error {
	if actor == nil || actor.ID == 0 {
		return AuthenticationError("Unauthenticated.")
	}
	return nil
}

// IsOwner reports whether actor owns an entity whose owner id is ownerID
func IsOwner(actor *models.User, ownerID int64) bool {
	return actor != nil && actor.ID != 0 && actor.ID == ownerID
}

// IsPubliclyVisible reports whether anyone may read the article at now
func IsPubliclyVisible(a *models.Article, now time.Time) bool {
	return a.Status == models.ArticleStatusPublished &&
		a.Visibility == models.VisibilityPublic &&
		(a.PublishedAt == nil || !a.PublishedAt.After(now))
}

// IsVisible reports whether viewer may read the article. Owners always can.
func IsVisible(viewer *models.User, a *models.Article, now time.Time) bool {
	return IsOwner(viewer, a.UserID) || IsPubliclyVisible(a, now)
}
