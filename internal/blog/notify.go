package blog

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/sunublog/sunublog/internal/cache"
	"github.com/sunublog/sunublog/internal/db"
	"github.com/sunublog/sunublog/internal/models"
	"github.com/sunublog/sunublog/pkg/logging"
	"github.com/sunublog/sunublog/pkg/telemetry"
)

const defaultNotificationPageSize = 20

// NotificationService stores and reads per-user notifications
type NotificationService struct {
	repo   *db.Repository
	cache  *cache.Cache
	now    Clock
	logger *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(repo *db.Repository, c *cache.Cache, now Clock) *NotificationService {
	if now == nil {
		now = systemClock
	}
	return &NotificationService{
		repo:   repo,
		cache:  c,
		now:    now,
		logger: logging.WithComponent("notification-service"),
	}
}

// Notify creates an unread notification for recipientID
func (s *NotificationService) Notify(ctx context.Context, recipientID int64, typ, title, message string, metadata map[string]interface{}) (n *models.Notification, err error) {
	ctx, span := telemetry.StartSpan(ctx, "notifications.Notify")
	defer func() { telemetry.EndSpan(span, err) }()

	n, err = newNotification(recipientID, typ, title, message, metadata)
	if err != nil {
		return nil, err
	}

	users := db.NewUserRepository(s.repo)
	recipient, err := users.GetByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, NotFoundError("Recipient not found.")
	}

	if err := db.NewNotificationRepository(s.repo).Create(ctx, n); err != nil {
		return nil, err
	}
	s.invalidate(ctx, recipientID)
	return n, nil
}

// record writes a notification inside the caller's transaction. The caller
// invalidates the unread count once the transaction commits.
func (s *NotificationService) record(ctx context.Context, tx *db.Repository, recipientID int64, typ, title, message string, metadata map[string]interface{}) error {
	n, err := newNotification(recipientID, typ, title, message, metadata)
	if err != nil {
		return err
	}
	return db.NewNotificationRepository(tx).Create(ctx, n)
}

// newNotification builds an unread notification and checks its fields
func newNotification(recipientID int64, typ, title, message string, metadata map[string]interface{}) (*models.Notification, error) {
	n := &models.Notification{
		UserID:   recipientID,
		Type:     strings.TrimSpace(typ),
		Title:    strings.TrimSpace(title),
		Message:  strings.TrimSpace(message),
		Metadata: metadata,
	}
	if err := collect(
		validateField("type", n.Type, "required,max=50"),
		validateField("title", n.Title, "required,max=255"),
		validateField("message", n.Message, "required"),
	); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NotificationService) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.InvalidateUnreadCount(ctx, userID); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("Failed to invalidate unread count", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// List returns a page of the actor's notifications, newest first
func (s *NotificationService) List(ctx context.Context, actor *models.User, page Page, unreadOnly bool) (*Paginated[*models.Notification], error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	page = page.normalize(defaultNotificationPageSize)
	items, total, err := db.NewNotificationRepository(s.repo).ListByUser(ctx, actor.ID, unreadOnly, page.Offset(), page.Size)
	if err != nil {
		return nil, err
	}
	return paginate(items, total, page), nil
}

// MarkRead marks one of the actor's notifications read. Marking a read
// notification again is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, id int64, actor *models.User) (*models.Notification, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	notifications := db.NewNotificationRepository(s.repo)
	n, err := notifications.GetForUser(ctx, id, actor.ID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, NotFoundError("Notification not found.")
	}
	if n.IsRead() {
		return n, nil
	}

	now := s.now()
	if err := notifications.MarkRead(ctx, id, now); err != nil {
		return nil, err
	}
	n.ReadAt = &now
	s.invalidate(ctx, actor.ID)
	return n, nil
}

// MarkAllRead marks every unread notification of the actor read and returns how many changed
func (s *NotificationService) MarkAllRead(ctx context.Context, actor *models.User) (int64, error) {
	if err := RequireActor(actor); err != nil {
		return 0, err
	}
	n, err := db.NewNotificationRepository(s.repo).MarkAllRead(ctx, actor.ID, s.now())
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, actor.ID)
	return n, nil
}

// UnreadCount returns the number of unread notifications of the actor
func (s *NotificationService) UnreadCount(ctx context.Context, actor *models.User) (int64, error) {
	if err := RequireActor(actor); err != nil {
		return 0, err
	}

	count, hit, err := s.cache.UnreadCount(ctx, actor.ID)
	if err == nil && hit {
		return count, nil
	}
	if err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("Unread count cache read failed", zap.Int64("user_id", actor.ID), zap.Error(err))
	}

	// The version is read first so a write racing this count skips the cache
	version, versionErr := s.cache.UnreadVersion(ctx, actor.ID)
	count, err = db.NewNotificationRepository(s.repo).CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, err
	}
	if versionErr != nil {
		if !errors.Is(versionErr, cache.ErrCacheDisabled) {
			s.logger.Warn("Unread count version read failed", zap.Int64("user_id", actor.ID), zap.Error(versionErr))
		}
		return count, nil
	}
	if _, err := s.cache.SetUnreadCount(ctx, actor.ID, count, version); err != nil {
		s.logger.Warn("Unread count cache write failed", zap.Int64("user_id", actor.ID), zap.Error(err))
	}
	return count, nil
}

// Delete removes one of the actor's notifications
func (s *NotificationService) Delete(ctx context.Context, id int64, actor *models.User) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	notifications := db.NewNotificationRepository(s.repo)
	n, err := notifications.GetForUser(ctx, id, actor.ID)
	if err != nil {
		return err
	}
	if n == nil {
		return NotFoundError("Notification not found.")
	}
	if err := notifications.Delete(ctx, id); err != nil {
		return err
	}
	if !n.IsRead() {
		s.invalidate(ctx, actor.ID)
	}
	return nil
}
