package blog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sunublog/sunublog/internal/db"
	"github.com/sunublog/sunublog/internal/models"
	"github.com/sunublog/sunublog/pkg/logging"
	"github.com/sunublog/sunublog/pkg/telemetry"
)

const (
	defaultCommentPageSize  = 20
	defaultBookmarkPageSize = 10
	commentRules            = "required,max=1000"
)

// CommentInput holds the fields of a new comment
type CommentInput struct {
	Content  string
	ParentID *int64
}

// LikeState is the outcome of a like toggle
type LikeState struct {
	Liked      bool  `json:"liked"`
	LikesCount int64 `json:"likes_count"`
}

// BookmarkState is the outcome of a bookmark toggle
type BookmarkState struct {
	Bookmarked     bool  `json:"bookmarked"`
	BookmarksCount int64 `json:"bookmarks_count"`
}

// EngagementService manages comments, likes and bookmarks
type EngagementService struct {
	repo          *db.Repository
	notifications *NotificationService
	now           Clock
	logger        *zap.Logger
}

// NewEngagementService creates a new engagement service
func NewEngagementService(repo *db.Repository, notifications *NotificationService, now Clock) *EngagementService {
	if now == nil {
		now = systemClock
	}
	return &EngagementService{
		repo:          repo,
		notifications: notifications,
		now:           now,
		logger:        logging.WithComponent("engagement-service"),
	}
}

// visibleArticle loads an article the actor may see, or fails with NotFound
func (s *EngagementService) visibleArticle(ctx context.Context, repo *db.Repository, id int64, actor *models.User) (*models.Article, error) {
	article, err := db.NewArticleRepository(repo).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if article == nil || !IsVisible(actor, article, s.now()) {
		return nil, NotFoundError("Article not found.")
	}
	return article, nil
}

// AddComment adds a comment, or a reply to a top-level comment, on an article
func (s *EngagementService) AddComment(ctx context.Context, articleID int64, actor *models.User, in CommentInput) (comment *models.Comment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "engagement.AddComment")
	span.SetAttributes(telemetry.Int64("article.id", articleID))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	if err := validateField("content", content, commentRules); err != nil {
		return nil, err
	}

	var notifyUserID int64
	comment = &models.Comment{
		UserID:    actor.ID,
		ArticleID: articleID,
		ParentID:  in.ParentID,
		Content:   content,
	}
	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		article, err := s.visibleArticle(ctx, tx, articleID, actor)
		if err != nil {
			return err
		}
		if !article.CommentsEnabled {
			return AuthorizationError("Comments are disabled for this article.")
		}

		comments := db.NewCommentRepository(tx)
		if in.ParentID != nil {
			parent, err := comments.GetByID(ctx, *in.ParentID)
			if err != nil {
				return err
			}
			if parent == nil || parent.ArticleID != articleID {
				return FieldError("parent_id", "must reference a comment on this article")
			}
			if parent.IsReply() {
				return FieldError("parent_id", "replies cannot be nested more than one level")
			}
		}

		if err := comments.Create(ctx, comment); err != nil {
			return err
		}
		if err := tx.AdjustCounter(ctx, models.Article{}.TableName(), "comments_count", articleID, 1); err != nil {
			return err
		}

		if article.UserID != actor.ID {
			notifyUserID = article.UserID
			return s.notifications.record(ctx, tx, article.UserID, models.NotifyTypeComment,
				"New comment",
				fmt.Sprintf("%s commented on \"%s\"", actor.Name, article.Title),
				map[string]interface{}{
					"user_id":    actor.ID,
					"article_id": articleID,
					"comment_id": comment.ID,
				})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if notifyUserID != 0 {
		s.notifications.invalidate(ctx, notifyUserID)
	}

	return db.NewCommentRepository(s.repo).GetByID(ctx, comment.ID)
}

// UpdateComment replaces the content of a comment owned by actor
func (s *EngagementService) UpdateComment(ctx context.Context, id int64, actor *models.User, content string) (*models.Comment, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if err := validateField("content", content, commentRules); err != nil {
		return nil, err
	}

	comments := db.NewCommentRepository(s.repo)
	comment, err := comments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if comment == nil {
		return nil, NotFoundError("Comment not found.")
	}
	if !IsOwner(actor, comment.UserID) {
		return nil, AuthorizationError("You are not allowed to update this comment.")
	}
	if err := comments.UpdateContent(ctx, id, content); err != nil {
		return nil, err
	}
	return comments.GetByID(ctx, id)
}

// DeleteComment removes a comment owned by actor together with its direct
// replies. The article's comments_count drops by the number of rows removed.
func (s *EngagementService) DeleteComment(ctx context.Context, id int64, actor *models.User) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "engagement.DeleteComment")
	span.SetAttributes(telemetry.Int64("comment.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(actor); err != nil {
		return err
	}

	return s.repo.Transaction(ctx, func(tx *db.Repository) error {
		comments := db.NewCommentRepository(tx)
		comment, err := comments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if comment == nil {
			return NotFoundError("Comment not found.")
		}
		if !IsOwner(actor, comment.UserID) {
			return AuthorizationError("You are not allowed to delete this comment.")
		}

		ids, err := comments.ReplyIDs(ctx, id)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		if err := comments.DeleteByIDs(ctx, ids); err != nil {
			return err
		}
		return tx.AdjustCounter(ctx, models.Article{}.TableName(), "comments_count", comment.ArticleID, -int64(len(ids)))
	})
}

// ListComments returns a page of top-level comments, newest first, with their replies
func (s *EngagementService) ListComments(ctx context.Context, articleID int64, viewer *models.User, page Page) (*Paginated[*models.Comment], error) {
	if _, err := s.visibleArticle(ctx, s.repo, articleID, viewer); err != nil {
		return nil, err
	}
	page = page.normalize(defaultCommentPageSize)
	comments, total, err := db.NewCommentRepository(s.repo).ListTopLevel(ctx, articleID, page.Offset(), page.Size)
	if err != nil {
		return nil, err
	}
	return paginate(comments, total, page), nil
}

// ToggleLike flips the actor's like on target and adjusts its likes_count
func (s *EngagementService) ToggleLike(ctx context.Context, target models.LikeTarget, actor *models.User) (state *LikeState, err error) {
	ctx, span := telemetry.StartSpan(ctx, "engagement.ToggleLike")
	span.SetAttributes(telemetry.Int64("target.id", target.ID))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, FieldError("target_kind", err.Error())
	}

	var notifyUserID int64
	state = &LikeState{}
	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		ownerID, title, err := s.likeTarget(ctx, tx, target, actor)
		if err != nil {
			return err
		}

		likes := db.NewLikeRepository(tx)
		removed, err := likes.Remove(ctx, actor.ID, target)
		if err != nil {
			return err
		}
		delta := int64(-1)
		if !removed {
			if err := likes.Create(ctx, &models.Like{UserID: actor.ID, TargetKind: target.Kind, TargetID: target.ID}); err != nil {
				return conflictOnDuplicate(err, "Like is being toggled concurrently, retry.")
			}
			delta = 1
		}
		if err := tx.AdjustCounter(ctx, target.Table(), "likes_count", target.ID, delta); err != nil {
			return err
		}
		count, err := tx.ReadCounter(ctx, target.Table(), "likes_count", target.ID)
		if err != nil {
			return err
		}
		state.Liked = !removed
		state.LikesCount = count

		if state.Liked && ownerID != actor.ID {
			notifyUserID = ownerID
			return s.notifications.record(ctx, tx, ownerID, models.NotifyTypeLike,
				"New like",
				fmt.Sprintf("%s liked your %s \"%s\"", actor.Name, target.Kind, title),
				map[string]interface{}{
					"user_id":     actor.ID,
					"target_kind": target.Kind,
					"target_id":   target.ID,
				})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if notifyUserID != 0 {
		s.notifications.invalidate(ctx, notifyUserID)
	}
	return state, nil
}

// likeTarget resolves the owner and a display label of a like target the actor may see
func (s *EngagementService) likeTarget(ctx context.Context, tx *db.Repository, target models.LikeTarget, actor *models.User) (int64, string, error) {
	if target.Kind == models.LikeKindArticle {
		article, err := s.visibleArticle(ctx, tx, target.ID, actor)
		if err != nil {
			return 0, "", err
		}
		return article.UserID, article.Title, nil
	}

	comment, err := db.NewCommentRepository(tx).GetByID(ctx, target.ID)
	if err != nil {
		return 0, "", err
	}
	if comment == nil {
		return 0, "", NotFoundError("Comment not found.")
	}
	if _, err := s.visibleArticle(ctx, tx, comment.ArticleID, actor); err != nil {
		return 0, "", NotFoundError("Comment not found.")
	}
	return comment.UserID, excerpt(comment.Content, 40), nil
}

// ToggleBookmark flips the actor's bookmark on an article and adjusts bookmarks_count
func (s *EngagementService) ToggleBookmark(ctx context.Context, articleID int64, actor *models.User) (state *BookmarkState, err error) {
	ctx, span := telemetry.StartSpan(ctx, "engagement.ToggleBookmark")
	span.SetAttributes(telemetry.Int64("article.id", articleID))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(actor); err != nil {
		return nil, err
	}

	state = &BookmarkState{}
	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		if _, err := s.visibleArticle(ctx, tx, articleID, actor); err != nil {
			return err
		}

		bookmarks := db.NewBookmarkRepository(tx)
		removed, err := bookmarks.Remove(ctx, actor.ID, articleID)
		if err != nil {
			return err
		}
		delta := int64(-1)
		if !removed {
			if err := bookmarks.Create(ctx, &models.Bookmark{UserID: actor.ID, ArticleID: articleID}); err != nil {
				return conflictOnDuplicate(err, "Bookmark is being toggled concurrently, retry.")
			}
			delta = 1
		}
		table := models.Article{}.TableName()
		if err := tx.AdjustCounter(ctx, table, "bookmarks_count", articleID, delta); err != nil {
			return err
		}
		count, err := tx.ReadCounter(ctx, table, "bookmarks_count", articleID)
		if err != nil {
			return err
		}
		state.Bookmarked = !removed
		state.BookmarksCount = count
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ListBookmarks returns a page of the actor's bookmarks, newest first
func (s *EngagementService) ListBookmarks(ctx context.Context, actor *models.User, page Page) (*Paginated[*models.Bookmark], error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	page = page.normalize(defaultBookmarkPageSize)
	items, total, err := db.NewBookmarkRepository(s.repo).ListByUser(ctx, actor.ID, page.Offset(), page.Size)
	if err != nil {
		return nil, err
	}
	return paginate(items, total, page), nil
}

// excerpt shortens s to at most n runes
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
