package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sunublog/sunublog/internal/models"
	"github.com/sunublog/sunublog/pkg/slug"
)

// maxSlugAttempts bounds the "-2", "-3", ... suffix search for a free slug
const maxSlugAttempts = 100

// ErrSlugExhausted is returned when no free slug suffix is found
var ErrSlugExhausted = errors.New("no free slug available")

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn inside a database transaction. The repository passed
// to fn is bound to the transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// counterExpr increments column by delta, clamping decrements at zero
func counterExpr(column string, delta int64) clause.Expr {
	if delta >= 0 {
		return gorm.Expr(column+" + ?", delta)
	}
	return gorm.Expr("CASE WHEN "+column+" > ? THEN "+column+" - ? ELSE 0 END", -delta, -delta)
}

// AdjustCounter atomically adds delta to a denormalized counter column
func (r *Repository) AdjustCounter(ctx context.Context, table, column string, id, delta int64) error {
	if delta == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Table(table).Where("id = ?", id).
		UpdateColumn(column, counterExpr(column, delta)).Error
}

// ReadCounter reads the current value of a counter column
func (r *Repository) ReadCounter(ctx context.Context, table, column string, id int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Table(table).Select(column).Where("id = ?", id).Row().Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// UserRepository provides user-related database operations
type UserRepository struct {
	*Repository
}

// NewUserRepository creates a new user repository
func NewUserRepository(repo *Repository) *UserRepository {
	return &UserRepository{Repository: repo}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByIdentifier retrieves a user by email, username or phone
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("email = ? OR username = ? OR phone = ?", identifier, identifier, identifier).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// IsTaken reports whether another user already holds value in column
func (r *UserRepository) IsTaken(ctx context.Context, column, value string, excludeID int64) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&models.User{}).Where(clause.Eq{Column: clause.Column{Name: column}, Value: value})
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// UpdateFields updates the given columns of a user
func (r *UserRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields).Error
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern builds a case-folded LIKE pattern that matches s literally.
// Use it with ESCAPE '!'.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// Search matches query against name, username and email, case-insensitively
func (r *UserRepository) Search(ctx context.Context, query string, excludeID int64, limit int) ([]*models.User, error) {
	like := containsPattern(query)
	var users []*models.User
	err := r.db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Where("LOWER(name) LIKE ? ESCAPE '!' OR LOWER(username) LIKE ? ESCAPE '!' OR LOWER(email) LIKE ? ESCAPE '!'", like, like, like).
		Order("name ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Delete removes a user row
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.User{}, id).Error
}

// ArticleQuery selects a page of articles.
// With ViewerID zero only publicly visible articles match. Otherwise Status and
// Visibility are applied and rows that are not publicly visible must belong
// to the viewer.
type ArticleQuery struct {
	Search     string
	TagSlug    string
	Author     string
	Status     string
	Visibility string
	ViewerID   int64
	Now        time.Time
	SortColumn string
	Desc       bool
	Offset     int
	Limit      int
}

const publiclyVisible = "articles.status = ? AND articles.visibility = ? AND (articles.published_at IS NULL OR articles.published_at <= ?)"

func (q ArticleQuery) apply(tx *gorm.DB) *gorm.DB {
	if q.Search != "" {
		like := containsPattern(q.Search)
		tx = tx.Where("(LOWER(articles.title) LIKE ? ESCAPE '!' OR LOWER(articles.excerpt) LIKE ? ESCAPE '!' OR LOWER(articles.content) LIKE ? ESCAPE '!')", like, like, like)
	}
	if q.TagSlug != "" {
		tx = tx.Where("articles.id IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).Table("article_tags").
				Select("article_tags.article_id").
				Joins("JOIN tags ON tags.id = article_tags.tag_id").
				Where("tags.slug = ?", q.TagSlug))
	}
	if q.Author != "" {
		tx = tx.Where("articles.user_id IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).Table("users").Select("id").Where("username = ?", q.Author))
	}

	if q.ViewerID == 0 {
		return tx.Where(publiclyVisible, models.ArticleStatusPublished, models.VisibilityPublic, q.Now)
	}
	if q.Status != "" {
		tx = tx.Where("articles.status = ?", q.Status)
	}
	if q.Visibility != "" {
		tx = tx.Where("articles.visibility = ?", q.Visibility)
	}
	return tx.Where("(articles.user_id = ? OR ("+publiclyVisible+"))",
		q.ViewerID, models.ArticleStatusPublished, models.VisibilityPublic, q.Now)
}

// ArticleRepository provides article-related database operations
type ArticleRepository struct {
	*Repository
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(repo *Repository) *ArticleRepository {
	return &ArticleRepository{Repository: repo}
}

// GetByID retrieves an article by ID with its owner and tags
func (r *ArticleRepository) GetByID(ctx context.Context, id int64) (*models.Article, error) {
	var article models.Article
	err := r.db.WithContext(ctx).Preload("User").Preload("Tags").First(&article, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &article, nil
}

// GetBySlug retrieves an article by slug with its owner and tags
func (r *ArticleRepository) GetBySlug(ctx context.Context, s string) (*models.Article, error) {
	var article models.Article
	err := r.db.WithContext(ctx).Preload("User").Preload("Tags").Where("slug = ?", s).First(&article).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &article, nil
}

// UniqueSlug derives a slug from title that no other article uses
func (r *ArticleRepository) UniqueSlug(ctx context.Context, title string, excludeID int64) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "article"
	}
	return uniqueSlug(ctx, r.db, models.Article{}.TableName(), base, excludeID)
}

func uniqueSlug(ctx context.Context, db *gorm.DB, table, base string, excludeID int64) (string, error) {
	for n := 1; n <= maxSlugAttempts; n++ {
		candidate := slug.WithSuffix(base, n)
		var count int64
		q := db.WithContext(ctx).Table(table).Where("slug = ?", candidate)
		if excludeID != 0 {
			q = q.Where("id <> ?", excludeID)
		}
		if err := q.Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", ErrSlugExhausted
}

// Create creates a new article without touching its tag associations
func (r *ArticleRepository) Create(ctx context.Context, article *models.Article) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(article).Error
}

// UpdateFields updates the given columns of an article
func (r *ArticleRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Article{}).Where("id = ?", id).Updates(fields).Error
}

// IncrementViews adds one view to an article
func (r *ArticleRepository) IncrementViews(ctx context.Context, id int64) error {
	return r.AdjustCounter(ctx, models.Article{}.TableName(), "views", id, 1)
}

// List returns a page of articles matching q together with the total match count.
// It issues its two queries concurrently and must not be called on a
// transaction-bound repository.
func (r *ArticleRepository) List(ctx context.Context, q ArticleQuery) ([]*models.Article, int64, error) {
	var (
		articles []*models.Article
		total    int64
	)

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		return q.apply(r.db.WithContext(ctx).Model(&models.Article{})).Count(&total).Error
	})
	p.Go(func(ctx context.Context) error {
		return q.apply(r.db.WithContext(ctx).Model(&models.Article{})).
			Preload("User").
			Preload("Tags").
			Order(clause.OrderByColumn{Column: clause.Column{Table: "articles", Name: q.SortColumn}, Desc: q.Desc}).
			Order(clause.OrderByColumn{Column: clause.Column{Table: "articles", Name: "id"}, Desc: q.Desc}).
			Offset(q.Offset).
			Limit(q.Limit).
			Find(&articles).Error
	})
	if err := p.Wait(); err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

// IDsByUser returns the ids of every article owned by userID
func (r *ArticleRepository) IDsByUser(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.Article{}).Where("user_id = ?", userID).Pluck("id", &ids).Error
	return ids, err
}

// Delete removes an article row
func (r *ArticleRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.Article{}, id).Error
}

// PublishDue publishes up to limit scheduled articles whose scheduled_at is
// not after now. published_at takes the scheduled time unless already set.
func (r *ArticleRepository) PublishDue(ctx context.Context, now time.Time, limit int) (int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.Article{}).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", models.ArticleStatusScheduled, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	result := r.db.WithContext(ctx).Model(&models.Article{}).
		Where("id IN ? AND status = ?", ids, models.ArticleStatusScheduled).
		Updates(map[string]interface{}{
			"status":       models.ArticleStatusPublished,
			"published_at": gorm.Expr("COALESCE(published_at, scheduled_at)"),
			"updated_at":   now,
		})
	return result.RowsAffected, result.Error
}

// TagRepository provides tag-related database operations
type TagRepository struct {
	*Repository
}

// NewTagRepository creates a new tag repository
func NewTagRepository(repo *Repository) *TagRepository {
	return &TagRepository{Repository: repo}
}

// FindOrCreate returns the tag named name, creating it with a derived slug if absent
func (r *TagRepository) FindOrCreate(ctx context.Context, name string) (*models.Tag, error) {
	var tag models.Tag
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&tag).Error
	if err == nil {
		return &tag, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	base := slug.Make(name)
	if base == "" {
		base = "tag"
	}
	s, err := uniqueSlug(ctx, r.db, models.Tag{}.TableName(), base, 0)
	if err != nil {
		return nil, err
	}
	tag = models.Tag{Name: name, Slug: s}
	if err := r.db.WithContext(ctx).Create(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// TagIDsForArticle returns the ids of tags attached to an article
func (r *TagRepository) TagIDsForArticle(ctx context.Context, articleID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.ArticleTag{}).Where("article_id = ?", articleID).Pluck("tag_id", &ids).Error
	return ids, err
}

// Attach associates tagIDs with an article and bumps their article counts
func (r *TagRepository) Attach(ctx context.Context, articleID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	rows := make([]models.ArticleTag, 0, len(tagIDs))
	for _, id := range tagIDs {
		rows = append(rows, models.ArticleTag{ArticleID: articleID, TagID: id})
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.Tag{}).Where("id IN ?", tagIDs).
		UpdateColumn("articles_count", counterExpr("articles_count", 1)).Error
}

// Detach removes tagIDs from an article and lowers their article counts
func (r *TagRepository) Detach(ctx context.Context, articleID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("article_id = ? AND tag_id IN ?", articleID, tagIDs).
		Delete(&models.ArticleTag{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.Tag{}).Where("id IN ?", tagIDs).
		UpdateColumn("articles_count", counterExpr("articles_count", -1)).Error
}

// List returns every tag, most used first
func (r *TagRepository) List(ctx context.Context) ([]*models.Tag, error) {
	var tags []*models.Tag
	if err := r.db.WithContext(ctx).Order("articles_count DESC, name ASC").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// CommentRepository provides comment-related database operations
type CommentRepository struct {
	*Repository
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(repo *Repository) *CommentRepository {
	return &CommentRepository{Repository: repo}
}

// GetByID retrieves a comment by ID
func (r *CommentRepository) GetByID(ctx context.Context, id int64) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("User").First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &comment, nil
}

// Create creates a new comment
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error
}

// UpdateContent replaces the content of a comment
func (r *CommentRepository) UpdateContent(ctx context.Context, id int64, content string) error {
	return r.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", id).Update("content", content).Error
}

// ListTopLevel returns top-level comments of an article, newest first, with
// their replies in conversation order
func (r *CommentRepository) ListTopLevel(ctx context.Context, articleID int64, offset, limit int) ([]*models.Comment, int64, error) {
	var (
		comments []*models.Comment
		total    int64
	)
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.Comment{}).Where("article_id = ? AND parent_id IS NULL", articleID)
	}
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := base().
		Preload("User").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Replies.User").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

// ReplyIDs returns the ids of the direct replies to a comment
func (r *CommentRepository) ReplyIDs(ctx context.Context, parentID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.Comment{}).Where("parent_id = ?", parentID).Pluck("id", &ids).Error
	return ids, err
}

// DeleteByIDs removes comments and the likes on them
func (r *CommentRepository) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("target_kind = ? AND target_id IN ?", models.LikeKindComment, ids).
		Delete(&models.Like{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Comment{}).Error
}

// IDsByArticle returns the ids of every comment on an article
func (r *CommentRepository) IDsByArticle(ctx context.Context, articleID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.Comment{}).Where("article_id = ?", articleID).Pluck("id", &ids).Error
	return ids, err
}

// ByUser returns every comment written by userID
func (r *CommentRepository) ByUser(ctx context.Context, userID int64) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&comments).Error
	return comments, err
}

// LikeRepository provides like-related database operations
type LikeRepository struct {
	*Repository
}

// NewLikeRepository creates a new like repository
func NewLikeRepository(repo *Repository) *LikeRepository {
	return &LikeRepository{Repository: repo}
}

// Remove deletes the like of userID on target and reports whether one existed
func (r *LikeRepository) Remove(ctx context.Context, userID int64, target models.LikeTarget) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND target_kind = ? AND target_id = ?", userID, target.Kind, target.ID).
		Delete(&models.Like{})
	return res.RowsAffected > 0, res.Error
}

// Create creates a new like
func (r *LikeRepository) Create(ctx context.Context, like *models.Like) error {
	return r.db.WithContext(ctx).Create(like).Error
}

// Exists reports whether userID likes target
func (r *LikeRepository) Exists(ctx context.Context, userID int64, target models.LikeTarget) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("user_id = ? AND target_kind = ? AND target_id = ?", userID, target.Kind, target.ID).
		Count(&count).Error
	return count > 0, err
}

// ByUser returns every like placed by userID
func (r *LikeRepository) ByUser(ctx context.Context, userID int64) ([]*models.Like, error) {
	var likes []*models.Like
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&likes).Error
	return likes, err
}

// DeleteByTarget removes every like on the given targets
func (r *LikeRepository) DeleteByTarget(ctx context.Context, kind string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("target_kind = ? AND target_id IN ?", kind, ids).Delete(&models.Like{}).Error
}

// DeleteByUser removes every like placed by userID
func (r *LikeRepository) DeleteByUser(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Like{}).Error
}

// BookmarkRepository provides bookmark-related database operations
type BookmarkRepository struct {
	*Repository
}

// NewBookmarkRepository creates a new bookmark repository
func NewBookmarkRepository(repo *Repository) *BookmarkRepository {
	return &BookmarkRepository{Repository: repo}
}

// Remove deletes the bookmark of userID on articleID and reports whether one existed
func (r *BookmarkRepository) Remove(ctx context.Context, userID, articleID int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND article_id = ?", userID, articleID).Delete(&models.Bookmark{})
	return res.RowsAffected > 0, res.Error
}

// Create creates a new bookmark
func (r *BookmarkRepository) Create(ctx context.Context, bookmark *models.Bookmark) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(bookmark).Error
}

// Exists reports whether userID bookmarked articleID
func (r *BookmarkRepository) Exists(ctx context.Context, userID, articleID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Bookmark{}).
		Where("user_id = ? AND article_id = ?", userID, articleID).Count(&count).Error
	return count > 0, err
}

// ListByUser returns a page of a user's bookmarks, newest first, with articles
func (r *BookmarkRepository) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*models.Bookmark, int64, error) {
	var (
		bookmarks []*models.Bookmark
		total     int64
	)
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.Bookmark{}).Where("user_id = ?", userID)
	}
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := base().
		Preload("Article").
		Preload("Article.User").
		Preload("Article.Tags").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&bookmarks).Error
	if err != nil {
		return nil, 0, err
	}
	return bookmarks, total, nil
}

// ByUser returns every bookmark of userID
func (r *BookmarkRepository) ByUser(ctx context.Context, userID int64) ([]*models.Bookmark, error) {
	var bookmarks []*models.Bookmark
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&bookmarks).Error
	return bookmarks, err
}

// DeleteByArticle removes every bookmark of an article
func (r *BookmarkRepository) DeleteByArticle(ctx context.Context, articleID int64) error {
	return r.db.WithContext(ctx).Where("article_id = ?", articleID).Delete(&models.Bookmark{}).Error
}

// DeleteByUser removes every bookmark of userID
func (r *BookmarkRepository) DeleteByUser(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Bookmark{}).Error
}

// FriendRepository provides friend-edge database operations
type FriendRepository struct {
	*Repository
}

// NewFriendRepository creates a new friend repository
func NewFriendRepository(repo *Repository) *FriendRepository {
	return &FriendRepository{Repository: repo}
}

// GetByID retrieves an edge by ID
func (r *FriendRepository) GetByID(ctx context.Context, id int64) (*models.Friend, error) {
	var edge models.Friend
	if err := r.db.WithContext(ctx).First(&edge, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &edge, nil
}

// Get retrieves the directed edge from userID to friendID
func (r *FriendRepository) Get(ctx context.Context, userID, friendID int64) (*models.Friend, error) {
	var edge models.Friend
	err := r.db.WithContext(ctx).Where("user_id = ? AND friend_id = ?", userID, friendID).First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &edge, nil
}

// Between returns edges between a and b in either direction
func (r *FriendRepository) Between(ctx context.Context, a, b int64) ([]*models.Friend, error) {
	var edges []*models.Friend
	err := r.db.WithContext(ctx).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a).
		Find(&edges).Error
	return edges, err
}

// BetweenMany returns every edge from userID to any of others, and back
func (r *FriendRepository) BetweenMany(ctx context.Context, userID int64, others []int64) ([]*models.Friend, error) {
	if len(others) == 0 {
		return nil, nil
	}
	var edges []*models.Friend
	err := r.db.WithContext(ctx).
		Where("(user_id = ? AND friend_id IN ?) OR (friend_id = ? AND user_id IN ?)", userID, others, userID, others).
		Find(&edges).Error
	return edges, err
}

// Create creates a new edge
func (r *FriendRepository) Create(ctx context.Context, edge *models.Friend) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(edge).Error
}

// UpdateStatus sets the status and accepted_at of an edge
func (r *FriendRepository) UpdateStatus(ctx context.Context, id int64, status string, acceptedAt *time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Friend{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "accepted_at": acceptedAt}).Error
}

// Delete removes an edge
func (r *FriendRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.Friend{}, id).Error
}

// DeletePair removes the directed edge from userID to friendID, if any
func (r *FriendRepository) DeletePair(ctx context.Context, userID, friendID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND friend_id = ?", userID, friendID).Delete(&models.Friend{}).Error
}

// Outgoing returns edges from userID with the given status, recipients preloaded
func (r *FriendRepository) Outgoing(ctx context.Context, userID int64, status string) ([]*models.Friend, error) {
	var edges []*models.Friend
	err := r.db.WithContext(ctx).Preload("Friend").
		Where("user_id = ? AND status = ?", userID, status).
		Order("updated_at DESC, id DESC").
		Find(&edges).Error
	return edges, err
}

// Incoming returns edges to userID with the given status, requesters preloaded
func (r *FriendRepository) Incoming(ctx context.Context, userID int64, status string) ([]*models.Friend, error) {
	var edges []*models.Friend
	err := r.db.WithContext(ctx).Preload("User").
		Where("friend_id = ? AND status = ?", userID, status).
		Order("created_at DESC, id DESC").
		Find(&edges).Error
	return edges, err
}

// DeleteInvolving removes every edge touching userID
func (r *FriendRepository) DeleteInvolving(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ? OR friend_id = ?", userID, userID).Delete(&models.Friend{}).Error
}

// NotificationRepository provides notification-related database operations
type NotificationRepository struct {
	*Repository
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(repo *Repository) *NotificationRepository {
	return &NotificationRepository{Repository: repo}
}

// Create creates a new notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// GetForUser retrieves a notification addressed to userID
func (r *NotificationRepository) GetForUser(ctx context.Context, id, userID int64) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

// ListByUser returns a page of notifications for userID, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool, offset, limit int) ([]*models.Notification, int64, error) {
	var (
		items []*models.Notification
		total int64
	)
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
		if unreadOnly {
			q = q.Where("read_at IS NULL")
		}
		return q
	}
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := base().Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// CountUnread counts unread notifications for userID
func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).Count(&count).Error
	return count, err
}

// MarkRead sets read_at on one unread notification
func (r *NotificationRepository) MarkRead(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND read_at IS NULL", id).Update("read_at", at).Error
}

// MarkAllRead sets read_at on every unread notification of userID
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).Update("read_at", at)
	return res.RowsAffected, res.Error
}

// Delete removes a notification
func (r *NotificationRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.Notification{}, id).Error
}

// DeleteByUser removes every notification addressed to userID
func (r *NotificationRepository) DeleteByUser(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Notification{}).Error
}
