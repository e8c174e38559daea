package blog

import (
	"context"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/sunublog/sunublog/internal/db"
	"github.com/sunublog/sunublog/internal/models"
	"github.com/sunublog/sunublog/pkg/logging"
	"github.com/sunublog/sunublog/pkg/slug"
	"github.com/sunublog/sunublog/pkg/telemetry"
)

const defaultArticlePageSize = 10

// Sortable article columns
var articleSortColumns = map[string]bool{
	"published_at":    true,
	"created_at":      true,
	"updated_at":      true,
	"title":           true,
	"views":           true,
	"likes_count":     true,
	"comments_count":  true,
	"bookmarks_count": true,
}

// ArticleInput holds the fields of a new article
type ArticleInput struct {
	Title           string     `json:"title" validate:"required,max=255"`
	Excerpt         string     `json:"excerpt" validate:"required,max=500"`
	Content         string     `json:"content" validate:"required,max=100000"`
	Status          string     `json:"status" validate:"required,oneof=draft published scheduled"`
	Visibility      string     `json:"visibility" validate:"required,oneof=public private"`
	CommentsEnabled *bool      `json:"comments_enabled"`
	Featured        bool       `json:"featured"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	PublishedAt     *time.Time `json:"published_at"`
	Tags            []string   `json:"tags" validate:"max=20,dive,required,max=50"`
}

// ArticlePatch holds the supplied fields of an article update. Nil means "not supplied".
type ArticlePatch struct {
	Title           *string    `json:"title"`
	Slug            *string    `json:"slug"`
	Excerpt         *string    `json:"excerpt"`
	Content         *string    `json:"content"`
	Status          *string    `json:"status"`
	Visibility      *string    `json:"visibility"`
	CommentsEnabled *bool      `json:"comments_enabled"`
	Featured        *bool      `json:"featured"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	Tags            []string   `json:"tags"`
}

// ArticleFilter narrows ListArticles
type ArticleFilter struct {
	Search     string
	Tag        string
	Author     string
	Status     string
	Visibility string
	Sort       string
	Direction  string
}

// ContentService manages articles and tags
type ContentService struct {
	repo   *db.Repository
	now    Clock
	logger *zap.Logger
}

// NewContentService creates a new content service
func NewContentService(repo *db.Repository, now Clock) *ContentService {
	if now == nil {
		now = systemClock
	}
	return &ContentService{
		repo:   repo,
		now:    now,
		logger: logging.WithComponent("content-service"),
	}
}

// CreateArticle creates an article owned by actor and syncs its tags
func (s *ContentService) CreateArticle(ctx context.Context, actor *models.User, in ArticleInput) (article *models.Article, err error) {
	ctx, span := telemetry.StartSpan(ctx, "content.CreateArticle")
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(actor); err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Excerpt = strings.TrimSpace(in.Excerpt)
	in.Content = strings.TrimSpace(in.Content)
	in.Tags = trimAll(in.Tags)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	now := s.now()
	if err := checkSchedule(in.Status, in.ScheduledAt, nil, now); err != nil {
		return nil, err
	}

	article = &models.Article{
		UserID:          actor.ID,
		Title:           in.Title,
		Excerpt:         in.Excerpt,
		Content:         in.Content,
		Status:          in.Status,
		Visibility:      in.Visibility,
		CommentsEnabled: in.CommentsEnabled == nil || *in.CommentsEnabled,
		Featured:        in.Featured,
		ScheduledAt:     utcPtr(in.ScheduledAt),
		PublishedAt:     utcPtr(in.PublishedAt),
	}
	if article.Status == models.ArticleStatusPublished && article.PublishedAt == nil {
		article.PublishedAt = &now
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		articles := db.NewArticleRepository(tx)
		articleSlug, err := articles.UniqueSlug(ctx, article.Title, 0)
		if err != nil {
			return conflictOnDuplicate(err, "An article with this slug already exists.")
		}
		article.Slug = articleSlug
		if err := articles.Create(ctx, article); err != nil {
			return conflictOnDuplicate(err, "An article with this slug already exists.")
		}
		return syncTags(ctx, tx, article.ID, dedupe(in.Tags))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Article created",
		zap.Int64("article_id", article.ID),
		zap.Int64("user_id", actor.ID),
		zap.String("status", article.Status))

	return db.NewArticleRepository(s.repo).GetByID(ctx, article.ID)
}

// UpdateArticle applies the supplied fields of patch. Only the owner may update.
func (s *ContentService) UpdateArticle(ctx context.Context, id int64, actor *models.User, patch ArticlePatch) (article *models.Article, err error) {
	ctx, span := telemetry.StartSpan(ctx, "content.UpdateArticle")
	span.SetAttributes(telemetry.Int64("article.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}

	now := s.now()
	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		articles := db.NewArticleRepository(tx)
		current, err := articles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return NotFoundError("Article not found.")
		}
		if !IsOwner(actor, current.UserID) {
			return AuthorizationError("You are not allowed to update this article.")
		}

		// A stale scheduled_at only matters when the status is being set
		status := ""
		if patch.Status != nil {
			status = *patch.Status
		}
		if err := checkSchedule(status, patch.ScheduledAt, current.ScheduledAt, now); err != nil {
			return err
		}

		fields := map[string]interface{}{}
		if patch.Title != nil {
			fields["title"] = *patch.Title
			if patch.Slug == nil {
				newSlug, err := articles.UniqueSlug(ctx, *patch.Title, id)
				if err != nil {
					return conflictOnDuplicate(err, "The slug has already been taken.")
				}
				fields["slug"] = newSlug
			}
		}
		if patch.Slug != nil {
			taken, err := articles.GetBySlug(ctx, *patch.Slug)
			if err != nil {
				return err
			}
			if taken != nil && taken.ID != id {
				return ConflictError("The slug has already been taken.", map[string]string{"slug": "has already been taken"})
			}
			fields["slug"] = *patch.Slug
		}
		if patch.Excerpt != nil {
			fields["excerpt"] = *patch.Excerpt
		}
		if patch.Content != nil {
			fields["content"] = *patch.Content
		}
		if patch.Status != nil {
			fields["status"] = *patch.Status
			if *patch.Status == models.ArticleStatusPublished && current.PublishedAt == nil {
				fields["published_at"] = now
			}
		}
		if patch.Visibility != nil {
			fields["visibility"] = *patch.Visibility
		}
		if patch.CommentsEnabled != nil {
			fields["comments_enabled"] = *patch.CommentsEnabled
		}
		if patch.Featured != nil {
			fields["featured"] = *patch.Featured
		}
		if patch.ScheduledAt != nil {
			fields["scheduled_at"] = patch.ScheduledAt.UTC()
		}

		if err := articles.UpdateFields(ctx, id, fields); err != nil {
			return conflictOnDuplicate(err, "The slug has already been taken.")
		}
		if patch.Tags != nil {
			return syncTags(ctx, tx, id, dedupe(patch.Tags))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return db.NewArticleRepository(s.repo).GetByID(ctx, id)
}

// DeleteArticle removes an article with its comments, likes, bookmarks and tag links
func (s *ContentService) DeleteArticle(ctx context.Context, id int64, actor *models.User) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "content.DeleteArticle")
	span.SetAttributes(telemetry.Int64("article.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(actor); err != nil {
		return err
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		article, err := db.NewArticleRepository(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		if article == nil {
			return NotFoundError("Article not found.")
		}
		if !IsOwner(actor, article.UserID) {
			return AuthorizationError("You are not allowed to delete this article.")
		}
		return deleteArticleTx(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Article deleted", zap.Int64("article_id", id), zap.Int64("user_id", actor.ID))
	return nil
}

// deleteArticleTx removes an article and everything hanging off it
func deleteArticleTx(ctx context.Context, tx *db.Repository, id int64) error {
	comments := db.NewCommentRepository(tx)
	commentIDs, err := comments.IDsByArticle(ctx, id)
	if err != nil {
		return err
	}
	if err := comments.DeleteByIDs(ctx, commentIDs); err != nil {
		return err
	}
	if err := db.NewLikeRepository(tx).DeleteByTarget(ctx, models.LikeKindArticle, []int64{id}); err != nil {
		return err
	}
	if err := db.NewBookmarkRepository(tx).DeleteByArticle(ctx, id); err != nil {
		return err
	}
	tags := db.NewTagRepository(tx)
	tagIDs, err := tags.TagIDsForArticle(ctx, id)
	if err != nil {
		return err
	}
	if err := tags.Detach(ctx, id, tagIDs); err != nil {
		return err
	}
	return db.NewArticleRepository(tx).Delete(ctx, id)
}

// ListArticles returns a page of articles visible to viewer
func (s *ContentService) ListArticles(ctx context.Context, filter ArticleFilter, page Page, viewer *models.User) (result *Paginated[*models.Article], err error) {
	ctx, span := telemetry.StartSpan(ctx, "content.ListArticles")
	defer func() { telemetry.EndSpan(span, err) }()

	sort := filter.Sort
	if sort == "" {
		sort = "published_at"
	}
	direction := strings.ToLower(filter.Direction)
	if direction == "" {
		direction = "desc"
	}
	if err := collect(
		checkSort(sort),
		validateField("direction", direction, "oneof=asc desc"),
		validateField("status", filter.Status, "omitempty,oneof=draft published scheduled"),
		validateField("visibility", filter.Visibility, "omitempty,oneof=public private"),
	); err != nil {
		return nil, err
	}

	page = page.normalize(defaultArticlePageSize)
	q := db.ArticleQuery{
		Search:     strings.TrimSpace(filter.Search),
		TagSlug:    strings.TrimSpace(filter.Tag),
		Author:     strings.TrimSpace(filter.Author),
		Now:        s.now(),
		SortColumn: sort,
		Desc:       direction == "desc",
		Offset:     page.Offset(),
		Limit:      page.Size,
	}
	// Explicit status/visibility filters are only honored for a signed-in viewer
	if viewer != nil && viewer.ID != 0 && (filter.Status != "" || filter.Visibility != "") {
		q.ViewerID = viewer.ID
		q.Status = filter.Status
		q.Visibility = filter.Visibility
	}

	articles, total, err := db.NewArticleRepository(s.repo).List(ctx, q)
	if err != nil {
		return nil, err
	}
	return paginate(articles, total, page), nil
}

// GetArticle returns an article visible to viewer and counts one view
func (s *ContentService) GetArticle(ctx context.Context, id int64, viewer *models.User) (*models.Article, error) {
	article, err := db.NewArticleRepository(s.repo).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, article, viewer)
}

// GetArticleBySlug is GetArticle keyed by slug
func (s *ContentService) GetArticleBySlug(ctx context.Context, articleSlug string, viewer *models.User) (*models.Article, error) {
	article, err := db.NewArticleRepository(s.repo).GetBySlug(ctx, articleSlug)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, article, viewer)
}

func (s *ContentService) view(ctx context.Context, article *models.Article, viewer *models.User) (*models.Article, error) {
	if article == nil || !IsVisible(viewer, article, s.now()) {
		return nil, NotFoundError("Article not found.")
	}
	if err := db.NewArticleRepository(s.repo).IncrementViews(ctx, article.ID); err != nil {
		return nil, err
	}
	article.Views++

	if viewer != nil && viewer.ID != 0 {
		if err := s.viewerState(ctx, article, viewer.ID); err != nil {
			return nil, err
		}
	}
	return article, nil
}

// viewerState fills the viewer's like and bookmark flags on article
func (s *ContentService) viewerState(ctx context.Context, article *models.Article, viewerID int64) error {
	var liked, bookmarked bool
	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) (err error) {
		liked, err = db.NewLikeRepository(s.repo).Exists(ctx, viewerID, models.ArticleTarget(article.ID))
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		bookmarked, err = db.NewBookmarkRepository(s.repo).Exists(ctx, viewerID, article.ID)
		return err
	})
	if err := p.Wait(); err != nil {
		return err
	}
	article.Liked = &liked
	article.Bookmarked = &bookmarked
	return nil
}

// PublishDue publishes up to batch scheduled articles that have come due and
// reports how many changed
func (s *ContentService) PublishDue(ctx context.Context, batch int) (published int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "content.PublishDue")
	defer func() { telemetry.EndSpan(span, err) }()

	if batch < 1 {
		batch = MaxPageSize
	}
	published, err = db.NewArticleRepository(s.repo).PublishDue(ctx, s.now(), batch)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(telemetry.Int64("published", published))
	return published, nil
}

// ListTags returns every tag, most used first
func (s *ContentService) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return db.NewTagRepository(s.repo).List(ctx)
}

// syncTags makes names the exact tag set of an article
func syncTags(ctx context.Context, tx *db.Repository, articleID int64, names []string) error {
	tags := db.NewTagRepository(tx)

	want := make(map[int64]bool, len(names))
	var wantIDs []int64
	for _, name := range names {
		tag, err := tags.FindOrCreate(ctx, name)
		if err != nil {
			return err
		}
		if !want[tag.ID] {
			want[tag.ID] = true
			wantIDs = append(wantIDs, tag.ID)
		}
	}

	currentIDs, err := tags.TagIDsForArticle(ctx, articleID)
	if err != nil {
		return err
	}
	current := make(map[int64]bool, len(currentIDs))
	var detach []int64
	for _, id := range currentIDs {
		current[id] = true
		if !want[id] {
			detach = append(detach, id)
		}
	}
	var attach []int64
	for _, id := range wantIDs {
		if !current[id] {
			attach = append(attach, id)
		}
	}

	if err := tags.Detach(ctx, articleID, detach); err != nil {
		return err
	}
	return tags.Attach(ctx, articleID, attach)
}

func validatePatch(p *ArticlePatch) error {
	var errs []error
	if p.Title != nil {
		*p.Title = strings.TrimSpace(*p.Title)
		errs = append(errs, validateField("title", *p.Title, "required,max=255"))
	}
	if p.Slug != nil {
		*p.Slug = strings.TrimSpace(*p.Slug)
		errs = append(errs, validateField("slug", *p.Slug, "required,max=255"))
		if *p.Slug != "" && slug.Make(*p.Slug) != *p.Slug {
			errs = append(errs, FieldError("slug", "must be lowercase words separated by hyphens"))
		}
	}
	if p.Excerpt != nil {
		*p.Excerpt = strings.TrimSpace(*p.Excerpt)
		errs = append(errs, validateField("excerpt", *p.Excerpt, "required,max=500"))
	}
	if p.Content != nil {
		*p.Content = strings.TrimSpace(*p.Content)
		errs = append(errs, validateField("content", *p.Content, "required,max=100000"))
	}
	if p.Status != nil {
		errs = append(errs, validateField("status", *p.Status, "required,oneof=draft published scheduled"))
	}
	if p.Visibility != nil {
		errs = append(errs, validateField("visibility", *p.Visibility, "required,oneof=public private"))
	}
	if p.Tags != nil {
		p.Tags = trimAll(p.Tags)
		errs = append(errs, validateField("tags", p.Tags, "max=20,dive,required,max=50"))
	}
	return collect(errs...)
}

// checkSchedule enforces a strictly future scheduled_at when one is supplied
// and requires one for scheduled articles
func checkSchedule(status string, supplied, existing *time.Time, now time.Time) error {
	if supplied != nil {
		if !supplied.After(now) {
			return FieldError("scheduled_at", "must be a date after now")
		}
		return nil
	}
	if status != models.ArticleStatusScheduled {
		return nil
	}
	if existing == nil || !existing.After(now) {
		return FieldError("scheduled_at", "is required in the future when status is scheduled")
	}
	return nil
}

func checkSort(column string) error {
	if !articleSortColumns[column] {
		return FieldError("sort", "is not a sortable column")
	}
	return nil
}

func trimAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// dedupe drops repeated names, keeping first occurrences in order
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
