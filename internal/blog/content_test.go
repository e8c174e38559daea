package blog

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/sunublog/sunublog/internal/db"
	"github.com/sunublog/sunublog/internal/models"
)

func TestCreateArticleValidation(t *testing.T) {
	svc := newTestServices(t)
	author := mustRegister(t, svc, "author")
	ctx := context.Background()

	manyTags := make([]string, 21)
	for i := range manyTags {
		manyTags[i] = "tag" + strconv.Itoa(i)
	}
	past := testNow.Add(-time.Minute)
	future := testNow.Add(24 * time.Hour)

	valid := func(mutate func(*ArticleInput)) ArticleInput {
		in := ArticleInput{
			Title:      "Valid title",
			Excerpt:    "Valid excerpt",
			Content:    "Valid content",
			Status:     models.ArticleStatusDraft,
			Visibility: models.VisibilityPublic,
		}
		mutate(&in)
		return in
	}

	tests := []struct {
		name  string
		actor *models.User
		input ArticleInput
		want  Kind
	}{
		{"anonymous", nil, valid(func(*ArticleInput) {}), KindAuthentication},
		{"blank title", author, valid(func(in *ArticleInput) { in.Title = "   " }), KindValidation},
		{"unknown status", author, valid(func(in *ArticleInput) { in.Status = "archived" }), KindValidation},
		{"unknown visibility", author, valid(func(in *ArticleInput) { in.Visibility = "friends" }), KindValidation},
		{"too many tags", author, valid(func(in *ArticleInput) { in.Tags = manyTags }), KindValidation},
		{"empty tag", author, valid(func(in *ArticleInput) { in.Tags = []string{"go", " "} }), KindValidation},
		{"scheduled without date", author, valid(func(in *ArticleInput) { in.Status = models.ArticleStatusScheduled }), KindValidation},
		{"scheduled in the past", author, valid(func(in *ArticleInput) {
			in.Status = models.ArticleStatusScheduled
			in.ScheduledAt = &past
		}), KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Content.CreateArticle(ctx, tt.actor, tt.input)
			wantKind(t, err, tt.want)
		})
	}

	t.Run("scheduled in the future", func(t *testing.T) {
		article := mustCreate(t, svc, author, valid(func(in *ArticleInput) {
			in.Title = "Scheduled"
			in.Status = models.ArticleStatusScheduled
			in.ScheduledAt = &future
		}))
		if article.PublishedAt != nil {
			t.Errorf("PublishedAt = %v, want nil for a scheduled article", article.PublishedAt)
		}
	})
}

func TestCreateArticleSlugsAndTags(t *testing.T) {
	svc := newTestServices(t)
	author := mustRegister(t, svc, "author")

	first := mustPublish(t, svc, author, "Hello World", "go", "go", " go ")
	second := mustPublish(t, svc, author, "Hello World", "go", "web")
	third := mustPublish(t, svc, author, "Hello   World!", "web")

	if first.Slug != "hello-world" {
		t.Errorf("first slug = %q, want %q", first.Slug, "hello-world")
	}
	if second.Slug != "hello-world-2" {
		t.Errorf("second slug = %q, want %q", second.Slug, "hello-world-2")
	}
	if third.Slug != "hello-world-3" {
		t.Errorf("third slug = %q, want %q", third.Slug, "hello-world-3")
	}
	if len(first.Tags) != 1 {
		t.Fatalf("first article has %d tags, want 1", len(first.Tags))
	}
	if !first.CommentsEnabled {
		t.Error("CommentsEnabled = false, want true by default")
	}
	if first.PublishedAt == nil || !first.PublishedAt.Equal(testNow) {
		t.Errorf("PublishedAt = %v, want %v", first.PublishedAt, testNow)
	}

	tags, err := svc.Content.ListTags(context.Background())
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	counts := map[string]int64{}
	for _, tag := range tags {
		counts[tag.Name] = tag.ArticlesCount
	}
	want := map[string]int64{"go": 2, "web": 2}
	for name, n := range want {
		if counts[name] != n {
			t.Errorf("tag %q articles_count = %d, want %d", name, counts[name], n)
		}
	}
	if len(tags) != 2 {
		t.Errorf("ListTags() returned %d tags, want 2", len(tags))
	}
}

func TestCreateArticleCommentsDisabled(t *testing.T) {
	svc := newTestServices(t)
	author := mustRegister(t, svc, "author")

	article := mustCreate(t, svc, author, ArticleInput{
		Title:           "Quiet",
		Excerpt:         "No comments",
		Content:         "Body",
		Status:          models.ArticleStatusPublished,
		Visibility:      models.VisibilityPublic,
		CommentsEnabled: ptr(false),
	})
	if article.CommentsEnabled {
		t.Error("CommentsEnabled = true, want false")
	}
}

func TestUpdateArticle(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	author := mustRegister(t, svc, "author")
	stranger := mustRegister(t, svc, "stranger")
	article := mustPublish(t, svc, author, "Original title", "go")
	mustPublish(t, svc, author, "Taken title")

	t.Run("missing article", func(t *testing.T) {
		_, err := svc.Content.UpdateArticle(ctx, 12345, author, ArticlePatch{Title: ptr("x")})
		wantKind(t, err, KindNotFound)
	})

	t.Run("not the owner", func(t *testing.T) {
		_, err := svc.Content.UpdateArticle(ctx, article.ID, stranger, ArticlePatch{Title: ptr("Hijacked")})
		wantKind(t, err, KindAuthorization)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := svc.Content.UpdateArticle(ctx, article.ID, author, ArticlePatch{Status: ptr("archived")})
		wantKind(t, err, KindValidation)
	})

	t.Run("explicit slug taken", func(t *testing.T) {
		_, err := svc.Content.UpdateArticle(ctx, article.ID, author, ArticlePatch{Slug: ptr("taken-title")})
		wantKind(t, err, KindConflict)
	})

	t.Run("title change regenerates slug", func(t *testing.T) {
		updated, err := svc.Content.UpdateArticle(ctx, article.ID, author, ArticlePatch{Title: ptr("Taken title")})
		if err != nil {
			t.Fatalf("UpdateArticle() error = %v", err)
		}
		if updated.Slug != "taken-title-2" {
			t.Errorf("Slug = %q, want %q", updated.Slug, "taken-title-2")
		}
		if updated.Excerpt != article.Excerpt {
			t.Errorf("Excerpt = %q, want unchanged %q", updated.Excerpt, article.Excerpt)
		}
	})

	t.Run("tags replaced", func(t *testing.T) {
		updated, err := svc.Content.UpdateArticle(ctx, article.ID, author, ArticlePatch{Tags: []string{"rust", "rust"}})
		if err != nil {
			t.Fatalf("UpdateArticle() error = %v", err)
		}
		if len(updated.Tags) != 1 || updated.Tags[0].Name != "rust" {
			t.Errorf("Tags = %+v, want [rust]", updated.Tags)
		}
		tags, err := svc.Content.ListTags(ctx)
		if err != nil {
			t.Fatalf("ListTags() error = %v", err)
		}
		for _, tag := range tags {
			if tag.Name == "go" && tag.ArticlesCount != 0 {
				t.Errorf("go articles_count = %d, want 0", tag.ArticlesCount)
			}
		}
	})

	t.Run("comments can be disabled", func(t *testing.T) {
		updated, err := svc.Content.UpdateArticle(ctx, article.ID, author, ArticlePatch{CommentsEnabled: ptr(false)})
		if err != nil {
			t.Fatalf("UpdateArticle() error = %v", err)
		}
		if updated.CommentsEnabled {
			t.Error("CommentsEnabled = true, want false")
		}
	})
}

func TestPublishKeepsFirstPublishedAt(t *testing.T) {
	now := testNow
	svc := newTestServicesWithClock(t, func() time.Time { return now })
	ctx := context.Background()
	author := mustRegister(t, svc, "author")

	draft := mustCreate(t, svc, author, ArticleInput{
		Title:      "Draft",
		Excerpt:    "Draft excerpt",
		Content:    "Draft content",
		Status:     models.ArticleStatusDraft,
		Visibility: models.VisibilityPublic,
	})
	if draft.PublishedAt != nil {
		t.Fatalf("draft PublishedAt = %v, want nil", draft.PublishedAt)
	}

	published, err := svc.Content.UpdateArticle(ctx, draft.ID, author, ArticlePatch{Status: ptr(models.ArticleStatusPublished)})
	if err != nil {
		t.Fatalf("publish error = %v", err)
	}
	if published.PublishedAt == nil || !published.PublishedAt.Equal(testNow) {
		t.Fatalf("PublishedAt = %v, want %v", published.PublishedAt, testNow)
	}

	now = testNow.Add(48 * time.Hour)
	if _, err := svc.Content.UpdateArticle(ctx, draft.ID, author, ArticlePatch{Status: ptr(models.ArticleStatusDraft)}); err != nil {
		t.Fatalf("unpublish error = %v", err)
	}
	again, err := svc.Content.UpdateArticle(ctx, draft.ID, author, ArticlePatch{Status: ptr(models.ArticleStatusPublished)})
	if err != nil {
		t.Fatalf("republish error = %v", err)
	}
	if again.PublishedAt == nil || !again.PublishedAt.Equal(testNow) {
		t.Errorf("PublishedAt after republish = %v, want first publication %v", again.PublishedAt, testNow)
	}
}

func TestArticleVisibility(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	owner := mustRegister(t, svc, "owner")
	stranger := mustRegister(t, svc, "stranger")
	future := testNow.Add(24 * time.Hour)

	public := mustPublish(t, svc, owner, "Public post")
	base := ArticleInput{Excerpt: "e", Content: "c", Visibility: models.VisibilityPublic}

	draftIn := base
	draftIn.Title, draftIn.Status = "Draft post", models.ArticleStatusDraft
	draft := mustCreate(t, svc, owner, draftIn)

	privateIn := base
	privateIn.Title, privateIn.Status, privateIn.Visibility = "Private post", models.ArticleStatusPublished, models.VisibilityPrivate
	private := mustCreate(t, svc, owner, privateIn)

	scheduledIn := base
	scheduledIn.Title, scheduledIn.Status, scheduledIn.ScheduledAt = "Scheduled post", models.ArticleStatusScheduled, &future
	scheduled := mustCreate(t, svc, owner, scheduledIn)

	futureIn := base
	futureIn.Title, futureIn.Status, futureIn.PublishedAt = "Future post", models.ArticleStatusPublished, &future
	futurePublished := mustCreate(t, svc, owner, futureIn)

	hidden := []*models.Article{draft, private, scheduled, futurePublished}

	for _, viewer := range []*models.User{nil, stranger} {
		name := "anonymous"
		if viewer != nil {
			name = viewer.Username
		}
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Content.GetArticle(ctx, public.ID, viewer); err != nil {
				t.Errorf("GetArticle(public) error = %v", err)
			}
			for _, a := range hidden {
				_, err := svc.Content.GetArticle(ctx, a.ID, viewer)
				wantKind(t, err, KindNotFound)
				_, err = svc.Content.GetArticleBySlug(ctx, a.Slug, viewer)
				wantKind(t, err, KindNotFound)
			}

			page, err := svc.Content.ListArticles(ctx, ArticleFilter{}, Page{}, viewer)
			if err != nil {
				t.Fatalf("ListArticles() error = %v", err)
			}
			if page.Total != 1 || len(page.Items) != 1 || page.Items[0].ID != public.ID {
				t.Errorf("ListArticles() = %d items (total %d), want only the public article", len(page.Items), page.Total)
			}
		})
	}

	t.Run("owner sees everything", func(t *testing.T) {
		for _, a := range append(hidden, public) {
			if _, err := svc.Content.GetArticle(ctx, a.ID, owner); err != nil {
				t.Errorf("GetArticle(%q) by owner error = %v", a.Title, err)
			}
		}
	})

	t.Run("status filter", func(t *testing.T) {
		tests := []struct {
			name   string
			viewer *models.User
			filter ArticleFilter
			want   int64
		}{
			{"owner drafts", owner, ArticleFilter{Status: models.ArticleStatusDraft}, 1},
			{"owner private", owner, ArticleFilter{Visibility: models.VisibilityPrivate}, 1},
			{"stranger drafts", stranger, ArticleFilter{Status: models.ArticleStatusDraft}, 0},
			{"stranger published", stranger, ArticleFilter{Status: models.ArticleStatusPublished}, 1},
			{"anonymous drafts ignored", nil, ArticleFilter{Status: models.ArticleStatusDraft}, 1},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				page, err := svc.Content.ListArticles(ctx, tt.filter, Page{}, tt.viewer)
				if err != nil {
					t.Fatalf("ListArticles() error = %v", err)
				}
				if page.Total != tt.want {
					t.Errorf("Total = %d, want %d", page.Total, tt.want)
				}
			})
		}
	})
}

func TestListArticlesFilters(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	alice := mustRegister(t, svc, "alice")
	bob := mustRegister(t, svc, "bob")

	mustPublish(t, svc, alice, "Learning Go", "go")
	mustPublish(t, svc, alice, "Cooking pasta", "food")
	mustPublish(t, svc, bob, "Go concurrency patterns", "go")

	tests := []struct {
		name   string
		filter ArticleFilter
		want   int64
	}{
		{"no filter", ArticleFilter{}, 3},
		{"search is case-insensitive", ArticleFilter{Search: "GO"}, 2},
		{"search content", ArticleFilter{Search: "content of cooking"}, 1},
		{"tag", ArticleFilter{Tag: "go"}, 2},
		{"author", ArticleFilter{Author: "alice"}, 2},
		{"tag and author", ArticleFilter{Tag: "go", Author: "bob"}, 1},
		{"unknown tag", ArticleFilter{Tag: "nope"}, 0},
		{"percent matches literally", ArticleFilter{Search: "%%"}, 0},
		{"underscore matches literally", ArticleFilter{Search: "go_c"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.Content.ListArticles(ctx, tt.filter, Page{}, nil)
			if err != nil {
				t.Fatalf("ListArticles() error = %v", err)
			}
			if page.Total != tt.want || int64(len(page.Items)) != tt.want {
				t.Errorf("ListArticles() = %d items (total %d), want %d", len(page.Items), page.Total, tt.want)
			}
		})
	}

	t.Run("sort by title ascending", func(t *testing.T) {
		page, err := svc.Content.ListArticles(ctx, ArticleFilter{Sort: "title", Direction: "asc"}, Page{}, nil)
		if err != nil {
			t.Fatalf("ListArticles() error = %v", err)
		}
		if page.Items[0].Title != "Cooking pasta" {
			t.Errorf("first title = %q, want %q", page.Items[0].Title, "Cooking pasta")
		}
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := svc.Content.ListArticles(ctx, ArticleFilter{}, Page{Number: 2, Size: 2}, nil)
		if err != nil {
			t.Fatalf("ListArticles() error = %v", err)
		}
		if len(page.Items) != 1 || page.LastPage != 2 || page.Total != 3 {
			t.Errorf("page 2 = %d items, last page %d, total %d; want 1, 2, 3", len(page.Items), page.LastPage, page.Total)
		}
	})

	t.Run("invalid sort", func(t *testing.T) {
		_, err := svc.Content.ListArticles(ctx, ArticleFilter{Sort: "password"}, Page{}, nil)
		wantKind(t, err, KindValidation)
	})

	t.Run("invalid direction", func(t *testing.T) {
		_, err := svc.Content.ListArticles(ctx, ArticleFilter{Direction: "sideways"}, Page{}, nil)
		wantKind(t, err, KindValidation)
	})
}

func TestGetArticleCountsViews(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	author := mustRegister(t, svc, "author")
	article := mustPublish(t, svc, author, "Popular")

	for want := int64(1); want <= 3; want++ {
		got, err := svc.Content.GetArticle(ctx, article.ID, nil)
		if err != nil {
			t.Fatalf("GetArticle() error = %v", err)
		}
		if got.Views != want {
			t.Errorf("Views = %d, want %d", got.Views, want)
		}
	}
	bySlug, err := svc.Content.GetArticleBySlug(ctx, article.Slug, nil)
	if err != nil {
		t.Fatalf("GetArticleBySlug() error = %v", err)
	}
	if bySlug.Views != 4 {
		t.Errorf("Views = %d, want 4", bySlug.Views)
	}
}

func TestGetArticleViewerState(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	author := mustRegister(t, svc, "author")
	reader := mustRegister(t, svc, "reader")
	article := mustPublish(t, svc, author, "Stateful")

	if _, err := svc.Engagement.ToggleLike(ctx, models.ArticleTarget(article.ID), reader); err != nil {
		t.Fatalf("ToggleLike() error = %v", err)
	}
	if _, err := svc.Engagement.ToggleBookmark(ctx, article.ID, reader); err != nil {
		t.Fatalf("ToggleBookmark() error = %v", err)
	}

	tests := []struct {
		name           string
		viewer         *models.User
		wantSet        bool
		wantLiked      bool
		wantBookmarked bool
	}{
		{"anonymous", nil, false, false, false},
		{"reader", reader, true, true, true},
		{"author", author, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Content.GetArticleBySlug(ctx, article.Slug, tt.viewer)
			if err != nil {
				t.Fatalf("GetArticleBySlug() error = %v", err)
			}
			if !tt.wantSet {
				if got.Liked != nil || got.Bookmarked != nil {
					t.Errorf("viewer flags = %v, %v; want unset", got.Liked, got.Bookmarked)
				}
				return
			}
			if got.Liked == nil || *got.Liked != tt.wantLiked {
				t.Errorf("Liked = %v, want %v", got.Liked, tt.wantLiked)
			}
			if got.Bookmarked == nil || *got.Bookmarked != tt.wantBookmarked {
				t.Errorf("Bookmarked = %v, want %v", got.Bookmarked, tt.wantBookmarked)
			}
		})
	}
}

func TestDeleteArticleCascades(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	author := mustRegister(t, svc, "author")
	reader := mustRegister(t, svc, "reader")
	article := mustPublish(t, svc, author, "Doomed", "go")

	comment, err := svc.Engagement.AddComment(ctx, article.ID, reader, CommentInput{Content: "Nice"})
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if _, err := svc.Engagement.ToggleLike(ctx, models.CommentTarget(comment.ID), author); err != nil {
		t.Fatalf("ToggleLike(comment) error = %v", err)
	}
	if _, err := svc.Engagement.ToggleLike(ctx, models.ArticleTarget(article.ID), reader); err != nil {
		t.Fatalf("ToggleLike(article) error = %v", err)
	}
	if _, err := svc.Engagement.ToggleBookmark(ctx, article.ID, reader); err != nil {
		t.Fatalf("ToggleBookmark() error = %v", err)
	}

	t.Run("not the owner", func(t *testing.T) {
		wantKind(t, svc.Content.DeleteArticle(ctx, article.ID, reader), KindAuthorization)
	})

	if err := svc.Content.DeleteArticle(ctx, article.ID, author); err != nil {
		t.Fatalf("DeleteArticle() error = %v", err)
	}

	_, err = svc.Content.GetArticle(ctx, article.ID, author)
	wantKind(t, err, KindNotFound)
	wantKind(t, svc.Content.DeleteArticle(ctx, article.ID, author), KindNotFound)

	repo := svc.Content.repo
	if ids, err := db.NewCommentRepository(repo).IDsByArticle(ctx, article.ID); err != nil || len(ids) != 0 {
		t.Errorf("comments left = %v (err %v), want none", ids, err)
	}
	for _, target := range []models.LikeTarget{models.ArticleTarget(article.ID), models.CommentTarget(comment.ID)} {
		if liked, err := db.NewLikeRepository(repo).Exists(ctx, reader.ID, target); err != nil || liked {
			t.Errorf("like on %+v left behind (err %v)", target, err)
		}
	}
	bookmarks, err := svc.Engagement.ListBookmarks(ctx, reader, Page{})
	if err != nil {
		t.Fatalf("ListBookmarks() error = %v", err)
	}
	if bookmarks.Total != 0 {
		t.Errorf("bookmarks left = %d, want 0", bookmarks.Total)
	}
	tags, err := svc.Content.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if len(tags) != 1 || tags[0].ArticlesCount != 0 {
		t.Errorf("tags = %+v, want go with articles_count 0", tags)
	}
}

func TestPublishDue(t *testing.T) {
	now := testNow
	svc := newTestServicesWithClock(t, func() time.Time { return now })
	ctx := context.Background()
	owner := mustRegister(t, svc, "alice")

	soon := testNow.Add(time.Hour)
	later := testNow.Add(48 * time.Hour)
	schedule := func(title string, at time.Time) *models.Article {
		return mustCreate(t, svc, owner, ArticleInput{
			Title:       title,
			Excerpt:     "Excerpt",
			Content:     "Content",
			Status:      models.ArticleStatusScheduled,
			Visibility:  models.VisibilityPublic,
			ScheduledAt: &at,
		})
	}
	first := schedule("Soon", soon)
	second := schedule("Later", later)

	published, err := svc.Content.PublishDue(ctx, 10)
	if err != nil {
		t.Fatalf("PublishDue() error = %v", err)
	}
	if published != 0 {
		t.Fatalf("PublishDue() before schedule = %d, want 0", published)
	}

	now = testNow.Add(2 * time.Hour)
	published, err = svc.Content.PublishDue(ctx, 10)
	if err != nil {
		t.Fatalf("PublishDue() error = %v", err)
	}
	if published != 1 {
		t.Fatalf("PublishDue() = %d, want 1", published)
	}

	got, err := svc.Content.GetArticle(ctx, first.ID, nil)
	if err != nil {
		t.Fatalf("GetArticle(due) error = %v", err)
	}
	if got.Status != models.ArticleStatusPublished {
		t.Errorf("status = %q, want published", got.Status)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(soon) {
		t.Errorf("PublishedAt = %v, want the scheduled time %v", got.PublishedAt, soon)
	}

	_, err = svc.Content.GetArticle(ctx, second.ID, nil)
	wantKind(t, err, KindNotFound)
}
