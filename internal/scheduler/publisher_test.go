package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sunublog/sunublog/internal/blog"
	"github.com/sunublog/sunublog/internal/db"
	"github.com/sunublog/sunublog/internal/models"
	"github.com/sunublog/sunublog/pkg/config"
	"github.com/sunublog/sunublog/pkg/password"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newServices(t *testing.T, clock *testClock) *blog.Services {
	t.Helper()
	password.Cost = bcrypt.MinCost

	url := filepath.Join(t.TempDir(), "scheduler.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	database, err := db.New(&config.DatabaseConfig{Driver: "sqlite", URL: url}, "error")
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return blog.NewServices(db.NewRepository(database.DB), blog.Options{Clock: clock.Now})
}

func scheduleArticles(t *testing.T, svc *blog.Services, at time.Time, n int) {
	t.Helper()
	ctx := context.Background()
	owner, err := svc.Identity.Register(ctx, blog.RegisterInput{
		Name:                 "Alice",
		Username:             "alice",
		Email:                "alice@example.com",
		Password:             "secret-password",
		PasswordConfirmation: "secret-password",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	for i := 0; i < n; i++ {
		_, err := svc.Content.CreateArticle(ctx, owner, blog.ArticleInput{
			Title:       "Scheduled post",
			Excerpt:     "Excerpt",
			Content:     "Content",
			Status:      models.ArticleStatusScheduled,
			Visibility:  models.VisibilityPublic,
			ScheduledAt: &at,
		})
		if err != nil {
			t.Fatalf("CreateArticle(%d) error = %v", i, err)
		}
	}
}

func publicCount(t *testing.T, svc *blog.Services) int64 {
	t.Helper()
	page, err := svc.Content.ListArticles(context.Background(), blog.ArticleFilter{}, blog.Page{}, nil)
	if err != nil {
		t.Fatalf("ListArticles() error = %v", err)
	}
	return page.Total
}

func TestRunOnce(t *testing.T) {
	start := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	clock := &testClock{now: start}
	svc := newServices(t, clock)
	scheduleArticles(t, svc, start.Add(time.Hour), 5)

	// A batch smaller than the backlog exercises the drain loop
	publisher := NewPublisher(svc.Content, &config.SchedulerConfig{Interval: time.Minute, BatchSize: 2})

	tests := []struct {
		name string
		at   time.Time
		want int64
	}{
		{"nothing due yet", start, 0},
		{"all due", start.Add(2 * time.Hour), 5},
		{"already published", start.Add(3 * time.Hour), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Set(tt.at)
			got, err := publisher.RunOnce(context.Background())
			if err != nil {
				t.Fatalf("RunOnce() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("RunOnce() = %d, want %d", got, tt.want)
			}
		})
	}

	if got := publicCount(t, svc); got != 5 {
		t.Errorf("public articles = %d, want 5", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	clock := &testClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	svc := newServices(t, clock)
	publisher := NewPublisher(svc.Content, &config.SchedulerConfig{Interval: time.Hour, BatchSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- publisher.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestNewPublisherDefaults(t *testing.T) {
	p := NewPublisher(nil, &config.SchedulerConfig{})
	if p.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", p.interval)
	}
	if p.batchSize != blog.MaxPageSize {
		t.Errorf("batchSize = %d, want %d", p.batchSize, blog.MaxPageSize)
	}
}
