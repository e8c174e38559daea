package blog

import (
	"context"
	"errors"
	"testing"

	"github.com/sunublog/sunublog/internal/db"
	"github.com/sunublog/sunublog/internal/models"
)

func TestRegister(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	valid := func(mutate func(*RegisterInput)) RegisterInput {
		in := RegisterInput{
			Name:                 "Alice",
			Username:             "alice",
			Email:                "Alice@Example.com",
			Phone:                ptr("+221770000000"),
			Password:             "password123",
			PasswordConfirmation: "password123",
		}
		mutate(&in)
		return in
	}

	alice, err := svc.Identity.Register(ctx, valid(func(*RegisterInput) {}))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if alice.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lowercased", alice.Email)
	}
	if !alice.IsOnline || alice.LastSeen == nil {
		t.Errorf("new user online = %v, last_seen = %v; want online with last_seen", alice.IsOnline, alice.LastSeen)
	}
	if alice.PasswordHash == "password123" || alice.PasswordHash == "" {
		t.Error("password stored in clear")
	}

	tests := []struct {
		name      string
		input     RegisterInput
		want      Kind
		wantField string
	}{
		{"missing name", valid(func(in *RegisterInput) { in.Name = "" }), KindValidation, "name"},
		{"bad email", valid(func(in *RegisterInput) { in.Email = "not-an-email" }), KindValidation, "email"},
		{"short password", valid(func(in *RegisterInput) { in.Password, in.PasswordConfirmation = "short", "short" }), KindValidation, "password"},
		{"confirmation mismatch", valid(func(in *RegisterInput) { in.PasswordConfirmation = "different1" }), KindValidation, "password_confirmation"},
		{"username charset", valid(func(in *RegisterInput) { in.Username = "al ice" }), KindValidation, "username"},
		{"username taken", valid(func(in *RegisterInput) { in.Email, in.Phone = "other@example.com", nil }), KindConflict, "username"},
		{"email taken", valid(func(in *RegisterInput) { in.Username, in.Phone = "other", nil }), KindConflict, "email"},
		{"phone taken", valid(func(in *RegisterInput) { in.Username, in.Email = "other", "other@example.com" }), KindConflict, "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Identity.Register(ctx, tt.input)
			wantKind(t, err, tt.want)
			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("Register() error = %T, want *Error", err)
			}
			if _, ok := e.Fields[tt.wantField]; !ok {
				t.Errorf("Fields = %v, want %q", e.Fields, tt.wantField)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	user, err := svc.Identity.Register(ctx, RegisterInput{
		Name:                 "Bob",
		Username:             "bob",
		Email:                "bob@example.com",
		Phone:                ptr("771234567"),
		Password:             "password123",
		PasswordConfirmation: "password123",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := svc.Identity.Logout(ctx, user); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	me, err := svc.Identity.Me(ctx, user)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if me.IsOnline {
		t.Error("IsOnline = true after logout, want false")
	}

	tests := []struct {
		name       string
		identifier string
		password   string
		want       Kind
	}{
		{"by email", "bob@example.com", "password123", 0},
		{"by email any case", "BOB@example.com", "password123", 0},
		{"by username", "bob", "password123", 0},
		{"by phone", "771234567", "password123", 0},
		{"wrong password", "bob", "password124", KindAuthentication},
		{"unknown user", "nobody", "password123", KindAuthentication},
		{"empty identifier", "  ", "password123", KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Identity.Login(ctx, LoginInput{Identifier: tt.identifier, Password: tt.password})
			if tt.want != 0 {
				wantKind(t, err, tt.want)
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if got.ID != user.ID || !got.IsOnline {
				t.Errorf("Login() = %+v, want bob online", got)
			}
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	alice := mustRegister(t, svc, "alice")
	mustRegister(t, svc, "bob")

	updated, err := svc.Identity.UpdateProfile(ctx, alice, ProfilePatch{
		Name: ptr("Alice Liddell"),
		Bio:  ptr("Curiouser and curiouser"),
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.Name != "Alice Liddell" || updated.Bio == nil || *updated.Bio != "Curiouser and curiouser" {
		t.Errorf("UpdateProfile() = %+v, want new name and bio", updated)
	}
	if updated.Username != "alice" {
		t.Errorf("Username = %q, want unchanged", updated.Username)
	}

	cleared, err := svc.Identity.UpdateProfile(ctx, alice, ProfilePatch{Bio: ptr("")})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if cleared.Bio != nil {
		t.Errorf("Bio = %q, want cleared", *cleared.Bio)
	}

	tests := []struct {
		name  string
		patch ProfilePatch
		want  Kind
	}{
		{"username taken", ProfilePatch{Username: ptr("bob")}, KindConflict},
		{"email taken", ProfilePatch{Email: ptr("BOB@example.com")}, KindConflict},
		{"blank name", ProfilePatch{Name: ptr("  ")}, KindValidation},
		{"bad email", ProfilePatch{Email: ptr("nope")}, KindValidation},
		{"bio too long", ProfilePatch{Bio: ptr(string(make([]byte, 501)))}, KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Identity.UpdateProfile(ctx, alice, tt.patch)
			wantKind(t, err, tt.want)
		})
	}

	t.Run("own username is not a conflict", func(t *testing.T) {
		if _, err := svc.Identity.UpdateProfile(ctx, alice, ProfilePatch{Username: ptr("alice")}); err != nil {
			t.Errorf("UpdateProfile() error = %v", err)
		}
	})
}

func TestChangePassword(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	alice := mustRegister(t, svc, "alice")

	err := svc.Identity.ChangePassword(ctx, alice, PasswordChange{
		CurrentPassword:      "wrong-password",
		Password:             "new-password",
		PasswordConfirmation: "new-password",
	})
	wantKind(t, err, KindValidation)

	if err := svc.Identity.ChangePassword(ctx, alice, PasswordChange{
		CurrentPassword:      "secret-password",
		Password:             "new-password",
		PasswordConfirmation: "new-password",
	}); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	if _, err := svc.Identity.Login(ctx, LoginInput{Identifier: "alice", Password: "secret-password"}); !errors.Is(err, ErrAuthentication) {
		t.Errorf("Login(old password) error = %v, want authentication error", err)
	}
	if _, err := svc.Identity.Login(ctx, LoginInput{Identifier: "alice", Password: "new-password"}); err != nil {
		t.Errorf("Login(new password) error = %v", err)
	}
}

func TestPublicProfile(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	alice := mustRegister(t, svc, "alice")
	mustPublish(t, svc, alice, "Visible")
	mustCreate(t, svc, alice, ArticleInput{Title: "Hidden", Excerpt: "e", Content: "c", Status: "draft", Visibility: "public"})

	profile, err := svc.Identity.PublicProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("PublicProfile() error = %v", err)
	}
	if profile.User.ID != alice.ID {
		t.Errorf("User.ID = %d, want %d", profile.User.ID, alice.ID)
	}
	if len(profile.Articles) != 1 || profile.Articles[0].Title != "Visible" {
		t.Errorf("Articles = %d, want only the published one", len(profile.Articles))
	}

	_, err = svc.Identity.PublicProfile(ctx, "nobody")
	wantKind(t, err, KindNotFound)
}

func TestDeleteAccount(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	leaver := mustRegister(t, svc, "leaver")
	stayer := mustRegister(t, svc, "stayer")

	own := mustPublish(t, svc, leaver, "Leaver's post", "go")
	other := mustPublish(t, svc, stayer, "Stayer's post", "go")

	// stayer engages with leaver's post; all of it goes away with the post
	if _, err := svc.Engagement.AddComment(ctx, own.ID, stayer, CommentInput{Content: "on leaver's post"}); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}

	// leaver engages with stayer's post
	top, err := svc.Engagement.AddComment(ctx, other.ID, leaver, CommentInput{Content: "top by leaver"})
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if _, err := svc.Engagement.AddComment(ctx, other.ID, stayer, CommentInput{Content: "reply by stayer", ParentID: &top.ID}); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if _, err := svc.Engagement.AddComment(ctx, other.ID, leaver, CommentInput{Content: "own reply", ParentID: &top.ID}); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	stayerTop, err := svc.Engagement.AddComment(ctx, other.ID, stayer, CommentInput{Content: "top by stayer"})
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if _, err := svc.Engagement.AddComment(ctx, other.ID, leaver, CommentInput{Content: "reply by leaver", ParentID: &stayerTop.ID}); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	for _, target := range []models.LikeTarget{models.ArticleTarget(other.ID), models.CommentTarget(stayerTop.ID)} {
		if _, err := svc.Engagement.ToggleLike(ctx, target, leaver); err != nil {
			t.Fatalf("ToggleLike() error = %v", err)
		}
	}
	if _, err := svc.Engagement.ToggleBookmark(ctx, other.ID, leaver); err != nil {
		t.Fatalf("ToggleBookmark() error = %v", err)
	}
	edge, err := svc.Social.SendRequest(ctx, leaver, stayer.ID)
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if _, err := svc.Social.RespondToRequest(ctx, edge.ID, stayer, DecisionAccept); err != nil {
		t.Fatalf("RespondToRequest() error = %v", err)
	}

	wantKind(t, svc.Identity.DeleteAccount(ctx, leaver, "wrong-password"), KindValidation)
	if err := svc.Identity.DeleteAccount(ctx, leaver, "secret-password"); err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}

	_, err = svc.Identity.GetUser(ctx, leaver.ID)
	wantKind(t, err, KindNotFound)
	_, err = svc.Content.GetArticle(ctx, own.ID, stayer)
	wantKind(t, err, KindNotFound)

	article, err := db.NewArticleRepository(svc.Content.repo).GetByID(ctx, other.ID)
	if err != nil || article == nil {
		t.Fatalf("GetByID() = %v, %v; want stayer's article", article, err)
	}
	// Only "top by stayer" survives
	if article.CommentsCount != 1 || article.LikesCount != 0 || article.BookmarksCount != 0 {
		t.Errorf("counters = comments %d likes %d bookmarks %d, want 1 0 0",
			article.CommentsCount, article.LikesCount, article.BookmarksCount)
	}
	ids, err := db.NewCommentRepository(svc.Content.repo).IDsByArticle(ctx, other.ID)
	if err != nil {
		t.Fatalf("IDsByArticle() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != stayerTop.ID {
		t.Errorf("remaining comments = %v, want [%d]", ids, stayerTop.ID)
	}
	likes, err := svc.Content.repo.ReadCounter(ctx, models.Comment{}.TableName(), "likes_count", stayerTop.ID)
	if err != nil {
		t.Fatalf("ReadCounter() error = %v", err)
	}
	if likes != 0 {
		t.Errorf("comment likes_count = %d, want 0", likes)
	}
	if edges := edgesBetween(t, svc, leaver.ID, stayer.ID); len(edges) != 0 {
		t.Errorf("%d friend edges left, want 0", len(edges))
	}

	tags, err := svc.Content.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if len(tags) != 1 || tags[0].ArticlesCount != 1 {
		t.Errorf("tags = %+v, want go with articles_count 1", tags)
	}
}
