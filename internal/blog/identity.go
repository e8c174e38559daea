package blog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sunublog/sunublog/internal/db"
	"github.com/sunublog/sunublog/internal/models"
	"github.com/sunublog/sunublog/pkg/logging"
	"github.com/sunublog/sunublog/pkg/password"
	"github.com/sunublog/sunublog/pkg/telemetry"
)

const profileArticleLimit = 10

// RegisterInput is the payload of a new account
type RegisterInput struct {
	Name                 string  `json:"name" validate:"required,max=255"`
	Username             string  `json:"username" validate:"required,max=50,username"`
	Email                string  `json:"email" validate:"required,email,max=255"`
	Phone                *string `json:"phone" validate:"omitempty,max=20"`
	Password             string  `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirmation string  `json:"password_confirmation" validate:"eqfield=Password"`
}

// LoginInput identifies a user by email, username or phone
type LoginInput struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// ProfilePatch changes the supplied profile fields only
type ProfilePatch struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
	Username *string `json:"username" validate:"omitempty,min=1,max=50,username"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Phone    *string `json:"phone" validate:"omitempty,max=20"`
	Bio      *string `json:"bio" validate:"omitempty,max=500"`
	Avatar   *string `json:"avatar" validate:"omitempty,max=255"`
}

// PasswordChange replaces the actor's password
type PasswordChange struct {
	CurrentPassword      string `json:"current_password" validate:"required"`
	Password             string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirmation string `json:"password_confirmation" validate:"eqfield=Password"`
}

// Profile is a user's public page
type Profile struct {
	User     models.PublicUser `json:"user"`
	Articles []*models.Article `json:"articles"`
}

// IdentityService manages accounts and credentials. Token issuance lives in internal/auth.
type IdentityService struct {
	repo   *db.Repository
	now    Clock
	logger *zap.Logger
}

// NewIdentityService creates a new identity service
func NewIdentityService(repo *db.Repository, now Clock) *IdentityService {
	if now == nil {
		now = systemClock
	}
	return &IdentityService{
		repo:   repo,
		now:    now,
		logger: logging.WithComponent("identity-service"),
	}
}

// Register creates an account and marks it online
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (user *models.User, err error) {
	ctx, span := telemetry.StartSpan(ctx, "identity.Register")
	defer func() { telemetry.EndSpan(span, err) }()

	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = trimOptional(in.Phone)
	if in.Phone != nil && *in.Phone == "" {
		in.Phone = nil
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	users := db.NewUserRepository(s.repo)
	if err := s.checkUnique(ctx, users, 0, map[string]*string{
		"username": &in.Username,
		"email":    &in.Email,
		"phone":    in.Phone,
	}); err != nil {
		return nil, err
	}

	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	user = &models.User{
		Name:         in.Name,
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: hash,
		IsOnline:     true,
		LastSeen:     &now,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, conflictOnDuplicate(err, "The account already exists.")
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Login checks credentials and marks the user online
func (s *IdentityService) Login(ctx context.Context, in LoginInput) (user *models.User, err error) {
	ctx, span := telemetry.StartSpan(ctx, "identity.Login")
	defer func() { telemetry.EndSpan(span, err) }()

	in.Identifier = strings.TrimSpace(in.Identifier)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	users := db.NewUserRepository(s.repo)
	user, err = users.GetByIdentifier(ctx, in.Identifier)
	if err != nil {
		return nil, err
	}
	if user == nil && strings.Contains(in.Identifier, "@") {
		user, err = users.GetByIdentifier(ctx, strings.ToLower(in.Identifier))
		if err != nil {
			return nil, err
		}
	}
	if user == nil || !password.Verify(in.Password, user.PasswordHash) {
		return nil, AuthenticationError("Invalid credentials.")
	}

	now := s.now()
	if err := users.UpdateFields(ctx, user.ID, map[string]interface{}{"is_online": true, "last_seen": now}); err != nil {
		return nil, err
	}
	user.IsOnline = true
	user.LastSeen = &now
	return user, nil
}

// Logout marks the actor offline. Revoking the bearer token is the caller's job.
func (s *IdentityService) Logout(ctx context.Context, actor *models.User) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	now := s.now()
	return db.NewUserRepository(s.repo).UpdateFields(ctx, actor.ID, map[string]interface{}{"is_online": false, "last_seen": now})
}

// Me reloads the actor
func (s *IdentityService) Me(ctx context.Context, actor *models.User) (*models.User, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, actor.ID)
}

// GetUser loads a user by id
func (s *IdentityService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := db.NewUserRepository(s.repo).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NotFoundError("User not found.")
	}
	return user, nil
}

// PublicProfile returns a user by username with their latest publicly visible articles
func (s *IdentityService) PublicProfile(ctx context.Context, username string) (*Profile, error) {
	user, err := db.NewUserRepository(s.repo).GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NotFoundError("User not found.")
	}

	articles, _, err := db.NewArticleRepository(s.repo).List(ctx, db.ArticleQuery{
		Author:     user.Username,
		Now:        s.now(),
		SortColumn: "published_at",
		Desc:       true,
		Limit:      profileArticleLimit,
	})
	if err != nil {
		return nil, err
	}
	return &Profile{User: user.Public(), Articles: articles}, nil
}

// UpdateProfile applies the supplied fields. Username, email and phone stay unique.
func (s *IdentityService) UpdateProfile(ctx context.Context, actor *models.User, patch ProfilePatch) (user *models.User, err error) {
	ctx, span := telemetry.StartSpan(ctx, "identity.UpdateProfile")
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	patch.Name = trimOptional(patch.Name)
	patch.Username = trimOptional(patch.Username)
	patch.Email = trimOptional(patch.Email)
	if patch.Email != nil {
		lower := strings.ToLower(*patch.Email)
		patch.Email = &lower
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	if err := collect(
		requiredIfSet("name", patch.Name),
		requiredIfSet("username", patch.Username),
		requiredIfSet("email", patch.Email),
	); err != nil {
		return nil, err
	}

	users := db.NewUserRepository(s.repo)
	if err := s.checkUnique(ctx, users, actor.ID, map[string]*string{
		"username": patch.Username,
		"email":    patch.Email,
		"phone":    patch.Phone,
	}); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if patch.Name != nil {
		fields["name"] = *patch.Name
	}
	if patch.Username != nil {
		fields["username"] = *patch.Username
	}
	if patch.Email != nil {
		fields["email"] = *patch.Email
	}
	if patch.Phone != nil {
		fields["phone"] = nullable(*patch.Phone)
	}
	if patch.Bio != nil {
		fields["bio"] = nullable(*patch.Bio)
	}
	if patch.Avatar != nil {
		fields["avatar"] = nullable(*patch.Avatar)
	}
	if len(fields) > 0 {
		if err := users.UpdateFields(ctx, actor.ID, fields); err != nil {
			return nil, conflictOnDuplicate(err, "The profile conflicts with another account.")
		}
	}
	return s.GetUser(ctx, actor.ID)
}

// ChangePassword replaces the actor's password after checking the current one
func (s *IdentityService) ChangePassword(ctx context.Context, actor *models.User, in PasswordChange) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if err := validateStruct(in); err != nil {
		return err
	}
	user, err := s.GetUser(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !password.Verify(in.CurrentPassword, user.PasswordHash) {
		return FieldError("current_password", "is incorrect")
	}
	hash, err := password.Hash(in.Password)
	if err != nil {
		return err
	}
	return db.NewUserRepository(s.repo).UpdateFields(ctx, actor.ID, map[string]interface{}{"password": hash})
}

// DeleteAccount removes the actor and everything they own in one transaction.
// Counters on other users' content are lowered to match the removed rows.
func (s *IdentityService) DeleteAccount(ctx context.Context, actor *models.User, plain string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "identity.DeleteAccount")
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(actor); err != nil {
		return err
	}
	user, err := s.GetUser(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !password.Verify(plain, user.PasswordHash) {
		return FieldError("password", "is incorrect")
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		articleIDs, err := db.NewArticleRepository(tx).IDsByUser(ctx, user.ID)
		if err != nil {
			return err
		}
		for _, id := range articleIDs {
			if err := deleteArticleTx(ctx, tx, id); err != nil {
				return err
			}
		}
		if err := deleteCommentsByUser(ctx, tx, user.ID); err != nil {
			return err
		}

		likes := db.NewLikeRepository(tx)
		liked, err := likes.ByUser(ctx, user.ID)
		if err != nil {
			return err
		}
		for _, l := range liked {
			t := l.Target()
			if err := tx.AdjustCounter(ctx, t.Table(), "likes_count", t.ID, -1); err != nil {
				return err
			}
		}
		if err := likes.DeleteByUser(ctx, user.ID); err != nil {
			return err
		}

		bookmarks := db.NewBookmarkRepository(tx)
		saved, err := bookmarks.ByUser(ctx, user.ID)
		if err != nil {
			return err
		}
		for _, b := range saved {
			if err := tx.AdjustCounter(ctx, models.Article{}.TableName(), "bookmarks_count", b.ArticleID, -1); err != nil {
				return err
			}
		}
		if err := bookmarks.DeleteByUser(ctx, user.ID); err != nil {
			return err
		}

		if err := db.NewFriendRepository(tx).DeleteInvolving(ctx, user.ID); err != nil {
			return err
		}
		if err := db.NewNotificationRepository(tx).DeleteByUser(ctx, user.ID); err != nil {
			return err
		}
		return db.NewUserRepository(tx).Delete(ctx, user.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Account deleted", zap.Int64("user_id", user.ID))
	return nil
}

// deleteCommentsByUser removes the user's comments left on other articles,
// with the replies under their top-level ones
func deleteCommentsByUser(ctx context.Context, tx *db.Repository, userID int64) error {
	comments := db.NewCommentRepository(tx)
	own, err := comments.ByUser(ctx, userID)
	if err != nil {
		return err
	}

	removed := map[int64]bool{}
	perArticle := map[int64]int64{}
	var ids []int64
	add := func(id, articleID int64) {
		if removed[id] {
			return
		}
		removed[id] = true
		perArticle[articleID]++
		ids = append(ids, id)
	}

	for _, c := range own {
		if c.IsReply() {
			continue
		}
		add(c.ID, c.ArticleID)
		replies, err := comments.ReplyIDs(ctx, c.ID)
		if err != nil {
			return err
		}
		for _, id := range replies {
			add(id, c.ArticleID)
		}
	}
	for _, c := range own {
		if c.IsReply() {
			add(c.ID, c.ArticleID)
		}
	}

	if err := comments.DeleteByIDs(ctx, ids); err != nil {
		return err
	}
	for articleID, n := range perArticle {
		if err := tx.AdjustCounter(ctx, models.Article{}.TableName(), "comments_count", articleID, -n); err != nil {
			return err
		}
	}
	return nil
}

// checkUnique reports every supplied column already held by another user
func (s *IdentityService) checkUnique(ctx context.Context, users *db.UserRepository, excludeID int64, values map[string]*string) error {
	fields := map[string]string{}
	for column, v := range values {
		if v == nil || *v == "" {
			continue
		}
		taken, err := users.IsTaken(ctx, column, *v, excludeID)
		if err != nil {
			return err
		}
		if taken {
			fields[column] = "has already been taken"
		}
	}
	if len(fields) > 0 {
		return ConflictError("The given data conflicts with an existing account.", fields)
	}
	return nil
}

// requiredIfSet rejects a supplied but empty value
func requiredIfSet(field string, v *string) error {
	if v != nil && *v == "" {
		return FieldError(field, "is required")
	}
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// nullable maps an empty optional string to NULL
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
