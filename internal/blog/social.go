package blog

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/sunublog/sunublog/internal/db"
	"github.com/sunublog/sunublog/internal/models"
	"github.com/sunublog/sunublog/pkg/logging"
	"github.com/sunublog/sunublog/pkg/telemetry"
)

const (
	searchResultLimit = 10
	minSearchLength   = 2
)

// Decision answers a pending friend request
type Decision string

// Friend request decisions
const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// UserSearchResult is a user annotated with the searcher's relationship to them
type UserSearchResult struct {
	User             models.PublicUser `json:"user"`
	FriendshipStatus string            `json:"friendship_status"`
	FriendshipID     *int64            `json:"friendship_id,string,omitempty"`
}

// FriendOverview groups the actor's edges for the friends page
type FriendOverview struct {
	Friends         []*models.Friend `json:"friends"`
	PendingReceived []*models.Friend `json:"pending_received"`
	PendingSent     []*models.Friend `json:"pending_sent"`
}

// SocialService manages friend requests and friendships
type SocialService struct {
	repo          *db.Repository
	notifications *NotificationService
	now           Clock
	logger        *zap.Logger
}

// NewSocialService creates a new social service
func NewSocialService(repo *db.Repository, notifications *NotificationService, now Clock) *SocialService {
	if now == nil {
		now = systemClock
	}
	return &SocialService{
		repo:          repo,
		notifications: notifications,
		now:           now,
		logger:        logging.WithComponent("social-service"),
	}
}

// SendRequest creates a pending edge from requester to recipientID and notifies the recipient
func (s *SocialService) SendRequest(ctx context.Context, requester *models.User, recipientID int64) (edge *models.Friend, err error) {
	ctx, span := telemetry.StartSpan(ctx, "social.SendRequest")
	span.SetAttributes(telemetry.Int64("recipient.id", recipientID))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(requester); err != nil {
		return nil, err
	}
	if recipientID == requester.ID {
		return nil, FieldError("friend_id", "You cannot send a friend request to yourself.")
	}

	edge = &models.Friend{
		UserID:   requester.ID,
		FriendID: recipientID,
		Status:   models.FriendStatusPending,
	}
	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		recipient, err := db.NewUserRepository(tx).GetByID(ctx, recipientID)
		if err != nil {
			return err
		}
		if recipient == nil {
			return NotFoundError("User not found.")
		}

		friends := db.NewFriendRepository(tx)
		existing, err := friends.Between(ctx, requester.ID, recipientID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ConflictError("Friendship already exists.", nil)
		}
		if err := friends.Create(ctx, edge); err != nil {
			return conflictOnDuplicate(err, "Friendship already exists.")
		}

		return s.notifications.record(ctx, tx, recipientID, models.NotifyTypeFriendRequest,
			"New friend request",
			fmt.Sprintf("%s sent you a friend request", requester.Name),
			map[string]interface{}{
				"user_id":           requester.ID,
				"friend_request_id": edge.ID,
			})
	})
	if err != nil {
		return nil, err
	}
	s.notifications.invalidate(ctx, recipientID)

	s.logger.Info("Friend request sent",
		zap.Int64("edge_id", edge.ID),
		zap.Int64("user_id", requester.ID),
		zap.Int64("friend_id", recipientID))
	return edge, nil
}

// RespondToRequest accepts or rejects a pending request addressed to actor.
// Accepting mirrors the edge; rejecting deletes it and returns nil.
func (s *SocialService) RespondToRequest(ctx context.Context, edgeID int64, actor *models.User, decision Decision) (edge *models.Friend, err error) {
	ctx, span := telemetry.StartSpan(ctx, "social.RespondToRequest")
	span.SetAttributes(telemetry.Int64("edge.id", edgeID))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if decision != DecisionAccept && decision != DecisionReject {
		return nil, FieldError("decision", "must be one of: accept, reject")
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repository) error {
		friends := db.NewFriendRepository(tx)
		var err error
		edge, err = s.pendingFor(ctx, friends, edgeID, actor)
		if err != nil {
			return err
		}

		if decision == DecisionReject {
			edge = nil
			return friends.Delete(ctx, edgeID)
		}

		now := s.now()
		if err := friends.UpdateStatus(ctx, edge.ID, models.FriendStatusAccepted, &now); err != nil {
			return err
		}
		edge.Status = models.FriendStatusAccepted
		edge.AcceptedAt = &now

		if err := mirrorAccepted(ctx, friends, edge, now); err != nil {
			return err
		}

		return s.notifications.record(ctx, tx, edge.UserID, models.NotifyTypeFriendAccepted,
			"Friend request accepted",
			fmt.Sprintf("%s accepted your friend request", actor.Name),
			map[string]interface{}{"user_id": actor.ID})
	})
	if err != nil {
		return nil, err
	}
	if edge != nil {
		s.notifications.invalidate(ctx, edge.UserID)
	}
	return edge, nil
}

// mirrorAccepted creates or accepts the reverse edge of an accepted edge
func mirrorAccepted(ctx context.Context, friends *db.FriendRepository, edge *models.Friend, now time.Time) error {
	reverse, err := friends.Get(ctx, edge.FriendID, edge.UserID)
	if err != nil {
		return err
	}
	if reverse != nil {
		return friends.UpdateStatus(ctx, reverse.ID, models.FriendStatusAccepted, &now)
	}
	return friends.Create(ctx, &models.Friend{
		UserID:     edge.FriendID,
		FriendID:   edge.UserID,
		Status:     models.FriendStatusAccepted,
		AcceptedAt: &now,
	})
}

// Block marks a pending request addressed to actor as blocked. The requester
// cannot send a new request while the blocked edge exists.
func (s *SocialService) Block(ctx context.Context, edgeID int64, actor *models.User) (*models.Friend, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}

	var edge *models.Friend
	err := s.repo.Transaction(ctx, func(tx *db.Repository) error {
		friends := db.NewFriendRepository(tx)
		var err error
		edge, err = s.pendingFor(ctx, friends, edgeID, actor)
		if err != nil {
			return err
		}
		edge.Status = models.FriendStatusBlocked
		return friends.UpdateStatus(ctx, edge.ID, models.FriendStatusBlocked, nil)
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// pendingFor loads a pending edge addressed to actor
func (s *SocialService) pendingFor(ctx context.Context, friends *db.FriendRepository, edgeID int64, actor *models.User) (*models.Friend, error) {
	edge, err := friends.GetByID(ctx, edgeID)
	if err != nil {
		return nil, err
	}
	if edge == nil {
		return nil, NotFoundError("Friend request not found.")
	}
	if edge.FriendID != actor.ID {
		return nil, AuthorizationError("Only the recipient can respond to this friend request.")
	}
	if edge.Status != models.FriendStatusPending {
		return nil, ConflictError("Friend request is no longer pending.", nil)
	}
	return edge, nil
}

// RemoveFriend deletes an edge the actor is part of, and its mirror when accepted
func (s *SocialService) RemoveFriend(ctx context.Context, edgeID int64, actor *models.User) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "social.RemoveFriend")
	span.SetAttributes(telemetry.Int64("edge.id", edgeID))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := RequireActor(actor); err != nil {
		return err
	}

	return s.repo.Transaction(ctx, func(tx *db.Repository) error {
		friends := db.NewFriendRepository(tx)
		edge, err := friends.GetByID(ctx, edgeID)
		if err != nil {
			return err
		}
		if edge == nil {
			return NotFoundError("Friendship not found.")
		}
		if !edge.Involves(actor.ID) {
			return AuthorizationError("You are not part of this friendship.")
		}
		if edge.Status == models.FriendStatusAccepted {
			if err := friends.DeletePair(ctx, edge.FriendID, edge.UserID); err != nil {
				return err
			}
		}
		return friends.Delete(ctx, edge.ID)
	})
}

// SearchUsers finds up to ten other users by name, username or email
func (s *SocialService) SearchUsers(ctx context.Context, query string, actor *models.User) ([]UserSearchResult, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minSearchLength {
		return nil, FieldError("query", fmt.Sprintf("must be at least %d characters", minSearchLength))
	}

	users, err := db.NewUserRepository(s.repo).Search(ctx, query, actor.ID, searchResultLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	edges, err := db.NewFriendRepository(s.repo).BetweenMany(ctx, actor.ID, ids)
	if err != nil {
		return nil, err
	}

	// Edges from the actor win over edges toward the actor
	outgoing := make(map[int64]*models.Friend, len(edges))
	incoming := make(map[int64]*models.Friend, len(edges))
	for _, e := range edges {
		if e.UserID == actor.ID {
			outgoing[e.FriendID] = e
		} else {
			incoming[e.UserID] = e
		}
	}

	results := make([]UserSearchResult, 0, len(users))
	for _, u := range users {
		r := UserSearchResult{User: u.Public(), FriendshipStatus: models.FriendStatusNone}
		edge := outgoing[u.ID]
		if edge == nil {
			edge = incoming[u.ID]
		}
		if edge != nil {
			id := edge.ID
			r.FriendshipStatus = edge.Status
			r.FriendshipID = &id
		}
		results = append(results, r)
	}
	return results, nil
}

// ListFriends returns the actor's accepted edges with the friend preloaded
func (s *SocialService) ListFriends(ctx context.Context, actor *models.User) ([]*models.Friend, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	return db.NewFriendRepository(s.repo).Outgoing(ctx, actor.ID, models.FriendStatusAccepted)
}

// Overview returns friends plus pending requests in both directions
func (s *SocialService) Overview(ctx context.Context, actor *models.User) (*FriendOverview, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}

	friends := db.NewFriendRepository(s.repo)
	overview := &FriendOverview{}

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) (err error) {
		overview.Friends, err = friends.Outgoing(ctx, actor.ID, models.FriendStatusAccepted)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		overview.PendingReceived, err = friends.Incoming(ctx, actor.ID, models.FriendStatusPending)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		overview.PendingSent, err = friends.Outgoing(ctx, actor.ID, models.FriendStatusPending)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return overview, nil
}
