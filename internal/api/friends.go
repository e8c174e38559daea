package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sunublog/sunublog/internal/blog"
)

type friendRequestBody struct {
	FriendID bodyID `json:"friend_id"`
}

// listFriends returns the friend overview, or only accepted friends with ?scope=accepted
func (r *Router) listFriends(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("scope") == "accepted" {
		friends, err := r.services.Social.ListFriends(ctx, actorFrom(c))
		if err != nil {
			r.respondError(c, err)
			return
		}
		success(c, http.StatusOK, "Friends retrieved successfully.", friends)
		return
	}

	overview, err := r.services.Social.Overview(ctx, actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Friends retrieved successfully.", overview)
}

func (r *Router) sendFriendRequest(c *gin.Context) {
	var body friendRequestBody
	if err := bind(c, &body); err != nil {
		r.respondError(c, err)
		return
	}
	edge, err := r.services.Social.SendRequest(c.Request.Context(), actorFrom(c), int64(body.FriendID))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusCreated, "Friend request sent.", edge)
}

func (r *Router) searchUsers(c *gin.Context) {
	results, err := r.services.Social.SearchUsers(c.Request.Context(), c.Query("q"), actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Users retrieved successfully.", results)
}

func (r *Router) respondToRequest(decision blog.Decision) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			r.respondError(c, err)
			return
		}
		edge, err := r.services.Social.RespondToRequest(c.Request.Context(), id, actorFrom(c), decision)
		if err != nil {
			r.respondError(c, err)
			return
		}
		if decision == blog.DecisionReject {
			success(c, http.StatusOK, "Friend request rejected.", nil)
			return
		}
		success(c, http.StatusOK, "Friend request accepted.", edge)
	}
}

func (r *Router) blockRequest(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	edge, err := r.services.Social.Block(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "User blocked.", edge)
}

func (r *Router) removeFriend(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	if err := r.services.Social.RemoveFriend(c.Request.Context(), id, actorFrom(c)); err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Friend removed.", nil)
}
