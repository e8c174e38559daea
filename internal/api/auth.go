package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sunublog/sunublog/internal/auth"
	"github.com/sunublog/sunublog/internal/blog"
	"github.com/sunublog/sunublog/internal/models"
)

// Session is returned by register, login and refresh
type Session struct {
	User *models.User `json:"user,omitempty"`
	*auth.Token
}

func (r *Router) register(c *gin.Context) {
	var in blog.RegisterInput
	if err := bind(c, &in); err != nil {
		r.respondError(c, err)
		return
	}

	user, err := r.services.Identity.Register(c.Request.Context(), in)
	if err != nil {
		r.respondError(c, err)
		return
	}
	token, err := r.tokens.Issue(user.ID)
	if err != nil {
		r.respondError(c, err)
		return
	}

	success(c, http.StatusCreated, "Registration successful.", Session{User: user, Token: token})
}

func (r *Router) login(c *gin.Context) {
	var in blog.LoginInput
	if err := bind(c, &in); err != nil {
		r.respondError(c, err)
		return
	}

	user, err := r.services.Identity.Login(c.Request.Context(), in)
	if err != nil {
		r.respondError(c, err)
		return
	}
	token, err := r.tokens.Issue(user.ID)
	if err != nil {
		r.respondError(c, err)
		return
	}

	success(c, http.StatusOK, "Login successful.", Session{User: user, Token: token})
}

func (r *Router) logout(c *gin.Context) {
	ctx := c.Request.Context()
	if err := r.tokens.Revoke(ctx, claimsFrom(c)); err != nil {
		r.respondError(c, err)
		return
	}
	if err := r.services.Identity.Logout(ctx, actorFrom(c)); err != nil {
		r.logger.Warn("Failed to mark user offline", zap.Error(err))
	}
	success(c, http.StatusOK, "Logged out successfully.", nil)
}

func (r *Router) refresh(c *gin.Context) {
	token, err := r.tokens.Refresh(c.Request.Context(), claimsFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Token refreshed.", Session{Token: token})
}

func (r *Router) currentUser(c *gin.Context) {
	user, err := r.services.Identity.Me(c.Request.Context(), actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "User retrieved successfully.", user)
}
