package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sunublog/sunublog/internal/blog"
)

type deleteAccountBody struct {
	Password string `json:"password"`
}

func (r *Router) publicProfile(c *gin.Context) {
	profile, err := r.services.Identity.PublicProfile(c.Request.Context(), c.Param("username"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Profile retrieved successfully.", profile)
}

func (r *Router) updateProfile(c *gin.Context) {
	var patch blog.ProfilePatch
	if err := bind(c, &patch); err != nil {
		r.respondError(c, err)
		return
	}
	user, err := r.services.Identity.UpdateProfile(c.Request.Context(), actorFrom(c), patch)
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Profile updated successfully.", user)
}

func (r *Router) changePassword(c *gin.Context) {
	var in blog.PasswordChange
	if err := bind(c, &in); err != nil {
		r.respondError(c, err)
		return
	}
	if err := r.services.Identity.ChangePassword(c.Request.Context(), actorFrom(c), in); err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Password changed successfully.", nil)
}

// deleteAccount removes the actor and revokes the token used for the request
func (r *Router) deleteAccount(c *gin.Context) {
	var body deleteAccountBody
	if err := bind(c, &body); err != nil {
		r.respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := r.services.Identity.DeleteAccount(ctx, actorFrom(c), body.Password); err != nil {
		r.respondError(c, err)
		return
	}
	if err := r.tokens.Revoke(ctx, claimsFrom(c)); err != nil {
		r.logger.Warn("Failed to revoke token of deleted account", zap.Error(err))
	}
	success(c, http.StatusOK, "Account deleted successfully.", nil)
}
