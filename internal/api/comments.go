package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sunublog/sunublog/internal/blog"
)

type commentBody struct {
	Content  string  `json:"content"`
	ParentID *bodyID `json:"parent_id"`
}

func (b commentBody) input() blog.CommentInput {
	in := blog.CommentInput{Content: b.Content}
	if b.ParentID != nil {
		parentID := int64(*b.ParentID)
		in.ParentID = &parentID
	}
	return in
}

func (r *Router) listComments(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	page, err := r.services.Engagement.ListComments(c.Request.Context(), id, actorFrom(c), pageFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Comments retrieved successfully.", page)
}

func (r *Router) addComment(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	var body commentBody
	if err := bind(c, &body); err != nil {
		r.respondError(c, err)
		return
	}
	comment, err := r.services.Engagement.AddComment(c.Request.Context(), id, actorFrom(c), body.input())
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusCreated, "Comment added successfully.", comment)
}

func (r *Router) updateComment(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	var body commentBody
	if err := bind(c, &body); err != nil {
		r.respondError(c, err)
		return
	}
	comment, err := r.services.Engagement.UpdateComment(c.Request.Context(), id, actorFrom(c), body.Content)
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Comment updated successfully.", comment)
}

func (r *Router) deleteComment(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	if err := r.services.Engagement.DeleteComment(c.Request.Context(), id, actorFrom(c)); err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Comment deleted successfully.", nil)
}
