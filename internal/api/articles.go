package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sunublog/sunublog/internal/blog"
	"github.com/sunublog/sunublog/internal/models"
)

func (r *Router) listArticles(c *gin.Context) {
	filter := blog.ArticleFilter{
		Search:     c.Query("search"),
		Tag:        c.Query("tag"),
		Author:     c.Query("author"),
		Status:     c.Query("status"),
		Visibility: c.Query("visibility"),
		Sort:       c.Query("sort"),
		Direction:  c.Query("direction"),
	}

	page, err := r.services.Content.ListArticles(c.Request.Context(), filter, pageFrom(c), actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Articles retrieved successfully.", page)
}

func (r *Router) getArticle(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	article, err := r.services.Content.GetArticle(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Article retrieved successfully.", article)
}

func (r *Router) getArticleBySlug(c *gin.Context) {
	article, err := r.services.Content.GetArticleBySlug(c.Request.Context(), c.Param("slug"), actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Article retrieved successfully.", article)
}

func (r *Router) createArticle(c *gin.Context) {
	var in blog.ArticleInput
	if err := bind(c, &in); err != nil {
		r.respondError(c, err)
		return
	}
	article, err := r.services.Content.CreateArticle(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusCreated, "Article created successfully.", article)
}

func (r *Router) updateArticle(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	var patch blog.ArticlePatch
	if err := bind(c, &patch); err != nil {
		r.respondError(c, err)
		return
	}
	article, err := r.services.Content.UpdateArticle(c.Request.Context(), id, actorFrom(c), patch)
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Article updated successfully.", article)
}

func (r *Router) deleteArticle(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	if err := r.services.Content.DeleteArticle(c.Request.Context(), id, actorFrom(c)); err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Article deleted successfully.", nil)
}

func (r *Router) likeArticle(c *gin.Context) {
	r.toggleLike(c, models.LikeKindArticle)
}

func (r *Router) likeComment(c *gin.Context) {
	r.toggleLike(c, models.LikeKindComment)
}

func (r *Router) toggleLike(c *gin.Context, kind string) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	state, err := r.services.Engagement.ToggleLike(c.Request.Context(), models.LikeTarget{Kind: kind, ID: id}, actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	message := "Like removed."
	if state.Liked {
		message = "Liked."
	}
	success(c, http.StatusOK, message, state)
}

func (r *Router) bookmarkArticle(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	state, err := r.services.Engagement.ToggleBookmark(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	message := "Bookmark removed."
	if state.Bookmarked {
		message = "Bookmarked."
	}
	success(c, http.StatusOK, message, state)
}

func (r *Router) listBookmarks(c *gin.Context) {
	page, err := r.services.Engagement.ListBookmarks(c.Request.Context(), actorFrom(c), pageFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Bookmarks retrieved successfully.", page)
}

func (r *Router) listTags(c *gin.Context) {
	tags, err := r.services.Content.ListTags(c.Request.Context())
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Tags retrieved successfully.", tags)
}
