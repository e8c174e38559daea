package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sunublog/sunublog/internal/auth"
	"github.com/sunublog/sunublog/internal/blog"
	"github.com/sunublog/sunublog/internal/cache"
	"github.com/sunublog/sunublog/internal/db"
	"github.com/sunublog/sunublog/pkg/logging"
)

// Router sets up API routes
type Router struct {
	services *blog.Services
	tokens   *auth.TokenService
	db       *db.DB
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewRouter creates a new API router. The cache may be nil.
func NewRouter(services *blog.Services, tokens *auth.TokenService, database *db.DB, redisCache *cache.Cache) *Router {
	return &Router{
		services: services,
		tokens:   tokens,
		db:       database,
		cache:    redisCache,
		logger:   logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes configures the middleware chain and all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(instrument(), accessLog(r.logger))
	engine.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, errNotFound.Message, nil)
	})

	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")
	optional := r.authenticate(false)
	required := r.authenticate(true)

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", r.register)
	authGroup.POST("/login", r.login)
	authGroup.POST("/logout", required, r.logout)
	authGroup.POST("/refresh", required, r.refresh)
	authGroup.GET("/user", required, r.currentUser)

	public := v1.Group("", optional)
	public.GET("/articles", r.listArticles)
	public.GET("/articles/slug/:slug", r.getArticleBySlug)
	public.GET("/articles/:id", r.getArticle)
	public.GET("/articles/:id/comments", r.listComments)
	public.GET("/tags", r.listTags)
	public.GET("/users/:username", r.publicProfile)

	private := v1.Group("", required)
	private.POST("/articles", r.createArticle)
	private.PUT("/articles/:id", r.updateArticle)
	private.DELETE("/articles/:id", r.deleteArticle)
	private.POST("/articles/:id/like", r.likeArticle)
	private.POST("/articles/:id/bookmark", r.bookmarkArticle)
	private.POST("/articles/:id/comments", r.addComment)
	private.GET("/bookmarks", r.listBookmarks)

	private.PUT("/comments/:id", r.updateComment)
	private.DELETE("/comments/:id", r.deleteComment)
	private.POST("/comments/:id/like", r.likeComment)

	private.GET("/friends", r.listFriends)
	private.POST("/friends", r.sendFriendRequest)
	private.GET("/friends/search", r.searchUsers)
	private.POST("/friends/:id/accept", r.respondToRequest(blog.DecisionAccept))
	private.POST("/friends/:id/reject", r.respondToRequest(blog.DecisionReject))
	private.POST("/friends/:id/block", r.blockRequest)
	private.DELETE("/friends/:id", r.removeFriend)

	private.GET("/notifications", r.listNotifications)
	private.GET("/notifications/unread-count", r.unreadCount)
	private.POST("/notifications/mark-all-read", r.markAllRead)
	private.POST("/notifications/:id/mark-read", r.markRead)
	private.DELETE("/notifications/:id", r.deleteNotification)

	private.GET("/user/profile", r.currentUser)
	private.PUT("/user/profile", r.updateProfile)
	private.PUT("/user/password", r.changePassword)
	private.DELETE("/user", r.deleteAccount)

	r.logger.Info("API routes configured")
}

// healthHandler reports database and cache reachability
func (r *Router) healthHandler(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	checks := gin.H{"database": "ok", "cache": "ok"}

	if err := r.db.Health(ctx); err != nil {
		r.logger.Warn("Database health check failed", zap.Error(err))
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if err := r.cache.Health(ctx); err != nil {
		if errors.Is(err, cache.ErrCacheDisabled) {
			checks["cache"] = "disabled"
		} else {
			r.logger.Warn("Cache health check failed", zap.Error(err))
			checks["cache"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, gin.H{
		"status":  http.StatusText(status),
		"service": "sunublog-api",
		"checks":  checks,
	})
}
