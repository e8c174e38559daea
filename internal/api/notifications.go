package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (r *Router) listNotifications(c *gin.Context) {
	page, err := r.services.Notifications.List(c.Request.Context(), actorFrom(c), pageFrom(c), queryBool(c, "unread"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Notifications retrieved successfully.", page)
}

func (r *Router) unreadCount(c *gin.Context) {
	count, err := r.services.Notifications.UnreadCount(c.Request.Context(), actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Unread count retrieved successfully.", gin.H{"unread_count": count})
}

func (r *Router) markRead(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	notification, err := r.services.Notifications.MarkRead(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Notification marked as read.", notification)
}

func (r *Router) markAllRead(c *gin.Context) {
	updated, err := r.services.Notifications.MarkAllRead(c.Request.Context(), actorFrom(c))
	if err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "All notifications marked as read.", gin.H{"updated": updated})
}

func (r *Router) deleteNotification(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		r.respondError(c, err)
		return
	}
	if err := r.services.Notifications.Delete(c.Request.Context(), id, actorFrom(c)); err != nil {
		r.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Notification deleted.", nil)
}
