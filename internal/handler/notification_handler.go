package handler

import (
	"net/http"
	"strconv"

	"github.com/examprep/examprep-backend/internal/middleware"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/gin-gonic/gin"
)

// NotificationHandler exposes the notification log.
type NotificationHandler struct {
	notifications Notifications
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifications Notifications) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// ListMine godoc
// GET /api/notifications?limit=
func (h *NotificationHandler) ListMine(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.notifications.ListMine(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		failWith(c, err)
		return
	}
	if items == nil {
		items = []model.Notification{}
	}

	response.Success(c, http.StatusOK, gin.H{"notifications": items})
}

// MarkRead godoc
// POST /api/notifications/:notification_id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := strconv.ParseInt(c.Param("notification_id"), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), claims.UserID, id); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ListRecent godoc
// GET /api/admin/notifications?limit=
// Returns the latest notifications across all users.
func (h *NotificationHandler) ListRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.notifications.ListRecent(c.Request.Context(), limit)
	if err != nil {
		failWith(c, err)
		return
	}
	if items == nil {
		items = []model.Notification{}
	}

	response.Success(c, http.StatusOK, gin.H{"notifications": items})
}
