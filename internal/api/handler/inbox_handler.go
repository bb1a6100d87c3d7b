package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/jobflow/internal/api/dto"
	"github.com/cuongbtq/jobflow/internal/api/service"
	"github.com/gin-gonic/gin"
)

// InboxHandler serves the authenticated user's notifications
type InboxHandler struct {
	logger *slog.Logger
	inbox  *service.InboxService
}

func NewInboxHandler(deps *Dependencies) *InboxHandler {
	return &InboxHandler{logger: deps.Logger, inbox: deps.Inbox}
}

// ListNotifications handles GET /api/v1/me/notifications
func (h *InboxHandler) ListNotifications(c *gin.Context) {
	var req dto.ListNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	list, err := h.inbox.Notifications(c.Request.Context(), Actor(c).ID, req.Unread, req.Limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	out := make([]dto.NotificationDTO, len(list))
	for i, n := range list {
		out[i] = dto.NewNotificationDTO(n)
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

// MarkRead handles POST /api/v1/me/notifications/:notification_id/read
func (h *InboxHandler) MarkRead(c *gin.Context) {
	if err := h.inbox.MarkRead(c.Request.Context(), Actor(c).ID, c.Param("notification_id")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Summary handles GET /api/v1/me/summary
func (h *InboxHandler) Summary(c *gin.Context) {
	summary, err := h.inbox.Summary(c.Request.Context(), Actor(c).ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSummaryDTO(summary))
}
