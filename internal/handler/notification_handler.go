package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/models"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, userID string, filter models.NotificationFilter) (*dto.NotificationFeed, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// NotificationHandler serves the applicant's in-app notifications.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "Only unread"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor := actorFromContext(c)
	if actor.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.NotificationFilter{
		UnreadOnly: c.Query("unread") == "true",
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "pageSize", 20),
	}
	feed, err := h.service.List(c.Request.Context(), actor.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, feed, nil)
}

// MarkRead godoc
// @Summary Mark notification read
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id}/read [patch]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor := actorFromContext(c)
	if actor.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), actor.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead godoc
// @Summary Mark all notifications read
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	actor := actorFromContext(c)
	if actor.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	count, err := h.service.MarkAllRead(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": count}, nil)
}
