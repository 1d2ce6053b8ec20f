package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// NotificationsHandler serves the per-user notification feed.
type NotificationsHandler struct {
	notifications *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications}
}

// Feed GET /notifications.
func (h *NotificationsHandler) Feed(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	limit := parseInt(c.Query("limit"), 10)
	items, unread, err := h.notifications.Feed(c.UserContext(), actor, limit)
	if err != nil {
		return err
	}
	resp := dto.NotificationFeedResponse{
		Items:       make([]dto.NotificationItem, 0, len(items)),
		UnreadCount: unread,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, dto.NotificationItem{
			RecipientID: item.RecipientID,
			TicketID:    item.TicketID,
			Purpose:     item.Purpose,
			IsRead:      item.IsRead,
			SentAt:      item.SentAt,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// MarkRead POST /notifications/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	updated, err := h.notifications.MarkAllRead(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MarkReadResponse{Updated: updated}})
}
