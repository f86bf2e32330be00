package handler

import (
	"strconv"

	"superfilm-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type NotificationHandler struct {
	notifications *service.NotificationService
}

func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// Feed returns one merged page of durable and synthetic items.
// GET /api/v1/notifications?before=123&limit=20
func (h *NotificationHandler) Feed(c *fiber.Ctx) error {
	before, _ := strconv.ParseInt(c.Query("before", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	items, err := h.notifications.ListFeed(c.Context(), userID(c), before, limit)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"items": items})
}

// UnreadCount returns the badge count.
// GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	count, err := h.notifications.UnreadCount(c.Context(), userID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}

// MarkRead marks one feed item read; the id is a feed item key
// ("n:<id>" or a synthetic key) or a bare notification id.
// PUT /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	if err := h.notifications.MarkRead(c.Context(), userID(c), c.Params("id")); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// MarkAllRead clears the caller's badge.
// PUT /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	if err := h.notifications.MarkAllRead(c.Context(), userID(c)); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
