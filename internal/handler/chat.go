package handler

import (
	"strconv"

	"superfilm-backend/internal/model"
	"superfilm-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ChatHandler struct {
	messages  *service.MessageService
	presence  *service.PresenceTracker
	readState *service.ReadStateTracker
}

func NewChatHandler(messages *service.MessageService, presence *service.PresenceTracker, readState *service.ReadStateTracker) *ChatHandler {
	return &ChatHandler{messages: messages, presence: presence, readState: readState}
}

// SendMessage appends a message to the channel.
// POST /api/v1/channels/:id/messages
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	channelID := c.Params("id")

	var req model.SendMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	msg, err := h.messages.Send(c.Context(), channelID, userID(c), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(201).JSON(msg)
}

// History returns messages older than the cursor, oldest first.
// GET /api/v1/channels/:id/messages?before=123&limit=50
func (h *ChatHandler) History(c *fiber.Ctx) error {
	channelID := c.Params("id")
	before, _ := strconv.ParseInt(c.Query("before", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	msgs, err := h.messages.History(c.Context(), channelID, userID(c), before, limit)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// SoftDelete tombstones a message.
// DELETE /api/v1/messages/:id
func (h *ChatHandler) SoftDelete(c *fiber.Ctx) error {
	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid message id"})
	}

	msg, err := h.messages.SoftDelete(c.Context(), messageID, userID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(msg)
}

// HardDelete physically removes a soft-deleted message.
// DELETE /api/v1/messages/:id/hard
func (h *ChatHandler) HardDelete(c *fiber.Ctx) error {
	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid message id"})
	}

	if err := h.messages.HardDelete(c.Context(), messageID, userID(c)); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Report forwards a message report to the moderation backend.
// POST /api/v1/messages/:id/report
func (h *ChatHandler) Report(c *fiber.Ctx) error {
	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid message id"})
	}

	var req model.ReportMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := h.messages.Report(c.Context(), messageID, userID(c), req.Reason); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Presence returns the channel's live session count.
// GET /api/v1/channels/:id/presence
func (h *ChatHandler) Presence(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"count": h.presence.Count(c.Params("id"))})
}

// MarkViewed advances the caller's read watermark for the channel.
// POST /api/v1/channels/:id/read
func (h *ChatHandler) MarkViewed(c *fiber.Ctx) error {
	if err := h.readState.MarkViewed(c.Context(), userID(c), c.Params("id")); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// UnreadMessages counts messages newer than the caller's watermark.
// GET /api/v1/channels/:id/unread
func (h *ChatHandler) UnreadMessages(c *fiber.Ctx) error {
	count, err := h.readState.UnreadMessages(c.Context(), userID(c), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}
