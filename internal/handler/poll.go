package handler

import (
	"superfilm-backend/internal/model"
	"superfilm-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type PollHandler struct {
	polls *service.PollService
}

func NewPollHandler(polls *service.PollService) *PollHandler {
	return &PollHandler{polls: polls}
}

// Create makes a poll; the caller then posts the carrier message via
// SendMessage with kind=poll.
// POST /api/v1/channels/:id/polls
func (h *PollHandler) Create(c *fiber.Ctx) error {
	channelID := c.Params("id")

	var req model.CreatePollRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	poll, err := h.polls.Create(c.Context(), channelID, userID(c), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(201).JSON(poll)
}

// Get returns the poll with its options.
// GET /api/v1/polls/:id
func (h *PollHandler) Get(c *fiber.Ctx) error {
	poll, err := h.polls.Get(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(poll)
}

// CastVote applies a vote and returns the authoritative tally.
// POST /api/v1/polls/:id/votes
func (h *PollHandler) CastVote(c *fiber.Ctx) error {
	var req model.CastVoteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	tally, err := h.polls.CastVote(c.Context(), c.Params("id"), req.OptionID, userID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"tally": tally})
}

// Close ends voting; creator only, one-way.
// POST /api/v1/polls/:id/close
func (h *PollHandler) Close(c *fiber.Ctx) error {
	if err := h.polls.Close(c.Context(), c.Params("id"), userID(c)); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Tally returns live per-option counts.
// GET /api/v1/polls/:id/tally
func (h *PollHandler) Tally(c *fiber.Ctx) error {
	tally, err := h.polls.Tally(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"tally": tally})
}
