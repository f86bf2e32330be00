package handler

import (
	"superfilm-backend/internal/model"
	"superfilm-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ClubHandler struct {
	clubs *service.ClubService
}

func NewClubHandler(clubs *service.ClubService) *ClubHandler {
	return &ClubHandler{clubs: clubs}
}

// RequestJoin files a membership application.
// POST /api/v1/clubs/:id/requests
func (h *ClubHandler) RequestJoin(c *fiber.Ctx) error {
	var req model.JoinClubRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	jr, err := h.clubs.RequestJoin(c.Context(), c.Params("id"), userID(c), req.Message)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(201).JSON(jr)
}

// Respond settles a pending application (admin only).
// POST /api/v1/clubs/:id/requests/:rid/respond
func (h *ClubHandler) Respond(c *fiber.Ctx) error {
	var req model.RespondRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	jr, err := h.clubs.Respond(c.Context(), c.Params("id"), c.Params("rid"), userID(c), req.Accept)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(jr)
}
