package handler

import (
	"errors"

	"superfilm-backend/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// parseBody decodes and validates a request payload in one step.
func parseBody(c *fiber.Ctx, dest interface{}) error {
	if err := c.BodyParser(dest); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(dest); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	return nil
}

// serviceError maps the service error taxonomy onto HTTP status codes.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, model.ErrValidation):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, model.ErrForbidden):
		return c.Status(403).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, model.ErrPollClosed):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, model.ErrTimeout):
		return c.Status(504).JSON(fiber.Map{"error": "operation timed out"})
	default:
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
