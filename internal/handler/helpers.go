package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/observability"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/utils"
)

type errorMapping struct {
	kind    string
	status  int
	message string
}

// Messages are fixed per kind so that forbidden and not-found responses never
// reveal whether a chat exists.
var errorMappings = []struct {
	target error
	errorMapping
}{
	{service.ErrValidation, errorMapping{"validation", fiber.StatusBadRequest, ""}},
	{service.ErrAuth, errorMapping{"auth", fiber.StatusUnauthorized, "authentication required"}},
	{service.ErrForbidden, errorMapping{"forbidden", fiber.StatusForbidden, "you do not have access to this resource"}},
	{service.ErrNotFound, errorMapping{"not_found", fiber.StatusNotFound, "resource not found"}},
	{service.ErrConflict, errorMapping{"conflict", fiber.StatusConflict, "conflicting change, please retry"}},
}

func mapError(err error) errorMapping {
	for _, candidate := range errorMappings {
		if errors.Is(err, candidate.target) {
			mapping := candidate.errorMapping
			if mapping.message == "" {
				var serviceErr *service.Error
				if errors.As(err, &serviceErr) {
					mapping.message = serviceErr.Message
				} else {
					mapping.message = "invalid request"
				}
			}
			return mapping
		}
	}
	return errorMapping{"transient", fiber.StatusServiceUnavailable, "service temporarily unavailable"}
}

func respondError(c *fiber.Ctx, logger *zerolog.Logger, err error) error {
	mapping := mapError(err)
	if mapping.status >= fiber.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
	} else {
		logger.Debug().Err(err).Str("error_kind", mapping.kind).Msg("request rejected")
	}
	return utils.SendKindError(c, mapping.status, mapping.kind, mapping.message)
}

func badRequest(c *fiber.Ctx, message string) error {
	return utils.SendKindError(c, fiber.StatusBadRequest, "validation", message)
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return observability.WithCorrelationID(ctx, middleware.GetCorrelationID(c))
}

func currentUser(c *fiber.Ctx) (string, error) {
	userID := middleware.UserID(c)
	if userID == "" {
		return "", &service.Error{Kind: service.ErrAuth, Message: "authentication required"}
	}
	return userID, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}
