package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/utils"
)

// ParticipantHandler manages group membership.
type ParticipantHandler struct {
	service service.ChatService
	logger  zerolog.Logger
}

// NewParticipantHandler creates a participant handler.
func NewParticipantHandler(service service.ChatService, logger zerolog.Logger) *ParticipantHandler {
	return &ParticipantHandler{
		service: service,
		logger:  logger.With().Str("component", "participant_handler").Logger(),
	}
}

// Register binds participant routes under the chats group.
func (h *ParticipantHandler) Register(router fiber.Router) {
	router.Post("/:chatId/participants", h.add)
	router.Delete("/:chatId/participants/:userId", h.remove)
}

func (h *ParticipantHandler) add(c *fiber.Ctx) error {
	log := requestLogger(h.logger, c)
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, log, err)
	}

	var req dto.AddParticipantRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	participant, err := h.service.AddParticipant(requestContext(c), c.Params("chatId"), userID, req)
	if err != nil {
		return respondError(c, log, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "participant added", participant)
}

func (h *ParticipantHandler) remove(c *fiber.Ctx) error {
	log := requestLogger(h.logger, c)
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, log, err)
	}

	if err := h.service.RemoveParticipant(requestContext(c), c.Params("chatId"), userID, c.Params("userId")); err != nil {
		return respondError(c, log, err)
	}
	return utils.SendSuccess(c, "participant removed", nil)
}
