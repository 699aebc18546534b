package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/utils"
)

// ChatHandler exposes chat creation, listing and leaving.
type ChatHandler struct {
	service service.ChatService
	logger  zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(service service.ChatService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.create)
	router.Get("/:chatId", h.get)
	router.Delete("/:chatId", h.leave)
}

func (h *ChatHandler) list(c *fiber.Ctx) error {
	log := requestLogger(h.logger, c)
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, log, err)
	}

	chats, err := h.service.ListChats(requestContext(c), userID)
	if err != nil {
		return respondError(c, log, err)
	}
	return utils.SendSuccess(c, "chats retrieved", chats)
}

func (h *ChatHandler) create(c *fiber.Ctx) error {
	log := requestLogger(h.logger, c)
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, log, err)
	}

	var req dto.CreateChatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	chat, created, err := h.service.CreateChat(requestContext(c), userID, req)
	if err != nil {
		return respondError(c, log, err)
	}
	if !created {
		return utils.SendSuccess(c, "existing chat returned", chat)
	}

	log.Info().Str("chat_id", chat.ID).Bool("is_group", chat.IsGroup).Msg("chat created")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "chat created", chat)
}

func (h *ChatHandler) get(c *fiber.Ctx) error {
	log := requestLogger(h.logger, c)
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, log, err)
	}

	chat, err := h.service.GetChat(requestContext(c), c.Params("chatId"), userID)
	if err != nil {
		return respondError(c, log, err)
	}
	return utils.SendSuccess(c, "chat retrieved", chat)
}

func (h *ChatHandler) leave(c *fiber.Ctx) error {
	log := requestLogger(h.logger, c)
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, log, err)
	}

	if err := h.service.LeaveChat(requestContext(c), c.Params("chatId"), userID); err != nil {
		return respondError(c, log, err)
	}
	return utils.SendSuccess(c, "left chat", nil)
}
