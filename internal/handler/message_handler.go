package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/utils"
)

// MessageHandler exposes message history, sending and read receipts.
type MessageHandler struct {
	service     service.ChatService
	sendLimiter fiber.Handler
	logger      zerolog.Logger
}

// NewMessageHandler creates a message handler. sendLimiter guards message
// creation and may be nil.
func NewMessageHandler(service service.ChatService, sendLimiter fiber.Handler, logger zerolog.Logger) *MessageHandler {
	if sendLimiter == nil {
		sendLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &MessageHandler{
		service:     service,
		sendLimiter: sendLimiter,
		logger:      logger.With().Str("component", "message_handler").Logger(),
	}
}

// Register binds message routes under the chats group.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Get("/:chatId/messages", h.list)
	router.Post("/:chatId/messages", h.sendLimiter, h.send)
	router.Patch("/:chatId/read", h.markRead)
}

func (h *MessageHandler) list(c *fiber.Ctx) error {
	log := requestLogger(h.logger, c)
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, log, err)
	}

	var query dto.MessageListQuery
	if err := c.QueryParser(&query); err != nil {
		return badRequest(c, "invalid query parameters")
	}

	page, err := h.service.ListMessages(requestContext(c), c.Params("chatId"), userID, query)
	if err != nil {
		return respondError(c, log, err)
	}
	return utils.SendSuccess(c, "messages retrieved", page)
}

func (h *MessageHandler) send(c *fiber.Ctx) error {
	log := requestLogger(h.logger, c)
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, log, err)
	}

	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	message, err := h.service.SendMessage(requestContext(c), c.Params("chatId"), userID, req)
	if err != nil {
		return respondError(c, log, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *MessageHandler) markRead(c *fiber.Ctx) error {
	log := requestLogger(h.logger, c)
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, log, err)
	}

	receipt, err := h.service.MarkRead(requestContext(c), c.Params("chatId"), userID)
	if err != nil {
		return respondError(c, log, err)
	}
	return utils.SendSuccess(c, "messages marked as read", receipt)
}
