package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/utils"
)

// UserHandler serves the current user and user search.
type UserHandler struct {
	service service.UserService
	logger  zerolog.Logger
}

// NewUserHandler creates a user handler.
func NewUserHandler(service service.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger.With().Str("component", "user_handler").Logger(),
	}
}

// Register binds /me and /users under the provided group.
func (h *UserHandler) Register(router fiber.Router) {
	router.Get("/me", h.me)
	router.Get("/users", h.search)
}

func (h *UserHandler) me(c *fiber.Ctx) error {
	log := requestLogger(h.logger, c)
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, log, err)
	}

	user, err := h.service.Me(requestContext(c), userID)
	if err != nil {
		return respondError(c, log, err)
	}
	return utils.SendSuccess(c, "current user", user)
}

func (h *UserHandler) search(c *fiber.Ctx) error {
	log := requestLogger(h.logger, c)
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, log, err)
	}

	var query dto.UserSearchQuery
	if err := c.QueryParser(&query); err != nil {
		return badRequest(c, "invalid query parameters")
	}

	users, err := h.service.Search(requestContext(c), userID, query)
	if err != nil {
		return respondError(c, log, err)
	}
	return utils.SendSuccess(c, "users retrieved", users)
}
