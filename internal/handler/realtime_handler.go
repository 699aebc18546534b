package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/service"
)

// RealtimeHandler upgrades authenticated requests to the push channel.
type RealtimeHandler struct {
	service service.RealtimeService
	logger  zerolog.Logger
}

// NewRealtimeHandler creates a websocket handler.
func NewRealtimeHandler(service service.RealtimeService, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		service: service,
		logger:  logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket endpoint. The group must already run the JWT middleware.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		// The upgraded connection outlives the request context.
		c.Locals("request_ctx", middleware.SessionContext(c))
		c.Locals("identity", realtime.Identity{
			UserID:   middleware.UserID(c),
			Username: middleware.Username(c),
		})
		return c.Next()
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	identity, _ := conn.Locals("identity").(realtime.Identity)
	if identity.UserID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	ctx, _ := conn.Locals("request_ctx").(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}

	h.logger.Debug().Str("user_id", identity.UserID).Msg("chat websocket connected")
	h.service.ServeConnection(ctx, conn, identity)
	h.logger.Debug().Str("user_id", identity.UserID).Msg("chat websocket disconnected")
}
