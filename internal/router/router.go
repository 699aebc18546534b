package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/handler"
	"github.com/noah-isme/gema-chat/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler        *handler.ChatHandler
	MessageHandler     *handler.MessageHandler
	ParticipantHandler *handler.ParticipantHandler
	UserHandler        *handler.UserHandler
	RealtimeHandler    *handler.RealtimeHandler
	JWTMiddleware      fiber.Handler
	OnlineCount        func() int
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler(deps.OnlineCount))

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.OnlineCount))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	secured := api.Group("", jwtMiddleware)

	if deps.UserHandler != nil {
		deps.UserHandler.Register(secured)
	}

	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(secured)
	}

	chats := secured.Group("/chats")
	if deps.ChatHandler != nil {
		deps.ChatHandler.Register(chats)
	}
	if deps.MessageHandler != nil {
		deps.MessageHandler.Register(chats)
	}
	if deps.ParticipantHandler != nil {
		deps.ParticipantHandler.Register(chats)
	}
}
