package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	OnlineUsers int       `json:"online_users"`
}

// HealthCheck reports service health and, when online is set, how many users
// hold a live push channel on this instance.
func HealthCheck(cfg config.Config, online func() int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}
		if online != nil {
			payload.OnlineUsers = online()
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
