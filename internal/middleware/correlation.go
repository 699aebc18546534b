package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/noah-isme/gema-chat/internal/observability"
)

// CorrelationHeader carries the correlation id on requests and responses.
const CorrelationHeader = "X-Correlation-ID"

const (
	correlationLocal = "correlation_id"
	// Browser websocket clients cannot set headers on the upgrade request.
	correlationQuery     = "cid"
	maxCorrelationLength = 64
)

// CorrelationID tags every request with a correlation id, taken from the
// caller when it sends a usable one, and echoes it back.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := incomingCorrelationID(c)

		c.Locals(correlationLocal, id)
		c.Set(CorrelationHeader, id)
		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))

		return c.Next()
	}
}

func incomingCorrelationID(c *fiber.Ctx) string {
	candidates := []string{c.Get(CorrelationHeader), c.Get("X-Request-ID"), c.Query(correlationQuery)}
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" && len(candidate) <= maxCorrelationLength {
			return candidate
		}
	}
	return uuid.NewString()
}

// GetCorrelationID returns the id bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationLocal).(string); ok {
		return id
	}
	return observability.CorrelationID(c.UserContext())
}

// SessionContext returns a context for work that outlives the request, such
// as a websocket session, still tagged with the request's correlation id.
func SessionContext(c *fiber.Ctx) context.Context {
	return observability.WithCorrelationID(context.Background(), GetCorrelationID(c))
}
