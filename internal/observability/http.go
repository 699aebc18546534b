package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler serves the scrape endpoint. When online is set the
// chat_users_online gauge is re-read from the presence tracker on every
// scrape, so it never drifts from the live connection state.
func MetricsHandler(online func() int) fiber.Handler {
	RegisterMetrics()
	scrape := adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))

	return func(c *fiber.Ctx) error {
		if online != nil {
			usersOnline.Set(float64(online()))
		}
		return scrape(c)
	}
}
