package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/servezone/internal/pkg/metrics"
)

// RouterConfig tunes SetupRoutes. Zero values use the defaults below.
type RouterConfig struct {
	// ResolveTimeout bounds device resolutions. It must cover both accuracy
	// tiers plus the reverse geocode.
	ResolveTimeout time.Duration
	// RateLimit is requests per minute per IP.
	RateLimit int
	// OpenAPIPath is served at /docs/openapi.yaml.
	OpenAPIPath string
}

func (rc RouterConfig) withDefaults() RouterConfig {
	if rc.ResolveTimeout <= 0 {
		rc.ResolveTimeout = 60 * time.Second
	}
	if rc.RateLimit <= 0 {
		rc.RateLimit = 120
	}
	if rc.OpenAPIPath == "" {
		rc.OpenAPIPath = "api/openapi.yaml"
	}
	return rc
}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies, rc RouterConfig) {
	rc = rc.withDefaults()

	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	app.Use(limiter.New(limiter.Config{
		Max:        rc.RateLimit,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness, no timeout
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/zones", timeout.NewWithContext(ListZonesHandler(deps), 15*time.Second))
	v1.Get("/zones.geojson", timeout.NewWithContext(ZonesGeoJSONHandler(deps), 15*time.Second))
	v1.Get("/zones/:id", timeout.NewWithContext(GetZoneHandler(deps), 15*time.Second))

	if deps.Resolver != nil {
		v1.Post("/resolve/current", timeout.NewWithContext(ResolveCurrentHandler(deps), rc.ResolveTimeout))
		v1.Post("/resolve/manual", timeout.NewWithContext(ResolveManualHandler(deps), 15*time.Second))
		v1.Get("/resolve/:key/state", timeout.NewWithContext(ResolutionStateHandler(deps), 15*time.Second))
		v1.Delete("/resolve/:key", ResetHandler(deps))

		app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), 15*time.Second))
	}

	SetupDocs(app, rc.OpenAPIPath)

	// Device bridge
	if deps.NATS != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/device", websocket.New(DeviceBridgeHandler(deps)))
	}
}
