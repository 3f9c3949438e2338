package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

var errNotConfigured = errors.New("not configured")

// dependencyCheck probes one collaborator for readiness. Optional checks are
// reported but never fail readiness.
type dependencyCheck struct {
	name     string
	required bool
	probe    func(ctx context.Context) error
}

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": "dev",
		})
	}
}

func readinessChecks(deps *Dependencies) []dependencyCheck {
	return []dependencyCheck{
		{name: "database", required: true, probe: func(ctx context.Context) error {
			if deps.DB == nil {
				return errNotConfigured
			}
			return deps.DB.Ping(ctx)
		}},
		// NATS carries every device request.
		{name: "nats", required: true, probe: func(context.Context) error {
			switch {
			case deps.NATS == nil:
				return errNotConfigured
			case !deps.NATS.IsConnected():
				return errors.New("disconnected")
			}
			return nil
		}},
		{name: "cache", probe: func(ctx context.Context) error {
			if deps.Cache == nil {
				return errNotConfigured
			}
			return deps.Cache.Ping(ctx)
		}},
	}
}

// ReadyHandler runs every dependency check within 3s. The database and NATS
// are required; the cache is optional.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	checks := readinessChecks(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		ready := true
		for _, chk := range checks {
			err := chk.probe(ctx)
			switch {
			case err == nil:
				results[chk.name] = "ok"
			case errors.Is(err, errNotConfigured):
				results[chk.name] = err.Error()
			default:
				results[chk.name] = "error: " + err.Error()
			}
			if err != nil && chk.required {
				ready = false
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": results})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": results})
	}
}
