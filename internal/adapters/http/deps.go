package http

import (
	"context"

	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/servezone/internal/adapters/nats"
	"github.com/samirrijal/servezone/internal/core/usecases"
)

// Pinger is satisfied by the postgres and valkey adapters.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Zones    *usecases.ZoneService
	Resolver *usecases.ResolutionService
	Devices  *natsadapter.DeviceRegistry
	NATS     *nats.Conn
	DB       Pinger
	Cache    Pinger
}
