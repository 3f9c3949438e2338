package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/servezone/internal/adapters/geocoder"
	"github.com/samirrijal/servezone/internal/adapters/http"
	natsadapter "github.com/samirrijal/servezone/internal/adapters/nats"
	"github.com/samirrijal/servezone/internal/adapters/postgres"
	"github.com/samirrijal/servezone/internal/adapters/valkey"
	"github.com/samirrijal/servezone/internal/core/ports"
	"github.com/samirrijal/servezone/internal/core/positioning"
	"github.com/samirrijal/servezone/internal/core/usecases"
	"github.com/samirrijal/servezone/internal/core/zones"
	"github.com/samirrijal/servezone/internal/pkg/config"
	"github.com/samirrijal/servezone/internal/pkg/logging"
	"github.com/samirrijal/servezone/internal/pkg/metrics"
	"github.com/samirrijal/servezone/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("servezone-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if os.Getenv("SERVEZONE_AUTO_MIGRATE") == "true" {
		if err := postgres.Migrate(ctx, db.Pool, logger); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}
	go reportPoolStats(ctx, db)

	// Cache is optional; the zone service and geocoder run uncached without it.
	var sharedCache ports.CacheService
	var cachePinger http.Pinger
	vc, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.KeyPrefix)
	if err != nil {
		logger.Warn("valkey unavailable", "error", err)
	} else {
		defer vc.Close()
		sharedCache = vc
		cachePinger = vc
	}

	// NATS
	var events ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		logger.Warn("nats publisher unavailable", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		logger.Warn("nats device conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	var devices *natsadapter.DeviceRegistry
	if natsConn != nil {
		idle := time.Duration(cfg.Geolocation.SessionIdleMinutes) * time.Minute
		devices = natsadapter.NewDeviceRegistry(natsConn, idle, logger)
		defer devices.Close()
		go devices.Run(ctx, time.Minute)
	}

	// Address resolution
	var addresses ports.AddressResolver
	if cfg.Geocoder.APIKey != "" {
		addresses = geocoder.New(geocoder.Config{
			APIKey:    cfg.Geocoder.APIKey,
			BaseURL:   cfg.Geocoder.BaseURL,
			Region:    cfg.Geocoder.Region,
			RateLimit: cfg.Geocoder.RateLimit,
			CacheTTL:  time.Duration(cfg.Geocoder.CacheTTLSeconds) * time.Second,
		}, sharedCache, logger)
	} else {
		logger.Warn("geocoder api key not set, manual address resolution disabled")
	}

	// Use cases
	zoneSvc := usecases.NewZoneService(postgres.NewZoneRepo(db), sharedCache)

	var resolver *usecases.ResolutionService
	if devices != nil {
		resolver = usecases.NewResolutionService(
			devices,
			addresses,
			events,
			positioning.NewCache(cfg.Geolocation.TTL()),
			zones.NewMatcher(logger),
			usecases.ResolutionOptions{
				TTL:     cfg.Geolocation.TTL(),
				Acquire: cfg.Geolocation.AcquireOptions(),
			},
			logger,
		)
	}

	deps := &http.Dependencies{
		Zones:    zoneSvc,
		Resolver: resolver,
		Devices:  devices,
		NATS:     natsConn,
		DB:       db,
		Cache:    cachePinger,
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Servezone API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps, http.RouterConfig{})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received, draining connections...", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("server stopped")
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Pool.Stat())
		}
	}
}
