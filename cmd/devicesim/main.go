package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	natsadapter "github.com/samirrijal/servezone/internal/adapters/nats"
	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/pkg/config"
	"github.com/samirrijal/servezone/internal/pkg/logging"
)

var (
	session     string
	lat, lon    float64
	permission  string
	jitter      float64
	failTier    string
	fixInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "devicesim",
	Short:        "Answer device location requests for one session over NATS",
	Long:         "Stands in for a browser device bridge. Send SIGUSR1 to toggle the permission between granted and denied.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		perm := domain.PermissionState(permission)
		if !perm.Valid() {
			return fmt.Errorf("invalid permission %q", permission)
		}

		cfg, err := config.Load("servezone-devicesim")
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := logging.Setup(cfg.Log.Level, "text")

		nc, err := natsadapter.RawConn(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nc.Drain() //nolint:errcheck

		dev := &natsadapter.SimulatedDevice{
			Session:     session,
			Point:       domain.NewGeoPoint(lat, lon),
			Permission:  perm,
			JitterDeg:   jitter,
			FailTier:    domain.AccuracyTier(failTier),
			FixInterval: fixInterval,
			Logger:      logger,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		toggle := make(chan os.Signal, 1)
		signal.Notify(toggle, syscall.SIGUSR1)
		defer signal.Stop(toggle)
		go func() {
			current := perm
			for {
				select {
				case <-ctx.Done():
					return
				case <-toggle:
					next := domain.PermissionDenied
					if current == domain.PermissionDenied {
						next = domain.PermissionGranted
					}
					if err := dev.SetPermission(nc, next); err != nil {
						logger.Warn("announce permission change", "error", err)
						continue
					}
					logger.Info("permission changed", "from", current, "to", next)
					current = next
				}
			}
		}()

		return dev.Serve(ctx, nc)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&session, "session", "dev", "device session id")
	f.Float64Var(&lat, "lat", 12.9716, "latitude reported by the device")
	f.Float64Var(&lon, "lon", 77.5946, "longitude reported by the device")
	f.StringVar(&permission, "permission", string(domain.PermissionGranted), "prompt, granted, denied or unsupported")
	f.Float64Var(&jitter, "jitter", 0.0005, "max random offset per fix, in degrees")
	f.StringVar(&failTier, "fail-tier", "", "accuracy tier (low or high) that never answers")
	f.DurationVar(&fixInterval, "fix-interval", time.Second, "interval between watch fixes")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
