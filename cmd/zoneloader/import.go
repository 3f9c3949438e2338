package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samirrijal/servezone/internal/adapters/postgres"
	"github.com/samirrijal/servezone/internal/adapters/valkey"
	"github.com/samirrijal/servezone/internal/catalog"
	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/ports"
	"github.com/samirrijal/servezone/internal/core/usecases"
	"github.com/samirrijal/servezone/internal/core/zones"
)

var (
	importFile   string
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Validate a zone catalog and upsert it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(importFile)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer f.Close()

		doc, err := catalog.Parse(f)
		if err != nil {
			return err
		}
		zs, err := doc.ServiceZones()
		if err != nil {
			return err
		}

		active, err := checkZones(zs)
		if err != nil {
			return err
		}
		logger.Info("catalog parsed",
			"file", importFile,
			"merchant", doc.Merchant,
			"zones", len(zs),
			"active", active,
		)
		if importDryRun {
			return nil
		}

		db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer db.Close()

		// Import drops the cached active list; without valkey there is nothing to drop.
		var cache ports.CacheService
		if vc, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.KeyPrefix); err != nil {
			logger.Warn("valkey unavailable, cached zone list not invalidated", "error", err)
		} else {
			defer vc.Close()
			cache = vc
		}

		svc := usecases.NewZoneService(postgres.NewZoneRepo(db), cache)
		if err := svc.Import(ctx, zs); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		logger.Info("import complete", "zones", len(zs))
		return nil
	},
}

// checkZones applies the import validation rules locally and counts zones
// that would be eligible for matching.
func checkZones(zs []domain.ServiceZone) (int, error) {
	var errs []error
	active := 0
	for i, z := range zs {
		err := zones.Validate(z)
		switch {
		case err == nil:
			active++
		case errors.Is(err, zones.ErrInactive):
		default:
			errs = append(errs, fmt.Errorf("zone %d (%q): %w", i, z.ID, err))
		}
	}
	return active, errors.Join(errs...)
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "path to catalog file (required)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate only, do not write")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
