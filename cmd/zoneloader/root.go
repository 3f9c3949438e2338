package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/samirrijal/servezone/internal/pkg/config"
	"github.com/samirrijal/servezone/internal/pkg/logging"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "zoneloader",
	Short:        "Manage the service-zone catalog",
	Long:         "Loads service-zone catalogs (YAML or JSON) into Postgres and audits the stored zones.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load("servezone-zoneloader")
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		logger = logging.Setup(cfg.Log.Level, "text")
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
