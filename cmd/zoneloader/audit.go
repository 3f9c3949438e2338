package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samirrijal/servezone/internal/adapters/postgres"
	"github.com/samirrijal/servezone/internal/core/usecases"
)

var auditFailOnIssues bool

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check stored zones and print the report as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer db.Close()

		report, err := usecases.NewZoneService(postgres.NewZoneRepo(db), nil).Audit(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if auditFailOnIssues && len(report.Issues) > 0 {
			return fmt.Errorf("%d zone issues found", len(report.Issues))
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().BoolVar(&auditFailOnIssues, "fail-on-issues", false, "exit non-zero when any zone has issues")
	rootCmd.AddCommand(auditCmd)
}
