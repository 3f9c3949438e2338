package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/samirrijal/servezone/internal/adapters/postgres"
	"github.com/samirrijal/servezone/internal/pkg/config"
	"github.com/samirrijal/servezone/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|list>")
	}

	cfg, err := config.Load("servezone-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, "text")

	switch os.Args[1] {
	case "up":
		ctx := context.Background()
		db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer db.Close()

		if err := postgres.Migrate(ctx, db.Pool, logger); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		logger.Info("all migrations applied")
	case "list":
		names, err := postgres.MigrationNames()
		if err != nil {
			log.Fatalf("list: %v", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
