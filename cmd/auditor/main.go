package main

import (
	"context"
	"fmt"
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/servezone/internal/adapters/nats"
	"github.com/samirrijal/servezone/internal/adapters/postgres"
	"github.com/samirrijal/servezone/internal/adapters/valkey"
	"github.com/samirrijal/servezone/internal/core/ports"
	"github.com/samirrijal/servezone/internal/core/usecases"
	"github.com/samirrijal/servezone/internal/pkg/config"
	"github.com/samirrijal/servezone/internal/pkg/logging"
	"github.com/samirrijal/servezone/internal/workflows"
)

const cronWorkflowID = "servezone-zone-audit-cron"

func main() {
	cfg, err := config.Load("servezone-auditor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN(), 4)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var cache ports.CacheService
	if vc, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.KeyPrefix); err != nil {
		logger.Warn("valkey unavailable", "error", err)
	} else {
		defer vc.Close()
		cache = vc
	}

	var events ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		logger.Warn("nats unavailable, audit reports will not be published", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ZoneAuditWorkflow)
	w.RegisterActivity(&workflows.ZoneAuditActivities{
		Zones:  usecases.NewZoneService(postgres.NewZoneRepo(db), cache),
		Events: events,
	})

	// Starting a cron workflow whose id is already running is rejected by the
	// server; that is the normal case after a restart.
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       cronWorkflowID,
		TaskQueue:                cfg.Temporal.TaskQueue,
		CronSchedule:             fmt.Sprintf("@every %dm", cfg.Temporal.AuditIntervalMinutes),
	}, workflows.ZoneAuditWorkflow, workflows.ZoneAuditInput{
		DeactivateInvalid: cfg.Temporal.DeactivateInvalid,
	})
	if err != nil {
		logger.Info("zone audit schedule not started", "workflow_id", cronWorkflowID, "reason", err)
	} else {
		logger.Info("zone audit scheduled",
			"workflow_id", run.GetID(),
			"run_id", run.GetRunID(),
			"interval_minutes", cfg.Temporal.AuditIntervalMinutes,
		)
	}

	logger.Info("auditor worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
