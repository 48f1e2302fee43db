package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/zargar/internal/activity"
	"github.com/edvin/zargar/internal/config"
	"github.com/edvin/zargar/internal/db"
	"github.com/edvin/zargar/internal/logging"
	"github.com/edvin/zargar/internal/metrics"
	"github.com/edvin/zargar/internal/model"
	"github.com/edvin/zargar/internal/pgexec"
	"github.com/edvin/zargar/internal/storage"
	"github.com/edvin/zargar/internal/store"
	"github.com/edvin/zargar/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg, "worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics("core", corePool)

	// Advisory locks and table counts run against the tenant database.
	targetPool, err := db.NewTargetPool(ctx, cfg.TargetDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to target database")
	}
	defer targetPool.Close()
	metrics.RegisterPgxPoolMetrics("target", targetPool)

	executor, err := pgexec.New(pgexec.Options{
		DatabaseURL: cfg.TargetDatabaseURL,
		BinDir:      cfg.PGBinDir,
		WorkDir:     cfg.WorkDir,
		Timeouts: pgexec.Timeouts{
			Dump:     cfg.DumpTimeout,
			FullDump: cfg.FullDumpTimeout,
			Drop:     cfg.DropTimeout,
		},
	}, targetPool, nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure pg executor")
	}

	blobs, err := storage.NewFromConfig(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage backends")
	}

	clientOpts, err := cfg.TemporalClientOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	clientOpts.Logger = logging.NewTemporalLogger(logger)
	tc, err := temporalclient.Dial(clientOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	w := worker.New(tc, cfg.TaskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{&workflow.ErrorTypingInterceptor{}},
	})

	// Register activities
	s := store.NewPG(corePool)
	backup := activity.NewBackup(s, executor, blobs, logger)
	w.RegisterActivity(activity.NewJobStore(s, cfg.SnapshotRetention, logger))
	w.RegisterActivity(backup)
	w.RegisterActivity(activity.NewRestore(s, backup, executor, db.NewSchemaLocker(targetPool),
		cfg.SnapshotRetention[model.SnapshotTypePreOperation], logger))
	w.RegisterActivity(activity.NewCleanup(s, blobs, logger))

	// Register workflows
	w.RegisterWorkflow(workflow.CreateBackupWorkflow)
	w.RegisterWorkflow(workflow.CreateTenantSnapshotWorkflow)
	w.RegisterWorkflow(workflow.SelectiveTenantRestoreWorkflow)
	w.RegisterWorkflow(workflow.CleanupExpiredSnapshotsWorkflow)
	w.RegisterWorkflow(workflow.ScheduledTenantSnapshotsWorkflow)

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr, corePool.Ping)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().Str("taskQueue", cfg.TaskQueue).Msg("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	// Errors for already-existing schedules are ignored so that re-deploys
	// do not fail.
	registerCronSchedules(ctx, tc, cfg.TaskQueue, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
}

type cronSchedule struct {
	id       string
	cron     string
	workflow interface{}
}

func registerCronSchedules(ctx context.Context, tc temporalclient.Client, taskQueue string, logger zerolog.Logger) {
	schedules := []cronSchedule{
		{
			id:       "snapshot-cleanup-cron",
			cron:     "0 * * * *",
			workflow: workflow.CleanupExpiredSnapshotsWorkflow,
		},
		{
			id:       "scheduled-tenant-snapshots-cron",
			cron:     "30 1 * * *",
			workflow: workflow.ScheduledTenantSnapshotsWorkflow,
		},
	}

	scheduleClient := tc.ScheduleClient()

	for _, s := range schedules {
		_, err := scheduleClient.Create(ctx, temporalclient.ScheduleOptions{
			ID: s.id,
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{s.cron},
			},
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        s.id,
				Workflow:  s.workflow,
				TaskQueue: taskQueue,
			},
		})
		if err != nil {
			if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "AlreadyExists") || strings.Contains(err.Error(), "already registered") {
				logger.Info().Str("id", s.id).Msg("cron schedule already exists, skipping")
			} else {
				logger.Fatal().Err(err).Str("id", s.id).Msg("failed to create cron schedule")
			}
		} else {
			logger.Info().Str("id", s.id).Str("cron", s.cron).Msg("created cron schedule")
		}
	}
}
