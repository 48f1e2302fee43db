package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/zargar/internal/api"
	"github.com/edvin/zargar/internal/config"
	"github.com/edvin/zargar/internal/core"
	"github.com/edvin/zargar/internal/db"
	"github.com/edvin/zargar/internal/logging"
	"github.com/edvin/zargar/internal/metrics"
	"github.com/edvin/zargar/internal/store"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("core-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg, "core-api")

	if *migrateFlag {
		logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(cfg.CoreDatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics("core", corePool)

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

	s := store.NewPG(corePool)
	backups := core.NewBackupService(s, tc, cfg.TaskQueue, logger)
	restoration := core.NewRestorationManager(s, tc, core.RestorationConfig{
		TaskQueue:           cfg.TaskQueue,
		SnapshotRetention:   cfg.SnapshotRetention,
		SnapshotWaitTimeout: cfg.SnapshotWaitTimeout,
	}, logger)

	srv := api.NewServer(logger, corePool, tc, backups, restoration)

	// Pre-operation snapshots block the request until the dump finishes.
	writeTimeout := cfg.SnapshotWaitTimeout + 30*time.Second
	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting core API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
