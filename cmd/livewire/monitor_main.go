package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/latticenet/livewire/internal/alerts"
	"github.com/latticenet/livewire/internal/clock"
	"github.com/latticenet/livewire/internal/httpapi"
	"github.com/latticenet/livewire/internal/live"
	"github.com/latticenet/livewire/internal/logging"
	"github.com/latticenet/livewire/internal/metrics"
	"github.com/latticenet/livewire/internal/store"
	"github.com/latticenet/livewire/internal/wake"
)

// runMonitor runs the headless daemon: the channel supervisor plus wake
// detection, optional Postgres archival, and the HTTP status/metrics
// surface.
func runMonitor(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("cmd", "monitor").Logger()

	ident, watcher, err := buildIdentity(logger)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if watcher != nil {
		watcher.Start()
		defer watcher.Close()
	}

	seen, redisClient := buildDedup(logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	reg := metrics.NewRegistry()
	opts := []live.Option{
		live.WithDedup(seen),
		live.WithMetrics(reg.Callback()),
	}

	if cfg.Alerts.Desktop {
		async := alerts.NewAsync(alerts.NewDesktop(cfg.Alerts.Icon), logger)
		defer async.Close()
		opts = append(opts, live.WithAlerter(async))
	}

	var (
		archiver store.Archiver
		worker   *store.Worker
	)
	if cfg.Archive.Enabled {
		archiver, err = store.NewPostgres(cfg.Archive.DSN)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		defer archiver.Close()

		schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 10*time.Second)
		err = archiver.EnsureSchema(schemaCtx)
		cancelSchema()
		if err != nil {
			return fmt.Errorf("archive schema: %w", err)
		}

		worker = store.NewWorker(archiver, cfg.Archive.Queue, logger)
		defer worker.Close()
		logger.Info().
			Str("dsn", logging.RedactDSN(cfg.Archive.DSN)).
			Int("queue", cfg.Archive.Queue).
			Msg("archiving notifications to postgres")
	}

	mgr, err := buildManager(logger, ident, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	det := wake.NewDetector(clock.System(), cfg.Wake.Interval.Std(), cfg.Wake.Threshold.Std(), mgr.Wake, logger)
	det.Start()
	defer det.Close()

	if worker != nil {
		go pumpArchive(ctx, mgr, worker)
	}

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.Monitor.Host
	httpCfg.Port = cfg.Monitor.Port
	srv, err := httpapi.NewServer(httpCfg, httpapi.Deps{
		Snapshot: mgr.Snapshot,
		Metrics:  reg.Handler(),
		Archive:  archiver,
	}, logger)
	if err != nil {
		return fmt.Errorf("monitor server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	mgr.Connect()
	notifyPlatformSignals(ctx, mgr, watcher, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info().
		Str("url", logging.RedactURL(cfg.Channel.URL)).
		Str("addr", srv.Addr()).
		Msg("monitor running")

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("monitor server failed")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("monitor server shutdown")
	}
	return nil
}

// pumpArchive forwards delivered notifications to the archive worker until
// ctx ends.
func pumpArchive(ctx context.Context, mgr *live.Manager, worker *store.Worker) {
	for ev := range mgr.Events(ctx) {
		if ev.Type == live.EventNotification && ev.Notification != nil {
			worker.Enqueue(*ev.Notification, ev.At)
		}
	}
}
