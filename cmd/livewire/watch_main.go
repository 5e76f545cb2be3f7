package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/latticenet/livewire/internal/alerts"
	"github.com/latticenet/livewire/internal/live"
	"github.com/latticenet/livewire/internal/logging"
)

// runWatch streams channel events to the console until interrupted.
func runWatch(cmd *cobra.Command, args []string) error {
	if url, _ := cmd.Flags().GetString("url"); url != "" {
		cfg.Channel.URL = url
	}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		cfg.Identity.File = ""
		cfg.Identity.UserID = user
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	desktop, _ := cmd.Flags().GetBool("desktop")

	logger := log.With().Str("cmd", "watch").Logger()

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
	opts := []live.Option{live.WithDedup(seen)}

	if desktop || cfg.Alerts.Desktop {
		async := alerts.NewAsync(alerts.NewDesktop(cfg.Alerts.Icon), logger)
		defer async.Close()
		opts = append(opts, live.WithAlerter(async))
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

	events := mgr.Events(ctx)
	mgr.Connect()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	notifyPlatformSignals(ctx, mgr, watcher, logger)

	logger.Info().Str("url", logging.RedactURL(cfg.Channel.URL)).Msg("watching channel")

	for {
		select {
		case <-quit:
			logger.Info().Msg("shutting down")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			printEvent(logger, ev, asJSON)
		}
	}
}

// printEvent renders one supervisor event. JSON mode emits notifications as
// raw lines on stdout for piping; everything else goes through the logger.
func printEvent(logger zerolog.Logger, ev live.Event, asJSON bool) {
	switch ev.Type {
	case live.EventStatus:
		e := logger.Info()
		if ev.Status == live.StatusError {
			e = logger.Error()
		}
		e.Str("from", ev.Previous.String()).
			Str("to", ev.Status.String()).
			Str("reason", ev.Reason).
			Msg("status")

	case live.EventNotification:
		n := ev.Notification
		if n == nil {
			return
		}
		if asJSON {
			out, err := json.Marshal(n)
			if err != nil {
				logger.Error().Err(err).Msg("encode notification")
				return
			}
			fmt.Fprintln(os.Stdout, string(out))
			return
		}
		logger.Info().
			Str("id", n.ID).
			Str("title", n.Title).
			Str("message", n.Message).
			Str("category", n.Category).
			Int("unread", ev.Unread).
			Msg("notification")

	case live.EventUnread:
		logger.Info().Int("unread", ev.Unread).Msg("unread reset")
	}
}
