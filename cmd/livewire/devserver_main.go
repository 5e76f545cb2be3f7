package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/latticenet/livewire/internal/devserver"
)

// runDevserver serves the channel protocol locally for development.
func runDevserver(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	interval, _ := cmd.Flags().GetDuration("interval")
	dropAfter, _ := cmd.Flags().GetInt("drop-after")

	logger := log.With().Str("cmd", "devserver").Logger()

	dev := devserver.New(devserver.Config{
		Interval:  interval,
		DropAfter: dropAfter,
	}, logger)

	// No read/write timeouts: /ws connections are long-lived streams.
	srv := &http.Server{Addr: addr, Handler: dev.Handler()}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	logger.Info().
		Str("channel", "ws://"+addr+"/ws?userId=<id>").
		Str("inject", "http://"+addr+"/notify").
		Dur("interval", interval).
		Int("drop_after", dropAfter).
		Msg("devserver running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	// Dropping the clients first unblocks their hijacked connections so
	// Shutdown does not wait out its timeout.
	dev.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("devserver shutdown")
	}
	return nil
}
