//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/latticenet/livewire/internal/identityfile"
	"github.com/latticenet/livewire/internal/live"
)

// notifyPlatformSignals wires the Unix-only control signals: SIGUSR1 marks
// everything read, SIGCONT nudges a reconnect after a suspend, and SIGHUP
// re-reads the identity file. The goroutine exits with ctx.
func notifyPlatformSignals(ctx context.Context, mgr *live.Manager, watcher *identityfile.Watcher, log zerolog.Logger) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGCONT, syscall.SIGHUP)

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				switch sig {
				case syscall.SIGUSR1:
					log.Info().Msg("SIGUSR1: marking all read")
					mgr.ResetUnread()
				case syscall.SIGCONT:
					log.Info().Msg("SIGCONT: checking channel")
					mgr.Wake("sigcont")
				case syscall.SIGHUP:
					if watcher == nil {
						log.Warn().Msg("SIGHUP ignored: no identity file configured")
						continue
					}
					log.Info().Msg("SIGHUP: reloading identity file")
					watcher.Reload()
				}
			}
		}
	}()
}
