//go:build !unix

package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/latticenet/livewire/internal/identityfile"
	"github.com/latticenet/livewire/internal/live"
)

// notifyPlatformSignals is a no-op where the Unix control signals do not
// exist.
func notifyPlatformSignals(ctx context.Context, mgr *live.Manager, watcher *identityfile.Watcher, log zerolog.Logger) {
}
