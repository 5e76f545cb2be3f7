package main

// Shared assembly for the watch and monitor commands: identity source,
// dedup backend, and the channel supervisor itself, all from config.

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/latticenet/livewire/internal/backoff"
	"github.com/latticenet/livewire/internal/dedup"
	"github.com/latticenet/livewire/internal/identityfile"
	"github.com/latticenet/livewire/internal/live"
	"github.com/latticenet/livewire/internal/session"
	"github.com/latticenet/livewire/internal/transport"
)

const dedupKeyPrefix = "livewire:seen:"

// buildIdentity resolves the identity source: a watched file when
// configured, otherwise a static store seeded from config. The returned
// watcher is nil for static identities.
func buildIdentity(log zerolog.Logger) (*session.Store, *identityfile.Watcher, error) {
	if cfg.Identity.File != "" {
		store := session.NewStore(session.Identity{})
		w, err := identityfile.New(cfg.Identity.File, store, log)
		if err != nil {
			return nil, nil, err
		}
		return store, w, nil
	}

	ident := session.Identity{}
	if cfg.Identity.UserID != "" {
		ident = session.Identity{UserID: cfg.Identity.UserID, Authenticated: true}
	}
	return session.NewStore(ident), nil, nil
}

// buildDedup picks the configured backend. The redis client is returned so
// the caller can close it; it is nil for the memory backend.
func buildDedup(log zerolog.Logger) (dedup.Store, *redis.Client) {
	if cfg.Dedup.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Dedup.Redis.Addr,
			Password: cfg.Dedup.Redis.Password,
			DB:       cfg.Dedup.Redis.DB,
		})
		log.Info().Str("addr", cfg.Dedup.Redis.Addr).Msg("redis dedup backend")
		return dedup.NewRedis(client, dedupKeyPrefix, cfg.Dedup.TTL.Std()), client
	}
	return dedup.NewMemory(cfg.Dedup.TTL.Std()), nil
}

// buildManager assembles the channel supervisor from config plus any
// caller-specific options appended on top.
func buildManager(log zerolog.Logger, ident *session.Store, extra ...live.Option) (*live.Manager, error) {
	dialer, err := transport.NewWebSocketDialer(cfg.Channel.URL,
		transport.WithHandshakeTimeout(cfg.Channel.DialTimeout.Std()))
	if err != nil {
		return nil, err
	}

	opts := []live.Option{
		live.WithLogger(log),
		live.WithHeartbeatInterval(cfg.Channel.HeartbeatInterval.Std()),
		live.WithDialTimeout(cfg.Channel.DialTimeout.Std()),
		live.WithBackoff(backoff.Policy{
			Base:        cfg.Backoff.Base.Std(),
			Cap:         cfg.Backoff.Cap.Std(),
			MaxAttempts: cfg.Backoff.MaxAttempts,
		}),
		live.WithEventBuffer(cfg.Channel.EventBuffer),
		live.WithSendLimit(cfg.Channel.SendRatePerSec, cfg.Channel.SendBurst),
	}
	opts = append(opts, extra...)
	return live.NewManager(dialer, ident, opts...), nil
}
