// Package config loads the livewire configuration: baked-in defaults,
// overlaid by an optional YAML file, overlaid by LIVEWIRE_* environment
// variables. Precedence is env > file > default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML accepts "15s" style values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("bad duration %q (want e.g. \"15s\"): %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped stdlib duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Channel  ChannelConfig  `yaml:"channel"`
	Backoff  BackoffConfig  `yaml:"backoff"`
	Identity IdentityConfig `yaml:"identity"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Wake     WakeConfig     `yaml:"wake"`
	Log      LogConfig      `yaml:"log"`
}

type ChannelConfig struct {
	// URL of the notification service. http(s) schemes are rewritten to
	// ws(s) at dial time.
	URL               string   `yaml:"url"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	DialTimeout       Duration `yaml:"dial_timeout"`
	EventBuffer       int      `yaml:"event_buffer"`
	SendRatePerSec    float64  `yaml:"send_rate_per_sec"`
	SendBurst         int      `yaml:"send_burst"`
}

type BackoffConfig struct {
	Base        Duration `yaml:"base"`
	Cap         Duration `yaml:"cap"`
	MaxAttempts int      `yaml:"max_attempts"`
}

type IdentityConfig struct {
	// File points at a YAML identity document that is watched for
	// changes; UserID pins a static identity instead. File wins when both
	// are set.
	File   string `yaml:"file"`
	UserID string `yaml:"user_id"`
}

type AlertsConfig struct {
	Desktop bool   `yaml:"desktop"`
	Icon    string `yaml:"icon"`
}

type DedupConfig struct {
	Backend string      `yaml:"backend"` // memory or redis
	TTL     Duration    `yaml:"ttl"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Queue   int    `yaml:"queue"`
}

type MonitorConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type WakeConfig struct {
	Interval  Duration `yaml:"interval"`
	Threshold Duration `yaml:"threshold"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto, json or console
}

// Default returns the configuration used when no file is given. The
// channel URL points at a local devserver.
func Default() Config {
	return Config{
		Channel: ChannelConfig{
			URL:               "ws://127.0.0.1:8765/ws",
			HeartbeatInterval: Duration(15 * time.Second),
			DialTimeout:       Duration(10 * time.Second),
			EventBuffer:       16,
			SendRatePerSec:    5,
			SendBurst:         10,
		},
		Backoff: BackoffConfig{
			Base:        Duration(time.Second),
			Cap:         Duration(30 * time.Second),
			MaxAttempts: 5,
		},
		Alerts: AlertsConfig{
			Desktop: false,
		},
		Dedup: DedupConfig{
			Backend: "memory",
			TTL:     Duration(10 * time.Minute),
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Queue:   128,
		},
		Monitor: MonitorConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Wake: WakeConfig{
			Interval:  Duration(15 * time.Second),
			Threshold: Duration(45 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads path over the defaults. An empty path skips the file and
// returns defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays the deploy-varying settings. Secrets belong here, not
// in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("LIVEWIRE_CHANNEL_URL"); v != "" {
		c.Channel.URL = v
	}
	if v := os.Getenv("LIVEWIRE_USER_ID"); v != "" {
		c.Identity.UserID = v
	}
	if v := os.Getenv("LIVEWIRE_IDENTITY_FILE"); v != "" {
		c.Identity.File = v
	}
	if v := os.Getenv("LIVEWIRE_REDIS_ADDR"); v != "" {
		c.Dedup.Backend = "redis"
		c.Dedup.Redis.Addr = v
	}
	if v := os.Getenv("LIVEWIRE_REDIS_PASSWORD"); v != "" {
		c.Dedup.Redis.Password = v
	}
	if v := os.Getenv("LIVEWIRE_ARCHIVE_DSN"); v != "" {
		c.Archive.Enabled = true
		c.Archive.DSN = v
	}
	if v := os.Getenv("LIVEWIRE_MONITOR_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Monitor.Port = p
		}
	}
	if v := os.Getenv("LIVEWIRE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Channel.URL == "" {
		return fmt.Errorf("config: channel.url is required")
	}
	if c.Channel.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: channel.heartbeat_interval must be positive")
	}
	if c.Channel.DialTimeout <= 0 {
		return fmt.Errorf("config: channel.dial_timeout must be positive")
	}
	if c.Backoff.Base <= 0 || c.Backoff.Cap < c.Backoff.Base {
		return fmt.Errorf("config: backoff needs 0 < base <= cap")
	}
	if c.Backoff.MaxAttempts < 1 {
		return fmt.Errorf("config: backoff.max_attempts must be at least 1")
	}
	switch c.Dedup.Backend {
	case "memory":
	case "redis":
		if c.Dedup.Redis.Addr == "" {
			return fmt.Errorf("config: dedup.redis.addr required for the redis backend")
		}
	default:
		return fmt.Errorf("config: dedup.backend must be memory or redis, got %q", c.Dedup.Backend)
	}
	if c.Dedup.TTL <= 0 {
		return fmt.Errorf("config: dedup.ttl must be positive")
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		return fmt.Errorf("config: archive.dsn required when archive is enabled")
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		return fmt.Errorf("config: monitor.port out of range: %d", c.Monitor.Port)
	}
	if c.Wake.Interval <= 0 {
		return fmt.Errorf("config: wake.interval must be positive")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: bad log.level %q: %w", c.Log.Level, err)
	}
	switch c.Log.Format {
	case "auto", "json", "console":
	default:
		return fmt.Errorf("config: log.format must be auto, json or console, got %q", c.Log.Format)
	}
	return nil
}
