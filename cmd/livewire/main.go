package main

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/latticenet/livewire/internal/config"
	"github.com/latticenet/livewire/internal/logging"
)

var version = "0.3.0"

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "livewire",
		Short:   "Resilient realtime notification channel client",
		Version: version,
		Long: `livewire keeps a WebSocket channel to a notification service alive:
heartbeats, exponential reconnect with a retry ceiling, wake recovery,
identity switching, duplicate suppression, desktop alerts, and a
monitoring HTTP surface for the daemon form.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to livewire.yaml (optional)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Override log format (auto|json|console)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagLogLevel != "" {
			loaded.Log.Level = flagLogLevel
		}
		if flagLogFormat != "" {
			loaded.Log.Format = flagLogFormat
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		logging.Setup(loaded.Log.Level, loaded.Log.Format)
		cfg = loaded
		return nil
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream notifications to the console",
		Long: `Connects as the configured identity and streams notifications in the
foreground until interrupted. On Unix, SIGUSR1 marks everything read and
SIGCONT nudges a reconnect after a suspend.`,
		RunE: runWatch,
	}
	watchCmd.Flags().String("url", "", "Channel URL (overrides config)")
	watchCmd.Flags().String("user", "", "User id to connect as (overrides config)")
	watchCmd.Flags().Bool("json", false, "Print notifications as raw JSON lines on stdout")
	watchCmd.Flags().Bool("desktop", false, "Raise desktop alerts for notifications")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the headless channel daemon",
		Long: `Keeps the channel alive in the background: identity file watching, wake
detection, optional redis dedup and Postgres archival, and the HTTP
status/metrics surface the status subcommand talks to.`,
		RunE: runMonitor,
	}

	devserverCmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local notification service for development",
		Long: `Serves the channel protocol on /ws with synthetic notifications, pong
replies, optional abrupt drops, and a POST /notify injection endpoint.`,
		RunE: runDevserver,
	}
	devserverCmd.Flags().String("addr", "127.0.0.1:8765", "Listen address")
	devserverCmd.Flags().Duration("interval", 5*time.Second, "Synthetic notification interval (0 disables)")
	devserverCmd.Flags().Int("drop-after", 0, "Abruptly drop each client after N notifications (0 keeps them)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running monitor's status endpoint",
		RunE:  runStatus,
	}
	statusCmd.Flags().String("addr", "", "Monitor address (defaults to config monitor host:port)")

	rootCmd.AddCommand(watchCmd, monitorCmd, devserverCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
