package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/Tyrowin/talkrelay/internal/server"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "talkrelay",
		Short: "Minimal chat relay server",
		Long: `talkrelay accepts chat clients over TCP (and optionally WebSocket)
and rebroadcasts every client's messages to all other connected clients.

Settings are read from the environment first (RELAY_HOST, RELAY_PORT,
RELAY_MAX_CLIENTS, ...) and flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cfg := server.NewConfigFromEnv()
	var (
		debug           bool
		shutdownTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(*cfg, server.WithLogger(logger))
			effective := srv.Hub().Config()
			logger.Info("Starting talkrelay",
				"version", version,
				"addr", effective.Addr(),
				"http", effective.HTTPAddr,
				"max_clients", effective.MaxClients,
				"idle_poll", effective.IdlePoll,
				"rate_limit_burst", effective.RateLimit.Burst,
			)
			return srv.Run(ctx, shutdownTimeout)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Host, "host", cfg.Host, "TCP listen host")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "TCP listen port")
	flags.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "maximum concurrent sessions")
	flags.DurationVar(&cfg.IdlePoll, "idle-poll", cfg.IdlePoll, "longest wait between polls of an idle client")
	flags.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "how long a client may take to answer a poll")
	flags.IntVar(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "largest accepted message in bytes")
	flags.StringVar(&cfg.DefaultAlias, "default-alias", cfg.DefaultAlias, "alias shown for clients that never register")
	flags.BoolVar(&cfg.Echo, "echo", cfg.Echo, "deliver broadcasts back to their sender")
	flags.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP address for health, WebSocket and metrics (empty disables)")
	flags.IntVar(&cfg.RateLimit.Burst, "rate-limit-burst", cfg.RateLimit.Burst, "messages a client may relay per refill interval (0 disables)")
	flags.DurationVar(&cfg.RateLimit.RefillInterval, "rate-limit-interval", cfg.RateLimit.RefillInterval, "time to refill the rate limit burst")
	flags.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", cfg.AllowedOrigins, "origins allowed to open WebSocket sessions")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	flags.DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "grace period for sessions on shutdown")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("talkrelay %s (%s) %s %s/%s\n", version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
