package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/socialchat-server/internal/app"
	"github.com/vovakirdan/socialchat-server/internal/config"
	"github.com/vovakirdan/socialchat-server/internal/log"
)

type options struct {
	configPath string
	overrides  config.Config
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "socialchat-server",
		Short:         "Presence and direct messaging server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "path to config.yaml")
	flags.StringVar(&opts.overrides.Addr, "addr", "", "HTTP listen address")
	flags.StringVar(&opts.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.overrides.LogFormat, "log-format", "", "log format (json or console)")
	flags.StringVar(&opts.overrides.DatabasePath, "db", "", "sqlite database path")
	flags.StringVar(&opts.overrides.MediaDir, "media-dir", "", "directory for uploaded media")
	flags.StringVar(&opts.overrides.RedisAddr, "redis-addr", "", "redis address for the presence mirror")
	flags.StringSliceVar(&opts.overrides.KafkaBrokers, "kafka-brokers", nil, "kafka brokers for event export")
	flags.DurationVar(&opts.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")

	return cmd
}

func run(ctx context.Context, opts options) error {
	bootLogger := log.New("info", "console")

	cfg, path, err := config.Load(bootLogger, opts.configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(opts.overrides)

	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting socialchat server")

	application, err := app.New(&cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
