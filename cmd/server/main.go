package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"system-insight/internal/config"
	"system-insight/internal/lifecycle"
	"system-insight/internal/logging"
	"system-insight/internal/server"
)

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "system-insight-server",
		Short: "Receive host reports and expose the latest values for scraping",
		Long: `system-insight-server accepts metric reports over gRPC (and optionally
a websocket), keeps the latest report per host and serves them in the
Prometheus text exposition format.

Configuration is read from the --config file (JSON or YAML, "server" and
"exporter" sections) and SYSTEM_INSIGHT_SERVER_* / SYSTEM_INSIGHT_EXPORTER_*
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadServer(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			logger := logging.New(cfg.Log, os.Stdout)
			defer func() { _ = logger.Close() }()

			app, err := server.NewApp(cfg, logger.Logger)
			if err != nil {
				logger.Error("server initialization failed", "error", err)
				return err
			}
			err = lifecycle.Execute(context.Background(), lifecycle.Process{
				Name:            "system-insight server",
				Logger:          logger.Logger,
				ShutdownTimeout: cfg.ShutdownTimeout,
				Run:             app.Run,
			})
			if err != nil {
				logger.Error("server runtime failed", "error", err)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config/server_config.json", "path to the server config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
