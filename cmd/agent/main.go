package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"system-insight/internal/agent"
	"system-insight/internal/agent/version"
	"system-insight/internal/config"
	"system-insight/internal/logging"
)

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "system-insight-agent",
		Short: "Collect host counters and push them to a system-insight server",
		Long: `system-insight-agent samples CPU, softirq, memory and network counters
every collection interval and sends the derived metrics to the server.

Configuration is read from the --config file (JSON or YAML, "client" section)
and SYSTEM_INSIGHT_* environment variables.`,
		Version:       version.AgentVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAgent(configPath)
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

			a, err := agent.New(cfg, logger.Logger)
			if err != nil {
				logger.Error("agent initialization failed", "error", err)
				return err
			}
			if err := a.Run(context.Background()); err != nil {
				logger.Error("agent runtime failed", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config/client_config.json", "path to the agent config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
