package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/linux-automation/tacd/internal/config"
	"github.com/linux-automation/tacd/internal/wireup"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tacd",
		Short:         "Test Automation Controller daemon",
		Long:          "tacd bridges the LXA TAC's hardware and host state onto a topic bus served over REST, WebSocket, and the physical front-panel display.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/tacd/tacd.yaml", "path to tacd.yaml")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(versionCmd())

	return root
}

func serveCmd(configPath *string) *cobra.Command {
	var logJSON bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if logJSON {
				cfg.LogJSON = true
			}

			logger := cfg.NewLogger()
			logger.WithField("version", version).Info("starting tacd")

			sys, err := wireup.Build(cfg, logger)
			if err != nil {
				return fmt.Errorf("wiring up daemon: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := sys.Run(ctx); err != nil && err != context.Canceled {
				return fmt.Errorf("daemon exited: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "log in JSON format (for running under systemd)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tacd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
