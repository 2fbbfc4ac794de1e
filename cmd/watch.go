package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"d2r-save-guard/internal/application"
)

var metricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the save directory and back up automatically",
	Long: `Run as a daemon that watches the save directory. Save files that cross
the configured size threshold are backed up as soon as their writes settle,
and a periodic sweep backs up every save file on a schedule. Automatic
backups respect the cooldown so rapid write bursts do not flood the backup
directory.

Runs until interrupted (Ctrl+C) or terminated.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9309")
	viper.BindPFlag("metrics_addr", watchCmd.Flags().Lookup("metrics-addr"))
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	app, err := application.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}
