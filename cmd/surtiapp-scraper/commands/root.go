package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/surtiapp-scraper/internal/config"
	"github.com/maltedev/surtiapp-scraper/internal/logger"
)

var (
	envFiles []string

	cfg *config.Config
	appLog *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "surtiapp-scraper",
	Short:         "surtiapp-scraper builds dated snapshots of the SurtiApp catalog and analyzes them.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFiles...)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		appLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
		slog.SetDefault(appLog)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Env files to load before reading the environment (default .env).")
}

// ExecuteContext runs the command selected on the command line.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return err
}
