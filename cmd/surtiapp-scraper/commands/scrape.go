package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/surtiapp-scraper/internal/jobs"
)

var scrapeCategories []string

func init() {
	scrapeCmd.Flags().StringSliceVar(&scrapeCategories, "category", nil, "Only scrape the named categories (repeatable).")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--category <name>]...",
	Short: "Scrapes every configured category once and writes today's snapshot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		categories, err := selectCategories(cfg.Catalog.Categories, scrapeCategories)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, categories, appLog)
		if err != nil {
			return err
		}
		defer a.close()

		t1 := time.Now()
		run, err := a.jobs.RunNow(ctx, jobs.TriggerCLI)
		if err != nil {
			return err
		}

		appLog.Info("scrape finished",
			"run_id", run.ID,
			"status", run.Status,
			"records", run.Records,
			"categories", run.Categories,
			"seconds", time.Since(t1).Seconds(),
		)
		if run.Status == jobs.StatusFailed {
			return fmt.Errorf("scrape failed: %s", run.Error)
		}
		return nil
	},
}
