package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/surtiapp-scraper/internal/analytics"
	"github.com/maltedev/surtiapp-scraper/internal/models"
	"github.com/maltedev/surtiapp-scraper/internal/storage"
)

var (
	analyzeHistory   string
	analyzeRecent    string
	analyzeOut       string
	analyzeNewSince  string
	analyzeThreshold int
	analyzeCombine   bool
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeHistory, "history", "surtiapp_dataset.csv", "Historical dataset to compare against.")
	analyzeCmd.Flags().StringVar(&analyzeRecent, "recent", "", "Recent dataset (default: the combined file in the data dir).")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "out", "Directory for the report files.")
	analyzeCmd.Flags().StringVar(&analyzeNewSince, "new-since", "", "Only report products captured after this date (YYYY-MM-DD).")
	analyzeCmd.Flags().IntVar(&analyzeThreshold, "low-stock", analytics.DefaultLowStockThreshold, "Quantity at or below which a product is low on stock.")
	analyzeCmd.Flags().BoolVar(&analyzeCombine, "combine", true, "Combine the dated snapshots before analyzing.")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [--history <file>] [--out <dir>]",
	Short: "Compares recent snapshots with a historical dataset and writes the report files.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := storage.NewSnapshotStore(cfg.Catalog.DataDir, cfg.Catalog.FilePrefix, appLog)

		var newSince time.Time
		if analyzeNewSince != "" {
			t, err := time.ParseInLocation(models.DateLayout, analyzeNewSince, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --new-since: %w", err)
			}
			newSince = t
		}

		if analyzeCombine {
			if _, err := store.Combine(); err != nil {
				return fmt.Errorf("failed to combine snapshots: %w", err)
			}
		}

		recentPath := analyzeRecent
		if recentPath == "" {
			recentPath = store.RecentPath()
		}

		history, err := storage.ReadFile(analyzeHistory)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		recent, err := storage.ReadFile(recentPath)
		if err != nil {
			return fmt.Errorf("failed to read recent dataset: %w", err)
		}

		report := analytics.Analyze(history, recent, analytics.Options{
			NewSince:          newSince,
			LowStockThreshold: analyzeThreshold,
		})

		if c := report.StockPrice.Coefficient; c != nil {
			appLog.Info("stock vs price change", "correlation", fmt.Sprintf("%.2f", *c), "pairs", len(report.StockPrice.Rows))
		} else {
			appLog.Info("stock vs price change", "correlation", "undefined", "pairs", len(report.StockPrice.Rows))
		}

		return analytics.WriteReport(analyzeOut, report, appLog)
	},
}
