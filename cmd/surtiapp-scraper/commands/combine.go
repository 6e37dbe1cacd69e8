package commands

import (
	"github.com/spf13/cobra"

	"github.com/maltedev/surtiapp-scraper/internal/storage"
)

func init() {
	rootCmd.AddCommand(combineCmd)
}

var combineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Concatenates the dated snapshots into the recent dataset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := storage.NewSnapshotStore(cfg.Catalog.DataDir, cfg.Catalog.FilePrefix, appLog)
		n, err := store.Combine()
		if err != nil {
			return err
		}
		appLog.Info("combined dataset ready", "path", store.RecentPath(), "records", n)
		return nil
	},
}
