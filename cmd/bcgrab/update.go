package main

import (
	"github.com/spf13/cobra"
)

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update [instrument...]",
	Short: "Extend existing contract files with their missing tail",
	Long: `Extend existing contract price files instead of skipping them.

For each file that already exists, only the window after its last saved
row is requested. Files whose last row is recent enough are skipped.
Missing files are downloaded in full, as with 'download'.`,
	Example: `  # Refresh everything that has gone stale
  bcgrab update

  # Refresh just the gold contracts
  bcgrab update GOLD`,
	RunE: func(cmd *cobra.Command, args []string) error {
		updateMode = true
		return runDownload(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVarP(&saveDir, "save-dir", "o", "", "directory for downloaded CSV files")
	updateCmd.Flags().IntVar(&startYear, "start-year", 0, "first contract year to consider")
	updateCmd.Flags().IntVar(&endYear, "end-year", 0, "last contract year to consider")
	updateCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "log planned downloads without fetching anything")
	updateCmd.Flags().BoolVar(&dailyOnly, "daily-only", false, "skip hourly bars entirely")
	updateCmd.Flags().IntVar(&maxDownloads, "max-downloads", 0, "cap on paid downloads this run")
	updateCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
}
