package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bcgrab/pkg/storage"
)

var migrateDryRun bool

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate <dir>",
	Short: "Rename legacy price files to the current naming scheme",
	Long: `Rename price files from the legacy <INSTRUMENT>_<YYYYMMDD>.csv scheme
to the current <Frequency>_<INSTRUMENT>_<YYYYMM>00.csv scheme.

The frequency of each legacy file is inferred from the spacing of its
rows. Files that cannot be classified are left in place and reported.`,
	Example: `  # See what would be renamed
  bcgrab migrate ./prices --dry-run

  # Rename for real
  bcgrab migrate ./prices`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVarP(&migrateDryRun, "dry-run", "n", false, "report renames without performing them")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStore(args[0])
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}

	results, err := store.MigrateLegacy(migrateDryRun)
	if err != nil {
		return err
	}

	renamed := 0
	for _, r := range results {
		if r.To == "" {
			fmt.Printf("skipped %s: %s\n", r.From, r.Reason)
			continue
		}
		renamed++
		if migrateDryRun {
			fmt.Printf("would rename %s -> %s\n", r.From, r.To)
		} else {
			fmt.Printf("renamed %s -> %s\n", r.From, r.To)
		}
	}
	fmt.Printf("%d of %d legacy files renamed\n", renamed, len(results))
	return nil
}
