package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/staffgrid/internal/importer"
)

var checkCmd = &cobra.Command{
	Use:   "check <file.csv>...",
	Short: "Validate CSV files without importing",
	Long: `Run every import check on the given files without changing any records.

The report lists each row an import would skip; the added count is the
number of rows an import would add. The command fails when any file would
be rejected outright.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	store, err := loadStore()
	if err != nil {
		return err
	}
	pipeline := importer.New(store, importer.Config{})

	reports := make([]*importer.Report, 0, len(args))
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		reports = append(reports, pipeline.Check(cmd.Context(), filepath.Base(path), f))
	}

	if err := printReports(cmd.OutOrStdout(), outputFormat, reports); err != nil {
		return err
	}
	return reportsFailed(reports)
}
