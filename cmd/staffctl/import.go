package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/staffgrid/internal/core"
	"github.com/JonMunkholm/staffgrid/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>...",
	Short: "Import CSV files into the seed records",
	Long: `Import one or more employee CSV files, in order, on top of the seed
records and print a report per file.

Files are checked the same way the server checks uploads: the header must
have three columns in a single language (Korean or English), the encoding is
detected from the byte order mark, and rows with an empty name or an
unreadable join date are skipped.

Use --save to write the resulting records as a seed file. The command fails
when any file is rejected outright.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

var (
	importSave    string
	importMaxSize int64
)

func init() {
	importCmd.Flags().StringVar(&importSave, "save", "", "write the resulting records to this YAML seed file")
	importCmd.Flags().Int64Var(&importMaxSize, "max-size", importer.DefaultMaxFileSize, "maximum file size in bytes")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	store, err := loadStore()
	if err != nil {
		return err
	}

	pipeline := importer.New(store, importer.Config{MaxFileSize: importMaxSize})

	reports := make([]*importer.Report, 0, len(args))
	for _, path := range args {
		report, err := pipeline.ImportFile(cmd.Context(), path)
		if err != nil {
			return err
		}
		reports = append(reports, report)
	}

	if err := printReports(cmd.OutOrStdout(), outputFormat, reports); err != nil {
		return err
	}

	if importSave != "" {
		if err := saveSeed(importSave, store.Snapshot()); err != nil {
			return err
		}
	}
	return reportsFailed(reports)
}

func saveSeed(path string, employees []core.Employee) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create seed file: %w", err)
	}
	if err := core.EncodeSeed(f, employees); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
