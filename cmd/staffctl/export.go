package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/staffgrid/internal/download"
	"github.com/JonMunkholm/staffgrid/internal/importer"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the records as a CSV export",
	Long: `Write every record as CSV (Id, Name, Department, JoinDate).

Exports carry the Id column and are not accepted by import; use the
template command for a file to fill in.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write the import template",
	Args:  cobra.NoArgs,
	RunE:  runTemplate,
}

var deliverFile string

func init() {
	for _, c := range []*cobra.Command{exportCmd, templateCmd} {
		c.Flags().StringVarP(&deliverFile, "file", "f", "", "output file (default: stdout)")
		addArchiveFlags(c)
		rootCmd.AddCommand(c)
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	store, err := loadStore()
	if err != nil {
		return err
	}
	payload, err := importer.ExportBytes(store.List())
	if err != nil {
		return err
	}
	return deliver(cmd, importer.ExportFileName, payload)
}

func runTemplate(cmd *cobra.Command, args []string) error {
	return deliver(cmd, importer.TemplateFileName, importer.TemplateBytes())
}

// deliver writes payload to --file or stdout and, when an archive is
// configured, keeps a copy there.
func deliver(cmd *cobra.Command, fileName string, payload []byte) error {
	archive, err := openArchive(cmd)
	if err != nil {
		return err
	}

	var local download.SinkFunc = func(_ context.Context, _, _ string, payload []byte) error {
		if deliverFile == "" {
			_, err := cmd.OutOrStdout().Write(payload)
			return err
		}
		return os.WriteFile(deliverFile, payload, 0o644)
	}

	sinks := download.Tee{local}
	var key string
	if archive != nil {
		now := time.Now()
		archive.Now = func() time.Time { return now }
		key = archive.Key(fileName, now)
		sinks = append(sinks, archive)
	}

	if err := sinks.Download(cmd.Context(), fileName, importer.CSVMimeType, payload); err != nil {
		return err
	}

	// Status lines go to stderr when the payload itself went to stdout.
	status := cmd.OutOrStdout()
	if deliverFile == "" {
		status = cmd.ErrOrStderr()
	}
	p := painter(colorFor(status))
	if deliverFile != "" {
		fmt.Fprintf(status, "%s %s (%d bytes)\n", p.green("wrote"), deliverFile, len(payload))
	}
	if key != "" {
		fmt.Fprintf(status, "%s %s\n", p.green("archived"), key)
	}
	return nil
}
