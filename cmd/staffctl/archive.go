package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/staffgrid/internal/blob"
	"github.com/JonMunkholm/staffgrid/internal/config"
	"github.com/JonMunkholm/staffgrid/internal/download"
)

var (
	archiveDriver string
	archiveDir    string
	archiveBucket string
	archivePrefix string
)

// addArchiveFlags registers the archive selection flags on cmd. Flags that
// are not given fall back to the EXPORT_ARCHIVE_* environment variables the
// server reads.
func addArchiveFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&archiveDriver, "archive-driver", "", "archive backend: none, memory, fs, s3")
	cmd.Flags().StringVar(&archiveDir, "archive-dir", "", "archive root for the fs driver")
	cmd.Flags().StringVar(&archiveBucket, "archive-bucket", "", "bucket for the s3 driver")
	cmd.Flags().StringVar(&archivePrefix, "archive-prefix", "", "key prefix for archived files")
}

// openArchive returns the archive selected by flags and environment, or nil
// when archiving is off.
func openArchive(cmd *cobra.Command) (*download.Archive, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	exp := cfg.Export

	flags := cmd.Flags()
	if flags.Changed("archive-driver") {
		exp.Driver = archiveDriver
	}
	if flags.Changed("archive-dir") {
		exp.Dir = archiveDir
	}
	if flags.Changed("archive-bucket") {
		exp.Bucket = archiveBucket
	}
	if flags.Changed("archive-prefix") {
		exp.Prefix = archivePrefix
	}
	if !exp.ArchiveEnabled() {
		return nil, nil
	}

	store, err := blob.Open(cmd.Context(), blob.Config{
		Driver: blob.Driver(exp.Driver),
		Dir:    exp.Dir,
		S3: blob.S3Config{
			Bucket:    exp.Bucket,
			Region:    exp.Region,
			Endpoint:  exp.Endpoint,
			PathStyle: exp.PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &download.Archive{Store: store, Prefix: exp.Prefix}, nil
}

var errNoArchive = errors.New("no archive configured (use --archive-driver or EXPORT_ARCHIVE_DRIVER)")

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect archived exports",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived exports",
	Args:  cobra.NoArgs,
	RunE:  runArchiveList,
}

var archiveGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Write an archived export to a file or stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveGet,
}

var archiveGetFile string

func init() {
	addArchiveFlags(archiveListCmd)
	addArchiveFlags(archiveGetCmd)
	archiveGetCmd.Flags().StringVarP(&archiveGetFile, "file", "f", "", "output file (default: stdout)")

	archiveCmd.AddCommand(archiveListCmd, archiveGetCmd)
	rootCmd.AddCommand(archiveCmd)
}

type archiveEntry struct {
	Key      string    `json:"key" yaml:"key"`
	Size     int64     `json:"size" yaml:"size"`
	FileName string    `json:"fileName,omitempty" yaml:"fileName,omitempty"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	archive, err := openArchive(cmd)
	if err != nil {
		return err
	}
	if archive == nil {
		return errNoArchive
	}

	infos, err := archive.Store.List(cmd.Context(), archive.Prefix)
	if err != nil {
		return err
	}

	entries := make([]archiveEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, archiveEntry{
			Key:      info.Key,
			Size:     info.Size,
			FileName: info.Metadata["filename"],
			Modified: info.LastModified,
		})
	}

	w := cmd.OutOrStdout()
	if outputFormat != formatText {
		return writeStructured(w, outputFormat, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No archived files.")
		return nil
	}
	p := painter(colorFor(w))
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %8d  %s\n", p.gray(e.Modified.UTC().Format(time.RFC3339)), e.Size, e.Key)
	}
	return nil
}

func runArchiveGet(cmd *cobra.Command, args []string) error {
	archive, err := openArchive(cmd)
	if err != nil {
		return err
	}
	if archive == nil {
		return errNoArchive
	}

	_, body, err := archive.Store.Get(cmd.Context(), args[0])
	if errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("archived file %q not found", args[0])
	}
	if err != nil {
		return err
	}
	defer body.Close()

	if archiveGetFile == "" {
		_, err = io.Copy(cmd.OutOrStdout(), body)
		return err
	}

	f, err := os.Create(archiveGetFile)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
