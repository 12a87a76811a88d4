// Package main is the entry point for staffctl, the offline companion to the
// staffgrid server. It runs the same import pipeline and export writers
// against a seed file instead of a live store.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/staffgrid/internal/core"
	"github.com/JonMunkholm/staffgrid/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	logLevel     string
	seedPath     string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "staffctl",
	Short: "staffctl - import and export employee CSV files",
	Long: `staffctl checks and imports employee CSV files and writes exports and
import templates, using the same rules as the staffgrid server.

Records are read from a YAML seed file (--seed), or the built-in demo data
when none is given. Imports can write the result back with --save.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case formatText, formatJSON, formatYAML:
		default:
			return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
		}
		slog.SetDefault(logging.New(cmd.ErrOrStderr(), logLevel, "text"))
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("staffctl version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&seedPath, "seed", "", "YAML seed file (default: built-in demo data)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatText, "output format: text, json, yaml")
}

// loadStore returns a store holding the --seed records.
func loadStore() (*core.Store, error) {
	employees, err := core.LoadSeedFile(seedPath)
	if err != nil {
		return nil, err
	}
	store := core.NewStore()
	if err := store.Seed(employees); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return store, nil
}
