package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "porter",
		Short: "Bulk import and export of tabular data",
		Long: `Porter moves tabular data (CSV, TSV, JSON, YAML, XLSX) in and out of a
database. Imports reconcile each row against existing records, classify it
as new, update, delete or skip, and report per-row diffs and validation
errors before anything is committed.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(inspectCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
