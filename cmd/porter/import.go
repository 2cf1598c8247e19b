package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/porter-data/porter/resource"
	"github.com/porter-data/porter/tabular"
)

var (
	importSchemaPath    string
	importDryRun        bool
	importNoInput       bool
	importBulk          bool
	importBatchSize     int
	importSkipUnchanged bool
	importIDFields      []string
	importFailedPath    string
	importRaiseErrors   bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a tabular file into the database",
	Long: `Read a tabular file (format detected from the extension), reconcile each
row against the model's store, and report what changed. A dry run over the
data is shown first; the changes are applied only after confirmation.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importSchemaPath, "schema", "s", "", "model schema file (required)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "reconcile and report without persisting")
	importCmd.Flags().BoolVar(&importNoInput, "no-input", false, "apply changes without asking for confirmation")
	importCmd.Flags().BoolVar(&importBulk, "bulk", false, "buffer writes and flush them in batches")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 0, "bulk flush size (defaults to import.batch_size)")
	importCmd.Flags().BoolVar(&importSkipUnchanged, "skip-unchanged", false, "skip rows whose values match the stored record")
	importCmd.Flags().StringSliceVar(&importIDFields, "id-fields", nil, "fields identifying an existing record (default id)")
	importCmd.Flags().StringVar(&importFailedPath, "failed-rows", "", "write failing rows plus their error to this file")
	importCmd.Flags().BoolVar(&importRaiseErrors, "raise-errors", false, "abort on the first row processing error")
	importCmd.MarkFlagRequired("schema")
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]

	format, err := formatFor(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	dataset, err := format.CreateDataset(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	a, err := newApp(importSchemaPath, func(opts *resource.Options) {
		opts.UseBulk = importBulk
		if importBatchSize > 0 {
			opts.BatchSize = importBatchSize
		}
		if importSkipUnchanged {
			opts.SkipUnchanged = true
		}
		if len(importIDFields) > 0 {
			opts.ImportIDFields = importIDFields
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	params := resource.ImportParams{
		RaiseErrors:       importRaiseErrors,
		CollectFailedRows: importFailedPath != "",
	}

	// Dry run first so the user confirms against what would actually happen
	preview := params
	preview.DryRun = true
	result, err := a.resource.ImportData(ctx, dataset, preview)
	if err != nil {
		return err
	}

	fmt.Printf("Importing %d row(s) from %s into %s\n\n", dataset.Len(), path, a.model.Name)
	printResult(result, true)

	if importDryRun {
		return importExitError(result)
	}
	if result.HasErrors() {
		return importExitError(result)
	}

	if !importNoInput {
		confirmed := false
		prompt := &survey.Confirm{
			Message: "Apply these changes?",
			Default: false,
		}
		if err := survey.AskOne(prompt, &confirmed); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Aborted, nothing was changed.")
			return nil
		}
	}

	result, err = a.resource.ImportData(ctx, dataset, params)
	if err != nil {
		return err
	}
	fmt.Println()
	printResult(result, false)

	if importFailedPath != "" && result.FailedDataset != nil {
		if err := writeDataset(importFailedPath, result.FailedDataset); err != nil {
			return err
		}
		fmt.Printf("Failing rows written to %s\n", importFailedPath)
	}
	return importExitError(result)
}

// printResult renders the per-classification totals and any row failures
func printResult(result *resource.Result, dryRun bool) {
	heading := color.New(color.FgCyan, color.Bold)
	if dryRun {
		heading.Println("Dry run (no changes were persisted):")
	} else {
		heading.Println("Import result:")
	}

	totals := result.Totals()
	processed := 0
	for _, t := range resource.ImportTypes {
		n := totals[t]
		processed += n
		if n == 0 {
			continue
		}
		totalColor(t).Printf("  %-8s %d\n", t, n)
	}
	if processed == 0 && len(result.BaseErrors) == 0 {
		fmt.Println("  nothing to do")
	}

	errColor := color.New(color.FgRed)
	for _, ir := range result.InvalidRows {
		fields := make([]string, 0, len(ir.ValidationError.Fields))
		for f := range ir.ValidationError.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			for _, msg := range ir.ValidationError.Fields[f] {
				errColor.Printf("  row %d: %s: %s\n", ir.Number, f, msg)
			}
		}
	}
	for _, rr := range result.Rows {
		if rr.Err != nil {
			errColor.Printf("  row %d: %v\n", rr.Number, rr.Err)
		}
	}
	for _, err := range result.BaseErrors {
		errColor.Printf("  import error: %v\n", err)
	}
}

// totalColor maps a classification to its display color
func totalColor(t resource.ImportType) *color.Color {
	switch t {
	case resource.ImportTypeNew:
		return color.New(color.FgGreen)
	case resource.ImportTypeUpdate:
		return color.New(color.FgYellow)
	case resource.ImportTypeDelete:
		return color.New(color.FgMagenta)
	case resource.ImportTypeInvalid, resource.ImportTypeError:
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}

// importExitError folds row failures into a non-zero exit status
func importExitError(result *resource.Result) error {
	invalid := result.Total(resource.ImportTypeInvalid)
	errored := result.Total(resource.ImportTypeError)
	if invalid == 0 && errored == 0 && len(result.BaseErrors) == 0 {
		return nil
	}
	return fmt.Errorf("import finished with %d invalid and %d errored row(s)", invalid, errored)
}

// writeDataset serializes a dataset in the format matching the path's extension
func writeDataset(path string, d *tabular.Dataset) error {
	format, err := formatFor(path)
	if err != nil {
		return err
	}
	data, err := format.ExportData(d)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
