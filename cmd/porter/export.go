package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/porter-data/porter/resource"
)

var (
	exportSchemaPath string
	exportFields     []string
	exportExclude    []string
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export a model's records to a tabular file",
	Long: `Write every record of the model to a tabular file. The output format is
detected from the file extension; records are streamed in primary key order.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportSchemaPath, "schema", "s", "", "model schema file (required)")
	exportCmd.Flags().StringSliceVar(&exportFields, "fields", nil, "fields to export (default: every schema field)")
	exportCmd.Flags().StringSliceVar(&exportExclude, "exclude", nil, "fields to leave out")
	exportCmd.MarkFlagRequired("schema")
}

func runExport(cmd *cobra.Command, args []string) error {
	path := args[0]

	_, err := formatFor(path)
	if err != nil {
		return err
	}

	a, err := newApp(exportSchemaPath, func(opts *resource.Options) {
		opts.Fields = exportFields
		opts.Exclude = exportExclude
	})
	if err != nil {
		return err
	}
	defer a.Close()

	dataset, err := a.resource.Export(context.Background(), nil, resource.ExportParams{})
	if err != nil {
		return err
	}

	if err := writeDataset(path, dataset); err != nil {
		return err
	}
	fmt.Printf("Exported %d %s record(s) to %s\n", dataset.Len(), a.model.Name, path)
	return nil
}
