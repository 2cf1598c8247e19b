package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/porter-data/porter/internal/orm/schema"
	"github.com/porter-data/porter/resource"
)

var inspectSchemaPath string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the resolved field mapping for a model schema",
	Long: `Load a model schema file and print the import/export field mapping that
would be used: column names, model attributes, widget types and flags. No
database connection is made.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectSchemaPath, "schema", "s", "", "model schema file (required)")
	inspectCmd.MarkFlagRequired("schema")
}

func runInspect(cmd *cobra.Command, args []string) error {
	model, err := schema.LoadFile(inspectSchemaPath)
	if err != nil {
		return err
	}

	opts := resource.DefaultOptions()
	if pk, err := model.PrimaryKey(); err == nil {
		opts.ImportIDFields = []string{pk.Name}
	}
	res, err := resource.NewResource(model, nil, opts)
	if err != nil {
		return err
	}

	heading := color.New(color.FgCyan, color.Bold)
	heading.Printf("%s", model.Name)
	fmt.Printf(" (table %s)\n", model.TableName)
	if model.HasNaturalKey() {
		fmt.Printf("natural key: %s\n", strings.Join(model.NaturalKey, ", "))
	}
	fmt.Println()

	fmt.Printf("%-20s %-20s %-28s %s\n", "COLUMN", "ATTRIBUTE", "WIDGET", "FLAGS")
	fmt.Println(strings.Repeat("-", 78))
	for _, f := range res.Fields() {
		var flags []string
		if f.ReadOnly {
			flags = append(flags, "readonly")
		}
		if f.Default != nil {
			flags = append(flags, fmt.Sprintf("default=%v", f.Default))
		}
		if !f.SavesNullValues {
			flags = append(flags, "skips-null")
		}
		fmt.Printf("%-20s %-20s %-28s %s\n",
			f.ColumnName, f.Attribute, widgetName(f), strings.Join(flags, " "))
	}

	if len(model.Relationships) > 0 {
		fmt.Println()
		heading.Println("Relationships")
		for _, name := range sortedRelationships(model) {
			rel := model.Relationships[name]
			switch rel.Type {
			case schema.RelationBelongsTo:
				fmt.Printf("  %s: belongs_to %s via %s\n", name, rel.Target, rel.ForeignKey)
			case schema.RelationManyToMany:
				fmt.Printf("  %s: many_to_many %s via %s\n", name, rel.Target, rel.JoinTable)
			}
		}
	}
	return nil
}

// widgetName renders a widget's type without the package path noise
func widgetName(f *resource.Field) string {
	if f.Widget == nil {
		return "(none)"
	}
	name := fmt.Sprintf("%T", f.Widget)
	return strings.TrimPrefix(name, "*widget.")
}

func sortedRelationships(m *schema.ModelSchema) []string {
	names := make([]string, 0, len(m.Relationships))
	for name := range m.Relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
