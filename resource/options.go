package resource

import (
	"github.com/porter-data/porter/internal/orm/schema"
	"github.com/porter-data/porter/internal/orm/store"
	"github.com/porter-data/porter/widget"
)

// Options configures a Resource. Build one with DefaultOptions, adjust it,
// and hand it to NewResource; the resource keeps its own copy, so options
// are immutable after construction.
type Options struct {
	// ImportIDFields names the fields identifying an existing record for
	// an inbound row
	ImportIDFields []string

	// Fields whitelists field names (or dotted relationship paths) to
	// import/export; empty means every schema field
	Fields []string

	// Exclude removes field names from the resolved set
	Exclude []string

	// ImportOrder and ExportOrder fix the field processing order; fields
	// not named keep declaration order after the named ones
	ImportOrder []string
	ExportOrder []string

	// DeclaredFields are explicit field definitions merged over the
	// schema-generated ones; a declared field replaces the generated field
	// with the same column name
	DeclaredFields []*Field

	// WidgetOverrides replaces the type-chosen widget per field name
	WidgetOverrides map[string]widget.Widget

	// RelatedStores maps target model names to their stores, used to build
	// relationship widgets and resolve dotted field paths
	RelatedStores map[string]store.Store

	// Registry resolves target model schemas for dotted field paths when
	// no related store is registered
	Registry *schema.Registry

	// UseTransactions wraps imports in one outer transaction
	UseTransactions bool

	// SkipUnchanged classifies rows whose values match the stored record
	// as skips without persisting
	SkipUnchanged bool

	// ReportSkipped keeps skipped rows in the result's row list
	ReportSkipped bool

	// SkipDiff disables the before/after snapshot entirely;
	// SkipHTMLDiff keeps the snapshot but skips rendering it
	SkipDiff     bool
	SkipHTMLDiff bool

	// UseBulk buffers creates, updates and deletes and flushes them in
	// batches of BatchSize
	UseBulk   bool
	BatchSize int

	// ForceInitInstance skips instance lookup and always creates
	ForceInitInstance bool

	// StoreInstance keeps the persisted record on each RowResult;
	// StoreRowValues keeps the raw inbound cells
	StoreInstance  bool
	StoreRowValues bool

	// UseNaturalForeignKeys renders and resolves foreign keys through the
	// target model's natural key
	UseNaturalForeignKeys bool

	// ValidateInstance runs model-level validation after field population
	ValidateInstance bool

	// RollbackOnValidationErrors rolls the outer transaction back when any
	// row fails validation
	RollbackOnValidationErrors bool

	// UseCachedLoader preloads all candidate records with one bulk query
	// instead of one lookup per row; requires a single import-id field
	UseCachedLoader bool

	// ChunkSize bounds export pagination
	ChunkSize int
}

// DefaultOptions returns the option set a plain resource starts from
func DefaultOptions() *Options {
	return &Options{
		ImportIDFields:  []string{"id"},
		UseTransactions: true,
		ReportSkipped:   true,
		BatchSize:       1000,
		ChunkSize:       100,
	}
}

// clone returns a copy the resource can keep privately
func (o *Options) clone() *Options {
	c := *o
	c.ImportIDFields = append([]string(nil), o.ImportIDFields...)
	c.Fields = append([]string(nil), o.Fields...)
	c.Exclude = append([]string(nil), o.Exclude...)
	c.ImportOrder = append([]string(nil), o.ImportOrder...)
	c.ExportOrder = append([]string(nil), o.ExportOrder...)
	c.DeclaredFields = append([]*Field(nil), o.DeclaredFields...)
	return &c
}

// normalize fills unset values with defaults
func (o *Options) normalize() {
	if len(o.ImportIDFields) == 0 {
		o.ImportIDFields = []string{"id"}
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 100
	}
}
