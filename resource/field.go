package resource

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/porter-data/porter/internal/orm/store"
	"github.com/porter-data/porter/tabular"
	"github.com/porter-data/porter/widget"
)

// AttributeSeparator splits attribute paths that traverse relationships
const AttributeSeparator = "."

// Field maps one dataset column to one record attribute path. Fields are
// built once at resource construction; each Resource instance works on its
// own copy so dynamic per-import mutation never leaks across instances.
type Field struct {
	// Attribute is the traversal path into the record, segments joined
	// with AttributeSeparator for relationship hops
	Attribute string

	// ColumnName is the dataset header this field reads and writes
	ColumnName string

	// Widget converts between the raw cell and the typed value
	Widget widget.Widget

	// Default substitutes for blank inbound cells
	Default interface{}

	// ReadOnly fields export but never save
	ReadOnly bool

	// SavesNullValues controls whether a cleaned nil is assigned or the
	// attribute is left untouched
	SavesNullValues bool

	// M2MAdd unions cleaned many-to-many references into the existing set
	// instead of replacing it
	M2MAdd bool

	// DehydrateName selects a per-field export override registered on the
	// resource's hooks, resolved by name at export time
	DehydrateName string
}

// clone returns a copy of the field
func (f *Field) clone() *Field {
	c := *f
	return &c
}

// Clean reads and converts the field's cell from the row. A missing column
// is an error naming the available columns. Blank cells take the configured
// default before conversion is attempted.
func (f *Field) Clean(ctx context.Context, row tabular.Row) (interface{}, error) {
	raw, ok := row.Get(f.ColumnName)
	if !ok {
		return nil, fmt.Errorf("column %q not found in dataset, available columns: %s",
			f.ColumnName, strings.Join(row.Headers(), ", "))
	}

	if f.Default != nil && isBlankCell(raw) {
		return f.Default, nil
	}
	if f.Widget == nil {
		return raw, nil
	}
	return f.Widget.Clean(ctx, raw, row)
}

// Save cleans the field's cell and assigns it to the record at the attribute
// path. A missing column or an unresolvable path skips the assignment with a
// log line instead of failing the row; a cleaned nil is skipped when
// SavesNullValues is off.
func (f *Field) Save(ctx context.Context, logger *zap.Logger, rec store.Record, row tabular.Row) error {
	if f.ReadOnly {
		return nil
	}
	if !row.Has(f.ColumnName) {
		logger.Debug("skipping field, column not in row",
			zap.String("column", f.ColumnName))
		return nil
	}

	cleaned, err := f.Clean(ctx, row)
	if err != nil {
		return err
	}
	if cleaned == nil && !f.SavesNullValues {
		return nil
	}

	target, last, ok := traverse(rec, f.Attribute)
	if !ok {
		logger.Debug("skipping field, attribute path not resolvable",
			zap.String("attribute", f.Attribute))
		return nil
	}
	target[last] = cleaned
	return nil
}

// Export resolves the attribute on the record and renders it for a dataset
// cell. Zero-argument callables are invoked, nil renders as an empty string.
func (f *Field) Export(ctx context.Context, rec store.Record) (interface{}, error) {
	value, ok := resolve(rec, f.Attribute)
	if !ok || value == nil {
		return "", nil
	}
	if fn, callable := value.(func() interface{}); callable {
		value = fn()
	}
	if value == nil {
		return "", nil
	}
	if f.Widget == nil {
		return value, nil
	}
	return f.Widget.Render(ctx, value)
}

// traverse walks all but the last segment of the attribute path and returns
// the map the final segment should be assigned into
func traverse(rec store.Record, attribute string) (map[string]interface{}, string, bool) {
	segments := strings.Split(attribute, AttributeSeparator)
	current := map[string]interface{}(rec)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg]
		if !ok {
			return nil, "", false
		}
		switch m := next.(type) {
		case store.Record:
			current = m
		case map[string]interface{}:
			current = m
		default:
			return nil, "", false
		}
	}
	return current, segments[len(segments)-1], true
}

// resolve walks the full attribute path and returns the value at the end
func resolve(rec store.Record, attribute string) (interface{}, bool) {
	segments := strings.Split(attribute, AttributeSeparator)
	var current interface{} = map[string]interface{}(rec)
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			if r, isRec := current.(store.Record); isRec {
				m = r
			} else {
				return nil, false
			}
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// isBlankCell reports whether a raw cell is nil or an empty string
func isBlankCell(value interface{}) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}
