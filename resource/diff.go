package resource

import (
	"context"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff is a before/after snapshot of a row's user-visible field values,
// captured as rendered strings before the record is mutated. Comparing after
// mutation yields a per-field highlighted diff for audit previews.
type Diff struct {
	fields []*Field
	left   []string
	right  []string
}

// newDiff snapshots the rendered field values of a record; a nil record
// snapshots as all-empty, which is what a freshly created or deleted record
// compares against.
func newDiff(ctx context.Context, fields []*Field, rec map[string]interface{}) (*Diff, error) {
	d := &Diff{fields: fields}
	var err error
	d.left, err = renderValues(ctx, fields, rec)
	return d, err
}

// CompareWith captures the record's values after mutation
func (d *Diff) CompareWith(ctx context.Context, rec map[string]interface{}) error {
	var err error
	d.right, err = renderValues(ctx, d.fields, rec)
	return err
}

// AsHTML renders each field's before/after pair as an HTML-highlighted text
// diff, in field order
func (d *Diff) AsHTML() []string {
	dmp := diffmatchpatch.New()
	out := make([]string, len(d.fields))
	for i := range d.fields {
		diffs := dmp.DiffMain(d.left[i], d.right[i], false)
		out[i] = dmp.DiffPrettyHtml(diffs)
	}
	return out
}

// HasChanges reports whether any field's rendered value differs
func (d *Diff) HasChanges() bool {
	for i := range d.left {
		if d.left[i] != d.right[i] {
			return true
		}
	}
	return false
}

// renderValues exports every field of the record as a display string
func renderValues(ctx context.Context, fields []*Field, rec map[string]interface{}) ([]string, error) {
	values := make([]string, len(fields))
	if rec == nil {
		return values, nil
	}
	for i, f := range fields {
		v, err := f.Export(ctx, rec)
		if err != nil {
			return nil, err
		}
		if v == nil {
			values[i] = ""
		} else {
			values[i] = fmt.Sprint(v)
		}
	}
	return values, nil
}
