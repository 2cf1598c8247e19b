package resource

import (
	"context"
	"errors"
	"io"

	"github.com/porter-data/porter/internal/orm/store"
	"github.com/porter-data/porter/tabular"
)

// ExportParams are the per-call export controls
type ExportParams struct {
	// Conditions filters the store iteration when no explicit source is given
	Conditions map[string]interface{}
}

// Export renders records into a dataset, one row per record in export field
// order. A nil source exports the whole store (or the GetQueryset hook's
// records), iterated in primary-key order with bounded chunks.
func (r *Resource) Export(ctx context.Context, source []store.Record, params ExportParams) (*tabular.Dataset, error) {
	if h := r.Hooks.BeforeExport; h != nil {
		if err := h(ctx); err != nil {
			return nil, err
		}
	}

	fields := r.exportFields()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.ColumnName
	}
	dataset := tabular.NewDataset(headers...)

	appendRecord := func(rec store.Record) error {
		if filter := r.Hooks.FilterExport; filter != nil && !filter(rec) {
			return nil
		}
		row := make([]interface{}, len(fields))
		for i, f := range fields {
			value, err := r.exportField(ctx, f, rec)
			if err != nil {
				return err
			}
			row[i] = value
		}
		return dataset.Append(row)
	}

	if source == nil && r.Hooks.GetQueryset != nil {
		var err error
		source, err = r.Hooks.GetQueryset(ctx)
		if err != nil {
			return nil, err
		}
	}

	if source != nil {
		for _, rec := range source {
			if err := appendRecord(rec); err != nil {
				return nil, err
			}
		}
	} else {
		it, err := r.store.Iterate(ctx, store.IterateOptions{
			Conditions: params.Conditions,
			OrderBy:    r.pkName(),
			ChunkSize:  r.opts.ChunkSize,
		})
		if err != nil {
			return nil, err
		}
		defer it.Close()

		for {
			rec, err := it.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
			if err := appendRecord(rec); err != nil {
				return nil, err
			}
		}
	}

	if h := r.Hooks.AfterExport; h != nil {
		if err := h(ctx, dataset); err != nil {
			return nil, err
		}
	}
	return dataset, nil
}

// exportField renders one field of one record, honoring a registered
// dehydrate override
func (r *Resource) exportField(ctx context.Context, f *Field, rec store.Record) (interface{}, error) {
	name := f.DehydrateName
	if name == "" {
		name = f.ColumnName
	}
	if fn, ok := r.Hooks.Dehydrate[name]; ok {
		return fn(rec)
	}
	return f.Export(ctx, rec)
}
