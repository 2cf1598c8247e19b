package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/porter-data/porter/internal/orm/store"
	"github.com/porter-data/porter/tabular"
	"github.com/porter-data/porter/widget"
)

// InstanceLoader locates the existing record an inbound row refers to.
// A row with no match yields (nil, nil), not an error.
type InstanceLoader interface {
	GetInstance(ctx context.Context, row tabular.Row) (store.Record, error)
}

// ModelInstanceLoader queries the store once per row, filtering on the
// configured import-id fields.
type ModelInstanceLoader struct {
	store    store.Store
	idFields []*Field
}

// NewModelInstanceLoader creates a per-row loader
func NewModelInstanceLoader(st store.Store, idFields []*Field) *ModelInstanceLoader {
	return &ModelInstanceLoader{store: st, idFields: idFields}
}

// GetInstance looks the row's record up by its identifying column values
func (l *ModelInstanceLoader) GetInstance(ctx context.Context, row tabular.Row) (store.Record, error) {
	conditions := make(map[string]interface{}, len(l.idFields))
	for _, f := range l.idFields {
		value, err := f.Clean(ctx, row)
		if err != nil {
			return nil, err
		}
		conditions[f.Attribute] = value
	}

	rec, err := l.store.Find(ctx, conditions)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// CachedInstanceLoader preloads every candidate record for a dataset with a
// single bulk query, then serves lookups from memory. It requires exactly
// one import-id field. When the identifying column is absent from the
// dataset the cache stays empty and every lookup returns nil.
type CachedInstanceLoader struct {
	idField *Field
	cache   map[string]store.Record
}

// NewCachedInstanceLoader preloads the cache from the dataset's identifying
// column values
func NewCachedInstanceLoader(ctx context.Context, st store.Store, dataset *tabular.Dataset, idFields []*Field) (*CachedInstanceLoader, error) {
	if len(idFields) != 1 {
		return nil, fmt.Errorf("cached instance loader requires exactly one import id field, got %d", len(idFields))
	}

	l := &CachedInstanceLoader{
		idField: idFields[0],
		cache:   make(map[string]store.Record),
	}
	if !dataset.HasColumn(l.idField.ColumnName) {
		return l, nil
	}

	values := make([]interface{}, 0, dataset.Len())
	for i := 0; i < dataset.Len(); i++ {
		value, err := l.idField.Clean(ctx, dataset.Row(i))
		if err != nil {
			// unparseable cells cannot match a stored record; the row
			// reports its own conversion error later
			var verr *widget.ValueError
			if errors.As(err, &verr) {
				continue
			}
			return nil, err
		}
		if value != nil {
			values = append(values, value)
		}
	}
	if len(values) == 0 {
		return l, nil
	}

	recs, err := st.FindIn(ctx, l.idField.Attribute, values)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		l.cache[fmt.Sprint(rec[l.idField.Attribute])] = rec
	}
	return l, nil
}

// GetInstance serves the lookup from the preloaded cache
func (l *CachedInstanceLoader) GetInstance(ctx context.Context, row tabular.Row) (store.Record, error) {
	if !row.Has(l.idField.ColumnName) {
		return nil, nil
	}
	value, err := l.idField.Clean(ctx, row)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	if rec, ok := l.cache[fmt.Sprint(value)]; ok {
		return rec.Clone(), nil
	}
	return nil, nil
}
