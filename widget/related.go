package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/porter-data/porter/internal/orm/store"
	"github.com/porter-data/porter/tabular"
)

// ForeignKeyWidget resolves a single related record reference. By default
// the cell holds the related primary key; LookupField switches resolution
// to any unique field, and UseNaturalKey to the target's composite natural
// key, serialized as a JSON list.
type ForeignKeyWidget struct {
	Store         store.Store
	LookupField   string
	UseNaturalKey bool
}

// NewForeignKeyWidget creates a widget resolving by primary key
func NewForeignKeyWidget(s store.Store) *ForeignKeyWidget {
	return &ForeignKeyWidget{Store: s}
}

// Clean resolves the cell to the related record's primary key value.
// A reference that matches no record is a conversion error.
func (w *ForeignKeyWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	if isBlank(value) {
		return nil, nil
	}

	model := w.Store.Schema()
	pk, err := model.PrimaryKey()
	if err != nil {
		return nil, err
	}

	conditions := make(map[string]interface{})
	if w.UseNaturalKey && model.HasNaturalKey() {
		parts, err := naturalKeyParts(value)
		if err != nil {
			return nil, err
		}
		if len(parts) != len(model.NaturalKey) {
			return nil, NewValueError(value, "natural key needs %d values", len(model.NaturalKey))
		}
		for i, name := range model.NaturalKey {
			coerced, err := CoerceToField(model.Fields[name], parts[i])
			if err != nil {
				return nil, err
			}
			conditions[name] = coerced
		}
	} else {
		lookup := w.LookupField
		if lookup == "" {
			lookup = pk.Name
		}
		field, ok := model.Fields[lookup]
		if !ok {
			return nil, fmt.Errorf("model %s has no field %s", model.Name, lookup)
		}
		coerced, err := CoerceToField(field, value)
		if err != nil {
			return nil, err
		}
		conditions[lookup] = coerced
	}

	rec, err := w.Store.Find(ctx, conditions)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, NewValueError(value, "%s matching the reference does not exist", model.Name)
		}
		return nil, err
	}
	return rec[pk.Name], nil
}

// Render formats the stored primary key back into the configured reference
// style: the natural key as a JSON list, the lookup field's value, or the
// key itself.
func (w *ForeignKeyWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	if value == nil {
		return "", nil
	}

	model := w.Store.Schema()
	pk, err := model.PrimaryKey()
	if err != nil {
		return nil, err
	}

	if w.UseNaturalKey && model.HasNaturalKey() {
		rec, err := w.Store.Find(ctx, map[string]interface{}{pk.Name: value})
		if err != nil {
			return nil, err
		}
		parts := make([]interface{}, len(model.NaturalKey))
		for i, name := range model.NaturalKey {
			parts[i] = rec[name]
		}
		data, err := json.Marshal(parts)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}

	if w.LookupField != "" && w.LookupField != pk.Name {
		rec, err := w.Store.Find(ctx, map[string]interface{}{pk.Name: value})
		if err != nil {
			return nil, err
		}
		return rec[w.LookupField], nil
	}
	return value, nil
}

// naturalKeyParts decodes a natural-key cell: a JSON list string, or a list
// already decoded by a structured format adapter.
func naturalKeyParts(value interface{}) ([]interface{}, error) {
	if parts, ok := value.([]interface{}); ok {
		return parts, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, NewValueError(value, "natural key must be a JSON list")
	}
	var parts []interface{}
	if err := json.Unmarshal([]byte(s), &parts); err != nil {
		return nil, NewValueError(value, "natural key must be a JSON list")
	}
	return parts, nil
}

// ManyToManyWidget resolves a separator-delimited list of related record
// references into a list of related primary keys. References that match no
// record are dropped, mirroring a filtered lookup.
type ManyToManyWidget struct {
	Store       store.Store
	Separator   string
	LookupField string
}

// NewManyToManyWidget creates a widget resolving comma-separated primary keys
func NewManyToManyWidget(s store.Store) *ManyToManyWidget {
	return &ManyToManyWidget{Store: s, Separator: ","}
}

// Clean resolves the cell into the referenced records' primary keys, in the
// order the references appear. Blank cells become an empty list.
func (w *ManyToManyWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	if isBlank(value) {
		return []interface{}{}, nil
	}

	model := w.Store.Schema()
	pk, err := model.PrimaryKey()
	if err != nil {
		return nil, err
	}
	lookup := w.LookupField
	if lookup == "" {
		lookup = pk.Name
	}
	field, ok := model.Fields[lookup]
	if !ok {
		return nil, fmt.Errorf("model %s has no field %s", model.Name, lookup)
	}

	var refs []interface{}
	for _, part := range strings.Split(asString(value), w.Separator) {
		coerced, err := CoerceToField(field, strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		refs = append(refs, coerced)
	}

	recs, err := w.Store.FindIn(ctx, lookup, refs)
	if err != nil {
		return nil, err
	}
	byRef := make(map[string]interface{}, len(recs))
	for _, rec := range recs {
		byRef[fmt.Sprint(rec[lookup])] = rec[pk.Name]
	}

	var ids []interface{}
	for _, ref := range refs {
		if id, found := byRef[fmt.Sprint(ref)]; found {
			ids = append(ids, id)
		}
	}
	if ids == nil {
		ids = []interface{}{}
	}
	return ids, nil
}

// Render formats a list of related primary keys back into a delimited list
// of references in the configured lookup style.
func (w *ManyToManyWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	if value == nil {
		return "", nil
	}
	ids, ok := value.([]interface{})
	if !ok {
		return nil, NewValueError(value, "value is not a reference list")
	}
	if len(ids) == 0 {
		return "", nil
	}

	model := w.Store.Schema()
	pk, err := model.PrimaryKey()
	if err != nil {
		return nil, err
	}
	lookup := w.LookupField
	if lookup == "" {
		lookup = pk.Name
	}

	recs, err := w.Store.FindIn(ctx, pk.Name, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]interface{}, len(recs))
	for _, rec := range recs {
		byID[fmt.Sprint(rec[pk.Name])] = rec[lookup]
	}

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if ref, found := byID[fmt.Sprint(id)]; found {
			parts = append(parts, asString(ref))
		}
	}
	return strings.Join(parts, w.Separator), nil
}
