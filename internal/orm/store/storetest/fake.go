// Package storetest provides an in-memory Store for tests: deterministic,
// transaction-free, and instrumented with call counters so tests can assert
// lookup cost (one bulk query vs one query per row).
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/porter-data/porter/internal/orm/schema"
	"github.com/porter-data/porter/internal/orm/store"
)

// Fake is an in-memory Store implementation
type Fake struct {
	Model *schema.ModelSchema

	// SupportsTx controls what SupportsTransactions reports
	SupportsTx bool

	// FailWith, when set, is returned by every operation
	FailWith error

	// Call counters
	FindCalls       int
	FindInCalls     int
	InsertCalls     int
	UpdateCalls     int
	DeleteCalls     int
	BulkInsertCalls int
	BulkUpdateCalls int
	BulkDeleteCalls int

	mu        sync.Mutex
	records   []store.Record
	relations map[string]map[string][]interface{}
	nextID    int64
}

// New creates a Fake store for the given model
func New(model *schema.ModelSchema) *Fake {
	return &Fake{
		Model:      model,
		SupportsTx: false,
		relations:  make(map[string]map[string][]interface{}),
		nextID:     1,
	}
}

// Seed inserts records directly, bypassing counters
func (f *Fake) Seed(recs ...store.Record) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range recs {
		f.records = append(f.records, rec.Clone())
		f.bumpNextID(rec)
	}
	return f
}

// All returns a copy of the stored records in insertion order
func (f *Fake) All() []store.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Record, len(f.records))
	for i, rec := range f.records {
		out[i] = rec.Clone()
	}
	return out
}

// Len returns the number of stored records
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// Relations returns the related ids stored for one relationship and owner
func (f *Fake) Relations(relName string, id interface{}) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.relations[relName][fmt.Sprint(id)]...)
}

// Schema returns the model schema
func (f *Fake) Schema() *schema.ModelSchema {
	return f.Model
}

// SupportsTransactions reports the configured transaction support
func (f *Fake) SupportsTransactions() bool {
	return f.SupportsTx
}

// WithTx returns the store itself; the fake has no transaction state
func (f *Fake) WithTx(tx *sql.Tx) store.Store {
	return f
}

func (f *Fake) pkName() string {
	pk, err := f.Model.PrimaryKey()
	if err != nil {
		return "id"
	}
	return pk.Name
}

func (f *Fake) bumpNextID(rec store.Record) {
	if id, ok := rec[f.pkName()].(int64); ok && id >= f.nextID {
		f.nextID = id + 1
	}
}

func matches(rec store.Record, conditions map[string]interface{}) bool {
	for field, want := range conditions {
		if fmt.Sprint(rec[field]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Find returns the first record matching all conditions, or ErrNotFound
func (f *Fake) Find(ctx context.Context, conditions map[string]interface{}) (store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FindCalls++
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	for _, rec := range f.records {
		if matches(rec, conditions) {
			return rec.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

// FindAll returns every record matching the conditions
func (f *Fake) FindAll(ctx context.Context, conditions map[string]interface{}) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	var out []store.Record
	for _, rec := range f.records {
		if matches(rec, conditions) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// FindIn returns every record whose field value is in values
func (f *Fake) FindIn(ctx context.Context, field string, values []interface{}) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FindInCalls++
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	wanted := make(map[string]bool, len(values))
	for _, v := range values {
		wanted[fmt.Sprint(v)] = true
	}
	var out []store.Record
	for _, rec := range f.records {
		if wanted[fmt.Sprint(rec[field])] {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// Count returns the number of records matching the conditions
func (f *Fake) Count(ctx context.Context, conditions map[string]interface{}) (int, error) {
	recs, err := f.FindAll(ctx, conditions)
	return len(recs), err
}

// Insert stores a new record, populating auto keys
func (f *Fake) Insert(ctx context.Context, rec store.Record) (store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InsertCalls++
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	return f.insertLocked(rec), nil
}

func (f *Fake) insertLocked(rec store.Record) store.Record {
	rec = rec.Clone()
	pkName := f.pkName()
	if v, ok := rec[pkName]; !ok || v == nil {
		if pk, err := f.Model.PrimaryKey(); err == nil && pk.Type.BaseType == schema.TypeUUID {
			rec[pkName] = uuid.New().String()
		} else {
			rec[pkName] = f.nextID
			f.nextID++
		}
	} else {
		f.bumpNextID(rec)
	}
	f.records = append(f.records, rec)
	return rec.Clone()
}

// Update rewrites the record matching by primary key
func (f *Fake) Update(ctx context.Context, rec store.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateCalls++
	if f.FailWith != nil {
		return f.FailWith
	}
	return f.updateLocked(rec)
}

func (f *Fake) updateLocked(rec store.Record) error {
	pkName := f.pkName()
	id, ok := rec[pkName]
	if !ok || id == nil {
		return store.ErrMissingPrimaryKey
	}
	for i, existing := range f.records {
		if fmt.Sprint(existing[pkName]) == fmt.Sprint(id) {
			merged := existing.Clone()
			for k, v := range rec {
				merged[k] = v
			}
			f.records[i] = merged
			return nil
		}
	}
	return store.ErrNotFound
}

// Delete removes the record with the given primary key value
func (f *Fake) Delete(ctx context.Context, id interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteCalls++
	if f.FailWith != nil {
		return f.FailWith
	}
	return f.deleteLocked(id)
}

func (f *Fake) deleteLocked(id interface{}) error {
	pkName := f.pkName()
	for i, rec := range f.records {
		if fmt.Sprint(rec[pkName]) == fmt.Sprint(id) {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// BulkInsert stores all records in one call
func (f *Fake) BulkInsert(ctx context.Context, recs []store.Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BulkInsertCalls++
	if f.FailWith != nil {
		return 0, f.FailWith
	}
	for _, rec := range recs {
		f.insertLocked(rec)
	}
	return len(recs), nil
}

// BulkUpdate rewrites all records in one call
func (f *Fake) BulkUpdate(ctx context.Context, recs []store.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BulkUpdateCalls++
	if f.FailWith != nil {
		return f.FailWith
	}
	for _, rec := range recs {
		if err := f.updateLocked(rec); err != nil {
			return err
		}
	}
	return nil
}

// BulkDelete removes all records whose primary key is in ids
func (f *Fake) BulkDelete(ctx context.Context, ids []interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BulkDeleteCalls++
	if f.FailWith != nil {
		return f.FailWith
	}
	for _, id := range ids {
		if err := f.deleteLocked(id); err != nil {
			return err
		}
	}
	return nil
}

// fakeIterator walks a sorted snapshot of the records
type fakeIterator struct {
	recs []store.Record
	pos  int
}

// Next returns the next record, or io.EOF when exhausted
func (it *fakeIterator) Next(ctx context.Context) (store.Record, error) {
	if it.pos >= len(it.recs) {
		return nil, io.EOF
	}
	rec := it.recs[it.pos]
	it.pos++
	return rec, nil
}

// Close releases the iterator
func (it *fakeIterator) Close() error { return nil }

// Iterate returns an iterator over a snapshot sorted by the order column
func (f *Fake) Iterate(ctx context.Context, opts store.IterateOptions) (store.Iterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return nil, f.FailWith
	}

	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = f.pkName()
	}

	var recs []store.Record
	for _, rec := range f.records {
		if opts.Conditions == nil || matches(rec, opts.Conditions) {
			recs = append(recs, rec.Clone())
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return lessValue(recs[i][orderBy], recs[j][orderBy])
	})
	return &fakeIterator{recs: recs}, nil
}

// lessValue orders two cell values, numerically when both are numeric
func lessValue(a, b interface{}) bool {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		return ai < bi
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

// GetRelated returns the related ids, sorted for stable comparison
func (f *Fake) GetRelated(ctx context.Context, relName string, id interface{}) ([]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	if !f.Model.HasRelationship(relName) {
		return nil, store.ErrUnknownRelationship
	}
	ids := append([]interface{}(nil), f.relations[relName][fmt.Sprint(id)]...)
	sort.Slice(ids, func(i, j int) bool { return lessValue(ids[i], ids[j]) })
	return ids, nil
}

// SetRelated replaces the related id set
func (f *Fake) SetRelated(ctx context.Context, relName string, id interface{}, targets []interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return f.FailWith
	}
	if !f.Model.HasRelationship(relName) {
		return store.ErrUnknownRelationship
	}
	if f.relations[relName] == nil {
		f.relations[relName] = make(map[string][]interface{})
	}
	f.relations[relName][fmt.Sprint(id)] = append([]interface{}(nil), targets...)
	return nil
}

// AddRelated unions targets into the related id set
func (f *Fake) AddRelated(ctx context.Context, relName string, id interface{}, targets []interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return f.FailWith
	}
	if !f.Model.HasRelationship(relName) {
		return store.ErrUnknownRelationship
	}
	if f.relations[relName] == nil {
		f.relations[relName] = make(map[string][]interface{})
	}
	key := fmt.Sprint(id)
	existing := f.relations[relName][key]
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[fmt.Sprint(v)] = true
	}
	for _, t := range targets {
		if !seen[fmt.Sprint(t)] {
			existing = append(existing, t)
			seen[fmt.Sprint(t)] = true
		}
	}
	f.relations[relName][key] = existing
	return nil
}
