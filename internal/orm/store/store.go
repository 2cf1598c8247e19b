// Package store is the persistence layer the import/export pipeline runs
// against. A Store exposes a queryable record collection for one model:
// filtered lookups, bulk writes, ordered chunked iteration, and join-table
// maintenance for many-to-many relationships. Records are plain maps keyed
// by field name.
package store

import (
	"context"
	"database/sql"

	"github.com/porter-data/porter/internal/orm/schema"
)

// Record is one persisted row, keyed by field name
type Record map[string]interface{}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IterateOptions controls ordered, chunked iteration over a store
type IterateOptions struct {
	// Conditions filters the iteration; nil means all records
	Conditions map[string]interface{}

	// OrderBy names the ordering column. Stable pagination requires a
	// stable sort, so an empty OrderBy is replaced with the primary key.
	OrderBy string

	// ChunkSize bounds how many records are fetched per query
	ChunkSize int
}

// Iterator yields records one at a time. Next returns io.EOF when the
// iteration is exhausted.
type Iterator interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}

// Store provides persistence for one model
type Store interface {
	// Schema returns the model schema this store persists
	Schema() *schema.ModelSchema

	// Find returns the single record matching all conditions, or ErrNotFound
	Find(ctx context.Context, conditions map[string]interface{}) (Record, error)

	// FindAll returns every record matching the conditions
	FindAll(ctx context.Context, conditions map[string]interface{}) ([]Record, error)

	// FindIn returns every record whose field value is in values, using one query
	FindIn(ctx context.Context, field string, values []interface{}) ([]Record, error)

	// Count returns the number of records matching the conditions
	Count(ctx context.Context, conditions map[string]interface{}) (int, error)

	// Insert persists a new record and returns it with generated fields set
	Insert(ctx context.Context, rec Record) (Record, error)

	// Update rewrites an existing record, matched by primary key
	Update(ctx context.Context, rec Record) error

	// Delete removes the record with the given primary key value
	Delete(ctx context.Context, id interface{}) error

	// BulkInsert persists records with a single multi-value statement
	BulkInsert(ctx context.Context, recs []Record) (int, error)

	// BulkUpdate rewrites the given records within one call
	BulkUpdate(ctx context.Context, recs []Record) error

	// BulkDelete removes all records whose primary key is in ids
	BulkDelete(ctx context.Context, ids []interface{}) error

	// Iterate returns an ordered, chunked iterator over matching records
	Iterate(ctx context.Context, opts IterateOptions) (Iterator, error)

	// GetRelated returns the related ids for a many-to-many relationship
	GetRelated(ctx context.Context, relName string, id interface{}) ([]interface{}, error)

	// SetRelated replaces the related id set for a many-to-many relationship
	SetRelated(ctx context.Context, relName string, id interface{}, targets []interface{}) error

	// AddRelated unions targets into the related id set
	AddRelated(ctx context.Context, relName string, id interface{}, targets []interface{}) error

	// SupportsTransactions reports whether the backend can wrap imports
	// in a transaction with rollback
	SupportsTransactions() bool

	// WithTx returns a view of this store that issues all statements on tx
	WithTx(tx *sql.Tx) Store
}
