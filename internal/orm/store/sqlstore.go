package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/porter-data/porter/internal/orm/schema"
)

// Dialect selects placeholder style and bulk-binding strategy
type Dialect int

const (
	// DialectPostgres uses $n placeholders, array binding, and RETURNING
	DialectPostgres Dialect = iota
	// DialectSQLite uses ? placeholders and last-insert-id
	DialectSQLite
)

// placeholder returns the n-th (1-based) statement placeholder
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// supportsReturning reports whether INSERT ... RETURNING is available
func (d Dialect) supportsReturning() bool {
	return d == DialectPostgres
}

// queryRunner abstracts *sql.DB and *sql.Tx
type queryRunner interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLStore is the database/sql-backed Store implementation
type SQLStore struct {
	db      *sql.DB
	runner  queryRunner
	model   *schema.ModelSchema
	dialect Dialect
}

// NewSQLStore creates a store for one model over the given connection
func NewSQLStore(db *sql.DB, model *schema.ModelSchema, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		runner:  db,
		model:   model,
		dialect: dialect,
	}
}

// Schema returns the model schema this store persists
func (s *SQLStore) Schema() *schema.ModelSchema {
	return s.model
}

// SupportsTransactions reports transaction support; always true for SQL backends
func (s *SQLStore) SupportsTransactions() bool {
	return true
}

// WithTx returns a view of this store that issues all statements on tx
func (s *SQLStore) WithTx(tx *sql.Tx) Store {
	return &SQLStore{
		db:      s.db,
		runner:  tx,
		model:   s.model,
		dialect: s.dialect,
	}
}

// DB returns the underlying database connection
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// columns returns the selectable column list in schema declaration order
func (s *SQLStore) columns() []string {
	return s.model.FieldNames()
}

// buildWhere renders conditions as "a = $1 AND b = $2" with deterministic
// column order. startAt is the first placeholder index.
func (s *SQLStore) buildWhere(conditions map[string]interface{}, startAt int) (string, []interface{}, error) {
	if len(conditions) == 0 {
		return "", nil, nil
	}

	fields := make([]string, 0, len(conditions))
	for field := range conditions {
		if !s.model.HasField(field) {
			return "", nil, fmt.Errorf("model %s: %w: %s", s.model.Name, ErrFieldNotColumn, field)
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields))
	for i, field := range fields {
		clauses = append(clauses, fmt.Sprintf("%s = %s", field, s.dialect.placeholder(startAt+i)))
		args = append(args, conditions[field])
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// Find returns the single record matching all conditions, or ErrNotFound
func (s *SQLStore) Find(ctx context.Context, conditions map[string]interface{}) (Record, error) {
	where, args, err := s.buildWhere(conditions, 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s LIMIT 1",
		strings.Join(s.columns(), ", "), s.model.TableName, where)

	row := s.runner.QueryRowContext(ctx, query, args...)
	rec, err := scanRecord(row, s.model)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return rec, nil
}

// FindAll returns every record matching the conditions
func (s *SQLStore) FindAll(ctx context.Context, conditions map[string]interface{}) ([]Record, error) {
	where, args, err := s.buildWhere(conditions, 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s",
		strings.Join(s.columns(), ", "), s.model.TableName, where)

	rows, err := s.runner.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	return scanRecords(rows, s.model)
}

// FindIn returns every record whose field value is in values, in one query
func (s *SQLStore) FindIn(ctx context.Context, field string, values []interface{}) ([]Record, error) {
	if !s.model.HasField(field) {
		return nil, fmt.Errorf("model %s: %w: %s", s.model.Name, ErrFieldNotColumn, field)
	}
	if len(values) == 0 {
		return nil, nil
	}

	var query string
	var args []interface{}
	cols := strings.Join(s.columns(), ", ")

	if s.dialect == DialectPostgres {
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)", cols, s.model.TableName, field)
		args = []interface{}{pq.Array(values)}
	} else {
		placeholders := make([]string, len(values))
		for i := range values {
			placeholders[i] = "?"
		}
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
			cols, s.model.TableName, field, strings.Join(placeholders, ", "))
		args = values
	}

	rows, err := s.runner.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	return scanRecords(rows, s.model)
}

// Count returns the number of records matching the conditions
func (s *SQLStore) Count(ctx context.Context, conditions map[string]interface{}) (int, error) {
	where, args, err := s.buildWhere(conditions, 1)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.model.TableName, where)

	var count int
	if err := s.runner.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, ConvertDBError(err)
	}
	return count, nil
}

// populateAutoFields fills generated fields that are absent from the record
func (s *SQLStore) populateAutoFields(rec Record) {
	for _, name := range s.model.FieldNames() {
		field := s.model.Fields[name]
		if !field.IsAuto() {
			continue
		}
		if v, ok := rec[name]; ok && v != nil {
			continue
		}
		if field.Type.BaseType == schema.TypeUUID {
			rec[name] = uuid.New().String()
		}
		// Integer auto keys are left to the database sequence.
	}
}

// insertColumns returns the schema fields present in rec, in declaration order
func (s *SQLStore) insertColumns(rec Record) []string {
	var cols []string
	for _, name := range s.model.FieldNames() {
		if _, ok := rec[name]; ok {
			cols = append(cols, name)
		}
	}
	return cols
}

// Insert persists a new record and returns it with generated fields set
func (s *SQLStore) Insert(ctx context.Context, rec Record) (Record, error) {
	rec = rec.Clone()
	s.populateAutoFields(rec)

	cols := s.insertColumns(rec)
	if len(cols) == 0 {
		return nil, fmt.Errorf("model %s: no fields to insert", s.model.Name)
	}

	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		placeholders[i] = s.dialect.placeholder(i + 1)
		args[i] = rec[col]
	}

	if s.dialect.supportsReturning() {
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			s.model.TableName,
			strings.Join(cols, ", "),
			strings.Join(placeholders, ", "),
			strings.Join(s.columns(), ", "))

		row := s.runner.QueryRowContext(ctx, query, args...)
		inserted, err := scanRecord(row, s.model)
		if err != nil {
			return nil, ConvertDBError(err)
		}
		return inserted, nil
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.model.TableName,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "))

	result, err := s.runner.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}

	pk, err := s.model.PrimaryKey()
	if err == nil {
		if _, ok := rec[pk.Name]; !ok && pk.IsAuto() {
			if id, idErr := result.LastInsertId(); idErr == nil {
				rec[pk.Name] = id
			}
		}
	}
	return rec, nil
}

// Update rewrites an existing record, matched by primary key
func (s *SQLStore) Update(ctx context.Context, rec Record) error {
	pk, err := s.model.PrimaryKey()
	if err != nil {
		return err
	}
	id, ok := rec[pk.Name]
	if !ok || id == nil {
		return fmt.Errorf("model %s: %w", s.model.Name, ErrMissingPrimaryKey)
	}

	var sets []string
	var args []interface{}
	counter := 1
	for _, name := range s.model.FieldNames() {
		if name == pk.Name {
			continue
		}
		if v, present := rec[name]; present {
			sets = append(sets, fmt.Sprintf("%s = %s", name, s.dialect.placeholder(counter)))
			args = append(args, v)
			counter++
		}
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		s.model.TableName,
		strings.Join(sets, ", "),
		pk.Name,
		s.dialect.placeholder(counter))
	args = append(args, id)

	result, err := s.runner.ExecContext(ctx, query, args...)
	if err != nil {
		return ConvertDBError(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record with the given primary key value
func (s *SQLStore) Delete(ctx context.Context, id interface{}) error {
	pk, err := s.model.PrimaryKey()
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		s.model.TableName, pk.Name, s.dialect.placeholder(1))

	result, err := s.runner.ExecContext(ctx, query, id)
	if err != nil {
		return ConvertDBError(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkInsert persists records with a single multi-value statement.
// All records must share the structure of the first one.
func (s *SQLStore) BulkInsert(ctx context.Context, recs []Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	prepared := make([]Record, len(recs))
	for i, rec := range recs {
		prepared[i] = rec.Clone()
		s.populateAutoFields(prepared[i])
	}

	cols := s.insertColumns(prepared[0])
	if len(cols) == 0 {
		return 0, fmt.Errorf("model %s: no fields to insert", s.model.Name)
	}

	var valueGroups []string
	var args []interface{}
	counter := 1
	for _, rec := range prepared {
		group := make([]string, len(cols))
		for i, col := range cols {
			group[i] = s.dialect.placeholder(counter)
			args = append(args, rec[col])
			counter++
		}
		valueGroups = append(valueGroups, "("+strings.Join(group, ", ")+")")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		s.model.TableName,
		strings.Join(cols, ", "),
		strings.Join(valueGroups, ", "))

	result, err := s.runner.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, ConvertDBError(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// BulkUpdate rewrites the given records within one call. Statements are
// issued per record on the shared runner, so under a transaction the batch
// remains atomic.
func (s *SQLStore) BulkUpdate(ctx context.Context, recs []Record) error {
	for _, rec := range recs {
		if err := s.Update(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// BulkDelete removes all records whose primary key is in ids
func (s *SQLStore) BulkDelete(ctx context.Context, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	pk, err := s.model.PrimaryKey()
	if err != nil {
		return err
	}

	var query string
	var args []interface{}
	if s.dialect == DialectPostgres {
		query = fmt.Sprintf("DELETE FROM %s WHERE %s = ANY($1)", s.model.TableName, pk.Name)
		args = []interface{}{pq.Array(ids)}
	} else {
		placeholders := make([]string, len(ids))
		for i := range ids {
			placeholders[i] = "?"
		}
		query = fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
			s.model.TableName, pk.Name, strings.Join(placeholders, ", "))
		args = ids
	}

	if _, err := s.runner.ExecContext(ctx, query, args...); err != nil {
		return ConvertDBError(err)
	}
	return nil
}

// sqlIterator pages through a store with LIMIT/OFFSET chunks
type sqlIterator struct {
	store  *SQLStore
	opts   IterateOptions
	offset int
	buf    []Record
	pos    int
	done   bool
	closed bool
}

// Iterate returns an ordered, chunked iterator over matching records
func (s *SQLStore) Iterate(ctx context.Context, opts IterateOptions) (Iterator, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 100
	}
	if opts.OrderBy == "" {
		pk, err := s.model.PrimaryKey()
		if err != nil {
			return nil, err
		}
		opts.OrderBy = pk.Name
	}
	if !s.model.HasField(opts.OrderBy) {
		return nil, fmt.Errorf("model %s: %w: %s", s.model.Name, ErrFieldNotColumn, opts.OrderBy)
	}
	return &sqlIterator{store: s, opts: opts}, nil
}

// Next returns the next record, or io.EOF when exhausted
func (it *sqlIterator) Next(ctx context.Context) (Record, error) {
	if it.closed {
		return nil, io.EOF
	}
	if it.pos >= len(it.buf) {
		if it.done {
			return nil, io.EOF
		}
		if err := it.fetch(ctx); err != nil {
			return nil, err
		}
		if len(it.buf) == 0 {
			return nil, io.EOF
		}
	}
	rec := it.buf[it.pos]
	it.pos++
	return rec, nil
}

// fetch loads the next chunk
func (it *sqlIterator) fetch(ctx context.Context) error {
	s := it.store
	where, args, err := s.buildWhere(it.opts.Conditions, 1)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT %d OFFSET %d",
		strings.Join(s.columns(), ", "),
		s.model.TableName,
		where,
		it.opts.OrderBy,
		it.opts.ChunkSize,
		it.offset)

	rows, err := s.runner.QueryContext(ctx, query, args...)
	if err != nil {
		return ConvertDBError(err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows, s.model)
	if err != nil {
		return err
	}

	it.buf = recs
	it.pos = 0
	it.offset += len(recs)
	if len(recs) < it.opts.ChunkSize {
		it.done = true
	}
	return nil
}

// Close releases the iterator
func (it *sqlIterator) Close() error {
	it.closed = true
	it.buf = nil
	return nil
}

// relationship resolves a many-to-many relationship by accessor name
func (s *SQLStore) relationship(relName string) (*schema.Relationship, error) {
	rel, ok := s.model.Relationships[relName]
	if !ok || rel.Type != schema.RelationManyToMany {
		return nil, fmt.Errorf("model %s: %w: %s", s.model.Name, ErrUnknownRelationship, relName)
	}
	return rel, nil
}

// GetRelated returns the related ids for a many-to-many relationship, sorted
// by the join table's target column for stable comparison.
func (s *SQLStore) GetRelated(ctx context.Context, relName string, id interface{}) ([]interface{}, error) {
	rel, err := s.relationship(relName)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s",
		rel.TargetKey, rel.JoinTable, rel.SourceKey, s.dialect.placeholder(1), rel.TargetKey)

	rows, err := s.runner.QueryContext(ctx, query, id)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var out []interface{}
	for rows.Next() {
		var v interface{}
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, normalizeScanned(v))
	}
	return out, rows.Err()
}

// SetRelated replaces the related id set for a many-to-many relationship
func (s *SQLStore) SetRelated(ctx context.Context, relName string, id interface{}, targets []interface{}) error {
	rel, err := s.relationship(relName)
	if err != nil {
		return err
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		rel.JoinTable, rel.SourceKey, s.dialect.placeholder(1))
	if _, err := s.runner.ExecContext(ctx, del, id); err != nil {
		return ConvertDBError(err)
	}

	return s.insertRelated(ctx, rel, id, targets)
}

// AddRelated unions targets into the related id set
func (s *SQLStore) AddRelated(ctx context.Context, relName string, id interface{}, targets []interface{}) error {
	rel, err := s.relationship(relName)
	if err != nil {
		return err
	}

	existing, err := s.GetRelated(ctx, relName, id)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[fmt.Sprint(v)] = true
	}

	var missing []interface{}
	for _, t := range targets {
		if !seen[fmt.Sprint(t)] {
			missing = append(missing, t)
			seen[fmt.Sprint(t)] = true
		}
	}
	return s.insertRelated(ctx, rel, id, missing)
}

// insertRelated inserts join rows for each target id
func (s *SQLStore) insertRelated(ctx context.Context, rel *schema.Relationship, id interface{}, targets []interface{}) error {
	if len(targets) == 0 {
		return nil
	}

	query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		rel.JoinTable, rel.SourceKey, rel.TargetKey,
		s.dialect.placeholder(1), s.dialect.placeholder(2))

	for _, t := range targets {
		if _, err := s.runner.ExecContext(ctx, query, id, t); err != nil {
			return ConvertDBError(err)
		}
	}
	return nil
}
