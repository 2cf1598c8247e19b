// Package resource orchestrates bulk tabular import and export against a
// model store. A Resource binds a field mapping to a model schema and, for
// each inbound dataset row, reconciles it with the persisted record: create,
// update, delete, or skip, with validation, diffing, and transactional,
// bulk, and dry-run control. Results are reported per row and aggregated.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/porter-data/porter/internal/orm/schema"
	"github.com/porter-data/porter/internal/orm/store"
	"github.com/porter-data/porter/internal/orm/transaction"
	"github.com/porter-data/porter/internal/orm/validation"
	"github.com/porter-data/porter/tabular"
	"github.com/porter-data/porter/widget"
)

var (
	// ErrTransactionsNotSupported is returned when a transactional import is
	// requested but the store cannot provide one
	ErrTransactionsNotSupported = errors.New("transactions requested but the store does not support them")

	// ErrInvalidBatchSize is returned when bulk mode is configured with a
	// non-positive batch size
	ErrInvalidBatchSize = errors.New("batch size must be a positive integer")
)

// Hooks are the optional per-import and per-row extension points. Nil
// members are no-ops. Hooks may mutate the row view in place; mutations are
// visible to the remaining pipeline steps.
type Hooks struct {
	BeforeImport func(ctx context.Context, dataset *tabular.Dataset) error
	AfterImport  func(ctx context.Context, result *Result) error

	BeforeImportRow     func(ctx context.Context, row tabular.Row, number int) error
	AfterImportRow      func(ctx context.Context, row tabular.Row, rr *RowResult, number int) error
	AfterImportInstance func(ctx context.Context, instance store.Record, isNew bool, number int) error

	// ForDelete marks a row as a deletion instead of a create/update
	ForDelete func(ctx context.Context, row tabular.Row, instance store.Record) (bool, error)

	// SkipRow replaces the default unchanged-row comparison
	SkipRow func(ctx context.Context, instance, original store.Record, row tabular.Row) (bool, error)

	BeforeExport func(ctx context.Context) error
	AfterExport  func(ctx context.Context, dataset *tabular.Dataset) error

	// FilterExport drops records from an export when it returns false
	FilterExport func(rec store.Record) bool

	// GetQueryset supplies the export source when no explicit one is given
	GetQueryset func(ctx context.Context) ([]store.Record, error)

	// Dehydrate overrides field export by name (see Field.DehydrateName)
	Dehydrate map[string]func(rec store.Record) (interface{}, error)
}

// ImportParams are the per-call import controls
type ImportParams struct {
	// DryRun runs the full reconciliation but guarantees no persisted change
	DryRun bool

	// RaiseErrors aborts the whole import on the first row processing error
	// instead of recording it and continuing
	RaiseErrors bool

	// UseTransactions overrides the configured transaction setting
	UseTransactions *bool

	// CollectFailedRows builds a parallel dataset of failing rows plus
	// their error, for correction and re-submission
	CollectFailedRows bool

	// RollbackOnValidationErrors rolls the transaction back when any row
	// fails validation
	RollbackOnValidationErrors bool
}

// Resource drives import and export for one model
type Resource struct {
	// Hooks holds the optional extension points; set before importing
	Hooks Hooks

	model    *schema.ModelSchema
	store    store.Store
	opts     *Options
	fields   []*Field
	idFields []*Field

	validator *validation.Engine
	txm       *transaction.Manager
	logger    *zap.Logger

	createBuffer []store.Record
	updateBuffer []store.Record
	deleteBuffer []interface{}
}

// NewField creates a field with the default save semantics
func NewField(attribute, columnName string, w widget.Widget) *Field {
	return &Field{
		Attribute:       attribute,
		ColumnName:      columnName,
		Widget:          w,
		SavesNullValues: true,
	}
}

// NewResource resolves the field mapping for a model and returns a resource
// ready to import and export. Configuration problems (unknown fields,
// unresolvable relationship paths, undeclared import-id fields) fail here,
// never during row iteration.
func NewResource(model *schema.ModelSchema, st store.Store, opts *Options) (*Resource, error) {
	if opts == nil {
		opts = DefaultOptions()
	} else {
		opts = opts.clone()
	}
	opts.normalize()

	r := &Resource{
		model:     model,
		store:     st,
		opts:      opts,
		validator: validation.NewEngine(),
		logger:    zap.NewNop(),
	}

	fields, err := r.resolveFields()
	if err != nil {
		return nil, err
	}
	r.fields = fields

	for _, name := range opts.ImportIDFields {
		f := r.fieldByAttribute(name)
		if f == nil {
			return nil, fmt.Errorf("import id field %q is not a declared field", name)
		}
		r.idFields = append(r.idFields, f)
	}
	return r, nil
}

// SetLogger replaces the default no-op logger
func (r *Resource) SetLogger(logger *zap.Logger) {
	r.logger = logger
}

// SetTransactionManager wires the manager used for transactional imports
func (r *Resource) SetTransactionManager(m *transaction.Manager) {
	r.txm = m
}

// Fields returns the resolved field mapping in declaration order
func (r *Resource) Fields() []*Field {
	return r.fields
}

// DiffHeaders names the columns of each row result's diff
func (r *Resource) DiffHeaders() []string {
	fields := r.exportFields()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.ColumnName
	}
	return headers
}

// resolveFields builds the field mapping: schema-generated fields (or the
// configured whitelist, which may contain dotted relationship paths), minus
// exclusions, with declared fields and widget overrides merged on top.
func (r *Resource) resolveFields() ([]*Field, error) {
	names := r.opts.Fields
	explicit := len(names) > 0
	if !explicit {
		names = r.model.FieldNames()
		relNames := make([]string, 0, len(r.model.Relationships))
		for relName := range r.model.Relationships {
			relNames = append(relNames, relName)
		}
		sort.Strings(relNames)
		for _, relName := range relNames {
			rel := r.model.Relationships[relName]
			if rel.Type == schema.RelationManyToMany && r.relatedStore(rel.Target) != nil {
				names = append(names, relName)
			}
		}
	}

	excluded := make(map[string]bool, len(r.opts.Exclude))
	for _, name := range r.opts.Exclude {
		excluded[name] = true
	}

	var fields []*Field
	for _, name := range names {
		if excluded[name] {
			continue
		}
		f, err := r.buildField(name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	for _, declared := range r.opts.DeclaredFields {
		if excluded[declared.ColumnName] {
			continue
		}
		replaced := false
		for i, f := range fields {
			if f.ColumnName == declared.ColumnName {
				fields[i] = declared.clone()
				replaced = true
				break
			}
		}
		if !replaced {
			fields = append(fields, declared.clone())
		}
	}

	for name, w := range r.opts.WidgetOverrides {
		f := fieldByAttribute(fields, name)
		if f == nil {
			return nil, fmt.Errorf("widget override for unknown field %q", name)
		}
		f.Widget = w
	}
	return fields, nil
}

// buildField generates one field for a schema field name, a many-to-many
// relationship name, or a dotted relationship path
func (r *Resource) buildField(name string) (*Field, error) {
	if strings.Contains(name, AttributeSeparator) {
		return r.buildPathField(name)
	}

	if sf, ok := r.model.Fields[name]; ok {
		f := NewField(name, name, widget.ForType(sf.Type))
		if w := r.foreignKeyWidget(name); w != nil {
			f.Widget = w
		}
		return f, nil
	}

	if rel, ok := r.model.Relationships[name]; ok && rel.Type == schema.RelationManyToMany {
		target := r.relatedStore(rel.Target)
		if target == nil {
			return nil, fmt.Errorf("no store registered for relationship %q target %s", name, rel.Target)
		}
		return NewField(name, name, widget.NewManyToManyWidget(target)), nil
	}

	return nil, fmt.Errorf("model %s has no field or relationship %q", r.model.Name, name)
}

// buildPathField resolves a dotted path against the schema's relationships
// into a read-only traversal field
func (r *Resource) buildPathField(path string) (*Field, error) {
	segments := strings.Split(path, AttributeSeparator)
	current := r.model
	for _, seg := range segments[:len(segments)-1] {
		rel, ok := current.Relationships[seg]
		if !ok {
			return nil, fmt.Errorf("field path %q: %q is not a relationship on %s", path, seg, current.Name)
		}
		next, err := r.targetSchema(rel.Target)
		if err != nil {
			return nil, fmt.Errorf("field path %q: %w", path, err)
		}
		current = next
	}

	last := segments[len(segments)-1]
	sf, ok := current.Fields[last]
	if !ok {
		return nil, fmt.Errorf("field path %q: model %s has no field %q", path, current.Name, last)
	}

	f := NewField(path, path, widget.ForType(sf.Type))
	f.ReadOnly = true
	return f, nil
}

// foreignKeyWidget builds a natural-key resolving widget for a belongs-to
// foreign key column, when configured and the target supports it
func (r *Resource) foreignKeyWidget(fieldName string) widget.Widget {
	if !r.opts.UseNaturalForeignKeys {
		return nil
	}
	for _, rel := range r.model.Relationships {
		if rel.Type != schema.RelationBelongsTo || rel.ForeignKey != fieldName {
			continue
		}
		target := r.relatedStore(rel.Target)
		if target == nil || !target.Schema().HasNaturalKey() {
			return nil
		}
		return &widget.ForeignKeyWidget{Store: target, UseNaturalKey: true}
	}
	return nil
}

// relatedStore returns the registered store for a target model, or nil
func (r *Resource) relatedStore(modelName string) store.Store {
	return r.opts.RelatedStores[modelName]
}

// targetSchema resolves a target model schema from the related stores or
// the schema registry
func (r *Resource) targetSchema(modelName string) (*schema.ModelSchema, error) {
	if st := r.relatedStore(modelName); st != nil {
		return st.Schema(), nil
	}
	if r.opts.Registry != nil {
		if m, ok := r.opts.Registry.Get(modelName); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no store or registry entry for model %s", modelName)
}

// fieldByAttribute finds a field by attribute, falling back to column name
func (r *Resource) fieldByAttribute(name string) *Field {
	return fieldByAttribute(r.fields, name)
}

func fieldByAttribute(fields []*Field, name string) *Field {
	for _, f := range fields {
		if f.Attribute == name {
			return f
		}
	}
	for _, f := range fields {
		if f.ColumnName == name {
			return f
		}
	}
	return nil
}

// importFields returns the fields in import processing order
func (r *Resource) importFields() []*Field {
	return orderFields(r.fields, r.opts.ImportOrder)
}

// exportFields returns the fields in export column order
func (r *Resource) exportFields() []*Field {
	return orderFields(r.fields, r.opts.ExportOrder)
}

// orderFields puts the named fields first, in the given order, followed by
// the rest in declaration order
func orderFields(fields []*Field, order []string) []*Field {
	if len(order) == 0 {
		return fields
	}
	out := make([]*Field, 0, len(fields))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if f := fieldByAttribute(fields, name); f != nil && !seen[f.ColumnName] {
			out = append(out, f)
			seen[f.ColumnName] = true
		}
	}
	for _, f := range fields {
		if !seen[f.ColumnName] {
			out = append(out, f)
		}
	}
	return out
}

// isM2M reports whether a field populates a many-to-many relationship
func (r *Resource) isM2M(f *Field) bool {
	rel, ok := r.model.Relationships[f.Attribute]
	return ok && rel.Type == schema.RelationManyToMany
}

// pkName returns the model's primary key field name
func (r *Resource) pkName() string {
	pk, err := r.model.PrimaryKey()
	if err != nil {
		return "id"
	}
	return pk.Name
}

// repr renders a short identifier for a record in row results
func (r *Resource) repr(rec store.Record) string {
	if v, ok := rec[r.pkName()]; ok && v != nil {
		return fmt.Sprintf("%s %v", r.model.Name, v)
	}
	return r.model.Name
}

// ImportData reconciles every dataset row against the store and reports the
// outcome. The result reflects what was attempted even when the transaction
// is rolled back, so dry runs report accurate classifications and diffs.
func (r *Resource) ImportData(ctx context.Context, dataset *tabular.Dataset, params ImportParams) (*Result, error) {
	usingTx := r.opts.UseTransactions
	if params.UseTransactions != nil {
		usingTx = *params.UseTransactions
	}
	if usingTx && (r.txm == nil || !r.store.SupportsTransactions()) {
		return nil, ErrTransactionsNotSupported
	}
	if r.opts.BatchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}
	if !r.opts.ForceInitInstance {
		for _, f := range r.idFields {
			if !dataset.HasColumn(f.ColumnName) {
				return nil, fmt.Errorf("import id field %q has no column %q in the dataset",
					f.Attribute, f.ColumnName)
			}
		}
	}

	result := NewResult()
	result.DiffHeaders = r.DiffHeaders()
	r.createBuffer = nil
	r.updateBuffer = nil
	r.deleteBuffer = nil

	st := r.store
	var tx *transaction.Transaction
	if usingTx {
		var err error
		tx, err = r.txm.Begin(ctx)
		if err != nil {
			return nil, err
		}
		st = r.store.WithTx(tx.Tx())
	}
	// Without a transaction to roll back, a dry run must never touch the
	// store at all.
	persist := !(params.DryRun && !usingTx)

	abort := func(err error) (*Result, error) {
		if tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("rollback failed", zap.Error(rbErr))
			}
		}
		return result, err
	}

	if h := r.Hooks.BeforeImport; h != nil {
		if err := r.inNestedScope(ctx, tx, func() error { return h(ctx, dataset) }); err != nil {
			result.AppendBaseError(err)
			if params.RaiseErrors {
				return abort(err)
			}
		}
	}

	var loader InstanceLoader
	if r.opts.UseCachedLoader {
		var err error
		loader, err = NewCachedInstanceLoader(ctx, st, dataset, r.idFields)
		if err != nil {
			return abort(err)
		}
	} else {
		loader = NewModelInstanceLoader(st, r.idFields)
	}

	for i := 0; i < dataset.Len(); i++ {
		row := dataset.Row(i)
		number := i + 1

		var rr *RowResult
		if tx != nil && !r.opts.UseBulk {
			nested, err := tx.BeginNested(ctx)
			if err != nil {
				return abort(err)
			}
			rr = r.importRow(ctx, st, loader, row, number, persist)
			if rr.ImportType == ImportTypeError {
				if rbErr := nested.Rollback(); rbErr != nil {
					return abort(rbErr)
				}
			} else if err := nested.Commit(); err != nil {
				return abort(err)
			}
		} else {
			rr = r.importRow(ctx, st, loader, row, number, persist)
		}

		result.IncrementTotal(rr.ImportType)
		switch rr.ImportType {
		case ImportTypeInvalid:
			values := append([]interface{}(nil), row.Values()...)
			result.AppendInvalidRow(number, values, rr.ValidationError)
			if params.CollectFailedRows {
				result.AppendFailedRow(dataset.Headers, row.Values(), rr.ValidationError)
			}
		case ImportTypeError:
			if params.CollectFailedRows {
				result.AppendFailedRow(dataset.Headers, row.Values(), rr.Err)
			}
			if params.RaiseErrors {
				return abort(rr.Err)
			}
		}
		if !rr.IsSkip() || r.opts.ReportSkipped {
			result.Append(rr)
		}

		if r.opts.UseBulk {
			if err := r.flushDue(ctx, st, result, params.RaiseErrors); err != nil {
				return abort(err)
			}
		}
	}

	if r.opts.UseBulk {
		if err := r.flushAll(ctx, st, result, params.RaiseErrors); err != nil {
			return abort(err)
		}
	}

	if h := r.Hooks.AfterImport; h != nil {
		if err := r.inNestedScope(ctx, tx, func() error { return h(ctx, result) }); err != nil {
			result.AppendBaseError(err)
			if params.RaiseErrors {
				return abort(err)
			}
		}
	}

	if tx != nil {
		rollbackValidation := params.RollbackOnValidationErrors || r.opts.RollbackOnValidationErrors
		if params.DryRun || result.HasErrors() || (rollbackValidation && result.HasValidationErrors()) {
			if err := tx.Rollback(); err != nil {
				return result, err
			}
		} else if err := tx.Commit(); err != nil {
			return result, err
		}
	}
	return result, nil
}

// inNestedScope runs fn inside a savepoint scope when a transaction is open,
// so a failing hook rolls back its own writes without aborting the import
func (r *Resource) inNestedScope(ctx context.Context, tx *transaction.Transaction, fn func() error) error {
	if tx == nil {
		return fn()
	}
	nested, err := tx.BeginNested(ctx)
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := nested.Rollback(); rbErr != nil {
			r.logger.Error("hook savepoint rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return nested.Commit()
}

// importRow runs the per-row state machine and classifies the outcome.
// A validation failure anywhere classifies the row invalid; any other
// failure classifies it an error with the stack captured.
func (r *Resource) importRow(ctx context.Context, st store.Store, loader InstanceLoader, row tabular.Row, number int, persist bool) *RowResult {
	rr := &RowResult{Number: number}
	if r.opts.StoreRowValues {
		rr.RowValues = append([]interface{}(nil), row.Values()...)
	}

	if err := r.importRowInner(ctx, st, loader, row, rr, persist); err != nil {
		var verr *validation.Errors
		if errors.As(err, &verr) {
			rr.ImportType = ImportTypeInvalid
			rr.ValidationError = verr
		} else {
			rr.ImportType = ImportTypeError
			rr.Err = newRowError(err)
		}
	}
	return rr
}

func (r *Resource) importRowInner(ctx context.Context, st store.Store, loader InstanceLoader, row tabular.Row, rr *RowResult, persist bool) error {
	if h := r.Hooks.BeforeImportRow; h != nil {
		if err := h(ctx, row, rr.Number); err != nil {
			return err
		}
	}

	instance, isNew, err := r.resolveInstance(ctx, loader, row)
	if err != nil {
		return err
	}

	if h := r.Hooks.AfterImportInstance; h != nil {
		if err := h(ctx, instance, isNew, rr.Number); err != nil {
			return err
		}
	}

	if isNew {
		rr.ImportType = ImportTypeNew
	} else {
		rr.ImportType = ImportTypeUpdate
	}

	original := instance.Clone()
	var diff *Diff
	if !r.opts.SkipDiff {
		var before store.Record
		if !isNew {
			before = original
		}
		diff, err = newDiff(ctx, r.exportFields(), before)
		if err != nil {
			return err
		}
	}

	forDelete := false
	if h := r.Hooks.ForDelete; h != nil {
		forDelete, err = h(ctx, row, instance)
		if err != nil {
			return err
		}
	}

	switch {
	case forDelete && isNew:
		// cannot delete what was never persisted
		rr.ImportType = ImportTypeSkip
		if diff != nil {
			if err := diff.CompareWith(ctx, nil); err != nil {
				return err
			}
		}

	case forDelete:
		rr.ImportType = ImportTypeDelete
		rr.ObjectID = instance[r.pkName()]
		rr.ObjectRepr = r.repr(instance)
		if persist {
			if r.opts.UseBulk {
				r.deleteBuffer = append(r.deleteBuffer, instance[r.pkName()])
			} else if err := st.Delete(ctx, instance[r.pkName()]); err != nil {
				return err
			}
		}
		if diff != nil {
			if err := diff.CompareWith(ctx, nil); err != nil {
				return err
			}
		}

	default:
		fieldErrs, m2mValues, err := r.populate(ctx, instance, row)
		if err != nil {
			return err
		}

		skipped := false
		if r.opts.SkipUnchanged && !r.opts.SkipDiff && !fieldErrs.HasErrors() {
			skipped, err = r.shouldSkip(ctx, st, instance, original, isNew, m2mValues, row)
			if err != nil {
				return err
			}
		}

		if skipped {
			rr.ImportType = ImportTypeSkip
			rr.ObjectID = instance[r.pkName()]
			rr.ObjectRepr = r.repr(instance)
		} else {
			if r.opts.ValidateInstance {
				exclude := make(map[string]bool, len(fieldErrs.Fields))
				for name := range fieldErrs.Fields {
					exclude[name] = true
				}
				if verr := r.validator.Validate(r.model, instance, exclude); verr != nil {
					var ve *validation.Errors
					if !errors.As(verr, &ve) {
						return verr
					}
					fieldErrs.Merge(ve)
				}
			}
			if fieldErrs.HasErrors() {
				return fieldErrs
			}

			if err := r.persistRow(ctx, st, instance, isNew, m2mValues, persist); err != nil {
				return err
			}
			rr.ObjectID = instance[r.pkName()]
			rr.ObjectRepr = r.repr(instance)
		}

		if diff != nil {
			if err := diff.CompareWith(ctx, instance); err != nil {
				return err
			}
		}
	}

	if diff != nil && !r.opts.SkipHTMLDiff {
		rr.Diff = diff.AsHTML()
	}
	if r.opts.StoreInstance {
		rr.Instance = instance.Clone()
		rr.OriginalInstance = original
	}

	if h := r.Hooks.AfterImportRow; h != nil {
		if err := h(ctx, row, rr, rr.Number); err != nil {
			return err
		}
	}
	return nil
}

// resolveInstance locates the existing record for a row, or initializes a
// fresh one. Lookup is skipped entirely when any identifying column is
// missing from the row, or when ForceInitInstance is configured.
func (r *Resource) resolveInstance(ctx context.Context, loader InstanceLoader, row tabular.Row) (store.Record, bool, error) {
	if r.opts.ForceInitInstance {
		return store.Record{}, true, nil
	}
	for _, f := range r.idFields {
		if !row.Has(f.ColumnName) {
			return store.Record{}, true, nil
		}
	}

	rec, err := loader.GetInstance(ctx, row)
	if err != nil {
		// an unparseable identifying cell is a field value problem; let
		// population re-encounter it so it aggregates with the row's other
		// field errors
		var verr *widget.ValueError
		if errors.As(err, &verr) {
			return store.Record{}, true, nil
		}
		return nil, false, err
	}
	if rec == nil {
		return store.Record{}, true, nil
	}
	return rec, false, nil
}

// populate assigns every writable field's cleaned value to the instance.
// Many-to-many fields are deferred and returned separately; per-field value
// errors are aggregated rather than failing on the first.
func (r *Resource) populate(ctx context.Context, instance store.Record, row tabular.Row) (*validation.Errors, map[string][]interface{}, error) {
	fieldErrs := validation.NewErrors()
	m2mValues := make(map[string][]interface{})

	for _, f := range r.importFields() {
		if f.ReadOnly {
			continue
		}

		if r.isM2M(f) {
			if !row.Has(f.ColumnName) {
				continue
			}
			cleaned, err := f.Clean(ctx, row)
			if err != nil {
				var verr *widget.ValueError
				if errors.As(err, &verr) {
					fieldErrs.Add(f.Attribute, verr.Error())
					continue
				}
				return nil, nil, err
			}
			ids, _ := cleaned.([]interface{})
			m2mValues[f.Attribute] = ids
			continue
		}

		if err := f.Save(ctx, r.logger, instance, row); err != nil {
			var verr *widget.ValueError
			if errors.As(err, &verr) {
				fieldErrs.Add(f.Attribute, verr.Error())
				continue
			}
			return nil, nil, err
		}
	}
	return fieldErrs, m2mValues, nil
}

// shouldSkip decides whether an unchanged row should be skipped instead of
// persisted. Many-to-many fields compare by sorted referenced-id sets with a
// length check first; everything else compares the populated instance
// against the pre-mutation snapshot.
func (r *Resource) shouldSkip(ctx context.Context, st store.Store, instance, original store.Record, isNew bool, m2mValues map[string][]interface{}, row tabular.Row) (bool, error) {
	if h := r.Hooks.SkipRow; h != nil {
		return h(ctx, instance, original, row)
	}
	if isNew {
		return false, nil
	}

	for _, f := range r.importFields() {
		if f.ReadOnly {
			continue
		}

		if r.isM2M(f) {
			cleaned, deferred := m2mValues[f.Attribute]
			if !deferred {
				continue
			}
			existing, err := st.GetRelated(ctx, f.Attribute, original[r.pkName()])
			if err != nil {
				return false, err
			}
			if !sameIDSet(cleaned, existing) {
				return false, nil
			}
			continue
		}

		if fmt.Sprint(instance[f.Attribute]) != fmt.Sprint(original[f.Attribute]) {
			return false, nil
		}
	}
	return true, nil
}

// sameIDSet compares two id lists as sets, length first
func sameIDSet(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	as := make([]string, len(a))
	bs := make([]string, len(b))
	for i := range a {
		as[i] = fmt.Sprint(a[i])
		bs[i] = fmt.Sprint(b[i])
	}
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// persistRow writes the populated instance, directly or into a bulk buffer,
// and saves deferred many-to-many associations. Associations cannot be
// deferred through a bulk buffer, so bulk mode skips them.
func (r *Resource) persistRow(ctx context.Context, st store.Store, instance store.Record, isNew bool, m2mValues map[string][]interface{}, persist bool) error {
	if !persist {
		return nil
	}

	if isNew {
		if r.opts.UseBulk {
			r.createBuffer = append(r.createBuffer, instance.Clone())
		} else {
			saved, err := st.Insert(ctx, instance)
			if err != nil {
				return err
			}
			for k, v := range saved {
				instance[k] = v
			}
		}
	} else {
		if r.opts.UseBulk {
			r.updateBuffer = append(r.updateBuffer, instance.Clone())
		} else if err := st.Update(ctx, instance); err != nil {
			return err
		}
	}

	if r.opts.UseBulk || len(m2mValues) == 0 {
		return nil
	}

	relNames := make([]string, 0, len(m2mValues))
	for relName := range m2mValues {
		relNames = append(relNames, relName)
	}
	sort.Strings(relNames)

	id := instance[r.pkName()]
	for _, relName := range relNames {
		f := r.fieldByAttribute(relName)
		if f != nil && f.M2MAdd {
			if err := st.AddRelated(ctx, relName, id, m2mValues[relName]); err != nil {
				return err
			}
			continue
		}
		if err := st.SetRelated(ctx, relName, id, m2mValues[relName]); err != nil {
			return err
		}
	}
	return nil
}

// flushDue flushes any bulk buffer that has reached the batch size
func (r *Resource) flushDue(ctx context.Context, st store.Store, result *Result, raise bool) error {
	if len(r.createBuffer) >= r.opts.BatchSize {
		if err := r.flushCreates(ctx, st, result, raise); err != nil {
			return err
		}
	}
	if len(r.updateBuffer) >= r.opts.BatchSize {
		if err := r.flushUpdates(ctx, st, result, raise); err != nil {
			return err
		}
	}
	if len(r.deleteBuffer) >= r.opts.BatchSize {
		if err := r.flushDeletes(ctx, st, result, raise); err != nil {
			return err
		}
	}
	return nil
}

// flushAll drains every buffer, catching a partial final batch
func (r *Resource) flushAll(ctx context.Context, st store.Store, result *Result, raise bool) error {
	if err := r.flushCreates(ctx, st, result, raise); err != nil {
		return err
	}
	if err := r.flushUpdates(ctx, st, result, raise); err != nil {
		return err
	}
	return r.flushDeletes(ctx, st, result, raise)
}

func (r *Resource) flushCreates(ctx context.Context, st store.Store, result *Result, raise bool) error {
	if len(r.createBuffer) == 0 {
		return nil
	}
	recs := r.createBuffer
	r.createBuffer = nil
	if _, err := st.BulkInsert(ctx, recs); err != nil {
		return r.flushFailed(result, raise, fmt.Errorf("bulk insert of %d records failed: %w", len(recs), err))
	}
	return nil
}

func (r *Resource) flushUpdates(ctx context.Context, st store.Store, result *Result, raise bool) error {
	if len(r.updateBuffer) == 0 {
		return nil
	}
	recs := r.updateBuffer
	r.updateBuffer = nil
	if err := st.BulkUpdate(ctx, recs); err != nil {
		return r.flushFailed(result, raise, fmt.Errorf("bulk update of %d records failed: %w", len(recs), err))
	}
	return nil
}

func (r *Resource) flushDeletes(ctx context.Context, st store.Store, result *Result, raise bool) error {
	if len(r.deleteBuffer) == 0 {
		return nil
	}
	ids := r.deleteBuffer
	r.deleteBuffer = nil
	if err := st.BulkDelete(ctx, ids); err != nil {
		return r.flushFailed(result, raise, fmt.Errorf("bulk delete of %d records failed: %w", len(ids), err))
	}
	return nil
}

// flushFailed records a flush error as a dataset-level error, escalating
// only when the caller asked errors to be raised
func (r *Resource) flushFailed(result *Result, raise bool, err error) error {
	r.logger.Error("bulk flush failed", zap.Error(err))
	result.AppendBaseError(err)
	if raise {
		return err
	}
	return nil
}
