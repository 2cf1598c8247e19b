package resource

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porter-data/porter/internal/orm/schema"
	"github.com/porter-data/porter/internal/orm/store"
	"github.com/porter-data/porter/internal/orm/store/storetest"
	"github.com/porter-data/porter/tabular"
	"github.com/porter-data/porter/widget"
)

var ctx = context.Background()

func bookModel() *schema.ModelSchema {
	return schema.NewModelSchema("Book").
		AddField(&schema.Field{
			Name: "id",
			Type: &schema.TypeSpec{BaseType: schema.TypeInt, Constraints: []schema.Constraint{
				{Type: schema.ConstraintPrimary},
				{Type: schema.ConstraintAuto},
			}},
		}).
		AddField(&schema.Field{
			Name: "name",
			Type: &schema.TypeSpec{BaseType: schema.TypeString},
		}).
		AddField(&schema.Field{
			Name: "price",
			Type: &schema.TypeSpec{BaseType: schema.TypeFloat, Nullable: true},
		})
}

func bookModelWithCategories() *schema.ModelSchema {
	m := bookModel()
	m.AddRelationship(&schema.Relationship{
		Type:      schema.RelationManyToMany,
		Target:    "Category",
		FieldName: "categories",
		JoinTable: "book_categories",
		SourceKey: "book_id",
		TargetKey: "category_id",
	})
	return m
}

func categoryStore() *storetest.Fake {
	model := schema.NewModelSchema("Category").
		AddField(&schema.Field{
			Name: "id",
			Type: &schema.TypeSpec{BaseType: schema.TypeInt, Constraints: []schema.Constraint{
				{Type: schema.ConstraintPrimary},
				{Type: schema.ConstraintAuto},
			}},
		}).
		AddField(&schema.Field{
			Name: "name",
			Type: &schema.TypeSpec{BaseType: schema.TypeString},
		})
	return storetest.New(model).Seed(
		store.Record{"id": int64(1), "name": "fiction"},
		store.Record{"id": int64(2), "name": "history"},
		store.Record{"id": int64(3), "name": "poetry"},
	)
}

// testOptions disables transactions, which the fake store cannot provide
func testOptions() *Options {
	o := DefaultOptions()
	o.UseTransactions = false
	return o
}

func newBookResource(t *testing.T, fake *storetest.Fake, opts *Options) *Resource {
	t.Helper()
	if opts == nil {
		opts = testOptions()
	}
	r, err := NewResource(fake.Model, fake, opts)
	require.NoError(t, err)
	return r
}

func bookDataset(rows ...[]interface{}) *tabular.Dataset {
	ds := tabular.NewDataset("id", "name", "price")
	for _, row := range rows {
		if err := ds.Append(row); err != nil {
			panic(err)
		}
	}
	return ds
}

func TestImportNewRows(t *testing.T) {
	fake := storetest.New(bookModel())
	r := newBookResource(t, fake, nil)

	ds := bookDataset(
		[]interface{}{"1", "A", ""},
		[]interface{}{"2", "B", ""},
	)
	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total(ImportTypeNew))
	assert.Equal(t, 0, result.Total(ImportTypeUpdate))
	assert.Equal(t, 0, result.Total(ImportTypeDelete))
	assert.Equal(t, 0, result.Total(ImportTypeSkip))
	assert.False(t, result.HasErrors())
	assert.False(t, result.HasValidationErrors())

	recs := fake.All()
	require.Len(t, recs, 2)
	assert.Equal(t, "A", recs[0]["name"])
	assert.Equal(t, "B", recs[1]["name"])
	assert.Equal(t, int64(1), recs[0]["id"])
	assert.Equal(t, int64(2), recs[1]["id"])
}

func TestImportUpdateRow(t *testing.T) {
	fake := storetest.New(bookModel()).Seed(
		store.Record{"id": int64(1), "name": "Old", "price": 5.0},
	)
	r := newBookResource(t, fake, nil)

	ds := bookDataset([]interface{}{"1", "New", "7.5"})
	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total(ImportTypeUpdate))
	rec, err := fake.Find(ctx, map[string]interface{}{"id": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, "New", rec["name"])
	assert.Equal(t, 7.5, rec["price"])
}

func TestClassificationExhaustive(t *testing.T) {
	fake := storetest.New(bookModel()).Seed(
		store.Record{"id": int64(1), "name": "A", "price": 1.0},
	)
	opts := testOptions()
	opts.SkipUnchanged = true
	r := newBookResource(t, fake, opts)

	ds := bookDataset(
		[]interface{}{"1", "A", "1"},         // unchanged -> skip
		[]interface{}{"2", "B", "2"},         // new
		[]interface{}{"3", "C", "not a num"}, // invalid
	)
	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)

	total := 0
	for _, it := range ImportTypes {
		total += result.Total(it)
	}
	assert.Equal(t, ds.Len(), total)
	assert.Equal(t, 1, result.Total(ImportTypeSkip))
	assert.Equal(t, 1, result.Total(ImportTypeNew))
	assert.Equal(t, 1, result.Total(ImportTypeInvalid))
}

func TestSkipUnchangedReimport(t *testing.T) {
	fake := storetest.New(bookModel())
	opts := testOptions()
	opts.SkipUnchanged = true
	r := newBookResource(t, fake, opts)

	ds := bookDataset(
		[]interface{}{"1", "A", "1.5"},
		[]interface{}{"2", "B", "2.5"},
	)
	first, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Total(ImportTypeNew))

	inserts := fake.InsertCalls
	updates := fake.UpdateCalls

	second, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Total(ImportTypeSkip))
	assert.Equal(t, 0, second.Total(ImportTypeNew))
	assert.Equal(t, 0, second.Total(ImportTypeUpdate))

	// zero writes on the unchanged re-import
	assert.Equal(t, inserts, fake.InsertCalls)
	assert.Equal(t, updates, fake.UpdateCalls)
}

func TestDryRunDoesNotPersist(t *testing.T) {
	fake := storetest.New(bookModel()).Seed(
		store.Record{"id": int64(1), "name": "A", "price": 1.0},
	)
	r := newBookResource(t, fake, nil)

	ds := bookDataset(
		[]interface{}{"1", "Changed", "9"},
		[]interface{}{"2", "B", "2"},
	)
	result, err := r.ImportData(ctx, ds, ImportParams{DryRun: true})
	require.NoError(t, err)

	// classifications are still reported for preview
	assert.Equal(t, 1, result.Total(ImportTypeUpdate))
	assert.Equal(t, 1, result.Total(ImportTypeNew))

	// the store is untouched
	assert.Equal(t, 1, fake.Len())
	rec, err := fake.Find(ctx, map[string]interface{}{"id": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, "A", rec["name"])
	assert.Equal(t, 0, fake.InsertCalls)
	assert.Equal(t, 0, fake.UpdateCalls)
}

func TestCachedLoaderEquivalence(t *testing.T) {
	seed := []store.Record{
		{"id": int64(1), "name": "A", "price": 1.0},
		{"id": int64(3), "name": "C", "price": 3.0},
	}
	ds := bookDataset(
		[]interface{}{"1", "A2", "1"},
		[]interface{}{"2", "B", "2"},
		[]interface{}{"3", "C2", "3"},
	)

	run := func(cached bool) (*Result, *storetest.Fake) {
		fake := storetest.New(bookModel()).Seed(seed...)
		opts := testOptions()
		opts.UseCachedLoader = cached
		r := newBookResource(t, fake, opts)
		result, err := r.ImportData(ctx, ds, ImportParams{})
		require.NoError(t, err)
		return result, fake
	}

	direct, directFake := run(false)
	cached, cachedFake := run(true)

	require.Equal(t, len(direct.Rows), len(cached.Rows))
	for i := range direct.Rows {
		assert.Equal(t, direct.Rows[i].ImportType, cached.Rows[i].ImportType, "row %d", i)
	}
	assert.Equal(t, directFake.All(), cachedFake.All())

	// direct: one lookup per row; cached: one bulk query, no per-row lookups
	assert.Equal(t, ds.Len(), directFake.FindCalls)
	assert.Equal(t, 0, directFake.FindInCalls)
	assert.Equal(t, 1, cachedFake.FindInCalls)
	assert.Equal(t, 0, cachedFake.FindCalls)
}

func TestBulkBatchingBoundary(t *testing.T) {
	cases := []struct {
		rows, batch, flushes int
	}{
		{rows: 4, batch: 2, flushes: 2},
		{rows: 5, batch: 2, flushes: 3},
		{rows: 3, batch: 10, flushes: 1},
		{rows: 6, batch: 3, flushes: 2},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%drows_batch%d", tc.rows, tc.batch), func(t *testing.T) {
			fake := storetest.New(bookModel())
			opts := testOptions()
			opts.UseBulk = true
			opts.BatchSize = tc.batch
			r := newBookResource(t, fake, opts)

			ds := tabular.NewDataset("id", "name", "price")
			for i := 1; i <= tc.rows; i++ {
				require.NoError(t, ds.Append([]interface{}{
					fmt.Sprint(i), fmt.Sprintf("book %d", i), "1",
				}))
			}

			result, err := r.ImportData(ctx, ds, ImportParams{})
			require.NoError(t, err)
			assert.Equal(t, tc.rows, result.Total(ImportTypeNew))
			assert.Equal(t, tc.flushes, fake.BulkInsertCalls)
			assert.Equal(t, tc.rows, fake.Len())
		})
	}
}

func TestDeleteRow(t *testing.T) {
	fake := storetest.New(bookModel()).Seed(
		store.Record{"id": int64(1), "name": "A", "price": 1.0},
	)
	r := newBookResource(t, fake, nil)
	r.Hooks.ForDelete = func(ctx context.Context, row tabular.Row, instance store.Record) (bool, error) {
		return true, nil
	}

	ds := bookDataset([]interface{}{"1", "A", "1"})
	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total(ImportTypeDelete))
	assert.Equal(t, 0, fake.Len())

	require.Len(t, result.Rows, 1)
	rr := result.Rows[0]
	assert.Equal(t, int64(1), rr.ObjectID)
	// the diff compares the prior snapshot against nothing
	require.NotNil(t, rr.Diff)
	assert.Contains(t, rr.Diff[1], "<del")
}

func TestDeleteOfNewInstanceSkips(t *testing.T) {
	fake := storetest.New(bookModel())
	r := newBookResource(t, fake, nil)
	r.Hooks.ForDelete = func(ctx context.Context, row tabular.Row, instance store.Record) (bool, error) {
		return true, nil
	}

	ds := bookDataset([]interface{}{"9", "Ghost", "1"})
	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total(ImportTypeSkip))
	assert.Equal(t, 0, fake.Len())
	assert.Equal(t, 0, fake.DeleteCalls)
}

func TestInvalidRowAggregatesFieldErrors(t *testing.T) {
	fake := storetest.New(bookModel())
	r := newBookResource(t, fake, nil)

	ds := tabular.NewDataset("id", "name", "price")
	require.NoError(t, ds.Append([]interface{}{"not an id", "A", "not a price"}))

	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total(ImportTypeInvalid))
	assert.True(t, result.HasValidationErrors())
	assert.False(t, result.HasErrors())

	require.Len(t, result.InvalidRows, 1)
	ir := result.InvalidRows[0]
	assert.Equal(t, 1, ir.Number)
	// both bad cells are reported at once
	assert.Len(t, ir.ValidationError.Fields["id"], 1)
	assert.Len(t, ir.ValidationError.Fields["price"], 1)
	assert.Equal(t, 0, fake.Len())
}

func TestValidateInstance(t *testing.T) {
	model := bookModel()
	// name is non-nullable and has no default
	fake := storetest.New(model)
	opts := testOptions()
	opts.ValidateInstance = true
	// blank names should clean to nil so nullability validation catches them
	opts.WidgetOverrides = map[string]widget.Widget{
		"name": &widget.CharWidget{CoerceToString: true},
	}
	r := newBookResource(t, fake, opts)

	ds := bookDataset([]interface{}{"1", "", "2"})
	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total(ImportTypeInvalid))
	require.Len(t, result.InvalidRows, 1)
	assert.Contains(t, result.InvalidRows[0].ValidationError.Fields, "name")
}

func TestTransactionsUnsupportedIsConfigurationError(t *testing.T) {
	fake := storetest.New(bookModel())
	r, err := NewResource(fake.Model, fake, DefaultOptions())
	require.NoError(t, err)

	_, err = r.ImportData(ctx, bookDataset(), ImportParams{})
	assert.ErrorIs(t, err, ErrTransactionsNotSupported)
}

func TestInvalidBatchSizeIsConfigurationError(t *testing.T) {
	fake := storetest.New(bookModel())
	opts := testOptions()
	opts.BatchSize = 0
	r, err := NewResource(fake.Model, fake, opts)
	require.NoError(t, err)

	_, err = r.ImportData(ctx, bookDataset(), ImportParams{})
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestMissingImportIDColumnIsConfigurationError(t *testing.T) {
	fake := storetest.New(bookModel())
	r := newBookResource(t, fake, nil)

	ds := tabular.NewDataset("name", "price")
	require.NoError(t, ds.Append([]interface{}{"A", "1"}))

	_, err := r.ImportData(ctx, ds, ImportParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `import id field "id"`)
}

func TestForceInitInstanceSkipsLookup(t *testing.T) {
	fake := storetest.New(bookModel()).Seed(
		store.Record{"id": int64(1), "name": "A", "price": 1.0},
	)
	opts := testOptions()
	opts.ForceInitInstance = true
	r := newBookResource(t, fake, opts)

	ds := tabular.NewDataset("name", "price")
	require.NoError(t, ds.Append([]interface{}{"B", "2"}))

	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total(ImportTypeNew))
	assert.Equal(t, 0, fake.FindCalls)
	assert.Equal(t, 2, fake.Len())
}

func TestCollectFailedRows(t *testing.T) {
	fake := storetest.New(bookModel())
	fake.FailWith = errors.New("connection reset")
	r := newBookResource(t, fake, nil)

	ds := bookDataset([]interface{}{"1", "A", "1"})
	result, err := r.ImportData(ctx, ds, ImportParams{CollectFailedRows: true})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total(ImportTypeError))
	require.NotNil(t, result.FailedDataset)
	assert.Equal(t, []string{"id", "name", "price", "Error"}, result.FailedDataset.Headers)
	require.Equal(t, 1, result.FailedDataset.Len())
	row := result.FailedDataset.RawRow(0)
	assert.Contains(t, fmt.Sprint(row[3]), "connection reset")
}

func TestRaiseErrorsAborts(t *testing.T) {
	fake := storetest.New(bookModel())
	fake.FailWith = errors.New("connection reset")
	r := newBookResource(t, fake, nil)

	ds := bookDataset(
		[]interface{}{"1", "A", "1"},
		[]interface{}{"2", "B", "2"},
	)
	result, err := r.ImportData(ctx, ds, ImportParams{RaiseErrors: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	// the first failing row aborted the import
	assert.Equal(t, 1, result.Total(ImportTypeError))
}

func TestReportSkippedSuppression(t *testing.T) {
	fake := storetest.New(bookModel()).Seed(
		store.Record{"id": int64(1), "name": "A", "price": 1.0},
	)
	opts := testOptions()
	opts.SkipUnchanged = true
	opts.ReportSkipped = false
	r := newBookResource(t, fake, opts)

	ds := bookDataset(
		[]interface{}{"1", "A", "1"},
		[]interface{}{"2", "B", "2"},
	)
	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)

	// totals still count the skip, but the row list omits it
	assert.Equal(t, 1, result.Total(ImportTypeSkip))
	assert.Equal(t, 1, result.Total(ImportTypeNew))
	require.Len(t, result.Rows, 1)
	assert.Equal(t, ImportTypeNew, result.Rows[0].ImportType)
}

func TestRowErrorCapturesStack(t *testing.T) {
	fake := storetest.New(bookModel())
	fake.FailWith = errors.New("boom")
	r := newBookResource(t, fake, nil)

	ds := bookDataset([]interface{}{"1", "A", "1"})
	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	rr := result.Rows[0]
	assert.Equal(t, ImportTypeError, rr.ImportType)
	require.NotNil(t, rr.Err)
	assert.NotEmpty(t, rr.Err.Stack)
	assert.ErrorContains(t, rr.Err, "boom")
}

func TestManyToManyImport(t *testing.T) {
	cats := categoryStore()
	fake := storetest.New(bookModelWithCategories())
	opts := testOptions()
	opts.RelatedStores = map[string]store.Store{"Category": cats}
	r := newBookResource(t, fake, opts)

	ds := tabular.NewDataset("id", "name", "price", "categories")
	require.NoError(t, ds.Append([]interface{}{"1", "A", "1", "2,1"}))

	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total(ImportTypeNew))

	assert.Equal(t, []interface{}{int64(2), int64(1)}, fake.Relations("categories", int64(1)))
}

func TestManyToManySkipUnchanged(t *testing.T) {
	cats := categoryStore()
	fake := storetest.New(bookModelWithCategories()).Seed(
		store.Record{"id": int64(1), "name": "A", "price": 1.0},
	)
	require.NoError(t, fake.SetRelated(ctx, "categories", int64(1), []interface{}{int64(1), int64(2)}))

	opts := testOptions()
	opts.SkipUnchanged = true
	opts.RelatedStores = map[string]store.Store{"Category": cats}
	r := newBookResource(t, fake, opts)

	ds := tabular.NewDataset("id", "name", "price", "categories")
	// same set, different order
	require.NoError(t, ds.Append([]interface{}{"1", "A", "1", "2,1"}))
	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total(ImportTypeSkip))

	// a different set is an update
	ds2 := tabular.NewDataset("id", "name", "price", "categories")
	require.NoError(t, ds2.Append([]interface{}{"1", "A", "1", "3"}))
	result, err = r.ImportData(ctx, ds2, ImportParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total(ImportTypeUpdate))
	assert.Equal(t, []interface{}{int64(3)}, fake.Relations("categories", int64(1)))
}

func TestManyToManyAddUnions(t *testing.T) {
	cats := categoryStore()
	fake := storetest.New(bookModelWithCategories()).Seed(
		store.Record{"id": int64(1), "name": "A", "price": 1.0},
	)
	require.NoError(t, fake.SetRelated(ctx, "categories", int64(1), []interface{}{int64(1)}))

	addField := NewField("categories", "categories", widget.NewManyToManyWidget(cats))
	addField.M2MAdd = true

	opts := testOptions()
	opts.DeclaredFields = []*Field{addField}
	opts.RelatedStores = map[string]store.Store{"Category": cats}
	r := newBookResource(t, fake, opts)

	ds := tabular.NewDataset("id", "name", "price", "categories")
	require.NoError(t, ds.Append([]interface{}{"1", "A", "1", "2,3"}))
	result, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total(ImportTypeUpdate))

	// the existing association survives and the new ones are unioned in
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, fake.Relations("categories", int64(1)))
}

func TestHookMutatesRow(t *testing.T) {
	fake := storetest.New(bookModel())
	r := newBookResource(t, fake, nil)
	r.Hooks.BeforeImportRow = func(ctx context.Context, row tabular.Row, number int) error {
		row.Set("name", "mutated")
		return nil
	}

	ds := bookDataset([]interface{}{"1", "original", "1"})
	_, err := r.ImportData(ctx, ds, ImportParams{})
	require.NoError(t, err)

	rec, err := fake.Find(ctx, map[string]interface{}{"id": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, "mutated", rec["name"])
}

func TestImportHookFailuresAreBaseErrors(t *testing.T) {
	fake := storetest.New(bookModel())
	r := newBookResource(t, fake, nil)
	r.Hooks.BeforeImport = func(ctx context.Context, ds *tabular.Dataset) error {
		return errors.New("before failed")
	}
	r.Hooks.AfterImport = func(ctx context.Context, result *Result) error {
		return errors.New("after failed")
	}

	result, err := r.ImportData(ctx, bookDataset([]interface{}{"1", "A", "1"}), ImportParams{})
	require.NoError(t, err)
	require.Len(t, result.BaseErrors, 2)
	assert.True(t, result.HasErrors())
	// rows were still processed
	assert.Equal(t, 1, result.Total(ImportTypeNew))
}

func TestDiffHeadersMatchExportOrder(t *testing.T) {
	fake := storetest.New(bookModel())
	opts := testOptions()
	opts.ExportOrder = []string{"name", "id"}
	r := newBookResource(t, fake, opts)

	assert.Equal(t, []string{"name", "id", "price"}, r.DiffHeaders())
}
