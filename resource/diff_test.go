package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porter-data/porter/internal/orm/store"
	"github.com/porter-data/porter/widget"
)

func diffFields() []*Field {
	return []*Field{
		NewField("id", "id", widget.NewIntegerWidget()),
		NewField("name", "name", widget.NewCharWidget()),
	}
}

func TestDiffDetectsChanges(t *testing.T) {
	before := store.Record{"id": int64(1), "name": "old"}
	after := store.Record{"id": int64(1), "name": "new"}

	d, err := newDiff(ctx, diffFields(), before)
	require.NoError(t, err)
	require.NoError(t, d.CompareWith(ctx, after))

	assert.True(t, d.HasChanges())
	html := d.AsHTML()
	require.Len(t, html, 2)
	assert.NotContains(t, html[0], "<ins")
	assert.Contains(t, html[1], "<del")
	assert.Contains(t, html[1], "<ins")
}

func TestDiffUnchanged(t *testing.T) {
	rec := store.Record{"id": int64(1), "name": "same"}

	d, err := newDiff(ctx, diffFields(), rec)
	require.NoError(t, err)
	require.NoError(t, d.CompareWith(ctx, rec))

	assert.False(t, d.HasChanges())
}

func TestDiffAgainstNothing(t *testing.T) {
	rec := store.Record{"id": int64(1), "name": "gone"}

	d, err := newDiff(ctx, diffFields(), rec)
	require.NoError(t, err)
	require.NoError(t, d.CompareWith(ctx, nil))

	assert.True(t, d.HasChanges())
	html := d.AsHTML()
	assert.Contains(t, html[1], "<del")
	assert.NotContains(t, html[1], "<ins")
}

func TestDiffNewRecord(t *testing.T) {
	d, err := newDiff(ctx, diffFields(), nil)
	require.NoError(t, err)
	require.NoError(t, d.CompareWith(ctx, store.Record{"id": int64(2), "name": "fresh"}))

	assert.True(t, d.HasChanges())
	html := d.AsHTML()
	assert.Contains(t, html[1], "<ins")
}
