package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetAppendAndAccess(t *testing.T) {
	d := NewDataset("id", "name")
	require.NoError(t, d.Append([]interface{}{"1", "Ada"}))
	require.NoError(t, d.Append([]interface{}{"2", "Grace"}))

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 2, d.Width())
	assert.True(t, d.HasColumn("name"))
	assert.False(t, d.HasColumn("email"))

	row := d.Row(1)
	v, ok := row.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Grace", v)

	_, ok = row.Get("email")
	assert.False(t, ok)
}

func TestDatasetAppendWidthMismatch(t *testing.T) {
	d := NewDataset("id", "name")
	err := d.Append([]interface{}{"1"})
	assert.ErrorContains(t, err, "columns")
}

func TestRowSetWritesThrough(t *testing.T) {
	d := NewDataset("id", "name")
	require.NoError(t, d.Append([]interface{}{"1", "Ada"}))

	row := d.Row(0)
	require.True(t, row.Set("name", "Ada Lovelace"))

	v, _ := d.Row(0).Get("name")
	assert.Equal(t, "Ada Lovelace", v)
	assert.False(t, row.Set("email", "x"))
}

func TestAppendColumn(t *testing.T) {
	d := NewDataset("id")
	require.NoError(t, d.Append([]interface{}{"1"}))
	require.NoError(t, d.Append([]interface{}{"2"}))

	require.NoError(t, d.AppendColumn("errors", []interface{}{"", "bad row"}))
	assert.Equal(t, []string{"id", "errors"}, d.Headers)

	v, _ := d.Row(1).Get("errors")
	assert.Equal(t, "bad row", v)

	assert.Error(t, d.AppendColumn("short", []interface{}{"only one"}))
}
