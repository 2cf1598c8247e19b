package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRegistry(t *testing.T) {
	f, ok := FormatByTitle("csv")
	require.True(t, ok)
	assert.Equal(t, "text/csv", f.ContentType())

	f, ok = FormatByExtension(".xlsx")
	require.True(t, ok)
	assert.True(t, f.IsBinary())

	_, ok = FormatByTitle("parquet")
	assert.False(t, ok)

	assert.Equal(t, []string{"csv", "json", "tsv", "xlsx", "yaml"}, Formats())
}

func TestCSVRoundTrip(t *testing.T) {
	f := &CSVFormat{}

	d, err := f.CreateDataset([]byte("id,name\n1,Ada\n2,\"Grace, Hopper\"\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, d.Headers)
	require.Equal(t, 2, d.Len())

	v, _ := d.Row(1).Get("name")
	assert.Equal(t, "Grace, Hopper", v)

	out, err := f.ExportData(d)
	require.NoError(t, err)

	again, err := f.CreateDataset(out)
	require.NoError(t, err)
	assert.Equal(t, d.Headers, again.Headers)
	assert.Equal(t, d.RawRow(1), again.RawRow(1))
}

func TestTSVUsesTabs(t *testing.T) {
	f := &TSVFormat{}

	d, err := f.CreateDataset([]byte("id\tname\n1\tAda\n"))
	require.NoError(t, err)
	v, _ := d.Row(0).Get("name")
	assert.Equal(t, "Ada", v)

	out, err := f.ExportData(d)
	require.NoError(t, err)
	assert.Contains(t, string(out), "id\tname")
}

func TestJSONRoundTrip(t *testing.T) {
	f := &JSONFormat{}

	d, err := f.CreateDataset([]byte(`[{"id": 1, "name": "Ada"}, {"id": 2, "name": "Grace"}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, d.Headers)

	out, err := f.ExportData(d)
	require.NoError(t, err)

	again, err := f.CreateDataset(out)
	require.NoError(t, err)
	require.Equal(t, 2, again.Len())
	v, _ := again.Row(0).Get("name")
	assert.Equal(t, "Ada", v)
}

func TestYAMLRoundTrip(t *testing.T) {
	f := &YAMLFormat{}

	d, err := f.CreateDataset([]byte("- id: 1\n  name: Ada\n- id: 2\n  name: Grace\n"))
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())

	out, err := f.ExportData(d)
	require.NoError(t, err)

	again, err := f.CreateDataset(out)
	require.NoError(t, err)
	v, _ := again.Row(1).Get("name")
	assert.Equal(t, "Grace", v)
}

func TestXLSXRoundTrip(t *testing.T) {
	f := &XLSXFormat{}

	d := NewDataset("id", "name")
	require.NoError(t, d.Append([]interface{}{"1", "Ada"}))
	require.NoError(t, d.Append([]interface{}{"2", "Grace"}))

	out, err := f.ExportData(d)
	require.NoError(t, err)

	again, err := f.CreateDataset(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, again.Headers)
	require.Equal(t, 2, again.Len())
	v, _ := again.Row(1).Get("name")
	assert.Equal(t, "Grace", v)
}
