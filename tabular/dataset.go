// Package tabular holds the in-memory tabular dataset the import/export
// pipeline operates on, plus format adapters that parse and serialize it
// (CSV, TSV, JSON, YAML, XLSX).
package tabular

import "fmt"

// Dataset is an ordered set of named columns and rows of raw cell values
type Dataset struct {
	Headers []string
	rows    [][]interface{}
}

// NewDataset creates a dataset with the given column headers
func NewDataset(headers ...string) *Dataset {
	return &Dataset{Headers: headers}
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Width returns the number of columns
func (d *Dataset) Width() int {
	return len(d.Headers)
}

// HasColumn returns true if the dataset has a column with the given header
func (d *Dataset) HasColumn(name string) bool {
	return d.columnIndex(name) >= 0
}

// columnIndex returns the index of a header, or -1
func (d *Dataset) columnIndex(name string) int {
	for i, h := range d.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// Append adds a row. The row must match the header width.
func (d *Dataset) Append(row []interface{}) error {
	if len(row) != len(d.Headers) {
		return fmt.Errorf("row has %d cells, dataset has %d columns", len(row), len(d.Headers))
	}
	d.rows = append(d.rows, row)
	return nil
}

// AppendColumn adds a column with one value per existing row
func (d *Dataset) AppendColumn(header string, values []interface{}) error {
	if len(values) != len(d.rows) {
		return fmt.Errorf("column has %d values, dataset has %d rows", len(values), len(d.rows))
	}
	d.Headers = append(d.Headers, header)
	for i := range d.rows {
		d.rows[i] = append(d.rows[i], values[i])
	}
	return nil
}

// Row returns a keyed view over row i. The view writes through to the
// dataset, so hooks may mutate rows in place.
func (d *Dataset) Row(i int) Row {
	return Row{dataset: d, index: i}
}

// RawRow returns the backing cell slice for row i
func (d *Dataset) RawRow(i int) []interface{} {
	return d.rows[i]
}

// Row is a keyed, mutable view over one dataset row
type Row struct {
	dataset *Dataset
	index   int
}

// Get returns the cell under the named column and whether the column exists
func (r Row) Get(name string) (interface{}, bool) {
	idx := r.dataset.columnIndex(name)
	if idx < 0 {
		return nil, false
	}
	return r.dataset.rows[r.index][idx], true
}

// Set assigns the cell under the named column; false if the column is missing
func (r Row) Set(name string, value interface{}) bool {
	idx := r.dataset.columnIndex(name)
	if idx < 0 {
		return false
	}
	r.dataset.rows[r.index][idx] = value
	return true
}

// Has returns true if the named column exists
func (r Row) Has(name string) bool {
	return r.dataset.HasColumn(name)
}

// Headers returns the dataset's column headers
func (r Row) Headers() []string {
	return r.dataset.Headers
}

// Values returns the row's cells in column order
func (r Row) Values() []interface{} {
	return r.dataset.rows[r.index]
}
