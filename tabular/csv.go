package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVFormat reads and writes comma-separated values with a header row
type CSVFormat struct{}

// Title is "csv"
func (f *CSVFormat) Title() string { return "csv" }

// Extension is "csv"
func (f *CSVFormat) Extension() string { return "csv" }

// ContentType is text/csv
func (f *CSVFormat) ContentType() string { return "text/csv" }

// IsBinary reports false; CSV is text
func (f *CSVFormat) IsBinary() bool { return false }

// CreateDataset parses CSV content. The first record is the header row.
func (f *CSVFormat) CreateDataset(data []byte) (*Dataset, error) {
	return readDelimited(data, ',')
}

// ExportData serializes the dataset as CSV
func (f *CSVFormat) ExportData(d *Dataset) ([]byte, error) {
	return writeDelimited(d, ',')
}

// TSVFormat reads and writes tab-separated values with a header row
type TSVFormat struct{}

// Title is "tsv"
func (f *TSVFormat) Title() string { return "tsv" }

// Extension is "tsv"
func (f *TSVFormat) Extension() string { return "tsv" }

// ContentType is text/tab-separated-values
func (f *TSVFormat) ContentType() string { return "text/tab-separated-values" }

// IsBinary reports false; TSV is text
func (f *TSVFormat) IsBinary() bool { return false }

// CreateDataset parses TSV content. The first record is the header row.
func (f *TSVFormat) CreateDataset(data []byte) (*Dataset, error) {
	return readDelimited(data, '\t')
}

// ExportData serializes the dataset as TSV
func (f *TSVFormat) ExportData(d *Dataset) ([]byte, error) {
	return writeDelimited(d, '\t')
}

func readDelimited(data []byte, comma rune) (*Dataset, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse delimited data: %w", err)
	}
	if len(records) == 0 {
		return NewDataset(), nil
	}

	d := NewDataset(records[0]...)
	for _, rec := range records[1:] {
		row := make([]interface{}, len(rec))
		for i, cell := range rec {
			row[i] = cell
		}
		if err := d.Append(row); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func writeDelimited(d *Dataset, comma rune) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma

	if err := w.Write(d.Headers); err != nil {
		return nil, err
	}
	for i := 0; i < d.Len(); i++ {
		cells := d.RawRow(i)
		out := make([]string, len(cells))
		for j, cell := range cells {
			out[j] = renderCell(cell)
		}
		if err := w.Write(out); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
