package tabular

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONFormat reads and writes a JSON array of flat objects
type JSONFormat struct{}

// Title is "json"
func (f *JSONFormat) Title() string { return "json" }

// Extension is "json"
func (f *JSONFormat) Extension() string { return "json" }

// ContentType is application/json
func (f *JSONFormat) ContentType() string { return "application/json" }

// IsBinary reports false; JSON is text
func (f *JSONFormat) IsBinary() bool { return false }

// CreateDataset parses a JSON array of objects
func (f *JSONFormat) CreateDataset(data []byte) (*Dataset, error) {
	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse JSON data: %w", err)
	}
	return recordsToDataset(records), nil
}

// ExportData serializes the dataset as an indented JSON array of objects
func (f *JSONFormat) ExportData(d *Dataset) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(datasetToRecords(d)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
