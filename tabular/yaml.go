package tabular

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormat reads and writes a YAML sequence of flat mappings
type YAMLFormat struct{}

// Title is "yaml"
func (f *YAMLFormat) Title() string { return "yaml" }

// Extension is "yaml"
func (f *YAMLFormat) Extension() string { return "yaml" }

// ContentType is application/x-yaml
func (f *YAMLFormat) ContentType() string { return "application/x-yaml" }

// IsBinary reports false; YAML is text
func (f *YAMLFormat) IsBinary() bool { return false }

// CreateDataset parses a YAML sequence of mappings
func (f *YAMLFormat) CreateDataset(data []byte) (*Dataset, error) {
	var records []map[string]interface{}
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse YAML data: %w", err)
	}
	return recordsToDataset(records), nil
}

// ExportData serializes the dataset as a YAML sequence of mappings
func (f *YAMLFormat) ExportData(d *Dataset) ([]byte, error) {
	return yaml.Marshal(datasetToRecords(d))
}
