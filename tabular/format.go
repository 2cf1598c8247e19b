package tabular

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Format parses raw bytes into a Dataset and serializes a Dataset back
type Format interface {
	// Title is the short name the format registers under ("csv", "xlsx", ...)
	Title() string

	// Extension is the file extension without the dot
	Extension() string

	// ContentType is the MIME type for serialized data
	ContentType() string

	// IsBinary reports whether serialized data is binary rather than text
	IsBinary() bool

	// CreateDataset parses raw content into a dataset
	CreateDataset(data []byte) (*Dataset, error)

	// ExportData serializes a dataset
	ExportData(d *Dataset) ([]byte, error)
}

var (
	formatsMu sync.RWMutex
	formats   = make(map[string]Format)
)

// RegisterFormat makes a format available by title and extension
func RegisterFormat(f Format) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	formats[f.Title()] = f
}

// FormatByTitle returns the format registered under the given title
func FormatByTitle(title string) (Format, bool) {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	f, ok := formats[strings.ToLower(title)]
	return f, ok
}

// FormatByExtension returns the format matching a file extension ("csv" or ".csv")
func FormatByExtension(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	for _, f := range formats {
		if f.Extension() == ext {
			return f, true
		}
	}
	return nil, false
}

// Formats returns the registered format titles, sorted
func Formats() []string {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	titles := make([]string, 0, len(formats))
	for title := range formats {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

func init() {
	RegisterFormat(&CSVFormat{})
	RegisterFormat(&TSVFormat{})
	RegisterFormat(&JSONFormat{})
	RegisterFormat(&YAMLFormat{})
	RegisterFormat(&XLSXFormat{})
}

// renderCell renders a raw cell value as a string for text formats
func renderCell(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// recordsToDataset converts decoded maps (JSON/YAML documents) to a dataset
// with a deterministic column order: first-seen order across all records.
func recordsToDataset(records []map[string]interface{}) *Dataset {
	var headers []string
	seen := make(map[string]bool)
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}

	d := NewDataset(headers...)
	for _, rec := range records {
		row := make([]interface{}, len(headers))
		for i, h := range headers {
			row[i] = rec[h]
		}
		d.rows = append(d.rows, row)
	}
	return d
}

// datasetToRecords converts a dataset to one map per row
func datasetToRecords(d *Dataset) []map[string]interface{} {
	records := make([]map[string]interface{}, 0, d.Len())
	for _, row := range d.rows {
		rec := make(map[string]interface{}, len(d.Headers))
		for i, h := range d.Headers {
			rec[h] = row[i]
		}
		records = append(records, rec)
	}
	return records
}
