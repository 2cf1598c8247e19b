// Package validation runs model-level validation over records: nullability,
// type conformance, and declared field constraints. Errors are keyed by field
// so callers can report them per column.
package validation

import (
	"fmt"
	"sort"
	"strings"
)

// Errors contains the validation failures for one record, keyed by field
type Errors struct {
	Fields map[string][]string `json:"fields"`
}

// NewErrors creates an empty Errors
func NewErrors() *Errors {
	return &Errors{Fields: make(map[string][]string)}
}

// Add records a validation failure for a field
func (e *Errors) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Merge folds another error set into this one
func (e *Errors) Merge(other *Errors) {
	if other == nil {
		return
	}
	for field, messages := range other.Fields {
		for _, msg := range messages {
			e.Add(field, msg)
		}
	}
}

// HasErrors returns true if any validation failures were recorded
func (e *Errors) HasErrors() bool {
	return len(e.Fields) > 0
}

// Count returns the total number of failures across all fields
func (e *Errors) Count() int {
	count := 0
	for _, messages := range e.Fields {
		count += len(messages)
	}
	return count
}

// Error implements the error interface
func (e *Errors) Error() string {
	if !e.HasErrors() {
		return "validation failed"
	}

	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		for _, msg := range e.Fields[field] {
			messages = append(messages, fmt.Sprintf("%s: %s", field, msg))
		}
	}

	if len(messages) == 1 {
		return "validation failed: " + messages[0]
	}
	return "validation failed:\n  - " + strings.Join(messages, "\n  - ")
}
