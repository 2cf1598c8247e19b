package resource

import (
	"fmt"
	"runtime/debug"

	"github.com/porter-data/porter/internal/orm/store"
	"github.com/porter-data/porter/internal/orm/validation"
	"github.com/porter-data/porter/tabular"
)

// ImportType classifies what one row did to the store
type ImportType string

const (
	ImportTypeNew     ImportType = "new"
	ImportTypeUpdate  ImportType = "update"
	ImportTypeDelete  ImportType = "delete"
	ImportTypeSkip    ImportType = "skip"
	ImportTypeInvalid ImportType = "invalid"
	ImportTypeError   ImportType = "error"
)

// ImportTypes lists every classification in reporting order
var ImportTypes = []ImportType{
	ImportTypeNew,
	ImportTypeUpdate,
	ImportTypeDelete,
	ImportTypeSkip,
	ImportTypeInvalid,
	ImportTypeError,
}

// RowError wraps a row processing failure with the stack captured at the
// point the row was classified, for diagnostics on long imports.
type RowError struct {
	Err   error
	Stack []byte
}

// Error implements the error interface
func (e *RowError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error
func (e *RowError) Unwrap() error {
	return e.Err
}

// newRowError captures the current stack around err
func newRowError(err error) *RowError {
	return &RowError{Err: err, Stack: debug.Stack()}
}

// RowResult reports the outcome of importing one dataset row
type RowResult struct {
	ImportType ImportType

	// Number is the 1-based position of the row in the dataset
	Number int

	// ObjectID and ObjectRepr identify the affected record
	ObjectID   interface{}
	ObjectRepr string

	// Diff holds one rendered per-field comparison per diff header
	Diff []string

	// RowValues holds the raw inbound cells when StoreRowValues is set
	RowValues []interface{}

	// Instance and OriginalInstance are kept when StoreInstance is set
	Instance         store.Record
	OriginalInstance store.Record

	ValidationError *validation.Errors
	Err             *RowError
}

// IsValid returns true if the row neither errored nor failed validation
func (rr *RowResult) IsValid() bool {
	return rr.ImportType != ImportTypeInvalid && rr.ImportType != ImportTypeError
}

// IsSkip returns true if the row was classified a skip
func (rr *RowResult) IsSkip() bool {
	return rr.ImportType == ImportTypeSkip
}

// InvalidRow pairs a failed row's position and values with its validation error
type InvalidRow struct {
	Number          int
	Values          []interface{}
	ValidationError *validation.Errors
}

// ErrorCount returns the number of individual field failures
func (ir *InvalidRow) ErrorCount() int {
	return ir.ValidationError.Count()
}

// Result aggregates every row outcome of one import call. It reflects what
// was attempted regardless of whether the transaction was rolled back.
type Result struct {
	Rows        []*RowResult
	InvalidRows []*InvalidRow

	// BaseErrors holds dataset-level failures not attributable to one row
	BaseErrors []error

	// DiffHeaders names the columns of each RowResult.Diff
	DiffHeaders []string

	// FailedDataset collects failing rows plus an error column when
	// CollectFailedRows is set, for correction and re-submission
	FailedDataset *tabular.Dataset

	totals map[ImportType]int
}

// NewResult creates an empty Result
func NewResult() *Result {
	return &Result{totals: make(map[ImportType]int)}
}

// Append records a row result in file order
func (r *Result) Append(rr *RowResult) {
	r.Rows = append(r.Rows, rr)
}

// IncrementTotal counts a classification
func (r *Result) IncrementTotal(t ImportType) {
	r.totals[t]++
}

// Totals returns the per-classification row counts
func (r *Result) Totals() map[ImportType]int {
	out := make(map[ImportType]int, len(r.totals))
	for t, n := range r.totals {
		out[t] = n
	}
	return out
}

// Total returns the count for one classification
func (r *Result) Total(t ImportType) int {
	return r.totals[t]
}

// AppendBaseError records a dataset-level error
func (r *Result) AppendBaseError(err error) {
	r.BaseErrors = append(r.BaseErrors, err)
}

// AppendInvalidRow records a validation failure for reporting
func (r *Result) AppendInvalidRow(number int, values []interface{}, verr *validation.Errors) {
	r.InvalidRows = append(r.InvalidRows, &InvalidRow{
		Number:          number,
		Values:          values,
		ValidationError: verr,
	})
}

// AppendFailedRow copies the original row into the failed dataset with the
// error message in a trailing column
func (r *Result) AppendFailedRow(headers []string, values []interface{}, err error) {
	if r.FailedDataset == nil {
		withError := make([]string, 0, len(headers)+1)
		withError = append(withError, headers...)
		r.FailedDataset = tabular.NewDataset(append(withError, "Error")...)
	}
	row := make([]interface{}, 0, len(values)+1)
	row = append(row, values...)
	row = append(row, fmt.Sprint(err))
	// width mismatches cannot happen: the failed dataset is built from the
	// same headers as the source rows
	_ = r.FailedDataset.Append(row)
}

// HasErrors returns true if any row or dataset-level processing error occurred
func (r *Result) HasErrors() bool {
	if len(r.BaseErrors) > 0 {
		return true
	}
	return r.totals[ImportTypeError] > 0
}

// HasValidationErrors returns true if any row failed validation
func (r *Result) HasValidationErrors() bool {
	return len(r.InvalidRows) > 0
}
