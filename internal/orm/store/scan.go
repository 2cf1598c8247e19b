package store

import (
	"database/sql"
	"time"

	"github.com/porter-data/porter/internal/orm/schema"
)

// scanRecord scans a single row into a Record using the schema's column order
func scanRecord(row *sql.Row, model *schema.ModelSchema) (Record, error) {
	columns := model.FieldNames()

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := row.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	rec := make(Record, len(columns))
	for i, col := range columns {
		rec[col] = normalizeScanned(values[i])
	}
	return rec, nil
}

// scanRecords scans all rows into Records keyed by the result's column names
func scanRecords(rows *sql.Rows, model *schema.ModelSchema) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		rec := make(Record, len(columns))
		for i, col := range columns {
			rec[col] = normalizeScanned(values[i])
		}
		results = append(results, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// normalizeScanned maps driver values onto the small set of types the rest
// of the pipeline compares and renders: string, int64, float64, bool,
// time.Time, and nil. Drivers hand back []byte for most text columns.
func normalizeScanned(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val
	default:
		return v
	}
}
