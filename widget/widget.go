// Package widget converts raw tabular cell values to native typed values and
// back. A widget is stateless apart from its configuration (format lists,
// separators, related-model lookup fields); one widget instance is shared by
// every row of an import.
package widget

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/porter-data/porter/internal/orm/schema"
	"github.com/porter-data/porter/tabular"
)

// Widget converts between a raw cell value and a native typed value.
// Clean parses inbound data; Render formats outbound data. Both tolerate
// nil. Widgets that resolve related records block on the store, so both
// methods take a context.
type Widget interface {
	Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error)
	Render(ctx context.Context, value interface{}) (interface{}, error)
}

// ValueError reports that a raw value could not be converted
type ValueError struct {
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValueError) Error() string {
	return fmt.Sprintf("%s: %q", e.Message, fmt.Sprint(e.Value))
}

// NewValueError creates a ValueError for a raw value
func NewValueError(value interface{}, format string, args ...interface{}) *ValueError {
	return &ValueError{Value: value, Message: fmt.Sprintf(format, args...)}
}

// isBlank reports whether a raw cell is nil or an empty string
func isBlank(value interface{}) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

// asString renders any raw cell as a string
func asString(value interface{}) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// CharWidget passes strings through, optionally coercing other raw types
type CharWidget struct {
	// CoerceToString converts non-string raw values with fmt.Sprint.
	// When false, non-string values are returned unchanged.
	CoerceToString bool

	// AllowBlank keeps empty strings instead of converting them to nil
	AllowBlank bool
}

// NewCharWidget creates a CharWidget with coercion enabled
func NewCharWidget() *CharWidget {
	return &CharWidget{CoerceToString: true, AllowBlank: true}
}

// Clean returns the cell as a string
func (w *CharWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		if s == "" && !w.AllowBlank {
			return nil, nil
		}
		return s, nil
	}
	if w.CoerceToString {
		return fmt.Sprint(value), nil
	}
	return value, nil
}

// Render returns the value as a string, empty for nil
func (w *CharWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	return asString(value), nil
}

// IntegerWidget parses whole numbers into int64
type IntegerWidget struct{}

// NewIntegerWidget creates an IntegerWidget
func NewIntegerWidget() *IntegerWidget {
	return &IntegerWidget{}
}

// Clean parses the cell into an int64; blank cells become nil
func (w *IntegerWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	if isBlank(value) {
		return nil, nil
	}
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return nil, NewValueError(value, "value is not a whole number")
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, NewValueError(value, "value is not an integer")
		}
		return n, nil
	default:
		return nil, NewValueError(value, "value is not an integer")
	}
}

// Render returns the int64 itself, nil for nil
func (w *IntegerWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	return value, nil
}

// FloatWidget parses real numbers into float64
type FloatWidget struct{}

// NewFloatWidget creates a FloatWidget
func NewFloatWidget() *FloatWidget {
	return &FloatWidget{}
}

// Clean parses the cell into a float64; blank cells become nil
func (w *FloatWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	if isBlank(value) {
		return nil, nil
	}
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, NewValueError(value, "value is not a number")
		}
		return f, nil
	default:
		return nil, NewValueError(value, "value is not a number")
	}
}

// Render returns the float64 itself, nil for nil
func (w *FloatWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	return value, nil
}

// SimpleArrayWidget parses separator-delimited lists of strings
type SimpleArrayWidget struct {
	Separator string
}

// NewSimpleArrayWidget creates a SimpleArrayWidget with a comma separator
func NewSimpleArrayWidget() *SimpleArrayWidget {
	return &SimpleArrayWidget{Separator: ","}
}

// Clean splits the cell on the separator; blank cells become an empty list
func (w *SimpleArrayWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	if isBlank(value) {
		return []string{}, nil
	}
	return strings.Split(asString(value), w.Separator), nil
}

// Render joins the list with the separator
func (w *SimpleArrayWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	if value == nil {
		return "", nil
	}
	switch v := value.(type) {
	case []string:
		return strings.Join(v, w.Separator), nil
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = asString(item)
		}
		return strings.Join(parts, w.Separator), nil
	default:
		return nil, NewValueError(value, "value is not a list")
	}
}

// ForType returns the default widget for a schema field type
func ForType(t *schema.TypeSpec) Widget {
	switch t.BaseType {
	case schema.TypeInt, schema.TypeBigInt:
		return NewIntegerWidget()
	case schema.TypeFloat:
		return NewFloatWidget()
	case schema.TypeDecimal:
		return NewDecimalWidget()
	case schema.TypeBool:
		return NewBooleanWidget()
	case schema.TypeTimestamp:
		return NewDateTimeWidget()
	case schema.TypeDate:
		return NewDateWidget()
	case schema.TypeTime:
		return NewTimeWidget()
	case schema.TypeDuration:
		return NewDurationWidget()
	case schema.TypeJSON:
		return NewJSONWidget()
	default:
		return NewCharWidget()
	}
}

// CoerceToField converts a raw lookup value to the Go type a schema field
// carries, so string cells can match typed columns.
func CoerceToField(f *schema.Field, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	switch f.Type.BaseType {
	case schema.TypeInt, schema.TypeBigInt:
		return NewIntegerWidget().Clean(context.Background(), value, tabular.Row{})
	case schema.TypeFloat:
		return NewFloatWidget().Clean(context.Background(), value, tabular.Row{})
	default:
		return asString(value), nil
	}
}
