package widget

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/porter-data/porter/tabular"
)

// DecimalWidget parses exact decimal numbers. Values round-trip without the
// binary-float drift a FloatWidget would introduce.
type DecimalWidget struct{}

// NewDecimalWidget creates a DecimalWidget
func NewDecimalWidget() *DecimalWidget {
	return &DecimalWidget{}
}

// Clean parses the cell into a decimal.Decimal; blank cells become nil
func (w *DecimalWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	if isBlank(value) {
		return nil, nil
	}
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, NewValueError(value, "value is not a decimal")
		}
		return d, nil
	default:
		return nil, NewValueError(value, "value is not a decimal")
	}
}

// Render formats the decimal as a string, empty for nil
func (w *DecimalWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	if value == nil {
		return "", nil
	}
	d, ok := value.(decimal.Decimal)
	if !ok {
		return nil, NewValueError(value, "value is not a decimal")
	}
	return d.String(), nil
}

// BooleanWidget parses configurable truthy/falsy/null token sets
type BooleanWidget struct {
	TrueValues  []string
	FalseValues []string
	NullValues  []string
}

// NewBooleanWidget creates a BooleanWidget with the default token sets
func NewBooleanWidget() *BooleanWidget {
	return &BooleanWidget{
		TrueValues:  []string{"1", "true", "TRUE", "True", "yes", "YES"},
		FalseValues: []string{"0", "false", "FALSE", "False", "no", "NO"},
		NullValues:  []string{"", "null", "NULL", "none", "NONE", "None"},
	}
}

// Clean maps the cell onto true, false, or nil
func (w *BooleanWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if b, ok := value.(bool); ok {
		return b, nil
	}

	s := asString(value)
	for _, t := range w.TrueValues {
		if s == t {
			return true, nil
		}
	}
	for _, f := range w.FalseValues {
		if s == f {
			return false, nil
		}
	}
	for _, n := range w.NullValues {
		if s == n {
			return nil, nil
		}
	}
	return nil, NewValueError(value, "value is not a boolean")
}

// Render formats true as "1", false as "0", and nil as ""
func (w *BooleanWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	if value == nil {
		return "", nil
	}
	b, ok := value.(bool)
	if !ok {
		return nil, NewValueError(value, "value is not a boolean")
	}
	if b {
		return "1", nil
	}
	return "0", nil
}
