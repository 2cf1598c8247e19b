package widget

import (
	"context"
	"encoding/json"

	"github.com/porter-data/porter/tabular"
)

// JSONWidget parses JSON blobs stored in a single cell
type JSONWidget struct{}

// NewJSONWidget creates a JSONWidget
func NewJSONWidget() *JSONWidget {
	return &JSONWidget{}
}

// Clean parses the cell as JSON; blank cells become nil. Values that are
// already structured (decoded upstream by a JSON or YAML format adapter)
// pass through unchanged.
func (w *JSONWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	if isBlank(value) {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return value, nil
	}

	var out interface{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, NewValueError(value, "value is not valid JSON")
	}
	return out, nil
}

// Render serializes the value as a compact JSON string, empty for nil
func (w *JSONWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	if value == nil {
		return "", nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, NewValueError(value, "value cannot be serialized as JSON")
	}
	return string(data), nil
}
