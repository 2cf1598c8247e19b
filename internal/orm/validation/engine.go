package validation

import (
	"fmt"
	"regexp"
	"time"

	"github.com/porter-data/porter/internal/orm/schema"
)

// Engine validates records against a model schema
type Engine struct{}

// NewEngine creates a validation engine
func NewEngine() *Engine {
	return &Engine{}
}

// Validate runs all validation layers over the record. Fields named in
// exclude are skipped entirely: they already failed value conversion and
// re-validating them would report the same problem twice.
func (e *Engine) Validate(model *schema.ModelSchema, record map[string]interface{}, exclude map[string]bool) error {
	errs := NewErrors()

	for _, name := range model.FieldNames() {
		if exclude[name] {
			continue
		}
		field := model.Fields[name]
		value, present := record[name]

		if value == nil || !present {
			e.validateNull(field, present, errs)
			continue
		}

		e.validateType(field, value, errs)
		e.validateConstraints(field, value, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateNull checks nullability for absent or nil values
func (e *Engine) validateNull(field *schema.Field, present bool, errs *Errors) {
	if field.Type.Nullable || field.IsAuto() || field.Type.Default != nil {
		return
	}
	if present {
		errs.Add(field.Name, "value cannot be null")
	} else {
		errs.Add(field.Name, "value is required")
	}
}

// validateType checks that the value's Go type is usable for the column type
func (e *Engine) validateType(field *schema.Field, value interface{}, errs *Errors) {
	ok := true
	switch field.Type.BaseType {
	case schema.TypeString, schema.TypeText, schema.TypeUUID:
		_, ok = value.(string)
	case schema.TypeInt, schema.TypeBigInt:
		switch value.(type) {
		case int, int32, int64:
		default:
			ok = false
		}
	case schema.TypeFloat:
		switch value.(type) {
		case float32, float64, int, int64:
		default:
			ok = false
		}
	case schema.TypeBool:
		_, ok = value.(bool)
	case schema.TypeTimestamp, schema.TypeDate, schema.TypeTime:
		_, ok = value.(time.Time)
	case schema.TypeDuration:
		_, ok = value.(time.Duration)
	default:
		// decimal and json values carry library types the engine
		// does not inspect
	}
	if !ok {
		errs.Add(field.Name, fmt.Sprintf("expected %s value, got %T", field.Type.BaseType, value))
	}
}

// validateConstraints checks min/max/pattern constraints
func (e *Engine) validateConstraints(field *schema.Field, value interface{}, errs *Errors) {
	for _, c := range field.Type.Constraints {
		var err error
		switch c.Type {
		case schema.ConstraintMin:
			err = validateMin(c.Value, value)
		case schema.ConstraintMax:
			err = validateMax(c.Value, value)
		case schema.ConstraintPattern:
			err = validatePattern(c.Value, value)
		default:
			continue
		}
		if err != nil {
			if c.ErrorMessage != "" {
				errs.Add(field.Name, c.ErrorMessage)
			} else {
				errs.Add(field.Name, err.Error())
			}
		}
	}

	if field.Type.Length != nil {
		if s, isStr := value.(string); isStr && len(s) > *field.Type.Length {
			errs.Add(field.Name, fmt.Sprintf("value exceeds maximum length %d", *field.Type.Length))
		}
	}
}

// numeric coerces supported numeric types to float64 for comparison
func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// validateMin checks a minimum bound on numbers, or length on strings
func validateMin(bound, value interface{}) error {
	min, ok := numeric(bound)
	if !ok {
		return fmt.Errorf("invalid min constraint value %v", bound)
	}
	if s, isStr := value.(string); isStr {
		if float64(len(s)) < min {
			return fmt.Errorf("value must be at least %v characters", min)
		}
		return nil
	}
	if n, isNum := numeric(value); isNum && n < min {
		return fmt.Errorf("value must be at least %v", min)
	}
	return nil
}

// validateMax checks a maximum bound on numbers, or length on strings
func validateMax(bound, value interface{}) error {
	max, ok := numeric(bound)
	if !ok {
		return fmt.Errorf("invalid max constraint value %v", bound)
	}
	if s, isStr := value.(string); isStr {
		if float64(len(s)) > max {
			return fmt.Errorf("value must be at most %v characters", max)
		}
		return nil
	}
	if n, isNum := numeric(value); isNum && n > max {
		return fmt.Errorf("value must be at most %v", max)
	}
	return nil
}

// validatePattern checks a regexp constraint on strings
func validatePattern(pattern, value interface{}) error {
	s, isStr := value.(string)
	if !isStr {
		return nil
	}

	var re *regexp.Regexp
	switch p := pattern.(type) {
	case *regexp.Regexp:
		re = p
	case string:
		var err error
		re, err = regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
	default:
		return fmt.Errorf("invalid pattern constraint value %v", pattern)
	}

	if !re.MatchString(s) {
		return fmt.Errorf("value does not match pattern %s", re.String())
	}
	return nil
}
