// Package schema describes the shape of an importable model: its fields,
// their primitive types and constraints, its relationships, and optional
// natural-key identity. Resources introspect a ModelSchema to auto-generate
// their field mappings; stores use it to build and scan queries.
package schema

import "fmt"

// PrimitiveType represents the built-in column types a model field may have
type PrimitiveType int

const (
	// Text types
	TypeString PrimitiveType = iota
	TypeText

	// Numeric types
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDecimal

	// Boolean
	TypeBool

	// Time types
	TypeTimestamp
	TypeDate
	TypeTime
	TypeDuration

	// Identifiers
	TypeUUID

	// Structured
	TypeJSON
)

// String returns the string representation of the primitive type
func (p PrimitiveType) String() string {
	switch p {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeDuration:
		return "duration"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParsePrimitiveType converts a string to a PrimitiveType
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "int":
		return TypeInt, nil
	case "bigint":
		return TypeBigInt, nil
	case "float":
		return TypeFloat, nil
	case "decimal":
		return TypeDecimal, nil
	case "bool":
		return TypeBool, nil
	case "timestamp":
		return TypeTimestamp, nil
	case "date":
		return TypeDate, nil
	case "time":
		return TypeTime, nil
	case "duration":
		return TypeDuration, nil
	case "uuid":
		return TypeUUID, nil
	case "json":
		return TypeJSON, nil
	default:
		return 0, fmt.Errorf("unknown primitive type: %s", s)
	}
}

// TypeSpec is a complete type specification with nullability and constraints
type TypeSpec struct {
	BaseType PrimitiveType
	Nullable bool
	Default  interface{}

	// Type parameters (e.g., string(50), decimal(10,2))
	Length    *int
	Precision *int
	Scale     *int

	Constraints []Constraint
}

// String returns a string representation of the TypeSpec
func (t *TypeSpec) String() string {
	s := t.BaseType.String()
	if t.Length != nil {
		s = fmt.Sprintf("%s(%d)", s, *t.Length)
	}
	if t.Precision != nil && t.Scale != nil {
		s = fmt.Sprintf("%s(%d,%d)", s, *t.Precision, *t.Scale)
	}
	if t.Nullable {
		s += "?"
	} else {
		s += "!"
	}
	return s
}

// IsNumeric returns true if the type is a numeric type
func (t *TypeSpec) IsNumeric() bool {
	return t.BaseType == TypeInt ||
		t.BaseType == TypeBigInt ||
		t.BaseType == TypeFloat ||
		t.BaseType == TypeDecimal
}

// IsTemporal returns true if the type is a date/time type
func (t *TypeSpec) IsTemporal() bool {
	return t.BaseType == TypeTimestamp ||
		t.BaseType == TypeDate ||
		t.BaseType == TypeTime
}

// ConstraintType represents the type of a field constraint
type ConstraintType int

const (
	ConstraintMin ConstraintType = iota
	ConstraintMax
	ConstraintPattern
	ConstraintUnique
	ConstraintPrimary
	ConstraintAuto
)

// String returns the string representation of the constraint type
func (c ConstraintType) String() string {
	switch c {
	case ConstraintMin:
		return "min"
	case ConstraintMax:
		return "max"
	case ConstraintPattern:
		return "pattern"
	case ConstraintUnique:
		return "unique"
	case ConstraintPrimary:
		return "primary"
	case ConstraintAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// Constraint represents a single field constraint
type Constraint struct {
	Type         ConstraintType
	Value        interface{}
	ErrorMessage string
}

// Field represents one column of a model schema
type Field struct {
	Name string
	Type *TypeSpec
}

// HasConstraint returns true if the field carries a constraint of the given type
func (f *Field) HasConstraint(ct ConstraintType) bool {
	for _, c := range f.Type.Constraints {
		if c.Type == ct {
			return true
		}
	}
	return false
}

// IsPrimary returns true if the field is the primary key
func (f *Field) IsPrimary() bool {
	return f.HasConstraint(ConstraintPrimary)
}

// IsAuto returns true if the field is populated automatically on insert
func (f *Field) IsAuto() bool {
	return f.HasConstraint(ConstraintAuto)
}

// RelationType represents the kind of relationship between two models
type RelationType int

const (
	RelationBelongsTo RelationType = iota
	RelationManyToMany
)

// String returns the string representation of the relationship type
func (r RelationType) String() string {
	switch r {
	case RelationBelongsTo:
		return "belongs_to"
	case RelationManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// Relationship represents a relationship from one model to another
type Relationship struct {
	Type       RelationType
	Target     string // target model name
	FieldName  string // accessor name on the owning model
	ForeignKey string // belongs_to: local FK column
	Nullable   bool

	// many_to_many join table configuration
	JoinTable string
	SourceKey string // join-table column referencing the owning model
	TargetKey string // join-table column referencing the target model
}

// ModelSchema is the complete schema for one importable model
type ModelSchema struct {
	Name      string
	TableName string

	Fields        map[string]*Field
	Relationships map[string]*Relationship

	// NaturalKey lists the fields forming an alternate composite identity,
	// in order. Empty when the model has no natural key.
	NaturalKey []string

	fieldOrder []string
}

// NewModelSchema creates an empty ModelSchema with a derived table name
func NewModelSchema(name string) *ModelSchema {
	return &ModelSchema{
		Name:          name,
		TableName:     toSnakeCase(name),
		Fields:        make(map[string]*Field),
		Relationships: make(map[string]*Relationship),
	}
}

// AddField appends a field, preserving declaration order.
// Re-adding a field of the same name replaces it in place.
func (m *ModelSchema) AddField(f *Field) *ModelSchema {
	if _, exists := m.Fields[f.Name]; !exists {
		m.fieldOrder = append(m.fieldOrder, f.Name)
	}
	m.Fields[f.Name] = f
	return m
}

// AddRelationship registers a relationship under its accessor name
func (m *ModelSchema) AddRelationship(rel *Relationship) *ModelSchema {
	m.Relationships[rel.FieldName] = rel
	return m
}

// FieldNames returns field names in declaration order
func (m *ModelSchema) FieldNames() []string {
	names := make([]string, len(m.fieldOrder))
	copy(names, m.fieldOrder)
	return names
}

// HasField returns true if the model has a field with the given name
func (m *ModelSchema) HasField(name string) bool {
	_, exists := m.Fields[name]
	return exists
}

// HasRelationship returns true if the model has a relationship with the given name
func (m *ModelSchema) HasRelationship(name string) bool {
	_, exists := m.Relationships[name]
	return exists
}

// PrimaryKey returns the primary key field
func (m *ModelSchema) PrimaryKey() (*Field, error) {
	for _, name := range m.fieldOrder {
		if m.Fields[name].IsPrimary() {
			return m.Fields[name], nil
		}
	}
	return nil, fmt.Errorf("model %s has no primary key", m.Name)
}

// HasNaturalKey returns true if the model exposes a natural-key identity
func (m *ModelSchema) HasNaturalKey() bool {
	return len(m.NaturalKey) > 0
}

// toSnakeCase converts a string to snake_case
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}
