package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// schemaFile is the YAML document shape for a model schema
type schemaFile struct {
	Name          string             `yaml:"name"`
	Table         string             `yaml:"table"`
	NaturalKey    []string           `yaml:"natural_key"`
	Fields        []fieldFile        `yaml:"fields"`
	Relationships []relationshipFile `yaml:"relationships"`
}

type fieldFile struct {
	Name     string      `yaml:"name"`
	Type     string      `yaml:"type"`
	Nullable bool        `yaml:"nullable"`
	Primary  bool        `yaml:"primary"`
	Auto     bool        `yaml:"auto"`
	Unique   bool        `yaml:"unique"`
	Default  interface{} `yaml:"default"`
	Length   *int        `yaml:"length"`
}

type relationshipFile struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Target     string `yaml:"target"`
	ForeignKey string `yaml:"foreign_key"`
	Nullable   bool   `yaml:"nullable"`
	JoinTable  string `yaml:"join_table"`
	SourceKey  string `yaml:"source_key"`
	TargetKey  string `yaml:"target_key"`
}

// LoadFile reads a model schema from a YAML file
func LoadFile(path string) (*ModelSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}

// Parse builds a ModelSchema from a YAML document
func Parse(data []byte) (*ModelSchema, error) {
	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if sf.Name == "" {
		return nil, fmt.Errorf("schema is missing a model name")
	}
	if len(sf.Fields) == 0 {
		return nil, fmt.Errorf("model %s declares no fields", sf.Name)
	}

	m := NewModelSchema(sf.Name)
	if sf.Table != "" {
		m.TableName = sf.Table
	}
	m.NaturalKey = sf.NaturalKey

	for _, ff := range sf.Fields {
		f, err := buildSchemaField(ff)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", sf.Name, err)
		}
		m.AddField(f)
	}

	for _, rf := range sf.Relationships {
		rel, err := buildSchemaRelationship(rf)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", sf.Name, err)
		}
		m.AddRelationship(rel)
	}

	for _, nk := range m.NaturalKey {
		if !m.HasField(nk) {
			return nil, fmt.Errorf("model %s: natural key field %s does not exist", sf.Name, nk)
		}
	}
	return m, nil
}

func buildSchemaField(ff fieldFile) (*Field, error) {
	if ff.Name == "" {
		return nil, fmt.Errorf("field is missing a name")
	}
	pt, err := ParsePrimitiveType(ff.Type)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", ff.Name, err)
	}

	spec := &TypeSpec{
		BaseType: pt,
		Nullable: ff.Nullable,
		Default:  ff.Default,
		Length:   ff.Length,
	}
	if ff.Primary {
		spec.Constraints = append(spec.Constraints, Constraint{Type: ConstraintPrimary})
	}
	if ff.Auto {
		spec.Constraints = append(spec.Constraints, Constraint{Type: ConstraintAuto})
	}
	if ff.Unique {
		spec.Constraints = append(spec.Constraints, Constraint{Type: ConstraintUnique})
	}
	if ff.Length != nil {
		spec.Constraints = append(spec.Constraints, Constraint{Type: ConstraintMax, Value: *ff.Length})
	}
	return &Field{Name: ff.Name, Type: spec}, nil
}

func buildSchemaRelationship(rf relationshipFile) (*Relationship, error) {
	if rf.Name == "" {
		return nil, fmt.Errorf("relationship is missing a name")
	}
	if rf.Target == "" {
		return nil, fmt.Errorf("relationship %s is missing a target model", rf.Name)
	}

	rel := &Relationship{
		FieldName: rf.Name,
		Target:    rf.Target,
		Nullable:  rf.Nullable,
	}
	switch rf.Type {
	case "belongs_to":
		rel.Type = RelationBelongsTo
		if rf.ForeignKey == "" {
			return nil, fmt.Errorf("relationship %s: belongs_to requires foreign_key", rf.Name)
		}
		rel.ForeignKey = rf.ForeignKey
	case "many_to_many":
		rel.Type = RelationManyToMany
		if rf.JoinTable == "" || rf.SourceKey == "" || rf.TargetKey == "" {
			return nil, fmt.Errorf("relationship %s: many_to_many requires join_table, source_key and target_key", rf.Name)
		}
		rel.JoinTable = rf.JoinTable
		rel.SourceKey = rf.SourceKey
		rel.TargetKey = rf.TargetKey
	default:
		return nil, fmt.Errorf("relationship %s: unknown type %q", rf.Name, rf.Type)
	}
	return rel, nil
}
