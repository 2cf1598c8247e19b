package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bookSchemaYAML = `
name: Book
table: books
natural_key: [name]
fields:
  - name: id
    type: int
    primary: true
    auto: true
  - name: name
    type: string
    length: 100
  - name: price
    type: float
    nullable: true
relationships:
  - name: author
    type: belongs_to
    target: Author
    foreign_key: author_id
    nullable: true
  - name: categories
    type: many_to_many
    target: Category
    join_table: book_categories
    source_key: book_id
    target_key: category_id
`

func TestParseSchema(t *testing.T) {
	m, err := Parse([]byte(bookSchemaYAML))
	require.NoError(t, err)

	assert.Equal(t, "Book", m.Name)
	assert.Equal(t, "books", m.TableName)
	assert.Equal(t, []string{"name"}, m.NaturalKey)
	assert.Equal(t, []string{"id", "name", "price"}, m.FieldNames())

	id := m.Fields["id"]
	assert.Equal(t, TypeInt, id.Type.BaseType)
	assert.True(t, id.IsPrimary())
	assert.True(t, id.IsAuto())

	name := m.Fields["name"]
	assert.Equal(t, TypeString, name.Type.BaseType)
	require.NotNil(t, name.Type.Length)
	assert.Equal(t, 100, *name.Type.Length)
	assert.True(t, name.HasConstraint(ConstraintMax))

	price := m.Fields["price"]
	assert.True(t, price.Type.Nullable)

	author := m.Relationships["author"]
	require.NotNil(t, author)
	assert.Equal(t, RelationBelongsTo, author.Type)
	assert.Equal(t, "Author", author.Target)
	assert.Equal(t, "author_id", author.ForeignKey)

	cats := m.Relationships["categories"]
	require.NotNil(t, cats)
	assert.Equal(t, RelationManyToMany, cats.Type)
	assert.Equal(t, "book_categories", cats.JoinTable)
	assert.Equal(t, "book_id", cats.SourceKey)
	assert.Equal(t, "category_id", cats.TargetKey)
}

func TestParseSchemaDefaultsTableName(t *testing.T) {
	m, err := Parse([]byte("name: AuthorProfile\nfields:\n  - {name: id, type: int, primary: true}\n"))
	require.NoError(t, err)
	assert.Equal(t, "author_profile", m.TableName)
}

func TestParseSchemaErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "fields:\n  - {name: id, type: int}\n", "missing a model name"},
		{"no fields", "name: Book\n", "declares no fields"},
		{"unknown type", "name: Book\nfields:\n  - {name: id, type: blob}\n", "unknown primitive type"},
		{"unnamed field", "name: Book\nfields:\n  - {type: int}\n", "missing a name"},
		{"bad natural key", "name: Book\nnatural_key: [isbn]\nfields:\n  - {name: id, type: int}\n", "natural key field isbn"},
		{
			"belongs_to without fk",
			"name: Book\nfields:\n  - {name: id, type: int}\nrelationships:\n  - {name: author, type: belongs_to, target: Author}\n",
			"requires foreign_key",
		},
		{
			"m2m without join table",
			"name: Book\nfields:\n  - {name: id, type: int}\nrelationships:\n  - {name: categories, type: many_to_many, target: Category}\n",
			"requires join_table",
		},
		{
			"unknown relationship type",
			"name: Book\nfields:\n  - {name: id, type: int}\nrelationships:\n  - {name: author, type: has_one, target: Author}\n",
			"unknown type",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.yml")
	require.NoError(t, os.WriteFile(path, []byte(bookSchemaYAML), 0o600))

	m, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Book", m.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read schema file")
}
