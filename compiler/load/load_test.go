package load

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/metamodel"
)

func TestLoad(t *testing.T) {
	m, err := Load("./testdata/valid/model.yaml")
	require.NoError(t, err)
	assert.Equal(t, "model", m.Package)
	require.Len(t, m.Entities, 3)
	require.Len(t, m.Views, 3)
	assert.Equal(t, []string{"./testdata/valid/model.yaml"}, m.Files)

	mm, err := m.Metamodel()
	require.NoError(t, err)
	doc, ok := mm.Entity("Document")
	require.True(t, ok)
	assert.Equal(t, "document", doc.Table)
	assert.Equal(t, "version", doc.Version.Name)
	owner, ok := doc.Attribute("owner")
	require.True(t, ok)
	assert.Equal(t, metamodel.ManyToOneType, owner.Type)
	assert.False(t, owner.Optional)
	contacts, ok := doc.Attribute("contacts")
	require.True(t, ok)
	assert.Equal(t, "document_contacts", contacts.JoinTable)
	assert.Equal(t, "contact_id", contacts.InverseColumn)
	created, _ := doc.Attribute("created")
	assert.Equal(t, dbms.TypeTime, created.Kind)

	rev, ok := mm.Entity("Revision")
	require.True(t, ok)
	assert.Equal(t, "doc_revision", rev.Table)

	v, ok := m.View("DocumentView")
	require.True(t, ok)
	assert.Equal(t, &Options{Mode: "partial", Lock: "optimistic"}, v.Options())
}

func TestLoadDir(t *testing.T) {
	m, err := Load("./testdata/split")
	require.NoError(t, err)
	assert.Equal(t, "split", m.Package)
	assert.Len(t, m.Files, 2)
	require.Len(t, m.Views, 1)
	mm, err := m.Metamodel()
	require.NoError(t, err)
	p, _ := mm.Entity("Person")
	assert.Equal(t, dbms.TypeUUID, p.ID.Kind)

	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "no model files")
	_, err = Load("./testdata/missing")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadFailure(t *testing.T) {
	_, err := Load("./testdata/failure/model.yaml")
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "PersonView", lerr.Subject)
	assert.Contains(t, lerr.Message, `unknown entity "Human"`)
}

func TestLoadPackageConflict(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("package: a\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("package: b\n"), 0o600))
	_, err := Load(dir)
	assert.ErrorContains(t, err, `package "b" differs from "a"`)
}

func TestParse(t *testing.T) {
	m, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "model", m.Package)

	const entities = `
entities:
  - name: Person
    attributes:
      - {name: id, id: true}
      - {name: name}
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "packages: x\n", "field packages not found"},
		{"bad package", "package: my-model\n", "invalid package name"},
		{"bad kind", "entities:\n  - name: P\n    attributes:\n      - {name: id, id: true, kind: money}\n", "money"},
		{"bad type", "entities:\n  - name: P\n    attributes:\n      - {name: id, id: true}\n      - {name: x, type: one-to-one}\n", `unknown attribute type "one-to-one"`},
		{"missing target", "entities:\n  - name: P\n    attributes:\n      - {name: id, id: true}\n      - {name: x, type: many-to-one}\n", "requires a target"},
		{"unknown target", "entities:\n  - name: P\n    attributes:\n      - {name: id, id: true}\n      - {name: x, type: many-to-one, target: Q}\n", "Q"},
		{"view name", entities + "views:\n  - {name: personView, entity: Person}\n", "invalid view name"},
		{"duplicate view", entities + "views:\n  - {name: V, entity: Person}\n  - {name: V, entity: Person}\n", "duplicate view"},
		{"flush mode", entities + "views:\n  - {name: V, entity: Person, mode: eager}\n", `unknown flush mode "eager"`},
		{"lock mode", entities + "views:\n  - {name: V, entity: Person, lock: pessimistic}\n", `unknown lock mode`},
		{"field name", entities + "views:\n  - name: V\n    entity: Person\n    fields: [{name: id, type: int64}]\n", "invalid field name"},
		{"state field", entities + "views:\n  - name: V\n    entity: Person\n    fields: [{name: State, type: int}]\n", "invalid field name"},
		{"duplicate field", entities + "views:\n  - name: V\n    entity: Person\n    fields: [{name: ID, type: int64}, {name: ID, type: int64}]\n", "duplicate field"},
		{"unknown view", entities + "views:\n  - name: V\n    entity: Person\n    fields: [{name: Friend, type: '*W'}]\n", `unknown view "W"`},
		{"bad qualifier", entities + "views:\n  - name: V\n    entity: Person\n    fields: [{name: ID, type: big.Int}]\n", "unsupported field type"},
		{"cascade", entities + "views:\n  - name: V\n    entity: Person\n    fields: [{name: ID, type: int64, cascade: [merge]}]\n", `unknown cascade "merge"`},
		{"fetch", entities + "views:\n  - name: V\n    entity: Person\n    fields: [{name: ID, type: int64, fetch: eager}]\n", `unknown fetch strategy "eager"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestFieldTag(t *testing.T) {
	tests := []struct {
		field Field
		want  string
	}{
		{Field{Name: "Name"}, ""},
		{Field{Name: "Name", Updatable: true}, ",updatable"},
		{Field{Name: "Owner", Mapping: "owner", Updatable: true, Cascade: []string{"persist", "update"}}, "owner,updatable,cascade=persist+update"},
		{Field{Name: "Revisions", Orphan: true, Fetch: "subselect"}, ",orphan,fetch=subselect"},
		{Field{Name: "Total", Mapping: "coalesce(total, 0)"}, "coalesce(total, 0)"},
		{Field{Name: "Siblings", Mapping: "owner", Correlated: "Document.owner", Attribute: "siblings"}, "owner,correlated=Document.owner,name=siblings"},
	}
	for _, tt := range tests {
		t.Run(tt.field.Name, func(t *testing.T) {
			got, err := tt.field.Tag()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	_, err := (&Field{Correlated: "owner"}).Tag()
	assert.ErrorContains(t, err, "Entity.path")
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want GoType
	}{
		{"int64", GoType{Name: "int64"}},
		{"*string", GoType{Pointer: true, Name: "string"}},
		{"[]byte", GoType{Name: "[]byte"}},
		{"[]int64", GoType{Slice: true, Name: "int64"}},
		{"*time.Time", GoType{Pointer: true, Package: "time", Name: "Time"}},
		{"uuid.UUID", GoType{Package: "github.com/google/uuid", Name: "UUID"}},
		{"*PersonView", GoType{Pointer: true, Name: "PersonView", View: "PersonView"}},
		{"[]*RevisionView", GoType{Slice: true, Pointer: true, Name: "RevisionView", View: "RevisionView"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
			assert.Equal(t, tt.in, got.String())
		})
	}
	for _, in := range []string{"", "map[string]int", "*[]int", "big.Int", "time.time", "personView"} {
		_, err := ParseType(in)
		assert.Error(t, err, in)
	}
}
