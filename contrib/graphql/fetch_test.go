package graphql

import (
	"context"
	"testing"

	gql "github.com/99designs/gqlgen/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

func TestFetches(t *testing.T) {
	tests := []struct {
		name  string
		query string
		op    string
		field string
		opts  []Option
		want  []string
	}{
		{
			name:  "nested",
			query: `{ documents { id name owner { name age } revisions { number } __typename } }`,
			field: "documents",
			want:  []string{"id", "name", "owner.age", "owner.name", "revisions.number"},
		},
		{
			name: "named operation",
			query: `query A { people { name } }
query B { documents { name } people { age } }`,
			op:    "B",
			field: "people",
			want:  []string{"age"},
		},
		{
			name:  "alias",
			query: `{ all: documents { id } documents(first: 1) { name } }`,
			field: "all",
			want:  []string{"id"},
		},
		{
			name: "fragments",
			query: `query Docs { documents { ...Doc ... on Document { owner { ...Person } } } }
fragment Doc on Document { name revisions { number } }
fragment Person on Person { name }`,
			field: "documents",
			want:  []string{"name", "owner.name", "revisions.number"},
		},
		{
			name: "connection",
			query: `{ documents(first: 10) {
  totalCount
  pageInfo { hasNextPage endCursor }
  edges { cursor node { name contacts { nodes { name } } } }
} }`,
			field: "documents",
			want:  []string{"contacts.name", "name"},
		},
		{
			name:  "without connections",
			query: `{ documents { nodes { name } } }`,
			field: "documents",
			opts:  []Option{WithoutConnections()},
			want:  []string{"nodes.name"},
		},
		{
			name:  "rename",
			query: `{ documents { title owner { displayName } secret } }`,
			field: "documents",
			opts:  []Option{WithRename(map[string]string{"title": "name", "displayName": "name", "secret": ""})},
			want:  []string{"name", "owner.name"},
		},
		{
			name:  "empty object",
			query: `{ documents { owner { __typename } } }`,
			field: "documents",
			want:  []string{"owner"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fetches(tt.query, tt.op, tt.field, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchesErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		op    string
		field string
		want  string
	}{
		{"syntax", `{ documents { name }`, "", "documents", "graphql:"},
		{"ambiguous operation", `query A { a { b } } query B { a { b } }`, "", "a", "operation name is required"},
		{"unknown operation", `query A { a { b } }`, "C", "a", `unknown operation "C"`},
		{"missing field", `{ people { name } }`, "", "documents", `field "documents" is not selected`},
		{"unknown fragment", `{ documents { ...Doc } }`, "", "documents", `unknown fragment "Doc"`},
		{"cycle", `{ documents { ...A } } fragment A on D { owner { ...A } }`, "", "documents", "spreads itself"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fetches(tt.query, tt.op, tt.field)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestFetchOption(t *testing.T) {
	opt, err := FetchOption(`{ documents { name } }`, "", "documents")
	require.NoError(t, err)
	assert.NotNil(t, opt)
	_, err = FetchOption(`{ documents { name } }`, "", "people")
	assert.Error(t, err)
}

var documentSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: `
type Query { documents: Documents! }
type Documents {
  name: String
  owner: Person
  revisions: [Revision!]
  contacts: [Person!]
  edges: [Edge!]
  totalCount: Int
}
type Edge { node: Document }
type Document { version: Int }
type Person { name: String age: Int }
type Revision { number: Int }
`})

// resolverContext returns the context gqlgen passes to the resolver of the
// top level field.
func resolverContext(t *testing.T, query string, vars map[string]any, field string) context.Context {
	t.Helper()
	doc, errs := gqlparser.LoadQuery(documentSchema, query)
	require.Empty(t, errs)
	op := doc.Operations[0]
	var root *ast.Field
	for _, s := range op.SelectionSet {
		if f, ok := s.(*ast.Field); ok && f.Alias == field {
			root = f
		}
	}
	require.NotNil(t, root)
	ctx := gql.WithOperationContext(context.Background(), &gql.OperationContext{
		RawQuery:  query,
		Variables: vars,
		Doc:       doc,
		Operation: op,
	})
	return gql.WithFieldContext(ctx, &gql.FieldContext{
		Field: gql.CollectedField{Field: root, Selections: root.SelectionSet},
	})
}

func TestFetchesFromContext(t *testing.T) {
	query := `query Docs($owner: Boolean!) {
  documents {
    name
    owner @include(if: $owner) { name }
    owner { age }
    revisions @skip(if: true) { number }
    ...Doc
    edges { node { version } }
    totalCount
  }
}
fragment Doc on Documents { contacts { name } }`

	paths, err := FetchesFromContext(resolverContext(t, query, map[string]any{"owner": true}, "documents"))
	require.NoError(t, err)
	assert.Equal(t, []string{"contacts.name", "name", "owner.age", "owner.name", "version"}, paths)

	paths, err = FetchesFromContext(resolverContext(t, query, map[string]any{"owner": false}, "documents"),
		WithRename(map[string]string{"contacts": "", "name": "title"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"owner.age", "title", "version"}, paths)

	_, err = FetchesFromContext(context.Background())
	assert.ErrorContains(t, err, "field resolver")
}
