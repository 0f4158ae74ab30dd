package graphql

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	gql "github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/syssam/blaze/view"
)

// PaginationNames are the field names of Relay connections.
type PaginationNames struct {
	Edges      string
	Node       string
	Nodes      string
	PageInfo   string
	TotalCount string
	Cursor     string
}

// DefaultPagination holds the field names of the Relay specification.
var DefaultPagination = PaginationNames{
	Edges:      "edges",
	Node:       "node",
	Nodes:      "nodes",
	PageInfo:   "pageInfo",
	TotalCount: "totalCount",
	Cursor:     "cursor",
}

// Option configures Fetches.
type Option func(*collector)

// WithPagination sets the field names of connections.
func WithPagination(names PaginationNames) Option {
	return func(c *collector) {
		c.names = names
	}
}

// WithoutConnections treats edges and nodes as view attributes.
func WithoutConnections() Option {
	return func(c *collector) {
		c.connections = false
	}
}

// WithRename maps GraphQL field names to view attribute names. Fields
// renamed to the empty string are dropped.
func WithRename(fields map[string]string) Option {
	return func(c *collector) {
		c.rename = fields
	}
}

// Fetches parses query and returns the sorted attribute paths selected
// below the root field of the operation. The field is matched by its alias
// first and then by its name. The operation name may be empty when the
// document has a single operation.
func Fetches(query, operationName, field string, opts ...Option) ([]string, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "query", Input: query})
	if err != nil {
		return nil, fmt.Errorf("graphql: %w", err)
	}
	op := doc.Operations.ForName(operationName)
	if op == nil {
		if operationName == "" {
			return nil, fmt.Errorf("graphql: document has %d operations, an operation name is required", len(doc.Operations))
		}
		return nil, fmt.Errorf("graphql: unknown operation %q", operationName)
	}
	c := newCollector(doc, opts)
	root, err := c.root(op.SelectionSet, field)
	if err != nil {
		return nil, err
	}
	if err := c.collect(root.SelectionSet, "", true); err != nil {
		return nil, err
	}
	return c.sorted(), nil
}

// FetchesFromContext returns the sorted attribute paths selected below the
// field a gqlgen resolver is called for. Fields excluded by @skip and
// @include are left out.
//
//	func (r *queryResolver) Documents(ctx context.Context) ([]*DocumentView, error) {
//		paths, err := graphql.FetchesFromContext(ctx)
//		if err != nil {
//			return nil, err
//		}
//		return view.Find[*DocumentView](ctx, r.views, view.Fetch(paths...))
//	}
func FetchesFromContext(ctx context.Context, opts ...Option) ([]string, error) {
	if !gql.HasOperationContext(ctx) || gql.GetFieldContext(ctx) == nil {
		return nil, errors.New("graphql: context of a field resolver required")
	}
	oc := gql.GetOperationContext(ctx)
	c := newCollector(oc.Doc, opts)
	c.op = oc
	for _, f := range gql.CollectFieldsCtx(ctx, nil) {
		if err := c.field(merged(f), "", true); err != nil {
			return nil, err
		}
	}
	return c.sorted(), nil
}

// FetchOption returns a view query option loading the selected paths.
func FetchOption(query, operationName, field string, opts ...Option) (view.QueryOption, error) {
	paths, err := Fetches(query, operationName, field, opts...)
	if err != nil {
		return nil, err
	}
	return view.Fetch(paths...), nil
}

type collector struct {
	doc *ast.QueryDocument
	// op evaluates fragments and directives when set.
	op          *gql.OperationContext
	names       PaginationNames
	connections bool
	rename      map[string]string
	paths       map[string]struct{}
	leaves      int
	visiting    map[string]bool
	depth       int
}

// maxDepth bounds the nesting of selections. It stops fragment cycles
// spanning nested fields when fragments are expanded by gqlgen.
const maxDepth = 64

func newCollector(doc *ast.QueryDocument, opts []Option) *collector {
	c := &collector{
		doc:         doc,
		names:       DefaultPagination,
		connections: true,
		paths:       make(map[string]struct{}),
		visiting:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *collector) sorted() []string {
	paths := make([]string, 0, len(c.paths))
	for p := range c.paths {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// root finds the field in the top level selections.
func (c *collector) root(set ast.SelectionSet, field string) (*ast.Field, error) {
	var byName *ast.Field
	err := c.walk(set, func(f *ast.Field) error {
		switch {
		case f.Alias == field:
			if byName == nil || byName.Alias != field {
				byName = f
			}
		case f.Name == field && byName == nil:
			byName = f
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if byName == nil {
		return nil, fmt.Errorf("graphql: field %q is not selected", field)
	}
	return byName, nil
}

// walk calls fn for the fields of set, expanding fragments.
func (c *collector) walk(set ast.SelectionSet, fn func(*ast.Field) error) error {
	if c.op != nil {
		for _, f := range gql.CollectFields(c.op, set, nil) {
			if err := fn(merged(f)); err != nil {
				return err
			}
		}
		return nil
	}
	for _, s := range set {
		switch s := s.(type) {
		case *ast.Field:
			if err := fn(s); err != nil {
				return err
			}
		case *ast.InlineFragment:
			if err := c.walk(s.SelectionSet, fn); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			def := c.doc.Fragments.ForName(s.Name)
			if def == nil {
				return fmt.Errorf("graphql: unknown fragment %q", s.Name)
			}
			if c.visiting[s.Name] {
				return fmt.Errorf("graphql: fragment %q spreads itself", s.Name)
			}
			c.visiting[s.Name] = true
			err := c.walk(def.SelectionSet, fn)
			delete(c.visiting, s.Name)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// collect adds the leaf paths of set below prefix. Connection fields are
// unwrapped on every level when top is set. An object selecting no
// attribute is a path itself.
func (c *collector) collect(set ast.SelectionSet, prefix string, top bool) error {
	if c.depth++; c.depth > maxDepth {
		return fmt.Errorf("graphql: selections below %q nested more than %d levels", prefix, maxDepth)
	}
	defer func() { c.depth-- }()
	return c.walk(set, func(f *ast.Field) error {
		return c.field(f, prefix, top)
	})
}

func (c *collector) field(f *ast.Field, prefix string, top bool) error {
	if strings.HasPrefix(f.Name, "__") {
		return nil
	}
	if top && c.connections {
		switch f.Name {
		case c.names.PageInfo, c.names.TotalCount:
			return nil
		case c.names.Nodes:
			return c.collect(f.SelectionSet, prefix, false)
		case c.names.Edges:
			return c.walk(f.SelectionSet, func(e *ast.Field) error {
				if e.Name == c.names.Node {
					return c.collect(e.SelectionSet, prefix, false)
				}
				return nil
			})
		}
	}
	name := f.Name
	if r, ok := c.rename[name]; ok {
		name = r
	}
	if name == "" {
		return nil
	}
	path := name
	if prefix != "" {
		path = prefix + "." + name
	}
	n := c.leaves
	if len(f.SelectionSet) > 0 {
		if err := c.collect(f.SelectionSet, path, true); err != nil {
			return err
		}
	}
	if c.leaves == n {
		c.paths[path] = struct{}{}
		c.leaves++
	}
	return nil
}

// merged returns the field with the selections of every occurrence of its
// response key.
func merged(f gql.CollectedField) *ast.Field {
	fd := *f.Field
	fd.SelectionSet = f.Selections
	return &fd
}
