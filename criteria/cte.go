package criteria

import (
	"fmt"
	"strings"
)

// cte is a named statement of a WITH clause.
type cte struct {
	name    string
	columns []string
	body    *Select
	// step is the recursive part of a recursive CTE.
	step      *Select
	recursive bool
	all       bool
}

// With adds a CTE named name whose columns are the select items of body.
func (s *Select) With(name string, columns []string, body *Select) *Select {
	if len(columns) != len(body.items) {
		s.AddError(fmt.Errorf("criteria: CTE %s has %d columns and %d select items", name, len(columns), len(body.items)))
	}
	s.ctes = append(s.ctes, &cte{name: name, columns: columns, body: body})
	return s
}

// WithRecursive adds a recursive CTE. The step statement selects from the
// CTE itself and is joined to base with UNION, or UNION ALL if all is set.
func (s *Select) WithRecursive(name string, columns []string, base, step *Select, all bool) *Select {
	if len(columns) != len(base.items) || len(columns) != len(step.items) {
		s.AddError(fmt.Errorf("criteria: recursive CTE %s has %d columns and select items of %d and %d", name, len(columns), len(base.items), len(step.items)))
	}
	s.ctes = append(s.ctes, &cte{name: name, columns: columns, body: base, step: step, recursive: true, all: all})
	return s
}

// inlineCTE reports whether CTEs are rendered as derived tables.
func (f *Factory) inlineCTE() bool {
	return !f.dialect.SupportsWithClause && f.inlineCTEs
}

// buildWith registers the CTEs in the scope of r and renders the WITH
// clause, followed by a space. The clause is empty when the CTEs are inlined.
func buildWith(r *renderer, ctes []*cte) (*Writer, error) {
	w := r.writer()
	if len(ctes) == 0 {
		return w, nil
	}
	d := r.f.dialect
	for _, c := range ctes {
		if _, ok := r.scope.ctes[c.name]; ok {
			return nil, fmt.Errorf("criteria: duplicate CTE %q", c.name)
		}
		r.scope.ctes[c.name] = c
	}
	if r.f.inlineCTE() {
		return w, nil
	}
	if !d.SupportsWithClause {
		return nil, d.Unsupported("with clause")
	}
	recursive := false
	for _, c := range ctes {
		recursive = recursive || c.recursive
	}
	w.WriteString(d.WithKeyword(recursive)).WriteString(" ")
	for i, c := range ctes {
		if i > 0 {
			w.WriteString(", ")
		}
		w.WriteString(c.name).WriteString("(").WriteString(strings.Join(c.columns, ", ")).WriteString(") as ")
		c.writeBody(r, w, false)
	}
	w.WriteString(" ")
	return w, w.err
}

// writeBody writes the parenthesized statement of the CTE. Inlined bodies
// alias their select items with the CTE columns.
func (c *cte) writeBody(r *renderer, w *Writer, inline bool) {
	body, step := c.body, c.step
	if inline {
		body = body.aliased(c.columns)
	}
	if step == nil {
		w.Subquery(body)
		return
	}
	q, args, err := body.build(r.child())
	if err != nil {
		w.AddError(err)
		return
	}
	sq, sargs, err := step.build(r.child())
	if err != nil {
		w.AddError(err)
		return
	}
	op := "\nunion\n"
	if c.all {
		op = "\nunion all\n"
	}
	w.WriteString("(")
	w.b.Append(q, args...)
	w.WriteString(op)
	w.b.Append(sq, sargs...)
	w.WriteString(")")
}

// writeRef writes a FROM reference to the CTE, inlining its statement when
// the dialect has no WITH clause.
func (c *cte) writeRef(r *renderer, w *Writer, alias string) error {
	if !r.f.inlineCTE() {
		w.WriteString(c.name).WriteString(" ").WriteString(alias)
		return nil
	}
	if c.recursive {
		return r.f.dialect.Unsupported("recursive with clause")
	}
	c.writeBody(r, w, true)
	w.WriteString(" ").WriteString(alias)
	return w.err
}

// aliased returns a copy of s whose select items are aliased with columns.
func (s *Select) aliased(columns []string) *Select {
	c := s.Clone()
	for i := range c.items {
		if i < len(columns) {
			c.items[i].alias = columns[i]
		}
	}
	return c
}
