package criteria

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/dialect/sql/sqltext"
	"github.com/syssam/blaze/metamodel"
)

// Writer renders predicates. Every statement is rendered twice, once into
// its shape, which keeps expressions as written and serves as cache key, and
// once into dialect SQL. Both passes must write the arguments in the same
// order.
type Writer struct {
	b   sql.Builder
	r   *renderer
	err error
}

func (r *renderer) writer() *Writer { return &Writer{r: r} }

// WriteString writes raw SQL text.
func (w *Writer) WriteString(s string) *Writer {
	w.b.WriteString(s)
	return w
}

// Expr writes an expression, resolving its paths and functions when
// rendering SQL.
func (w *Writer) Expr(expr string) *Writer {
	s, err := w.r.expr(expr)
	if err != nil {
		w.AddError(err)
		return w
	}
	w.b.WriteString(s)
	return w
}

// Arg writes a placeholder for v.
func (w *Writer) Arg(v any) *Writer {
	w.b.Arg(v)
	return w
}

// Args writes a comma separated list of placeholders.
func (w *Writer) Args(vs ...any) *Writer {
	w.b.Args(vs...)
	return w
}

// Subquery writes s in parentheses. Paths of enclosing statements can be
// referenced from s.
func (w *Writer) Subquery(s Statement) *Writer {
	q, args, err := s.build(w.r.child())
	if err != nil {
		w.AddError(err)
		return w
	}
	w.b.WriteByte('(').Append(q, args...).WriteByte(')')
	return w
}

// quantified writes s as the operand of IN, ANY or ALL. Limited subqueries
// are rewritten for databases that reject LIMIT there.
func (w *Writer) quantified(s Statement) *Writer {
	sel, ok := s.(*Select)
	if !ok || !w.r.concrete() || sel.max == 0 && sel.first == 0 {
		return w.Subquery(s)
	}
	unbounded := sel.Clone()
	unbounded.first, unbounded.max = 0, 0
	q, args, err := unbounded.build(w.r.child())
	if err != nil {
		w.AddError(err)
		return w
	}
	bounds := []string{"(" + q + ")", strconv.Itoa(sel.max)}
	if sel.first > 0 {
		bounds = append(bounds, strconv.Itoa(sel.first))
	}
	if sel.max == 0 {
		bounds[1] = ""
	}
	q, err = w.r.f.registry.Render("limit", bounds...)
	if err != nil {
		w.AddError(err)
		return w
	}
	w.b.Append(q, args...)
	return w
}

// aggregate writes fn(sub, 'field', ...) through the function registry.
func (w *Writer) aggregate(fn string, sub Statement, fields []string) *Writer {
	q, args, err := sub.build(w.r.child())
	if err != nil {
		w.AddError(err)
		return w
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = "'" + f + "'"
	}
	if w.r.shape {
		w.b.Append(fn+"(("+q+"), "+strings.Join(quoted, ", ")+")", args...)
		return w
	}
	q, err = w.r.f.registry.Render(fn, append([]string{"(" + q + ")"}, quoted...)...)
	if err != nil {
		w.AddError(err)
		return w
	}
	w.b.Append(q, args...)
	return w
}

// AddError records an error of the predicate.
func (w *Writer) AddError(err error) *Writer {
	if w.err == nil {
		w.err = err
	}
	return w
}

// Err returns the first error recorded.
func (w *Writer) Err() error { return w.err }

// String returns the text written so far.
func (w *Writer) String() string { return w.b.String() }

func (w *Writer) join(o *Writer) {
	w.b.Join(&o.b)
	w.AddError(o.err)
}

// renderer renders one statement, either into its shape or into SQL.
type renderer struct {
	f     *Factory
	scope *scope
	shape bool
}

func (r *renderer) concrete() bool { return !r.shape }

// child returns a renderer for a nested statement.
func (r *renderer) child() *renderer {
	return &renderer{f: r.f, scope: newScope(r.scope), shape: r.shape}
}

func shapeRenderer(f *Factory) *renderer {
	return &renderer{f: f, scope: newScope(nil), shape: true}
}

func sqlRenderer(f *Factory) *renderer {
	return &renderer{f: f, scope: newScope(nil)}
}

// scope holds the aliases of one statement.
type scope struct {
	parent  *scope
	sources map[string]*source
	ctes    map[string]*cte
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, sources: make(map[string]*source), ctes: make(map[string]*cte)}
}

func (s *scope) lookup(alias string) *source {
	for ; s != nil; s = s.parent {
		if src, ok := s.sources[alias]; ok {
			return src
		}
	}
	return nil
}

func (s *scope) cte(name string) *cte {
	for ; s != nil; s = s.parent {
		if c, ok := s.ctes[name]; ok {
			return c
		}
	}
	return nil
}

func (s *scope) add(src *source) error {
	if _, ok := s.sources[src.alias]; ok {
		return fmt.Errorf("criteria: duplicate alias %q", src.alias)
	}
	s.sources[src.alias] = src
	return nil
}

// source is an aliased entity, CTE or derived table.
type source struct {
	alias  string
	entity *metamodel.Entity
	// columns of CTEs and derived tables, nil when unknown.
	columns []string
	// mapping maps the attribute paths of a collection table to columns.
	mapping map[string]string
	// index is the list index column of an indexed collection join.
	index string
	// qualifier is the rendered name of the alias. DML statements qualify
	// columns with the table name.
	qualifier string
	// root is the FROM item that the joins of the source are attached to.
	root *source
	// joins are the implicit joins rendered after the explicit joins of a
	// root, keyed by "alias.attribute" in joined.
	joins  []string
	joined map[string]*source
}

func newRoot(alias string, e *metamodel.Entity, columns []string) *source {
	src := &source{alias: alias, entity: e, columns: columns, qualifier: alias, joined: make(map[string]*source)}
	src.root = src
	return src
}

func (r *renderer) expr(s string) (string, error) {
	if !r.concrete() {
		return s, nil
	}
	return r.translate(s)
}

// translate resolves the paths of expr and expands its function calls.
func (r *renderer) translate(expr string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			j := sqltext.SkipQuoted(expr, i)
			sb.WriteString(expr[i:j])
			i = j
		case c >= '0' && c <= '9':
			j := i
			for j < len(expr) && (sqltext.IsIdentChar(expr[j]) || expr[j] == '.') {
				j++
			}
			sb.WriteString(expr[i:j])
			i = j
		case sqltext.IsIdentChar(c):
			j := i
			for j < len(expr) && (sqltext.IsIdentChar(expr[j]) || expr[j] == '.' && j+1 < len(expr) && sqltext.IsIdentChar(expr[j+1])) {
				j++
			}
			token := expr[i:j]
			k := j
			for k < len(expr) && expr[k] == ' ' {
				k++
			}
			if k < len(expr) && expr[k] == '(' {
				var fn func(string) (string, error)
				switch {
				case strings.EqualFold(token, "size"):
					fn = r.size
				case strings.EqualFold(token, "index"):
					fn = r.index
				default:
					sb.WriteString(token)
					i = j
					continue
				}
				end := sqltext.MatchingParen(expr, k)
				if end < 0 {
					return "", fmt.Errorf("criteria: unbalanced parentheses in %q", expr)
				}
				s, err := fn(strings.TrimSpace(expr[k+1 : end]))
				if err != nil {
					return "", err
				}
				sb.WriteString(s)
				i = end + 1
				continue
			}
			s, err := r.path(token)
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
			i = j
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return r.f.registry.Expand(sb.String())
}

// path resolves a dotted path. Tokens that do not start with a known alias
// are kept as written.
func (r *renderer) path(token string) (string, error) {
	parts := strings.Split(token, ".")
	src := r.scope.lookup(parts[0])
	if src == nil {
		return token, nil
	}
	if len(parts) == 1 {
		if src.entity == nil {
			return token, nil
		}
		return src.qualifier + "." + src.entity.ID.Column, nil
	}
	if src.entity == nil {
		if src.mapping != nil {
			col, ok := src.mapping[strings.Join(parts[1:], ".")]
			if !ok {
				return "", fmt.Errorf("criteria: %s has no attribute %q", src.alias, strings.Join(parts[1:], "."))
			}
			return src.qualifier + "." + col, nil
		}
		if len(parts) != 2 {
			return "", fmt.Errorf("criteria: cannot dereference %q of %s", token, src.alias)
		}
		if src.columns != nil && !contains(src.columns, parts[1]) {
			return "", fmt.Errorf("criteria: %s has no column %q", src.alias, parts[1])
		}
		return src.qualifier + "." + parts[1], nil
	}
	cur, a, err := r.resolve(src, parts[1:])
	if err != nil {
		return "", err
	}
	switch {
	case a.IsCollection():
		return "", fmt.Errorf("criteria: collection %s used as a value in %q", a, token)
	case a.Type == metamodel.EmbeddedType:
		return "", fmt.Errorf("criteria: embeddable %s used as a value in %q", a, token)
	}
	return cur.qualifier + "." + a.Column, nil
}

// resolve walks the attributes of a path, joining every association but the
// last attribute. A trailing id of a many-to-one uses the join column, the
// fields of embeddables are columns of their owner.
func (r *renderer) resolve(src *source, attrs []string) (*source, *metamodel.Attribute, error) {
	cur, e := src, src.entity
	for i := 0; i < len(attrs); i++ {
		name := attrs[i]
		a, ok := e.Attribute(name)
		if !ok {
			return nil, nil, fmt.Errorf("criteria: %s has no attribute %q", e.Name, name)
		}
		if a.Type == metamodel.EmbeddedType && i < len(attrs)-1 {
			i++
			if a, ok = e.Attribute(name + "." + attrs[i]); !ok {
				return nil, nil, fmt.Errorf("criteria: embeddable %s has no attribute %q", name, attrs[i])
			}
		}
		if i == len(attrs)-1 {
			return cur, a, nil
		}
		if !a.IsAssociation() {
			return nil, nil, fmt.Errorf("criteria: attribute %s is not an association", a)
		}
		if a.Type == metamodel.ManyToOneType && i == len(attrs)-2 && attrs[i+1] == a.TargetEntity().ID.Name {
			return cur, a, nil
		}
		next, err := r.join(cur, a, "", "left join", func(clause string) {
			cur.root.joins = append(cur.root.joins, clause)
		})
		if err != nil {
			return nil, nil, err
		}
		cur, e = next, a.TargetEntity()
	}
	return nil, nil, fmt.Errorf("criteria: empty path of %s", src.alias)
}

// join joins the association a of from. An empty alias names an implicit
// join, which is shared by all paths through the same association.
func (r *renderer) join(from *source, a *metamodel.Attribute, alias, kind string, place func(string)) (*source, error) {
	key := from.alias + "." + a.Name
	implicit := alias == ""
	if implicit {
		if j, ok := from.root.joined[key]; ok {
			return j, nil
		}
		alias = from.alias + "_" + a.Name
	}
	if from.qualifier != from.alias {
		return nil, fmt.Errorf("criteria: cannot join %s in a data modification statement", a)
	}
	var (
		t  = a.TargetEntity()
		sb strings.Builder
	)
	var index string
	switch a.Type {
	case metamodel.ManyToOneType:
		fmt.Fprintf(&sb, "%s %s %s on %s.%s = %s.%s", kind, t.Table, alias, alias, t.ID.Column, from.alias, a.Column)
	case metamodel.OneToManyType:
		inv := a.Inverse()
		fmt.Fprintf(&sb, "%s %s %s on %s.%s = %s.%s", kind, t.Table, alias, alias, inv.Column, from.alias, from.entity.ID.Column)
		if a.IsIndexed() {
			index = alias + "." + a.OrderColumn
		}
	case metamodel.ManyToManyType:
		jt := alias + "_jt"
		fmt.Fprintf(&sb, "%s %s %s on %s.%s = %s.%s ", kind, a.JoinTable, jt, jt, a.JoinColumn, from.alias, from.entity.ID.Column)
		fmt.Fprintf(&sb, "%s %s %s on %s.%s = %s.%s", kind, t.Table, alias, alias, t.ID.Column, jt, a.InverseColumn)
		if a.IsIndexed() {
			index = jt + "." + a.OrderColumn
		}
	default:
		return nil, fmt.Errorf("criteria: attribute %s is not an association", a)
	}
	place(sb.String())
	dst := &source{alias: alias, entity: t, qualifier: alias, root: from.root, index: index}
	if implicit {
		from.root.joined[key] = dst
	}
	return dst, nil
}

// size renders the number of elements of a collection path as a subquery.
func (r *renderer) size(arg string) (string, error) {
	parts := strings.Split(arg, ".")
	src := r.scope.lookup(parts[0])
	if src == nil || src.entity == nil || len(parts) < 2 {
		return "", fmt.Errorf("criteria: size expects a collection path, got %q", arg)
	}
	cur, a, err := r.resolve(src, parts[1:])
	if err != nil {
		return "", err
	}
	owner := cur.qualifier + "." + a.Entity().ID.Column
	switch a.Type {
	case metamodel.OneToManyType:
		return fmt.Sprintf("(select count(*) from %s size_ where size_.%s = %s)", a.TargetEntity().Table, a.Inverse().Column, owner), nil
	case metamodel.ManyToManyType:
		return fmt.Sprintf("(select count(*) from %s size_ where size_.%s = %s)", a.JoinTable, a.JoinColumn, owner), nil
	}
	return "", fmt.Errorf("criteria: size expects a collection path, got %q", arg)
}

// index renders the list index of an element of an indexed collection,
// index(e) for the alias of a collection join or index(o.songs) for the join
// table of a data modification statement.
func (r *renderer) index(arg string) (string, error) {
	alias, attr, nested := strings.Cut(arg, ".")
	src := r.scope.lookup(alias)
	switch {
	case src == nil:
	case !nested && src.index != "":
		return src.index, nil
	case nested && src.mapping != nil:
		if col, ok := src.mapping["index("+attr+")"]; ok {
			return src.qualifier + "." + col, nil
		}
	}
	return "", fmt.Errorf("criteria: index expects an element of an indexed collection, got %q", arg)
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
