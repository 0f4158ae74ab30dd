package criteria

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/dialect/sql"
)

// Statement is a statement that can be rendered standalone or nested in
// another statement.
type Statement interface {
	// QueryContext renders the statement into dialect SQL and its arguments.
	QueryContext(context.Context) (string, []any, error)
	build(*renderer) (string, []any, error)
}

// Order is an ORDER BY item.
type Order = dbms.Order

// Asc returns an ascending order with nulls last.
func Asc(expr string) Order { return dbms.Asc(expr) }

// Desc returns a descending order with nulls first.
func Desc(expr string) Order { return dbms.Desc(expr) }

// JoinKind is the kind of an explicit join.
type JoinKind uint8

// Join kinds.
const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
)

func (k JoinKind) String() string {
	switch k {
	case JoinLeft:
		return "left join"
	case JoinRight:
		return "right join"
	default:
		return "inner join"
	}
}

type fromItem struct {
	alias string
	// name of an entity or CTE.
	name    string
	cteOnly bool
	sub     Statement
	values  *values
}

type values struct {
	columns []string
	rows    [][]any
}

type join struct {
	kind JoinKind
	// path of an association join, or name of an entity or CTE joined on
	// predicates.
	path   string
	source string
	alias  string
	on     []Predicate
}

type item struct {
	expr  string
	alias string
	args  []any
	sub   Statement
	// fn aggregates the rows of sub into one value with the given fields.
	fn     string
	fields []string
}

type keyset struct {
	values []any
	before bool
}

// Select is a select statement builder.
type Select struct {
	f        *Factory
	ctes     []*cte
	from     []fromItem
	joins    []join
	items    []item
	distinct bool
	where    []Predicate
	groupBy  []string
	having   []Predicate
	orderBy  []Order
	first    int
	max      int
	keyset   *keyset
	err      error
}

// From starts a select over the given entity or CTE.
func (f *Factory) From(name, alias string) *Select {
	return (&Select{f: f}).From(name, alias)
}

// FromCTE starts a select over the CTE name.
func (f *Factory) FromCTE(name, alias string) *Select {
	return (&Select{f: f}).FromCTE(name, alias)
}

// FromSubquery starts a select over a derived table.
func (f *Factory) FromSubquery(sub Statement, alias string) *Select {
	return (&Select{f: f}).FromSubquery(sub, alias)
}

// FromValues starts a select over a table of argument rows.
func (f *Factory) FromValues(alias string, columns []string, rows ...[]any) *Select {
	return (&Select{f: f}).FromValues(alias, columns, rows...)
}

// From adds an entity or CTE to the FROM clause. CTE names take precedence
// over entity names.
func (s *Select) From(name, alias string) *Select {
	s.from = append(s.from, fromItem{name: name, alias: alias})
	return s
}

// FromCTE adds the CTE name to the FROM clause.
func (s *Select) FromCTE(name, alias string) *Select {
	s.from = append(s.from, fromItem{name: name, alias: alias, cteOnly: true})
	return s
}

// FromSubquery adds a derived table to the FROM clause.
func (s *Select) FromSubquery(sub Statement, alias string) *Select {
	s.from = append(s.from, fromItem{sub: sub, alias: alias})
	return s
}

// FromValues adds a table of argument rows to the FROM clause.
func (s *Select) FromValues(alias string, columns []string, rows ...[]any) *Select {
	s.from = append(s.from, fromItem{alias: alias, values: &values{columns: columns, rows: rows}})
	return s
}

// InnerJoin joins the association path, e.g. "d.owner", as alias.
func (s *Select) InnerJoin(path, alias string) *Select {
	return s.addJoin(JoinInner, path, alias)
}

// LeftJoin left joins the association path as alias.
func (s *Select) LeftJoin(path, alias string) *Select {
	return s.addJoin(JoinLeft, path, alias)
}

// RightJoin right joins the association path as alias.
func (s *Select) RightJoin(path, alias string) *Select {
	return s.addJoin(JoinRight, path, alias)
}

func (s *Select) addJoin(kind JoinKind, path, alias string) *Select {
	if !strings.Contains(path, ".") {
		s.AddError(fmt.Errorf("criteria: join path %q has no attribute", path))
		return s
	}
	s.joins = append(s.joins, join{kind: kind, path: path, alias: alias})
	return s
}

// JoinOn joins an entity or CTE as alias on the given predicates.
func (s *Select) JoinOn(kind JoinKind, source, alias string, on ...Predicate) *Select {
	if len(on) == 0 {
		s.AddError(fmt.Errorf("criteria: join of %s without predicates", alias))
		return s
	}
	s.joins = append(s.joins, join{kind: kind, source: source, alias: alias, on: on})
	return s
}

// Select adds a select item with an optional alias.
func (s *Select) Select(expr string, alias ...string) *Select {
	it := item{expr: expr}
	if len(alias) > 0 {
		it.alias = alias[0]
	}
	s.items = append(s.items, it)
	return s
}

// SelectArgs adds a select item whose "?" placeholders are bound to args.
func (s *Select) SelectArgs(expr, alias string, args ...any) *Select {
	s.items = append(s.items, item{expr: expr, alias: alias, args: args})
	return s
}

// SelectAggregate adds a select item that aggregates the rows of sub with
// the registered function fn, e.g. to_string_json. The select items of sub
// are named by fields.
//
//	s.SelectAggregate("to_string_json", f.From("Revision", "r").Select("r.number"), "revisions", "number")
func (s *Select) SelectAggregate(fn string, sub Statement, alias string, fields ...string) *Select {
	if len(fields) == 0 {
		s.AddError(fmt.Errorf("criteria: aggregate %s of %s without fields", fn, alias))
	}
	s.items = append(s.items, item{sub: sub, alias: alias, fn: fn, fields: fields})
	return s
}

// SelectSubquery adds a scalar subquery as select item.
func (s *Select) SelectSubquery(sub Statement, alias string) *Select {
	s.items = append(s.items, item{sub: sub, alias: alias})
	return s
}

// Distinct removes duplicate rows.
func (s *Select) Distinct() *Select {
	s.distinct = true
	return s
}

// Where adds predicates joined with AND.
func (s *Select) Where(ps ...Predicate) *Select {
	s.where = append(s.where, ps...)
	return s
}

// GroupBy adds GROUP BY expressions.
func (s *Select) GroupBy(exprs ...string) *Select {
	s.groupBy = append(s.groupBy, exprs...)
	return s
}

// Having adds HAVING predicates joined with AND.
func (s *Select) Having(ps ...Predicate) *Select {
	s.having = append(s.having, ps...)
	return s
}

// OrderBy adds ORDER BY items.
func (s *Select) OrderBy(orders ...Order) *Select {
	s.orderBy = append(s.orderBy, orders...)
	return s
}

// SetFirstResult sets the number of rows to skip.
func (s *Select) SetFirstResult(n int) *Select {
	if n < 0 {
		s.AddError(fmt.Errorf("criteria: negative first result %d", n))
	}
	s.first = n
	return s
}

// SetMaxResults limits the number of rows. Zero removes the limit.
func (s *Select) SetMaxResults(n int) *Select {
	if n < 0 {
		s.AddError(fmt.Errorf("criteria: negative max results %d", n))
	}
	s.max = n
	return s
}

// AfterKeyset selects the rows that follow the row with the given ORDER BY
// values.
func (s *Select) AfterKeyset(vs ...any) *Select {
	s.keyset = &keyset{values: vs}
	return s
}

// BeforeKeyset selects the rows that precede the row with the given ORDER BY
// values. The ORDER BY is inverted, so rows are returned nearest first.
func (s *Select) BeforeKeyset(vs ...any) *Select {
	s.keyset = &keyset{values: vs, before: true}
	return s
}

// AddError records an error that is returned when the statement is rendered.
func (s *Select) AddError(err error) *Select {
	if s.err == nil {
		s.err = err
	}
	return s
}

// Err returns the error recorded by the builder.
func (s *Select) Err() error { return s.err }

// Aliases returns the aliases of the select items.
func (s *Select) Aliases() []string {
	aliases := make([]string, len(s.items))
	for i, it := range s.items {
		aliases[i] = it.alias
	}
	return aliases
}

// Clone returns a copy of the builder.
func (s *Select) Clone() *Select {
	c := *s
	c.ctes = append([]*cte(nil), s.ctes...)
	c.from = append([]fromItem(nil), s.from...)
	c.joins = append([]join(nil), s.joins...)
	c.items = append([]item(nil), s.items...)
	c.where = append([]Predicate(nil), s.where...)
	c.groupBy = append([]string(nil), s.groupBy...)
	c.having = append([]Predicate(nil), s.having...)
	c.orderBy = append([]Order(nil), s.orderBy...)
	return &c
}

// CountQuery returns a statement counting the rows of s, ignoring its order
// and bounds. Grouped and distinct statements are counted through a derived
// table, and joined roots by their distinct ids.
func (s *Select) CountQuery() *Select {
	c := s.Clone()
	c.orderBy, c.first, c.max, c.keyset = nil, 0, 0, nil
	if c.distinct || len(c.groupBy) > 0 {
		outer := &Select{f: s.f, ctes: c.ctes}
		c.ctes = nil
		return outer.FromSubquery(c, "cnt_").Select("count(*)")
	}
	c.items = nil
	if len(c.joins) > 0 && c.from[0].sub == nil && c.from[0].values == nil {
		return c.Select("count(distinct " + c.from[0].alias + ")")
	}
	return c.Select("count(*)")
}

// Query renders the statement.
func (s *Select) Query() (string, []any, error) {
	return s.QueryContext(context.Background())
}

// QueryContext renders the statement, using the statement cache of the
// factory.
func (s *Select) QueryContext(ctx context.Context) (string, []any, error) {
	return compileStatement(ctx, s.f, "select", s)
}

// compileStatement renders the shape of st and compiles its SQL unless the
// shape is cached.
func compileStatement(ctx context.Context, f *Factory, op string, st Statement) (string, []any, error) {
	shape, args, err := st.build(shapeRenderer(f))
	if err != nil {
		return "", nil, err
	}
	query, err := f.compile(ctx, op, shape, func() (string, error) {
		q, _, err := st.build(sqlRenderer(f))
		return q, err
	})
	if err != nil {
		return "", nil, err
	}
	return query, args, nil
}

// Rows executes the statement.
func (s *Select) Rows(ctx context.Context, drv dialect.ExecQuerier) (*sql.Rows, error) {
	query, args, err := s.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	rows := &sql.Rows{}
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// All executes the statement and returns the values of every row.
func (s *Select) All(ctx context.Context, drv dialect.ExecQuerier) ([][]any, error) {
	rows, err := s.Rows(ctx, drv)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanAll(rows)
}

// ScanAll scans the remaining rows into slices of values.
func ScanAll(rows *sql.Rows) ([][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		vs := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vs {
			ptrs[i] = &vs[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vs)
	}
	return out, rows.Err()
}

func (s *Select) build(r *renderer) (string, []any, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	if len(s.from) == 0 {
		return "", nil, errors.New("criteria: select without from")
	}
	d := s.f.dialect
	with, err := buildWith(r, s.ctes)
	if err != nil {
		return "", nil, err
	}
	parts, roots, err := s.buildFrom(r)
	if err != nil {
		return "", nil, err
	}
	items := r.writer()
	s.writeItems(items, roots)

	where := r.writer()
	preds := s.where
	orders := s.orderBy
	if s.keyset != nil {
		p, err := s.keysetPredicate()
		if err != nil {
			return "", nil, err
		}
		preds = append(preds[:len(preds):len(preds)], p)
		if s.keyset.before {
			orders = invert(orders)
		}
	}
	if len(preds) > 0 {
		where.WriteString(" where ")
		conjunction(where, preds)
	}

	tail := r.writer()
	if len(s.groupBy) > 0 {
		tail.WriteString(" group by ")
		for i, g := range s.groupBy {
			if i > 0 {
				tail.WriteString(", ")
			}
			tail.Expr(g)
		}
	}
	if len(s.having) > 0 {
		tail.WriteString(" having ")
		conjunction(tail, s.having)
	}
	if len(orders) > 0 {
		tail.WriteString(" order by ")
		s.writeOrders(r, tail, orders)
	}

	stmt := r.writer()
	stmt.WriteString("select ")
	if s.distinct {
		stmt.WriteString("distinct ")
	}
	stmt.join(items)
	stmt.WriteString(" from ")
	for i, p := range parts {
		if i > 0 {
			stmt.WriteString(", ")
		}
		stmt.join(p)
		if root := roots[i]; root != nil {
			for _, j := range root.joins {
				stmt.WriteString(" ").WriteString(j)
			}
		}
	}
	stmt.join(where)
	stmt.join(tail)
	if stmt.err != nil {
		return "", nil, stmt.err
	}
	var limit, offset string
	if s.max > 0 {
		limit = strconv.Itoa(s.max)
	}
	if s.first > 0 {
		offset = strconv.Itoa(s.first)
	}
	text, args := stmt.b.Query()
	withText, withArgs := with.b.Query()
	args = append(withArgs[:len(withArgs):len(withArgs)], args...)
	if r.shape {
		if limit != "" {
			text += " limit " + limit
		}
		if offset != "" {
			text += " offset " + offset
		}
		return withText + text, args, nil
	}
	res, err := d.AppendExtendedSQL(text, dbms.Extended{Type: dbms.StatementSelect, With: withText, Limit: limit, Offset: offset})
	if err != nil {
		return "", nil, err
	}
	return res.SQL, args, nil
}
