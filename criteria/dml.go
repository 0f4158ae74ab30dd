package criteria

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/metamodel"
)

// Result is the outcome of a data modification statement.
type Result struct {
	RowsAffected int64
	// Returned holds the values of the returning attributes per row.
	Returned [][]any
}

// target is the table of a data modification statement: an entity or the
// join table of a many-to-many collection.
type target struct {
	entity     string
	collection string
}

func (t target) resolve(f *Factory, alias string) (*source, string, error) {
	e, ok := f.mm.Entity(t.entity)
	if !ok {
		return nil, "", fmt.Errorf("criteria: unknown entity %q", t.entity)
	}
	if t.collection == "" {
		src := newRoot(alias, e, nil)
		src.qualifier = e.Table
		return src, e.Table, nil
	}
	a, ok := e.Attribute(t.collection)
	if !ok || a.Type != metamodel.ManyToManyType {
		return nil, "", fmt.Errorf("criteria: %s.%s is not a many-to-many collection", t.entity, t.collection)
	}
	src := newRoot(alias, nil, nil)
	src.qualifier = a.JoinTable
	src.mapping = make(map[string]string, 3)
	src.mapping[e.ID.Name] = a.JoinColumn
	src.mapping[a.Name] = a.InverseColumn
	src.mapping[a.Name+"."+a.TargetEntity().ID.Name] = a.InverseColumn
	if a.IsIndexed() {
		src.mapping["index("+a.Name+")"] = a.OrderColumn
	}
	return src, a.JoinTable, nil
}

func (t target) String() string {
	if t.collection != "" {
		return t.entity + "." + t.collection
	}
	return t.entity
}

// column returns the column of attr on the table of src.
func column(src *source, attr string) (string, error) {
	if src.mapping != nil {
		if c, ok := src.mapping[attr]; ok {
			return c, nil
		}
		return "", fmt.Errorf("criteria: %s has no attribute %q", src.qualifier, attr)
	}
	a, ok := src.entity.Attribute(attr)
	if !ok {
		return "", fmt.Errorf("criteria: %s has no attribute %q", src.entity.Name, attr)
	}
	switch {
	case a.IsCollection():
		return "", fmt.Errorf("criteria: collection %s has no column", a)
	case a.Type == metamodel.EmbeddedType:
		return "", fmt.Errorf("criteria: embeddable %s has no column", a)
	}
	return a.Column, nil
}

func columns(src *source, attrs []string) ([]string, error) {
	cols := make([]string, len(attrs))
	for i, a := range attrs {
		c, err := column(src, a)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	return cols, nil
}

// Insert is an insert statement builder.
type Insert struct {
	f         *Factory
	target    target
	ctes      []*cte
	columns   []string
	rows      [][]any
	sub       *Select
	returning []string
}

// Insert starts an insert into the table of entity.
func (f *Factory) Insert(entity string) *Insert {
	return &Insert{f: f, target: target{entity: entity}}
}

// InsertCollection starts an insert into the join table of a many-to-many
// collection. The columns are named by the owner id attribute and the
// collection attribute. The order column of an indexed collection is named
// index(collection).
//
//	f.InsertCollection("Document", "contacts").Columns("id", "contacts").Values(1, 2)
//	f.InsertCollection("Playlist", "songs").Columns("id", "songs", "index(songs)").Values(1, 2, 0)
func (f *Factory) InsertCollection(entity, collection string) *Insert {
	return &Insert{f: f, target: target{entity: entity, collection: collection}}
}

// With adds a CTE to the statement.
func (i *Insert) With(name string, columns []string, body *Select) *Insert {
	i.ctes = append(i.ctes, &cte{name: name, columns: columns, body: body})
	return i
}

// Columns sets the inserted attributes.
func (i *Insert) Columns(attrs ...string) *Insert {
	i.columns = attrs
	return i
}

// Values adds a row of values.
func (i *Insert) Values(vs ...any) *Insert {
	i.rows = append(i.rows, vs)
	return i
}

// Select inserts the rows of sub.
func (i *Insert) Select(sub *Select) *Insert {
	i.sub = sub
	return i
}

// Returning sets the attributes returned for each inserted row.
func (i *Insert) Returning(attrs ...string) *Insert {
	i.returning = attrs
	return i
}

// Query renders the statement.
func (i *Insert) Query() (string, []any, error) {
	return i.QueryContext(context.Background())
}

// QueryContext renders the statement, using the statement cache.
func (i *Insert) QueryContext(ctx context.Context) (string, []any, error) {
	return compileStatement(ctx, i.f, "insert", i)
}

// Exec executes the statement.
func (i *Insert) Exec(ctx context.Context, drv dialect.ExecQuerier) (Result, error) {
	return execDML(ctx, i.f, i, len(i.returning), len(i.ctes) > 0, drv)
}

func (i *Insert) build(r *renderer) (string, []any, error) {
	if len(i.columns) == 0 {
		return "", nil, fmt.Errorf("criteria: insert into %s without columns", i.target)
	}
	if (len(i.rows) == 0) == (i.sub == nil) {
		return "", nil, fmt.Errorf("criteria: insert into %s needs either values or a select", i.target)
	}
	src, table, err := i.target.resolve(i.f, "")
	if err != nil {
		return "", nil, err
	}
	with, err := buildWith(r, i.ctes)
	if err != nil {
		return "", nil, err
	}
	cols, returning := i.columns, i.returning
	if r.shape {
		table = i.target.String()
	} else {
		if cols, err = columns(src, i.columns); err != nil {
			return "", nil, err
		}
		if returning, err = columns(src, i.returning); err != nil {
			return "", nil, err
		}
	}
	w := r.writer()
	w.WriteString("insert into ").WriteString(table).WriteString(" (").WriteString(strings.Join(cols, ", ")).WriteString(") ")
	if i.sub != nil {
		q, args, err := i.sub.build(r.child())
		if err != nil {
			return "", nil, err
		}
		w.b.Append(q, args...)
	} else {
		w.WriteString("values ")
		for j, row := range i.rows {
			if len(row) != len(cols) {
				return "", nil, fmt.Errorf("criteria: insert row %d has %d values, want %d", j, len(row), len(cols))
			}
			if j > 0 {
				w.WriteString(", ")
			}
			w.WriteString("(").Args(row...).WriteString(")")
		}
	}
	return extend(r, w, with, dbms.StatementInsert, returning)
}

type assignment struct {
	attr string
	expr string
	args []any
}

// Update is an update statement builder.
type Update struct {
	f         *Factory
	target    target
	alias     string
	ctes      []*cte
	sets      []assignment
	where     []Predicate
	returning []string
}

// Update starts an update of the entity table. Paths of alias are qualified
// with the table name.
func (f *Factory) Update(entity, alias string) *Update {
	return &Update{f: f, target: target{entity: entity}, alias: alias}
}

// With adds a CTE to the statement.
func (u *Update) With(name string, columns []string, body *Select) *Update {
	u.ctes = append(u.ctes, &cte{name: name, columns: columns, body: body})
	return u
}

// Set assigns v to the attribute.
func (u *Update) Set(attr string, v any) *Update {
	u.sets = append(u.sets, assignment{attr: attr, expr: "?", args: []any{v}})
	return u
}

// SetExpr assigns an expression to the attribute.
//
//	u.SetExpr("version", "d.version + 1")
func (u *Update) SetExpr(attr, expr string, args ...any) *Update {
	u.sets = append(u.sets, assignment{attr: attr, expr: expr, args: args})
	return u
}

// Where adds predicates joined with AND.
func (u *Update) Where(ps ...Predicate) *Update {
	u.where = append(u.where, ps...)
	return u
}

// Returning sets the attributes returned for each updated row.
func (u *Update) Returning(attrs ...string) *Update {
	u.returning = attrs
	return u
}

// Query renders the statement.
func (u *Update) Query() (string, []any, error) {
	return u.QueryContext(context.Background())
}

// QueryContext renders the statement, using the statement cache.
func (u *Update) QueryContext(ctx context.Context) (string, []any, error) {
	return compileStatement(ctx, u.f, "update", u)
}

// Exec executes the statement.
func (u *Update) Exec(ctx context.Context, drv dialect.ExecQuerier) (Result, error) {
	return execDML(ctx, u.f, u, len(u.returning), len(u.ctes) > 0, drv)
}

func (u *Update) build(r *renderer) (string, []any, error) {
	if len(u.sets) == 0 {
		return "", nil, fmt.Errorf("criteria: update of %s without assignments", u.target)
	}
	src, table, err := u.target.resolve(u.f, u.alias)
	if err != nil {
		return "", nil, err
	}
	with, err := buildWith(r, u.ctes)
	if err != nil {
		return "", nil, err
	}
	if err := r.scope.add(src); err != nil {
		return "", nil, err
	}
	w := r.writer()
	if r.shape {
		w.WriteString("update ").WriteString(u.target.String()).WriteString(" ").WriteString(u.alias)
	} else {
		w.WriteString("update ").WriteString(table)
	}
	w.WriteString(" set ")
	for i, s := range u.sets {
		col := s.attr
		if !r.shape {
			if col, err = column(src, s.attr); err != nil {
				return "", nil, err
			}
		}
		if i > 0 {
			w.WriteString(", ")
		}
		w.WriteString(col).WriteString(" = ")
		Expr(s.expr, s.args...)(w)
	}
	if len(u.where) > 0 {
		w.WriteString(" where ")
		conjunction(w, u.where)
	}
	returning := u.returning
	if !r.shape {
		if returning, err = columns(src, u.returning); err != nil {
			return "", nil, err
		}
	}
	return extend(r, w, with, dbms.StatementUpdate, returning)
}

// Delete is a delete statement builder.
type Delete struct {
	f         *Factory
	target    target
	alias     string
	ctes      []*cte
	where     []Predicate
	returning []string
}

// Delete starts a delete from the entity table. Paths of alias are
// qualified with the table name.
func (f *Factory) Delete(entity, alias string) *Delete {
	return &Delete{f: f, target: target{entity: entity}, alias: alias}
}

// DeleteCollection starts a delete from the join table of a many-to-many
// collection. The owner id and the collection attribute are the paths of
// alias, e.g. "d.id" and "d.contacts".
func (f *Factory) DeleteCollection(entity, alias, collection string) *Delete {
	return &Delete{f: f, target: target{entity: entity, collection: collection}, alias: alias}
}

// With adds a CTE to the statement.
func (d *Delete) With(name string, columns []string, body *Select) *Delete {
	d.ctes = append(d.ctes, &cte{name: name, columns: columns, body: body})
	return d
}

// Where adds predicates joined with AND.
func (d *Delete) Where(ps ...Predicate) *Delete {
	d.where = append(d.where, ps...)
	return d
}

// Returning sets the attributes returned for each deleted row.
func (d *Delete) Returning(attrs ...string) *Delete {
	d.returning = attrs
	return d
}

// Query renders the statement.
func (d *Delete) Query() (string, []any, error) {
	return d.QueryContext(context.Background())
}

// QueryContext renders the statement, using the statement cache.
func (d *Delete) QueryContext(ctx context.Context) (string, []any, error) {
	return compileStatement(ctx, d.f, "delete", d)
}

// Exec executes the statement.
func (d *Delete) Exec(ctx context.Context, drv dialect.ExecQuerier) (Result, error) {
	return execDML(ctx, d.f, d, len(d.returning), len(d.ctes) > 0, drv)
}

func (d *Delete) build(r *renderer) (string, []any, error) {
	src, table, err := d.target.resolve(d.f, d.alias)
	if err != nil {
		return "", nil, err
	}
	with, err := buildWith(r, d.ctes)
	if err != nil {
		return "", nil, err
	}
	if err := r.scope.add(src); err != nil {
		return "", nil, err
	}
	w := r.writer()
	if r.shape {
		w.WriteString("delete from ").WriteString(d.target.String()).WriteString(" ").WriteString(d.alias)
	} else {
		w.WriteString("delete from ").WriteString(table)
	}
	if len(d.where) > 0 {
		w.WriteString(" where ")
		conjunction(w, d.where)
	}
	returning := d.returning
	if !r.shape {
		if returning, err = columns(src, d.returning); err != nil {
			return "", nil, err
		}
	}
	return extend(r, w, with, dbms.StatementDelete, returning)
}

// extend adds the WITH clause and the returning columns of a data
// modification statement.
func extend(r *renderer, w, with *Writer, typ dbms.StatementType, returning []string) (string, []any, error) {
	if w.err != nil {
		return "", nil, w.err
	}
	text, args := w.b.Query()
	withText, withArgs := with.b.Query()
	args = append(withArgs[:len(withArgs):len(withArgs)], args...)
	if r.shape {
		if len(returning) > 0 {
			text += " returning " + strings.Join(returning, ", ")
		}
		return withText + text, args, nil
	}
	res, err := r.f.dialect.AppendExtendedSQL(text, dbms.Extended{Type: typ, With: withText, Returning: returning})
	if err != nil {
		return "", nil, err
	}
	return res.SQL, args, nil
}

// execDML executes a data modification statement. Returned values are read
// from the result rows, or from LastInsertId on databases without returning
// support.
func execDML(ctx context.Context, f *Factory, st Statement, returning int, with bool, drv dialect.ExecQuerier) (Result, error) {
	query, args, err := st.QueryContext(ctx)
	if err != nil {
		return Result{}, err
	}
	d := f.dialect
	f.logger.Debug("exec statement", "sql", query, "args", len(args))
	counted := returning == 0 && with && !d.SupportsWithClauseInModificationQuery && d.Returning() == dbms.ReturningFinalTable
	if returning > 0 && d.Returning() != dbms.ReturningNone || counted {
		rows := &sql.Rows{}
		if err := drv.Query(ctx, query, args, rows); err != nil {
			return Result{}, err
		}
		defer rows.Close()
		vs, err := ScanAll(rows)
		if err != nil {
			return Result{}, err
		}
		if counted {
			var n int64
			if len(vs) == 1 {
				n, _ = toInt64(vs[0][0])
			}
			return Result{RowsAffected: n}, nil
		}
		return Result{RowsAffected: int64(len(vs)), Returned: vs}, nil
	}
	var res sql.Result
	if err := drv.Exec(ctx, query, args, &res); err != nil {
		return Result{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Result{}, err
	}
	out := Result{RowsAffected: n}
	if returning > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return Result{}, err
		}
		out.Returned = [][]any{{id}}
	}
	return out, nil
}

func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case []byte:
		var n int64
		_, err := fmt.Sscan(string(v), &n)
		return n, err == nil
	}
	return 0, false
}
