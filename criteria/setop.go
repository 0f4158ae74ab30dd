package criteria

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/dialect/sql"
)

// SetQuery combines statements with a set operator.
type SetQuery struct {
	f        *Factory
	op       dbms.SetOperator
	operands []Statement
	orderBy  []dbms.SetOrder
	first    int
	max      int
	err      error
}

// SetOp combines operands with op.
func (f *Factory) SetOp(op dbms.SetOperator, operands ...Statement) *SetQuery {
	q := &SetQuery{f: f, op: op, operands: operands}
	if len(operands) < 2 {
		q.err = fmt.Errorf("criteria: %s of %d statements", op, len(operands))
	}
	return q
}

// Union returns the distinct rows of all operands.
func (f *Factory) Union(operands ...Statement) *SetQuery { return f.SetOp(dbms.Union, operands...) }

// UnionAll returns the rows of all operands.
func (f *Factory) UnionAll(operands ...Statement) *SetQuery {
	return f.SetOp(dbms.UnionAll, operands...)
}

// Intersect returns the distinct rows found in every operand.
func (f *Factory) Intersect(operands ...Statement) *SetQuery {
	return f.SetOp(dbms.Intersect, operands...)
}

// IntersectAll is like Intersect but keeps duplicates.
func (f *Factory) IntersectAll(operands ...Statement) *SetQuery {
	return f.SetOp(dbms.IntersectAll, operands...)
}

// Except returns the distinct rows of the first operand missing from the others.
func (f *Factory) Except(operands ...Statement) *SetQuery {
	return f.SetOp(dbms.Except, operands...)
}

// ExceptAll is like Except but keeps duplicates.
func (f *Factory) ExceptAll(operands ...Statement) *SetQuery {
	return f.SetOp(dbms.ExceptAll, operands...)
}

// OrderBy orders the result by select item positions.
func (q *SetQuery) OrderBy(orders ...dbms.SetOrder) *SetQuery {
	q.orderBy = append(q.orderBy, orders...)
	return q
}

// SetFirstResult sets the number of rows to skip.
func (q *SetQuery) SetFirstResult(n int) *SetQuery {
	q.first = n
	return q
}

// SetMaxResults limits the number of rows.
func (q *SetQuery) SetMaxResults(n int) *SetQuery {
	q.max = n
	return q
}

// Query renders the statement.
func (q *SetQuery) Query() (string, []any, error) {
	return q.QueryContext(context.Background())
}

// QueryContext renders the statement, using the statement cache of the
// factory.
func (q *SetQuery) QueryContext(ctx context.Context) (string, []any, error) {
	return compileStatement(ctx, q.f, "set", q)
}

// All executes the statement and returns the values of every row.
func (q *SetQuery) All(ctx context.Context, drv dialect.ExecQuerier) ([][]any, error) {
	query, args, err := q.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	rows := &sql.Rows{}
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanAll(rows)
}

func (q *SetQuery) build(r *renderer) (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	var (
		operands = make([]string, len(q.operands))
		args     []any
	)
	for i, o := range q.operands {
		text, a, err := o.build(r.child())
		if err != nil {
			return "", nil, err
		}
		operands[i] = text
		args = append(args, a...)
	}
	var limit, offset string
	if q.max > 0 {
		limit = strconv.Itoa(q.max)
	}
	if q.first > 0 {
		offset = strconv.Itoa(q.first)
	}
	var b strings.Builder
	if r.shape {
		b.WriteString("(")
		b.WriteString(strings.Join(operands, ") "+q.op.String()+" ("))
		b.WriteString(")")
		for i, o := range q.orderBy {
			if i == 0 {
				b.WriteString(" order by ")
			} else {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%d %t %t", o.Position, o.Descending, o.NullsFirst)
		}
		if limit != "" || offset != "" {
			fmt.Fprintf(&b, " limit %s offset %s", limit, offset)
		}
		return b.String(), args, nil
	}
	err := q.f.dialect.AppendSet(&b, dbms.SetQuery{
		Op:       q.op,
		Operands: operands,
		OrderBy:  q.orderBy,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}
