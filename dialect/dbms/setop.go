package dbms

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/blaze/dialect/sql/sqltext"
)

// SetOperator is a set operation between queries.
type SetOperator uint8

// Set operators.
const (
	Union SetOperator = iota
	UnionAll
	Intersect
	IntersectAll
	Except
	ExceptAll
)

// String returns the SQL of the operator, ignoring dialect keywords.
func (op SetOperator) String() string {
	switch op {
	case Union:
		return "union"
	case UnionAll:
		return "union all"
	case Intersect:
		return "intersect"
	case IntersectAll:
		return "intersect all"
	case Except:
		return "except"
	case ExceptAll:
		return "except all"
	}
	return fmt.Sprintf("SetOperator(%d)", op)
}

// All reports whether the operator keeps duplicates.
func (op SetOperator) All() bool { return op == UnionAll || op == IntersectAll || op == ExceptAll }

// SetOrder orders the result of a set operation by a select item position.
type SetOrder struct {
	// Position is the 1-based position of the select item.
	Position   int
	Descending bool
	NullsFirst bool
}

// SetQuery describes a set operation over rendered operand statements.
type SetQuery struct {
	Op       SetOperator
	Operands []string
	OrderBy  []SetOrder
	// Limit and Offset are the outer bounds, or empty.
	Limit, Offset string
	// Subquery parenthesizes the result.
	Subquery bool
}

// setRenderer holds the state of a single AppendSet call.
type setRenderer struct {
	d       *Dialect
	b       *strings.Builder
	derived int
}

// closeDerived closes a derived table opened with "select * from (".
func (r *setRenderer) closeDerived() {
	r.b.WriteByte(')')
	if r.d.derivedAlias {
		r.derived++
		r.b.WriteString(" set_op_")
		r.b.WriteString(strconv.Itoa(r.derived))
	}
}

// AppendSet renders a set operation. Operands that carry their own ORDER BY
// or limit are wrapped in a derived table. INTERSECT ALL and EXCEPT ALL are
// emulated through row numbers where they are not native, and an outer ORDER
// BY that needs null precedence emulation orders by the select item aliases
// of the first operand.
func (d *Dialect) AppendSet(b *strings.Builder, q SetQuery) error {
	if len(q.Operands) == 0 {
		return nil
	}
	emulate, err := d.checkSetOperator(q.Op)
	if err != nil {
		return err
	}
	out := b
	b = &strings.Builder{}
	r := &setRenderer{d: d, b: b}
	var aliases []string
	for _, o := range q.OrderBy {
		if NeedsNullEmulation(Order{Descending: o.Descending, NullsFirst: o.NullsFirst}, d.nulls, d.nullsHigh) {
			aliases = sqltext.SelectItemAliases(q.Operands[0], sqltext.IndexOfSelect(q.Operands[0]))
			break
		}
	}
	outer := len(q.OrderBy) > 0 || q.Limit != "" || q.Offset != ""
	wrap := outer && len(q.Operands) > 1
	if wrap {
		b.WriteString("select * from (")
	}
	if err := r.appendOperands(q, emulate); err != nil {
		return err
	}
	if wrap {
		r.closeDerived()
	}
	if len(q.OrderBy) > 0 {
		orders := make([]Order, len(q.OrderBy))
		for i, o := range q.OrderBy {
			if o.Position < 1 || aliases != nil && o.Position > len(aliases) {
				return fmt.Errorf("dbms: set order position %d out of range", o.Position)
			}
			expr := strconv.Itoa(o.Position)
			if aliases != nil {
				if aliases[o.Position-1] == "" {
					return fmt.Errorf("dbms: select item %d of the first set operand has no alias", o.Position)
				}
				expr = aliases[o.Position-1]
			}
			orders[i] = Order{Expr: expr, Descending: o.Descending, NullsFirst: o.NullsFirst}
		}
		b.WriteString(" order by ")
		d.AppendOrderBy(b, orders)
	}
	s := b.String()
	if q.Limit != "" || q.Offset != "" {
		s = d.limit.Apply(s, q.Limit, q.Offset)
	}
	if q.Subquery {
		s = "(" + s + ")"
	}
	out.WriteString(s)
	return nil
}

// checkSetOperator reports whether op must be emulated, or an error if it
// cannot be rendered at all.
func (d *Dialect) checkSetOperator(op SetOperator) (bool, error) {
	var native, distinct bool
	switch op {
	case Union, UnionAll:
		return false, nil
	case Intersect, IntersectAll:
		native, distinct = d.SupportsIntersectOp(op.All()), d.SupportsIntersect
	case Except, ExceptAll:
		native, distinct = d.SupportsExceptOp(op.All()), d.SupportsExcept
	default:
		return false, fmt.Errorf("dbms: unknown set operator %d", op)
	}
	switch {
	case native:
		return false, nil
	case op.All() && distinct && d.SupportsWindowFunctions:
		return true, nil
	default:
		return false, d.Unsupported(op.String())
	}
}

// operator returns the keyword of op. Emulated ALL operators use the
// distinct form over row numbered operands.
func (d *Dialect) operator(op SetOperator, emulate bool) string {
	switch op {
	case Except, ExceptAll:
		kw := d.exceptKeyword
		if op == ExceptAll && !emulate {
			kw += " all"
		}
		return kw
	case IntersectAll:
		if emulate {
			return "intersect"
		}
	}
	return op.String()
}

func (r *setRenderer) appendOperands(q SetQuery, emulate bool) error {
	b := r.b
	if emulate {
		first := q.Operands[0]
		aliases := sqltext.SelectItemAliases(first, sqltext.IndexOfSelect(first))
		b.WriteString("select ")
		for i, a := range aliases {
			if a == "" {
				return fmt.Errorf("dbms: select item %d of the first set operand has no alias", i+1)
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a)
		}
		b.WriteString(" from (")
	}
	op := r.d.operator(q.Op, emulate)
	for i, operand := range q.Operands {
		if i > 0 {
			b.WriteString("\n")
			b.WriteString(op)
			b.WriteString("\n")
		}
		if emulate {
			sel := sqltext.IndexOfSelect(operand)
			if sel < 0 {
				return fmt.Errorf("dbms: set operand %d is not a select", i+1)
			}
			clause, _ := sqltext.SelectClause(operand, sel)
			exprs := sqltext.SelectItemExpressions(operand, sel)
			for j, e := range exprs {
				exprs[j], _ = sqltext.SplitAlias(e)
			}
			b.WriteString(operand[:clause.Start])
			b.WriteString(" row_number() over (partition by ")
			b.WriteString(strings.Join(exprs, ", "))
			b.WriteString(r.d.windowOrderBy)
			b.WriteString(") as set_op_row_num_,")
			b.WriteString(operand[clause.Start:])
			continue
		}
		_, limited := FindLimit(operand)
		wrap := limited || sqltext.IndexOfOrderBy(operand) >= 0
		if wrap {
			b.WriteString("select * from (")
		}
		if (wrap || i == 0) && strings.HasPrefix(operand, "(") && sqltext.MatchingParen(operand, 0) == len(operand)-1 {
			operand = operand[1 : len(operand)-1]
		}
		b.WriteString(operand)
		if wrap {
			r.closeDerived()
		}
	}
	if emulate {
		r.closeDerived()
	}
	return nil
}
