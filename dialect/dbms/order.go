package dbms

import (
	"strings"
)

// Order is an ORDER BY element.
type Order struct {
	Expr       string
	Descending bool
	NullsFirst bool
}

// Asc returns an ascending order with nulls last.
func Asc(expr string) Order { return Order{Expr: expr} }

// Desc returns a descending order with nulls first.
func Desc(expr string) Order { return Order{Expr: expr, Descending: true, NullsFirst: true} }

// NewOrder returns an order with the default null precedence of the
// direction: NULLS LAST for ascending and NULLS FIRST for descending.
func NewOrder(expr string, descending bool) Order {
	return Order{Expr: expr, Descending: descending, NullsFirst: descending}
}

// IsDefaultNulls reports whether the null precedence is the one NewOrder picks.
func (o Order) IsDefaultNulls() bool { return o.NullsFirst == o.Descending }

// direction returns "asc" or "desc".
func (o Order) direction() string {
	if o.Descending {
		return "desc"
	}
	return "asc"
}

// AppendOrderBy renders order elements as a comma separated list without the
// ORDER BY keyword, using the null precedence support of ORDER BY clauses.
func (d *Dialect) AppendOrderBy(b *strings.Builder, orders []Order) {
	appendOrders(b, orders, d.nulls, d.nullsHigh)
}

// AppendAggregateOrderBy is like AppendOrderBy for the ORDER BY of an aggregate
// function such as group_concat or listagg.
func (d *Dialect) AppendAggregateOrderBy(b *strings.Builder, orders []Order) {
	appendOrders(b, orders, d.aggNulls, d.nullsHigh)
}

// OrderBy returns the rendered order list.
func (d *Dialect) OrderBy(orders ...Order) string {
	var b strings.Builder
	d.AppendOrderBy(&b, orders)
	return b.String()
}

// AggregateOrderBy returns the rendered aggregate order list.
func (d *Dialect) AggregateOrderBy(orders ...Order) string {
	var b strings.Builder
	d.AppendAggregateOrderBy(&b, orders)
	return b.String()
}

// NeedsNullEmulation reports whether o needs a CASE WHEN prefix for support.
func NeedsNullEmulation(o Order, support NullPrecedence, nullsHigh bool) bool {
	switch support {
	case NullsNative:
		return false
	case NullsPartial:
		return !o.IsDefaultNulls()
	default:
		// With nulls sorting high, ascending puts them last.
		natural := nullsHigh == o.Descending
		return o.NullsFirst != natural
	}
}

func appendOrders(b *strings.Builder, orders []Order, support NullPrecedence, nullsHigh bool) {
	for i, o := range orders {
		if i > 0 {
			b.WriteString(", ")
		}
		appendOrder(b, o, support, nullsHigh)
	}
}

func appendOrder(b *strings.Builder, o Order, support NullPrecedence, nullsHigh bool) {
	if support == NullsNative {
		b.WriteString(o.Expr)
		b.WriteByte(' ')
		b.WriteString(o.direction())
		if o.NullsFirst {
			b.WriteString(" nulls first")
		} else {
			b.WriteString(" nulls last")
		}
		return
	}
	if NeedsNullEmulation(o, support, nullsHigh) {
		b.WriteString("case when ")
		b.WriteString(o.Expr)
		if o.NullsFirst {
			b.WriteString(" is null then 0 else 1 end, ")
		} else {
			b.WriteString(" is null then 1 else 0 end, ")
		}
	}
	b.WriteString(o.Expr)
	b.WriteByte(' ')
	b.WriteString(o.direction())
	// The partially supported combinations are rendered natively.
	if support == NullsPartial && o.IsDefaultNulls() {
		if o.NullsFirst {
			b.WriteString(" nulls first")
		} else {
			b.WriteString(" nulls last")
		}
	}
}

// ParseOrder parses "expr [asc|desc] [nulls first|last]".
func ParseOrder(s string) Order {
	s = strings.TrimSpace(s)
	o := Order{Expr: s}
	explicitNulls := false
	lower := strings.ToLower(s)
	switch {
	case strings.HasSuffix(lower, " nulls first"):
		o.NullsFirst, explicitNulls = true, true
		s, lower = trimTail(s, lower, len(" nulls first"))
	case strings.HasSuffix(lower, " nulls last"):
		o.NullsFirst, explicitNulls = false, true
		s, lower = trimTail(s, lower, len(" nulls last"))
	}
	switch {
	case strings.HasSuffix(lower, " desc"):
		o.Descending = true
		s, _ = trimTail(s, lower, len(" desc"))
	case strings.HasSuffix(lower, " asc"):
		s, _ = trimTail(s, lower, len(" asc"))
	}
	o.Expr = s
	if !explicitNulls {
		o.NullsFirst = o.Descending
	}
	return o
}

func trimTail(s, lower string, n int) (string, string) {
	s = strings.TrimSpace(s[:len(s)-n])
	return s, strings.ToLower(s)
}
