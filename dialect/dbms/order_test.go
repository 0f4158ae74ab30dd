package dbms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderBy(t *testing.T) {
	tests := []struct {
		name    string
		dialect *Dialect
		orders  []Order
		want    string
	}{
		{"postgres asc", Postgres(), []Order{Asc("d.name")}, "d.name asc nulls last"},
		{"postgres desc", Postgres(), []Order{Desc("d.age")}, "d.age desc nulls first"},
		{"postgres list", Postgres(), []Order{Asc("a"), Desc("b")}, "a asc nulls last, b desc nulls first"},
		{"db2 asc nulls last", DB2(), []Order{Asc("a")}, "a asc nulls last"},
		{"db2 desc nulls first", DB2(), []Order{Desc("a")}, "a desc nulls first"},
		{"db2 asc nulls first", DB2(), []Order{{Expr: "a", NullsFirst: true}}, "case when a is null then 0 else 1 end, a asc"},
		{"db2 desc nulls last", DB2(), []Order{{Expr: "a", Descending: true}}, "case when a is null then 1 else 0 end, a desc"},
		{"mysql natural", MySQL(), []Order{{Expr: "a", NullsFirst: true}}, "a asc"},
		{"mysql asc nulls last", MySQL(), []Order{Asc("a")}, "case when a is null then 1 else 0 end, a asc"},
		{"mysql list", MySQL(), []Order{Asc("a"), {Expr: "b", Descending: true}}, "case when a is null then 1 else 0 end, a asc, b desc"},
		{"sqlserver desc nulls first", SQLServer(), []Order{Desc("a")}, "case when a is null then 0 else 1 end, a desc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.OrderBy(tt.orders...))
		})
	}
}

func TestAggregateOrderBy(t *testing.T) {
	assert.Equal(t, "x asc nulls last", H2().OrderBy(Asc("x")))
	assert.Equal(t, "case when x is null then 1 else 0 end, x asc", H2().AggregateOrderBy(Asc("x")))
	assert.Equal(t, "x desc nulls first", Oracle().AggregateOrderBy(Desc("x")))
}

func TestNeedsNullEmulation(t *testing.T) {
	assert.False(t, NeedsNullEmulation(Asc("x"), NullsNative, false))
	assert.False(t, NeedsNullEmulation(Asc("x"), NullsPartial, true))
	assert.True(t, NeedsNullEmulation(Order{Expr: "x", NullsFirst: true}, NullsPartial, true))
	assert.False(t, NeedsNullEmulation(Asc("x"), NullsEmulated, true))
	assert.True(t, NeedsNullEmulation(Asc("x"), NullsEmulated, false))
	assert.False(t, NeedsNullEmulation(Order{Expr: "x", Descending: true}, NullsEmulated, false))
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in   string
		want Order
	}{
		{"x", Order{Expr: "x"}},
		{"x DESC", Order{Expr: "x", Descending: true, NullsFirst: true}},
		{"a.b desc nulls last", Order{Expr: "a.b", Descending: true}},
		{" x asc NULLS FIRST ", Order{Expr: "x", NullsFirst: true}},
		{"lower(d.name) asc", Order{Expr: "lower(d.name)"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOrder(tt.in))
		})
	}
	assert.True(t, NewOrder("x", true).IsDefaultNulls())
	assert.False(t, Order{Expr: "x", NullsFirst: true}.IsDefaultNulls())
}
