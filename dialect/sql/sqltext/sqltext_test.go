package sqltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindSkipsQuotes(t *testing.T) {
	s := `select 'from' as "from", [from] from t`
	sp, ok := Find(s, "from", 0)
	require.True(t, ok)
	assert.Equal(t, len(`select 'from' as "from", [from] `), sp.Start)
	assert.Equal(t, sp.Start+4, sp.End)
}

func TestFindWordBoundaries(t *testing.T) {
	assert.Equal(t, -1, IndexOf("select fromage, x_from from_t", "from", 0))
	assert.Equal(t, 9, IndexOf("select a FROM t", "from", 0))
	sp, ok := Find("x order   by y", "order by", 0)
	require.True(t, ok)
	assert.Equal(t, Span{Start: 2, End: 12}, sp)
}

func TestIndexOfSelectSkipsWith(t *testing.T) {
	s := "with recursive cte(id) as (select 1 union all select id + 1 from cte) select id from cte"
	assert.Equal(t, len("with recursive cte(id) as (select 1 union all select id + 1 from cte) "), IndexOfSelect(s))
	assert.Equal(t, 0, IndexOfSelect("select 1"))
	assert.Equal(t, -1, IndexOfSelect("update t set a = (select 1)"))
}

func TestIndexOfOrderBy(t *testing.T) {
	s := "select row_number() over (order by a) from t order by b desc limit 10"
	assert.Equal(t, len("select row_number() over (order by a) from t "), IndexOfOrderBy(s))
	assert.Equal(t, -1, IndexOfOrderBy("select x from (select y from t order by y) s"))
}

func TestIndexOfFromAndWhere(t *testing.T) {
	s := "select (select max(x) from u) as m from t where a = (select 1 from dual)"
	sel := IndexOfSelect(s)
	assert.Equal(t, len("select (select max(x) from u) as m "), IndexOfFrom(s, sel))
	assert.Equal(t, len("select (select max(x) from u) as m from t "), IndexOfWhere(s, sel))
}

func TestSelectItems(t *testing.T) {
	s := "select distinct d.id, d.name as name, count(c.id) cnt, coalesce(a, b), 'x, y' as \"lit\", d.age + 1 from document d"
	items := SelectItemExpressions(s, IndexOfSelect(s))
	require.Equal(t, []string{"d.id", "d.name as name", "count(c.id) cnt", "coalesce(a, b)", "'x, y' as \"lit\"", "d.age + 1"}, items)
	assert.Equal(t, []string{"id", "name", "cnt", "", "lit", ""}, SelectItemAliases(s, IndexOfSelect(s)))
	assert.Equal(t, 6, CountSelectItems(s))
}

func TestSelectItemsNested(t *testing.T) {
	s := "select x from (select a as x, b as y from t) s"
	inner := IndexOf(s, "select", 1)
	assert.Equal(t, []string{"x", "y"}, SelectItemAliases(s, inner))
}

func TestSplitAlias(t *testing.T) {
	tests := []struct {
		item, expr, alias string
	}{
		{"a.b as c", "a.b", "c"},
		{"cast(a as varchar) as c", "cast(a as varchar)", "c"},
		{"cast(a as varchar)", "cast(a as varchar)", ""},
		{"a + b", "a + b", ""},
		{"case when a is null then 1 else 0 end", "case when a is null then 1 else 0 end", ""},
		{"sum(x) total", "sum(x)", "total"},
		{"a.has_b", "a.has_b", ""},
		{"x as [my alias]", "x", "my alias"},
	}
	for _, tt := range tests {
		t.Run(tt.item, func(t *testing.T) {
			expr, alias := SplitAlias(tt.item)
			assert.Equal(t, tt.expr, expr)
			assert.Equal(t, tt.alias, alias)
		})
	}
}

func TestIndexOfFinalTableSubquery(t *testing.T) {
	s := "select ret_col_0 from final table (insert into t(a) values (?))"
	i := IndexOfFinalTableSubquery(s, 0)
	require.Equal(t, len("select ret_col_0 from final table "), i)
	assert.Equal(t, len(s)-1, MatchingParen(s, i))
	assert.Equal(t, -1, IndexOfFinalTableSubquery("select 1 from t", 0))
}

func TestSplitTopLevel(t *testing.T) {
	assert.Equal(t, []string{"a", "f(b, c)", "'d,e'"}, SplitTopLevel("a, f(b, c), 'd,e'", ','))
	assert.Equal(t, []string{""}, SplitTopLevel("", ','))
}

func TestUnparenthesize(t *testing.T) {
	assert.Equal(t, "select 1", Unparenthesize(" ((select 1)) "))
	assert.Equal(t, "(a) + (b)", Unparenthesize("(a) + (b)"))
}

func TestComments(t *testing.T) {
	s := "select a -- from x\n, b /* from y */ from t"
	assert.Equal(t, []string{"a -- from x", "b /* from y */"}, SelectItemExpressions(s, 0))
}
