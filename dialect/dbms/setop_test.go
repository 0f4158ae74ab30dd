package dbms

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/blaze"
)

func TestAppendSet(t *testing.T) {
	tests := []struct {
		name    string
		dialect *Dialect
		query   SetQuery
		want    string
	}{
		{
			name:    "union without outer clause",
			dialect: Postgres(),
			query:   SetQuery{Op: Union, Operands: []string{"select a from t", "select a from u"}},
			want:    "select a from t\nunion\nselect a from u",
		},
		{
			name:    "outer order and limit",
			dialect: Postgres(),
			query: SetQuery{
				Op:       UnionAll,
				Operands: []string{"select a.id as id from a", "select b.id as id from b"},
				OrderBy:  []SetOrder{{Position: 1}},
				Limit:    "10",
			},
			want: "select * from (select a.id as id from a\nunion all\nselect b.id as id from b) set_op_1 order by 1 asc nulls last limit 10",
		},
		{
			name:    "emulated null precedence orders by alias",
			dialect: MySQL(),
			query: SetQuery{
				Op:       Union,
				Operands: []string{"select a.id as id from a", "select b.id as id from b"},
				OrderBy:  []SetOrder{{Position: 1}},
			},
			want: "select * from (select a.id as id from a\nunion\nselect b.id as id from b) set_op_1 order by case when id is null then 1 else 0 end, id asc",
		},
		{
			name:    "natural null precedence orders by position",
			dialect: MySQL(),
			query: SetQuery{
				Op:       Union,
				Operands: []string{"select a from t", "select a from u"},
				OrderBy:  []SetOrder{{Position: 1, Descending: true}},
			},
			want: "select * from (select a from t\nunion\nselect a from u) set_op_1 order by 1 desc",
		},
		{
			name:    "ordered operand is wrapped",
			dialect: Postgres(),
			query:   SetQuery{Op: Union, Operands: []string{"select a from t order by a limit 1", "select a from u"}},
			want:    "select * from (select a from t order by a limit 1) set_op_1\nunion\nselect a from u",
		},
		{
			name:    "parenthesized first operand",
			dialect: Oracle(),
			query:   SetQuery{Op: Union, Operands: []string{"(select a from t)", "(select a from u)"}},
			want:    "select a from t\nunion\n(select a from u)",
		},
		{
			name:    "native intersect all",
			dialect: Postgres(),
			query:   SetQuery{Op: IntersectAll, Operands: []string{"select a from t", "select a from u"}},
			want:    "select a from t\nintersect all\nselect a from u",
		},
		{
			name:    "oracle minus all emulation",
			dialect: Oracle(),
			query:   SetQuery{Op: ExceptAll, Operands: []string{"select t.a as a from t", "select u.a as a from u"}},
			want: "select a from (select row_number() over (partition by t.a) as set_op_row_num_, t.a as a from t\n" +
				"minus\n" +
				"select row_number() over (partition by u.a) as set_op_row_num_, u.a as a from u)",
		},
		{
			name:    "sqlserver intersect all emulation",
			dialect: SQLServer(),
			query:   SetQuery{Op: IntersectAll, Operands: []string{"select t.a as a from t", "select u.a as a from u"}},
			want: "select a from (select row_number() over (partition by t.a order by (select 0)) as set_op_row_num_, t.a as a from t\n" +
				"intersect\n" +
				"select row_number() over (partition by u.a order by (select 0)) as set_op_row_num_, u.a as a from u) set_op_1",
		},
		{
			name:    "sqlserver outer limit",
			dialect: SQLServer(),
			query:   SetQuery{Op: Union, Operands: []string{"select a from t", "select a from u"}, Limit: "5"},
			want:    "select * from (select a from t\nunion\nselect a from u) set_op_1 order by (select 0) offset 0 rows fetch next 5 rows only",
		},
		{
			name:    "subquery",
			dialect: Postgres(),
			query:   SetQuery{Op: Union, Operands: []string{"select a from t", "select a from u"}, Limit: "5", Subquery: true},
			want:    "(select * from (select a from t\nunion\nselect a from u) set_op_1 limit 5)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			require.NoError(t, tt.dialect.AppendSet(&b, tt.query))
			assert.Equal(t, tt.want, b.String())
		})
	}
}

func TestAppendSetErrors(t *testing.T) {
	var b strings.Builder
	err := MySQL().AppendSet(&b, SetQuery{Op: Intersect, Operands: []string{"select a from t", "select a from u"}})
	require.Error(t, err)
	assert.True(t, blaze.IsUnsupported(err))

	// MySQL 8 has window functions but no INTERSECT to build on.
	err = MySQL8().AppendSet(&b, SetQuery{Op: ExceptAll, Operands: []string{"select a from t", "select a from u"}})
	assert.True(t, blaze.IsUnsupported(err))

	err = Oracle().AppendSet(&b, SetQuery{Op: IntersectAll, Operands: []string{"select t.a + 1 from t", "select a from u"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no alias")

	err = MySQL().AppendSet(&b, SetQuery{
		Op:       Union,
		Operands: []string{"select a from t", "select a from u"},
		OrderBy:  []SetOrder{{Position: 2}},
	})
	require.Error(t, err)
	assert.Empty(t, b.String())

	require.NoError(t, Postgres().AppendSet(&b, SetQuery{Op: Union}))
	assert.Empty(t, b.String())
}

func TestSetOperatorString(t *testing.T) {
	assert.Equal(t, "union all", UnionAll.String())
	assert.Equal(t, "except all", ExceptAll.String())
	assert.True(t, IntersectAll.All())
	assert.False(t, Except.All())
}
