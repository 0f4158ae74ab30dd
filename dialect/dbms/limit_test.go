package dbms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/blaze/dialect/sql/sqltext"
)

func TestLimitApply(t *testing.T) {
	const q = "select a from t"
	tests := []struct {
		name          string
		dialect       *Dialect
		limit, offset string
		want          string
	}{
		{"postgres limit", Postgres(), "10", "", q + " limit 10"},
		{"postgres both", Postgres(), "10", "5", q + " limit 10 offset 5"},
		{"postgres offset", Postgres(), "", "5", q + " offset 5"},
		{"mysql offset", MySQL(), "", "5", q + " limit 18446744073709551615 offset 5"},
		{"sqlite offset", SQLite(), "", "?", q + " limit -1 offset ?"},
		{"oracle limit", Oracle(), "10", "", q + " fetch first 10 rows only"},
		{"db2 both", DB2(), "10", "5", q + " offset 5 rows fetch next 10 rows only"},
		{"db2 offset", DB2(), "", "5", q + " offset 5 rows"},
		{"sqlserver limit", SQLServer(), "10", "", q + " order by (select 0) offset 0 rows fetch next 10 rows only"},
		{"none", SQLServer(), "", "", q},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.LimitHandler().Apply(q, tt.limit, tt.offset))
		})
	}
	assert.Equal(t,
		"select a from t order by a offset 0 rows fetch next 1 rows only",
		SQLServer().LimitHandler().Apply("select a from t order by a", "1", ""),
	)
}

func TestFindLimit(t *testing.T) {
	tests := []struct {
		query         string
		start         int
		limit, offset string
	}{
		{"select a from t limit 10", 16, "10", ""},
		{"select a from t limit 10 offset 5", 16, "10", "5"},
		{"select a from t LIMIT 5, 10", 16, "10", "5"},
		{"select a from t offset 5 rows fetch next 10 rows only", 16, "10", "5"},
		{"select a from t offset ? rows", 16, "", "?"},
		{"select a from t fetch first ? rows only", 16, "?", ""},
		{"select a from t order by a limit (1 + 1)", 27, "(1 + 1)", ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, ok := FindLimit(tt.query)
			require.True(t, ok)
			assert.Equal(t, sqltext.Span{Start: tt.start, End: len(tt.query)}, c.Span)
			assert.Equal(t, tt.limit, c.Limit)
			assert.Equal(t, tt.offset, c.Offset)
		})
	}
	for _, q := range []string{
		"select a from (select b from u limit 1) x",
		"select a from t where x = 'limit 5'",
		"select limit_value from t",
		"select a from t limit 10 where b = 1",
	} {
		_, ok := FindLimit(q)
		assert.False(t, ok, q)
	}
}

func TestApplyThenFind(t *testing.T) {
	for _, name := range Names() {
		d, err := ForName(name)
		require.NoError(t, err)
		q := d.LimitHandler().Apply("select a from t order by a", "?", "?")
		c, ok := d.LimitHandler().Find(q)
		require.True(t, ok, name)
		assert.Equal(t, "?", c.Limit, name)
		assert.Equal(t, "?", c.Offset, name)
		assert.Equal(t, "select a from t order by a", q[:c.Start-1], name)
	}
}
