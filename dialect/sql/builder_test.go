package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name  string
		style BindStyle
		in    string
		want  string
	}{
		{"question", BindQuestion, "a = ? and b = ?", "a = ? and b = ?"},
		{"dollar", BindDollar, "a = ? and b = ?", "a = $1 and b = $2"},
		{"at", BindAt, "a = ? and b = ?", "a = @p1 and b = @p2"},
		{"colon", BindColon, "a = ? and b = ?", "a = :1 and b = :2"},
		{"literal", BindDollar, "a = '?' and b = ?", "a = '?' and b = $1"},
		{"escaped literal", BindDollar, "a = 'it''s ?' and b = ?", "a = 'it''s ?' and b = $1"},
		{"quoted identifier", BindDollar, `select "a?" from t where b = ?`, `select "a?" from t where b = $1`},
		{"brackets", BindAt, "select [a?] from t where b = ?", "select [a?] from t where b = @p1"},
		{"line comment", BindDollar, "select ? -- what?\nfrom t", "select $1 -- what?\nfrom t"},
		{"block comment", BindDollar, "select /* ? */ ?", "select /* ? */ $1"},
		{"none", BindDollar, "select 1", "select 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rebind(tt.style, tt.in))
		})
	}
}

func TestQuoteStyle(t *testing.T) {
	assert.Equal(t, `"person"`, QuoteDouble.Quote("person"))
	assert.Equal(t, `"public"."person"`, QuoteDouble.Quote("public.person"))
	assert.Equal(t, "`per``son`", QuoteBacktick.Quote("per`son"))
	assert.Equal(t, "[dbo].[person]", QuoteBracket.Quote("dbo.person"))
	assert.Equal(t, `"a""b"`, QuoteDouble.Quote(`a"b`))
}

func TestBuilder(t *testing.T) {
	var b Builder
	b.WriteString("select * from person where").Pad().WriteString("id in (").Args(1, 2).WriteByte(')')
	b.Pad().Append("and name = ?", "x")
	other := &Builder{}
	other.WriteString(" and age > ").Arg(18)
	b.Join(other)
	query, args := b.Query()
	require.Equal(t, "select * from person where id in (?, ?) and name = ? and age > ?", query)
	require.Equal(t, []any{1, 2, "x", 18}, args)
	require.Equal(t, len(query), b.Len())
}
