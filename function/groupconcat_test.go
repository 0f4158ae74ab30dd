package function

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect/dbms"
)

func TestParseGroupConcat(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want GroupConcat
	}{
		{
			name: "expression only",
			args: []string{"d.name"},
			want: GroupConcat{Expr: "d.name", Separator: DefaultSeparator},
		},
		{
			name: "quoted keywords",
			args: []string{"'DISTINCT'", "d.name", "'SEPARATOR'", "', '", "'ORDER BY'", "d.name", "'DESC NULLS LAST'"},
			want: GroupConcat{
				Distinct:  true,
				Expr:      "d.name",
				Separator: "', '",
				OrderBy:   []dbms.Order{{Expr: "d.name", Descending: true}},
			},
		},
		{
			name: "quoted order before separator",
			args: []string{"d.name", "'ORDER BY'", "d.age", "d.name", "'asc'", "'SEPARATOR'", "'-'"},
			want: GroupConcat{
				Expr:      "d.name",
				Separator: "'-'",
				OrderBy:   []dbms.Order{dbms.Asc("d.age"), dbms.Asc("d.name")},
			},
		},
		{
			name: "inline",
			args: []string{"DISTINCT d.name SEPARATOR ', ' ORDER BY d.age DESC NULLS LAST", "d.id"},
			want: GroupConcat{
				Distinct:  true,
				Expr:      "d.name",
				Separator: "', '",
				OrderBy:   []dbms.Order{{Expr: "d.age", Descending: true}, dbms.Asc("d.id")},
			},
		},
		{
			name: "inline order before separator",
			args: []string{"d.name ORDER BY d.name SEPARATOR '; '"},
			want: GroupConcat{
				Expr:      "d.name",
				Separator: "'; '",
				OrderBy:   []dbms.Order{dbms.Asc("d.name")},
			},
		},
		{
			name: "separator keyword inside a literal",
			args: []string{"concat(d.name, ' separator ')"},
			want: GroupConcat{Expr: "concat(d.name, ' separator ')", Separator: DefaultSeparator},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gc, err := ParseGroupConcat(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, gc)
		})
	}
}

func TestParseGroupConcatErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"quoted multiple separators", []string{"d.name", "'SEPARATOR'", "','", "'SEPARATOR'", "';'"}},
		{"inline multiple separators", []string{"d.name SEPARATOR ',' SEPARATOR ';'"}},
		{"missing expression", []string{"'SEPARATOR'", "','"}},
		{"missing separator literal", []string{"d.name", "'SEPARATOR'"}},
		{"separator not a literal", []string{"d.name SEPARATOR d.sep"}},
		{"quoted separator not a literal", []string{"d.name", "'SEPARATOR'", "d.sep"}},
		{"two expressions", []string{"d.name", "d.id", "'ORDER BY'", "d.id"}},
		{"inline multiple order by", []string{"d.name ORDER BY d.id ORDER BY d.name"}},
		{"inline two expressions", []string{"d.name", "d.id"}},
		{"inline two expressions before order by", []string{"d.name", "d.id ORDER BY d.id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGroupConcat(tt.args)
			require.Error(t, err)
			assert.True(t, blaze.IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestGroupConcatGolden(t *testing.T) {
	calls := []GroupConcat{
		{Expr: "d.name", Separator: "', '", OrderBy: []dbms.Order{{Expr: "d.age", Descending: true}}},
		{Expr: "d.name", Separator: DefaultSeparator, OrderBy: []dbms.Order{dbms.Asc("d.age")}},
		{Distinct: true, Expr: "d.name", Separator: DefaultSeparator},
	}
	var b strings.Builder
	for _, name := range dbms.Names() {
		d, err := dbms.ForName(name)
		require.NoError(t, err)
		for _, gc := range calls {
			s, err := RenderGroupConcat(d, gc)
			if err != nil {
				s = "error: " + err.Error()
			}
			fmt.Fprintf(&b, "%s: %s\n", name, s)
		}
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "group_concat", []byte(b.String()))
}

func TestGroupConcatUnsupported(t *testing.T) {
	_, err := RenderGroupConcat(dbms.SQLServer(), GroupConcat{Distinct: true, Expr: "x", Separator: DefaultSeparator})
	require.Error(t, err)
	assert.True(t, blaze.IsUnsupported(err))

	_, err = RenderGroupConcat(dbms.SQLite(), GroupConcat{Distinct: true, Expr: "x", Separator: "';'"})
	require.Error(t, err)
	assert.True(t, blaze.IsUnsupported(err))
}

func TestGroupConcatFunction(t *testing.T) {
	r := NewRegistry(dbms.MySQL8())
	s, err := r.Render("group_concat", "'DISTINCT'", "d.name", "'ORDER BY'", "d.name", "'DESC'")
	require.NoError(t, err)
	assert.Equal(t, "group_concat(distinct d.name order by case when d.name is null then 0 else 1 end, d.name desc separator ',')", s)

	_, err = r.Render("group_concat", "d.name", "'SEPARATOR'", "','", "'SEPARATOR'", "';'")
	require.Error(t, err)
	assert.True(t, blaze.IsConfigurationError(err))
}
