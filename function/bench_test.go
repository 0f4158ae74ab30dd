package function

import (
	"testing"

	"github.com/syssam/blaze/dialect/dbms"
)

func BenchmarkExpand(b *testing.B) {
	r := NewRegistry(dbms.Postgres())
	expr := "upper(group_concat(DISTINCT d.name SEPARATOR ', ' ORDER BY d.name DESC NULLS LAST)) || 'group_concat(x)'"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := r.Expand(expr); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRenderGroupConcat(b *testing.B) {
	gc := GroupConcat{
		Expr:      "d.name",
		Separator: "', '",
		OrderBy:   []dbms.Order{{Expr: "d.name", Descending: true}},
	}
	for _, d := range []*dbms.Dialect{dbms.Postgres(), dbms.MySQL(), dbms.Oracle(), dbms.SQLServer()} {
		b.Run(d.Name(), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := RenderGroupConcat(d, gc); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkExciseLimit(b *testing.B) {
	d := dbms.Postgres()
	query := "select d.id, (select count(*) from revision r where r.document_id = d.id limit 1) from document d order by d.name limit 10 offset 5"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, ok := ExciseLimit(d, query); !ok {
			b.Fatal("limit not found")
		}
	}
}
