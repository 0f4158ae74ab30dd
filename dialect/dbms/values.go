package dbms

import (
	"fmt"

	"github.com/syssam/blaze/dialect/sql"
)

// AppendValues renders rows of arguments as a derived table named alias with
// the given columns, using the values strategy of the dialect:
//
//	(values (?, ?), (?, ?)) alias(a, b)
//	(select ? a, ? b from dual union all select ?, ? from dual) alias
func (d *Dialect) AppendValues(b *sql.Builder, alias string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return fmt.Errorf("dbms: values table %q without rows", alias)
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("dbms: values row %d has %d values, want %d", i, len(row), len(columns))
		}
	}
	b.WriteByte('(')
	switch d.values {
	case ValuesSelectUnion:
		for i, row := range rows {
			if i > 0 {
				b.WriteString(" union all ")
			}
			b.WriteString("select ")
			for j, v := range row {
				if j > 0 {
					b.WriteString(", ")
				}
				b.Arg(v)
				if i == 0 {
					b.WriteByte(' ').WriteString(columns[j])
				}
			}
			if d.dummyTable != "" {
				b.WriteString(" from ").WriteString(d.dummyTable)
			}
		}
		b.WriteString(") ").WriteString(alias)
	default:
		b.WriteString("values ")
		for i, row := range rows {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(').Args(row...).WriteByte(')')
		}
		b.WriteString(") ").WriteString(alias).WriteByte('(')
		for j, c := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c)
		}
		b.WriteByte(')')
	}
	return nil
}
