package function

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/dialect/sql/sqltext"
)

const (
	// sourceAlias is the alias of the derived table aggregated by
	// to_string_xml and to_string_json.
	sourceAlias = "x"
	// rowNumberColumn numbers the rows of a top-N source.
	rowNumberColumn = "rn_"
	// xmlElement is the element wrapping every row of to_string_xml.
	xmlElement = "e"
)

// source is the subquery aggregated by to_string_xml and to_string_json.
type source struct {
	dialect *dbms.Dialect
	// from is the parenthesized subquery.
	from   string
	fields []string
	// where restricts the rows of a top-N source to the requested window.
	where string
	// ordered reports whether rows are aggregated in row number order.
	ordered bool
}

// parseSource reads the arguments (subquery, 'field', ...). The select items
// of the subquery are renamed to the field names. A limit clause of the
// subquery is replaced by a row number window where the dialect supports it,
// so that the aggregate keeps the order of the subquery.
func parseSource(c *RenderContext) (*source, error) {
	if c.ArgumentsSize() < 2 {
		return nil, blaze.NewConfigurationError(c.Name(), "expected a subquery and at least one field name")
	}
	d := c.Dialect()
	src := &source{dialect: d}
	for _, a := range c.Arguments()[1:] {
		name, ok := unquoteLiteral(a)
		if !ok || name == "" {
			return nil, blaze.NewConfigurationError(c.Name(), "field name %s is not a string literal", a)
		}
		for i := 0; i < len(name); i++ {
			if !sqltext.IsIdentChar(name[i]) {
				return nil, blaze.NewConfigurationError(c.Name(), "invalid field name %q", name)
			}
		}
		src.fields = append(src.fields, name)
	}
	query := sqltext.Unparenthesize(c.Argument(0))
	aliased, err := aliasSelectItems(query, src.fields)
	if err != nil {
		return nil, blaze.NewConfigurationError(c.Name(), "%v", err)
	}
	if e, ok := ExciseLimit(d, query); ok {
		if d.SupportsWindowFunctions {
			if src.where, err = e.Condition(sourceAlias + "." + rowNumberColumn); err != nil {
				return nil, err
			}
			if aliased, src.ordered, err = e.RowNumbered(d, src.fields, rowNumberColumn); err != nil {
				return nil, err
			}
		}
		if !src.ordered {
			src.where = ""
			if aliased, err = e.Limited(d, src.fields); err != nil {
				return nil, err
			}
		}
	}
	src.from = "(" + aliased + ")"
	return src, nil
}

// aliasSelectItems renames the select items of query to names.
func aliasSelectItems(query string, names []string) (string, error) {
	sel := sqltext.IndexOfSelect(query)
	if sel < 0 {
		return "", errors.New("the first argument is not a subquery")
	}
	clause, _ := sqltext.SelectClause(query, sel)
	items := sqltext.SelectItemExpressions(query, sel)
	if len(items) != len(names) {
		return "", fmt.Errorf("the subquery selects %d items for %d field names", len(items), len(names))
	}
	for i, item := range items {
		expr, _ := sqltext.SplitAlias(item)
		items[i] = expr + " as " + names[i]
	}
	return strings.TrimRight(query[:clause.Start], " ") + " " + strings.Join(items, ", ") + " " + strings.TrimLeft(query[clause.End:], " "), nil
}

func (s *source) column(field string) string { return sourceAlias + "." + field }

// rowOrder orders by the row number without null precedence handling.
func (s *source) rowOrder() []dbms.Order {
	if !s.ordered {
		return nil
	}
	return []dbms.Order{{Expr: s.column(rowNumberColumn), NullsFirst: !s.dialect.NullsHigh()}}
}

// orderBy returns " order by x.rn_" for ordered sources.
func (s *source) orderBy() string {
	if !s.ordered {
		return ""
	}
	return " order by " + s.column(rowNumberColumn)
}

// tail returns the FROM and WHERE clauses of the aggregating select.
func (s *source) tail() string {
	t := " from " + s.from + " " + sourceAlias
	if s.where != "" {
		t += " where " + s.where
	}
	return t
}

// concat renders a string concatenation of parts.
func concat(d *dbms.Dialect, parts ...string) string {
	if d.Is(dialect.MySQL, dialect.MySQL8, dialect.MariaDB) {
		return "concat(" + strings.Join(parts, ", ") + ")"
	}
	return strings.Join(parts, " || ")
}

// ToStringXML is the to_string_xml(subquery, 'field', ...) function. It
// aggregates the rows of the subquery into an XML string with an element
// named e per row and one child element per field.
type ToStringXML struct{}

// Render implements Function.
func (ToStringXML) Render(c *RenderContext) error {
	s, err := parseSource(c)
	if err != nil {
		return err
	}
	d := c.Dialect()
	forest := func(quote bool) string {
		items := make([]string, len(s.fields))
		for i, f := range s.fields {
			alias := f
			if quote {
				alias = `"` + f + `"`
			}
			items[i] = s.column(f) + " as " + alias
		}
		return "xmlforest(" + strings.Join(items, ", ") + ")"
	}
	switch d.Name() {
	case dialect.Postgres:
		c.AddChunk("(select cast(xmlagg(xmlelement(name " + xmlElement + ", " + forest(false) + ")" + s.orderBy() + ") as text)" + s.tail() + ")")
	case dialect.Oracle:
		c.AddChunk("(select xmlagg(xmlelement(name \"" + xmlElement + "\", " + forest(true) + ")" + s.orderBy() + ").getClobVal()" + s.tail() + ")")
	case dialect.DB2:
		c.AddChunk("(select xmlserialize(xmlagg(xmlelement(name \"" + xmlElement + "\", " + forest(true) + ")" + s.orderBy() + ") as clob)" + s.tail() + ")")
	case dialect.SQLServer:
		c.AddChunk("(select " + s.selectFields() + s.tail() + s.orderBy() + " for xml path('" + xmlElement + "'))")
	default:
		parts := []string{"'<" + xmlElement + ">'"}
		for _, f := range s.fields {
			v := s.column(f)
			escaped := "replace(replace(replace(" + d.Cast(v, dbms.TypeString) + ", '&', '&amp;'), '<', '&lt;'), '>', '&gt;')"
			parts = append(parts, "case when "+v+" is null then '' else "+concat(d, "'<"+f+">'", escaped, "'</"+f+">'")+" end")
		}
		parts = append(parts, "'</"+xmlElement+">'")
		agg, err := RenderGroupConcat(d, GroupConcat{Expr: concat(d, parts...), Separator: "''", OrderBy: s.rowOrder()})
		if err != nil {
			return err
		}
		c.AddChunk("(select " + agg + s.tail() + ")")
	}
	return nil
}

func (s *source) selectFields() string {
	items := make([]string, len(s.fields))
	for i, f := range s.fields {
		items[i] = s.column(f) + " as " + f
	}
	return strings.Join(items, ", ")
}

// ToStringJSON is the to_string_json(subquery, 'field', ...) function. It
// aggregates the rows of the subquery into a JSON array with one object per
// row.
type ToStringJSON struct{}

// Render implements Function.
func (ToStringJSON) Render(c *RenderContext) error {
	s, err := parseSource(c)
	if err != nil {
		return err
	}
	d := c.Dialect()
	object := func(sep string) string {
		items := make([]string, len(s.fields))
		for i, f := range s.fields {
			items[i] = "'" + f + "'" + sep + s.column(f)
		}
		return strings.Join(items, ", ")
	}
	switch d.Name() {
	case dialect.Postgres, dialect.Cockroach:
		c.AddChunk("(select cast(json_agg(json_build_object(" + object(", ") + ")" + s.orderBy() + ") as text)" + s.tail() + ")")
	case dialect.MySQL, dialect.MySQL8, dialect.MariaDB:
		agg, err := RenderGroupConcat(d, GroupConcat{Expr: "json_object(" + object(", ") + ")", Separator: "','", OrderBy: s.rowOrder()})
		if err != nil {
			return err
		}
		c.AddChunk("(select concat('[', " + agg + ", ']')" + s.tail() + ")")
	case dialect.Oracle:
		c.AddChunk("(select json_arrayagg(json_object(" + object(" value ") + ")" + s.orderBy() + " returning clob)" + s.tail() + ")")
	case dialect.SQLServer:
		c.AddChunk("(select " + s.selectFields() + s.tail() + s.orderBy() + " for json path)")
	case dialect.SQLite:
		c.AddChunk("(select json_group_array(json_object(" + object(", ") + ")" + s.orderBy() + ")" + s.tail() + ")")
	default:
		parts := []string{"'{'"}
		for i, f := range s.fields {
			v := s.column(f)
			key := `'"` + f + `":'`
			if i > 0 {
				key = `',"` + f + `":'`
			}
			str := "replace(replace(" + d.Cast(v, dbms.TypeString) + `, '\', '\\'), '"', '\"')`
			parts = append(parts, key, "case when "+v+" is null then 'null' else "+concat(d, `'"'`, str, `'"'`)+" end")
		}
		parts = append(parts, "'}'")
		agg, err := RenderGroupConcat(d, GroupConcat{Expr: concat(d, parts...), Separator: "','", OrderBy: s.rowOrder()})
		if err != nil {
			return err
		}
		c.AddChunk("(select " + concat(d, "'['", agg, "']'") + s.tail() + ")")
	}
	return nil
}
