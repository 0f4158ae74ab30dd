package function

import (
	"strings"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/dialect/sql/sqltext"
)

// DefaultSeparator is the separator literal used when none is given.
const DefaultSeparator = "','"

// GroupConcat is a parsed group_concat call.
type GroupConcat struct {
	Distinct bool
	Expr     string
	// Separator is the separator as a SQL string literal.
	Separator string
	OrderBy   []dbms.Order
}

// ParseGroupConcat parses the arguments of a group_concat call. Two forms are
// accepted. The quoted keyword form passes the keywords as string literals:
//
//	group_concat('DISTINCT', d.name, 'SEPARATOR', ', ', 'ORDER BY', d.name, 'DESC NULLS LAST')
//
// The inline form writes them as part of a single argument:
//
//	group_concat(DISTINCT d.name SEPARATOR ', ' ORDER BY d.name DESC NULLS LAST)
//
// In both forms the separator and the order by can come in either order.
// A second separator is a configuration error.
func ParseGroupConcat(args []string) (GroupConcat, error) {
	for _, a := range args {
		if isQuotedKeyword(a, "DISTINCT", "SEPARATOR", "ORDER BY") {
			return parseQuotedGroupConcat(args)
		}
	}
	return parseInlineGroupConcat(strings.Join(args, ", "))
}

func parseQuotedGroupConcat(args []string) (GroupConcat, error) {
	gc := GroupConcat{}
	const (
		modeExpr = iota
		modeSeparator
		modeOrderBy
	)
	var (
		mode         = modeExpr
		hasSeparator bool
	)
	for i := 0; i < len(args); i++ {
		arg := strings.TrimSpace(args[i])
		switch {
		case i == 0 && isQuotedKeyword(arg, "DISTINCT"):
			gc.Distinct = true
		case isQuotedKeyword(arg, "SEPARATOR"):
			if hasSeparator {
				return gc, blaze.NewConfigurationError("group_concat", "multiple separators")
			}
			hasSeparator, mode = true, modeSeparator
		case isQuotedKeyword(arg, "ORDER BY"):
			mode = modeOrderBy
		default:
			switch mode {
			case modeExpr:
				if gc.Expr != "" {
					return gc, blaze.NewConfigurationError("group_concat", "unexpected argument %s", arg)
				}
				gc.Expr = arg
			case modeSeparator:
				if gc.Separator != "" {
					return gc, blaze.NewConfigurationError("group_concat", "unexpected argument %s after the separator", arg)
				}
				if _, ok := unquoteLiteral(arg); !ok {
					return gc, blaze.NewConfigurationError("group_concat", "separator %s is not a string literal", arg)
				}
				gc.Separator = arg
			case modeOrderBy:
				o := dbms.NewOrder(arg, false)
				if i+1 < len(args) {
					if spec, ok := orderSpec(args[i+1]); ok {
						o.Descending, o.NullsFirst = spec.Descending, spec.NullsFirst
						i++
					}
				}
				gc.OrderBy = append(gc.OrderBy, o)
			}
		}
	}
	return gc.complete(hasSeparator)
}

// orderSpec parses a quoted order specification such as 'DESC NULLS LAST'.
func orderSpec(arg string) (dbms.Order, bool) {
	s, ok := unquoteLiteral(arg)
	if !ok {
		return dbms.Order{}, false
	}
	switch strings.ToUpper(strings.Join(strings.Fields(s), " ")) {
	case "ASC":
		return dbms.NewOrder("", false), true
	case "DESC":
		return dbms.NewOrder("", true), true
	case "ASC NULLS FIRST":
		return dbms.Order{NullsFirst: true}, true
	case "ASC NULLS LAST":
		return dbms.Order{}, true
	case "DESC NULLS FIRST":
		return dbms.Order{Descending: true, NullsFirst: true}, true
	case "DESC NULLS LAST":
		return dbms.Order{Descending: true}, true
	}
	return dbms.Order{}, false
}

func parseInlineGroupConcat(s string) (GroupConcat, error) {
	gc := GroupConcat{}
	s = strings.TrimSpace(s)
	if sp, ok := sqltext.FindTopLevel(s, "distinct", 0, len(s)); ok && sp.Start == 0 {
		gc.Distinct = true
		s = strings.TrimSpace(s[sp.End:])
	}
	// Clause boundaries in order of appearance.
	type clause struct {
		kw    string
		start int
		end   int
	}
	var clauses []clause
	for _, kw := range []string{"separator", "order by"} {
		from := 0
		for {
			sp, ok := sqltext.FindTopLevel(s, kw, from, len(s))
			if !ok {
				break
			}
			clauses = append(clauses, clause{kw: kw, start: sp.Start, end: sp.End})
			from = sp.End
		}
	}
	for i := 1; i < len(clauses); i++ {
		for j := i; j > 0 && clauses[j].start < clauses[j-1].start; j-- {
			clauses[j], clauses[j-1] = clauses[j-1], clauses[j]
		}
	}
	exprEnd := len(s)
	if len(clauses) > 0 {
		exprEnd = clauses[0].start
	}
	gc.Expr = strings.TrimSpace(s[:exprEnd])
	if parts := sqltext.SplitTopLevel(gc.Expr, ','); len(parts) > 1 {
		return gc, blaze.NewConfigurationError("group_concat", "unexpected argument %s", strings.TrimSpace(parts[1]))
	}
	hasSeparator := false
	for i, c := range clauses {
		end := len(s)
		if i+1 < len(clauses) {
			end = clauses[i+1].start
		}
		body := strings.TrimSpace(s[c.end:end])
		switch c.kw {
		case "separator":
			if hasSeparator {
				return gc, blaze.NewConfigurationError("group_concat", "multiple separators")
			}
			hasSeparator = true
			if _, ok := unquoteLiteral(body); !ok {
				return gc, blaze.NewConfigurationError("group_concat", "separator %s is not a string literal", body)
			}
			gc.Separator = body
		case "order by":
			if gc.OrderBy != nil {
				return gc, blaze.NewConfigurationError("group_concat", "multiple order by clauses")
			}
			for _, key := range sqltext.SplitTopLevel(body, ',') {
				if key == "" {
					return gc, blaze.NewConfigurationError("group_concat", "empty order by item")
				}
				gc.OrderBy = append(gc.OrderBy, dbms.ParseOrder(key))
			}
		}
	}
	return gc.complete(hasSeparator)
}

func (gc GroupConcat) complete(hasSeparator bool) (GroupConcat, error) {
	if gc.Expr == "" {
		return gc, blaze.NewConfigurationError("group_concat", "missing expression")
	}
	if hasSeparator && gc.Separator == "" {
		return gc, blaze.NewConfigurationError("group_concat", "missing separator literal")
	}
	if gc.Separator == "" {
		gc.Separator = DefaultSeparator
	}
	return gc, nil
}

// RenderGroupConcat renders gc for d:
//
//	group_concat(x order by ... separator ',')                 MySQL, MariaDB, H2
//	string_agg(cast(x as varchar), ',' order by ...)          PostgreSQL, CockroachDB
//	string_agg(cast(x as nvarchar(max)), ',') within group (...) SQL Server
//	group_concat(x, ',' order by ...)                         SQLite
//	listagg(x, ',') within group (order by ...)               Oracle, DB2, others
func RenderGroupConcat(d *dbms.Dialect, gc GroupConcat) (string, error) {
	var b strings.Builder
	distinct := ""
	if gc.Distinct {
		distinct = "distinct "
	}
	switch d.Name() {
	case dialect.MySQL, dialect.MySQL8, dialect.MariaDB, dialect.H2:
		b.WriteString("group_concat(")
		b.WriteString(distinct)
		b.WriteString(gc.Expr)
		if len(gc.OrderBy) > 0 {
			b.WriteString(" order by ")
			d.AppendAggregateOrderBy(&b, gc.OrderBy)
		}
		b.WriteString(" separator ")
		b.WriteString(gc.Separator)
		b.WriteByte(')')
	case dialect.Postgres, dialect.Cockroach:
		b.WriteString("string_agg(")
		b.WriteString(distinct)
		b.WriteString(d.Cast(gc.Expr, dbms.TypeString))
		b.WriteString(", ")
		b.WriteString(gc.Separator)
		if len(gc.OrderBy) > 0 {
			b.WriteString(" order by ")
			d.AppendAggregateOrderBy(&b, gc.OrderBy)
		}
		b.WriteByte(')')
	case dialect.SQLServer:
		if gc.Distinct {
			return "", d.Unsupported("distinct in group_concat")
		}
		b.WriteString("string_agg(")
		b.WriteString(d.Cast(gc.Expr, dbms.TypeString))
		b.WriteString(", ")
		b.WriteString(gc.Separator)
		b.WriteByte(')')
		appendWithinGroup(&b, d, gc.OrderBy)
	case dialect.SQLite:
		if gc.Distinct && gc.Separator != DefaultSeparator {
			return "", d.Unsupported("distinct in group_concat with a separator")
		}
		b.WriteString("group_concat(")
		b.WriteString(distinct)
		b.WriteString(gc.Expr)
		if !gc.Distinct {
			b.WriteString(", ")
			b.WriteString(gc.Separator)
		}
		if len(gc.OrderBy) > 0 {
			b.WriteString(" order by ")
			d.AppendAggregateOrderBy(&b, gc.OrderBy)
		}
		b.WriteByte(')')
	default:
		b.WriteString("listagg(")
		b.WriteString(distinct)
		b.WriteString(gc.Expr)
		b.WriteString(", ")
		b.WriteString(gc.Separator)
		b.WriteByte(')')
		appendWithinGroup(&b, d, gc.OrderBy)
	}
	return b.String(), nil
}

func appendWithinGroup(b *strings.Builder, d *dbms.Dialect, orders []dbms.Order) {
	if len(orders) == 0 {
		return
	}
	b.WriteString(" within group (order by ")
	d.AppendAggregateOrderBy(b, orders)
	b.WriteByte(')')
}

// GroupConcatFunction is the group_concat function.
type GroupConcatFunction struct{}

// Render implements Function.
func (GroupConcatFunction) Render(c *RenderContext) error {
	gc, err := ParseGroupConcat(c.Arguments())
	if err != nil {
		return err
	}
	s, err := RenderGroupConcat(c.Dialect(), gc)
	if err != nil {
		return err
	}
	c.AddChunk(s)
	return nil
}
