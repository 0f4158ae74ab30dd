package function

import (
	"strconv"
	"strings"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/dialect/sql/sqltext"
)

// dummyOrderBy is the ORDER BY added for limits of unordered queries.
const dummyOrderBy = "(select 0)"

// Excised is a query whose limit clause was cut out by ExciseLimit.
type Excised struct {
	// Query is the statement without its ORDER BY and limit clauses.
	Query string
	// OrderBy is the text of the excised ORDER BY list, or empty.
	OrderBy string
	// Limit and Offset are the excised bounds, or empty.
	Limit, Offset string
}

// ExciseLimit removes the trailing limit clause of query, in any vendor
// syntax, together with the ORDER BY that precedes it. It reports false if the
// query has no limit clause. Enclosing parentheses are stripped.
func ExciseLimit(d *dbms.Dialect, query string) (Excised, bool) {
	query = sqltext.Unparenthesize(query)
	c, ok := d.LimitHandler().Find(query)
	if !ok {
		return Excised{}, false
	}
	e := Excised{
		Query:  strings.TrimSpace(query[:c.Start]),
		Limit:  c.Limit,
		Offset: c.Offset,
	}
	if i := sqltext.IndexOfOrderBy(e.Query); i >= 0 {
		sp, _ := sqltext.FindTopLevel(e.Query, "order by", i, len(e.Query))
		e.OrderBy = strings.TrimSpace(e.Query[sp.End:])
		e.Query = strings.TrimSpace(e.Query[:i])
		if e.OrderBy == dummyOrderBy {
			e.OrderBy = ""
		}
	}
	return e, true
}

// Condition returns the predicate on the row number column col that selects
// the excised rows, e.g. "rn > 5 and rn <= 15". A positional "?" offset can
// not be referenced twice and is rejected when a limit is present as well.
func (e Excised) Condition(col string) (string, error) {
	switch {
	case e.Limit != "" && e.Offset != "":
		o, oerr := strconv.Atoi(e.Offset)
		l, lerr := strconv.Atoi(e.Limit)
		if oerr == nil && lerr == nil {
			return col + " > " + e.Offset + " and " + col + " <= " + strconv.Itoa(o+l), nil
		}
		if strings.TrimSpace(e.Offset) == "?" {
			return "", blaze.NewConfigurationError("limit", "a positional offset parameter can not be reused in the row number condition")
		}
		return col + " > " + e.Offset + " and " + col + " <= " + e.Offset + " + " + e.Limit, nil
	case e.Limit != "":
		return col + " <= " + e.Limit, nil
	case e.Offset != "":
		return col + " > " + e.Offset, nil
	}
	return "", nil
}

// WithRowNumber returns Query with an additional select item
// "row_number() over (order by <OrderBy>) as col". The order keys are copied
// as written; keys naming a select item by alias or position are replaced by
// the expression of the item.
func (e Excised) WithRowNumber(d *dbms.Dialect, col string) (string, error) {
	sel := sqltext.IndexOfSelect(e.Query)
	if sel < 0 {
		return "", blaze.NewConfigurationError("limit", "subquery is not a select: %s", e.Query)
	}
	keys, err := e.orderKeys(sqltext.SelectItemExpressions(e.Query, sel))
	if err != nil {
		return "", err
	}
	return appendRowNumber(e.Query, over(d, keys, nil), col)
}

// RowNumbered renames the select items of Query to names and numbers its
// rows in col, in the excised order. DISTINCT, grouped and compound queries
// are numbered in a derived table, since row_number() would be computed
// before their rows are merged. It reports false when an order key of such
// a query is not one of its select items.
func (e Excised) RowNumbered(d *dbms.Dialect, names []string, col string) (string, bool, error) {
	sel := sqltext.IndexOfSelect(e.Query)
	if sel < 0 {
		return "", false, blaze.NewConfigurationError("limit", "subquery is not a select: %s", e.Query)
	}
	keys, err := e.orderKeys(sqltext.SelectItemExpressions(e.Query, sel))
	if err != nil {
		return "", false, err
	}
	aliased, err := aliasSelectItems(e.Query, names)
	if err != nil {
		return "", false, blaze.NewConfigurationError("limit", "%v", err)
	}
	if !mergesRows(e.Query, sel) {
		q, err := appendRowNumber(aliased, over(d, keys, nil), col)
		return q, err == nil, err
	}
	cols := make([]string, len(keys))
	for i, k := range keys {
		if k.item < 0 {
			return "", false, nil
		}
		cols[i] = numberedAlias + "." + names[k.item]
	}
	return "select " + numberedAlias + ".*, row_number() over (" + over(d, keys, cols) + ") as " + col +
		" from (" + aliased + ") " + numberedAlias, true, nil
}

// Limited renames the select items of Query to names and applies the excised
// ORDER BY and limit again. Order keys naming a select alias or position are
// replaced by the expression of the item.
func (e Excised) Limited(d *dbms.Dialect, names []string) (string, error) {
	sel := sqltext.IndexOfSelect(e.Query)
	if sel < 0 {
		return "", blaze.NewConfigurationError("limit", "subquery is not a select: %s", e.Query)
	}
	keys, err := e.orderKeys(sqltext.SelectItemExpressions(e.Query, sel))
	if err != nil {
		return "", err
	}
	q, err := aliasSelectItems(e.Query, names)
	if err != nil {
		return "", blaze.NewConfigurationError("limit", "%v", err)
	}
	if len(keys) > 0 {
		q += " " + over(d, keys, nil)
	}
	return d.LimitHandler().Apply(q, e.Limit, e.Offset), nil
}

// numberedAlias is the derived table numbered by RowNumbered.
const numberedAlias = "q_"

// orderKey is an item of an excised ORDER BY.
type orderKey struct {
	expr string
	// suffix is the direction and null precedence, as written.
	suffix string
	// item is the index of the select item the key refers to, or -1.
	item int
}

func (e Excised) orderKeys(items []string) ([]orderKey, error) {
	if e.OrderBy == "" {
		return nil, nil
	}
	exprs := make([]string, len(items))
	aliases := make([]string, len(items))
	for i, item := range items {
		exprs[i], aliases[i] = sqltext.SplitAlias(item)
	}
	var keys []orderKey
	for _, raw := range sqltext.SplitTopLevel(e.OrderBy, ',') {
		raw = strings.TrimSpace(raw)
		expr := dbms.ParseOrder(raw).Expr
		k := orderKey{expr: expr, suffix: raw[len(expr):], item: -1}
		if n, err := strconv.Atoi(expr); err == nil {
			if n < 1 || n > len(items) {
				return nil, blaze.NewConfigurationError("limit", "order by position %d is not a select item", n)
			}
			k.item = n - 1
		} else {
			name := strings.Trim(expr, "\"`[]")
			for i := range items {
				if aliases[i] != "" && strings.EqualFold(aliases[i], name) {
					k.item = i
					break
				}
			}
			for i := 0; k.item < 0 && i < len(items); i++ {
				if strings.EqualFold(exprs[i], expr) {
					k.item = i
				}
			}
		}
		if k.item >= 0 {
			k.expr = exprs[k.item]
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// over renders the window of the row number. cols replaces the expressions
// of the keys when set.
func over(d *dbms.Dialect, keys []orderKey, cols []string) string {
	if len(keys) == 0 {
		return strings.TrimSpace(d.WindowDummyOrderBy())
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		expr := k.expr
		if cols != nil {
			expr = cols[i]
		}
		parts[i] = expr + k.suffix
	}
	return "order by " + strings.Join(parts, ", ")
}

func appendRowNumber(query, window, col string) (string, error) {
	sel := sqltext.IndexOfSelect(query)
	if sel < 0 {
		return "", blaze.NewConfigurationError("limit", "subquery is not a select: %s", query)
	}
	clause, _ := sqltext.SelectClause(query, sel)
	head := strings.TrimRight(query[:clause.End], " \n\t")
	return head + ", row_number() over (" + window + ") as " + col + " " + strings.TrimLeft(query[clause.End:], " \n\t"), nil
}

// mergesRows reports whether the select starting at sel is DISTINCT, grouped
// or a set operation.
func mergesRows(query string, sel int) bool {
	kw, _ := sqltext.FindTopLevel(query, "select", sel, len(query))
	if clause, ok := sqltext.SelectClause(query, sel); ok && strings.Contains(strings.ToLower(query[kw.End:clause.Start]), "distinct") {
		return true
	}
	for _, k := range []string{"group by", "union", "intersect", "except", "minus"} {
		if _, ok := sqltext.FindTopLevel(query, k, sel, len(query)); ok {
			return true
		}
	}
	return false
}

// LimitFunction is the limit(subquery, limit[, offset]) function.
// Where LIMIT is not allowed in quantified subqueries the limited query is
// wrapped in a derived table.
type LimitFunction struct{}

// Render implements Function.
func (LimitFunction) Render(c *RenderContext) error {
	if n := c.ArgumentsSize(); n < 2 || n > 3 {
		return blaze.NewConfigurationError("limit", "got %d arguments, want 2 or 3", n)
	}
	d := c.Dialect()
	query := sqltext.Unparenthesize(c.Argument(0))
	offset := ""
	if c.ArgumentsSize() == 3 {
		offset = strings.TrimSpace(c.Argument(2))
	}
	limited := d.LimitHandler().Apply(query, strings.TrimSpace(c.Argument(1)), offset)
	c.AddChunk("(")
	if !d.SupportsLimitInQuantifiedSubquery {
		c.AddChunk("select * from (")
		c.AddChunk(limited)
		c.AddChunk(") tmp_lim_")
	} else {
		c.AddChunk(limited)
	}
	c.AddChunk(")")
	return nil
}
