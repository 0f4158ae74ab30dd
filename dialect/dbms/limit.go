package dbms

import (
	"sort"

	"github.com/syssam/blaze/dialect/sql/sqltext"
)

// LimitClause is a limit clause found at the end of a statement.
type LimitClause struct {
	sqltext.Span
	// Limit and Offset hold the text of the bounds, e.g. "10" or "?".
	// An absent bound is empty.
	Limit, Offset string
}

// LimitHandler renders and recognizes the limit clause of a database.
type LimitHandler interface {
	// Apply appends the limit clause for limit and offset to query.
	// Empty bounds are omitted.
	Apply(query, limit, offset string) string
	// Find locates the limit clause that ends query. Every vendor syntax is
	// recognized so that statements produced elsewhere can be rewritten.
	Find(query string) (LimitClause, bool)
}

// LimitOffsetHandler renders "limit L offset O". MaxLimit is the limit used
// when only an offset is given, for databases that require a limit then.
type LimitOffsetHandler struct {
	MaxLimit string
}

// Apply implements LimitHandler.
func (h LimitOffsetHandler) Apply(query, limit, offset string) string {
	switch {
	case limit != "" && offset != "":
		return query + " limit " + limit + " offset " + offset
	case limit != "":
		return query + " limit " + limit
	case offset != "" && h.MaxLimit != "":
		return query + " limit " + h.MaxLimit + " offset " + offset
	case offset != "":
		return query + " offset " + offset
	}
	return query
}

// Find implements LimitHandler.
func (LimitOffsetHandler) Find(query string) (LimitClause, bool) { return FindLimit(query) }

// OffsetFetchHandler renders the standard "offset O rows fetch next L rows only".
type OffsetFetchHandler struct {
	// RequiresOffset always renders an offset clause (SQL Server).
	RequiresOffset bool
	// RequiresOrderBy adds "order by (select 0)" to unordered statements (SQL Server).
	RequiresOrderBy bool
}

// Apply implements LimitHandler.
func (h OffsetFetchHandler) Apply(query, limit, offset string) string {
	if limit == "" && offset == "" {
		return query
	}
	if h.RequiresOrderBy && sqltext.IndexOfOrderBy(query) < 0 {
		query += " order by (select 0)"
	}
	if offset == "" && h.RequiresOffset {
		offset = "0"
	}
	if offset == "" {
		return query + " fetch first " + limit + " rows only"
	}
	query += " offset " + offset + " rows"
	if limit != "" {
		query += " fetch next " + limit + " rows only"
	}
	return query
}

// Find implements LimitHandler.
func (OffsetFetchHandler) Find(query string) (LimitClause, bool) { return FindLimit(query) }

// FindLimit locates a trailing limit clause in any of the vendor syntaxes:
//
//	limit L
//	limit L offset O
//	limit O, L
//	offset O
//	offset O rows
//	offset O rows fetch next L rows only
//	fetch first L rows only
func FindLimit(query string) (LimitClause, bool) {
	var starts []int
	for _, kw := range []string{"limit", "offset", "fetch"} {
		from := 0
		for {
			sp, ok := sqltext.FindTopLevel(query, kw, from, len(query))
			if !ok {
				break
			}
			starts = append(starts, sp.Start)
			from = sp.End
		}
	}
	sort.Ints(starts)
	for _, start := range starts {
		if c, ok := parseLimitTail(query, start); ok {
			return c, true
		}
	}
	return LimitClause{}, false
}

func parseLimitTail(s string, start int) (LimitClause, bool) {
	c := LimitClause{Span: sqltext.Span{Start: start, End: len(s)}}
	i := start
	parsed := false
	for {
		i = skipSpaces(s, i)
		if i >= len(s) {
			break
		}
		switch {
		case keyword(s, &i, "limit"):
			v, ok := value(s, &i)
			if !ok || c.Limit != "" {
				return c, false
			}
			j := skipSpaces(s, i)
			if j < len(s) && s[j] == ',' {
				i = j + 1
				l, ok := value(s, &i)
				if !ok || c.Offset != "" {
					return c, false
				}
				c.Offset, c.Limit = v, l
			} else {
				c.Limit = v
			}
		case keyword(s, &i, "offset"):
			v, ok := value(s, &i)
			if !ok || c.Offset != "" {
				return c, false
			}
			c.Offset = v
			j := skipSpaces(s, i)
			if keyword(s, &j, "rows") || keyword(s, &j, "row") {
				i = j
			}
		case keyword(s, &i, "fetch first"), keyword(s, &i, "fetch next"):
			v, ok := value(s, &i)
			if !ok || c.Limit != "" {
				return c, false
			}
			c.Limit = v
			i = skipSpaces(s, i)
			if !keyword(s, &i, "rows") && !keyword(s, &i, "row") {
				return c, false
			}
			i = skipSpaces(s, i)
			if !keyword(s, &i, "only") {
				return c, false
			}
		default:
			return c, false
		}
		parsed = true
	}
	return c, parsed
}

func skipSpaces(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// keyword advances i over kw if it starts at i.
func keyword(s string, i *int, kw string) bool {
	sp, ok := sqltext.FindTopLevel(s, kw, *i, len(s))
	if !ok || sp.Start != *i {
		return false
	}
	*i = sp.End
	return true
}

// value reads a limit bound: a parenthesized expression or a single token.
func value(s string, i *int) (string, bool) {
	j := skipSpaces(s, *i)
	if j >= len(s) {
		return "", false
	}
	if s[j] == '(' {
		end := sqltext.MatchingParen(s, j)
		if end < 0 {
			return "", false
		}
		*i = end + 1
		return s[j : end+1], true
	}
	k := j
	for k < len(s) && s[k] != ' ' && s[k] != ',' && s[k] != ')' && s[k] != '\n' && s[k] != '\t' {
		k++
	}
	if k == j {
		return "", false
	}
	*i = k
	return s[j:k], true
}
