// Package sqltext scans generated SQL text.
//
// Every function in this package skips string literals, quoted identifiers
// (double quotes, backticks and brackets) and comments, and matches keywords
// case-insensitively on word boundaries. Functions named TopLevel only match
// outside of parentheses.
package sqltext

import (
	"strings"
)

// scanner walks over SQL text while tracking quoting and nesting.
type scanner struct {
	s     string
	i     int
	depth int
}

// next advances over one significant character and reports it. Quoted
// sections and comments are skipped as a whole and reported as 0.
func (sc *scanner) next() (byte, bool) {
	if sc.i >= len(sc.s) {
		return 0, false
	}
	c := sc.s[sc.i]
	switch {
	case c == '\'' || c == '"' || c == '`' || c == '[':
		sc.i = skipQuoted(sc.s, sc.i)
		return 0, true
	case c == '-' && sc.i+1 < len(sc.s) && sc.s[sc.i+1] == '-':
		if end := strings.IndexByte(sc.s[sc.i:], '\n'); end >= 0 {
			sc.i += end
		} else {
			sc.i = len(sc.s)
		}
		return 0, true
	case c == '/' && sc.i+1 < len(sc.s) && sc.s[sc.i+1] == '*':
		if end := strings.Index(sc.s[sc.i+2:], "*/"); end >= 0 {
			sc.i += end + 4
		} else {
			sc.i = len(sc.s)
		}
		return 0, true
	case c == '(':
		sc.depth++
	case c == ')':
		sc.depth--
	}
	sc.i++
	return c, true
}

// SkipQuoted returns the index after the string literal or quoted identifier
// starting at i. Doubled quote characters are treated as escapes.
func SkipQuoted(s string, i int) int { return skipQuoted(s, i) }

func skipQuoted(s string, i int) int {
	closer := s[i]
	if closer == '[' {
		closer = ']'
	}
	for j := i + 1; j < len(s); j++ {
		if s[j] != closer {
			continue
		}
		if closer != ']' && j+1 < len(s) && s[j+1] == closer {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

// IsIdentChar reports if c can be part of an unquoted identifier.
func IsIdentChar(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// matchKeyword reports whether the keyword (words separated by single spaces)
// starts at position i, and returns the index after it. Words may be separated
// by any amount of whitespace in s.
func matchKeyword(s string, i int, keyword string) (int, bool) {
	if i > 0 && IsIdentChar(s[i-1]) {
		return 0, false
	}
	j := i
	for w, word := range strings.Split(keyword, " ") {
		if w > 0 {
			k := j
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			if k == j {
				return 0, false
			}
			j = k
		}
		if len(s)-j < len(word) || !strings.EqualFold(s[j:j+len(word)], word) {
			return 0, false
		}
		j += len(word)
	}
	if j < len(s) && IsIdentChar(s[j]) && IsIdentChar(keyword[len(keyword)-1]) {
		return 0, false
	}
	return j, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Span is a half open range [Start, End) of a string.
type Span struct {
	Start, End int
}

// Find returns the span of the first occurrence of keyword at or after from,
// at any nesting depth. It returns ok=false when there is none.
func Find(s, keyword string, from int) (Span, bool) {
	return find(s, keyword, from, len(s), false)
}

// FindTopLevel is like Find, but only matches at the nesting depth of from.
// The search stops at to or at the parenthesis closing the current level.
func FindTopLevel(s, keyword string, from, to int) (Span, bool) {
	return find(s, keyword, from, to, true)
}

// FindLastTopLevel returns the last top-level occurrence of keyword in [from, to).
func FindLastTopLevel(s, keyword string, from, to int) (Span, bool) {
	var (
		last  Span
		found bool
	)
	for {
		sp, ok := FindTopLevel(s, keyword, from, to)
		if !ok {
			return last, found
		}
		last, found, from = sp, true, sp.End
	}
}

func find(s, keyword string, from, to int, topLevel bool) (Span, bool) {
	if to > len(s) {
		to = len(s)
	}
	sc := &scanner{s: s, i: from}
	for sc.i < to {
		if !topLevel || sc.depth == 0 {
			if end, ok := matchKeyword(s, sc.i, keyword); ok {
				return Span{Start: sc.i, End: end}, true
			}
		}
		if _, ok := sc.next(); !ok || sc.depth < 0 {
			break
		}
	}
	return Span{}, false
}

// IndexOf returns the index of the first occurrence of keyword at any depth,
// or -1.
func IndexOf(s, keyword string, from int) int {
	if sp, ok := Find(s, keyword, from); ok {
		return sp.Start
	}
	return -1
}

// IndexOfTopLevel returns the index of the first top-level occurrence of
// keyword, or -1.
func IndexOfTopLevel(s, keyword string, from int) int {
	if sp, ok := FindTopLevel(s, keyword, from, len(s)); ok {
		return sp.Start
	}
	return -1
}

// IndexOfSelect returns the index of the main SELECT keyword, skipping the
// common table expressions of a leading WITH clause. It returns -1 if the
// statement has no top-level select.
func IndexOfSelect(s string) int {
	return IndexOfTopLevel(s, "select", 0)
}

// IndexOfFrom returns the index of the FROM keyword that belongs to the select
// starting at selectIndex, or -1.
func IndexOfFrom(s string, selectIndex int) int {
	return IndexOfTopLevel(s, "from", selectIndex)
}

// IndexOfWhere returns the index of the top-level WHERE of the select starting
// at selectIndex, or -1.
func IndexOfWhere(s string, selectIndex int) int {
	return IndexOfTopLevel(s, "where", selectIndex)
}

// IndexOfOrderBy returns the index of the last top-level ORDER BY, or -1.
// Window specifications are nested in parentheses and never match.
func IndexOfOrderBy(s string) int {
	if sp, ok := FindLastTopLevel(s, "order by", 0, len(s)); ok {
		return sp.Start
	}
	return -1
}

// IndexOfFinalTableSubquery returns the index of the opening parenthesis of a
// "final table (...)" or "old table (...)" data change table reference, or -1.
func IndexOfFinalTableSubquery(s string, from int) int {
	for _, kw := range []string{"final table", "old table", "new table"} {
		sp, ok := FindTopLevel(s, kw, from, len(s))
		if !ok {
			continue
		}
		j := sp.End
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		if j < len(s) && s[j] == '(' {
			return j
		}
	}
	return -1
}

// MatchingParen returns the index of the parenthesis closing the one at open,
// or -1.
func MatchingParen(s string, open int) int {
	if open < 0 || open >= len(s) || s[open] != '(' {
		return -1
	}
	sc := &scanner{s: s, i: open}
	for {
		c, ok := sc.next()
		if !ok {
			return -1
		}
		if c == ')' && sc.depth == 0 {
			return sc.i - 1
		}
	}
}

// SplitTopLevel splits s at the top-level occurrences of sep.
func SplitTopLevel(s string, sep byte) []string {
	var (
		parts []string
		start int
		sc    = &scanner{s: s}
	)
	for {
		pos := sc.i
		c, ok := sc.next()
		if !ok {
			break
		}
		if c == sep && sc.depth == 0 {
			parts = append(parts, strings.TrimSpace(s[start:pos]))
			start = pos + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// Unparenthesize strips whitespace and redundant enclosing parentheses.
func Unparenthesize(s string) string {
	s = strings.TrimSpace(s)
	for len(s) > 1 && s[0] == '(' && MatchingParen(s, 0) == len(s)-1 {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// SelectClause returns the span of the select list of the select starting at
// selectIndex, excluding the SELECT keyword and a DISTINCT or ALL modifier.
func SelectClause(s string, selectIndex int) (Span, bool) {
	sp, ok := FindTopLevel(s, "select", selectIndex, len(s))
	if !ok {
		return Span{}, false
	}
	start := sp.End
	for _, mod := range []string{"distinct", "all"} {
		j := start
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		if end, ok := matchKeyword(s, j, mod); ok {
			start = end
			break
		}
	}
	end := len(s)
	if from, ok := FindTopLevel(s, "from", start, len(s)); ok {
		end = from.Start
	} else if sc := closingOf(s, start); sc >= 0 {
		end = sc
	}
	return Span{Start: start, End: end}, true
}

// closingOf returns the index of the parenthesis closing the level that
// contains from, or -1.
func closingOf(s string, from int) int {
	sc := &scanner{s: s, i: from}
	for {
		c, ok := sc.next()
		if !ok {
			return -1
		}
		if c == ')' && sc.depth < 0 {
			return sc.i - 1
		}
	}
}

// SelectItemExpressions returns the select items of the select starting at
// selectIndex, including their aliases.
func SelectItemExpressions(s string, selectIndex int) []string {
	sp, ok := SelectClause(s, selectIndex)
	if !ok {
		return nil
	}
	return SplitTopLevel(s[sp.Start:sp.End], ',')
}

// CountSelectItems returns the number of select items of the main select.
func CountSelectItems(s string) int {
	return len(SelectItemExpressions(s, IndexOfSelect(s)))
}

// SelectItemAliases returns the alias of every select item of the select
// starting at selectIndex. Items without an alias yield their column name, or
// an empty string for other expressions.
func SelectItemAliases(s string, selectIndex int) []string {
	items := SelectItemExpressions(s, selectIndex)
	aliases := make([]string, len(items))
	for i, item := range items {
		aliases[i] = ExtractAlias(item)
	}
	return aliases
}

// SplitAlias splits a select item into its expression and alias.
func SplitAlias(item string) (expr, alias string) {
	item = strings.TrimSpace(item)
	if sp, ok := FindLastTopLevel(item, "as", 0, len(item)); ok {
		return strings.TrimSpace(item[:sp.Start]), unquote(strings.TrimSpace(item[sp.End:]))
	}
	// "expr alias" without AS.
	if j := strings.LastIndexAny(item, " \t\n"); j > 0 {
		candidate := item[j+1:]
		head := strings.TrimSpace(item[:j])
		if isIdentifier(candidate) && head != "" && !endsWithOperator(head) && !isKeyword(candidate) {
			return head, candidate
		}
	}
	return item, ""
}

// ExtractAlias returns the alias of a select item, or the last path segment of
// a plain column reference.
func ExtractAlias(item string) string {
	expr, alias := SplitAlias(item)
	if alias != "" {
		return alias
	}
	if isPath(expr) {
		return unquote(expr[strings.LastIndexByte(expr, '.')+1:])
	}
	return ""
}

func unquote(s string) string {
	if len(s) >= 2 {
		switch {
		case s[0] == '"' && s[len(s)-1] == '"', s[0] == '`' && s[len(s)-1] == '`':
			return s[1 : len(s)-1]
		case s[0] == '[' && s[len(s)-1] == ']':
			return s[1 : len(s)-1]
		}
	}
	return s
}

func isIdentifier(s string) bool {
	if s == "" || s[0] >= '0' && s[0] <= '9' {
		return unquote(s) != s
	}
	for i := 0; i < len(s); i++ {
		if !IsIdentChar(s[i]) {
			return unquote(s) != s
		}
	}
	return true
}

func isPath(s string) bool {
	for _, p := range strings.Split(s, ".") {
		if !isIdentifier(p) {
			return false
		}
	}
	return s != ""
}

func endsWithOperator(s string) bool {
	switch s[len(s)-1] {
	case '+', '-', '*', '/', '=', '<', '>', '|', ',', '(':
		return true
	}
	for _, kw := range []string{"and", "or", "not", "case", "when", "then", "else", "distinct", "select", "is", "in", "like"} {
		if len(s) >= len(kw) && strings.EqualFold(s[len(s)-len(kw):], kw) && (len(s) == len(kw) || !IsIdentChar(s[len(s)-len(kw)-1])) {
			return true
		}
	}
	return false
}

func isKeyword(s string) bool {
	switch strings.ToLower(s) {
	case "end", "null", "true", "false", "asc", "desc", "first", "last":
		return true
	}
	return false
}
