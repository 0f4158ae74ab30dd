package sql

import (
	"strconv"
	"strings"
)

// BindStyle describes how positional parameters are written in a statement.
type BindStyle uint8

// Supported bind styles.
const (
	BindQuestion BindStyle = iota // ?
	BindDollar                    // $1
	BindAt                        // @p1
	BindColon                     // :1
)

// Placeholder returns the i-th (1-based) placeholder in the bind style.
func (b BindStyle) Placeholder(i int) string {
	switch b {
	case BindDollar:
		return "$" + strconv.Itoa(i)
	case BindAt:
		return "@p" + strconv.Itoa(i)
	case BindColon:
		return ":" + strconv.Itoa(i)
	default:
		return "?"
	}
}

// Rebind rewrites the "?" placeholders of query into the given style.
// Question marks inside string literals, quoted identifiers and comments
// are left untouched.
func Rebind(b BindStyle, query string) string {
	if b == BindQuestion || strings.IndexByte(query, '?') < 0 {
		return query
	}
	var (
		sb strings.Builder
		n  int
	)
	sb.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			end := skipQuoted(query, i)
			sb.WriteString(query[i:end])
			i = end - 1
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				end = len(query) - i
			}
			sb.WriteString(query[i : i+end])
			i += end - 1
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				end = len(query) - i - 2
			} else {
				end += 2
			}
			sb.WriteString(query[i : i+2+end])
			i += 1 + end
		case c == '?':
			n++
			sb.WriteString(b.Placeholder(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// skipQuoted returns the index after the quoted section starting at i.
// Doubled quote characters are treated as escapes.
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

// QuoteStyle describes how identifiers are quoted.
type QuoteStyle uint8

// Supported quote styles.
const (
	QuoteDouble   QuoteStyle = iota // "ident"
	QuoteBacktick                   // `ident`
	QuoteBracket                    // [ident]
)

// Quote quotes each dot separated part of the identifier.
func (q QuoteStyle) Quote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		switch q {
		case QuoteBacktick:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		case QuoteBracket:
			parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
		default:
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Builder is a string builder that collects the statement arguments in the
// order their "?" placeholders are written.
type Builder struct {
	sb   strings.Builder
	args []any
}

// WriteString appends s to the statement.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// WriteByte appends c to the statement.
func (b *Builder) WriteByte(c byte) *Builder {
	b.sb.WriteByte(c)
	return b
}

// Pad appends a space unless the statement is empty or already ends with one.
func (b *Builder) Pad() *Builder {
	if n := b.sb.Len(); n > 0 && b.sb.String()[n-1] != ' ' {
		b.sb.WriteByte(' ')
	}
	return b
}

// Arg writes a placeholder and records its argument.
func (b *Builder) Arg(a any) *Builder {
	b.sb.WriteByte('?')
	b.args = append(b.args, a)
	return b
}

// Args writes a comma separated list of placeholders.
func (b *Builder) Args(as ...any) *Builder {
	for i, a := range as {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(a)
	}
	return b
}

// Append writes the text of a fragment that already contains "?" placeholders
// together with their arguments.
func (b *Builder) Append(text string, args ...any) *Builder {
	b.sb.WriteString(text)
	b.args = append(b.args, args...)
	return b
}

// Join appends the statement and arguments of other.
func (b *Builder) Join(other *Builder) *Builder {
	if other == nil {
		return b
	}
	return b.Append(other.sb.String(), other.args...)
}

// Len returns the length of the statement text.
func (b *Builder) Len() int { return b.sb.Len() }

// String returns the statement text.
func (b *Builder) String() string { return b.sb.String() }

// Query returns the statement text and its arguments.
func (b *Builder) Query() (string, []any) {
	return b.sb.String(), b.args
}
