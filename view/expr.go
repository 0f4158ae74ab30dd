package view

import (
	"fmt"
	"strings"

	"github.com/syssam/blaze/dialect/sql/sqltext"
	"github.com/syssam/blaze/metamodel"
)

// isPath reports whether the mapping is a dotted attribute path.
func isPath(s string) bool {
	if s == "" || s[0] >= '0' && s[0] <= '9' || s[0] == '.' || s[len(s)-1] == '.' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !sqltext.IsIdentChar(s[i]) && s[i] != '.' {
			return false
		}
	}
	return !strings.Contains(s, "..")
}

// join appends the path to base.
func join(base, path string) string {
	switch {
	case path == "" || path == "this":
		return base
	case strings.HasPrefix(path, "this."):
		return base + path[len("this"):]
	}
	return base + "." + path
}

// qualify prefixes the attribute paths of a mapping expression relative to
// e with base, e.g. "upper(name)" with base "d" becomes "upper(d.name)".
// Named parameters (":name") become placeholders bound to params. A nil
// params map binds every parameter to nil.
func qualify(expr, base string, e *metamodel.Entity, params map[string]any) (string, []any, error) {
	var (
		sb   strings.Builder
		args []any
	)
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			j := sqltext.SkipQuoted(expr, i)
			sb.WriteString(expr[i:j])
			i = j
		case c == ':' && i+1 < len(expr) && expr[i+1] == ':':
			sb.WriteString("::")
			i += 2
		case c == ':' && i+1 < len(expr) && sqltext.IsIdentChar(expr[i+1]):
			j := i + 1
			for j < len(expr) && sqltext.IsIdentChar(expr[j]) {
				j++
			}
			name := expr[i+1 : j]
			v, ok := params[name]
			if !ok && params != nil {
				return "", nil, fmt.Errorf("parameter %q is not set", name)
			}
			sb.WriteByte('?')
			args = append(args, v)
			i = j
		case c >= '0' && c <= '9':
			j := i
			for j < len(expr) && (sqltext.IsIdentChar(expr[j]) || expr[j] == '.') {
				j++
			}
			sb.WriteString(expr[i:j])
			i = j
		case sqltext.IsIdentChar(c):
			j := i
			for j < len(expr) && (sqltext.IsIdentChar(expr[j]) || expr[j] == '.' && j+1 < len(expr) && sqltext.IsIdentChar(expr[j+1])) {
				j++
			}
			token := expr[i:j]
			k := j
			for k < len(expr) && expr[k] == ' ' {
				k++
			}
			first, _, _ := strings.Cut(token, ".")
			_, attr := e.Attribute(first)
			switch {
			case k < len(expr) && expr[k] == '(':
				sb.WriteString(token)
			case first == "this":
				sb.WriteString(join(base, token))
			case attr:
				sb.WriteString(join(base, token))
			default:
				sb.WriteString(token)
			}
			i = j
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), args, nil
}
