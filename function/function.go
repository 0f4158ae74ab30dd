// Package function renders the functions of blaze expressions into the SQL
// of a database.
//
// Functions such as group_concat, the window functions or to_string_xml have
// no portable SQL form. A Registry bound to a dbms.Dialect expands every call
// of a registered function inside an expression into the SQL of that
// dialect:
//
//	r := function.NewRegistry(dbms.Oracle())
//	sql, err := r.Expand("group_concat(DISTINCT d.name SEPARATOR ', ' ORDER BY d.name)")
//	// listagg(distinct d.name, ', ') within group (order by d.name asc nulls last)
package function

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/dialect/sql/sqltext"
)

// RenderContext holds the arguments of a function call and collects the
// rendered SQL.
type RenderContext struct {
	dialect *dbms.Dialect
	name    string
	args    []string
	sb      strings.Builder
}

// NewRenderContext returns a context for rendering the call name(args...).
func NewRenderContext(d *dbms.Dialect, name string, args ...string) *RenderContext {
	return &RenderContext{dialect: d, name: name, args: args}
}

// Dialect returns the dialect to render for.
func (c *RenderContext) Dialect() *dbms.Dialect { return c.dialect }

// Name returns the name of the rendered function.
func (c *RenderContext) Name() string { return c.name }

// ArgumentsSize returns the number of arguments.
func (c *RenderContext) ArgumentsSize() int { return len(c.args) }

// Argument returns the i-th argument.
func (c *RenderContext) Argument(i int) string { return c.args[i] }

// Arguments returns all arguments.
func (c *RenderContext) Arguments() []string { return c.args }

// AddChunk appends SQL to the result.
func (c *RenderContext) AddChunk(s string) { c.sb.WriteString(s) }

// String returns the rendered SQL.
func (c *RenderContext) String() string { return c.sb.String() }

// Function renders a function call.
type Function interface {
	Render(*RenderContext) error
}

// The FunctionFunc type is an adapter to allow the use of ordinary functions
// as Function.
type FunctionFunc func(*RenderContext) error

// Render calls f(c).
func (f FunctionFunc) Render(c *RenderContext) error { return f(c) }

// Registry holds the functions available for one dialect.
type Registry struct {
	dialect *dbms.Dialect
	funcs   map[string]Function
}

// NewRegistry returns a registry with the builtin functions for d.
func NewRegistry(d *dbms.Dialect) *Registry {
	r := &Registry{dialect: d, funcs: make(map[string]Function)}
	r.Register("group_concat", GroupConcatFunction{})
	r.Register("limit", LimitFunction{})
	r.Register("to_string_xml", ToStringXML{})
	r.Register("to_string_json", ToStringJSON{})
	for name, w := range windowFunctions {
		r.Register(name, w)
	}
	return r
}

// Dialect returns the dialect of the registry.
func (r *Registry) Dialect() *dbms.Dialect { return r.dialect }

// Register adds or replaces the function with the given name. Names are case
// insensitive.
func (r *Registry) Register(name string, f Function) {
	r.funcs[strings.ToLower(name)] = f
}

// Lookup returns the function registered with the given name.
func (r *Registry) Lookup(name string) (Function, bool) {
	f, ok := r.funcs[strings.ToLower(name)]
	return f, ok
}

// Names returns the sorted names of the registered functions.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fingerprint hashes the dialect and the registered functions with their
// types, so replacing a function changes it.
func (r *Registry) Fingerprint() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(r.dialect.Name())
	for _, n := range r.Names() {
		_, _ = fmt.Fprintf(h, ";%s=%T", n, r.funcs[n])
	}
	return h.Sum64()
}

// Render renders a call of the named function with already rendered
// arguments.
func (r *Registry) Render(name string, args ...string) (string, error) {
	f, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("function: %q is not registered", name)
	}
	c := NewRenderContext(r.dialect, strings.ToLower(name), args...)
	if err := f.Render(c); err != nil {
		return "", err
	}
	return c.String(), nil
}

// Expand replaces every call of a registered function in expr by its SQL.
// Arguments are expanded before the call that contains them. String
// literals and quoted identifiers are copied verbatim.
func (r *Registry) Expand(expr string) (string, error) {
	var (
		sb strings.Builder
		i  int
	)
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			j := sqltext.SkipQuoted(expr, i)
			sb.WriteString(expr[i:j])
			i = j
		case sqltext.IsIdentChar(c) && (i == 0 || !sqltext.IsIdentChar(expr[i-1]) && expr[i-1] != '.'):
			j := i
			for j < len(expr) && sqltext.IsIdentChar(expr[j]) {
				j++
			}
			name := expr[i:j]
			k := j
			for k < len(expr) && (expr[k] == ' ' || expr[k] == '\t' || expr[k] == '\n') {
				k++
			}
			f, ok := r.Lookup(name)
			if !ok || k >= len(expr) || expr[k] != '(' {
				sb.WriteString(name)
				i = j
				continue
			}
			end := sqltext.MatchingParen(expr, k)
			if end < 0 {
				return "", fmt.Errorf("function: unbalanced parentheses in call of %s", name)
			}
			inner, err := r.Expand(expr[k+1 : end])
			if err != nil {
				return "", err
			}
			ctx := NewRenderContext(r.dialect, strings.ToLower(name), splitArguments(inner)...)
			if err := f.Render(ctx); err != nil {
				return "", err
			}
			sb.WriteString(ctx.String())
			i = end + 1
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

func splitArguments(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return sqltext.SplitTopLevel(s, ',')
}

// isQuotedKeyword reports whether arg is one of the quoted keywords, ignoring
// case, e.g. 'ORDER BY'.
func isQuotedKeyword(arg string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.EqualFold(strings.TrimSpace(arg), "'"+kw+"'") {
			return true
		}
	}
	return false
}

// unquoteLiteral returns the content of a SQL string literal.
func unquoteLiteral(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' || sqltext.SkipQuoted(s, 0) != len(s) {
		return "", false
	}
	return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), true
}
