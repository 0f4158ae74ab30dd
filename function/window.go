package function

import (
	"strings"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/dbms"
)

// FrameMode is the unit of a window frame.
type FrameMode uint8

// Frame modes.
const (
	FrameRows FrameMode = iota + 1
	FrameRange
)

// FramePosition is a bound of a window frame, e.g. "unbounded preceding" or
// "3 following".
type FramePosition struct {
	// Kind is one of "unbounded preceding", "preceding", "current row",
	// "following" and "unbounded following".
	Kind string
	// Expr is the offset of bounded positions.
	Expr string
}

func (p FramePosition) String() string {
	if p.Kind == "preceding" || p.Kind == "following" {
		return p.Expr + " " + p.Kind
	}
	return p.Kind
}

// Frame is a window frame clause.
type Frame struct {
	Mode       FrameMode
	Start, End FramePosition
	// Between reports whether the frame has an end bound.
	Between bool
}

// Window is a parsed window function call.
type Window struct {
	Name        string
	Arguments   []string
	Filter      []string
	PartitionBy []string
	OrderBy     []dbms.Order
	Frame       *Frame
}

// ParseWindow parses the arguments of a window function call. The window
// clauses are introduced by quoted keywords:
//
//	window_sum(d.age, 'FILTER', d.age > 10, 'PARTITION BY', d.owner, 'ORDER BY', d.name, 'DESC NULLS LAST', 'ROWS', 'BETWEEN', 'UNBOUNDED PRECEDING', 'AND', 'CURRENT ROW')
func ParseWindow(name string, args []string) (Window, error) {
	w := Window{Name: name}
	const (
		modeArguments = iota
		modeFilter
		modePartition
		modeOrder
		modeFrame
	)
	var (
		mode    = modeArguments
		current *FramePosition
	)
	for i := 0; i < len(args); i++ {
		arg := strings.TrimSpace(args[i])
		switch {
		case isQuotedKeyword(arg, "FILTER"):
			mode = modeFilter
			continue
		case isQuotedKeyword(arg, "PARTITION BY"):
			mode = modePartition
			continue
		case isQuotedKeyword(arg, "ORDER BY"):
			mode = modeOrder
			continue
		case isQuotedKeyword(arg, "ROWS"), isQuotedKeyword(arg, "RANGE"):
			w.Frame = &Frame{Mode: FrameRows}
			if isQuotedKeyword(arg, "RANGE") {
				w.Frame.Mode = FrameRange
			}
			mode, current = modeFrame, &w.Frame.Start
			continue
		}
		switch mode {
		case modeArguments:
			w.Arguments = append(w.Arguments, arg)
		case modeFilter:
			w.Filter = append(w.Filter, arg)
		case modePartition:
			w.PartitionBy = append(w.PartitionBy, arg)
		case modeOrder:
			o := dbms.NewOrder(arg, false)
			if i+1 < len(args) {
				if spec, ok := orderSpec(args[i+1]); ok {
					o.Descending, o.NullsFirst = spec.Descending, spec.NullsFirst
					i++
				}
			}
			w.OrderBy = append(w.OrderBy, o)
		case modeFrame:
			switch {
			case isQuotedKeyword(arg, "BETWEEN"):
				w.Frame.Between = true
			case isQuotedKeyword(arg, "AND"):
				if !w.Frame.Between {
					return w, blaze.NewConfigurationError(name, "frame AND without BETWEEN")
				}
				current = &w.Frame.End
			case isQuotedKeyword(arg, "UNBOUNDED PRECEDING"):
				current.Kind = "unbounded preceding"
			case isQuotedKeyword(arg, "PRECEDING"):
				current.Kind = "preceding"
			case isQuotedKeyword(arg, "CURRENT ROW"):
				current.Kind = "current row"
			case isQuotedKeyword(arg, "FOLLOWING"):
				current.Kind = "following"
			case isQuotedKeyword(arg, "UNBOUNDED FOLLOWING"):
				current.Kind = "unbounded following"
			default:
				current.Expr = arg
			}
		}
	}
	if f := w.Frame; f != nil {
		if f.Start.Kind == "" || f.Between && f.End.Kind == "" {
			return w, blaze.NewConfigurationError(name, "incomplete frame clause")
		}
	}
	return w, nil
}

// windowFunction renders a window function. sqlName is the function name in
// SQL; aggregate functions can have their FILTER clause emulated.
type windowFunction struct {
	sqlName   string
	aggregate bool
	// minArgs and maxArgs bound the number of function arguments.
	minArgs, maxArgs int
}

var windowFunctions = map[string]windowFunction{
	"row_number":   {sqlName: "row_number"},
	"rank":         {sqlName: "rank"},
	"dense_rank":   {sqlName: "dense_rank"},
	"percent_rank": {sqlName: "percent_rank"},
	"cume_dist":    {sqlName: "cume_dist"},
	"ntile":        {sqlName: "ntile", minArgs: 1, maxArgs: 1},
	"lag":          {sqlName: "lag", minArgs: 1, maxArgs: 3},
	"lead":         {sqlName: "lead", minArgs: 1, maxArgs: 3},
	"first_value":  {sqlName: "first_value", minArgs: 1, maxArgs: 1},
	"last_value":   {sqlName: "last_value", minArgs: 1, maxArgs: 1},
	"nth_value":    {sqlName: "nth_value", minArgs: 2, maxArgs: 2},
	"window_sum":   {sqlName: "sum", aggregate: true, minArgs: 1, maxArgs: 1},
	"window_avg":   {sqlName: "avg", aggregate: true, minArgs: 1, maxArgs: 1},
	"window_min":   {sqlName: "min", aggregate: true, minArgs: 1, maxArgs: 1},
	"window_max":   {sqlName: "max", aggregate: true, minArgs: 1, maxArgs: 1},
	"window_count": {sqlName: "count", aggregate: true, maxArgs: 1},

	"window_group_concat": {sqlName: "group_concat", aggregate: true, minArgs: 1, maxArgs: 2},
}

// Render implements Function.
func (f windowFunction) Render(c *RenderContext) error {
	d := c.Dialect()
	if !d.SupportsWindowFunctions {
		return d.Unsupported("window function " + c.Name())
	}
	w, err := ParseWindow(c.Name(), c.Arguments())
	if err != nil {
		return err
	}
	if len(w.Arguments) < f.minArgs || len(w.Arguments) > f.maxArgs {
		return blaze.NewConfigurationError(c.Name(), "got %d arguments, want %d to %d", len(w.Arguments), f.minArgs, f.maxArgs)
	}
	if len(w.Filter) > 0 && !f.aggregate {
		return blaze.NewConfigurationError(c.Name(), "filter is only allowed for aggregate functions")
	}
	call, err := f.renderCall(d, w)
	if err != nil {
		return err
	}
	c.AddChunk(call)
	c.AddChunk(" over (")
	c.AddChunk(RenderWindowSpec(d, w))
	c.AddChunk(")")
	return nil
}

func (f windowFunction) renderCall(d *dbms.Dialect, w Window) (string, error) {
	args := w.Arguments
	filter := strings.Join(w.Filter, " and ")
	if f.sqlName == "group_concat" {
		return renderWindowGroupConcat(d, w, filter)
	}
	emulate := filter != "" && !d.SupportsFilterClause
	if emulate {
		if len(args) == 0 || args[0] == "*" {
			args = []string{"1"}
		}
		args = append([]string(nil), args...)
		args[0] = "case when " + filter + " then " + args[0] + " end"
	}
	if len(args) == 0 && f.sqlName == "count" {
		args = []string{"*"}
	}
	var b strings.Builder
	b.WriteString(f.sqlName)
	b.WriteByte('(')
	b.WriteString(strings.Join(args, ", "))
	b.WriteByte(')')
	if filter != "" && !emulate {
		b.WriteString(" filter (where ")
		b.WriteString(filter)
		b.WriteByte(')')
	}
	return b.String(), nil
}

// renderWindowGroupConcat renders the aggregate part of window_group_concat.
// The window ORDER BY also orders the concatenation.
func renderWindowGroupConcat(d *dbms.Dialect, w Window, filter string) (string, error) {
	expr := w.Arguments[0]
	if filter != "" {
		expr = "case when " + filter + " then " + expr + " end"
	}
	sep := DefaultSeparator
	if len(w.Arguments) > 1 {
		if _, ok := unquoteLiteral(w.Arguments[1]); !ok {
			return "", blaze.NewConfigurationError("window_group_concat", "separator %s is not a string literal", w.Arguments[1])
		}
		sep = w.Arguments[1]
	}
	switch d.Name() {
	case dialect.Postgres, dialect.Cockroach:
		return "string_agg(" + d.Cast(expr, dbms.TypeString) + ", " + sep + ")", nil
	case dialect.SQLite:
		return "group_concat(" + expr + ", " + sep + ")", nil
	case dialect.H2:
		return "listagg(" + expr + ", " + sep + ")", nil
	default:
		return "", d.Unsupported("window_group_concat")
	}
}

// RenderWindowSpec renders the content of the OVER clause of w.
func RenderWindowSpec(d *dbms.Dialect, w Window) string {
	var parts []string
	if len(w.PartitionBy) > 0 {
		parts = append(parts, "partition by "+strings.Join(w.PartitionBy, ", "))
	}
	if len(w.OrderBy) > 0 {
		parts = append(parts, "order by "+d.OrderBy(w.OrderBy...))
	}
	if f := w.Frame; f != nil {
		mode := "rows"
		if f.Mode == FrameRange {
			mode = "range"
		}
		if f.Between {
			parts = append(parts, mode+" between "+f.Start.String()+" and "+f.End.String())
		} else {
			parts = append(parts, mode+" "+f.Start.String())
		}
	}
	return strings.Join(parts, " ")
}
