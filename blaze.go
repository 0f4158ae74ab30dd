package blaze

import "context"

// Op represents the operation of a flushed view.
type Op uint

// Flush operations.
const (
	OpCreate Op = 1 << iota
	OpUpdate
	OpDelete
)

// Is reports whether o matches any of the given operations.
func (i Op) Is(o Op) bool { return i&o != 0 }

func (i Op) String() string {
	switch i {
	case OpCreate:
		return "OpCreate"
	case OpUpdate:
		return "OpUpdate"
	case OpDelete:
		return "OpDelete"
	}
	return "Op(unknown)"
}

// Mutation describes one row operation of a flush. It is passed to policies
// before the statement is executed.
type Mutation interface {
	// Op returns the operation.
	Op() Op
	// View returns the name of the view type that is flushed.
	View() string
	// Entity returns the name of the entity whose table is written.
	Entity() string
	// ID returns the id of the row, or nil for rows with generated ids
	// that were not inserted yet.
	ID() any
	// Fields returns the names of the attributes written by the operation.
	Fields() []string
	// Field returns the value written to the attribute.
	Field(name string) (any, bool)
}

// Query describes a view query. It is passed to policies before the query
// is executed.
type Query interface {
	// View returns the name of the queried view type.
	View() string
	// Entity returns the name of the root entity.
	Entity() string
}

// Policy decides whether queries and flush operations are allowed.
type Policy interface {
	EvalQuery(context.Context, Query) error
	EvalMutation(context.Context, Mutation) error
}
