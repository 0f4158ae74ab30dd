// Package dbms describes how SQL is rendered for each database vendor.
//
// A Dialect bundles the capability flags of a database with the rendering
// rules that differ between vendors: limit clauses, null ordering, set
// operations, DML returning, casts and VALUES lists. Unsupported features
// are emulated where an emulation exists and reported as
// blaze.UnsupportedError otherwise.
package dbms

import (
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect/sql"
)

// Type is the logical type of a column or cast target.
type Type uint8

// Logical types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeInt64
	TypeFloat
	TypeDecimal
	TypeString
	TypeTime
	TypeBytes
	TypeUUID
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeInt64:   "int64",
	TypeFloat:   "float64",
	TypeDecimal: "decimal",
	TypeString:  "string",
	TypeTime:    "time",
	TypeBytes:   "bytes",
	TypeUUID:    "uuid",
}

// String returns the name of the type.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// ParseType returns the type with the given name.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if t > 0 && n == name {
			return Type(t), nil
		}
	}
	switch name {
	case "int32":
		return TypeInt, nil
	case "float", "double":
		return TypeFloat, nil
	case "text":
		return TypeString, nil
	case "timestamp":
		return TypeTime, nil
	}
	return TypeInvalid, fmt.Errorf("dbms: unknown type %q", name)
}

// NullPrecedence describes how NULLS FIRST/LAST can be expressed.
type NullPrecedence uint8

// Null precedence support levels.
const (
	// NullsNative renders NULLS FIRST or NULLS LAST.
	NullsNative NullPrecedence = iota
	// NullsPartial only supports the database default combinations natively
	// (ASC NULLS LAST and DESC NULLS FIRST) and emulates the others.
	NullsPartial
	// NullsEmulated always uses a CASE WHEN prefix when the requested order
	// differs from the default of the database.
	NullsEmulated
)

// ReturningStyle is the way a DML statement returns column values.
type ReturningStyle uint8

// Returning styles.
const (
	ReturningNone ReturningStyle = iota
	// ReturningClause appends "returning cols".
	ReturningClause
	// ReturningOutput adds "output inserted.col" or "output deleted.col".
	ReturningOutput
	// ReturningFinalTable wraps the statement in "select cols from final table (...)".
	ReturningFinalTable
)

// ValuesStrategy is the way a list of row values is rendered as a table.
type ValuesStrategy uint8

// Values strategies.
const (
	// ValuesClause renders (values (...), (...)) alias(cols).
	ValuesClause ValuesStrategy = iota
	// ValuesSelectUnion renders a union of selects, optionally from a dummy table.
	ValuesSelectUnion
)

// Capabilities are the feature flags of a database.
type Capabilities struct {
	SupportsWithClause                    bool
	SupportsNonRecursiveWithClause        bool
	SupportsWithClauseInModificationQuery bool
	SupportsModificationQueryInWithClause bool
	SupportsReturningColumns              bool
	SupportsLastInsertID                  bool
	SupportsComplexGroupBy                bool
	SupportsComplexJoinOn                 bool
	SupportsIntersect                     bool
	SupportsIntersectAll                  bool
	SupportsExcept                        bool
	SupportsExceptAll                     bool
	SupportsJoinsInRecursiveCTE           bool
	SupportsRowValueConstructor           bool
	SupportsWindowFunctions               bool
	SupportsFilterClause                  bool
	SupportsLimitInQuantifiedSubquery     bool
	NeedsCastParameters                   bool
}

// Dialect is the set of rendering rules of one database.
type Dialect struct {
	Capabilities
	name          string
	recursiveWith bool
	quote         sql.QuoteStyle
	bind          sql.BindStyle
	limit         LimitHandler
	returning     ReturningStyle
	updateReturn  bool
	nulls         NullPrecedence
	aggNulls      NullPrecedence
	nullsHigh     bool
	dummyTable    string
	exceptKeyword string
	values        ValuesStrategy
	// derivedAlias reports whether derived tables need an alias.
	derivedAlias bool
	// windowOrderBy is appended to row_number() windows without ORDER BY.
	windowOrderBy string
	types         map[Type]string
	castTypes     map[Type]string
}

// Name returns the dialect name.
func (d *Dialect) Name() string { return d.name }

// String implements fmt.Stringer.
func (d *Dialect) String() string { return d.name }

// WithKeyword returns the keyword introducing a WITH clause.
func (d *Dialect) WithKeyword(recursive bool) string {
	if recursive && d.recursiveWith {
		return "with recursive"
	}
	return "with"
}

// QuoteIdentifier quotes an identifier.
func (d *Dialect) QuoteIdentifier(ident string) string { return d.quote.Quote(ident) }

// BindStyle returns the placeholder style of the database.
func (d *Dialect) BindStyle() sql.BindStyle { return d.bind }

// Rebind rewrites "?" placeholders into the placeholder style of the database.
func (d *Dialect) Rebind(query string) string { return sql.Rebind(d.bind, query) }

// LimitHandler returns the limit handler of the database.
func (d *Dialect) LimitHandler() LimitHandler { return d.limit }

// Returning returns the returning style of the database.
func (d *Dialect) Returning() ReturningStyle { return d.returning }

// DummyTable returns the table to select from when no table is needed, or "".
func (d *Dialect) DummyTable() string { return d.dummyTable }

// ValuesStrategy returns how row values are rendered as a table.
func (d *Dialect) ValuesStrategy() ValuesStrategy { return d.values }

// NullPrecedence returns the null precedence support of ORDER BY clauses.
func (d *Dialect) NullPrecedence() NullPrecedence { return d.nulls }

// AggregateNullPrecedence returns the null precedence support inside
// aggregate ORDER BY clauses (WITHIN GROUP, group_concat).
func (d *Dialect) AggregateNullPrecedence() NullPrecedence { return d.aggNulls }

// NullsHigh reports whether NULL sorts after all values in ascending order.
func (d *Dialect) NullsHigh() bool { return d.nullsHigh }

// NeedsDerivedTableAlias reports whether a derived table must be aliased.
func (d *Dialect) NeedsDerivedTableAlias() bool { return d.derivedAlias }

// WindowDummyOrderBy returns the ORDER BY appended to windows that have none,
// for databases that require one.
func (d *Dialect) WindowDummyOrderBy() string { return d.windowOrderBy }

// SupportsUnion reports whether UNION [ALL] is supported.
func (d *Dialect) SupportsUnion(bool) bool { return true }

// SupportsIntersectOp reports whether INTERSECT [ALL] is supported natively.
func (d *Dialect) SupportsIntersectOp(all bool) bool {
	if all {
		return d.SupportsIntersectAll
	}
	return d.SupportsIntersect
}

// SupportsExceptOp reports whether EXCEPT [ALL] is supported natively.
func (d *Dialect) SupportsExceptOp(all bool) bool {
	if all {
		return d.SupportsExceptAll
	}
	return d.SupportsExcept
}

// SQLType returns the column type for t.
func (d *Dialect) SQLType(t Type) string {
	if s, ok := d.types[t]; ok {
		return s
	}
	return defaultTypes[t]
}

// CastType returns the cast target type for t.
func (d *Dialect) CastType(t Type) string {
	if s, ok := d.castTypes[t]; ok {
		return s
	}
	return d.SQLType(t)
}

// Cast renders a cast of expr to t.
func (d *Dialect) Cast(expr string, t Type) string {
	return "cast(" + expr + " as " + d.CastType(t) + ")"
}

// Unsupported returns an UnsupportedError for feature.
func (d *Dialect) Unsupported(feature string) error {
	return blaze.NewUnsupportedError(d.name, feature)
}

// Is reports whether the dialect is one of the given names.
func (d *Dialect) Is(names ...string) bool {
	return slices.Contains(names, d.name)
}

// Clone returns a copy of the dialect that can be changed independently.
func (d *Dialect) Clone() *Dialect {
	c := *d
	return &c
}

// WithCapabilities returns a copy of the dialect with the given capabilities.
func (d *Dialect) WithCapabilities(c Capabilities) *Dialect {
	n := d.Clone()
	n.Capabilities = c
	return n
}

// StringLiteral renders s as a SQL string literal.
func StringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var defaultTypes = map[Type]string{
	TypeBool:    "boolean",
	TypeInt:     "integer",
	TypeInt64:   "bigint",
	TypeFloat:   "double precision",
	TypeDecimal: "decimal(19,2)",
	TypeString:  "varchar(255)",
	TypeTime:    "timestamp",
	TypeBytes:   "blob",
	TypeUUID:    "char(36)",
}
