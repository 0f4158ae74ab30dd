// Package sqlgraph classifies the constraint violations reported by the
// supported database drivers.
package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Violation is the kind of a violated database constraint.
type Violation uint8

// Constraint violations.
const (
	NoViolation Violation = iota
	UniqueViolation
	ForeignKeyViolation
	CheckViolation
	NotNullViolation
)

func (v Violation) String() string {
	switch v {
	case UniqueViolation:
		return "unique"
	case ForeignKeyViolation:
		return "foreign key"
	case CheckViolation:
		return "check"
	case NotNullViolation:
		return "not null"
	}
	return "none"
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
var pgCodes = map[string]Violation{
	"23502": NotNullViolation,
	"23503": ForeignKeyViolation,
	"23505": UniqueViolation,
	"23514": CheckViolation,
}

// MySQL error numbers for constraint violations.
var mysqlNumbers = map[uint16]Violation{
	1048: NotNullViolation,
	1062: UniqueViolation,
	1451: ForeignKeyViolation, // Cannot delete or update a parent row
	1452: ForeignKeyViolation, // Cannot add or update a child row
	3819: CheckViolation,
}

// SQLite extended result codes for constraint violations.
var sqliteCodes = map[int]Violation{
	sqlite3.SQLITE_CONSTRAINT_UNIQUE:     UniqueViolation,
	sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY: UniqueViolation,
	sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY: ForeignKeyViolation,
	sqlite3.SQLITE_CONSTRAINT_CHECK:      CheckViolation,
	sqlite3.SQLITE_CONSTRAINT_NOTNULL:    NotNullViolation,
}

// Messages of drivers that do not expose typed errors, e.g. behind proxies
// that flatten them.
var messages = []struct {
	text string
	v    Violation
}{
	{"Error 1062", UniqueViolation},
	{"violates unique constraint", UniqueViolation},
	{"UNIQUE constraint failed", UniqueViolation},
	{"Error 1451", ForeignKeyViolation},
	{"Error 1452", ForeignKeyViolation},
	{"violates foreign key constraint", ForeignKeyViolation},
	{"FOREIGN KEY constraint failed", ForeignKeyViolation},
	{"Error 3819", CheckViolation},
	{"violates check constraint", CheckViolation},
	{"CHECK constraint failed", CheckViolation},
	{"Error 1048", NotNullViolation},
	{"violates not-null constraint", NotNullViolation},
	{"NOT NULL constraint failed", NotNullViolation},
}

// sqlStateError is implemented by drivers exposing SQLSTATE codes.
type sqlStateError interface {
	SQLState() string
}

// Classify returns the constraint violated by err. Typed driver errors are
// checked first, the error message last.
func Classify(err error) Violation {
	if err == nil {
		return NoViolation
	}
	var (
		pgErr     *pgconn.PgError
		pqErr     *pq.Error
		mysqlErr  *mysql.MySQLError
		sqliteErr *sqlite.Error
		v         Violation
	)
	switch {
	case errors.As(err, &pgErr):
		v = pgCodes[pgErr.Code]
	case errors.As(err, &pqErr):
		v = pgCodes[string(pqErr.Code)]
	case errors.As(err, &mysqlErr):
		v = mysqlNumbers[mysqlErr.Number]
	case errors.As(err, &sqliteErr):
		v = sqliteCodes[sqliteErr.Code()]
	}
	if v != NoViolation {
		return v
	}
	if e, ok := asError[sqlStateError](err); ok {
		if v, ok := pgCodes[e.SQLState()]; ok {
			return v
		}
	}
	msg := err.Error()
	for _, m := range messages {
		if strings.Contains(msg, m.text) {
			return m.v
		}
	}
	return NoViolation
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return Classify(err) != NoViolation
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	return Classify(err) == UniqueViolation
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	return Classify(err) == ForeignKeyViolation
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	return Classify(err) == CheckViolation
}

// IsNotNullConstraintError reports if a required column was written with NULL.
func IsNotNullConstraintError(err error) bool {
	return Classify(err) == NotNullViolation
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}
