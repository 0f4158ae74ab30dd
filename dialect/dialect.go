package dialect

import (
	"context"
	"database/sql/driver"
	"strings"
)

// Dialect names for the supported databases.
const (
	Postgres  = "postgres"
	Cockroach = "cockroach"
	MySQL     = "mysql"
	MySQL8    = "mysql8"
	MariaDB   = "mariadb"
	SQLite    = "sqlite"
	H2        = "h2"
	DB2       = "db2"
	Oracle    = "oracle"
	SQLServer = "sqlserver"
)

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for blaze clients.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	// The provided context is used until the transaction is committed or rolled back.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	driver.Tx
}

// driverNames maps database/sql driver names to dialect names.
var driverNames = map[string]string{
	"pgx":       Postgres,
	"pq":        Postgres,
	"sqlite3":   SQLite,
	"mssql":     SQLServer,
	"godror":    Oracle,
	"go_ibm_db": DB2,
}

// Normalize returns the dialect name for the given database/sql driver
// name. Telemetry wrapped names (e.g. "postgres-otel") resolve by prefix.
func Normalize(name string) string {
	if d, ok := driverNames[name]; ok {
		return d
	}
	for _, d := range []string{MySQL8, MySQL, MariaDB, SQLite, Postgres, Cockroach, SQLServer, Oracle, DB2, H2} {
		if strings.HasPrefix(name, d) {
			return d
		}
	}
	return name
}
