package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/syssam/blaze/dialect"
)

// varNameRe matches session variable names, optionally qualified as in
// "app.tenant_id".
var varNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

func validVarName(s string) bool {
	return len(s) <= 128 && varNameRe.MatchString(s)
}

// quoteVar renders v as a string literal of the dialect. Backslashes are
// escapes in MySQL literals only.
func quoteVar(name, v string) string {
	switch name {
	case dialect.MySQL, dialect.MySQL8, dialect.MariaDB:
		v = strings.ReplaceAll(v, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// Driver is a dialect.Driver implementation for SQL based databases.
type Driver struct {
	Conn
	dialect string
}

// NewDriver creates a new Driver with the given Conn and dialect.
func NewDriver(dialect string, c Conn) *Driver {
	return &Driver{dialect: dialect, Conn: c}
}

// Open wraps the database/sql.Open method and returns a dialect.Driver. The
// driverName is the name the database/sql driver registered itself with
// ("pgx", "postgres", "mysql", "sqlite"), and the dialect is derived from it.
func Open(driverName, source string) (*Driver, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	name := dialect.Normalize(driverName)
	return NewDriver(name, Conn{db, name}), nil
}

// OpenDB wraps the given database/sql.DB method with a Driver. The name may
// be a dialect name or a driver name.
func OpenDB(name string, db *sql.DB) *Driver {
	name = dialect.Normalize(name)
	return NewDriver(name, Conn{db, name})
}

// DB returns the underlying *sql.DB instance.
func (d Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Dialect implements the dialect.Dialect method.
func (d Driver) Dialect() string {
	return dialect.Normalize(d.dialect)
}

// Tx starts and returns a transaction.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	tx, err := d.DB().BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{
		Conn: Conn{tx, d.dialect},
		Tx:   tx,
	}, nil
}

// Close closes the underlying connection.
func (d *Driver) Close() error { return d.DB().Close() }

// Tx implements dialect.Tx interface.
type Tx struct {
	Conn
	driver.Tx
}

type ctxVarsKey struct{}

// sessionVar is a variable set before the statements of a context.
type sessionVar struct{ name, value string }

// WithVar returns a context whose statements run after setting the session
// variable. Variables of a transaction are scoped to it where the database
// supports SET LOCAL; otherwise they are reset before the connection
// returns to the pool.
func WithVar(ctx context.Context, name, value string) context.Context {
	vars, _ := ctx.Value(ctxVarsKey{}).([]sessionVar)
	vars = append(vars[:len(vars):len(vars)], sessionVar{name: name, value: value})
	return context.WithValue(ctx, ctxVarsKey{}, vars)
}

// VarFromContext returns the last value of the session variable set on ctx.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	vars, _ := ctx.Value(ctxVarsKey{}).([]sessionVar)
	for i := len(vars) - 1; i >= 0; i-- {
		if vars[i].name == name {
			return vars[i].value, true
		}
	}
	return "", false
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements dialect.ExecQuerier given ExecQuerier.
type Conn struct {
	ExecQuerier
	dialect string
}

// Exec implements the dialect.Exec method.
func (c Conn) Exec(ctx context.Context, query string, args, v any) (rerr error) {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: set session vars: %w", err)
	}
	if cf != nil {
		defer func() { rerr = errors.Join(rerr, cf()) }()
	}
	switch v := v.(type) {
	case nil:
		if _, err := ex.ExecContext(ctx, query, argv...); err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
	case *sql.Result:
		res, err := ex.ExecContext(ctx, query, argv...)
		if err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
		*v = res
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	return nil
}

// Query implements the dialect.Query method.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: set session vars: %w", err)
	}
	rows, err := ex.QueryContext(ctx, query, argv...)
	if err != nil {
		if cf != nil {
			err = errors.Join(err, cf())
		}
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*vr = Rows{rows}
	if cf != nil {
		vr.ColumnScanner = rowsWithCloser{rows, cf}
	}
	return nil
}

// maySetVars sets the session variables of ctx. Outside a transaction the
// statement runs on a dedicated connection and the returned close function
// resets the variables and releases it.
func (c Conn) maySetVars(ctx context.Context) (ExecQuerier, func() error, error) {
	vars, _ := ctx.Value(ctxVarsKey{}).([]sessionVar)
	if len(vars) == 0 {
		return c, nil, nil
	}
	for _, v := range vars {
		if !validVarName(v.name) {
			return nil, nil, fmt.Errorf("invalid session variable name: %q", v.name)
		}
	}
	var (
		ex    ExecQuerier
		cf    func() error
		set   = "SET "
		reset []string
	)
	switch e := c.ExecQuerier.(type) {
	case *sql.Tx:
		ex = e
		if c.dialect == dialect.Postgres || c.dialect == dialect.Cockroach {
			set = "SET LOCAL "
		}
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, cf = conn, conn.Close
		seen := make(map[string]bool, len(vars))
		for _, v := range vars {
			if seen[v.name] {
				continue
			}
			seen[v.name] = true
			switch c.dialect {
			case dialect.Postgres, dialect.Cockroach:
				reset = append(reset, "RESET "+v.name)
			case dialect.MySQL, dialect.MySQL8, dialect.MariaDB:
				reset = append(reset, "SET "+v.name+" = NULL")
			}
		}
	default:
		return nil, nil, fmt.Errorf("unsupported ExecQuerier type: %T", c.ExecQuerier)
	}
	for _, v := range vars {
		if _, err := ex.ExecContext(ctx, set+v.name+" = "+quoteVar(c.dialect, v.value)); err != nil {
			if cf != nil {
				err = errors.Join(err, cf())
			}
			return nil, nil, err
		}
	}
	if release := cf; release != nil && len(reset) > 0 {
		// The reset must run even when ctx is canceled.
		cf = func() error {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			for _, q := range reset {
				if _, err := ex.ExecContext(rctx, q); err != nil {
					return errors.Join(err, release())
				}
			}
			return release()
		}
	}
	return ex, cf, nil
}

var _ dialect.Driver = (*Driver)(nil)

type (
	// Rows wraps the sql.Rows to avoid locks copy.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// rowsWithCloser wraps the ColumnScanner interface with a custom Close hook.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

// Close closes the underlying ColumnScanner and calls the custom closer.
func (r rowsWithCloser) Close() error {
	err := r.ColumnScanner.Close()
	return errors.Join(err, r.closer())
}
