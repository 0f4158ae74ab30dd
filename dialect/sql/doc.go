// Package sql provides the database/sql backed driver used by blaze.
//
// It wraps a *sql.DB or *sql.Tx into a dialect.Driver, collects query
// statistics, and offers the low level statement Builder used by the
// criteria and view packages.
//
// # Opening a driver
//
// The dialect is derived from the database/sql driver name:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
//
//	drv, err := sql.Open("pgx", "postgres://localhost/blaze")
//	drv.Dialect() // "postgres"
//
// # Placeholders
//
// Statements are assembled with "?" placeholders and rewritten into the
// bind style of the target database right before execution:
//
//	sql.Rebind(sql.BindDollar, "select * from t where a = ? and b = '?'")
//	// select * from t where a = $1 and b = '?'
//
// # Statistics
//
// StatsDriver counts queries and reports slow ones through a hook:
//
//	drv := sql.NewStatsDriver(base,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(),
//	)
//
// # Session variables
//
// WithVar attaches session variables that are set before every statement.
// Outside a transaction they are reset when the connection returns to the
// pool; PostgreSQL transactions scope them with SET LOCAL:
//
//	ctx = sql.WithVar(ctx, "app.tenant_id", "acme")
//
// view.WithSessionVar sets them for every statement of a view manager.
package sql
