// Package dialect provides the driver abstraction used by blaze.
//
// This package defines the interfaces and names used for database-specific
// operations. The SQL rendering differences between vendors live in
// dialect/dbms; this package only deals with executing statements.
//
// # Dialect Names
//
// Each database is identified by a constant string:
//
//	dialect.Postgres  = "postgres"
//	dialect.Cockroach = "cockroach"
//	dialect.MySQL     = "mysql"
//	dialect.MySQL8    = "mysql8"
//	dialect.MariaDB   = "mariadb"
//	dialect.SQLite    = "sqlite"
//	dialect.H2        = "h2"
//	dialect.DB2       = "db2"
//	dialect.Oracle    = "oracle"
//	dialect.SQLServer = "sqlserver"
//
// Driver names registered with database/sql (pgx, sqlite3, godror, ...) are
// mapped to these names by Normalize.
//
// # ExecQuerier Interface
//
// The ExecQuerier interface is implemented by both Driver and Tx:
//
//	type ExecQuerier interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	}
//
// The criteria builder and the entity view manager only depend on
// ExecQuerier, so a flush can run inside a caller owned transaction:
//
//	tx, err := drv.Tx(ctx)
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Save(ctx, tx, doc); err != nil {
//	    return errors.Join(err, tx.Rollback())
//	}
//	return tx.Commit()
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver, statistics and placeholder rewriting
//   - dialect/sql/sqltext: quote aware scanning of generated SQL
//   - dialect/sql/sqlgraph: constraint error classification
//   - dialect/sql/schema: atlas based table creation and validation
//   - dialect/dbms: per vendor rendering rules (DbmsDialect)
package dialect
