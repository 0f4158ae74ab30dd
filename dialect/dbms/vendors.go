package dbms

import (
	"fmt"

	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/sql"
)

// Default returns the ANSI dialect used when the database is unknown.
func Default() *Dialect {
	return &Dialect{
		Capabilities: Capabilities{
			SupportsWithClause:                    true,
			SupportsNonRecursiveWithClause:        true,
			SupportsWithClauseInModificationQuery: true,
			SupportsComplexGroupBy:                true,
			SupportsComplexJoinOn:                 true,
			SupportsIntersect:                     true,
			SupportsExcept:                        true,
			SupportsJoinsInRecursiveCTE:           true,
			SupportsRowValueConstructor:           true,
			SupportsWindowFunctions:               true,
			SupportsLimitInQuantifiedSubquery:     true,
		},
		name:          "default",
		recursiveWith: true,
		quote:         sql.QuoteDouble,
		bind:          sql.BindQuestion,
		limit:         LimitOffsetHandler{},
		nulls:         NullsNative,
		aggNulls:      NullsNative,
		nullsHigh:     true,
		exceptKeyword: "except",
		values:        ValuesClause,
	}
}

// Postgres returns the PostgreSQL dialect.
func Postgres() *Dialect {
	d := Default()
	d.name = dialect.Postgres
	d.bind = sql.BindDollar
	d.derivedAlias = true
	d.returning = ReturningClause
	d.updateReturn = true
	d.SupportsModificationQueryInWithClause = true
	d.SupportsReturningColumns = true
	d.SupportsIntersectAll = true
	d.SupportsExceptAll = true
	d.SupportsFilterClause = true
	d.NeedsCastParameters = true
	d.types = map[Type]string{
		TypeFloat:   "double precision",
		TypeDecimal: "numeric(19,2)",
		TypeString:  "varchar",
		TypeBytes:   "bytea",
		TypeUUID:    "uuid",
	}
	return d
}

// Cockroach returns the CockroachDB dialect.
func Cockroach() *Dialect {
	d := Postgres()
	d.name = dialect.Cockroach
	return d
}

// MySQL returns the MySQL 5.7 dialect.
func MySQL() *Dialect {
	d := Default()
	d.name = dialect.MySQL
	d.quote = sql.QuoteBacktick
	d.derivedAlias = true
	d.limit = LimitOffsetHandler{MaxLimit: "18446744073709551615"}
	d.nulls = NullsEmulated
	d.aggNulls = NullsEmulated
	d.nullsHigh = false
	d.dummyTable = "dual"
	d.values = ValuesSelectUnion
	d.SupportsWithClause = false
	d.SupportsNonRecursiveWithClause = false
	d.SupportsWithClauseInModificationQuery = false
	d.SupportsIntersect = false
	d.SupportsExcept = false
	d.SupportsWindowFunctions = false
	d.SupportsLimitInQuantifiedSubquery = false
	d.SupportsLastInsertID = true
	d.types = map[Type]string{
		TypeBool:   "boolean",
		TypeFloat:  "double",
		TypeString: "varchar(255)",
		TypeTime:   "datetime(6)",
		TypeBytes:  "longblob",
	}
	d.castTypes = map[Type]string{
		TypeBool:   "signed",
		TypeInt:    "signed",
		TypeInt64:  "signed",
		TypeFloat:  "double",
		TypeString: "char",
		TypeTime:   "datetime(6)",
		TypeBytes:  "binary",
		TypeUUID:   "char(36)",
	}
	return d
}

// MySQL8 returns the MySQL 8 dialect.
func MySQL8() *Dialect {
	d := MySQL()
	d.name = dialect.MySQL8
	d.SupportsWithClause = true
	d.SupportsNonRecursiveWithClause = true
	d.SupportsWindowFunctions = true
	return d
}

// MariaDB returns the MariaDB dialect.
func MariaDB() *Dialect {
	d := MySQL8()
	d.name = dialect.MariaDB
	d.returning = ReturningClause
	d.SupportsReturningColumns = true
	d.SupportsIntersect = true
	d.SupportsExcept = true
	d.SupportsIntersectAll = true
	d.SupportsExceptAll = true
	return d
}

// SQLite returns the SQLite dialect.
func SQLite() *Dialect {
	d := Default()
	d.name = dialect.SQLite
	d.limit = LimitOffsetHandler{MaxLimit: "-1"}
	d.values = ValuesSelectUnion
	d.returning = ReturningClause
	d.updateReturn = true
	d.nullsHigh = false
	d.SupportsReturningColumns = true
	d.SupportsLastInsertID = true
	d.SupportsFilterClause = true
	d.types = map[Type]string{
		TypeBool:    "boolean",
		TypeInt:     "integer",
		TypeInt64:   "integer",
		TypeFloat:   "real",
		TypeDecimal: "numeric",
		TypeString:  "text",
		TypeTime:    "datetime",
		TypeUUID:    "text",
	}
	d.castTypes = map[Type]string{
		TypeString: "text",
		TypeTime:   "text",
	}
	return d
}

// H2 returns the H2 dialect.
func H2() *Dialect {
	d := Default()
	d.name = dialect.H2
	d.returning = ReturningFinalTable
	d.updateReturn = true
	d.aggNulls = NullsEmulated
	d.nullsHigh = false
	d.SupportsReturningColumns = true
	d.SupportsFilterClause = true
	d.types = map[Type]string{
		TypeString: "varchar",
		TypeBytes:  "varbinary",
		TypeUUID:   "uuid",
	}
	return d
}

// DB2 returns the DB2 dialect.
func DB2() *Dialect {
	d := Default()
	d.name = dialect.DB2
	d.recursiveWith = false
	d.limit = OffsetFetchHandler{}
	d.returning = ReturningFinalTable
	d.updateReturn = true
	d.nulls = NullsPartial
	d.aggNulls = NullsPartial
	d.dummyTable = "sysibm.dummy1"
	d.SupportsWithClauseInModificationQuery = false
	d.SupportsModificationQueryInWithClause = true
	d.SupportsReturningColumns = true
	d.SupportsIntersectAll = true
	d.SupportsExceptAll = true
	d.SupportsComplexGroupBy = false
	d.SupportsComplexJoinOn = false
	d.SupportsJoinsInRecursiveCTE = false
	d.SupportsRowValueConstructor = false
	d.types = map[Type]string{
		TypeBool:   "smallint",
		TypeFloat:  "double",
		TypeString: "varchar(2048)",
		TypeUUID:   "char(36)",
	}
	return d
}

// Oracle returns the Oracle 12c dialect.
func Oracle() *Dialect {
	d := Default()
	d.name = dialect.Oracle
	d.recursiveWith = false
	d.bind = sql.BindColon
	d.limit = OffsetFetchHandler{}
	d.dummyTable = "dual"
	d.exceptKeyword = "minus"
	d.values = ValuesSelectUnion
	d.SupportsWithClauseInModificationQuery = false
	d.SupportsRowValueConstructor = false
	d.types = map[Type]string{
		TypeBool:    "number(1,0)",
		TypeInt:     "number(10,0)",
		TypeInt64:   "number(19,0)",
		TypeFloat:   "binary_double",
		TypeDecimal: "number(19,2)",
		TypeString:  "varchar2(255 char)",
		TypeUUID:    "varchar2(36 char)",
	}
	d.castTypes = map[Type]string{
		TypeString: "varchar2(4000)",
	}
	return d
}

// SQLServer returns the SQL Server 2017 dialect.
func SQLServer() *Dialect {
	d := Default()
	d.name = dialect.SQLServer
	d.recursiveWith = false
	d.quote = sql.QuoteBracket
	d.bind = sql.BindAt
	d.derivedAlias = true
	d.windowOrderBy = " order by (select 0)"
	d.limit = OffsetFetchHandler{RequiresOffset: true, RequiresOrderBy: true}
	d.returning = ReturningOutput
	d.updateReturn = true
	d.nulls = NullsEmulated
	d.aggNulls = NullsEmulated
	d.nullsHigh = false
	d.SupportsReturningColumns = true
	d.SupportsRowValueConstructor = false
	d.types = map[Type]string{
		TypeBool:   "bit",
		TypeFloat:  "float",
		TypeString: "nvarchar(255)",
		TypeTime:   "datetime2",
		TypeBytes:  "varbinary(max)",
		TypeUUID:   "uniqueidentifier",
	}
	d.castTypes = map[Type]string{
		TypeString: "nvarchar(max)",
	}
	return d
}

var constructors = map[string]func() *Dialect{
	"default":         Default,
	dialect.Postgres:  Postgres,
	dialect.Cockroach: Cockroach,
	dialect.MySQL:     MySQL,
	dialect.MySQL8:    MySQL8,
	dialect.MariaDB:   MariaDB,
	dialect.SQLite:    SQLite,
	dialect.H2:        H2,
	dialect.DB2:       DB2,
	dialect.Oracle:    Oracle,
	dialect.SQLServer: SQLServer,
}

// ForName returns a new dialect for the given dialect or driver name.
// An empty name returns the default dialect.
func ForName(name string) (*Dialect, error) {
	if name == "" {
		return Default(), nil
	}
	if c, ok := constructors[dialect.Normalize(name)]; ok {
		return c(), nil
	}
	return nil, fmt.Errorf("dbms: unknown dialect %q", name)
}

// Names returns the names of all known dialects.
func Names() []string {
	return []string{
		dialect.Postgres, dialect.Cockroach, dialect.MySQL, dialect.MySQL8, dialect.MariaDB,
		dialect.SQLite, dialect.H2, dialect.DB2, dialect.Oracle, dialect.SQLServer,
	}
}
