// Package schema derives database tables from a metamodel and creates or
// validates them with Atlas.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/metamodel"
)

// Option configures Tables, Create and Validate.
type Option func(*config)

type config struct {
	foreignKeys bool
	logger      *slog.Logger
}

// WithForeignKeys controls whether foreign key constraints are created for
// associations and join tables. They are created by default.
func WithForeignKeys(b bool) Option {
	return func(c *config) {
		c.foreignKeys = b
	}
}

// WithLogger sets the logger used to report applied changes.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

func newConfig(opts []Option) *config {
	c := &config{foreignKeys: true, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// columnTypes maps the logical types to the column types of each dialect
// family.
var columnTypes = map[string]map[dbms.Type]func() schema.Type{
	dialect.SQLite: {
		dbms.TypeBool:    func() schema.Type { return &schema.BoolType{T: "bool"} },
		dbms.TypeInt:     func() schema.Type { return &schema.IntegerType{T: "integer"} },
		dbms.TypeInt64:   func() schema.Type { return &schema.IntegerType{T: "integer"} },
		dbms.TypeFloat:   func() schema.Type { return &schema.FloatType{T: "real"} },
		dbms.TypeDecimal: func() schema.Type { return &schema.DecimalType{T: "decimal"} },
		dbms.TypeString:  func() schema.Type { return &schema.StringType{T: "text"} },
		dbms.TypeTime:    func() schema.Type { return &schema.TimeType{T: "datetime"} },
		dbms.TypeBytes:   func() schema.Type { return &schema.BinaryType{T: "blob"} },
		dbms.TypeUUID:    func() schema.Type { return &schema.UUIDType{T: "uuid"} },
	},
	dialect.Postgres: {
		dbms.TypeBool:    func() schema.Type { return &schema.BoolType{T: "boolean"} },
		dbms.TypeInt:     func() schema.Type { return &schema.IntegerType{T: "integer"} },
		dbms.TypeInt64:   func() schema.Type { return &schema.IntegerType{T: "bigint"} },
		dbms.TypeFloat:   func() schema.Type { return &schema.FloatType{T: "double precision"} },
		dbms.TypeDecimal: func() schema.Type { return &schema.DecimalType{T: "numeric", Precision: 19, Scale: 4} },
		dbms.TypeString:  func() schema.Type { return &schema.StringType{T: "character varying", Size: 255} },
		dbms.TypeTime:    func() schema.Type { return &schema.TimeType{T: "timestamp with time zone"} },
		dbms.TypeBytes:   func() schema.Type { return &schema.BinaryType{T: "bytea"} },
		dbms.TypeUUID:    func() schema.Type { return &schema.UUIDType{T: "uuid"} },
	},
	dialect.MySQL: {
		dbms.TypeBool:    func() schema.Type { return &schema.BoolType{T: "bool"} },
		dbms.TypeInt:     func() schema.Type { return &schema.IntegerType{T: "int"} },
		dbms.TypeInt64:   func() schema.Type { return &schema.IntegerType{T: "bigint"} },
		dbms.TypeFloat:   func() schema.Type { return &schema.FloatType{T: "double"} },
		dbms.TypeDecimal: func() schema.Type { return &schema.DecimalType{T: "decimal", Precision: 19, Scale: 4} },
		dbms.TypeString:  func() schema.Type { return &schema.StringType{T: "varchar", Size: 255} },
		dbms.TypeTime:    func() schema.Type { return &schema.TimeType{T: "timestamp"} },
		dbms.TypeBytes:   func() schema.Type { return &schema.BinaryType{T: "blob"} },
		dbms.TypeUUID:    func() schema.Type { return &schema.StringType{T: "char", Size: 36} },
	},
}

// family returns the dialect family whose column types and Atlas driver
// serve name.
func family(name string) (string, error) {
	switch name = dialect.Normalize(name); name {
	case dialect.SQLite:
		return dialect.SQLite, nil
	case dialect.Postgres, dialect.Cockroach:
		return dialect.Postgres, nil
	case dialect.MySQL, dialect.MySQL8, dialect.MariaDB:
		return dialect.MySQL, nil
	}
	return "", blaze.NewUnsupportedError(name, "schema management")
}

// Tables returns the tables of the entities and of their many-to-many
// join tables for the given dialect, sorted by entity name.
func Tables(mm *metamodel.Metamodel, dialectName string, opts ...Option) ([]*schema.Table, error) {
	fam, err := family(dialectName)
	if err != nil {
		return nil, err
	}
	var (
		cfg    = newConfig(opts)
		types  = columnTypes[fam]
		tables = make(map[string]*schema.Table)
		ids    = make(map[string]*schema.Column)
		order  []*schema.Table
		joins  []*metamodel.Attribute
	)
	column := func(name string, k dbms.Type, null bool) (*schema.Column, error) {
		t, ok := types[k]
		if !ok {
			return nil, fmt.Errorf("schema: column %s has no %s type for %s", name, k, fam)
		}
		return schema.NewColumn(name).SetType(t()).SetNull(null), nil
	}
	for _, e := range mm.Entities() {
		if _, ok := tables[e.Table]; ok {
			return nil, blaze.NewConfigurationError(e.Name, "table %q is mapped by more than one entity", e.Table)
		}
		t := schema.NewTable(e.Table)
		for _, a := range e.Columns() {
			c, err := column(a.Column, a.Kind, a.Optional && a != e.ID)
			if err != nil {
				return nil, err
			}
			if a == e.ID {
				switch fam {
				case dialect.Postgres:
					c.AddAttrs(&postgres.Identity{Generation: "BY DEFAULT"})
				case dialect.MySQL:
					c.AddAttrs(&mysql.AutoIncrement{})
				}
				ids[e.Name] = c
			}
			t.AddColumns(c)
		}
		t.SetPrimaryKey(schema.NewPrimaryKey(ids[e.Name]))
		tables[e.Table] = t
		order = append(order, t)
		for _, a := range e.Attributes() {
			if a.Type == metamodel.ManyToManyType {
				joins = append(joins, a)
			}
		}
	}
	// Foreign keys reference the id columns, so they are added once every
	// entity table exists.
	for _, e := range mm.Entities() {
		t := tables[e.Table]
		for _, a := range e.Columns() {
			if a.Type != metamodel.ManyToOneType || !cfg.foreignKeys {
				continue
			}
			c, _ := t.Column(a.Column)
			target := a.TargetEntity()
			onDelete := schema.NoAction
			if a.Optional {
				onDelete = schema.SetNull
			}
			t.AddForeignKeys(schema.NewForeignKey(symbol(t.Name, c.Name)).
				AddColumns(c).
				SetRefTable(tables[target.Table]).
				AddRefColumns(ids[target.Name]).
				SetOnDelete(onDelete))
		}
	}
	for _, a := range joins {
		if _, ok := tables[a.JoinTable]; ok {
			return nil, blaze.NewConfigurationError(a.String(), "join table %q is already mapped", a.JoinTable)
		}
		owner, target := a.Entity(), a.TargetEntity()
		jc, err := column(a.JoinColumn, owner.ID.Kind, false)
		if err != nil {
			return nil, err
		}
		ic, err := column(a.InverseColumn, target.ID.Kind, false)
		if err != nil {
			return nil, err
		}
		t := schema.NewTable(a.JoinTable).AddColumns(jc, ic)
		if a.IsIndexed() {
			oc, err := column(a.OrderColumn, dbms.TypeInt, false)
			if err != nil {
				return nil, err
			}
			// Lists may repeat an element, rows are keyed by the index.
			t.AddColumns(oc)
			t.SetPrimaryKey(schema.NewPrimaryKey(jc, oc))
		} else {
			t.SetPrimaryKey(schema.NewPrimaryKey(jc, ic))
		}
		if cfg.foreignKeys {
			t.AddForeignKeys(
				schema.NewForeignKey(symbol(t.Name, jc.Name)).
					AddColumns(jc).
					SetRefTable(tables[owner.Table]).
					AddRefColumns(ids[owner.Name]).
					SetOnDelete(schema.Cascade),
				schema.NewForeignKey(symbol(t.Name, ic.Name)).
					AddColumns(ic).
					SetRefTable(tables[target.Table]).
					AddRefColumns(ids[target.Name]).
					SetOnDelete(schema.Cascade),
			)
		}
		tables[t.Name] = t
		order = append(order, t)
	}
	return order, nil
}

// symbol returns the name of the foreign key of column.
func symbol(table, column string) string {
	return strings.ToLower(table + "_" + column + "_fk")
}

// open returns the Atlas driver of drv.
func open(drv *sql.Driver) (migrate.Driver, error) {
	fam, err := family(drv.Dialect())
	if err != nil {
		return nil, err
	}
	switch fam {
	case dialect.SQLite:
		return sqlite.Open(drv.DB())
	case dialect.Postgres:
		return postgres.Open(drv.DB())
	default:
		return mysql.Open(drv.DB())
	}
}

// plan inspects the tables of mm in the database and returns the changes
// that migrate them to the desired state.
func plan(ctx context.Context, ad migrate.Driver, mm *metamodel.Metamodel, dialectName string, cfg *config, opts []Option) ([]schema.Change, []*schema.Table, error) {
	tables, err := Tables(mm, dialectName, opts...)
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	current, err := ad.InspectSchema(ctx, "", &schema.InspectOptions{Tables: names})
	if err != nil {
		return nil, nil, fmt.Errorf("schema: inspect: %w", err)
	}
	desired := schema.New(current.Name).AddTables(tables...)
	changes, err := ad.SchemaDiff(current, desired)
	if err != nil {
		return nil, nil, fmt.Errorf("schema: diff: %w", err)
	}
	cfg.logger.Debug("schema diff", "dialect", dialectName, "tables", len(tables), "changes", len(changes))
	return changes, tables, nil
}

// Create creates the missing tables and columns of mm. Columns and tables
// that are not mapped are left untouched.
func Create(ctx context.Context, drv *sql.Driver, mm *metamodel.Metamodel, opts ...Option) error {
	cfg := newConfig(opts)
	ad, err := open(drv)
	if err != nil {
		return err
	}
	changes, _, err := plan(ctx, ad, mm, drv.Dialect(), cfg, opts)
	if err != nil {
		return err
	}
	changes = additive(changes)
	if len(changes) == 0 {
		return nil
	}
	if err := ad.ApplyChanges(ctx, changes); err != nil {
		return fmt.Errorf("schema: apply: %w", err)
	}
	cfg.logger.Info("schema created", "changes", len(changes))
	return nil
}

// additive drops the changes removing or modifying existing objects.
func additive(changes []schema.Change) []schema.Change {
	kept := changes[:0]
	for _, c := range changes {
		switch c := c.(type) {
		case *schema.AddTable:
			kept = append(kept, c)
		case *schema.ModifyTable:
			var adds []schema.Change
			for _, tc := range c.Changes {
				switch tc.(type) {
				case *schema.AddColumn, *schema.AddIndex, *schema.AddForeignKey:
					adds = append(adds, tc)
				}
			}
			if len(adds) > 0 {
				kept = append(kept, &schema.ModifyTable{T: c.T, Changes: adds})
			}
		}
	}
	return kept
}
