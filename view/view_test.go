package view

import (
	"context"
	stdsql "database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/metamodel"
)

type PersonView struct {
	State
	ID   int64
	Name string `view:"name,updatable"`
	Age  *int   `view:"age,updatable"`
}

type RevisionView struct {
	State
	ID     int64
	Number int `view:"number,updatable"`
}

type DocumentView struct {
	State
	ID        int64
	Version   int64
	Name      string          `view:"name,updatable"`
	Owner     *PersonView     `view:"owner,updatable"`
	OwnerName string          `view:"upper(owner.name)"`
	Revisions []*RevisionView `view:"revisions,updatable,orphan,cascade=persist+update"`
	Contacts  []*PersonView   `view:"contacts,updatable"`
}

// DocumentSummary is a read-only view.
type DocumentSummary struct {
	State
	ID        int64
	Name      string
	Revisions []int         `view:"revisions.number"`
	Contacts  []*PersonView `view:"contacts,fetch=subselect"`
}

func documents(t testing.TB) *metamodel.Metamodel {
	t.Helper()
	mm, err := metamodel.New(
		metamodel.Entity("Person").Attributes(
			metamodel.ID("id"),
			metamodel.String("name"),
			metamodel.Int("age").Optional(),
		),
		metamodel.Entity("Document").Attributes(
			metamodel.ID("id"),
			metamodel.String("name"),
			metamodel.Version("version"),
			metamodel.ManyToOne("owner", "Person").Required(),
			metamodel.OneToMany("revisions", "Revision", "document"),
			metamodel.ManyToMany("contacts", "Person"),
		),
		metamodel.Entity("Revision").Table("doc_revision").Attributes(
			metamodel.ID("id"),
			metamodel.Int("number").Column("rev_no"),
			metamodel.ManyToOne("document", "Document"),
		),
	)
	require.NoError(t, err)
	return mm
}

var schema = []string{
	"create table person (id integer primary key, name text not null, age integer)",
	"create table document (id integer primary key, name text not null, version integer not null, owner_id integer not null)",
	"create table doc_revision (id integer primary key, rev_no integer, document_id integer)",
	"create table document_contacts (document_id integer not null, contact_id integer not null)",
}

// openSQLite returns a driver of an in-memory database with the document
// schema.
func openSQLite(t testing.TB) (*sql.Driver, *stdsql.DB) {
	t.Helper()
	db, err := stdsql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	for _, ddl := range schema {
		_, err := db.Exec(ddl)
		require.NoError(t, err)
	}
	return sql.OpenDB(dialect.SQLite, db), db
}

func registrations() Option {
	return WithViews(
		Type[PersonView]("Person", Creatable()),
		Type[RevisionView]("Revision", Creatable()),
		Type[DocumentView]("Document", Creatable()),
		Type[DocumentSummary]("Document"),
	)
}

func newManager(t testing.TB, drv dialect.Driver, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{registrations(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	m, err := NewManager(documents(t), drv, opts...)
	require.NoError(t, err)
	return m
}

// seed inserts two people and a document owned by the first one with two
// revisions and the second person as contact.
func seed(t testing.TB, db *stdsql.DB) {
	t.Helper()
	for _, stmt := range []string{
		"insert into person (id, name, age) values (1, 'Alice', 41), (2, 'Bob', null)",
		"insert into document (id, name, version, owner_id) values (10, 'Plan', 1, 1)",
		"insert into doc_revision (id, rev_no, document_id) values (100, 1, 10), (101, 2, 10)",
		"insert into document_contacts (document_id, contact_id) values (10, 2)",
	} {
		_, err := db.ExecContext(context.Background(), stmt)
		require.NoError(t, err)
	}
}

func count(t testing.TB, db *stdsql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}
