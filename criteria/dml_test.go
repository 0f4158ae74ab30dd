package criteria

import (
	"context"
	stdsql "database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/function"
	"github.com/syssam/blaze/metamodel"
)

func TestDML(t *testing.T) {
	mm := documents(t)
	tests := []struct {
		name  string
		d     *dbms.Dialect
		build func(*Factory) Statement
		want  string
		args  []any
	}{
		{
			name: "insert returning",
			d:    dbms.Postgres(),
			build: func(f *Factory) Statement {
				return f.Insert("Document").Columns("name", "owner").Values("a", 1).Returning("id")
			},
			want: "insert into document (name, owner_id) values ($1, $2) returning id",
			args: []any{"a", 1},
		},
		{
			name: "insert collection rows",
			d:    dbms.SQLite(),
			build: func(f *Factory) Statement {
				return f.InsertCollection("Document", "contacts").Columns("id", "contacts").Values(1, 2).Values(1, 3)
			},
			want: "insert into document_contacts (document_id, contact_id) values (?, ?), (?, ?)",
			args: []any{1, 2, 1, 3},
		},
		{
			name: "insert select",
			d:    dbms.Postgres(),
			build: func(f *Factory) Statement {
				return f.InsertCollection("Document", "contacts").
					Columns("id", "contacts").
					Select(f.From("Person", "p").Select("1").Select("p.id").Where(Path[int]("p.age").GT(30)))
			},
			want: "insert into document_contacts (document_id, contact_id) select 1, p.id from person p where p.age > $1",
			args: []any{30},
		},
		{
			name: "optimistic update",
			d:    dbms.Postgres(),
			build: func(f *Factory) Statement {
				return f.Update("Document", "d").
					Set("name", "b").
					SetExpr("version", "d.version + 1").
					Where(Path[int64]("d.id").EQ(1), Path[int64]("d.version").EQ(3))
			},
			want: "update document set name = $1, version = document.version + 1 where document.id = $2 and document.version = $3",
			args: []any{"b", int64(1), int64(3)},
		},
		{
			name: "delete collection",
			d:    dbms.Postgres(),
			build: func(f *Factory) Statement {
				return f.DeleteCollection("Document", "d", "contacts").
					Where(Path[int64]("d.id").EQ(1), Path[int64]("d.contacts").In(2, 3))
			},
			want: "delete from document_contacts where document_contacts.document_id = $1 and document_contacts.contact_id in ($2, $3)",
			args: []any{int64(1), int64(2), int64(3)},
		},
		{
			name: "delete output",
			d:    dbms.SQLServer(),
			build: func(f *Factory) Statement {
				return f.Delete("Document", "d").Where(Path[int64]("d.id").EQ(1)).Returning("id")
			},
			want: "delete from document output deleted.id where document.id = @p1",
			args: []any{int64(1)},
		},
		{
			name: "delete by subquery",
			d:    dbms.MySQL(),
			build: func(f *Factory) Statement {
				return f.Delete("Revision", "r").
					Where(InSubquery("r.document", f.From("Document", "d").Select("d.id").Where(Path[string]("d.name").Like("tmp%"))))
			},
			want: "delete from doc_revision where doc_revision.document_id in (select d.id from document d where d.name like ?)",
			args: []any{"tmp%"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args, err := tt.build(NewFactory(mm, tt.d)).QueryContext(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestDMLErrors(t *testing.T) {
	f := NewFactory(documents(t), dbms.Postgres())
	tests := []struct {
		name string
		st   Statement
		err  string
	}{
		{"no columns", f.Insert("Document").Values(1), "without columns"},
		{"no rows", f.Insert("Document").Columns("name"), "needs either values or a select"},
		{"row length", f.Insert("Document").Columns("name", "owner").Values("a"), "insert row 0 has 1 values, want 2"},
		{"collection column", f.Insert("Document").Columns("revisions").Values(1), "collection Document.revisions has no column"},
		{"not many-to-many", f.DeleteCollection("Document", "d", "revisions"), "not a many-to-many collection"},
		{"no assignments", f.Update("Document", "d"), "without assignments"},
		{"implicit join", f.Update("Document", "d").Set("name", "x").Where(Path[string]("d.owner.name").EQ("a")), "cannot join Document.owner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.st.QueryContext(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestSetQuery(t *testing.T) {
	mm := documents(t)
	union := func(f *Factory) *SetQuery {
		return f.Union(
			f.From("Document", "d").Select("d.name", "name"),
			f.From("Person", "p").Select("p.name", "name").Where(Path[int]("p.age").GT(18)),
		).OrderBy(dbms.SetOrder{Position: 1}).SetMaxResults(5)
	}
	q, args, err := union(NewFactory(mm, dbms.Postgres())).Query()
	require.NoError(t, err)
	assert.Equal(t, "select * from (select d.name as name from document d\nunion\n"+
		"select p.name as name from person p where p.age > $1) set_op_1 order by 1 asc nulls last limit 5", q)
	assert.Equal(t, []any{18}, args)

	f := NewFactory(mm, dbms.MySQL())
	_, _, err = f.Intersect(f.From("Person", "p").Select("p.id"), f.From("Person", "q").Select("q.id")).Query()
	require.Error(t, err)
	assert.True(t, blaze.IsUnsupported(err))

	_, _, err = f.Union(f.From("Person", "p")).Query()
	require.Error(t, err)
}

func TestStatementCache(t *testing.T) {
	ctx := context.Background()
	cache := blaze.NewMemoryCache()
	f := NewFactory(documents(t), dbms.Postgres(), WithCache(cache, time.Minute))
	byName := func(name string) *Select {
		return f.From("Document", "d").Select("d.owner.name").Where(Path[string]("d.name").EQ(name))
	}

	q1, a1, err := byName("a").QueryContext(ctx)
	require.NoError(t, err)
	q2, a2, err := byName("b").QueryContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, q1, q2)
	assert.Equal(t, []any{"a"}, a1)
	assert.Equal(t, []any{"b"}, a2)
	assert.Equal(t, 1, cache.Len())

	key := blaze.CacheKey{Namespace: f.CacheNamespace(), Dialect: dialect.Postgres, Operation: "select", Shape: "select d.owner.name from Document d where d.name = ?"}
	b, err := cache.Get(ctx, key.String())
	require.NoError(t, err)
	var c compiled
	require.NoError(t, msgpack.Unmarshal(b, &c))
	assert.Equal(t, q1, c.SQL)

	_, _, err = f.From("Person", "p").Select("p.name").Query()
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, f.InvalidateCache(ctx))
	assert.Zero(t, cache.Len())
}

func TestStatementCacheNamespace(t *testing.T) {
	ctx := context.Background()
	cache := blaze.NewMemoryCache()
	people := func(table string) *metamodel.Metamodel {
		m, err := metamodel.New(metamodel.Entity("Person").Table(table).Attributes(
			metamodel.ID("id"),
			metamodel.String("name"),
		))
		require.NoError(t, err)
		return m
	}
	f1 := NewFactory(people("person"), dbms.Postgres(), WithCache(cache, 0))
	f2 := NewFactory(people("app_user"), dbms.Postgres(), WithCache(cache, 0))
	assert.NotEqual(t, f1.CacheNamespace(), f2.CacheNamespace())
	assert.Equal(t, f1.CacheNamespace(), NewFactory(people("person"), dbms.Postgres()).CacheNamespace())
	assert.NotEqual(t, f1.CacheNamespace(),
		NewFactory(people("person"), dbms.Postgres(), WithFunction("group_concat", function.LimitFunction{})).CacheNamespace())

	q1, _, err := f1.From("Person", "p").Select("p.name").QueryContext(ctx)
	require.NoError(t, err)
	q2, _, err := f2.From("Person", "p").Select("p.name").QueryContext(ctx)
	require.NoError(t, err)
	assert.Contains(t, q1, "from person p")
	assert.Contains(t, q2, "from app_user p")
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, f1.InvalidateCache(ctx))
	assert.Equal(t, 1, cache.Len())

	f3 := NewFactory(people("person"), dbms.Postgres(), WithCache(cache, 0), WithCachePrefix("docs"))
	assert.Equal(t, "docs", f3.CacheNamespace())
	_, _, err = f3.From("Person", "p").Select("p.name").QueryContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
	require.NoError(t, cache.DeletePrefix(ctx, "docs:postgres:select:"))
	assert.Equal(t, 1, cache.Len())
}

func TestExecMock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	drv := sql.OpenDB(dialect.MySQL, db)
	f := NewFactory(documents(t), dbms.MySQL())
	mock.ExpectExec("insert into document (name, owner_id) values (?, ?)").
		WithArgs("a", 1).
		WillReturnResult(sqlmock.NewResult(42, 1))
	res, err := f.Insert("Document").Columns("name", "owner").Values("a", 1).Returning("id").Exec(ctx, drv)
	require.NoError(t, err)
	assert.Equal(t, Result{RowsAffected: 1, Returned: [][]any{{int64(42)}}}, res)

	mock.ExpectExec("update document set name = ? where document.id = ?").
		WithArgs("b", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	res, err = f.Update("Document", "d").Set("name", "b").Where(Path[int64]("d.id").EQ(42)).Exec(ctx, drv)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.Nil(t, res.Returned)

	pg := NewFactory(documents(t), dbms.Postgres())
	mock.ExpectQuery("select d.id, d.name from document d where d.name like $1").
		WithArgs("A%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Alpha").AddRow(int64(2), "Atlas"))
	rows, err := pg.From("Document", "d").Select("d.id").Select("d.name").Where(Path[string]("d.name").Like("A%")).All(ctx, drv)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1), "Alpha"}, {int64(2), "Atlas"}}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := stdsql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)
	for _, ddl := range []string{
		"create table person (id integer primary key, name text not null, age integer)",
		"create table document (id integer primary key, name text not null, version integer not null, last_modified datetime, owner_id integer not null)",
		"create table doc_revision (id integer primary key, rev_no integer, document_id integer)",
		"create table document_contacts (document_id integer not null, contact_id integer not null)",
	} {
		_, err := db.ExecContext(ctx, ddl)
		require.NoError(t, err)
	}
	drv := sql.OpenDB(dialect.SQLite, db)
	f := NewFactory(documents(t), dbms.SQLite())

	res, err := f.Insert("Person").Columns("name", "age").Values("Alice", 41).Returning("id").Exec(ctx, drv)
	require.NoError(t, err)
	require.Len(t, res.Returned, 1)
	alice := res.Returned[0][0].(int64)

	res, err = f.Insert("Document").Columns("name", "version", "owner").Values("Plan", 1, alice).Returning("id").Exec(ctx, drv)
	require.NoError(t, err)
	doc := res.Returned[0][0].(int64)

	_, err = f.InsertCollection("Document", "contacts").Columns("id", "contacts").Values(doc, alice).Exec(ctx, drv)
	require.NoError(t, err)
	_, err = f.Insert("Revision").Columns("number", "document").Values(1, doc).Values(2, doc).Exec(ctx, drv)
	require.NoError(t, err)

	rows, err := f.From("Document", "d").
		Select("d.name").
		Select("d.owner.name").
		Select("size(d.revisions)").
		Select("size(d.contacts)").
		Where(Path[int]("d.contacts.age").GT(40)).
		All(ctx, drv)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Plan", "Alice", int64(2), int64(1)}}, rows)

	res, err = f.Update("Document", "d").
		Set("name", "Plan v2").
		SetExpr("version", "d.version + 1").
		Where(Path[int64]("d.id").EQ(doc), Path[int64]("d.version").EQ(1)).
		Exec(ctx, drv)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	rows, err = f.From("Document", "d").Select("d.version").All(ctx, drv)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(2)}}, rows)

	res, err = f.DeleteCollection("Document", "d", "contacts").
		Where(Path[int64]("d.id").EQ(doc), Path[int64]("d.contacts").EQ(alice)).
		Exec(ctx, drv)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	count, err := f.From("Document", "d").LeftJoin("d.revisions", "r").CountQuery().All(ctx, drv)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1)}}, count)
}
