package view

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/privacy"
)

func TestSessionVar(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)
	m := newManager(t, sql.OpenDB(dialect.Postgres, db), WithSessionVar("app.tenant_id", privacy.TenantID))
	ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "1", TenantID: "acme"})

	mock.ExpectExec(regexp.QuoteMeta("SET app.tenant_id = 'acme'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("from person").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(int64(1), "Alice", nil))
	mock.ExpectExec(regexp.QuoteMeta("RESET app.tenant_id")).WillReturnResult(sqlmock.NewResult(0, 0))
	people, err := Find[*PersonView](ctx, m)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "Alice", people[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())

	p, err := Create[*PersonView](m)
	require.NoError(t, err)
	p.Name = "Carol"
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL app.tenant_id = 'acme'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("insert into person").
		WithArgs("Carol", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()
	require.NoError(t, m.Save(ctx, p))
	assert.Equal(t, int64(7), p.ID)
	require.NoError(t, mock.ExpectationsWereMet())

	// Variables set by the caller win.
	mock.ExpectExec(regexp.QuoteMeta("SET app.tenant_id = 'it''s'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("from person").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}))
	mock.ExpectExec(regexp.QuoteMeta("RESET app.tenant_id")).WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = Find[*PersonView](sql.WithVar(ctx, "app.tenant_id", "it's"), m)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// Without a tenant no variable is set.
	mock.ExpectQuery("from person").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}))
	_, err = Find[*PersonView](context.Background(), m)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
