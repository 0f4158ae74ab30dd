package view

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/privacy"
)

// ProjectDoc cascades updates to its owner but never persists new owners.
type ProjectDoc struct {
	State
	ID      int64
	Version int64
	Name    string      `view:"name"`
	Owner   *PersonView `view:"owner,updatable,cascade=update"`
}

func TestSaveNew(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	m := newManager(t, drv)
	ctx := context.Background()

	owner, err := Reference[*PersonView](m, int64(1))
	require.NoError(t, err)
	contact, err := Reference[*PersonView](m, int64(2))
	require.NoError(t, err)
	doc, err := Create[*DocumentView](m)
	require.NoError(t, err)
	assert.True(t, doc.IsNew())
	doc.Name = "Roadmap"
	doc.Owner = owner
	for i := 1; i <= 2; i++ {
		rev, err := Create[*RevisionView](m)
		require.NoError(t, err)
		rev.Number = i
		doc.Revisions = append(doc.Revisions, rev)
	}
	doc.Contacts = []*PersonView{contact}

	require.NoError(t, m.Save(ctx, doc))
	assert.False(t, doc.IsNew())
	assert.NotZero(t, doc.ID)
	assert.Equal(t, int64(1), doc.Version)
	assert.NotZero(t, doc.Revisions[0].ID)
	assert.False(t, doc.Revisions[1].IsNew())
	assert.Equal(t, 2, count(t, db, "select count(*) from doc_revision where document_id = ?", doc.ID))
	assert.Equal(t, 1, count(t, db, "select count(*) from document_contacts where document_id = ? and contact_id = 2", doc.ID))
	assert.Equal(t, 1, count(t, db, "select count(*) from document where id = ? and name = 'Roadmap' and owner_id = 1 and version = 1", doc.ID))

	dirty, err := m.IsDirty(doc)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestSaveUpdate(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	var updated []any
	m := newManager(t, drv, WithListener(PreUpdate, func(_ context.Context, v any) error {
		updated = append(updated, v)
		return nil
	}))
	ctx := context.Background()

	doc, err := FindByID[*DocumentView](ctx, m, int64(10))
	require.NoError(t, err)
	alice, err := Reference[*PersonView](m, int64(1))
	require.NoError(t, err)
	rev, err := Create[*RevisionView](m)
	require.NoError(t, err)
	rev.Number = 3

	doc.Name = "Plan v2"
	doc.Revisions[1].Number = 5
	doc.Revisions = append(doc.Revisions[1:], rev)
	doc.Contacts = []*PersonView{alice}

	cm, err := m.Changes(doc)
	require.NoError(t, err)
	assert.Equal(t, Updated, cm.Kind)
	ac, err := cm.Get("revisions")
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, ac.Added)
	assert.Equal(t, []any{int64(100)}, ac.Removed)

	require.NoError(t, m.Save(ctx, doc))
	assert.Equal(t, int64(2), doc.Version)
	assert.NotZero(t, rev.ID)
	assert.Equal(t, 1, count(t, db, "select count(*) from document where id = 10 and name = 'Plan v2' and version = 2"))
	assert.Equal(t, 0, count(t, db, "select count(*) from doc_revision where id = 100"))
	assert.Equal(t, 1, count(t, db, "select count(*) from doc_revision where id = 101 and rev_no = 5"))
	assert.Equal(t, 1, count(t, db, "select count(*) from doc_revision where id = ? and rev_no = 3 and document_id = 10", rev.ID))
	assert.Equal(t, 1, count(t, db, "select count(*) from document_contacts where document_id = 10"))
	assert.Equal(t, 1, count(t, db, "select count(*) from document_contacts where document_id = 10 and contact_id = 1"))
	require.Len(t, updated, 2)
	assert.Same(t, doc, updated[0])

	dirty, err := m.IsDirty(doc)
	require.NoError(t, err)
	assert.False(t, dirty)

	// Nothing changed, nothing is written.
	require.NoError(t, m.Save(ctx, doc))
	assert.Equal(t, int64(2), doc.Version)
	assert.Len(t, updated, 2)
}

func TestOrphanNulling(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	type docRevisions struct {
		State
		ID        int64
		Version   int64
		Revisions []*RevisionView `view:"revisions,updatable"`
	}
	m := newManager(t, drv, WithViews(Type[docRevisions]("Document", Updatable())))
	ctx := context.Background()

	doc, err := FindByID[*docRevisions](ctx, m, int64(10))
	require.NoError(t, err)
	doc.Revisions = doc.Revisions[:1]
	require.NoError(t, m.Save(ctx, doc))
	assert.Equal(t, 1, count(t, db, "select count(*) from doc_revision where id = 101 and document_id is null"))
	assert.Equal(t, 1, count(t, db, "select count(*) from doc_revision where id = 100 and document_id = 10"))
	// Collection changes do not bump the version in the lazy mode.
	assert.Equal(t, int64(1), doc.Version)
}

func TestOptimisticLock(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	m := newManager(t, drv)
	ctx := context.Background()

	a, err := FindByID[*DocumentView](ctx, m, int64(10))
	require.NoError(t, err)
	b, err := FindByID[*DocumentView](ctx, m, int64(10))
	require.NoError(t, err)

	a.Name = "A"
	require.NoError(t, m.Save(ctx, a))
	b.Name = "B"
	err = m.Save(ctx, b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, blaze.ErrOptimisticLock))
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, 1, count(t, db, "select count(*) from document where id = 10 and name = 'A'"))

	dirty, err := m.IsDirty(b)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestEntityStrategy(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	m := newManager(t, drv, WithFlushStrategy(StrategyEntity))
	ctx := context.Background()

	doc, err := FindByID[*DocumentView](ctx, m, int64(10))
	require.NoError(t, err)
	_, err = db.Exec("update document set name = 'Draft' where id = 10")
	require.NoError(t, err)
	doc.Name = "Draft"
	stmts, err := m.Plan(ctx, doc)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0].SQL, "select")
	require.NoError(t, m.Save(ctx, doc))
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, 1, count(t, db, "select count(*) from document where id = 10 and version = 1"))

	_, err = db.Exec("update document set version = 7 where id = 10")
	require.NoError(t, err)
	doc.Name = "Final"
	err = m.Save(ctx, doc)
	var lockErr *blaze.OptimisticLockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, int64(10), lockErr.ID)
}

func TestFullMode(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	m := newManager(t, drv, WithFlushMode(FlushFull))
	ctx := context.Background()

	doc, err := FindByID[*DocumentView](ctx, m, int64(10))
	require.NoError(t, err)
	doc.Name = "Plan v2"
	stmts, err := m.Plan(ctx, doc)
	require.NoError(t, err)
	// The revisions cascade updates and are written in full as well.
	require.Len(t, stmts, 3)
	assert.Equal(t, "update document set name = ?, owner_id = ?, version = document.version + 1 where document.id = ? and document.version = ?", stmts[0].SQL)
	assert.Equal(t, []any{"Plan v2", int64(1), int64(10), int64(1)}, stmts[0].Args)
	assert.Equal(t, Statement{SQL: "update doc_revision set rev_no = ? where doc_revision.id = ?", Args: []any{1, int64(100)}}, stmts[1])
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, 1, count(t, db, "select count(*) from document where id = 10 and name = 'Plan'"))
}

func TestRemove(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	var removed []string
	m := newManager(t, drv, WithListener(PostRemove, func(_ context.Context, v any) error {
		switch v := v.(type) {
		case *DocumentView:
			removed = append(removed, v.Name)
		case *RevisionView:
			removed = append(removed, "revision")
		}
		return nil
	}))
	ctx := context.Background()

	doc, err := FindByID[*DocumentView](ctx, m, int64(10))
	require.NoError(t, err)
	require.NoError(t, m.Remove(ctx, doc))
	assert.True(t, doc.IsRemoved())
	assert.Equal(t, []string{"revision", "revision", "Plan"}, removed)
	assert.Equal(t, 0, count(t, db, "select count(*) from document"))
	assert.Equal(t, 0, count(t, db, "select count(*) from doc_revision"))
	assert.Equal(t, 0, count(t, db, "select count(*) from document_contacts"))
	assert.Equal(t, 2, count(t, db, "select count(*) from person"))

	assert.Error(t, m.Save(ctx, doc))
}

func TestRemoveByID(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	m := newManager(t, drv)
	ctx := context.Background()

	require.NoError(t, RemoveByID[*DocumentView](ctx, m, int64(10)))
	assert.Equal(t, 0, count(t, db, "select count(*) from document"))
	assert.Equal(t, 0, count(t, db, "select count(*) from doc_revision"))
	assert.Equal(t, 0, count(t, db, "select count(*) from document_contacts"))

	err := RemoveByID[*DocumentView](ctx, m, int64(10))
	assert.True(t, blaze.IsNotFound(err))
}

func TestStrictCascadingCheck(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	m := newManager(t, drv, WithViews(Type[ProjectDoc]("Document", Creatable())))
	ctx := context.Background()

	doc, err := Create[*ProjectDoc](m)
	require.NoError(t, err)
	doc.Name = "Plan"
	doc.Owner, err = Create[*PersonView](m)
	require.NoError(t, err)
	doc.Owner.Name = "Carol"
	err = m.Save(ctx, doc)
	require.ErrorContains(t, err, "not persisted")
	assert.True(t, doc.IsNew())
	assert.Zero(t, doc.ID)
	assert.Equal(t, 2, count(t, db, "select count(*) from person"))

	doc.Owner, err = Reference[*PersonView](m, int64(2))
	require.NoError(t, err)
	require.NoError(t, m.Save(ctx, doc))
	assert.Equal(t, 1, count(t, db, "select count(*) from document where name = 'Plan' and owner_id = 2 and version = 1"))

	_, err = Create[*DocumentSummary](m)
	assert.True(t, blaze.IsConfigurationError(err))
}

func TestMutationPolicy(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	var fields []string
	policy := privacy.Policy{
		Mutation: privacy.MutationPolicy{
			privacy.MutationRuleFunc(func(_ context.Context, mu blaze.Mutation) error {
				if mu.Op() == blaze.OpUpdate {
					fields = mu.Fields()
				}
				return privacy.Skip
			}),
			privacy.OnMutationOperation(privacy.DenyMutationOperationRule(blaze.OpDelete), blaze.OpDelete),
		},
	}
	m := newManager(t, drv, WithPolicy(policy))
	ctx := context.Background()

	doc, err := FindByID[*DocumentView](ctx, m, int64(10))
	require.NoError(t, err)
	doc.Name = "Plan v2"
	require.NoError(t, m.Save(ctx, doc))
	assert.Equal(t, []string{"name", "version"}, fields)

	err = m.Remove(ctx, doc)
	require.ErrorIs(t, err, privacy.Deny)
	var perr *blaze.PolicyError
	require.ErrorAs(t, err, &perr)
	assert.False(t, doc.IsRemoved())
	assert.Equal(t, 2, count(t, db, "select count(*) from doc_revision"))
	assert.Equal(t, 1, count(t, db, "select count(*) from document"))
}

func TestPlan(t *testing.T) {
	drv, db := openSQLite(t)
	m := newManager(t, drv)
	ctx := context.Background()

	p, err := Create[*PersonView](m)
	require.NoError(t, err)
	p.Name = "Carol"
	stmts, err := m.Plan(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []Statement{{SQL: "insert into person (name, age) values (?, ?) returning id", Args: []any{"Carol", nil}}}, stmts)
	assert.True(t, p.IsNew())
	assert.Zero(t, p.ID)
	assert.Equal(t, 0, count(t, db, "select count(*) from person"))

	require.NoError(t, m.Save(ctx, p))
	assert.Equal(t, int64(1), p.ID)
}

func TestSaveMock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	m := newManager(t, sql.OpenDB(dialect.SQLite, db))
	ctx := context.Background()

	p, err := Create[*PersonView](m)
	require.NoError(t, err)
	p.Name = "Carol"
	mock.ExpectBegin()
	mock.ExpectQuery("insert into person (name, age) values (?, ?) returning id").
		WithArgs("Carol", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()
	require.NoError(t, m.Save(ctx, p))
	assert.Equal(t, int64(7), p.ID)

	q, err := Create[*PersonView](m)
	require.NoError(t, err)
	q.Name = "Carol"
	mock.ExpectBegin()
	mock.ExpectQuery("insert into person (name, age) values (?, ?) returning id").
		WithArgs("Carol", nil).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: person.name"))
	mock.ExpectRollback()
	err = m.Save(ctx, q)
	assert.True(t, blaze.IsConstraintError(err))
	assert.True(t, q.IsNew())
	require.NoError(t, mock.ExpectationsWereMet())
}
