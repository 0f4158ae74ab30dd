package view

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/criteria"
)

type DocTitle struct {
	State
	ID   int64
	Name string
}

type PersonDocs struct {
	State
	ID        int64
	Name      string
	Documents []*DocTitle `view:"id,correlated=Document.owner"`
}

type DocumentRevisions struct {
	State
	ID        int64
	Revisions []RevisionView `view:"revisions,fetch=multiset"`
}

type Versioned interface {
	Title() string
}

type Draft struct {
	State
	ID   int64
	Name string
}

func (d *Draft) Title() string { return "draft " + d.Name }

type Released struct {
	State
	ID      int64
	Name    string
	Version int64
}

func (r *Released) Title() string { return r.Name }

func TestNewManagerErrors(t *testing.T) {
	drv, _ := openSQLite(t)
	type noState struct {
		ID int64
	}
	type unknownPath struct {
		State
		ID    int64
		Title string
	}
	type updatableExpr struct {
		State
		ID    int64
		Upper string `view:"upper(name),updatable"`
	}
	type noID struct {
		State
		Name string
	}
	type joinedCollection struct {
		State
		ID        int64
		Revisions []*RevisionView `view:"revisions,fetch=join"`
	}
	type orphanBasic struct {
		State
		ID   int64
		Name string `view:"name,orphan"`
	}
	type wrongKind struct {
		State
		ID  int64
		Age string
	}
	tests := []struct {
		name string
		reg  Registration
		want string
	}{
		{"no state", Type[noState]("Person"), "does not embed view.State"},
		{"unknown entity", Type[noID]("Nobody"), `unknown entity "Nobody"`},
		{"unknown path", Type[unknownPath]("Document"), "title"},
		{"updatable expression", Type[updatableExpr]("Person"), "cannot be an id, a version or updatable"},
		{"no id", Type[noID]("Person"), "no id attribute"},
		{"joined collection", Type[joinedCollection]("Document"), "cannot be fetched with joins"},
		{"orphan basic", Type[orphanBasic]("Person"), "orphan removal requires a collection"},
		{"wrong kind", Type[wrongKind]("Person"), "cannot hold"},
		{"duplicate", Type[PersonView]("Person"), "registered twice"},
		{"optimistic without version", Type[DocTitle]("Document", Locking(LockOptimistic)), "requires a version attribute"},
		{"interface subtype", Interface[Versioned]("Document", Subtype[Draft]("version = 1")), "is not a pointer implementing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(documents(t), drv, registrations(), WithViews(tt.reg))
			require.Error(t, err)
			assert.True(t, blaze.IsConfigurationError(err), err)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := NewManager(documents(t), drv, WithBatchSize(0))
	assert.True(t, blaze.IsConfigurationError(err))

	_, err = NewManager(documents(t), drv, WithoutManagedTypeValidation(), WithViews(Type[wrongKind]("Person")))
	assert.NoError(t, err)
}

func TestPolymorphic(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	_, err := db.Exec("insert into document (id, name, version, owner_id) values (11, 'Manual', 3, 1), (12, 'Broken', 0, 1)")
	require.NoError(t, err)
	m := newManager(t, drv, WithViews(Interface[Versioned]("Document",
		Subtype[*Draft]("version = 1"),
		Subtype[*Released]("version > 1"),
	)))
	ctx := context.Background()

	vs, err := Find[Versioned](ctx, m,
		Where(criteria.Path[int64]("document.version").GT(0)),
		OrderBy(criteria.Asc("document.id")),
	)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	require.IsType(t, &Draft{}, vs[0])
	assert.Equal(t, "draft Plan", vs[0].Title())
	require.IsType(t, &Released{}, vs[1])
	assert.Equal(t, int64(3), vs[1].(*Released).Version)

	released := vs[1].(*Released)
	released.Name = "Manual v2"
	dirty, err := m.IsDirty(released)
	require.NoError(t, err)
	assert.True(t, dirty)

	_, err = FindByID[Versioned](ctx, m, int64(12))
	assert.ErrorContains(t, err, "matches no subtype")
}

func TestCorrelated(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	_, err := db.Exec("insert into document (id, name, version, owner_id) values (11, 'Manual', 1, 1), (12, 'Notes', 1, 2)")
	require.NoError(t, err)
	m := newManager(t, drv, WithViews(Type[DocTitle]("Document"), Type[PersonDocs]("Person")), WithBatchSize(1))

	people, err := Find[*PersonDocs](context.Background(), m, OrderBy(criteria.Asc("person.id")))
	require.NoError(t, err)
	require.Len(t, people, 2)
	require.Len(t, people[0].Documents, 2)
	assert.Equal(t, "Plan", people[0].Documents[0].Name)
	assert.Equal(t, "Manual", people[0].Documents[1].Name)
	require.Len(t, people[1].Documents, 1)
	assert.Equal(t, int64(12), people[1].Documents[0].ID)
}

func TestMultiset(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	_, err := db.Exec("insert into document (id, name, version, owner_id) values (11, 'Empty', 1, 1)")
	require.NoError(t, err)
	m := newManager(t, drv, WithViews(Type[DocumentRevisions]("Document")))

	docs, err := Find[*DocumentRevisions](context.Background(), m, OrderBy(criteria.Asc("document.id")))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Len(t, docs[0].Revisions, 2)
	numbers := []int{docs[0].Revisions[0].Number, docs[0].Revisions[1].Number}
	assert.ElementsMatch(t, []int{1, 2}, numbers)
	assert.Empty(t, docs[1].Revisions)
}

func TestChangeModel(t *testing.T) {
	drv, db := openSQLite(t)
	seed(t, db)
	m := newManager(t, drv)
	ctx := context.Background()

	doc, err := FindByID[*DocumentView](ctx, m, int64(10))
	require.NoError(t, err)
	doc.Owner.Name = "Alicia"
	doc.Revisions[0].Number = 9

	cm, err := m.Changes(doc)
	require.NoError(t, err)
	assert.Equal(t, Mutated, cm.Kind)
	assert.Equal(t, "MUTATED", cm.Kind.String())
	owner, err := cm.Get("owner")
	require.NoError(t, err)
	assert.Equal(t, Mutated, owner.Kind)
	name, err := cm.Get("owner.name")
	require.NoError(t, err)
	assert.Equal(t, Updated, name.Kind)
	assert.Equal(t, "Alice", name.Initial)
	assert.Equal(t, "Alicia", name.Current)
	revs, err := cm.Get("revisions")
	require.NoError(t, err)
	assert.Equal(t, Mutated, revs.Kind)
	require.Len(t, revs.Elements, 1)
	assert.Len(t, cm.DirtyChanges(), 2)

	doc.Owner, err = Reference[*PersonView](m, int64(2))
	require.NoError(t, err)
	cm, err = m.Changes(doc)
	require.NoError(t, err)
	assert.Equal(t, Updated, cm.Kind)

	_, err = m.Changes(&DocumentView{})
	assert.True(t, blaze.IsConfigurationError(err))
	_, err = m.Changes(DocumentView{})
	assert.Error(t, err)
}
