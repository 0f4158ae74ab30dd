// Package view maps Go structs onto entity views: projections of a
// metamodel entity that are loaded with a single criteria query (plus
// batched loads of collections) and flushed back by diffing them against
// the snapshot taken at load time.
//
//	type DocumentView struct {
//		view.State
//		ID        int64
//		Version   int64
//		Name      string            `view:"name,updatable"`
//		Owner     *PersonView       `view:"owner,updatable"`
//		OwnerName string            `view:"upper(owner.name)"`
//		Revisions []*RevisionView   `view:"revisions,updatable,orphan,cascade=persist"`
//	}
//
//	m, err := view.NewManager(mm, drv,
//		view.WithViews(
//			view.Type[PersonView]("Person"),
//			view.Type[RevisionView]("Revision", view.Creatable()),
//			view.Type[DocumentView]("Document", view.Creatable(), view.Mode(view.FlushPartial)),
//		),
//	)
//	doc, err := view.FindByID[*DocumentView](ctx, m, 1)
//	doc.Name = "Plan v2"
//	err = m.Save(ctx, doc)
//
// Flush modes decide which columns are written: FlushLazy and FlushPartial
// write the dirty attributes, FlushFull writes every updatable attribute.
// The QUERY strategy issues the update statements directly; the ENTITY
// strategy loads the current row first and only writes the columns that
// differ from it.
package view
