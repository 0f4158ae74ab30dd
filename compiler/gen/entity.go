package gen

import (
	"github.com/dave/jennifer/jen"

	"github.com/syssam/blaze/compiler/load"
	"github.com/syssam/blaze/metamodel"
)

// genEntity generates the constant package of an entity: its name, its
// table, and the path and column of each attribute.
func (g *Generator) genEntity(e *load.Entity) *jen.File {
	f := g.newFile(pkgName(e.Name))
	f.PackageComment("Package " + pkgName(e.Name) + " holds the names of the " + e.Name + " entity.")

	// Defaults of tables and columns are applied by the metamodel.
	me, _ := g.mm.Entity(e.Name)

	var columns []jen.Code
	f.Const().DefsFunc(func(grp *jen.Group) {
		grp.Comment("Entity is the name of the entity.")
		grp.Id("Entity").Op("=").Lit(e.Name)
		grp.Comment("Table is the table of the entity.")
		grp.Id("Table").Op("=").Lit(me.Table)
		for _, a := range me.Attributes() {
			name := pascal(snake(a.Name))
			grp.Commentf("Field%s is the path of the %s attribute.", name, a.Name)
			grp.Id("Field" + name).Op("=").Lit(a.Name)
			switch a.Type {
			case metamodel.Basic, metamodel.ManyToOneType:
				grp.Commentf("Column%s is the column of the %s attribute.", name, a.Name)
				grp.Id("Column" + name).Op("=").Lit(a.Column)
				columns = append(columns, jen.Id("Column"+name))
			case metamodel.ManyToManyType:
				grp.Commentf("%sTable is the join table of the %s attribute.", name, a.Name)
				grp.Id(name + "Table").Op("=").Lit(a.JoinTable)
			}
		}
	})
	f.Line()
	f.Comment("Columns holds the columns of the table.")
	f.Var().Id("Columns").Op("=").Index().String().ValuesFunc(func(grp *jen.Group) {
		for _, c := range columns {
			grp.Line().Add(c)
		}
		grp.Line()
	})
	return f
}
