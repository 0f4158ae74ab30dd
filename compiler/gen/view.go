package gen

import (
	"github.com/dave/jennifer/jen"

	"github.com/syssam/blaze/compiler/load"
)

// genViews generates the view structs.
func (g *Generator) genViews() *jen.File {
	f := g.newFile(g.model.Package)
	for _, v := range g.model.Views {
		comment := v.Comment
		if comment == "" {
			comment = v.Name + " is an entity view of " + v.Entity + "."
		}
		fields := []jen.Code{jen.Qual(viewPkg, "State")}
		for _, fd := range v.Fields {
			// Types and tags were checked when the model was loaded.
			t, _ := load.ParseType(fd.Type)
			tag, _ := fd.Tag()
			field := jen.Id(fd.Name).Add(goType(t))
			if tag != "" {
				field.Tag(map[string]string{"view": tag})
			}
			fields = append(fields, field)
		}
		f.Comment(comment)
		f.Type().Id(v.Name).Struct(fields...)
		f.Line()
	}
	return f
}
