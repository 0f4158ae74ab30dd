package gen

import (
	"path"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/blaze/compiler/load"
	"github.com/syssam/blaze/dialect/dbms"
)

// kindConstants maps the logical types to their dbms constants.
var kindConstants = map[dbms.Type]string{
	dbms.TypeBool:    "TypeBool",
	dbms.TypeInt:     "TypeInt",
	dbms.TypeInt64:   "TypeInt64",
	dbms.TypeFloat:   "TypeFloat",
	dbms.TypeDecimal: "TypeDecimal",
	dbms.TypeString:  "TypeString",
	dbms.TypeTime:    "TypeTime",
	dbms.TypeBytes:   "TypeBytes",
	dbms.TypeUUID:    "TypeUUID",
}

// kindBuilders maps the logical types to the metamodel shorthand builders.
var kindBuilders = map[dbms.Type]string{
	dbms.TypeBool:   "Bool",
	dbms.TypeInt:    "Int",
	dbms.TypeInt64:  "Int64",
	dbms.TypeFloat:  "Float64",
	dbms.TypeString: "String",
	dbms.TypeTime:   "Time",
	dbms.TypeBytes:  "Bytes",
	dbms.TypeUUID:   "UUID",
}

var (
	modeConstants = map[string]string{
		"lazy":    "FlushLazy",
		"partial": "FlushPartial",
		"full":    "FlushFull",
	}
	strategyConstants = map[string]string{
		"query":  "StrategyQuery",
		"entity": "StrategyEntity",
	}
	lockConstants = map[string]string{
		"auto":       "LockAuto",
		"optimistic": "LockOptimistic",
		"none":       "LockNone",
	}
)

// genRegister generates Metamodel, Views and NewManager.
func (g *Generator) genRegister() *jen.File {
	f := g.newFile(g.model.Package)

	entities := make([]jen.Code, 0, len(g.model.Entities))
	for _, e := range g.model.Entities {
		entities = append(entities, g.entityBuilder(e))
	}
	f.Comment("Metamodel returns the metamodel of the entities.")
	f.Func().Id("Metamodel").Params().Params(jen.Op("*").Qual(metamodelPkg, "Metamodel"), jen.Error()).Block(
		jen.Return(jen.Qual(metamodelPkg, "New").CallFunc(func(grp *jen.Group) {
			for _, e := range entities {
				grp.Line().Add(e)
			}
			if len(entities) > 0 {
				grp.Line()
			}
		})),
	)
	f.Line()

	f.Comment("Views returns the option registering the entity views with a manager.")
	f.Func().Id("Views").Params().Qual(viewPkg, "Option").Block(
		jen.Return(jen.Qual(viewPkg, "WithViews").CallFunc(func(grp *jen.Group) {
			for _, v := range g.model.Views {
				grp.Line().Add(g.registration(v))
			}
			if len(g.model.Views) > 0 {
				grp.Line()
			}
		})),
	)
	f.Line()

	f.Comment("NewManager builds the metamodel and returns a manager of the entity views")
	f.Comment("over drv. The options are applied after the view registrations.")
	f.Func().Id("NewManager").Params(
		jen.Id("drv").Qual(dialectPkg, "Driver"),
		jen.Id("opts").Op("...").Qual(viewPkg, "Option"),
	).Params(jen.Op("*").Qual(viewPkg, "Manager"), jen.Error()).Block(
		jen.List(jen.Id("mm"), jen.Err()).Op(":=").Id("Metamodel").Call(),
		jen.If(jen.Err().Op("!=").Nil()).Block(
			jen.Return(jen.Nil(), jen.Err()),
		),
		jen.Return(jen.Qual(viewPkg, "NewManager").Call(
			jen.Id("mm"),
			jen.Id("drv"),
			jen.Append(jen.Index().Qual(viewPkg, "Option").Values(jen.Id("Views").Call()), jen.Id("opts").Op("...")).Op("..."),
		)),
	)
	return f
}

// entityName returns the name of the entity, referenced from its package
// when the import path of the target is known.
func (g *Generator) entityName(name string) jen.Code {
	if g.cfg.Package == "" {
		return jen.Lit(name)
	}
	return jen.Qual(path.Join(g.cfg.Package, pkgName(name)), "Entity")
}

func (g *Generator) entityBuilder(e *load.Entity) jen.Code {
	s := jen.Qual(metamodelPkg, "Entity").Call(g.entityName(e.Name))
	if e.Table != "" {
		s.Dot("Table").Call(jen.Lit(e.Table))
	}
	return s.Dot("Attributes").CallFunc(func(grp *jen.Group) {
		for _, a := range e.Attributes {
			grp.Line().Add(attributeBuilder(a))
		}
		grp.Line()
	})
}

func attributeBuilder(a *load.Attribute) jen.Code {
	var s *jen.Statement
	switch a.AttrType() {
	case load.ManyToOne:
		s = jen.Qual(metamodelPkg, "ManyToOne").Call(jen.Lit(a.Name), jen.Lit(a.Target))
		if a.Required {
			s.Dot("Required").Call()
		}
	case load.OneToMany:
		s = jen.Qual(metamodelPkg, "OneToMany").Call(jen.Lit(a.Name), jen.Lit(a.Target), jen.Lit(a.MappedBy))
	case load.ManyToMany:
		s = jen.Qual(metamodelPkg, "ManyToMany").Call(jen.Lit(a.Name), jen.Lit(a.Target))
		if jt := a.JoinTable; jt != nil {
			s.Dot("JoinTable").Call(jen.Lit(jt.Name), jen.Lit(jt.JoinColumn), jen.Lit(jt.InverseColumn))
		}
	default:
		k, _ := a.KindOf()
		switch {
		case a.ID || a.Version:
			name := "ID"
			if a.Version {
				name = "Version"
			}
			s = jen.Qual(metamodelPkg, name).Call(jen.Lit(a.Name))
			if k != dbms.TypeInt64 {
				s.Dot("Kind").Call(jen.Qual(dbmsPkg, kindConstants[k]))
			}
		case kindBuilders[k] != "":
			s = jen.Qual(metamodelPkg, kindBuilders[k]).Call(jen.Lit(a.Name))
		default:
			s = jen.Qual(metamodelPkg, "Field").Call(jen.Lit(a.Name), jen.Qual(dbmsPkg, kindConstants[k]))
		}
		if a.Optional {
			s.Dot("Optional").Call()
		}
	}
	if a.Column != "" {
		s.Dot("Column").Call(jen.Lit(a.Column))
	}
	return s
}

// registration returns the view.Type registration of v.
func (g *Generator) registration(v *load.View) jen.Code {
	args := []jen.Code{g.entityName(v.Entity)}
	switch {
	case v.Creatable:
		args = append(args, jen.Qual(viewPkg, "Creatable").Call())
	case v.Updatable:
		args = append(args, jen.Qual(viewPkg, "Updatable").Call())
	}
	o := v.Options()
	if c, ok := modeConstants[o.Mode]; ok {
		args = append(args, jen.Qual(viewPkg, "Mode").Call(jen.Qual(viewPkg, c)))
	}
	if c, ok := strategyConstants[o.Strategy]; ok {
		args = append(args, jen.Qual(viewPkg, "Strategy").Call(jen.Qual(viewPkg, c)))
	}
	if c, ok := lockConstants[o.Lock]; ok {
		args = append(args, jen.Qual(viewPkg, "Locking").Call(jen.Qual(viewPkg, c)))
	}
	if v.BatchSize > 0 {
		args = append(args, jen.Qual(viewPkg, "BatchSize").Call(jen.Lit(v.BatchSize)))
	}
	return jen.Qual(viewPkg, "Type").Types(jen.Id(v.Name)).Call(args...)
}
