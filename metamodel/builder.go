package metamodel

import (
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/syssam/blaze/dialect/dbms"
)

// EntityBuilder declares an entity.
type EntityBuilder struct {
	entity *Entity
	err    error
}

// Entity starts the declaration of the named entity. The table defaults to
// the snake case name, e.g. "document_version" for DocumentVersion.
func Entity(name string) *EntityBuilder {
	return &EntityBuilder{entity: &Entity{
		Name:   name,
		Table:  snake(name),
		byName: make(map[string]*Attribute),
	}}
}

// Table sets the table name.
func (b *EntityBuilder) Table(name string) *EntityBuilder {
	b.entity.Table = name
	return b
}

// Attributes adds attributes to the entity.
func (b *EntityBuilder) Attributes(attrs ...*AttributeBuilder) *EntityBuilder {
	e := b.entity
	for _, ab := range attrs {
		a := ab.attr
		if !b.add(a) {
			continue
		}
		if a.OrderColumn != "" && !a.IsCollection() && b.err == nil {
			b.err = fmt.Errorf("metamodel: order column of %s.%s requires a collection", e.Name, a.Name)
		}
		for _, fb := range ab.fields {
			f := fb.attr
			if (f.Type != Basic || fb.id || fb.version) && b.err == nil {
				b.err = fmt.Errorf("metamodel: embeddable %s.%s must declare basic attributes, got %s", e.Name, a.Name, f.Name)
			}
			f.Name = a.Name + "." + f.Name
			if !fb.column {
				f.Column = a.Column + "_" + f.Column
			}
			f.embedded = a
			if b.add(f) {
				a.Fields = append(a.Fields, f)
			}
		}
		switch {
		case ab.id && e.ID != nil && b.err == nil:
			b.err = fmt.Errorf("metamodel: entity %s has more than one id attribute", e.Name)
		case ab.id:
			e.ID = a
		case ab.version:
			e.Version = a
		}
	}
	return b
}

// add adds an attribute to the entity. It reports false for duplicates.
func (b *EntityBuilder) add(a *Attribute) bool {
	e := b.entity
	if _, ok := e.byName[a.Name]; ok {
		if b.err == nil {
			b.err = fmt.Errorf("metamodel: duplicate attribute %s.%s", e.Name, a.Name)
		}
		return false
	}
	a.entity = e
	e.attrs = append(e.attrs, a)
	e.byName[a.Name] = a
	return true
}

// AttributeBuilder declares an attribute.
type AttributeBuilder struct {
	attr        *Attribute
	id, version bool
	// column reports whether the column was set explicitly.
	column bool
	fields []*AttributeBuilder
}

// Field returns a basic attribute of the given kind.
func Field(name string, kind dbms.Type) *AttributeBuilder {
	return &AttributeBuilder{attr: &Attribute{Name: name, Type: Basic, Kind: kind, Column: snake(name)}}
}

// ID returns the id attribute. Its kind defaults to int64.
func ID(name string) *AttributeBuilder {
	b := Field(name, dbms.TypeInt64)
	b.id = true
	return b
}

// Version returns the version attribute used for optimistic locking. Its kind
// defaults to int64.
func Version(name string) *AttributeBuilder {
	b := Field(name, dbms.TypeInt64)
	b.version = true
	return b
}

// String returns a string attribute.
func String(name string) *AttributeBuilder { return Field(name, dbms.TypeString) }

// Int returns an int attribute.
func Int(name string) *AttributeBuilder { return Field(name, dbms.TypeInt) }

// Int64 returns an int64 attribute.
func Int64(name string) *AttributeBuilder { return Field(name, dbms.TypeInt64) }

// Float64 returns a float64 attribute.
func Float64(name string) *AttributeBuilder { return Field(name, dbms.TypeFloat) }

// Bool returns a bool attribute.
func Bool(name string) *AttributeBuilder { return Field(name, dbms.TypeBool) }

// Time returns a time attribute.
func Time(name string) *AttributeBuilder { return Field(name, dbms.TypeTime) }

// Bytes returns a bytes attribute.
func Bytes(name string) *AttributeBuilder { return Field(name, dbms.TypeBytes) }

// UUID returns a uuid attribute.
func UUID(name string) *AttributeBuilder { return Field(name, dbms.TypeUUID) }

// ManyToOne returns a to-one association to target. The join column defaults
// to the snake case name with an "_id" suffix.
func ManyToOne(name, target string) *AttributeBuilder {
	return &AttributeBuilder{attr: &Attribute{Name: name, Type: ManyToOneType, Target: target, Column: snake(name) + "_id", Optional: true}}
}

// OneToMany returns a collection of target entities owned by their
// many-to-one attribute mappedBy.
func OneToMany(name, target, mappedBy string) *AttributeBuilder {
	return &AttributeBuilder{attr: &Attribute{Name: name, Type: OneToManyType, Target: target, MappedBy: mappedBy}}
}

// ManyToMany returns a collection of target entities stored in a join table.
func ManyToMany(name, target string) *AttributeBuilder {
	return &AttributeBuilder{attr: &Attribute{Name: name, Type: ManyToManyType, Target: target}}
}

// Embedded returns an embeddable whose basic fields are stored in columns
// of the entity table. The columns of the fields default to their snake case
// names prefixed with the column of the embeddable:
//
//	metamodel.Embedded("address",
//		metamodel.String("street"),
//		metamodel.String("zipCode").Optional(),
//	)
//
// maps the columns address_street and address_zip_code.
func Embedded(name string, fields ...*AttributeBuilder) *AttributeBuilder {
	return &AttributeBuilder{attr: &Attribute{Name: name, Type: EmbeddedType, Column: snake(name)}, fields: fields}
}

// Column sets the column of a basic attribute, the join column of a
// many-to-one association or the column prefix of an embeddable.
func (b *AttributeBuilder) Column(name string) *AttributeBuilder {
	b.attr.Column = name
	b.column = true
	return b
}

// OrderColumn makes a collection an indexed list. The elements are loaded in
// the order of their zero based index, and flushes keep the index in sync
// with the position of the elements. For many-to-many associations name is a
// column of the join table, for one-to-many associations an integer
// attribute of the target.
func (b *AttributeBuilder) OrderColumn(name string) *AttributeBuilder {
	b.attr.OrderColumn = name
	return b
}

// Kind sets the value kind of a basic attribute.
func (b *AttributeBuilder) Kind(k dbms.Type) *AttributeBuilder {
	b.attr.Kind = k
	return b
}

// Optional marks the attribute as nullable.
func (b *AttributeBuilder) Optional() *AttributeBuilder {
	b.attr.Optional = true
	return b
}

// Required marks a many-to-one association as not nullable.
func (b *AttributeBuilder) Required() *AttributeBuilder {
	b.attr.Optional = false
	return b
}

// JoinTable sets the join table of a many-to-many association with the
// columns referencing the owner and the target.
func (b *AttributeBuilder) JoinTable(table, joinColumn, inverseColumn string) *AttributeBuilder {
	b.attr.JoinTable, b.attr.JoinColumn, b.attr.InverseColumn = table, joinColumn, inverseColumn
	return b
}

func snake(s string) string { return inflect.Underscore(s) }

func singular(s string) string { return inflect.Singularize(s) }
