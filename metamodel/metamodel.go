// Package metamodel describes the persistent entities that criteria queries
// and entity views are built upon.
//
// Entities are declared with a fluent DSL and validated as a whole:
//
//	mm, err := metamodel.New(
//		metamodel.Entity("Person").Attributes(
//			metamodel.ID("id"),
//			metamodel.String("name"),
//		),
//		metamodel.Entity("Document").Attributes(
//			metamodel.ID("id"),
//			metamodel.String("name"),
//			metamodel.Version("version"),
//			metamodel.ManyToOne("owner", "Person"),
//			metamodel.ManyToMany("contacts", "Person"),
//		),
//	)
//
// Tables and columns default to the snake case form of the entity and
// attribute names.
package metamodel

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/syssam/blaze/dialect/dbms"
)

// AttributeType is the persistent type of an attribute.
type AttributeType uint8

// Attribute types.
const (
	Basic AttributeType = iota + 1
	ManyToOneType
	OneToManyType
	ManyToManyType
	EmbeddedType
)

func (t AttributeType) String() string {
	switch t {
	case Basic:
		return "basic"
	case ManyToOneType:
		return "many-to-one"
	case OneToManyType:
		return "one-to-many"
	case ManyToManyType:
		return "many-to-many"
	case EmbeddedType:
		return "embedded"
	}
	return fmt.Sprintf("AttributeType(%d)", t)
}

// Attribute is an attribute of an entity.
type Attribute struct {
	Name string
	Type AttributeType
	// Kind is the value type of basic attributes and of the id of the
	// target for associations.
	Kind dbms.Type
	// Column is the column of a basic attribute or the join column of a
	// many-to-one association.
	Column   string
	Optional bool
	// Target is the name of the associated entity.
	Target string
	// MappedBy is the many-to-one attribute of the target that owns a
	// one-to-many association.
	MappedBy string
	// JoinTable, JoinColumn and InverseColumn describe the join table of a
	// many-to-many association. JoinColumn references the owner.
	JoinTable     string
	JoinColumn    string
	InverseColumn string
	// OrderColumn holds the zero based list index of an indexed collection.
	// It is a column of the join table of a many-to-many association and the
	// column of a basic integer attribute of the target of a one-to-many
	// association.
	OrderColumn string
	// Fields are the attributes of an embeddable, named by their path from
	// the entity, e.g. "address.city".
	Fields []*Attribute

	entity *Entity
	target *Entity
	// order is the index attribute of an indexed one-to-many association.
	order *Attribute
	// embedded is the embeddable declaring a field.
	embedded *Attribute
}

// Entity returns the entity declaring the attribute.
func (a *Attribute) Entity() *Entity { return a.entity }

// TargetEntity returns the associated entity, or nil for basic attributes.
func (a *Attribute) TargetEntity() *Entity { return a.target }

// IsAssociation reports whether the attribute references other entities.
func (a *Attribute) IsAssociation() bool { return a.Type != Basic && a.Type != EmbeddedType }

// IsCollection reports whether the attribute is a to-many association.
func (a *Attribute) IsCollection() bool {
	return a.Type == OneToManyType || a.Type == ManyToManyType
}

// IsIndexed reports whether the attribute is a collection with an order
// column.
func (a *Attribute) IsIndexed() bool { return a.IsCollection() && a.OrderColumn != "" }

// OrderAttribute returns the attribute of the target holding the index of an
// indexed one-to-many association.
func (a *Attribute) OrderAttribute() *Attribute { return a.order }

// Embeddable returns the embeddable declaring the attribute, or nil.
func (a *Attribute) Embeddable() *Attribute { return a.embedded }

// Inverse returns the many-to-one attribute that owns a one-to-many
// association.
func (a *Attribute) Inverse() *Attribute {
	if a.Type != OneToManyType || a.target == nil {
		return nil
	}
	inv, _ := a.target.Attribute(a.MappedBy)
	return inv
}

func (a *Attribute) String() string {
	if a.entity == nil {
		return a.Name
	}
	return a.entity.Name + "." + a.Name
}

// Entity is a persistent entity.
type Entity struct {
	Name  string
	Table string
	// ID and Version are the id and the optional version attribute.
	ID      *Attribute
	Version *Attribute

	attrs  []*Attribute
	byName map[string]*Attribute
}

// Attribute returns the attribute with the given name.
func (e *Entity) Attribute(name string) (*Attribute, bool) {
	a, ok := e.byName[name]
	return a, ok
}

// Attributes returns the attributes in declaration order.
func (e *Entity) Attributes() []*Attribute { return e.attrs }

// Columns returns the columns of the entity table: the basic and the
// many-to-one attributes.
func (e *Entity) Columns() []*Attribute {
	cols := make([]*Attribute, 0, len(e.attrs))
	for _, a := range e.attrs {
		if a.Type == Basic || a.Type == ManyToOneType {
			cols = append(cols, a)
		}
	}
	return cols
}

// Metamodel is a validated set of entities.
type Metamodel struct {
	entities map[string]*Entity
}

// New builds and validates the metamodel of the given entities.
func New(builders ...*EntityBuilder) (*Metamodel, error) {
	m := &Metamodel{entities: make(map[string]*Entity, len(builders))}
	for _, b := range builders {
		if b.err != nil {
			return nil, b.err
		}
		e := b.entity
		if _, ok := m.entities[e.Name]; ok {
			return nil, fmt.Errorf("metamodel: duplicate entity %q", e.Name)
		}
		m.entities[e.Name] = e
	}
	for _, e := range m.Entities() {
		if e.ID == nil {
			return nil, fmt.Errorf("metamodel: entity %q has no id attribute", e.Name)
		}
	}
	for _, e := range m.Entities() {
		if err := m.link(e); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is like New but panics on error.
func MustNew(builders ...*EntityBuilder) *Metamodel {
	m, err := New(builders...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metamodel) link(e *Entity) error {
	if v := e.Version; v != nil {
		switch v.Kind {
		case dbms.TypeInt, dbms.TypeInt64, dbms.TypeTime:
		default:
			return fmt.Errorf("metamodel: version attribute %s must be an integer or a time, got %s", v, v.Kind)
		}
	}
	for _, a := range e.attrs {
		if !a.IsAssociation() {
			continue
		}
		t, ok := m.entities[a.Target]
		if !ok {
			return fmt.Errorf("metamodel: attribute %s references unknown entity %q", a, a.Target)
		}
		a.target = t
		a.Kind = t.ID.Kind
		switch a.Type {
		case OneToManyType:
			inv, ok := t.Attribute(a.MappedBy)
			if !ok {
				return fmt.Errorf("metamodel: attribute %s is mapped by unknown attribute %s.%s", a, t.Name, a.MappedBy)
			}
			if inv.Type != ManyToOneType || inv.Target != e.Name {
				return fmt.Errorf("metamodel: attribute %s must be mapped by a many-to-one to %s, got %s", a, e.Name, inv)
			}
			if a.OrderColumn != "" {
				o, ok := t.Attribute(a.OrderColumn)
				if !ok || o.Type != Basic || o.Kind != dbms.TypeInt && o.Kind != dbms.TypeInt64 {
					return fmt.Errorf("metamodel: order column of %s must name an integer attribute of %s, got %q", a, t.Name, a.OrderColumn)
				}
				a.order, a.OrderColumn = o, o.Column
			}
		case ManyToManyType:
			if a.JoinTable == "" {
				a.JoinTable = e.Table + "_" + snake(a.Name)
			}
			if a.JoinColumn == "" {
				a.JoinColumn = e.Table + "_id"
			}
			if a.InverseColumn == "" {
				a.InverseColumn = singular(snake(a.Name)) + "_id"
			}
		}
	}
	return nil
}

// Entity returns the entity with the given name.
func (m *Metamodel) Entity(name string) (*Entity, bool) {
	e, ok := m.entities[name]
	return e, ok
}

// Entities returns the entities sorted by name.
func (m *Metamodel) Entities() []*Entity {
	es := make([]*Entity, 0, len(m.entities))
	for _, e := range m.entities {
		es = append(es, e)
	}
	sort.Slice(es, func(i, j int) bool { return es[i].Name < es[j].Name })
	return es
}

// Fingerprint hashes the mapping of every entity. Metamodels mapping the same
// entities to the same tables and columns have equal fingerprints.
func (m *Metamodel) Fingerprint() uint64 {
	h := xxhash.New()
	for _, e := range m.Entities() {
		_, _ = h.WriteString(e.Name + "=" + e.Table + "{")
		for _, a := range e.attrs {
			_, _ = h.WriteString(strings.Join([]string{
				a.Name,
				strconv.Itoa(int(a.Type)),
				strconv.Itoa(int(a.Kind)),
				a.Column,
				strconv.FormatBool(a.Optional),
				a.Target,
				a.MappedBy,
				a.JoinTable,
				a.JoinColumn,
				a.InverseColumn,
				a.OrderColumn,
			}, ","))
			_, _ = h.WriteString(";")
		}
		_, _ = h.WriteString("}")
	}
	return h.Sum64()
}

// Resolve returns the attributes along a dotted path starting at entity, e.g.
// "owner.name" of Document yields [Document.owner, Person.name]. Every
// attribute but the last one must be an association or an embeddable. The
// field of an embeddable follows it in the chain, e.g. "address.city" yields
// [Document.address, Document.address.city].
func (m *Metamodel) Resolve(entity, path string) ([]*Attribute, error) {
	e, ok := m.entities[entity]
	if !ok {
		return nil, fmt.Errorf("metamodel: unknown entity %q", entity)
	}
	if path == "" {
		return nil, fmt.Errorf("metamodel: empty path on %s", entity)
	}
	parts := strings.Split(path, ".")
	chain := make([]*Attribute, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		a, ok := e.Attribute(parts[i])
		if !ok {
			return nil, fmt.Errorf("metamodel: %s has no attribute %q (path %q)", e.Name, parts[i], path)
		}
		chain = append(chain, a)
		if i == len(parts)-1 {
			break
		}
		if a.Type == EmbeddedType {
			i++
			f, ok := e.Attribute(a.Name + "." + parts[i])
			if !ok {
				return nil, fmt.Errorf("metamodel: embeddable %s has no attribute %q (path %q)", a, parts[i], path)
			}
			chain = append(chain, f)
			a = f
			if i == len(parts)-1 {
				break
			}
		}
		if !a.IsAssociation() {
			return nil, fmt.Errorf("metamodel: attribute %s of path %q is not an association", a, path)
		}
		e = a.target
	}
	return chain, nil
}
