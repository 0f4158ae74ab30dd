package view

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/metamodel"
)

// FlushMode selects which columns and collection rows a flush writes.
type FlushMode uint8

// Flush modes. The zero value uses the default of the manager.
const (
	// FlushLazy writes the changed columns and increments the version only
	// when a column of the view itself changed.
	FlushLazy FlushMode = iota + 1
	// FlushPartial writes the changed columns and increments the version on
	// any change of the view graph.
	FlushPartial
	// FlushFull writes every updatable column and rewrites the join table
	// rows of updatable collections.
	FlushFull
)

func (m FlushMode) String() string {
	switch m {
	case FlushLazy:
		return "lazy"
	case FlushPartial:
		return "partial"
	case FlushFull:
		return "full"
	}
	return "default"
}

// FlushStrategy selects how updates are verified against the database.
type FlushStrategy uint8

// Flush strategies. The zero value uses the default of the manager.
const (
	// StrategyQuery writes the changes with update statements guarded by
	// the id and version.
	StrategyQuery FlushStrategy = iota + 1
	// StrategyEntity loads the row, compares it with the view and writes
	// the columns that differ from the database.
	StrategyEntity
)

func (s FlushStrategy) String() string {
	switch s {
	case StrategyQuery:
		return "query"
	case StrategyEntity:
		return "entity"
	}
	return "default"
}

// LockMode selects optimistic locking of updatable views.
type LockMode uint8

// Lock modes.
const (
	// LockAuto checks the version when the entity has a version attribute.
	LockAuto LockMode = iota
	// LockOptimistic requires a version attribute and checks it.
	LockOptimistic
	// LockNone never checks the version.
	LockNone
)

// typeConfig holds the options of a view type.
type typeConfig struct {
	updatable bool
	creatable bool
	mode      FlushMode
	strategy  FlushStrategy
	lock      LockMode
	batch     int
}

// TypeOption configures a view type.
type TypeOption func(*typeConfig)

// Updatable allows flushing changes of the view.
func Updatable() TypeOption {
	return func(c *typeConfig) { c.updatable = true }
}

// Creatable allows persisting new instances of the view. Creatable views
// are updatable.
func Creatable() TypeOption {
	return func(c *typeConfig) {
		c.updatable = true
		c.creatable = true
	}
}

// Mode sets the flush mode of the view.
func Mode(m FlushMode) TypeOption {
	return func(c *typeConfig) { c.mode = m }
}

// Strategy sets the flush strategy of the view.
func Strategy(s FlushStrategy) TypeOption {
	return func(c *typeConfig) { c.strategy = s }
}

// Locking sets the lock mode of the view.
func Locking(l LockMode) TypeOption {
	return func(c *typeConfig) { c.lock = l }
}

// BatchSize sets the number of owner ids per query when the view is loaded
// as a deferred subview or as collection elements. It overrides the batch
// size of the manager.
func BatchSize(n int) TypeOption {
	return func(c *typeConfig) { c.batch = n }
}

// Registration registers a view type with a manager.
type Registration interface {
	declare(*registry) error
}

// SubtypeRegistration is a subtype of a polymorphic view.
type SubtypeRegistration struct {
	typ       reflect.Type
	predicate string
	opts      []TypeOption
}

type typeRegistration struct {
	typ    reflect.Type
	entity string
	opts   []TypeOption
}

type interfaceRegistration struct {
	typ      reflect.Type
	entity   string
	subtypes []SubtypeRegistration
}

// Type registers the struct T as a view of entity.
//
//	view.Type[DocumentView]("Document", view.Updatable(), view.Mode(view.FlushPartial))
func Type[T any](entity string, opts ...TypeOption) Registration {
	return typeRegistration{typ: reflect.TypeFor[T](), entity: entity, opts: opts}
}

// Interface registers the interface I as a polymorphic view of entity. A
// loaded row becomes the first subtype whose predicate matches it.
//
//	view.Interface[Animal]("Animal",
//		view.Subtype[*Cat]("kind = 'cat'"),
//		view.Subtype[*Dog]("kind = 'dog'"),
//	)
func Interface[I any](entity string, subtypes ...SubtypeRegistration) Registration {
	return interfaceRegistration{typ: reflect.TypeFor[I](), entity: entity, subtypes: subtypes}
}

// Subtype declares a subtype of a polymorphic view. T is a pointer to the
// view struct and must implement the interface. The predicate is a mapping
// expression relative to the entity.
func Subtype[T any](predicate string, opts ...TypeOption) SubtypeRegistration {
	return SubtypeRegistration{typ: reflect.TypeFor[T](), predicate: predicate, opts: opts}
}

// attrKind classifies view attributes.
type attrKind uint8

const (
	kindBasic attrKind = iota
	kindSubview
	kindCollection
	kindValues
	kindEmbedded
)

// attribute is a mapped field of a view struct.
type attribute struct {
	name    string
	field   []int
	typ     reflect.Type
	mapping string
	// chain is the resolved mapping path, nil for expressions.
	chain []*metamodel.Attribute
	kind  attrKind
	// view is the type of a subview or of the collection elements.
	view *viewType
	// pointer reports whether the subview or the elements are pointers.
	pointer   bool
	id        bool
	version   bool
	updatable bool
	orphan    bool
	cascade   cascade
	fetch     FetchStrategy
	// correlation of correlated subviews.
	corrEntity *metamodel.Entity
	corrPath   string
	// column is the root attribute written by a flush, nil for
	// attributes that cannot be written.
	column *metamodel.Attribute
	// collection is the mapping prefix ending at the collection of a
	// collection or values attribute, elem the path below it.
	collection string
	elem       string
	// indexed reports whether a collection is a list ordered by its index.
	indexed bool
	// fields are the basic attributes of an embeddable struct, named and
	// indexed relative to it.
	fields []*attribute
}

func (a *attribute) correlated() bool { return a.corrEntity != nil }

// deferred reports whether the attribute is loaded after its owner.
func (a *attribute) deferred() bool {
	switch {
	case a.correlated():
		return true
	case a.kind == kindSubview:
		return a.fetch == FetchSelect
	case a.kind == kindCollection:
		return a.fetch != FetchMultiset
	}
	return a.kind == kindValues
}

// viewType is a registered view struct or polymorphic interface.
type viewType struct {
	name   string
	typ    reflect.Type
	entity *metamodel.Entity
	// state is the index of the embedded State field.
	state   []int
	attrs   []*attribute
	byName  map[string]*attribute
	id      *attribute
	version *attribute
	typeConfig
	// subtypes of a polymorphic view, and the predicate of a subtype.
	subtypes  []*viewType
	predicate string
}

func (vt *viewType) polymorphic() bool { return len(vt.subtypes) > 0 }

func (vt *viewType) String() string { return vt.name }

// registry holds the view types of a manager.
type registry struct {
	m      *Manager
	types  map[reflect.Type]*viewType
	names  map[string]*viewType
	fields []func() error
}

var stateType = reflect.TypeFor[State]()

func (r typeRegistration) declare(reg *registry) error {
	vt, err := reg.declareStruct(r.typ, r.entity, r.opts)
	if err != nil {
		return err
	}
	reg.types[r.typ] = vt
	return nil
}

func (r interfaceRegistration) declare(reg *registry) error {
	if r.typ.Kind() != reflect.Interface {
		return blaze.NewConfigurationError(r.typ.String(), "polymorphic view must be an interface type")
	}
	if len(r.subtypes) == 0 {
		return blaze.NewConfigurationError(r.typ.String(), "polymorphic view without subtypes")
	}
	e, ok := reg.m.mm.Entity(r.entity)
	if !ok {
		return blaze.NewConfigurationError(r.typ.String(), "unknown entity %q", r.entity)
	}
	vt := &viewType{name: r.typ.Name(), typ: r.typ, entity: e}
	for _, s := range r.subtypes {
		if s.typ.Kind() != reflect.Pointer || !s.typ.Implements(r.typ) {
			return blaze.NewConfigurationError(vt.name, "subtype %s is not a pointer implementing %s", s.typ, r.typ)
		}
		if s.predicate == "" {
			return blaze.NewConfigurationError(vt.name, "subtype %s has no predicate", s.typ)
		}
		st, err := reg.declareStruct(s.typ.Elem(), r.entity, s.opts)
		if err != nil {
			return err
		}
		st.predicate = s.predicate
		reg.types[s.typ.Elem()] = st
		vt.subtypes = append(vt.subtypes, st)
	}
	if _, ok := reg.names[vt.name]; ok {
		return blaze.NewConfigurationError(vt.name, "view registered twice")
	}
	reg.names[vt.name] = vt
	reg.types[r.typ] = vt
	return nil
}

func (reg *registry) declareStruct(t reflect.Type, entity string, opts []TypeOption) (*viewType, error) {
	if t.Kind() != reflect.Struct {
		return nil, blaze.NewConfigurationError(t.String(), "view must be a struct type")
	}
	e, ok := reg.m.mm.Entity(entity)
	if !ok {
		return nil, blaze.NewConfigurationError(t.Name(), "unknown entity %q", entity)
	}
	vt := &viewType{name: t.Name(), typ: t, entity: e, byName: make(map[string]*attribute)}
	for _, opt := range opts {
		opt(&vt.typeConfig)
	}
	sf, ok := t.FieldByName("State")
	if !ok || !sf.Anonymous || sf.Type != stateType {
		return nil, blaze.NewConfigurationError(vt.name, "view does not embed view.State")
	}
	vt.state = sf.Index
	if _, ok := reg.names[vt.name]; ok {
		return nil, blaze.NewConfigurationError(vt.name, "view registered twice")
	}
	reg.names[vt.name] = vt
	reg.fields = append(reg.fields, func() error { return reg.defineFields(vt) })
	return vt, nil
}

// lookup returns the view type of a field type: a view struct, a pointer
// to one, or a polymorphic interface.
func (reg *registry) lookup(t reflect.Type) (*viewType, bool, bool) {
	pointer := false
	if t.Kind() == reflect.Pointer {
		t, pointer = t.Elem(), true
	}
	if vt, ok := reg.types[t]; ok {
		return vt, pointer, true
	}
	return nil, false, false
}

// embedsState reports whether t is a view struct that was not registered.
func embedsState(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	sf, ok := t.FieldByName("State")
	return ok && sf.Anonymous && sf.Type == stateType
}

func (reg *registry) defineFields(vt *viewType) error {
	for _, sf := range reflect.VisibleFields(vt.typ) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		t, err := parseTag(sf.Tag.Get("view"))
		if err != nil {
			return blaze.NewConfigurationError(vt.name+"."+sf.Name, "%v", err)
		}
		if t.skip {
			continue
		}
		a, err := reg.defineAttribute(vt, sf, t)
		if err != nil {
			return err
		}
		if _, ok := vt.byName[a.name]; ok {
			return blaze.NewConfigurationError(vt.name, "duplicate attribute %q", a.name)
		}
		vt.attrs = append(vt.attrs, a)
		vt.byName[a.name] = a
		switch {
		case a.id:
			if vt.id != nil {
				return blaze.NewConfigurationError(vt.name, "more than one id attribute")
			}
			vt.id = a
		case a.version:
			vt.version = a
		}
	}
	if vt.id == nil {
		return blaze.NewConfigurationError(vt.name, "view has no id attribute mapped to %s.%s", vt.entity.Name, vt.entity.ID.Name)
	}
	if vt.lock == LockOptimistic && vt.version == nil {
		return blaze.NewConfigurationError(vt.name, "optimistic locking requires a version attribute")
	}
	return nil
}

func (reg *registry) defineAttribute(vt *viewType, sf reflect.StructField, t tag) (*attribute, error) {
	a := &attribute{
		name:      t.name,
		field:     sf.Index,
		typ:       sf.Type,
		mapping:   t.mapping,
		updatable: t.updatable,
		orphan:    t.orphan,
		cascade:   t.cascade,
		fetch:     t.fetch,
	}
	if a.name == "" {
		a.name = lowerCamel(sf.Name)
	}
	if a.mapping == "" {
		a.mapping = a.name
	}
	subject := vt.name + "." + a.name
	fail := func(format string, args ...any) (*attribute, error) {
		return nil, blaze.NewConfigurationError(subject, format, args...)
	}
	ft := sf.Type
	switch {
	case ft.Kind() == reflect.Slice && ft.Elem().Kind() != reflect.Uint8:
		if elem, pointer, ok := reg.lookup(ft.Elem()); ok {
			a.kind, a.view, a.pointer = kindCollection, elem, pointer
		} else if embedsState(ft.Elem()) {
			return fail("element type %s is not a registered view", ft.Elem())
		} else {
			a.kind = kindValues
		}
	default:
		if sub, pointer, ok := reg.lookup(ft); ok {
			a.kind, a.view, a.pointer = kindSubview, sub, pointer
		} else if embedsState(ft) {
			return fail("type %s is not a registered view", ft)
		}
	}
	if t.correlated != "" {
		return reg.defineCorrelated(vt, a, t, fail)
	}
	if !isPath(a.mapping) {
		if a.kind != kindBasic {
			return fail("subviews and collections must map an attribute path, got %q", a.mapping)
		}
		if t.id || t.version || t.updatable || t.cascade != 0 {
			return fail("expression %q cannot be an id, a version or updatable", a.mapping)
		}
		if reg.m.validate {
			if err := reg.m.validateExpr(vt, a.mapping); err != nil {
				return fail("%v", err)
			}
		}
		return a, nil
	}
	chain, err := reg.m.mm.Resolve(vt.entity.Name, a.mapping)
	if err != nil {
		return fail("%v", err)
	}
	a.chain = chain
	last := chain[len(chain)-1]
	collection := -1
	for i, c := range chain {
		if c.IsCollection() {
			if collection >= 0 {
				return fail("path %q navigates more than one collection", a.mapping)
			}
			collection = i
			a.indexed = c.IsIndexed()
		}
	}
	if last.Type == metamodel.EmbeddedType {
		if a.kind != kindBasic || collection >= 0 {
			return fail("embeddable %s must be mapped to a struct field", last)
		}
		if a.fetch != FetchDefault {
			return fail("fetch strategy %s is not supported for embeddables", a.fetch)
		}
		if err := reg.defineEmbedded(a, last, len(chain) == 1); err != nil {
			return fail("%v", err)
		}
	}
	switch a.kind {
	case kindBasic:
		if collection >= 0 {
			return fail("collection path %q mapped to a singular field", a.mapping)
		}
		switch {
		case len(chain) == 1:
			a.column = last
		case len(chain) == 2 && chain[0].Type == metamodel.ManyToOneType && last == chain[0].TargetEntity().ID:
			a.column = chain[0]
		case len(chain) == 2 && chain[0].Type == metamodel.EmbeddedType:
			a.column = last
		}
	case kindEmbedded:
		if len(chain) == 1 {
			a.column = last
		}
	case kindSubview:
		if last.Type != metamodel.ManyToOneType || collection >= 0 {
			return fail("subview must map a to-one association, got %s", last)
		}
		if last.TargetEntity() != a.view.entity {
			return fail("subview %s is a view of %s, not %s", a.view, a.view.entity.Name, last.TargetEntity().Name)
		}
		switch a.fetch {
		case FetchDefault:
			a.fetch = FetchJoin
		case FetchJoin, FetchSelect:
		default:
			return fail("fetch strategy %s is not supported for subviews", a.fetch)
		}
		if len(chain) == 1 {
			a.column = last
		}
	case kindCollection:
		if collection != len(chain)-1 {
			return fail("collection subview must map a collection, got %s", last)
		}
		if last.TargetEntity() != a.view.entity {
			return fail("elements %s are views of %s, not %s", a.view, a.view.entity.Name, last.TargetEntity().Name)
		}
		switch a.fetch {
		case FetchDefault:
			a.fetch = FetchSelect
		case FetchJoin:
			return fail("collections cannot be fetched with joins")
		case FetchMultiset:
			if err := multisetElement(a.view); err != nil {
				return fail("%v", err)
			}
		}
		a.collection = a.mapping
		if len(chain) == 1 {
			a.column = last
		}
	case kindValues:
		if collection < 0 {
			return fail("slice field must map a collection path, got %q", a.mapping)
		}
		if a.fetch != FetchDefault && a.fetch != FetchSelect {
			return fail("fetch strategy %s is not supported for value collections", a.fetch)
		}
		a.fetch = FetchSelect
		parts := strings.Split(a.mapping, ".")
		a.collection = strings.Join(parts[:collection+1], ".")
		a.elem = strings.Join(parts[collection+1:], ".")
		target := chain[collection].TargetEntity()
		if collection == 0 && (a.elem == "" || a.elem == target.ID.Name) {
			a.column = chain[0]
		}
	}
	if t.id || len(chain) == 1 && last == vt.entity.ID {
		if len(chain) != 1 || last != vt.entity.ID || a.kind != kindBasic {
			return fail("id attribute must map %s.%s", vt.entity.Name, vt.entity.ID.Name)
		}
		if t.updatable {
			return fail("id attribute cannot be updatable")
		}
		a.id = true
	}
	if t.version || vt.entity.Version != nil && len(chain) == 1 && last == vt.entity.Version {
		if vt.entity.Version == nil || len(chain) != 1 || last != vt.entity.Version {
			return fail("version attribute must map the version of %s", vt.entity.Name)
		}
		a.version = true
		a.updatable = false
	}
	if a.kind == kindBasic && collection < 0 && reg.m.managedTypes && !assignable(a.typ, last.Kind) {
		return fail("field type %s cannot hold %s of kind %s", a.typ, last, last.Kind)
	}
	if a.updatable && a.column == nil {
		return fail("updatable attribute must map a column, a to-one association or a collection of %s, got %q", vt.entity.Name, a.mapping)
	}
	if a.cascade != 0 && a.kind != kindSubview && a.kind != kindCollection {
		return fail("cascades require a subview or a collection of subviews")
	}
	if a.orphan && a.kind != kindCollection && a.kind != kindValues {
		return fail("orphan removal requires a collection")
	}
	return a, nil
}

// defineEmbedded declares the fields of the embeddable struct of a. Fields
// map the basic attributes of the embeddable by their names relative to it.
// Owned embeddables write their columns.
func (reg *registry) defineEmbedded(a *attribute, e *metamodel.Attribute, owned bool) error {
	t := a.typ
	if t.Kind() == reflect.Pointer {
		t, a.pointer = t.Elem(), true
	}
	if t.Kind() != reflect.Struct || t == timeType || reflect.PointerTo(t).Implements(scannerType) {
		return fmt.Errorf("embeddable %s must be mapped to a struct, got %s", e, a.typ)
	}
	a.kind = kindEmbedded
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		ft, err := parseTag(sf.Tag.Get("view"))
		if err != nil {
			return fmt.Errorf("field %s: %v", sf.Name, err)
		}
		if ft.skip {
			continue
		}
		if ft.id || ft.version || ft.updatable || ft.orphan || ft.cascade != 0 || ft.fetch != FetchDefault || ft.correlated != "" {
			return fmt.Errorf("field %s of an embeddable only maps an attribute", sf.Name)
		}
		f := &attribute{name: ft.name, field: sf.Index, typ: sf.Type, mapping: ft.mapping}
		if f.name == "" {
			f.name = lowerCamel(sf.Name)
		}
		if f.mapping == "" {
			f.mapping = f.name
		}
		ea, ok := e.Entity().Attribute(e.Name + "." + f.mapping)
		if !ok || ea.Embeddable() != e {
			return fmt.Errorf("embeddable %s has no attribute %q", e, f.mapping)
		}
		if reg.m.managedTypes && !assignable(f.typ, ea.Kind) {
			return fmt.Errorf("field type %s cannot hold %s of kind %s", f.typ, ea, ea.Kind)
		}
		if owned {
			f.column = ea
		}
		f.mapping = a.mapping + "." + f.mapping
		a.fields = append(a.fields, f)
	}
	if len(a.fields) == 0 {
		return fmt.Errorf("embeddable struct %s maps no attributes", t)
	}
	return nil
}

func (reg *registry) defineCorrelated(vt *viewType, a *attribute, t tag, fail func(string, ...any) (*attribute, error)) (*attribute, error) {
	name, path, _ := strings.Cut(t.correlated, ".")
	e, ok := reg.m.mm.Entity(name)
	if !ok {
		return fail("unknown correlated entity %q", name)
	}
	if _, err := reg.m.mm.Resolve(name, path); err != nil {
		return fail("%v", err)
	}
	if a.kind != kindSubview && a.kind != kindCollection {
		return fail("correlated attribute must be a subview or a collection of subviews")
	}
	if a.view.entity != e {
		return fail("correlated %s is a view of %s, not %s", a.view, a.view.entity.Name, e.Name)
	}
	if t.updatable || t.cascade != 0 || t.id || t.version {
		return fail("correlated attributes are read only")
	}
	if isPath(a.mapping) {
		if _, err := reg.m.mm.Resolve(vt.entity.Name, a.mapping); err != nil {
			return fail("%v", err)
		}
	} else if reg.m.validate {
		if err := reg.m.validateExpr(vt, a.mapping); err != nil {
			return fail("%v", err)
		}
	}
	a.corrEntity, a.corrPath, a.fetch = e, path, FetchSelect
	return a, nil
}

// multisetElement checks that the elements can be decoded from a JSON
// aggregate.
func multisetElement(vt *viewType) error {
	if vt.polymorphic() {
		return fmt.Errorf("multiset elements cannot be polymorphic")
	}
	for _, a := range vt.attrs {
		if a.kind != kindBasic {
			return fmt.Errorf("multiset element %s has the non basic attribute %q", vt, a.name)
		}
	}
	return nil
}

// assignable reports whether a field of type t can hold values of kind k.
// Types implementing sql.Scanner are accepted for every kind.
func assignable(t reflect.Type, k dbms.Type) bool {
	if reflect.PointerTo(t).Implements(scannerType) {
		return true
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
		if reflect.PointerTo(t).Implements(scannerType) {
			return true
		}
	}
	switch k {
	case dbms.TypeBool:
		return t.Kind() == reflect.Bool
	case dbms.TypeInt, dbms.TypeInt64:
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return true
		}
	case dbms.TypeFloat:
		return t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64
	case dbms.TypeDecimal:
		return t.Kind() == reflect.Float64 || t.Kind() == reflect.String
	case dbms.TypeString:
		return t.Kind() == reflect.String
	case dbms.TypeTime:
		return t == timeType
	case dbms.TypeBytes:
		return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
	case dbms.TypeUUID:
		return t.Kind() == reflect.String || t.Kind() == reflect.Array && t.Len() == 16 && t.Elem().Kind() == reflect.Uint8
	}
	return false
}

// lowerCamel returns the attribute name of a Go field name, e.g. "ID" is
// "id" and "URLPath" is "urlPath".
func lowerCamel(s string) string {
	rs := []rune(s)
	for i := 0; i < len(rs) && unicode.IsUpper(rs[i]); i++ {
		if i > 0 && i+1 < len(rs) && unicode.IsLower(rs[i+1]) {
			break
		}
		rs[i] = unicode.ToLower(rs[i])
	}
	return string(rs)
}
