package view

import (
	"reflect"
	"strings"

	"github.com/syssam/blaze"
)

// DirtyKind classifies the change of an attribute.
type DirtyKind uint8

// Dirty kinds.
const (
	// None means the attribute is unchanged.
	None DirtyKind = iota
	// Updated means the value or the referenced objects changed.
	Updated
	// Mutated means the referenced objects are the same but some of them
	// changed.
	Mutated
)

func (k DirtyKind) String() string {
	switch k {
	case Updated:
		return "UPDATED"
	case Mutated:
		return "MUTATED"
	}
	return "NONE"
}

// ChangeModel describes the changes of a view since it was loaded or last
// flushed.
type ChangeModel struct {
	View       string
	Kind       DirtyKind
	New        bool
	Attributes []*AttributeChange
	fetched    func(string) bool
}

// AttributeChange is the change of one attribute.
type AttributeChange struct {
	Name    string
	Kind    DirtyKind
	Initial any
	Current any
	// Nested is the change model of a subview or an embeddable.
	Nested *ChangeModel
	// Elements are the change models of the changed elements of a
	// collection.
	Elements []*ChangeModel
	// Added and Removed are the element ids or values that were added to or
	// removed from a collection. New elements are added with a nil id.
	Added   []any
	Removed []any
	// Reordered reports whether the elements of an indexed list kept their
	// members but changed their order.
	Reordered bool
}

// IsDirty reports whether anything changed.
func (c *ChangeModel) IsDirty() bool { return c.Kind != None }

// DirtyChanges returns the changed attributes.
func (c *ChangeModel) DirtyChanges() []*AttributeChange {
	var out []*AttributeChange
	for _, a := range c.Attributes {
		if a.Kind != None {
			out = append(out, a)
		}
	}
	return out
}

// Get returns the change of the attribute at the dotted path, e.g.
// "owner.name". Attributes that were not fetched fail with a
// *blaze.NotFetchedError.
func (c *ChangeModel) Get(path string) (*AttributeChange, error) {
	name, rest, nested := strings.Cut(path, ".")
	for _, a := range c.Attributes {
		if a.Name != name {
			continue
		}
		if !nested {
			return a, nil
		}
		if a.Nested == nil {
			return nil, blaze.NewNotFetchedError(path)
		}
		return a.Nested.Get(rest)
	}
	if c.fetched != nil && !c.fetched(name) {
		return nil, blaze.NewNotFetchedError(path)
	}
	return &AttributeChange{Name: name}, nil
}

// IsDirty reports whether the view v changed since it was loaded.
func (m *Manager) IsDirty(v any) (bool, error) {
	c, err := m.Changes(v)
	if err != nil {
		return false, err
	}
	return c.IsDirty(), nil
}

// Changes returns the change model of the view v.
func (m *Manager) Changes(v any) (*ChangeModel, error) {
	rv, vt, err := m.structOf(v)
	if err != nil {
		return nil, err
	}
	if stateOf(rv, vt) == nil {
		return nil, errUntracked(vt)
	}
	return changes(rv, vt, make(map[*state]*ChangeModel)), nil
}

func errUntracked(vt *viewType) error {
	return blaze.NewConfigurationError(vt.name, "instance was not created or loaded by a manager")
}

// changes computes the change model of a view struct. Models are memoized
// per state, so cyclic graphs terminate.
func changes(v reflect.Value, vt *viewType, seen map[*state]*ChangeModel) *ChangeModel {
	st := stateOf(v, vt)
	c := &ChangeModel{View: vt.name}
	if st == nil {
		return c
	}
	if prev, ok := seen[st]; ok {
		return prev
	}
	seen[st] = c
	c.New = st.isNew
	c.fetched = st.isFetched
	if st.isNew {
		c.Kind = Updated
	}
	for _, a := range vt.attrs {
		if !st.isFetched(a.name) {
			continue
		}
		f := v.FieldByIndex(a.field)
		ac := &AttributeChange{Name: a.name, Current: snapshotOf(a, f)}
		if !st.isNew {
			ac.Initial = st.initial[a.name]
		}
		switch a.kind {
		case kindBasic:
			if st.isNew {
				if !isZero(ac.Current) {
					ac.Kind = Updated
				}
			} else if !equal(ac.Initial, ac.Current) {
				ac.Kind = Updated
			}
		case kindSubview:
			ac.Kind = subviewChange(ac, f, a, st, seen)
		case kindCollection:
			ac.Kind = collectionChange(ac, f, a, st, seen)
		case kindValues:
			ac.Added, ac.Removed = diff(asList(ac.Initial), asList(ac.Current))
			ac.Reordered = a.indexed && !st.isNew && len(ac.Added) == 0 && len(ac.Removed) == 0 && !sameOrder(asList(ac.Initial), asList(ac.Current))
			if len(ac.Added) > 0 || len(ac.Removed) > 0 || ac.Reordered {
				ac.Kind = Updated
			}
		case kindEmbedded:
			ac.Kind = embeddedChange(ac, a, st.isNew)
		}
		switch {
		case ac.Kind == Updated:
			c.Kind = Updated
		case ac.Kind == Mutated && c.Kind == None:
			c.Kind = Mutated
		}
		c.Attributes = append(c.Attributes, ac)
	}
	return c
}

func subviewChange(ac *AttributeChange, f reflect.Value, a *attribute, st *state, seen map[*state]*ChangeModel) DirtyKind {
	sv, svt := viewOf(f, a.view)
	if sv.IsValid() {
		ac.Nested = changes(sv, svt, seen)
	}
	switch {
	case st.isNew && ac.Current != nil, ac.Nested != nil && ac.Nested.New:
		return Updated
	case !st.isNew && !equal(ac.Initial, ac.Current):
		return Updated
	case ac.Nested != nil && ac.Nested.IsDirty():
		return Mutated
	}
	return None
}

func collectionChange(ac *AttributeChange, f reflect.Value, a *attribute, st *state, seen map[*state]*ChangeModel) DirtyKind {
	kind := None
	current := make([]any, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		sv, svt := viewOf(f.Index(i), a.view)
		if !sv.IsValid() {
			continue
		}
		ec := changes(sv, svt, seen)
		if ec.New {
			ac.Added = append(ac.Added, nil)
			kind = Updated
			continue
		}
		current = append(current, idOf(sv, svt))
		if ec.IsDirty() {
			ac.Elements = append(ac.Elements, ec)
		}
	}
	if !st.isNew {
		added, removed := diff(asList(ac.Initial), current)
		ac.Added = append(ac.Added, added...)
		ac.Removed = removed
		ac.Reordered = a.indexed && len(ac.Added) == 0 && len(ac.Removed) == 0 && !sameOrder(asList(ac.Initial), current)
	} else {
		ac.Added = append(ac.Added, current...)
	}
	if len(ac.Added) > 0 || len(ac.Removed) > 0 || ac.Reordered {
		return Updated
	}
	if kind == None && len(ac.Elements) > 0 {
		kind = Mutated
	}
	return kind
}

// embeddedChange compares the fields of an embeddable. The nested change
// model holds a change per field.
func embeddedChange(ac *AttributeChange, a *attribute, isNew bool) DirtyKind {
	initial, current := asList(ac.Initial), asList(ac.Current)
	nc := &ChangeModel{View: indirect(a.typ).Name(), New: isNew}
	for i, fa := range a.fields {
		fc := &AttributeChange{Name: fa.name, Current: at(current, i)}
		if !isNew {
			fc.Initial = at(initial, i)
		}
		if isNew && !isZero(fc.Current) || !isNew && !equal(fc.Initial, fc.Current) {
			fc.Kind, nc.Kind = Updated, Updated
		}
		nc.Attributes = append(nc.Attributes, fc)
	}
	ac.Nested = nc
	return nc.Kind
}

func indirect(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

// at returns the i-th value of l, nil if l is shorter.
func at(l []any, i int) any {
	if i < len(l) {
		return l[i]
	}
	return nil
}

// sameOrder reports whether two lists hold equal values in the same order.
func sameOrder(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

// diff returns the values of current missing from initial and the values
// of initial missing from current, counting duplicates.
func diff(initial, current []any) (added, removed []any) {
	counts := make(map[any]int, len(initial))
	for _, v := range initial {
		counts[v]++
	}
	for _, v := range current {
		if counts[v] > 0 {
			counts[v]--
			continue
		}
		added = append(added, v)
	}
	for _, v := range initial {
		if counts[v] > 0 {
			counts[v]--
			removed = append(removed, v)
		}
	}
	return added, removed
}

// dirty reports whether the attribute of a tracked view changed.
func dirty(a *attribute, v reflect.Value, st *state) bool {
	if st.isNew {
		return true
	}
	if !st.isFetched(a.name) {
		return false
	}
	cur := snapshotOf(a, v.FieldByIndex(a.field))
	switch a.kind {
	case kindCollection, kindValues:
		initial := asList(st.initial[a.name])
		added, removed := diff(initial, asList(cur))
		return len(added) > 0 || len(removed) > 0 || a.indexed && !sameOrder(initial, asList(cur))
	case kindEmbedded:
		initial := asList(st.initial[a.name])
		for i, c := range asList(cur) {
			if !equal(at(initial, i), c) {
				return true
			}
		}
		return false
	}
	return !equal(st.initial[a.name], cur)
}
