package view

import (
	"fmt"
	"reflect"

	"github.com/syssam/blaze"
)

// State tracks the initial values of a view instance. Every view struct
// embeds it:
//
//	type DocumentView struct {
//		view.State
//		ID   int64  `view:"id"`
//		Name string `view:"name,updatable"`
//	}
//
// Copies of a view share their state.
type State struct {
	s *state
}

type state struct {
	vt      *viewType
	isNew   bool
	removed bool
	// fetched holds the names of the loaded attributes, nil if all are.
	fetched map[string]bool
	// initial holds the snapshot of every fetched attribute.
	initial map[string]any
}

// IsNew reports whether the view was created and not flushed yet.
func (s State) IsNew() bool { return s.s != nil && s.s.isNew }

// IsRemoved reports whether the view was removed.
func (s State) IsRemoved() bool { return s.s != nil && s.s.removed }

func (st *state) isFetched(name string) bool {
	return st.fetched == nil || st.fetched[name]
}

// stateOf returns the state of a view struct value.
func stateOf(v reflect.Value, vt *viewType) *state {
	return v.FieldByIndex(vt.state).Interface().(State).s
}

func attach(v reflect.Value, st *state) {
	v.FieldByIndex(st.vt.state).Set(reflect.ValueOf(State{s: st}))
}

// Create returns a new instance of the creatable view T, a pointer to a
// view struct. The instance is inserted by the next Save.
func Create[T any](m *Manager) (T, error) {
	var zero T
	vt, err := typeOf[T](m)
	if err != nil {
		return zero, err
	}
	if reflect.TypeFor[T]().Kind() != reflect.Pointer || vt.polymorphic() {
		return zero, fmt.Errorf("view: Create expects a pointer to a view struct, got %s", reflect.TypeFor[T]())
	}
	if !vt.creatable {
		return zero, blaze.NewConfigurationError(vt.name, "view is not creatable")
	}
	p := reflect.New(vt.typ)
	attach(p.Elem(), &state{vt: vt, isNew: true})
	return p.Interface().(T), nil
}

// Reference returns an instance of T with only the id set. It can be
// assigned to updatable subview attributes or removed without loading it.
func Reference[T any](m *Manager, id any) (T, error) {
	var zero T
	vt, err := typeOf[T](m)
	if err != nil {
		return zero, err
	}
	if reflect.TypeFor[T]().Kind() != reflect.Pointer || vt.polymorphic() {
		return zero, fmt.Errorf("view: Reference expects a pointer to a view struct, got %s", reflect.TypeFor[T]())
	}
	p := reflect.New(vt.typ)
	if err := assign(p.Elem().FieldByIndex(vt.id.field), id); err != nil {
		return zero, fmt.Errorf("view: reference %s: %w", vt.name, err)
	}
	st := &state{vt: vt, fetched: map[string]bool{vt.id.name: true}}
	attach(p.Elem(), st)
	st.snapshot(p.Elem())
	return p.Interface().(T), nil
}

// snapshot records the current values of the fetched attributes.
func (st *state) snapshot(v reflect.Value) {
	st.initial = make(map[string]any, len(st.vt.attrs))
	for _, a := range st.vt.attrs {
		if st.isFetched(a.name) {
			st.initial[a.name] = snapshotOf(a, v.FieldByIndex(a.field))
		}
	}
}

// snapshotOf returns the value compared by dirty checking: a copy of basic
// values, the id of subviews, the element ids of collections and the field
// values of embeddables.
func snapshotOf(a *attribute, f reflect.Value) any {
	switch a.kind {
	case kindSubview:
		sv, vt := viewOf(f, a.view)
		if !sv.IsValid() {
			return nil
		}
		return key(value(sv.FieldByIndex(vt.id.field)))
	case kindCollection:
		ids := make([]any, f.Len())
		for i := range ids {
			if sv, vt := viewOf(f.Index(i), a.view); sv.IsValid() {
				ids[i] = key(value(sv.FieldByIndex(vt.id.field)))
			}
		}
		return ids
	case kindValues:
		vs := make([]any, f.Len())
		for i := range vs {
			vs[i] = key(value(f.Index(i)))
		}
		return vs
	case kindEmbedded:
		return embeddedValues(a, f)
	}
	return clone(value(f))
}

// embeddedValues returns the values of the fields of an embeddable, all nil
// for a nil pointer.
func embeddedValues(a *attribute, f reflect.Value) []any {
	vs := make([]any, len(a.fields))
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return vs
		}
		f = f.Elem()
	}
	for i, fa := range a.fields {
		vs[i] = clone(value(f.FieldByIndex(fa.field)))
	}
	return vs
}

// viewOf returns the struct of a subview field, which holds a struct, a
// pointer or an interface. It returns an invalid value for nil subviews and
// for structs that are not tracked by a manager.
func viewOf(f reflect.Value, vt *viewType) (reflect.Value, *viewType) {
	for f.Kind() == reflect.Interface || f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return reflect.Value{}, nil
		}
		f = f.Elem()
	}
	if vt.polymorphic() {
		for _, st := range vt.subtypes {
			if st.typ == f.Type() {
				vt = st
				break
			}
		}
	}
	if f.Type() != vt.typ || stateOf(f, vt) == nil {
		return reflect.Value{}, nil
	}
	return f, vt
}

// idOf returns the normalized id of a view struct.
func idOf(v reflect.Value, vt *viewType) any {
	return key(value(v.FieldByIndex(vt.id.field)))
}
