package view

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/contrib/batch"
	"github.com/syssam/blaze/criteria"
)

// projector adds the select items of a view projection to a query.
type projector struct {
	m      *Manager
	q      *criteria.Select
	params map[string]any
	// n is the number of select items.
	n    int
	aggs int
	// keys selects the root rows of the query, used by subselect fetches of
	// root attributes.
	keys  *criteria.Select
	alias string
}

// projection maps the columns of a row to a view.
type projection struct {
	vt      *viewType
	fetched map[string]bool
	items   []projected
	// disc is the discriminator column of a polymorphic view.
	disc     int
	subtypes []*projection
}

type projected struct {
	a *attribute
	// col holds the value, the JSON aggregate, the id of a joined subview
	// or the basis of a deferred load.
	col  int
	sub  *projection
	load *deferred
}

// deferred loads an attribute after its owners with a separate query.
type deferred struct {
	a     *attribute
	fetch fetchSet
	// keys restricts a subselect load to the owners of the root query.
	keys *criteria.Select
	// prefix is the owner path of a subselect basis.
	prefix string
}

func (p *projector) column(expr string, args ...any) int {
	p.q.SelectArgs(expr, "", args...)
	p.n++
	return p.n - 1
}

func (p *projector) expr(vt *viewType, base, mapping string) (int, error) {
	e, args, err := qualify(mapping, base, vt.entity, p.params)
	if err != nil {
		return 0, err
	}
	return p.column(e, args...), nil
}

// project selects the attributes of vt mapped relative to base.
func (p *projector) project(vt *viewType, base string, fetch fetchSet) (*projection, error) {
	if vt.polymorphic() {
		return p.projectSubtypes(vt, base, fetch)
	}
	proj := &projection{vt: vt}
	if fetch != nil {
		proj.fetched = make(map[string]bool)
	}
	for _, a := range vt.attrs {
		ok, sub := fetch.includes(a)
		if !ok {
			continue
		}
		if proj.fetched != nil {
			proj.fetched[a.name] = true
		}
		it := projected{a: a}
		var err error
		switch {
		case a.correlated():
			it.col, err = p.expr(vt, base, a.mapping)
			it.load = &deferred{a: a, fetch: sub}
		case a.kind == kindBasic:
			it.col, err = p.expr(vt, base, a.mapping)
		case a.kind == kindEmbedded:
			it.col = p.n
			for _, f := range a.fields {
				if _, err = p.expr(vt, base, f.mapping); err != nil {
					break
				}
			}
		case a.kind == kindSubview && a.fetch == FetchJoin:
			path := join(base, a.mapping)
			it.col = p.column(path)
			it.sub, err = p.project(a.view, path, sub)
		case a.kind == kindSubview:
			it.col = p.column(join(base, a.mapping))
			it.load = &deferred{a: a, fetch: sub}
		case a.kind == kindCollection && a.fetch == FetchMultiset:
			it.col, err = p.multiset(a, base)
		default:
			owner, _ := splitCollection(a.collection)
			it.col = p.column(join(base, owner))
			it.load = &deferred{a: a, fetch: sub}
			if a.fetch == FetchSubselect && p.keys != nil && base == p.alias {
				it.load.keys, it.load.prefix = p.keys, join(base, owner)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("attribute %s of %s: %w", a.name, vt.name, err)
		}
		proj.items = append(proj.items, it)
	}
	return proj, nil
}

// projectSubtypes selects a discriminator followed by the attributes of
// every subtype.
func (p *projector) projectSubtypes(vt *viewType, base string, fetch fetchSet) (*projection, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("case")
	for i, st := range vt.subtypes {
		e, a, err := qualify(st.predicate, base, vt.entity, p.params)
		if err != nil {
			return nil, fmt.Errorf("predicate of %s: %w", st.name, err)
		}
		fmt.Fprintf(&sb, " when %s then %d", e, i)
		args = append(args, a...)
	}
	sb.WriteString(" end")
	proj := &projection{vt: vt, disc: p.column(sb.String(), args...)}
	for _, st := range vt.subtypes {
		sp, err := p.project(st, base, fetch)
		if err != nil {
			return nil, err
		}
		proj.subtypes = append(proj.subtypes, sp)
	}
	return proj, nil
}

// multiset selects the elements of a collection as a JSON array.
func (p *projector) multiset(a *attribute, base string) (int, error) {
	p.aggs++
	var (
		owner, coll = splitCollection(a.collection)
		oa          = fmt.Sprintf("mo%d_", p.aggs)
		ea          = fmt.Sprintf("me%d_", p.aggs)
		entity      = a.chain[len(a.chain)-1].Entity()
		fields      = make([]string, 0, len(a.view.attrs))
	)
	sub := p.m.f.From(entity.Name, oa).InnerJoin(oa+"."+coll, ea)
	for _, el := range a.view.attrs {
		e, args, err := qualify(el.mapping, ea, a.view.entity, p.params)
		if err != nil {
			return 0, err
		}
		sub.SelectArgs(e, "", args...)
		fields = append(fields, el.name)
	}
	if a.indexed {
		sub.Select("index(" + ea + ")")
		fields = append(fields, indexField)
	}
	sub.Where(criteria.Expr(oa + " = " + join(base, owner)))
	p.q.SelectAggregate("to_string_json", sub, "", fields...)
	p.n++
	return p.n - 1, nil
}

// indexField holds the list index of multiset elements.
const indexField = "idx_"

// splitCollection splits a collection path into the owner path and the
// collection attribute.
func splitCollection(path string) (string, string) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// decode stores the view of row in dst, which holds a view struct, a
// pointer to one or a polymorphic interface.
func (p *projection) decode(dst reflect.Value, row []any, ld *loader) error {
	if p.vt.polymorphic() {
		d := row[p.disc]
		if d == nil {
			return fmt.Errorf("row matches no subtype of %s", p.vt)
		}
		i, err := toInt(d)
		if err != nil || i < 0 || int(i) >= len(p.subtypes) {
			return fmt.Errorf("invalid discriminator %v of %s", d, p.vt)
		}
		sp := p.subtypes[i]
		ptr := reflect.New(sp.vt.typ)
		if err := sp.decodeStruct(ptr.Elem(), row, ld); err != nil {
			return err
		}
		dst.Set(ptr)
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		ptr := reflect.New(p.vt.typ)
		dst.Set(ptr)
		dst = ptr.Elem()
	}
	return p.decodeStruct(dst, row, ld)
}

func (p *projection) decodeStruct(v reflect.Value, row []any, ld *loader) error {
	st := &state{vt: p.vt, fetched: p.fetched}
	attach(v, st)
	for _, it := range p.items {
		f := v.FieldByIndex(it.a.field)
		switch {
		case it.sub != nil:
			if row[it.col] == nil {
				f.SetZero()
				continue
			}
			if err := it.sub.decode(f, row, ld); err != nil {
				return err
			}
		case it.load != nil:
			ld.add(it.load, f, row[it.col])
		case it.a.kind == kindCollection:
			if err := decodeMultiset(f, it.a, row[it.col], ld); err != nil {
				return fmt.Errorf("attribute %s: %w", it.a.name, err)
			}
		case it.a.kind == kindEmbedded:
			if err := decodeEmbedded(f, it.a, row[it.col:it.col+len(it.a.fields)]); err != nil {
				return fmt.Errorf("attribute %s: %w", it.a.name, err)
			}
		default:
			if err := assign(f, row[it.col]); err != nil {
				return fmt.Errorf("attribute %s: %w", it.a.name, err)
			}
		}
	}
	ld.track(v, st)
	return nil
}

// decodeMultiset decodes the JSON array of a multiset collection. A NULL
// aggregate is an empty collection.
func decodeMultiset(f reflect.Value, a *attribute, v any, ld *loader) error {
	var objs []map[string]any
	if v != nil {
		dec := json.NewDecoder(strings.NewReader(text(v)))
		dec.UseNumber()
		if err := dec.Decode(&objs); err != nil {
			return err
		}
	}
	if a.indexed {
		idx := make([]int64, len(objs))
		for i, o := range objs {
			n, err := toInt(o[indexField])
			if err != nil {
				return fmt.Errorf("list index: %w", err)
			}
			idx[i] = n
		}
		sort.Sort(byIndex{objs: objs, idx: idx})
	}
	s := reflect.MakeSlice(f.Type(), len(objs), len(objs))
	for i, o := range objs {
		ev := s.Index(i)
		if a.pointer {
			ptr := reflect.New(a.view.typ)
			ev.Set(ptr)
			ev = ptr.Elem()
		}
		st := &state{vt: a.view}
		attach(ev, st)
		for _, el := range a.view.attrs {
			if err := assign(ev.FieldByIndex(el.field), o[el.name]); err != nil {
				return fmt.Errorf("element attribute %s: %w", el.name, err)
			}
		}
		ld.track(ev, st)
	}
	f.Set(s)
	return nil
}

// byIndex sorts multiset elements by their list index.
type byIndex struct {
	objs []map[string]any
	idx  []int64
}

func (s byIndex) Len() int           { return len(s.objs) }
func (s byIndex) Less(i, j int) bool { return s.idx[i] < s.idx[j] }
func (s byIndex) Swap(i, j int) {
	s.objs[i], s.objs[j] = s.objs[j], s.objs[i]
	s.idx[i], s.idx[j] = s.idx[j], s.idx[i]
}

// decodeEmbedded stores the columns of an embeddable. A pointer to an
// embeddable is nil when every column is NULL.
func decodeEmbedded(f reflect.Value, a *attribute, cols []any) error {
	if a.pointer {
		null := true
		for _, c := range cols {
			null = null && c == nil
		}
		if null {
			f.SetZero()
			return nil
		}
		f.Set(reflect.New(f.Type().Elem()))
		f = f.Elem()
	}
	for i, fa := range a.fields {
		if err := assign(f.FieldByIndex(fa.field), cols[i]); err != nil {
			return fmt.Errorf("field %s: %w", fa.name, err)
		}
	}
	return nil
}

// loader runs the deferred loads of a query and snapshots the loaded views
// once everything is loaded.
type loader struct {
	m       *Manager
	params  map[string]any
	pending []*pendingLoad
	byLoad  map[*deferred]*pendingLoad
	tracked []tracked
}

type pendingLoad struct {
	d       *deferred
	targets []loadTarget
}

type loadTarget struct {
	f   reflect.Value
	key any
}

type tracked struct {
	v  reflect.Value
	st *state
}

func newLoader(m *Manager, params map[string]any) *loader {
	return &loader{m: m, params: params, byLoad: make(map[*deferred]*pendingLoad)}
}

func (ld *loader) track(v reflect.Value, st *state) {
	ld.tracked = append(ld.tracked, tracked{v: v, st: st})
}

// add schedules loading the attribute of field f for the basis value.
func (ld *loader) add(d *deferred, f reflect.Value, basis any) {
	if basis == nil {
		return
	}
	pl, ok := ld.byLoad[d]
	if !ok {
		pl = &pendingLoad{d: d}
		ld.byLoad[d] = pl
		ld.pending = append(ld.pending, pl)
	}
	pl.targets = append(pl.targets, loadTarget{f: f, key: key(basis)})
}

func (ld *loader) run(ctx context.Context) error {
	for len(ld.pending) > 0 {
		pl := ld.pending[0]
		ld.pending = ld.pending[1:]
		delete(ld.byLoad, pl.d)
		if err := ld.load(ctx, pl); err != nil {
			return err
		}
	}
	for _, t := range ld.tracked {
		t.st.snapshot(t.v)
	}
	ld.tracked = nil
	return nil
}

// load queries the rows of one deferred attribute for all its owners. The
// first column of every row is the basis the rows are grouped by.
func (ld *loader) load(ctx context.Context, pl *pendingLoad) error {
	var (
		a      = pl.d.a
		f      = ld.m.f
		s      *criteria.Select
		basis  string
		elem   *viewType
		base   string
		entity string
	)
	switch {
	case a.correlated():
		basis, elem, base, entity = join("c_", a.corrPath), a.view, "c_", a.corrEntity.Name
		s = f.From(a.corrEntity.Name, "c_").Select(basis).OrderBy(criteria.Asc("c_"))
	case a.kind == kindSubview:
		basis, elem, base, entity = "e_", a.view, "e_", a.view.entity.Name
		s = f.From(a.view.entity.Name, "e_").Select(basis)
	default:
		_, coll := splitCollection(a.collection)
		c := a.chain[strings.Count(a.collection, ".")]
		owner := c.Entity()
		basis, elem, base, entity = "o_", a.view, "e_", c.TargetEntity().Name
		order := criteria.Asc("e_")
		if a.indexed {
			order = criteria.Asc("index(e_)")
		}
		s = f.From(owner.Name, "o_").InnerJoin("o_."+coll, "e_").Select(basis).OrderBy(criteria.Asc("o_"), order)
	}
	var proj *projection
	if elem != nil {
		p := &projector{m: ld.m, q: s, params: ld.params, n: 1}
		var err error
		if proj, err = p.project(elem, base, pl.d.fetch); err != nil {
			return err
		}
	} else {
		s.Select(join("e_", a.elem))
	}
	keys := make([]any, len(pl.targets))
	for i, t := range pl.targets {
		keys[i] = t.key
	}
	keys = batch.Unique(keys)
	var (
		rows [][]any
		err  error
	)
	if pl.d.keys != nil {
		sub := pl.d.keys.Clone().Select(pl.d.prefix)
		rows, err = s.Where(criteria.InSubquery(basis, sub)).All(ctx, ld.m.drv)
	} else {
		rows, err = batch.Load(ctx, keys, a.batchSize(ld.m), ld.m.concurrency, func(ctx context.Context, chunk []any) ([][]any, error) {
			return s.Clone().Where(criteria.Path[any](basis).In(chunk...)).All(ctx, ld.m.drv)
		})
	}
	if err != nil {
		return blaze.NewQueryError(entity, "load "+a.name, err)
	}
	groups := batch.GroupByKey(rows, func(row []any) any { return key(row[0]) })
	for _, t := range pl.targets {
		if err := ld.assign(t.f, a, proj, groups[t.key]); err != nil {
			return fmt.Errorf("view: load %s: %w", a.name, err)
		}
	}
	return nil
}

// assign stores the loaded rows of one owner in the field.
func (ld *loader) assign(f reflect.Value, a *attribute, proj *projection, rows [][]any) error {
	if f.Kind() != reflect.Slice {
		if len(rows) == 0 {
			f.SetZero()
			return nil
		}
		return proj.decode(f, rows[0], ld)
	}
	s := reflect.MakeSlice(f.Type(), len(rows), len(rows))
	for i, row := range rows {
		var err error
		if proj != nil {
			err = proj.decode(s.Index(i), row, ld)
		} else {
			err = assign(s.Index(i), row[1])
		}
		if err != nil {
			return err
		}
	}
	f.Set(s)
	return nil
}

// batchSize returns the number of owners per load query.
func (a *attribute) batchSize(m *Manager) int {
	if a.view != nil && a.view.batch > 0 {
		return a.view.batch
	}
	return m.batch
}
