package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/blaze"
	"github.com/syssam/blaze/criteria"
	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/dbms"
	"github.com/syssam/blaze/dialect/sql/sqlgraph"
	"github.com/syssam/blaze/metamodel"
)

// Statement is a statement executed by a flush.
type Statement struct {
	SQL  string
	Args []any
}

// recorder records and logs the statements of a flush.
type recorder struct {
	dialect.ExecQuerier
	logger *slog.Logger
	id     string
	stmts  []Statement
}

func (r *recorder) record(query string, args any) {
	vs, _ := args.([]any)
	r.stmts = append(r.stmts, Statement{SQL: query, Args: vs})
	r.logger.Debug("flush statement", "flush", r.id, "sql", query, "args", vs)
}

// Exec implements dialect.ExecQuerier.
func (r *recorder) Exec(ctx context.Context, query string, args, v any) error {
	r.record(query, args)
	return r.ExecQuerier.Exec(ctx, query, args, v)
}

// Query implements dialect.ExecQuerier.
func (r *recorder) Query(ctx context.Context, query string, args, v any) error {
	r.record(query, args)
	return r.ExecQuerier.Query(ctx, query, args, v)
}

// flusher writes the changes of view graphs in one transaction.
type flusher struct {
	m    *Manager
	ctx  context.Context
	exec *recorder
	done map[*state]bool
	// commit runs after the transaction committed, undo after it failed or
	// was planned only.
	commit []func()
	undo   []func()
}

// Save flushes the views, pointers to view structs, in one transaction.
// New views are inserted and the changes of loaded views are written
// according to their flush mode and strategy. Cascades follow the
// attribute options.
func (m *Manager) Save(ctx context.Context, views ...any) error {
	_, err := m.flush(ctx, false, func(fl *flusher) error {
		return fl.each(views, fl.save)
	})
	return err
}

// Remove deletes the entities of the views in one transaction, cascading to
// subviews with cascade=delete and to orphan removing collections.
func (m *Manager) Remove(ctx context.Context, views ...any) error {
	_, err := m.flush(ctx, false, func(fl *flusher) error {
		return fl.each(views, fl.remove)
	})
	return err
}

// RemoveByID deletes the entity of view T with the given id without loading
// it. Its collections are removed by query.
func RemoveByID[T any](ctx context.Context, m *Manager, id any) error {
	ref, err := Reference[T](m, id)
	if err != nil {
		return err
	}
	return m.Remove(ctx, ref)
}

// Plan returns the statements Save would execute. They run in a
// transaction that is rolled back, and the views keep their state.
func (m *Manager) Plan(ctx context.Context, views ...any) ([]Statement, error) {
	return m.flush(ctx, true, func(fl *flusher) error {
		return fl.each(views, fl.save)
	})
}

func (m *Manager) flush(ctx context.Context, plan bool, fn func(*flusher) error) ([]Statement, error) {
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return nil, err
	}
	fl := &flusher{
		m:    m,
		ctx:  ctx,
		exec: &recorder{ExecQuerier: tx, logger: m.logger, id: uuid.NewString()},
		done: make(map[*state]bool),
	}
	if err := fn(fl); err != nil {
		fl.revert()
		return nil, rollback(tx, classify(err))
	}
	if plan {
		fl.revert()
		if err := tx.Rollback(); err != nil {
			return nil, err
		}
		return fl.exec.stmts, nil
	}
	if err := tx.Commit(); err != nil {
		fl.revert()
		return nil, err
	}
	for _, f := range fl.commit {
		f()
	}
	m.logger.Debug("flush committed", "flush", fl.exec.id, "statements", len(fl.exec.stmts))
	return fl.exec.stmts, nil
}

// rollback calls tx.Rollback and wraps the given error with the rollback
// error if occurred.
func rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}

// classify wraps constraint violations of the database.
func classify(err error) error {
	if v := sqlgraph.Classify(err); v != sqlgraph.NoViolation && !blaze.IsConstraintError(err) {
		return blaze.NewConstraintError(v.String()+" constraint violated: "+err.Error(), err)
	}
	return err
}

func (fl *flusher) revert() {
	for i := len(fl.undo) - 1; i >= 0; i-- {
		fl.undo[i]()
	}
}

func (fl *flusher) each(views []any, fn func(reflect.Value, *viewType) error) error {
	for _, v := range views {
		rv, vt, err := fl.m.structOf(v)
		if err != nil {
			return err
		}
		if err := fn(rv, vt); err != nil {
			return err
		}
	}
	return nil
}

// set assigns a generated value to a field and restores it on failure.
func (fl *flusher) set(f reflect.Value, v any) error {
	old := reflect.New(f.Type()).Elem()
	old.Set(f)
	if err := assign(f, v); err != nil {
		return err
	}
	fl.undo = append(fl.undo, func() { f.Set(old) })
	return nil
}

func (fl *flusher) save(v reflect.Value, vt *viewType) error {
	st := stateOf(v, vt)
	if st == nil {
		return errUntracked(vt)
	}
	if fl.done[st] {
		return nil
	}
	fl.done[st] = true
	switch {
	case st.removed:
		return fmt.Errorf("view: %s %v was removed", vt.name, idOf(v, vt))
	case st.isNew:
		return fl.persist(v, vt, st, nil)
	}
	return fl.update(v, vt, st)
}

// persists reports whether new objects reached through a are inserted.
func (a *attribute) persists(vt *viewType) bool {
	return a.cascade.has(cascadePersist) || a.cascade == 0 && vt.creatable
}

// child persists the new object sv reached through a. It reports false if
// sv is new and skipped.
func (fl *flusher) child(a *attribute, sv reflect.Value, vt *viewType, extra map[string]any) (bool, error) {
	st := stateOf(sv, vt)
	if !st.isNew {
		return true, nil
	}
	if fl.done[st] {
		return true, nil
	}
	if !a.persists(vt) {
		if fl.m.strict {
			return false, fmt.Errorf("view: new %s in attribute %s is not persisted without cascade=persist", vt.name, a.name)
		}
		return false, nil
	}
	fl.done[st] = true
	return true, fl.persist(sv, vt, st, extra)
}

// persist inserts a new view. extra holds the values of entity attributes
// the view does not map, e.g. the owner of a one-to-many element.
func (fl *flusher) persist(v reflect.Value, vt *viewType, st *state, extra map[string]any) error {
	if !vt.creatable {
		return blaze.NewConfigurationError(vt.name, "view is not creatable")
	}
	for _, a := range vt.attrs {
		if a.kind != kindSubview || a.correlated() {
			continue
		}
		if sv, svt := viewOf(v.FieldByIndex(a.field), a.view); sv.IsValid() {
			if _, err := fl.child(a, sv, svt, nil); err != nil {
				return err
			}
		}
	}
	if err := fl.m.notify(fl.ctx, PrePersist, v); err != nil {
		return err
	}
	if va := vt.version; va != nil {
		if f := v.FieldByIndex(va.field); isZero(value(f)) {
			if err := fl.set(f, initialVersion(vt.entity.Version)); err != nil {
				return err
			}
		}
	}
	var (
		mu        = newMutation(blaze.OpCreate, vt, nil)
		idf       = v.FieldByIndex(vt.id.field)
		generated = isZero(value(idf))
		written   = make(map[*metamodel.Attribute]bool)
		cols      []string
		vals      []any
	)
	for name, val := range extra {
		a, _ := vt.entity.Attribute(name)
		written[a] = true
		cols, vals = append(cols, name), append(vals, val)
		mu.set(name, val)
	}
	for _, a := range vt.attrs {
		if a.column == nil || a.kind == kindCollection || a.kind == kindValues || written[a.column] || a.id && generated {
			continue
		}
		if a.kind == kindEmbedded {
			fv := embeddedValues(a, v.FieldByIndex(a.field))
			for i, fa := range a.fields {
				if written[fa.column] {
					continue
				}
				written[fa.column] = true
				cols, vals = append(cols, fa.column.Name), append(vals, fv[i])
				mu.set(a.name+"."+fa.name, fv[i])
			}
			continue
		}
		val, ok := fl.columnValue(a, v.FieldByIndex(a.field))
		if !ok {
			continue
		}
		written[a.column] = true
		cols, vals = append(cols, a.column.Name), append(vals, val)
		mu.set(a.name, val)
	}
	if !generated {
		mu.id = value(idf)
	}
	if err := fl.m.evalMutation(fl.ctx, mu); err != nil {
		return err
	}
	ins := fl.m.f.Insert(vt.entity.Name).Columns(cols...).Values(vals...)
	if generated {
		ins.Returning(vt.entity.ID.Name)
	}
	res, err := ins.Exec(fl.ctx, fl.exec)
	if err != nil {
		return blaze.NewMutationError(vt.entity.Name, "create", err)
	}
	if generated {
		if len(res.Returned) == 0 {
			return blaze.NewMutationError(vt.entity.Name, "create", errors.New("no generated id returned"))
		}
		if err := fl.set(idf, res.Returned[0][0]); err != nil {
			return fmt.Errorf("view: generated id of %s: %w", vt.name, err)
		}
	}
	id := value(idf)
	for _, a := range vt.attrs {
		if a.column != nil && (a.kind == kindCollection || a.kind == kindValues) {
			if _, err := fl.collection(v, vt, st, a, id); err != nil {
				return err
			}
		}
	}
	if err := fl.cascade(v, vt, st); err != nil {
		return err
	}
	if err := fl.m.notify(fl.ctx, PostPersist, v); err != nil {
		return err
	}
	fl.commit = append(fl.commit, func() {
		st.isNew = false
		st.fetched = nil
		st.snapshot(v)
	})
	return nil
}

// columnValue returns the value written for a basic or to-one attribute.
// New subviews that were skipped are not written.
func (fl *flusher) columnValue(a *attribute, f reflect.Value) (any, bool) {
	if a.kind != kindSubview {
		return value(f), true
	}
	sv, svt := viewOf(f, a.view)
	if !sv.IsValid() {
		return nil, true
	}
	if stateOf(sv, svt).isNew && !fl.done[stateOf(sv, svt)] {
		return nil, false
	}
	return value(sv.FieldByIndex(svt.id.field)), true
}

func initialVersion(a *metamodel.Attribute) any {
	if a.Kind == dbms.TypeTime {
		return time.Now().UTC()
	}
	return int64(1)
}

// update writes the changes of a loaded view.
func (fl *flusher) update(v reflect.Value, vt *viewType, st *state) error {
	if !vt.updatable {
		return fl.cascade(v, vt, st)
	}
	type assignment struct {
		// a is the attribute or the embeddable field written, name its
		// path in the view.
		a    *attribute
		name string
		val  any
	}
	var (
		full    = vt.mode == FlushFull
		sets    []assignment
		written = make(map[*metamodel.Attribute]bool)
		nested  bool
		colls   bool
		cm      = changes(v, vt, make(map[*state]*ChangeModel))
	)
	for _, a := range vt.attrs {
		if !st.isFetched(a.name) || a.correlated() {
			continue
		}
		f := v.FieldByIndex(a.field)
		if a.kind == kindSubview && a.updatable {
			if sv, svt := viewOf(f, a.view); sv.IsValid() {
				if _, err := fl.child(a, sv, svt, nil); err != nil {
					return err
				}
			}
		}
		if ac, _ := cm.Get(a.name); ac != nil && ac.Kind == Mutated && a.cascade.has(cascadeUpdate) {
			nested = true
		}
		if !a.updatable || a.column == nil {
			continue
		}
		switch a.kind {
		case kindCollection, kindValues:
			colls = colls || dirty(a, v, st)
		case kindEmbedded:
			initial, cur := asList(st.initial[a.name]), embeddedValues(a, f)
			for i, fa := range a.fields {
				if written[fa.column] || !full && equal(at(initial, i), cur[i]) {
					continue
				}
				written[fa.column] = true
				sets = append(sets, assignment{a: fa, name: a.name + "." + fa.name, val: cur[i]})
			}
		default:
			if written[a.column] || !full && !dirty(a, v, st) {
				continue
			}
			val, ok := fl.columnValue(a, f)
			if !ok {
				continue
			}
			written[a.column] = true
			sets = append(sets, assignment{a: a, name: a.name, val: val})
		}
	}
	id := idOf(v, vt)
	lock := vt.version != nil && vt.lock != LockNone && st.isFetched(vt.version.name)
	var version any
	if lock {
		version = st.initial[vt.version.name]
	}
	if vt.strategy == StrategyEntity && len(sets) > 0 {
		sel := fl.m.f.From(vt.entity.Name, "e_")
		for _, s := range sets {
			sel.Select("e_." + s.a.column.Name)
		}
		if lock {
			sel.Select("e_." + vt.entity.Version.Name)
		}
		rows, err := sel.Where(criteria.Path[any]("e_").EQ(id)).All(fl.ctx, fl.exec)
		if err != nil {
			return blaze.NewQueryError(vt.entity.Name, "load", err)
		}
		if len(rows) == 0 {
			return blaze.NewNotFoundErrorWithID(vt.name, id)
		}
		row := rows[0]
		if lock && !sameValue(row[len(sets)], version) {
			return blaze.NewOptimisticLockError(vt.name, id, version)
		}
		changed := sets[:0]
		for i, s := range sets {
			if !sameValue(row[i], s.val) {
				changed = append(changed, s)
			}
		}
		sets = changed
	}
	bump := vt.version != nil && st.isFetched(vt.version.name) && (len(sets) > 0 || vt.mode != FlushLazy && (colls || nested))
	if len(sets) > 0 || bump || colls || nested {
		if err := fl.m.notify(fl.ctx, PreUpdate, v); err != nil {
			return err
		}
	}
	if len(sets) > 0 || bump {
		mu := newMutation(blaze.OpUpdate, vt, id)
		upd := fl.m.f.Update(vt.entity.Name, "e_")
		for _, s := range sets {
			upd.Set(s.a.column.Name, s.val)
			mu.set(s.name, s.val)
		}
		var next any
		if bump {
			f := v.FieldByIndex(vt.version.field)
			if vt.entity.Version.Kind == dbms.TypeTime {
				next = time.Now().UTC()
				upd.Set(vt.entity.Version.Name, next)
			} else {
				n, err := toInt(key(value(f)))
				if err != nil {
					return fmt.Errorf("view: version of %s: %w", vt.name, err)
				}
				next = n + 1
				upd.SetExpr(vt.entity.Version.Name, "e_."+vt.entity.Version.Name+" + 1")
			}
			mu.set(vt.version.name, next)
		}
		if err := fl.m.evalMutation(fl.ctx, mu); err != nil {
			return err
		}
		upd.Where(criteria.Path[any]("e_").EQ(id))
		if lock {
			upd.Where(criteria.Path[any]("e_." + vt.entity.Version.Name).EQ(version))
		}
		res, err := upd.Exec(fl.ctx, fl.exec)
		if err != nil {
			return blaze.NewMutationError(vt.entity.Name, "update", err)
		}
		if res.RowsAffected == 0 {
			if lock {
				return blaze.NewOptimisticLockError(vt.name, id, version)
			}
			return blaze.NewNotFoundErrorWithID(vt.name, id)
		}
		if bump {
			if err := fl.set(v.FieldByIndex(vt.version.field), next); err != nil {
				return err
			}
		}
	}
	for _, a := range vt.attrs {
		if a.updatable && a.column != nil && st.isFetched(a.name) && (a.kind == kindCollection || a.kind == kindValues) {
			if _, err := fl.collection(v, vt, st, a, value(v.FieldByIndex(vt.id.field))); err != nil {
				return err
			}
		}
	}
	if err := fl.cascade(v, vt, st); err != nil {
		return err
	}
	if len(sets) > 0 || bump || colls || nested {
		if err := fl.m.notify(fl.ctx, PostUpdate, v); err != nil {
			return err
		}
	}
	fl.commit = append(fl.commit, func() { st.snapshot(v) })
	return nil
}

// cascade saves the existing subviews and elements of attributes with
// cascade=update.
func (fl *flusher) cascade(v reflect.Value, vt *viewType, st *state) error {
	for _, a := range vt.attrs {
		if !a.cascade.has(cascadeUpdate) || a.correlated() || !st.isFetched(a.name) {
			continue
		}
		f := v.FieldByIndex(a.field)
		switch a.kind {
		case kindSubview:
			if sv, svt := viewOf(f, a.view); sv.IsValid() && !stateOf(sv, svt).isNew {
				if err := fl.save(sv, svt); err != nil {
					return err
				}
			}
		case kindCollection:
			for i := 0; i < f.Len(); i++ {
				if sv, svt := viewOf(f.Index(i), a.view); sv.IsValid() && !stateOf(sv, svt).isNew {
					if err := fl.save(sv, svt); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// collection writes the element changes of an owned collection. Inverse
// one-to-many collections update the foreign key of the elements, many-to-many
// collections write join table rows. Indexed lists also keep the index of
// their elements in sync. It reports whether anything was written.
func (fl *flusher) collection(v reflect.Value, vt *viewType, st *state, a *attribute, owner any) (bool, error) {
	var (
		f       = v.FieldByIndex(a.field)
		coll    = a.column
		target  = coll.TargetEntity()
		current = make([]any, 0, f.Len())
		// linked holds new elements whose foreign key was inserted.
		linked = make(map[any]bool)
	)
	for i := 0; i < f.Len(); i++ {
		if a.kind == kindValues {
			current = append(current, key(value(f.Index(i))))
			continue
		}
		sv, svt := viewOf(f.Index(i), a.view)
		if !sv.IsValid() {
			continue
		}
		var extra map[string]any
		if coll.Type == metamodel.OneToManyType {
			extra = map[string]any{coll.Inverse().Name: owner}
			if a.indexed {
				extra[coll.OrderAttribute().Name] = len(current)
			}
		}
		isNew := stateOf(sv, svt).isNew && !fl.done[stateOf(sv, svt)]
		ok, err := fl.child(a, sv, svt, extra)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		id := idOf(sv, svt)
		if isNew && extra != nil {
			linked[id] = true
		}
		current = append(current, id)
	}
	var initial []any
	if !st.isNew {
		initial = asList(st.initial[a.name])
	}
	added, removed := diff(initial, current)
	if len(added) == 0 && len(removed) == 0 && (!a.indexed || sameOrder(initial, current)) {
		return false, nil
	}
	var err error
	switch {
	case coll.Type == metamodel.ManyToManyType && a.indexed:
		err = fl.listRows(vt, st, coll, owner, initial, current)
	case coll.Type == metamodel.ManyToManyType:
		err = fl.joinRows(vt, st, coll, owner, current, added, removed)
	case a.indexed:
		err = fl.listIndexes(coll, owner, initial, current, linked)
	default:
		var relink []any
		for _, id := range added {
			if !linked[id] {
				relink = append(relink, id)
			}
		}
		if len(relink) > 0 {
			inv := coll.Inverse().Name
			upd := fl.m.f.Update(target.Name, "t_").Set(inv, owner).Where(criteria.Path[any]("t_").In(relink...))
			if _, err = upd.Exec(fl.ctx, fl.exec); err != nil {
				err = blaze.NewMutationError(target.Name, "update "+inv, err)
			}
		}
	}
	if err != nil {
		return false, err
	}
	if len(removed) > 0 && (a.orphan || coll.Type == metamodel.OneToManyType) {
		if a.orphan {
			_, err = fl.m.f.Delete(target.Name, "t_").Where(criteria.Path[any]("t_").In(removed...)).Exec(fl.ctx, fl.exec)
		} else {
			upd := fl.m.f.Update(target.Name, "t_").Set(coll.Inverse().Name, nil)
			if a.indexed {
				upd.Set(coll.OrderAttribute().Name, nil)
			}
			_, err = upd.Where(criteria.Path[any]("t_").In(removed...)).Exec(fl.ctx, fl.exec)
		}
		if err != nil {
			return false, blaze.NewMutationError(target.Name, "remove "+a.name, err)
		}
	}
	return true, nil
}

// joinRows deletes the join table rows of removed elements and inserts the
// rows of added elements. Full flushes rewrite every row.
func (fl *flusher) joinRows(vt *viewType, st *state, coll *metamodel.Attribute, owner any, current, added, removed []any) error {
	f := fl.m.f
	ownerID := vt.entity.ID.Name
	if vt.mode == FlushFull && !st.isNew {
		del := f.DeleteCollection(vt.entity.Name, "o_", coll.Name).Where(criteria.Path[any]("o_." + ownerID).EQ(owner))
		if _, err := del.Exec(fl.ctx, fl.exec); err != nil {
			return blaze.NewMutationError(vt.entity.Name, "delete "+coll.Name, err)
		}
		added, removed = current, nil
	}
	if len(removed) > 0 {
		del := f.DeleteCollection(vt.entity.Name, "o_", coll.Name).Where(
			criteria.Path[any]("o_."+ownerID).EQ(owner),
			criteria.Path[any]("o_."+coll.Name).In(removed...),
		)
		if _, err := del.Exec(fl.ctx, fl.exec); err != nil {
			return blaze.NewMutationError(vt.entity.Name, "delete "+coll.Name, err)
		}
	}
	if len(added) > 0 {
		ins := f.InsertCollection(vt.entity.Name, coll.Name).Columns(ownerID, coll.Name)
		for _, id := range added {
			ins.Values(owner, id)
		}
		if _, err := ins.Exec(fl.ctx, fl.exec); err != nil {
			return blaze.NewMutationError(vt.entity.Name, "insert "+coll.Name, err)
		}
	}
	return nil
}

// listRows rewrites the join table rows of an indexed list from the first
// index that changed. Appending elements only inserts rows and removing the
// tail only deletes rows. Full flushes rewrite every row.
func (fl *flusher) listRows(vt *viewType, st *state, coll *metamodel.Attribute, owner any, initial, current []any) error {
	var (
		f       = fl.m.f
		ownerID = vt.entity.ID.Name
		index   = "index(" + coll.Name + ")"
		p       int
	)
	if vt.mode != FlushFull {
		for p < len(initial) && p < len(current) && initial[p] == current[p] {
			p++
		}
	}
	if !st.isNew && p < len(initial) {
		del := f.DeleteCollection(vt.entity.Name, "o_", coll.Name).Where(
			criteria.Path[any]("o_."+ownerID).EQ(owner),
			criteria.Path[int]("index(o_."+coll.Name+")").GTE(p),
		)
		if _, err := del.Exec(fl.ctx, fl.exec); err != nil {
			return blaze.NewMutationError(vt.entity.Name, "delete "+coll.Name, err)
		}
	}
	if p < len(current) {
		ins := f.InsertCollection(vt.entity.Name, coll.Name).Columns(ownerID, coll.Name, index)
		for i, id := range current[p:] {
			ins.Values(owner, id, p+i)
		}
		if _, err := ins.Exec(fl.ctx, fl.exec); err != nil {
			return blaze.NewMutationError(vt.entity.Name, "insert "+coll.Name, err)
		}
	}
	return nil
}

// listIndexes writes the index of the elements of an indexed one-to-many
// list that moved, and links the added elements to the owner. New elements
// were inserted with their index.
func (fl *flusher) listIndexes(coll *metamodel.Attribute, owner any, initial, current []any, linked map[any]bool) error {
	var (
		target = coll.TargetEntity()
		inv    = coll.Inverse().Name
		order  = coll.OrderAttribute().Name
		pos    = make(map[any]int, len(initial))
	)
	for i, id := range initial {
		pos[id] = i
	}
	for i, id := range current {
		if linked[id] {
			continue
		}
		p, ok := pos[id]
		if ok && p == i {
			continue
		}
		upd := fl.m.f.Update(target.Name, "t_").Set(order, i)
		if !ok {
			upd.Set(inv, owner)
		}
		if _, err := upd.Where(criteria.Path[any]("t_").EQ(id)).Exec(fl.ctx, fl.exec); err != nil {
			return blaze.NewMutationError(target.Name, "update "+order, err)
		}
	}
	return nil
}

// remove deletes a view and its cascades.
func (fl *flusher) remove(v reflect.Value, vt *viewType) error {
	st := stateOf(v, vt)
	if st == nil {
		return errUntracked(vt)
	}
	if fl.done[st] || st.isNew {
		return nil
	}
	fl.done[st] = true
	id := idOf(v, vt)
	if err := fl.m.notify(fl.ctx, PreRemove, v); err != nil {
		return err
	}
	if err := fl.m.evalMutation(fl.ctx, newMutation(blaze.OpDelete, vt, id)); err != nil {
		return err
	}
	f := fl.m.f
	for _, a := range vt.attrs {
		if a.kind != kindCollection || a.column == nil || a.column.Type != metamodel.OneToManyType || !a.cascade.has(cascadeDelete) && !a.orphan {
			continue
		}
		if st.isFetched(a.name) {
			elems := v.FieldByIndex(a.field)
			for i := 0; i < elems.Len(); i++ {
				if sv, svt := viewOf(elems.Index(i), a.view); sv.IsValid() {
					if err := fl.remove(sv, svt); err != nil {
						return err
					}
				}
			}
			continue
		}
		target, inv := a.column.TargetEntity(), a.column.Inverse()
		if _, err := f.Delete(target.Name, "t_").Where(criteria.Path[any]("t_."+inv.Name).EQ(id)).Exec(fl.ctx, fl.exec); err != nil {
			return blaze.NewMutationError(target.Name, "delete", err)
		}
	}
	for _, ea := range vt.entity.Attributes() {
		if ea.Type != metamodel.ManyToManyType {
			continue
		}
		del := f.DeleteCollection(vt.entity.Name, "o_", ea.Name).Where(criteria.Path[any]("o_." + vt.entity.ID.Name).EQ(id))
		if _, err := del.Exec(fl.ctx, fl.exec); err != nil {
			return blaze.NewMutationError(vt.entity.Name, "delete "+ea.Name, err)
		}
	}
	lock := vt.version != nil && vt.lock != LockNone && st.isFetched(vt.version.name)
	del := f.Delete(vt.entity.Name, "e_").Where(criteria.Path[any]("e_").EQ(id))
	var version any
	if lock {
		version = st.initial[vt.version.name]
		del.Where(criteria.Path[any]("e_." + vt.entity.Version.Name).EQ(version))
	}
	res, err := del.Exec(fl.ctx, fl.exec)
	if err != nil {
		return blaze.NewMutationError(vt.entity.Name, "delete", err)
	}
	if res.RowsAffected == 0 {
		if lock {
			return blaze.NewOptimisticLockError(vt.name, id, version)
		}
		return blaze.NewNotFoundErrorWithID(vt.name, id)
	}
	for _, a := range vt.attrs {
		if a.kind != kindSubview || !a.cascade.has(cascadeDelete) || !st.isFetched(a.name) {
			continue
		}
		if sv, svt := viewOf(v.FieldByIndex(a.field), a.view); sv.IsValid() {
			if err := fl.remove(sv, svt); err != nil {
				return err
			}
		}
	}
	if err := fl.m.notify(fl.ctx, PostRemove, v); err != nil {
		return err
	}
	fl.commit = append(fl.commit, func() { st.removed = true })
	return nil
}

// sameValue compares a database value with a view value.
func sameValue(db, cur any) bool {
	if cur == nil || db == nil {
		return cur == nil && db == nil
	}
	rv := reflect.New(reflect.TypeOf(cur)).Elem()
	if err := assign(rv, db); err != nil {
		return false
	}
	return equal(rv.Interface(), cur)
}
