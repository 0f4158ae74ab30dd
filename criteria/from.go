package criteria

import (
	"fmt"
	"strings"
)

// buildFrom renders the FROM items with their explicit joins and registers
// their aliases. Joins are attached to the FROM item of the alias their path
// starts at, joins on predicates to the last FROM item.
func (s *Select) buildFrom(r *renderer) ([]*Writer, []*source, error) {
	var (
		parts = make([]*Writer, len(s.from))
		roots = make([]*source, len(s.from))
		index = make(map[string]int, len(s.from)+len(s.joins))
	)
	for i, it := range s.from {
		if _, ok := index[it.alias]; ok {
			return nil, nil, fmt.Errorf("criteria: duplicate alias %q", it.alias)
		}
		index[it.alias] = i
		w := r.writer()
		src, err := s.writeFromItem(r, w, it)
		if err != nil {
			return nil, nil, err
		}
		if err := r.scope.add(src); err != nil {
			return nil, nil, err
		}
		parts[i], roots[i] = w, src
	}
	for _, j := range s.joins {
		i := len(s.from) - 1
		if j.path != "" {
			base := j.path[:strings.IndexByte(j.path, '.')]
			idx, ok := index[base]
			if !ok {
				return nil, nil, fmt.Errorf("criteria: join path %q starts at unknown alias %q", j.path, base)
			}
			i = idx
		}
		if _, ok := index[j.alias]; ok {
			return nil, nil, fmt.Errorf("criteria: duplicate alias %q", j.alias)
		}
		index[j.alias] = i
		if err := s.writeJoin(r, parts[i], roots[i], j); err != nil {
			return nil, nil, err
		}
	}
	return parts, roots, nil
}

func (s *Select) writeFromItem(r *renderer, w *Writer, it fromItem) (*source, error) {
	switch {
	case it.sub != nil:
		w.Subquery(it.sub).WriteString(" ").WriteString(it.alias)
		var columns []string
		if sel, ok := it.sub.(*Select); ok && !contains(sel.Aliases(), "") {
			columns = sel.Aliases()
		}
		return newRoot(it.alias, nil, columns), w.err
	case it.values != nil:
		if err := s.f.dialect.AppendValues(&w.b, it.alias, it.values.columns, it.values.rows); err != nil {
			return nil, err
		}
		return newRoot(it.alias, nil, it.values.columns), nil
	}
	if c := r.scope.cte(it.name); c != nil {
		if err := c.writeRef(r, w, it.alias); err != nil {
			return nil, err
		}
		return newRoot(it.alias, nil, c.columns), nil
	}
	if it.cteOnly {
		return nil, fmt.Errorf("criteria: unknown CTE %q", it.name)
	}
	e, ok := s.f.mm.Entity(it.name)
	if !ok {
		return nil, fmt.Errorf("criteria: unknown entity %q", it.name)
	}
	if r.shape {
		w.WriteString(e.Name)
	} else {
		w.WriteString(e.Table)
	}
	w.WriteString(" ").WriteString(it.alias)
	return newRoot(it.alias, e, nil), nil
}

func (s *Select) writeJoin(r *renderer, w *Writer, root *source, j join) error {
	if j.path != "" {
		if r.shape {
			w.WriteString(" ").WriteString(j.kind.String()).WriteString(" ").WriteString(j.path).WriteString(" ").WriteString(j.alias)
			return nil
		}
		parts := strings.Split(j.path, ".")
		cur := r.scope.sources[parts[0]]
		place := func(clause string) {
			w.WriteString(" ").WriteString(clause)
		}
		for i, name := range parts[1:] {
			if cur.entity == nil {
				return fmt.Errorf("criteria: cannot join path %q of %s", j.path, cur.alias)
			}
			a, ok := cur.entity.Attribute(name)
			if !ok {
				return fmt.Errorf("criteria: %s has no attribute %q", cur.entity.Name, name)
			}
			if !a.IsAssociation() {
				return fmt.Errorf("criteria: cannot join attribute %s, it is not an association", a)
			}
			if i < len(parts)-2 {
				next, err := r.join(cur, a, "", "left join", place)
				if err != nil {
					return err
				}
				cur = next
				continue
			}
			dst, err := r.join(cur, a, j.alias, j.kind.String(), place)
			if err != nil {
				return err
			}
			return r.scope.add(dst)
		}
		return nil
	}
	w.WriteString(" ").WriteString(j.kind.String()).WriteString(" ")
	src := &source{alias: j.alias, qualifier: j.alias, root: root}
	if c := r.scope.cte(j.source); c != nil {
		if err := c.writeRef(r, w, j.alias); err != nil {
			return err
		}
		src.columns = c.columns
	} else {
		e, ok := s.f.mm.Entity(j.source)
		if !ok {
			return fmt.Errorf("criteria: unknown entity %q", j.source)
		}
		if r.shape {
			w.WriteString(e.Name)
		} else {
			w.WriteString(e.Table)
		}
		w.WriteString(" ").WriteString(j.alias)
		src.entity = e
	}
	if err := r.scope.add(src); err != nil {
		return err
	}
	w.WriteString(" on ")
	And(j.on...)(w)
	return w.err
}

func (s *Select) writeItems(w *Writer, roots []*source) {
	if len(s.items) == 0 {
		root := roots[0]
		switch {
		case w.r.shape:
			w.WriteString(root.alias)
		case root.entity != nil:
			for i, a := range root.entity.Columns() {
				if i > 0 {
					w.WriteString(", ")
				}
				w.WriteString(root.alias).WriteString(".").WriteString(a.Column)
			}
		default:
			w.WriteString("*")
		}
		return
	}
	for i, it := range s.items {
		if i > 0 {
			w.WriteString(", ")
		}
		switch {
		case it.fn != "":
			w.aggregate(it.fn, it.sub, it.fields)
		case it.sub != nil:
			w.Subquery(it.sub)
		default:
			w.Expr(it.expr)
			w.b.Append("", it.args...)
		}
		if it.alias != "" {
			w.WriteString(" as ").WriteString(it.alias)
		}
	}
}

func (s *Select) writeOrders(r *renderer, w *Writer, orders []Order) {
	if r.shape {
		for i, o := range orders {
			if i > 0 {
				w.WriteString(", ")
			}
			w.Expr(o.Expr)
			if o.Descending {
				w.WriteString(" desc")
			}
			if o.NullsFirst {
				w.WriteString(" nulls first")
			} else {
				w.WriteString(" nulls last")
			}
		}
		return
	}
	resolved := make([]Order, len(orders))
	for i, o := range orders {
		expr, err := r.translate(o.Expr)
		if err != nil {
			w.AddError(err)
			return
		}
		o.Expr = expr
		resolved[i] = o
	}
	w.WriteString(s.f.dialect.OrderBy(resolved...))
}
