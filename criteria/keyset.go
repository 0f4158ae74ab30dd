package criteria

import "fmt"

// keysetPredicate returns the predicate selecting the rows after or before
// the keyset. Uniform directions compare row values where the dialect
// supports them, other orders expand to
//
//	(a > ? or (a = ? and b < ?))
func (s *Select) keysetPredicate() (Predicate, error) {
	ks, orders := s.keyset, s.orderBy
	if len(orders) == 0 {
		return nil, fmt.Errorf("criteria: keyset pagination requires an order by")
	}
	if len(ks.values) != len(orders) {
		return nil, fmt.Errorf("criteria: keyset has %d values for %d order by items", len(ks.values), len(orders))
	}
	op := func(desc bool) string {
		if desc != ks.before {
			return " < "
		}
		return " > "
	}
	uniform := true
	for _, o := range orders[1:] {
		uniform = uniform && o.Descending == orders[0].Descending
	}
	if uniform && len(orders) > 1 && s.f.dialect.SupportsRowValueConstructor {
		return func(w *Writer) {
			w.WriteString("(")
			for i, o := range orders {
				if i > 0 {
					w.WriteString(", ")
				}
				w.Expr(o.Expr)
			}
			w.WriteString(")").WriteString(op(orders[0].Descending)).WriteString("(").Args(ks.values...).WriteString(")")
		}, nil
	}
	return func(w *Writer) {
		if len(orders) > 1 {
			w.WriteString("(")
		}
		for i, o := range orders {
			if i > 0 {
				w.WriteString(" or (")
			}
			for j := 0; j < i; j++ {
				w.Expr(orders[j].Expr).WriteString(" = ").Arg(ks.values[j]).WriteString(" and ")
			}
			w.Expr(o.Expr).WriteString(op(o.Descending)).Arg(ks.values[i])
			if i > 0 {
				w.WriteString(")")
			}
		}
		if len(orders) > 1 {
			w.WriteString(")")
		}
	}, nil
}

// invert reverses the direction and null precedence of orders.
func invert(orders []Order) []Order {
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = Order{Expr: o.Expr, Descending: !o.Descending, NullsFirst: !o.NullsFirst}
	}
	return out
}
